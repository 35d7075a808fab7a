package phy

import (
	"math"
	"time"
)

const (
	microsecond = time.Microsecond
	// erpSignalExtension is appended after every ERP-OFDM frame.
	erpSignalExtension = 6 * time.Microsecond
)

// ofdmSymbolDuration returns the OFDM symbol period for a channel width.
func ofdmSymbolDuration(bandwidthHz uint32) time.Duration {
	switch bandwidthHz {
	case 10_000_000:
		return 8 * microsecond
	case 5_000_000:
		return 16 * microsecond
	default:
		return 4 * microsecond
	}
}

func htSymbolDuration(shortGI bool) time.Duration {
	if shortGI {
		return 3600 * time.Nanosecond
	}
	return 4 * microsecond
}

// htLtfCount is the number of HT long training fields for nss streams.
func htLtfCount(nss uint8) int {
	switch nss {
	case 0, 1:
		return 1
	case 2:
		return 2
	default:
		return 4
	}
}

// PreambleDuration returns the PLCP preamble duration of a frame.
func PreambleDuration(v TxVector, preamble Preamble) time.Duration {
	m := v.Mode
	switch m.Class {
	case ModClassOFDM:
		return 4 * ofdmSymbolDuration(m.BandwidthHz)
	case ModClassERPOFDM:
		return 16 * microsecond
	case ModClassHT:
		// L-STF + L-LTF for mixed format, HT-GF-STF + HT-LTF1 for greenfield.
		return 16 * microsecond
	case ModClassDSSS:
		if preamble == PreambleShort {
			return 72 * microsecond
		}
		return 144 * microsecond
	default:
		return 0
	}
}

// HeaderDuration returns the PLCP header duration, including the HT-SIG
// and additional HT training fields for HT frames.
func HeaderDuration(v TxVector, preamble Preamble) time.Duration {
	m := v.Mode
	switch m.Class {
	case ModClassOFDM:
		return ofdmSymbolDuration(m.BandwidthHz)
	case ModClassERPOFDM:
		return 4 * microsecond
	case ModClassHT:
		ltf := time.Duration(htLtfCount(v.streams())) * 4 * microsecond
		if preamble == PreambleHTGreenfield {
			// HT-SIG, the first LTF is already in the preamble.
			return 8*microsecond + ltf - 4*microsecond
		}
		// L-SIG + HT-SIG + HT-STF + HT-LTFs.
		return 4*microsecond + 8*microsecond + 4*microsecond + ltf
	case ModClassDSSS:
		if preamble == PreambleShort {
			return 24 * microsecond
		}
		return 48 * microsecond
	default:
		return 0
	}
}

// PayloadDuration returns the time needed to send size bytes of PSDU.
func PayloadDuration(size uint32, v TxVector) time.Duration {
	m := v.Mode
	bits := float64(size) * 8
	switch m.Class {
	case ModClassOFDM, ModClassERPOFDM:
		sym := ofdmSymbolDuration(m.BandwidthHz)
		n := symbols(16+bits+6, m.DataRate, sym)
		d := time.Duration(n) * sym
		if m.Class == ModClassERPOFDM {
			d += erpSignalExtension
		}
		return d
	case ModClassHT:
		sym := htSymbolDuration(m.ShortGI)
		return time.Duration(symbols(16+bits+6, m.DataRate, sym)) * sym
	case ModClassDSSS:
		us := math.Ceil(bits * 1e6 / float64(m.DataRate))
		return time.Duration(us) * microsecond
	default:
		return 0
	}
}

// symbols returns the number of whole symbols of length sym needed to
// carry bits at rate bit/s.
func symbols(bits float64, rate uint64, sym time.Duration) int64 {
	perSymbol := float64(rate) * sym.Seconds()
	if perSymbol <= 0 {
		return 0
	}
	return int64(math.Ceil(bits/perSymbol - 1e-9))
}

// CalculateTxDuration returns the on-air time of a frame of size bytes.
func CalculateTxDuration(size uint32, v TxVector, preamble Preamble) time.Duration {
	return PreambleDuration(v, preamble) + HeaderDuration(v, preamble) + PayloadDuration(size, v)
}

// plcpHeaderMode returns the mode the PLCP header of a frame is sent with.
func plcpHeaderMode(payload Mode, preamble Preamble) Mode {
	switch payload.Class {
	case ModClassOFDM:
		switch payload.BandwidthHz {
		case 10_000_000:
			return OfdmRate3MbpsBW10MHz
		case 5_000_000:
			return OfdmRate1_5MbpsBW5MHz
		default:
			return OfdmRate6Mbps
		}
	case ModClassERPOFDM:
		return ErpOfdmRate6Mbps
	case ModClassHT:
		return OfdmRate6Mbps
	case ModClassDSSS:
		if preamble == PreambleShort {
			return DsssRate2Mbps
		}
		return DsssRate1Mbps
	default:
		return payload
	}
}
