package phy

import (
	"fmt"
	"strings"
)

// ModulationClass groups modes that share a PLCP format.
type ModulationClass int

const (
	ModClassUnknown ModulationClass = iota
	ModClassDSSS
	ModClassERPOFDM
	ModClassOFDM
	ModClassHT
)

func (c ModulationClass) String() string {
	switch c {
	case ModClassDSSS:
		return "dsss"
	case ModClassERPOFDM:
		return "erp-ofdm"
	case ModClassOFDM:
		return "ofdm"
	case ModClassHT:
		return "ht"
	default:
		return "unknown"
	}
}

// CodeRate is the forward error correction rate of a mode.
type CodeRate int

const (
	CodeRateUndefined CodeRate = iota
	CodeRate1_2
	CodeRate2_3
	CodeRate3_4
	CodeRate5_6
)

// Mode describes one modulation-and-coding option.
type Mode struct {
	Name        string
	Class       ModulationClass
	DataRate    uint64 // bit/s
	BandwidthHz uint32
	// Constellation is the number of points in the constellation; DSSS
	// modes use it to distinguish DBPSK (2), DQPSK (4) and CCK (16, 256).
	Constellation uint16
	CodeRate      CodeRate
	// Mcs is the HT MCS index; zero for legacy modes.
	Mcs     uint8
	ShortGI bool
}

func (m Mode) String() string { return m.Name }

// IsZero reports whether m is the zero Mode.
func (m Mode) IsZero() bool { return m.Name == "" }

func dsssMode(name string, rate uint64, constellation uint16) Mode {
	return Mode{Name: name, Class: ModClassDSSS, DataRate: rate, BandwidthHz: 22_000_000, Constellation: constellation}
}

func ofdmMode(class ModulationClass, name string, rate uint64, bw uint32, constellation uint16, cr CodeRate) Mode {
	return Mode{Name: name, Class: class, DataRate: rate, BandwidthHz: bw, Constellation: constellation, CodeRate: cr}
}

// DSSS / HR-DSSS (802.11b).
var (
	DsssRate1Mbps   = dsssMode("DsssRate1Mbps", 1_000_000, 2)
	DsssRate2Mbps   = dsssMode("DsssRate2Mbps", 2_000_000, 4)
	DsssRate5_5Mbps = dsssMode("DsssRate5_5Mbps", 5_500_000, 16)
	DsssRate11Mbps  = dsssMode("DsssRate11Mbps", 11_000_000, 256)
)

// ERP-OFDM (802.11g).
var (
	ErpOfdmRate6Mbps  = ofdmMode(ModClassERPOFDM, "ErpOfdmRate6Mbps", 6_000_000, 20_000_000, 2, CodeRate1_2)
	ErpOfdmRate9Mbps  = ofdmMode(ModClassERPOFDM, "ErpOfdmRate9Mbps", 9_000_000, 20_000_000, 2, CodeRate3_4)
	ErpOfdmRate12Mbps = ofdmMode(ModClassERPOFDM, "ErpOfdmRate12Mbps", 12_000_000, 20_000_000, 4, CodeRate1_2)
	ErpOfdmRate18Mbps = ofdmMode(ModClassERPOFDM, "ErpOfdmRate18Mbps", 18_000_000, 20_000_000, 4, CodeRate3_4)
	ErpOfdmRate24Mbps = ofdmMode(ModClassERPOFDM, "ErpOfdmRate24Mbps", 24_000_000, 20_000_000, 16, CodeRate1_2)
	ErpOfdmRate36Mbps = ofdmMode(ModClassERPOFDM, "ErpOfdmRate36Mbps", 36_000_000, 20_000_000, 16, CodeRate3_4)
	ErpOfdmRate48Mbps = ofdmMode(ModClassERPOFDM, "ErpOfdmRate48Mbps", 48_000_000, 20_000_000, 64, CodeRate2_3)
	ErpOfdmRate54Mbps = ofdmMode(ModClassERPOFDM, "ErpOfdmRate54Mbps", 54_000_000, 20_000_000, 64, CodeRate3_4)
)

// OFDM, 20 MHz (802.11a).
var (
	OfdmRate6Mbps  = ofdmMode(ModClassOFDM, "OfdmRate6Mbps", 6_000_000, 20_000_000, 2, CodeRate1_2)
	OfdmRate9Mbps  = ofdmMode(ModClassOFDM, "OfdmRate9Mbps", 9_000_000, 20_000_000, 2, CodeRate3_4)
	OfdmRate12Mbps = ofdmMode(ModClassOFDM, "OfdmRate12Mbps", 12_000_000, 20_000_000, 4, CodeRate1_2)
	OfdmRate18Mbps = ofdmMode(ModClassOFDM, "OfdmRate18Mbps", 18_000_000, 20_000_000, 4, CodeRate3_4)
	OfdmRate24Mbps = ofdmMode(ModClassOFDM, "OfdmRate24Mbps", 24_000_000, 20_000_000, 16, CodeRate1_2)
	OfdmRate36Mbps = ofdmMode(ModClassOFDM, "OfdmRate36Mbps", 36_000_000, 20_000_000, 16, CodeRate3_4)
	OfdmRate48Mbps = ofdmMode(ModClassOFDM, "OfdmRate48Mbps", 48_000_000, 20_000_000, 64, CodeRate2_3)
	OfdmRate54Mbps = ofdmMode(ModClassOFDM, "OfdmRate54Mbps", 54_000_000, 20_000_000, 64, CodeRate3_4)
)

// OFDM, 10 MHz (802.11p and half-clocked 802.11a).
var (
	OfdmRate3MbpsBW10MHz   = ofdmMode(ModClassOFDM, "OfdmRate3MbpsBW10MHz", 3_000_000, 10_000_000, 2, CodeRate1_2)
	OfdmRate4_5MbpsBW10MHz = ofdmMode(ModClassOFDM, "OfdmRate4_5MbpsBW10MHz", 4_500_000, 10_000_000, 2, CodeRate3_4)
	OfdmRate6MbpsBW10MHz   = ofdmMode(ModClassOFDM, "OfdmRate6MbpsBW10MHz", 6_000_000, 10_000_000, 4, CodeRate1_2)
	OfdmRate9MbpsBW10MHz   = ofdmMode(ModClassOFDM, "OfdmRate9MbpsBW10MHz", 9_000_000, 10_000_000, 4, CodeRate3_4)
	OfdmRate12MbpsBW10MHz  = ofdmMode(ModClassOFDM, "OfdmRate12MbpsBW10MHz", 12_000_000, 10_000_000, 16, CodeRate1_2)
	OfdmRate18MbpsBW10MHz  = ofdmMode(ModClassOFDM, "OfdmRate18MbpsBW10MHz", 18_000_000, 10_000_000, 16, CodeRate3_4)
	OfdmRate24MbpsBW10MHz  = ofdmMode(ModClassOFDM, "OfdmRate24MbpsBW10MHz", 24_000_000, 10_000_000, 64, CodeRate2_3)
	OfdmRate27MbpsBW10MHz  = ofdmMode(ModClassOFDM, "OfdmRate27MbpsBW10MHz", 27_000_000, 10_000_000, 64, CodeRate3_4)
)

// OFDM, 5 MHz (quarter-clocked 802.11a).
var (
	OfdmRate1_5MbpsBW5MHz  = ofdmMode(ModClassOFDM, "OfdmRate1_5MbpsBW5MHz", 1_500_000, 5_000_000, 2, CodeRate1_2)
	OfdmRate2_25MbpsBW5MHz = ofdmMode(ModClassOFDM, "OfdmRate2_25MbpsBW5MHz", 2_250_000, 5_000_000, 2, CodeRate3_4)
	OfdmRate3MbpsBW5MHz    = ofdmMode(ModClassOFDM, "OfdmRate3MbpsBW5MHz", 3_000_000, 5_000_000, 4, CodeRate1_2)
	OfdmRate4_5MbpsBW5MHz  = ofdmMode(ModClassOFDM, "OfdmRate4_5MbpsBW5MHz", 4_500_000, 5_000_000, 4, CodeRate3_4)
	OfdmRate6MbpsBW5MHz    = ofdmMode(ModClassOFDM, "OfdmRate6MbpsBW5MHz", 6_000_000, 5_000_000, 16, CodeRate1_2)
	OfdmRate9MbpsBW5MHz    = ofdmMode(ModClassOFDM, "OfdmRate9MbpsBW5MHz", 9_000_000, 5_000_000, 16, CodeRate3_4)
	OfdmRate12MbpsBW5MHz   = ofdmMode(ModClassOFDM, "OfdmRate12MbpsBW5MHz", 12_000_000, 5_000_000, 64, CodeRate2_3)
	OfdmRate13_5MbpsBW5MHz = ofdmMode(ModClassOFDM, "OfdmRate13_5MbpsBW5MHz", 13_500_000, 5_000_000, 64, CodeRate3_4)
)

// HT rates in bit/s, indexed [bonding][shortGI][mcs].
var htRates = [2][2][8]uint64{
	{
		{6_500_000, 13_000_000, 19_500_000, 26_000_000, 39_000_000, 52_000_000, 58_500_000, 65_000_000},
		{7_200_000, 14_400_000, 21_700_000, 28_900_000, 43_300_000, 57_800_000, 65_000_000, 72_200_000},
	},
	{
		{13_500_000, 27_000_000, 40_500_000, 54_000_000, 81_000_000, 108_000_000, 121_500_000, 135_000_000},
		{15_000_000, 30_000_000, 45_000_000, 60_000_000, 90_000_000, 120_000_000, 135_000_000, 150_000_000},
	},
}

var htConstellation = [8]uint16{2, 4, 4, 16, 16, 64, 64, 64}
var htCodeRate = [8]CodeRate{CodeRate1_2, CodeRate1_2, CodeRate3_4, CodeRate1_2, CodeRate3_4, CodeRate2_3, CodeRate3_4, CodeRate5_6}

func htModeName(rate uint64, bw uint32, shortGI bool) string {
	r := fmt.Sprintf("%g", float64(rate)/1e6)
	name := "OfdmRate" + strings.ReplaceAll(r, ".", "_") + "MbpsBW" + fmt.Sprint(bw/1_000_000) + "MHz"
	if shortGI {
		name += "ShGi"
	}
	return name
}

// McsToMode returns the HT mode for mcs (0..7) given the guard interval and
// channel bonding settings. Out-of-range values map to MCS 0.
func McsToMode(mcs uint8, shortGI, channelBonding bool) Mode {
	if mcs > 7 {
		mcs = 0
	}
	b, g := 0, 0
	bw := uint32(20_000_000)
	if channelBonding {
		b = 1
		bw = 40_000_000
	}
	if shortGI {
		g = 1
	}
	rate := htRates[b][g][mcs]
	return Mode{
		Name:          htModeName(rate, bw, shortGI),
		Class:         ModClassHT,
		DataRate:      rate,
		BandwidthHz:   bw,
		Constellation: htConstellation[mcs],
		CodeRate:      htCodeRate[mcs],
		Mcs:           mcs,
		ShortGI:       shortGI,
	}
}

// ModeToMcs returns the MCS index of an HT mode, zero for legacy modes.
func ModeToMcs(m Mode) uint8 {
	if m.Class != ModClassHT {
		return 0
	}
	return m.Mcs
}

// HTMandatoryModes returns MCS 0..7 at 20 MHz with long guard interval, the
// set advertised for the HT BSS membership selector.
func HTMandatoryModes() []Mode {
	out := make([]Mode, 0, 8)
	for mcs := uint8(0); mcs < 8; mcs++ {
		out = append(out, McsToMode(mcs, false, false))
	}
	return out
}

// Preamble is the PLCP preamble format of a frame.
type Preamble int

const (
	PreambleLong Preamble = iota
	PreambleShort
	PreambleHTMixed
	PreambleHTGreenfield
)

func (p Preamble) String() string {
	switch p {
	case PreambleLong:
		return "long"
	case PreambleShort:
		return "short"
	case PreambleHTMixed:
		return "ht-mixed"
	case PreambleHTGreenfield:
		return "ht-greenfield"
	default:
		return "unknown"
	}
}

// ParsePreamble resolves a preamble by its String() name.
func ParsePreamble(name string) (Preamble, error) {
	for p := PreambleLong; p <= PreambleHTGreenfield; p++ {
		if strings.EqualFold(p.String(), name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown preamble %q", name)
}

// TxVector carries the per-frame transmission parameters.
type TxVector struct {
	Mode         Mode
	TxPowerLevel uint8
	// Nss is the number of spatial streams; zero is treated as one.
	Nss uint8
}

func (v TxVector) streams() uint8 {
	if v.Nss == 0 {
		return 1
	}
	return v.Nss
}

// Standard selects a channel's starting frequency and rate set.
type Standard int

const (
	Standard80211a Standard = iota
	Standard80211b
	Standard80211g
	Standard80211_10MHz
	Standard80211_5MHz
	StandardHolland
	Standard80211pCCH
	Standard80211pSCH
)

var standardNames = map[Standard]string{
	Standard80211a:      "802.11a",
	Standard80211b:      "802.11b",
	Standard80211g:      "802.11g",
	Standard80211_10MHz: "802.11-10mhz",
	Standard80211_5MHz:  "802.11-5mhz",
	StandardHolland:     "holland",
	Standard80211pCCH:   "802.11p-cch",
	Standard80211pSCH:   "802.11p-sch",
}

func (s Standard) String() string {
	if n, ok := standardNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Standard(%d)", int(s))
}

// ParseStandard resolves a standard by its String() name.
func ParseStandard(name string) (Standard, error) {
	for s, n := range standardNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStandard, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Standard) MarshalText() ([]byte, error) {
	if _, ok := standardNames[s]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStandard, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Standard) UnmarshalText(b []byte) error {
	v, err := ParseStandard(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// standardParams returns the channel starting frequency (MHz) and the
// ordered rate set for a standard.
func standardParams(s Standard) (float64, []Mode, error) {
	switch s {
	case Standard80211a:
		return 5e3, []Mode{
			OfdmRate6Mbps, OfdmRate9Mbps, OfdmRate12Mbps, OfdmRate18Mbps,
			OfdmRate24Mbps, OfdmRate36Mbps, OfdmRate48Mbps, OfdmRate54Mbps,
		}, nil
	case Standard80211b:
		return 2407, []Mode{DsssRate1Mbps, DsssRate2Mbps, DsssRate5_5Mbps, DsssRate11Mbps}, nil
	case Standard80211g:
		return 2407, []Mode{
			DsssRate1Mbps, DsssRate2Mbps, DsssRate5_5Mbps, ErpOfdmRate6Mbps,
			ErpOfdmRate9Mbps, DsssRate11Mbps, ErpOfdmRate12Mbps, ErpOfdmRate18Mbps,
			ErpOfdmRate24Mbps, ErpOfdmRate36Mbps, ErpOfdmRate48Mbps, ErpOfdmRate54Mbps,
		}, nil
	case Standard80211_10MHz, Standard80211pCCH, Standard80211pSCH:
		return 5e3, []Mode{
			OfdmRate3MbpsBW10MHz, OfdmRate4_5MbpsBW10MHz, OfdmRate6MbpsBW10MHz, OfdmRate9MbpsBW10MHz,
			OfdmRate12MbpsBW10MHz, OfdmRate18MbpsBW10MHz, OfdmRate24MbpsBW10MHz, OfdmRate27MbpsBW10MHz,
		}, nil
	case Standard80211_5MHz:
		return 5e3, []Mode{
			OfdmRate1_5MbpsBW5MHz, OfdmRate2_25MbpsBW5MHz, OfdmRate3MbpsBW5MHz, OfdmRate4_5MbpsBW5MHz,
			OfdmRate6MbpsBW5MHz, OfdmRate9MbpsBW5MHz, OfdmRate12MbpsBW5MHz, OfdmRate13_5MbpsBW5MHz,
		}, nil
	case StandardHolland:
		return 5e3, []Mode{OfdmRate6Mbps, OfdmRate12Mbps, OfdmRate18Mbps, OfdmRate36Mbps, OfdmRate54Mbps}, nil
	default:
		return 0, nil, fmt.Errorf("%w: %d", ErrUnknownStandard, int(s))
	}
}

// ModeByName looks a mode up in the legacy catalogue or parses an HT name.
func ModeByName(name string) (Mode, bool) {
	for _, m := range catalogue {
		if m.Name == name {
			return m, true
		}
	}
	for _, bonding := range []bool{false, true} {
		for _, gi := range []bool{false, true} {
			for mcs := uint8(0); mcs < 8; mcs++ {
				if m := McsToMode(mcs, gi, bonding); m.Name == name {
					return m, true
				}
			}
		}
	}
	return Mode{}, false
}

var catalogue = []Mode{
	DsssRate1Mbps, DsssRate2Mbps, DsssRate5_5Mbps, DsssRate11Mbps,
	ErpOfdmRate6Mbps, ErpOfdmRate9Mbps, ErpOfdmRate12Mbps, ErpOfdmRate18Mbps,
	ErpOfdmRate24Mbps, ErpOfdmRate36Mbps, ErpOfdmRate48Mbps, ErpOfdmRate54Mbps,
	OfdmRate6Mbps, OfdmRate9Mbps, OfdmRate12Mbps, OfdmRate18Mbps,
	OfdmRate24Mbps, OfdmRate36Mbps, OfdmRate48Mbps, OfdmRate54Mbps,
	OfdmRate3MbpsBW10MHz, OfdmRate4_5MbpsBW10MHz, OfdmRate6MbpsBW10MHz, OfdmRate9MbpsBW10MHz,
	OfdmRate12MbpsBW10MHz, OfdmRate18MbpsBW10MHz, OfdmRate24MbpsBW10MHz, OfdmRate27MbpsBW10MHz,
	OfdmRate1_5MbpsBW5MHz, OfdmRate2_25MbpsBW5MHz, OfdmRate3MbpsBW5MHz, OfdmRate4_5MbpsBW5MHz,
	OfdmRate6MbpsBW5MHz, OfdmRate9MbpsBW5MHz, OfdmRate12MbpsBW5MHz, OfdmRate13_5MbpsBW5MHz,
}
