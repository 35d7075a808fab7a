package phy

import "math"

// ErrorRateModel maps a signal-to-noise ratio to a chunk success
// probability for a given mode.
type ErrorRateModel interface {
	// ChunkSuccessRate returns the probability that nbits sent with mode
	// at linear snr are all received correctly.
	ChunkSuccessRate(mode Mode, snr float64, nbits uint64) float64
}

// CalculateSnr returns the smallest linear SNR at which model yields a
// bit error rate not above ber for mode, found by bisection.
func CalculateSnr(model ErrorRateModel, mode Mode, ber float64) float64 {
	low, high := 1e-25, 1e25
	const precision = 1e-12
	for high-low > precision {
		middle := low + (high-low)/2
		if 1-model.ChunkSuccessRate(mode, middle, 1) > ber {
			low = middle
		} else {
			high = middle
		}
		if high/low < 1+1e-12 {
			break
		}
	}
	return low
}

// AwgnErrorRateModel computes uncoded bit error rates over an additive
// white Gaussian noise channel for each constellation.
type AwgnErrorRateModel struct{}

// ChunkSuccessRate implements ErrorRateModel.
func (AwgnErrorRateModel) ChunkSuccessRate(mode Mode, snr float64, nbits uint64) float64 {
	if nbits == 0 {
		return 1
	}
	ber := awgnBer(mode, snr)
	if ber <= 0 {
		return 1
	}
	if ber >= 1 {
		return 0
	}
	return math.Pow(1-ber, float64(nbits))
}

func awgnBer(mode Mode, snr float64) float64 {
	if snr <= 0 {
		return 0.5
	}
	if mode.Class == ModClassDSSS {
		// Spreading gain turns per-chip SNR into Eb/N0.
		ebno := snr * float64(mode.BandwidthHz) / float64(mode.DataRate)
		if mode.Constellation == 2 {
			return 0.5 * math.Exp(-ebno)
		}
		return qamBer(4, ebno*2)
	}
	return qamBer(mode.Constellation, snr)
}

// qamBer returns the bit error rate of square M-QAM (BPSK for m == 2) at
// symbol SNR snr.
func qamBer(m uint16, snr float64) float64 {
	switch {
	case m <= 2:
		return 0.5 * math.Erfc(math.Sqrt(snr))
	case m == 4:
		return 0.5 * math.Erfc(math.Sqrt(snr/2))
	default:
		fm := float64(m)
		k := math.Log2(fm)
		z := math.Sqrt(3 * snr / (2 * (fm - 1)))
		ber := (2 / k) * (1 - 1/math.Sqrt(fm)) * math.Erfc(z)
		return math.Min(ber, 0.5)
	}
}

// ThresholdErrorRateModel succeeds with certainty at or above MinSnrDb and
// fails with certainty below it.
type ThresholdErrorRateModel struct {
	MinSnrDb float64
}

// ChunkSuccessRate implements ErrorRateModel.
func (m ThresholdErrorRateModel) ChunkSuccessRate(_ Mode, snr float64, nbits uint64) float64 {
	if nbits == 0 || RatioToDb(snr) >= m.MinSnrDb {
		return 1
	}
	return 0
}
