package phy

import (
	"math"
	"time"
)

// Power is carried in Watts inside the PHY; these helpers convert at the
// API boundaries.

// DbToRatio converts a dB value to a linear ratio.
func DbToRatio(db float64) float64 {
	return math.Pow(10.0, db/10.0)
}

// RatioToDb converts a linear ratio to dB.
func RatioToDb(ratio float64) float64 {
	return 10.0 * math.Log10(ratio)
}

// DbmToW converts dBm to Watts.
func DbmToW(dbm float64) float64 {
	mW := math.Pow(10.0, dbm/10.0)
	return mW / 1000.0
}

// WToDbm converts Watts to dBm.
func WToDbm(w float64) float64 {
	return 10.0 * math.Log10(w*1000.0)
}

// secondsToDuration rounds s seconds to the nearest nanosecond.
func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
