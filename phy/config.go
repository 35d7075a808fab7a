package phy

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidTxPowerLevels is returned for a tx power range that cannot
	// be split into the configured number of levels.
	ErrInvalidTxPowerLevels = errors.New("invalid tx power levels")
	// ErrInvalidChannelNumber is returned for channel numbers below 1.
	ErrInvalidChannelNumber = errors.New("invalid channel number")
	// ErrUnknownStandard is returned for an unsupported frequency standard.
	ErrUnknownStandard = errors.New("unknown standard")
	// ErrInvalidConfig is returned for any other out-of-range setting.
	ErrInvalidConfig = errors.New("invalid phy config")
)

// InvariantError reports a broken internal invariant. The PHY panics with
// it rather than continuing in an inconsistent state.
type InvariantError struct {
	Op  string
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("phy: invariant violated in %s: %s", e.Op, e.Msg)
}

func invariant(ok bool, op, format string, args ...any) {
	if !ok {
		panic(&InvariantError{Op: op, Msg: fmt.Sprintf(format, args...)})
	}
}

// Config holds the static radio parameters of a PHY.
type Config struct {
	EnergyDetectionThresholdDbm float64       `yaml:"energy_detection_threshold_dbm"`
	CcaThresholdDbm             float64       `yaml:"cca_threshold_dbm"`
	TxGainDb                    float64       `yaml:"tx_gain_db"`
	RxGainDb                    float64       `yaml:"rx_gain_db"`
	TxPowerLevels               uint32        `yaml:"tx_power_levels"`
	TxPowerStartDbm             float64       `yaml:"tx_power_start_dbm"`
	TxPowerEndDbm               float64       `yaml:"tx_power_end_dbm"`
	RxNoiseFigureDb             float64       `yaml:"rx_noise_figure_db"`
	ChannelSwitchDelay          time.Duration `yaml:"channel_switch_delay"`
	ChannelNumber               uint16        `yaml:"channel_number"`
	Standard                    Standard      `yaml:"standard"`
	ShortGuardInterval          bool          `yaml:"short_guard_interval"`
	ChannelBonding              bool          `yaml:"channel_bonding"`
}

// DefaultConfig returns the stock radio parameters.
func DefaultConfig() Config {
	return Config{
		EnergyDetectionThresholdDbm: -96,
		CcaThresholdDbm:             -99,
		TxGainDb:                    1,
		RxGainDb:                    1,
		TxPowerLevels:               1,
		TxPowerStartDbm:             16.0206,
		TxPowerEndDbm:               16.0206,
		RxNoiseFigureDb:             7,
		ChannelSwitchDelay:          250 * time.Microsecond,
		ChannelNumber:               1,
		Standard:                    Standard80211a,
	}
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if c.TxPowerLevels == 0 {
		return fmt.Errorf("%w: at least one level is required", ErrInvalidTxPowerLevels)
	}
	if c.TxPowerLevels == 1 && c.TxPowerStartDbm != c.TxPowerEndDbm {
		return fmt.Errorf("%w: a single level needs start (%g dBm) == end (%g dBm)",
			ErrInvalidTxPowerLevels, c.TxPowerStartDbm, c.TxPowerEndDbm)
	}
	if c.ChannelNumber < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidChannelNumber, c.ChannelNumber)
	}
	if _, _, err := standardParams(c.Standard); err != nil {
		return err
	}
	if c.ChannelSwitchDelay < 0 {
		return fmt.Errorf("%w: negative channel switch delay %v", ErrInvalidConfig, c.ChannelSwitchDelay)
	}
	return nil
}

// PowerDbm returns the transmit power of level, before antenna gain.
func (c Config) PowerDbm(level uint8) float64 {
	invariant(c.TxPowerLevels > 0, "PowerDbm", "no tx power levels configured")
	invariant(uint32(level) < c.TxPowerLevels, "PowerDbm", "level %d out of range [0,%d)", level, c.TxPowerLevels)
	if c.TxPowerLevels == 1 {
		invariant(c.TxPowerStartDbm == c.TxPowerEndDbm, "PowerDbm",
			"single level with start %g != end %g", c.TxPowerStartDbm, c.TxPowerEndDbm)
		return c.TxPowerStartDbm
	}
	step := (c.TxPowerEndDbm - c.TxPowerStartDbm) / float64(c.TxPowerLevels-1)
	return c.TxPowerStartDbm + float64(level)*step
}
