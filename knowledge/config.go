package knowledge

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid knowledge config")

// Config holds the aggregation thresholds. Times are in seconds.
type Config struct {
	// FreshnessWindow is the maximum age of a report still used.
	FreshnessWindow float64 `yaml:"freshness_window"`
	// CongestionThreshold and DensityThreshold split ActualCapacity into
	// congested, dense and free flow.
	CongestionThreshold float64 `yaml:"congestion_threshold"`
	DensityThreshold    float64 `yaml:"density_threshold"`
	// SimulationStep is the traffic simulator step; see isSumoStepArtifact.
	SimulationStep float64 `yaml:"simulation_step"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		FreshnessWindow:     120,
		CongestionThreshold: 0.5,
		DensityThreshold:    0.75,
		SimulationStep:      1,
	}
}

// Validate checks that the thresholds are ordered.
func (c Config) Validate() error {
	if c.FreshnessWindow <= 0 {
		return fmt.Errorf("%w: freshness window %g must be positive", ErrInvalidConfig, c.FreshnessWindow)
	}
	if !(0 < c.CongestionThreshold && c.CongestionThreshold < c.DensityThreshold) {
		return fmt.Errorf("%w: need 0 < congestion (%g) < density (%g)",
			ErrInvalidConfig, c.CongestionThreshold, c.DensityThreshold)
	}
	if c.SimulationStep < 0 {
		return fmt.Errorf("%w: negative simulation step %g", ErrInvalidConfig, c.SimulationStep)
	}
	return nil
}
