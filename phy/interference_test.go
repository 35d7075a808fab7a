package phy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/vanet-simulator/internal/sched"
)

func TestEnergyDurationSumsOverlappingSignals(t *testing.T) {
	sim := sched.NewSimulator()
	in := NewInterference(sim)

	// Two signals of 1 nW each; only their sum clears a 1.5 nW threshold.
	in.Add(100, ofdm6, PreambleLong, 100*time.Microsecond, 1e-9)
	sim.AdvanceTo(40 * time.Microsecond)
	in.Add(100, ofdm6, PreambleLong, 100*time.Microsecond, 1e-9)

	sim.AdvanceTo(50 * time.Microsecond)
	assert.Equal(t, 50*time.Microsecond, in.EnergyDuration(1.5e-9))
	assert.Equal(t, 90*time.Microsecond, in.EnergyDuration(0.5e-9))
	assert.Zero(t, in.EnergyDuration(3e-9))
}

func TestEnergyDurationAtThresholdIsNotAbove(t *testing.T) {
	sim := sched.NewSimulator()
	in := NewInterference(sim)
	in.Add(100, ofdm6, PreambleLong, 10*time.Microsecond, DbmToW(-99))
	assert.Zero(t, in.EnergyDuration(DbmToW(-99)))
	assert.Equal(t, 10*time.Microsecond, in.EnergyDuration(DbmToW(-99.5)))
}

func TestEnergyDurationEndsWhenSumDropsToThreshold(t *testing.T) {
	sim := sched.NewSimulator()
	in := NewInterference(sim)
	in.Add(100, ofdm6, PreambleLong, 30*time.Microsecond, 1e-9)
	in.Add(100, ofdm6, PreambleLong, 10*time.Microsecond, 1e-9)
	// After 10 µs only 1 nW remains, which equals the threshold.
	assert.Equal(t, 10*time.Microsecond, in.EnergyDuration(1e-9))
}

func TestExpiredEventsAreSwept(t *testing.T) {
	sim := sched.NewSimulator()
	in := NewInterference(sim)
	for range 10 {
		in.Add(100, ofdm6, PreambleLong, 10*time.Microsecond, 1e-9)
		sim.AdvanceTo(sim.Now() + 20*time.Microsecond)
	}
	in.Add(100, ofdm6, PreambleLong, 10*time.Microsecond, 1e-9)
	assert.Equal(t, 1, in.Len())
}

func TestSweepKeepsInterferersOfActiveReception(t *testing.T) {
	sim := sched.NewSimulator()
	in := NewInterference(sim)

	rx := in.Add(100, ofdm6, PreambleLong, frame100, 1e-11)
	in.NotifyRxStart(rx)
	sim.AdvanceTo(20 * time.Microsecond)
	in.Add(10, ofdm6, PreambleLong, 10*time.Microsecond, 1e-12)
	sim.AdvanceTo(100 * time.Microsecond)
	in.Add(10, ofdm6, PreambleLong, 10*time.Microsecond, 1e-12)

	assert.Equal(t, 3, in.Len())
}

func TestCalculateSnrPerWithoutInterference(t *testing.T) {
	sim := sched.NewSimulator()
	in := NewInterference(sim)
	in.SetNoiseFigure(1)

	h := in.Add(100, ofdm6, PreambleLong, frame100, 1e-11)
	sim.AdvanceTo(frame100)
	snr, per := in.CalculateSnrPer(h)

	noise := boltzmann * noiseTemperature * 20e6
	assert.InDelta(t, 1e-11/noise, snr, 1e-6)
	assert.Less(t, per, 1e-6)
}

func TestCalculateSnrPerSeesLateInterferer(t *testing.T) {
	sim := sched.NewSimulator()
	in := NewInterference(sim)
	in.SetErrorRateModel(ThresholdErrorRateModel{MinSnrDb: 3})

	h := in.Add(100, ofdm6, PreambleLong, frame100, 1e-11)
	in.NotifyRxStart(h)
	sim.AdvanceTo(100 * time.Microsecond)
	in.Add(100, ofdm6, PreambleLong, frame100, 1e-11)

	sim.AdvanceTo(frame100)
	snr, per := in.CalculateSnrPer(h)

	// The reported SNR uses the interference present at the start.
	assert.Greater(t, RatioToDb(snr), 3.0)
	// Equal-power interference during the payload breaks the frame.
	assert.Equal(t, 1.0, per)
}

func TestCalculateSnrPerAtWrongTimePanics(t *testing.T) {
	sim := sched.NewSimulator()
	in := NewInterference(sim)
	h := in.Add(100, ofdm6, PreambleLong, frame100, 1e-11)
	assert.Panics(t, func() { in.CalculateSnrPer(h) })
}

func TestRetireAndEraseEvents(t *testing.T) {
	sim := sched.NewSimulator()
	in := NewInterference(sim)

	h := in.Add(100, ofdm6, PreambleLong, frame100, 1e-9)
	in.NotifyRxStart(h)
	in.Add(100, ofdm6, PreambleLong, frame100, 1e-9)

	in.Retire(h)
	_, ok := in.Event(h)
	assert.False(t, ok)
	assert.False(t, in.Receiving())
	require.Equal(t, 1, in.Len())

	in.EraseEvents()
	assert.Equal(t, 0, in.Len())
	assert.Zero(t, in.EnergyDuration(1e-15))
}
