package phy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/vanet-simulator/internal/sched"
)

func TestChannelSwitchAtTimeZeroIsInitialisation(t *testing.T) {
	sim := sched.NewSimulator()
	p, _ := newTestPhy(t, sim, testConfig())

	require.NoError(t, p.SetChannelNumber(36))
	assert.Equal(t, uint16(36), p.ChannelNumber())
	assert.Equal(t, StateIdle, p.State())
	assert.InDelta(t, 5180, p.ChannelFrequencyMHz(), 1e-9)
}

func TestChannelSwitchRejectsChannelZero(t *testing.T) {
	sim := sched.NewSimulator()
	p, _ := newTestPhy(t, sim, testConfig())
	assert.ErrorIs(t, p.SetChannelNumber(0), ErrInvalidChannelNumber)
}

func TestChannelSwitchFromIdle(t *testing.T) {
	sim := sched.NewSimulator()
	p, _ := newTestPhy(t, sim, testConfig())
	sim.AdvanceTo(time.Millisecond)

	require.NoError(t, p.SetChannelNumber(2))
	assert.Equal(t, StateSwitching, p.State())
	assert.Equal(t, uint16(2), p.ChannelNumber())
	assert.Equal(t, 250*time.Microsecond, p.DelayUntilIdle())

	sim.AdvanceTo(time.Millisecond + 250*time.Microsecond)
	assert.Equal(t, StateIdle, p.State())
}

func TestChannelSwitchAbortsReception(t *testing.T) {
	sim := sched.NewSimulator()
	p, rec := newTestPhy(t, sim, testConfig())
	l := &stateListener{}
	p.RegisterListener(l)
	sim.AdvanceTo(time.Millisecond)

	p.StartReceivePacket(&Packet{ID: 1, Size: 100}, -80, ofdm6, PreambleLong)
	endRx := p.PendingReceptionEvent()
	sim.AdvanceTo(time.Millisecond + 30*time.Microsecond)

	require.NoError(t, p.SetChannelNumber(3))
	assert.False(t, sim.IsPending(endRx))
	assert.Equal(t, []DropReason{DropSwitching}, rec.drops)
	assert.Equal(t, StateSwitching, p.State())
	assert.Equal(t, uint16(3), p.ChannelNumber())
	assert.Equal(t, 0, p.Interference().Len())
	assert.Equal(t, []string{"rx-start", "rx-error", "switch"}, l.events)

	sim.AdvanceTo(time.Second)
	assert.Empty(t, rec.rxOk)
	assert.Equal(t, StateIdle, p.State())
}

func TestChannelSwitchDuringTxIsDeferred(t *testing.T) {
	sim := sched.NewSimulator()
	p, _ := newTestPhy(t, sim, testConfig())
	start := time.Millisecond
	sim.AdvanceTo(start)

	p.SendPacket(&Packet{ID: 1, Size: 100}, ofdm6, PreambleLong)
	require.NoError(t, p.SetChannelNumber(5))
	assert.Equal(t, StateTx, p.State())
	assert.Equal(t, uint16(1), p.ChannelNumber())
	assert.True(t, p.PendingChannelSwitch())

	sim.AdvanceTo(start + frame100)
	assert.Equal(t, StateSwitching, p.State())
	assert.Equal(t, uint16(5), p.ChannelNumber())
	assert.False(t, p.PendingChannelSwitch())
}

func TestLatestDeferredChannelSwitchWins(t *testing.T) {
	sim := sched.NewSimulator()
	p, _ := newTestPhy(t, sim, testConfig())
	sim.AdvanceTo(time.Millisecond)

	p.SendPacket(&Packet{ID: 1, Size: 100}, ofdm6, PreambleLong)
	require.NoError(t, p.SetChannelNumber(5))
	require.NoError(t, p.SetChannelNumber(6))

	sim.AdvanceTo(time.Second)
	assert.Equal(t, uint16(6), p.ChannelNumber())
}

func TestChannelSwitchWhileSwitchingPanics(t *testing.T) {
	sim := sched.NewSimulator()
	p, _ := newTestPhy(t, sim, testConfig())
	sim.AdvanceTo(time.Millisecond)

	require.NoError(t, p.SetChannelNumber(2))
	assert.Panics(t, func() { _ = p.SetChannelNumber(3) })
}

func TestArrivalDuringSwitchingPrimesCca(t *testing.T) {
	sim := sched.NewSimulator()
	p, rec := newTestPhy(t, sim, testConfig())
	start := time.Millisecond
	sim.AdvanceTo(start)

	require.NoError(t, p.SetChannelNumber(2))
	p.StartReceivePacket(&Packet{ID: 1, Size: 100}, -80, ofdm6, PreambleLong)

	assert.Equal(t, []DropReason{DropSwitching}, rec.drops)
	assert.Equal(t, StateSwitching, p.State())

	// The frame outlasts the switch, so the medium reads busy afterwards.
	sim.AdvanceTo(start + 250*time.Microsecond)
	assert.Equal(t, StateIdle, p.State(), "frame ends before switching completes")

	sim2 := sched.NewSimulator()
	p2, _ := newTestPhy(t, sim2, testConfig())
	sim2.AdvanceTo(start)
	require.NoError(t, p2.SetChannelNumber(2))
	p2.StartReceivePacket(&Packet{ID: 2, Size: 1000}, -80, ofdm6, PreambleLong)
	sim2.AdvanceTo(start + 250*time.Microsecond)
	assert.Equal(t, StateCcaBusy, p2.State())
}
