package phy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/vanet-simulator/internal/sched"
)

// scriptedStream replays vals in order, then keeps returning the last one.
type scriptedStream struct {
	vals []float64
	i    int
}

func (s *scriptedStream) RandU01() float64 {
	if len(s.vals) == 0 {
		return 0.5
	}
	v := s.vals[min(s.i, len(s.vals)-1)]
	s.i++
	return v
}

type recorder struct {
	rxBegin int
	rxOk    []*Packet
	rxInfo  []RxInfo
	drops   []DropReason
	tx      []TxInfo
}

func (r *recorder) RxBegin(*Packet) { r.rxBegin++ }
func (r *recorder) RxEnd(p *Packet, info RxInfo) {
	r.rxOk = append(r.rxOk, p)
	r.rxInfo = append(r.rxInfo, info)
}
func (r *recorder) RxDrop(_ *Packet, reason DropReason) { r.drops = append(r.drops, reason) }
func (r *recorder) TxBegin(_ *Packet, info TxInfo)      { r.tx = append(r.tx, info) }

// testConfig removes antenna gains so arrival powers are taken as given.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RxGainDb = 0
	cfg.TxGainDb = 0
	return cfg
}

func newTestPhy(t *testing.T, sim *sched.Simulator, cfg Config, opts ...Option) (*Phy, *recorder) {
	t.Helper()
	opts = append([]Option{
		WithRandomStream(&scriptedStream{vals: []float64{0.5}}),
		WithErrorRateModel(ThresholdErrorRateModel{MinSnrDb: 0}),
	}, opts...)
	p, err := New("v1", cfg, sim, opts...)
	require.NoError(t, err)
	rec := &recorder{}
	p.AddObserver(rec)
	return p, rec
}

var ofdm6 = TxVector{Mode: OfdmRate6Mbps}

// 100 bytes at 6 Mb/s: 16 µs preamble + 4 µs header + 35 symbols of 4 µs.
const frame100 = 160 * time.Microsecond

func TestCalculateTxDurationOfdm6(t *testing.T) {
	assert.Equal(t, frame100, CalculateTxDuration(100, ofdm6, PreambleLong))
}

func TestBelowThresholdWhileIdleStaysIdle(t *testing.T) {
	sim := sched.NewSimulator()
	p, rec := newTestPhy(t, sim, testConfig())
	sim.AdvanceTo(time.Millisecond)

	p.StartReceivePacket(&Packet{ID: 1, Size: 100}, -100, ofdm6, PreambleLong)

	assert.Equal(t, []DropReason{DropBelowThreshold}, rec.drops)
	assert.Equal(t, StateIdle, p.State())
	assert.Empty(t, p.PendingReceptionEvent())
}

func TestDefaultGainLiftsArrivalOnlyToCcaThreshold(t *testing.T) {
	sim := sched.NewSimulator()
	p, rec := newTestPhy(t, sim, DefaultConfig())
	sim.AdvanceTo(time.Millisecond)

	// -100 dBm plus 1 dB of rx gain lands exactly on the -99 dBm CCA threshold.
	p.StartReceivePacket(&Packet{ID: 1, Size: 100}, -100, ofdm6, PreambleLong)

	assert.Equal(t, []DropReason{DropBelowThreshold}, rec.drops)
	assert.Equal(t, StateIdle, p.State())
	assert.Zero(t, p.DelayUntilIdle())
}

func TestBelowEdAboveCcaTurnsCcaBusy(t *testing.T) {
	sim := sched.NewSimulator()
	p, rec := newTestPhy(t, sim, testConfig())
	sim.AdvanceTo(time.Millisecond)

	p.StartReceivePacket(&Packet{ID: 1, Size: 100}, -98, ofdm6, PreambleLong)

	assert.Equal(t, []DropReason{DropBelowThreshold}, rec.drops)
	assert.Equal(t, StateCcaBusy, p.State())
	assert.Equal(t, frame100, p.DelayUntilIdle())

	sim.AdvanceTo(time.Millisecond + frame100)
	assert.Equal(t, StateIdle, p.State())
}

func TestReceptionCompletesOnceAtEndTime(t *testing.T) {
	sim := sched.NewSimulator()
	p, rec := newTestPhy(t, sim, testConfig())
	start := time.Millisecond
	sim.AdvanceTo(start)

	var okAt []time.Duration
	p.SetReceiveOkCallback(func(_ *Packet, _ float64, mode Mode, _ Preamble) {
		okAt = append(okAt, sim.Now())
		assert.Equal(t, OfdmRate6Mbps, mode)
	})

	pkt := &Packet{ID: 7, Size: 100}
	p.StartReceivePacket(pkt, -80, ofdm6, PreambleLong)
	require.Equal(t, StateRx, p.State())
	assert.Equal(t, 1, rec.rxBegin)
	assert.Equal(t, start, p.LastRxStartTime())

	sim.AdvanceTo(start + frame100 - time.Nanosecond)
	assert.Empty(t, okAt)
	sim.Run()

	require.Equal(t, []time.Duration{start + frame100}, okAt)
	require.Len(t, rec.rxInfo, 1)
	info := rec.rxInfo[0]
	assert.InDelta(t, -80, info.SignalDbm, 1e-9)
	assert.Equal(t, uint32(12), info.DataRate500Kbps)
	assert.InDelta(t, 5005, info.FrequencyMHz, 1e-9)
	assert.Less(t, info.NoiseDbm, info.SignalDbm)
	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, 0, p.Interference().Len())
}

func TestArrivalDuringRxIsDroppedAndKeepsCompletion(t *testing.T) {
	sim := sched.NewSimulator()
	p, rec := newTestPhy(t, sim, testConfig())
	start := time.Millisecond
	sim.AdvanceTo(start)

	p.StartReceivePacket(&Packet{ID: 1, Size: 100}, -80, ofdm6, PreambleLong)
	endRx := p.PendingReceptionEvent()
	require.NotEmpty(t, endRx)

	sim.AdvanceTo(start + 50*time.Microsecond)
	p.StartReceivePacket(&Packet{ID: 2, Size: 100}, -70, ofdm6, PreambleLong)

	assert.Equal(t, []DropReason{DropRxBusy}, rec.drops)
	assert.Equal(t, endRx, p.PendingReceptionEvent())
	assert.Equal(t, StateRx, p.State())

	// The first frame completes at its own end time; the stronger
	// interferer makes it fail the threshold model.
	var errAt time.Duration
	p.SetReceiveErrorCallback(func(*Packet, float64) { errAt = sim.Now() })
	sim.AdvanceTo(start + frame100)
	assert.Equal(t, start+frame100, errAt)
	assert.Equal(t, []DropReason{DropRxBusy, DropDemodulation}, rec.drops)

	// The interferer outlasts the reception, so CCA stays busy until it ends.
	assert.Equal(t, StateCcaBusy, p.State())
	assert.Equal(t, 50*time.Microsecond, p.DelayUntilIdle())
}

func TestPerDrawDecidesOutcome(t *testing.T) {
	sim := sched.NewSimulator()
	stream := &scriptedStream{vals: []float64{0}}
	p, rec := newTestPhy(t, sim, testConfig(),
		WithRandomStream(stream),
		WithErrorRateModel(ThresholdErrorRateModel{MinSnrDb: 0}),
	)
	sim.AdvanceTo(time.Millisecond)

	// PER is zero and a zero draw does not exceed it.
	p.StartReceivePacket(&Packet{ID: 1, Size: 100}, -80, ofdm6, PreambleLong)
	sim.Run()
	assert.Empty(t, rec.rxOk)
	assert.Equal(t, []DropReason{DropDemodulation}, rec.drops)
}

func TestSendPacketAbortsReceptionWithoutResidue(t *testing.T) {
	sim := sched.NewSimulator()
	p, rec := newTestPhy(t, sim, testConfig())
	sim.AdvanceTo(time.Millisecond)

	p.StartReceivePacket(&Packet{ID: 1, Size: 100}, -80, ofdm6, PreambleLong)
	endRx := p.PendingReceptionEvent()

	sim.AdvanceTo(time.Millisecond + 40*time.Microsecond)
	p.SendPacket(&Packet{ID: 2, Size: 100}, ofdm6, PreambleLong)

	assert.False(t, sim.IsPending(endRx))
	assert.Equal(t, StateTx, p.State())
	assert.Equal(t, []DropReason{DropTxBusy}, rec.drops)
	assert.Equal(t, 0, p.Interference().Len())
	assert.False(t, p.Interference().Receiving())
	assert.Zero(t, p.Interference().EnergyDuration(1e-30))
	require.Len(t, rec.tx, 1)
	assert.InDelta(t, 16.0206, rec.tx[0].PowerDbm, 1e-9)

	sim.AdvanceTo(time.Second)
	assert.Empty(t, rec.rxOk)
	assert.Equal(t, StateIdle, p.State())
}

func TestArrivalDuringTxIsDropped(t *testing.T) {
	sim := sched.NewSimulator()
	p, rec := newTestPhy(t, sim, testConfig())
	sim.AdvanceTo(time.Millisecond)

	p.SendPacket(&Packet{ID: 1, Size: 100}, ofdm6, PreambleLong)
	p.StartReceivePacket(&Packet{ID: 2, Size: 10}, -60, ofdm6, PreambleLong)

	assert.Equal(t, []DropReason{DropTxBusy}, rec.drops)
	assert.Equal(t, StateTx, p.State())
}

func TestSendPacketWhileTransmittingPanics(t *testing.T) {
	sim := sched.NewSimulator()
	p, _ := newTestPhy(t, sim, testConfig())
	sim.AdvanceTo(time.Millisecond)

	p.SendPacket(&Packet{ID: 1, Size: 100}, ofdm6, PreambleLong)
	assert.Panics(t, func() { p.SendPacket(&Packet{ID: 2, Size: 100}, ofdm6, PreambleLong) })
}

func TestEarlyCompletionPanics(t *testing.T) {
	sim := sched.NewSimulator()
	p, _ := newTestPhy(t, sim, testConfig())
	sim.AdvanceTo(time.Millisecond)

	pkt := &Packet{ID: 1, Size: 100}
	p.StartReceivePacket(pkt, -80, ofdm6, PreambleLong)
	h := p.rxHandle

	defer func() {
		r := recover()
		require.NotNil(t, r)
		_, ok := r.(*InvariantError)
		assert.True(t, ok, "panic value %T", r)
	}()
	p.endReceive(pkt, h)
}

func TestPowerDbmLevels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TxPowerLevels = 5
	cfg.TxPowerStartDbm = 10
	cfg.TxPowerEndDbm = 20

	assert.Equal(t, 10.0, cfg.PowerDbm(0))
	assert.InDelta(t, 20.0, cfg.PowerDbm(4), 1e-12)
	prev := cfg.PowerDbm(0)
	for level := uint8(1); level < 5; level++ {
		cur := cfg.PowerDbm(level)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	assert.Panics(t, func() { cfg.PowerDbm(5) })
}

func TestPowerDbmDescendingRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TxPowerLevels = 3
	cfg.TxPowerStartDbm = 20
	cfg.TxPowerEndDbm = 10
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 20.0, cfg.PowerDbm(0))
	assert.InDelta(t, 15.0, cfg.PowerDbm(1), 1e-12)
	assert.InDelta(t, 10.0, cfg.PowerDbm(2), 1e-12)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	sim := sched.NewSimulator()

	cfg := DefaultConfig()
	cfg.TxPowerEndDbm = 20
	_, err := New("bad", cfg, sim)
	assert.ErrorIs(t, err, ErrInvalidTxPowerLevels)

	cfg = DefaultConfig()
	cfg.ChannelNumber = 0
	_, err = New("bad", cfg, sim)
	assert.ErrorIs(t, err, ErrInvalidChannelNumber)

	cfg = DefaultConfig()
	cfg.Standard = Standard(99)
	_, err = New("bad", cfg, sim)
	assert.ErrorIs(t, err, ErrUnknownStandard)
}

func TestListenersSeeStateChanges(t *testing.T) {
	sim := sched.NewSimulator()
	p, _ := newTestPhy(t, sim, testConfig())
	l := &stateListener{}
	p.RegisterListener(l)
	sim.AdvanceTo(time.Millisecond)

	p.StartReceivePacket(&Packet{ID: 1, Size: 100}, -80, ofdm6, PreambleLong)
	sim.Run()
	p.SendPacket(&Packet{ID: 2, Size: 100}, ofdm6, PreambleLong)

	assert.Equal(t, []string{"rx-start", "rx-ok", "tx-start"}, l.events)
}

type stateListener struct{ events []string }

func (l *stateListener) NotifyRxStart(time.Duration)           { l.events = append(l.events, "rx-start") }
func (l *stateListener) NotifyRxEndOk()                        { l.events = append(l.events, "rx-ok") }
func (l *stateListener) NotifyRxEndError()                     { l.events = append(l.events, "rx-error") }
func (l *stateListener) NotifyTxStart(time.Duration)           { l.events = append(l.events, "tx-start") }
func (l *stateListener) NotifyMaybeCcaBusyStart(time.Duration) { l.events = append(l.events, "cca") }
func (l *stateListener) NotifySwitchingStart(time.Duration)    { l.events = append(l.events, "switch") }
