package phy

import (
	"context"
	"fmt"
	"time"

	"github.com/iti/rngstream"

	"github.com/signalsfoundry/vanet-simulator/internal/logging"
	"github.com/signalsfoundry/vanet-simulator/internal/sched"
)

// Packet is an opaque frame carried over the air.
type Packet struct {
	ID      uint64
	Size    uint32 // bytes
	Payload any
}

// RxInfo describes a successfully received frame.
type RxInfo struct {
	Mode            Mode
	Preamble        Preamble
	Size            uint32
	FrequencyMHz    float64
	Channel         uint16
	ShortPreamble   bool
	DataRate500Kbps uint32
	SignalDbm       float64
	NoiseDbm        float64
	Snr             float64
}

// TxInfo describes a frame as it starts transmission.
type TxInfo struct {
	Mode            Mode
	Preamble        Preamble
	Size            uint32
	FrequencyMHz    float64
	Channel         uint16
	ShortPreamble   bool
	DataRate500Kbps uint32
	PowerLevel      uint8
	PowerDbm        float64
	Duration        time.Duration
}

// Observer receives per-frame notifications from a PHY.
type Observer interface {
	RxBegin(p *Packet)
	RxEnd(p *Packet, info RxInfo)
	RxDrop(p *Packet, reason DropReason)
	TxBegin(p *Packet, info TxInfo)
}

// MetricsRecorder is the hook PHYs report counters through.
type MetricsRecorder interface {
	ObserveRxOk(snrDb float64)
	IncRxDrop(reason string)
	IncTx()
	IncStateTransition(from, to string)
	IncChannelSwitch()
}

type noopMetrics struct{}

func (noopMetrics) ObserveRxOk(float64)               {}
func (noopMetrics) IncRxDrop(string)                  {}
func (noopMetrics) IncTx()                            {}
func (noopMetrics) IncStateTransition(string, string) {}
func (noopMetrics) IncChannelSwitch()                 {}

// RandomStream yields uniform draws in [0, 1).
type RandomStream interface {
	RandU01() float64
}

// RxOkCallback is invoked with every frame received without error.
type RxOkCallback func(p *Packet, snr float64, mode Mode, preamble Preamble)

// RxErrorCallback is invoked with every frame that failed demodulation.
type RxErrorCallback func(p *Packet, snr float64)

// Option configures a Phy.
type Option func(*Phy)

// WithLogger sets the logger; the default drops everything.
func WithLogger(l logging.Logger) Option {
	return func(p *Phy) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMetrics sets the metrics hook.
func WithMetrics(m MetricsRecorder) Option {
	return func(p *Phy) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithRandomStream replaces the per-PHY random stream.
func WithRandomStream(r RandomStream) Option {
	return func(p *Phy) {
		if r != nil {
			p.random = r
		}
	}
}

// WithErrorRateModel replaces the default AWGN error rate model.
func WithErrorRateModel(m ErrorRateModel) Option {
	return func(p *Phy) {
		if m != nil {
			p.interference.SetErrorRateModel(m)
		}
	}
}

// Phy models a half-duplex Wi-Fi radio on a discrete-event scheduler.
// All methods must be called from the scheduler's callback stream.
type Phy struct {
	id      string
	cfg     Config
	sched   sched.EventScheduler
	log     logging.Logger
	metrics MetricsRecorder
	random  RandomStream

	interference *Interference
	state        *stateHelper
	channel      Channel

	edThresholdW  float64
	ccaThresholdW float64
	startFreqMHz  float64
	modes         []Mode

	endRxEvent    string
	rxHandle      EventHandle
	rxPacket      *Packet
	pendingSwitch string

	rxOk      RxOkCallback
	rxError   RxErrorCallback
	observers []Observer
}

// New builds a PHY from cfg. The configuration is validated and the
// standard's rate set installed.
func New(id string, cfg Config, s sched.EventScheduler, opts ...Option) (*Phy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("phy %s: %w", id, err)
	}
	p := &Phy{
		id:           id,
		cfg:          cfg,
		sched:        s,
		log:          logging.Noop(),
		metrics:      noopMetrics{},
		interference: NewInterference(s),
		state:        newStateHelper(s),
	}
	p.interference.SetNoiseFigure(DbToRatio(cfg.RxNoiseFigureDb))
	p.edThresholdW = DbmToW(cfg.EnergyDetectionThresholdDbm)
	p.ccaThresholdW = DbmToW(cfg.CcaThresholdDbm)
	for _, o := range opts {
		o(p)
	}
	if p.random == nil {
		p.random = rngstream.New("phy-" + id)
	}
	p.log = p.log.With(logging.String("phy", id))
	p.state.onChange = func(from, to State) {
		p.metrics.IncStateTransition(from.String(), to.String())
	}
	if err := p.ConfigureStandard(cfg.Standard); err != nil {
		return nil, fmt.Errorf("phy %s: %w", id, err)
	}
	return p, nil
}

// ConfigureStandard installs the starting frequency and rate set of std.
func (p *Phy) ConfigureStandard(std Standard) error {
	freq, modes, err := standardParams(std)
	if err != nil {
		return err
	}
	p.cfg.Standard = std
	p.startFreqMHz = freq
	p.modes = modes
	return nil
}

// ID returns the PHY identifier.
func (p *Phy) ID() string { return p.id }

// Config returns the current configuration.
func (p *Phy) Config() Config { return p.cfg }

// SetChannel attaches the PHY to a medium.
func (p *Phy) SetChannel(ch Channel) { p.channel = ch }

// SetReceiveOkCallback registers the callback for successful receptions.
func (p *Phy) SetReceiveOkCallback(cb RxOkCallback) { p.rxOk = cb }

// SetReceiveErrorCallback registers the callback for failed receptions.
func (p *Phy) SetReceiveErrorCallback(cb RxErrorCallback) { p.rxError = cb }

// RegisterListener adds a state listener.
func (p *Phy) RegisterListener(l Listener) { p.state.listeners = append(p.state.listeners, l) }

// AddObserver adds a per-frame observer.
func (p *Phy) AddObserver(o Observer) { p.observers = append(p.observers, o) }

// Interference exposes the PHY's accumulator.
func (p *Phy) Interference() *Interference { return p.interference }

// NModes returns the size of the installed rate set.
func (p *Phy) NModes() int { return len(p.modes) }

// Mode returns the i-th mode of the rate set.
func (p *Phy) Mode(i int) Mode { return p.modes[i] }

// ChannelNumber returns the current channel number.
func (p *Phy) ChannelNumber() uint16 { return p.cfg.ChannelNumber }

// ChannelFrequencyMHz returns the centre frequency of the current channel.
func (p *Phy) ChannelFrequencyMHz() float64 {
	return p.startFreqMHz + 5*float64(p.cfg.ChannelNumber)
}

// PowerDbm returns the transmit power of level before antenna gain.
func (p *Phy) PowerDbm(level uint8) float64 { return p.cfg.PowerDbm(level) }

// State returns the current radio state.
func (p *Phy) State() State { return p.state.state() }

// IsStateIdle reports whether the radio is idle.
func (p *Phy) IsStateIdle() bool { return p.State() == StateIdle }

// IsStateCcaBusy reports whether the medium is sensed busy without a
// synchronized reception.
func (p *Phy) IsStateCcaBusy() bool { return p.State() == StateCcaBusy }

// IsStateBusy reports whether the radio is in any state other than idle.
func (p *Phy) IsStateBusy() bool { return p.State() != StateIdle }

// IsStateRx reports whether a reception is in progress.
func (p *Phy) IsStateRx() bool { return p.State() == StateRx }

// IsStateTx reports whether a transmission is in progress.
func (p *Phy) IsStateTx() bool { return p.State() == StateTx }

// IsStateSwitching reports whether a channel switch is in progress.
func (p *Phy) IsStateSwitching() bool { return p.State() == StateSwitching }

// StateDuration returns how long the radio has been in its current state.
func (p *Phy) StateDuration() time.Duration { return p.state.stateDuration() }

// DelayUntilIdle returns the time left before the radio becomes idle,
// zero when it already is.
func (p *Phy) DelayUntilIdle() time.Duration { return p.state.delayUntilIdle() }

// LastRxStartTime returns when the most recent synchronized reception
// began.
func (p *Phy) LastRxStartTime() time.Duration { return p.state.startRx }

// PendingReceptionEvent returns the scheduler id of the pending end of
// reception, or "" if none.
func (p *Phy) PendingReceptionEvent() string { return p.endRxEvent }

// StartReceivePacket handles a signal that starts arriving now with
// rxPowerDbm at the antenna.
func (p *Phy) StartReceivePacket(pkt *Packet, rxPowerDbm float64, v TxVector, preamble Preamble) {
	rxPowerDbm += p.cfg.RxGainDb
	rxPowerW := DbmToW(rxPowerDbm)
	d := CalculateTxDuration(pkt.Size, v, preamble)
	now := p.sched.Now()

	h := p.interference.Add(pkt.Size, v, preamble, d, rxPowerW)

	s := p.state.state()
	dec := decideArrival(s, p.state.delayUntilIdle(), d, rxPowerW, p.edThresholdW)
	if !dec.Sync {
		p.log.Debug(context.Background(), "drop packet",
			logging.String("reason", dec.Reason.String()),
			logging.String("state", s.String()),
			logging.Float64("rx_power_dbm", rxPowerDbm),
		)
		p.notifyDrop(pkt, dec.Reason)
		if dec.CheckCca {
			p.maybeCcaBusy()
		}
		return
	}

	invariant(!p.sched.IsPending(p.endRxEvent), "StartReceivePacket", "end of reception already scheduled")
	p.log.Debug(context.Background(), "sync to signal",
		logging.Float64("rx_power_dbm", rxPowerDbm),
		logging.Duration("duration", d),
	)
	p.state.switchToRx(d)
	p.interference.NotifyRxStart(h)
	p.rxHandle, p.rxPacket = h, pkt
	for _, o := range p.observers {
		o.RxBegin(pkt)
	}
	p.endRxEvent = p.sched.Schedule(now+d, func() { p.endReceive(pkt, h) })
}

func (p *Phy) maybeCcaBusy() {
	if d := p.interference.EnergyDuration(p.ccaThresholdW); d > 0 {
		p.state.switchMaybeToCcaBusy(d)
	}
}

func (p *Phy) endReceive(pkt *Packet, h EventHandle) {
	now := p.sched.Now()
	e, ok := p.interference.Event(h)
	invariant(ok, "endReceive", "event %d no longer tracked", h)
	invariant(p.state.state() == StateRx, "endReceive", "state is %s", p.state.state())
	invariant(e.End == now, "endReceive", "completion at %v for reception ending at %v", now, e.End)

	p.endRxEvent = ""
	snr, per := p.interference.CalculateSnrPer(h)
	p.interference.Retire(h)
	p.rxHandle, p.rxPacket = 0, nil

	draw := p.random.RandU01()
	if draw > per {
		info := RxInfo{
			Mode:            e.TxVector.Mode,
			Preamble:        e.Preamble,
			Size:            e.Size,
			FrequencyMHz:    p.ChannelFrequencyMHz(),
			Channel:         p.cfg.ChannelNumber,
			ShortPreamble:   e.Preamble == PreambleShort,
			DataRate500Kbps: uint32(e.TxVector.Mode.DataRate / 500_000),
			SignalDbm:       WToDbm(e.RxPowerW),
			NoiseDbm:        WToDbm(e.RxPowerW/snr) - p.cfg.RxNoiseFigureDb,
			Snr:             snr,
		}
		p.log.Debug(context.Background(), "receive ok",
			logging.Float64("snr_db", RatioToDb(snr)),
			logging.Float64("per", per),
		)
		p.metrics.ObserveRxOk(RatioToDb(snr))
		for _, o := range p.observers {
			o.RxEnd(pkt, info)
		}
		p.state.switchFromRxEndOk()
		if p.rxOk != nil {
			p.rxOk(pkt, snr, e.TxVector.Mode, e.Preamble)
		}
		return
	}

	p.log.Debug(context.Background(), "receive failed",
		logging.Float64("snr_db", RatioToDb(snr)),
		logging.Float64("per", per),
	)
	p.notifyDrop(pkt, DropDemodulation)
	p.state.switchFromRxEndError()
	if p.rxError != nil {
		p.rxError(pkt, snr)
	}
}

// abortReception cancels the in-flight reception and undoes everything its
// completion would have done.
func (p *Phy) abortReception(reason DropReason) {
	p.sched.Cancel(p.endRxEvent)
	p.endRxEvent = ""
	if p.rxPacket != nil {
		p.notifyDrop(p.rxPacket, reason)
	}
	p.interference.Retire(p.rxHandle)
	p.rxHandle, p.rxPacket = 0, nil
	p.state.abortRx()
}

// SendPacket starts transmitting pkt now. The PHY must be neither
// transmitting nor switching channel; an ongoing reception is abandoned.
func (p *Phy) SendPacket(pkt *Packet, v TxVector, preamble Preamble) {
	if decideTransmit(p.state.state()) {
		p.abortReception(DropTxBusy)
	}
	d := CalculateTxDuration(pkt.Size, v, preamble)
	powerDbm := p.cfg.PowerDbm(v.TxPowerLevel)

	p.state.switchToTx(d)
	p.metrics.IncTx()
	info := TxInfo{
		Mode:            v.Mode,
		Preamble:        preamble,
		Size:            pkt.Size,
		FrequencyMHz:    p.ChannelFrequencyMHz(),
		Channel:         p.cfg.ChannelNumber,
		ShortPreamble:   preamble == PreambleShort,
		DataRate500Kbps: uint32(v.Mode.DataRate / 500_000),
		PowerLevel:      v.TxPowerLevel,
		PowerDbm:        powerDbm + p.cfg.TxGainDb,
		Duration:        d,
	}
	for _, o := range p.observers {
		o.TxBegin(pkt, info)
	}
	if p.channel != nil {
		p.channel.Send(p, pkt, powerDbm+p.cfg.TxGainDb, v, preamble)
	}
}

func (p *Phy) notifyDrop(pkt *Packet, reason DropReason) {
	p.metrics.IncRxDrop(reason.String())
	for _, o := range p.observers {
		o.RxDrop(pkt, reason)
	}
}
