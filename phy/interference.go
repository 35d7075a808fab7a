package phy

import (
	"sort"
	"time"

	"github.com/signalsfoundry/vanet-simulator/timectrl"
)

const (
	boltzmann = 1.3803e-23
	// noiseTemperature is the reference temperature of the thermal noise floor.
	noiseTemperature = 290.0
)

// EventHandle identifies an event tracked by an Interference accumulator.
type EventHandle uint64

// SignalEvent is one received signal as seen by the accumulator.
type SignalEvent struct {
	Size     uint32
	TxVector TxVector
	Preamble Preamble
	RxPowerW float64
	Start    time.Duration
	End      time.Duration
}

// Duration returns the on-air time of the event.
func (e SignalEvent) Duration() time.Duration { return e.End - e.Start }

type niChange struct {
	at    time.Duration
	delta float64
}

// Interference accumulates the energy of overlapping signals on a channel.
//
// Events live in an arena keyed by handle. Events whose end time has passed
// are swept on Add and EnergyDuration, except while a reception is active:
// then anything that overlapped the reception is kept until NotifyRxEnd so
// its SNR can still account for it.
type Interference struct {
	clock       timectrl.SimClock
	noiseFigure float64 // linear
	model       ErrorRateModel

	next   EventHandle
	events map[EventHandle]SignalEvent

	rxing    bool
	rxHandle EventHandle
}

// NewInterference returns an accumulator reading time from clock.
func NewInterference(clock timectrl.SimClock) *Interference {
	return &Interference{
		clock:       clock,
		noiseFigure: DbToRatio(7),
		model:       AwgnErrorRateModel{},
		events:      make(map[EventHandle]SignalEvent),
	}
}

// SetNoiseFigure sets the receiver noise figure as a linear ratio.
func (in *Interference) SetNoiseFigure(ratio float64) { in.noiseFigure = ratio }

// NoiseFigure returns the receiver noise figure as a linear ratio.
func (in *Interference) NoiseFigure() float64 { return in.noiseFigure }

// SetErrorRateModel replaces the model used by CalculateSnrPer.
func (in *Interference) SetErrorRateModel(m ErrorRateModel) { in.model = m }

// ErrorRateModel returns the model used by CalculateSnrPer.
func (in *Interference) ErrorRateModel() ErrorRateModel { return in.model }

// Add registers a signal starting now and returns its handle.
func (in *Interference) Add(size uint32, v TxVector, preamble Preamble, duration time.Duration, rxPowerW float64) EventHandle {
	now := in.clock.Now()
	in.sweep(now)
	in.next++
	h := in.next
	in.events[h] = SignalEvent{
		Size:     size,
		TxVector: v,
		Preamble: preamble,
		RxPowerW: rxPowerW,
		Start:    now,
		End:      now + duration,
	}
	return h
}

// Event returns a tracked event.
func (in *Interference) Event(h EventHandle) (SignalEvent, bool) {
	e, ok := in.events[h]
	return e, ok
}

// Len returns the number of tracked events.
func (in *Interference) Len() int { return len(in.events) }

// sweep drops events that can no longer contribute energy.
func (in *Interference) sweep(now time.Duration) {
	horizon := now
	if in.rxing {
		if rx, ok := in.events[in.rxHandle]; ok && rx.Start < horizon {
			horizon = rx.Start
		}
	}
	for h, e := range in.events {
		if h == in.rxHandle && in.rxing {
			continue
		}
		if e.End <= horizon {
			delete(in.events, h)
		}
	}
}

// EnergyDuration returns how long, from now, the summed power of all
// tracked signals stays above thresholdW. Zero if it is already at or below.
func (in *Interference) EnergyDuration(thresholdW float64) time.Duration {
	now := in.clock.Now()
	in.sweep(now)

	power := 0.0
	var changes []niChange
	for _, e := range in.events {
		if e.End <= now {
			continue
		}
		if e.Start <= now {
			power += e.RxPowerW
		} else {
			changes = append(changes, niChange{at: e.Start, delta: e.RxPowerW})
		}
		changes = append(changes, niChange{at: e.End, delta: -e.RxPowerW})
	}
	if power <= thresholdW {
		return 0
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].at < changes[j].at })

	for i := 0; i < len(changes); {
		at := changes[i].at
		for ; i < len(changes) && changes[i].at == at; i++ {
			power += changes[i].delta
		}
		if power <= thresholdW {
			return at - now
		}
	}
	// Every tracked signal has ended by the last change.
	return 0
}

// thermalNoiseW returns k·T·B·NF for a channel of bandwidthHz.
func (in *Interference) thermalNoiseW(bandwidthHz uint32) float64 {
	return boltzmann * noiseTemperature * float64(bandwidthHz) * in.noiseFigure
}

// interferenceChanges returns the power from other events already present
// at the start of e, and the ordered changes strictly inside (e.Start, e.End).
func (in *Interference) interferenceChanges(h EventHandle, e SignalEvent) (float64, []niChange) {
	initial := 0.0
	var changes []niChange
	for oh, o := range in.events {
		if oh == h || o.End <= e.Start || o.Start >= e.End {
			continue
		}
		if o.Start <= e.Start {
			initial += o.RxPowerW
		} else {
			changes = append(changes, niChange{at: o.Start, delta: o.RxPowerW})
		}
		if o.End < e.End {
			changes = append(changes, niChange{at: o.End, delta: -o.RxPowerW})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].at < changes[j].at })
	return initial, changes
}

// CalculateSnrPer returns the SNR of event h against the noise floor plus the
// interference present when it started, and the packet error rate over its
// PLCP header and payload given every interference change during it.
//
// It must be called once, at the event's end time.
func (in *Interference) CalculateSnrPer(h EventHandle) (snr, per float64) {
	e, ok := in.events[h]
	invariant(ok, "CalculateSnrPer", "unknown event handle %d", h)
	now := in.clock.Now()
	invariant(now == e.End, "CalculateSnrPer", "called at %v for event ending at %v", now, e.End)

	mode := e.TxVector.Mode
	noise := in.thermalNoiseW(mode.BandwidthHz)
	initial, changes := in.interferenceChanges(h, e)
	snr = e.RxPowerW / (noise + initial)

	headerMode := plcpHeaderMode(mode, e.Preamble)
	headerStart := e.Start + PreambleDuration(e.TxVector, e.Preamble)
	payloadStart := headerStart + HeaderDuration(e.TxVector, e.Preamble)

	psr := 1.0
	interference := initial
	from := e.Start
	for i := 0; i <= len(changes); i++ {
		to := e.End
		if i < len(changes) {
			to = changes[i].at
		}
		if to > from {
			chunkSnr := e.RxPowerW / (noise + interference)
			psr *= in.chunkSuccess(headerMode, chunkSnr, overlap(from, to, headerStart, payloadStart))
			psr *= in.chunkSuccess(mode, chunkSnr, overlap(from, to, payloadStart, e.End))
			from = to
		}
		if i < len(changes) {
			interference += changes[i].delta
		}
	}
	return snr, 1 - psr
}

func (in *Interference) chunkSuccess(mode Mode, snr float64, d time.Duration) float64 {
	if d <= 0 {
		return 1
	}
	nbits := uint64(d.Seconds() * float64(mode.DataRate))
	return in.model.ChunkSuccessRate(mode, snr, nbits)
}

// overlap returns the length of [a0, a1) ∩ [b0, b1).
func overlap(a0, a1, b0, b1 time.Duration) time.Duration {
	lo, hi := max(a0, b0), min(a1, b1)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// NotifyRxStart marks h as the signal being demodulated.
func (in *Interference) NotifyRxStart(h EventHandle) {
	in.rxing = true
	in.rxHandle = h
}

// NotifyRxEnd ends the active reception.
func (in *Interference) NotifyRxEnd() {
	in.rxing = false
	in.rxHandle = 0
}

// Receiving reports whether a reception is active.
func (in *Interference) Receiving() bool { return in.rxing }

// Retire removes h from the accumulator. Retiring the active reception also
// ends it.
func (in *Interference) Retire(h EventHandle) {
	if in.rxing && in.rxHandle == h {
		in.NotifyRxEnd()
	}
	delete(in.events, h)
}

// EraseEvents forgets every tracked event and the active reception.
func (in *Interference) EraseEvents() {
	clear(in.events)
	in.NotifyRxEnd()
}
