package phy

import (
	"time"

	"github.com/signalsfoundry/vanet-simulator/timectrl"
)

// State is the radio state of a PHY.
type State int

const (
	StateIdle State = iota
	StateCcaBusy
	StateRx
	StateTx
	StateSwitching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateCcaBusy:
		return "CCA_BUSY"
	case StateRx:
		return "RX"
	case StateTx:
		return "TX"
	case StateSwitching:
		return "SWITCHING"
	default:
		return "UNKNOWN"
	}
}

// Listener is notified of PHY state changes, typically by the MAC.
type Listener interface {
	NotifyRxStart(duration time.Duration)
	NotifyRxEndOk()
	NotifyRxEndError()
	NotifyTxStart(duration time.Duration)
	NotifyMaybeCcaBusyStart(duration time.Duration)
	NotifySwitchingStart(duration time.Duration)
}

// stateHelper keeps the timestamps that define the current State. TX,
// RX and SWITCHING are tracked by their own end times; CCA busy is only
// reported when none of them applies.
type stateHelper struct {
	clock timectrl.SimClock

	rxing          bool
	endTx          time.Duration
	endRx          time.Duration
	endCcaBusy     time.Duration
	endSwitching   time.Duration
	startTx        time.Duration
	startRx        time.Duration
	startCcaBusy   time.Duration
	startSwitching time.Duration
	lastChange     time.Duration

	listeners []Listener
	onChange  func(from, to State)
}

func newStateHelper(clock timectrl.SimClock) *stateHelper {
	return &stateHelper{clock: clock}
}

func (h *stateHelper) state() State {
	now := h.clock.Now()
	switch {
	case h.endTx > now:
		return StateTx
	case h.rxing:
		return StateRx
	case h.endSwitching > now:
		return StateSwitching
	case h.endCcaBusy > now:
		return StateCcaBusy
	default:
		return StateIdle
	}
}

// delayUntilIdle returns how long the current busy condition lasts.
func (h *stateHelper) delayUntilIdle() time.Duration {
	now := h.clock.Now()
	var d time.Duration
	switch h.state() {
	case StateRx:
		d = h.endRx - now
	case StateTx:
		d = h.endTx - now
	case StateCcaBusy:
		d = h.endCcaBusy - now
	case StateSwitching:
		d = h.endSwitching - now
	}
	return max(d, 0)
}

// stateDuration returns how long the PHY has been in its current state.
func (h *stateHelper) stateDuration() time.Duration {
	return h.clock.Now() - h.lastChange
}

func (h *stateHelper) transition(from State) {
	h.lastChange = h.clock.Now()
	if to := h.state(); to != from && h.onChange != nil {
		h.onChange(from, to)
	}
}

func (h *stateHelper) switchToTx(d time.Duration) {
	from := h.state()
	invariant(from == StateIdle || from == StateCcaBusy || from == StateRx,
		"switchToTx", "cannot transmit while %s", from)
	for _, l := range h.listeners {
		l.NotifyTxStart(d)
	}
	now := h.clock.Now()
	if from == StateRx {
		// The caller has already cancelled the reception.
		h.rxing = false
		h.endRx = now
	}
	h.startTx = now
	h.endTx = now + d
	h.transition(from)
}

func (h *stateHelper) switchToRx(d time.Duration) {
	from := h.state()
	invariant(from == StateIdle || from == StateCcaBusy, "switchToRx", "cannot receive while %s", from)
	invariant(!h.rxing, "switchToRx", "reception already in progress")
	for _, l := range h.listeners {
		l.NotifyRxStart(d)
	}
	now := h.clock.Now()
	h.rxing = true
	h.startRx = now
	h.endRx = now + d
	h.transition(from)
}

func (h *stateHelper) switchToChannelSwitching(d time.Duration) {
	from := h.state()
	invariant(from != StateSwitching && from != StateTx, "switchToChannelSwitching", "cannot switch while %s", from)
	for _, l := range h.listeners {
		l.NotifySwitchingStart(d)
	}
	now := h.clock.Now()
	if from == StateRx {
		h.endRx = now
	}
	if now < h.endCcaBusy {
		h.endCcaBusy = now
	}
	h.startSwitching = now
	h.endSwitching = now + d
	if h.rxing {
		h.rxing = false
		for _, l := range h.listeners {
			l.NotifyRxEndError()
		}
	}
	h.transition(from)
}

func (h *stateHelper) switchFromRxEndOk() {
	for _, l := range h.listeners {
		l.NotifyRxEndOk()
	}
	h.switchFromRx()
}

func (h *stateHelper) switchFromRxEndError() {
	for _, l := range h.listeners {
		l.NotifyRxEndError()
	}
	h.switchFromRx()
}

func (h *stateHelper) switchFromRx() {
	from := h.state()
	invariant(from == StateRx && h.rxing, "switchFromRx", "not receiving (state %s)", from)
	h.rxing = false
	h.endRx = h.clock.Now()
	h.transition(from)
}

// abortRx ends a reception that was cancelled before completion.
func (h *stateHelper) abortRx() {
	if !h.rxing {
		return
	}
	from := h.state()
	for _, l := range h.listeners {
		l.NotifyRxEndError()
	}
	h.rxing = false
	h.endRx = h.clock.Now()
	h.transition(from)
}

// switchMaybeToCcaBusy extends the CCA busy horizon; it only shows up as
// the current state when the PHY is not in TX, RX or SWITCHING.
func (h *stateHelper) switchMaybeToCcaBusy(d time.Duration) {
	for _, l := range h.listeners {
		l.NotifyMaybeCcaBusyStart(d)
	}
	from := h.state()
	now := h.clock.Now()
	if from != StateCcaBusy {
		h.startCcaBusy = now
	}
	h.endCcaBusy = max(h.endCcaBusy, now+d)
	if h.state() != from {
		h.transition(from)
	}
}

// DropReason says why an arriving or in-flight frame was not delivered.
type DropReason int

const (
	DropNone DropReason = iota
	DropSwitching
	DropRxBusy
	DropTxBusy
	DropBelowThreshold
	DropDemodulation
)

func (r DropReason) String() string {
	switch r {
	case DropSwitching:
		return "switching"
	case DropRxBusy:
		return "already_receiving"
	case DropTxBusy:
		return "already_transmitting"
	case DropBelowThreshold:
		return "below_threshold"
	case DropDemodulation:
		return "demodulation_failure"
	default:
		return "none"
	}
}

// DropReasons lists every reason a frame can be dropped for.
var DropReasons = []DropReason{DropSwitching, DropRxBusy, DropTxBusy, DropBelowThreshold, DropDemodulation}

// arrivalDecision is the outcome of decideArrival. The caller applies it.
type arrivalDecision struct {
	Sync   bool
	Reason DropReason
	// CheckCca asks the caller to re-evaluate CCA busy after the drop.
	CheckCca bool
}

// decideArrival picks what to do with a signal of rxPowerW lasting
// duration that arrives in state s, delayUntilIdle before the current busy
// condition clears.
func decideArrival(s State, delayUntilIdle, duration time.Duration, rxPowerW, edThresholdW float64) arrivalDecision {
	extendsBusy := duration > delayUntilIdle
	switch s {
	case StateSwitching:
		return arrivalDecision{Reason: DropSwitching, CheckCca: extendsBusy}
	case StateRx:
		return arrivalDecision{Reason: DropRxBusy, CheckCca: extendsBusy}
	case StateTx:
		return arrivalDecision{Reason: DropTxBusy, CheckCca: extendsBusy}
	default:
		if rxPowerW > edThresholdW {
			return arrivalDecision{Sync: true}
		}
		return arrivalDecision{Reason: DropBelowThreshold, CheckCca: true}
	}
}

// switchAction is how a channel switch request is carried out.
type switchAction int

const (
	switchInit switchAction = iota
	switchNow
	switchAbortRxThenNow
	switchDefer
)

// decideChannelSwitch picks how to handle a channel switch requested at now
// in state s.
func decideChannelSwitch(now time.Duration, s State) switchAction {
	if now == 0 {
		return switchInit
	}
	switch s {
	case StateSwitching:
		panic(&InvariantError{Op: "SetChannelNumber", Msg: "channel switch requested while already switching"})
	case StateRx:
		return switchAbortRxThenNow
	case StateTx:
		return switchDefer
	default:
		return switchNow
	}
}

// decideTransmit reports whether a transmission can start in state s and
// whether it must first abort a reception.
func decideTransmit(s State) (abortRx bool) {
	invariant(s != StateTx && s != StateSwitching, "SendPacket", "cannot transmit while %s", s)
	return s == StateRx
}
