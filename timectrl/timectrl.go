package timectrl

import (
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time. Simulated time is
// measured as the elapsed duration since the start of the simulation, so the
// zero value marks initialisation.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Duration
}

// Stepper is implemented by discrete-event schedulers that can be moved
// forward to a given simulation time, running every event due on the way.
type Stepper interface {
	SimClock
	AdvanceTo(t time.Duration)
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime paces simulation time against the wall clock.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// TimeController drives a Stepper in fixed Tick increments and notifies
// registered listeners after each step.
type TimeController struct {
	mu   sync.RWMutex
	Tick time.Duration
	Mode Mode

	target Stepper

	// currentTime tracks the last simulation time the controller advanced to.
	currentTime time.Duration

	listeners []func(time.Duration)
}

// NewTimeController constructs a controller for the given stepper.
func NewTimeController(target Stepper, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		Tick:        tick,
		Mode:        mode,
		target:      target,
		currentTime: target.Now(),
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Duration {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime moves the controller (and its stepper) to t. Times in the past
// are ignored.
func (tc *TimeController) SetTime(t time.Duration) {
	tc.mu.Lock()
	if t < tc.currentTime {
		tc.mu.Unlock()
		return
	}
	tc.currentTime = t
	tc.mu.Unlock()

	tc.target.AdvanceTo(t)
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Duration)) {
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller for the specified duration in a separate goroutine.
// It returns a channel that is closed when the controller finishes. A
// non-positive duration runs until stop is closed.
func (tc *TimeController) Start(duration time.Duration, stop <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var ticker *time.Ticker
		if tc.Mode == RealTime {
			ticker = time.NewTicker(tc.Tick)
			defer ticker.Stop()
		}

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			if ticker != nil {
				select {
				case <-ticker.C:
				case <-stop:
					return
				}
			} else {
				select {
				case <-stop:
					return
				default:
				}
			}

			simTime := tc.Now() + tc.Tick
			elapsed += tc.Tick
			tc.SetTime(simTime)

			for _, fn := range tc.listeners {
				fn(simTime)
			}
		}
	}()
	return done
}
