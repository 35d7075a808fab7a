package sched

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// EventScheduler schedules callbacks to run at specific simulation times.
// It is the only asynchronous primitive the PHY and knowledge layers rely on:
// every "suspension" is expressed as a callback scheduled in the future.
type EventScheduler interface {
	// Schedule registers a callback f to run at simulation time 'at'.
	// It returns an opaque event ID that can be used to cancel the event.
	Schedule(at time.Duration, f func()) (id string)

	// Cancel attempts to cancel a previously scheduled event.
	// It is a no-op if the ID is unknown or the event already ran.
	Cancel(id string)

	// IsPending reports whether the event is scheduled and has neither run
	// nor been cancelled.
	IsPending(id string) bool

	// Now returns the current simulation time.
	Now() time.Duration
}

// scheduledEvent represents a single scheduled callback.
type scheduledEvent struct {
	id        string
	when      time.Duration
	f         func()
	cancelled bool
}

// Simulator is a discrete-event implementation of EventScheduler. It owns
// the simulation clock: time only moves when AdvanceTo, RunUntil or Run is
// called, and it jumps from one event to the next.
//
// Events sharing a timestamp run in the order they were scheduled, and all
// of them run before time moves past that timestamp. Each callback observes
// Now() equal to its own scheduled time.
type Simulator struct {
	mu      sync.Mutex
	now     time.Duration
	counter uint64
	stopped bool

	// Events ordered by 'when' (earliest first).
	events []*scheduledEvent
	index  map[string]*scheduledEvent
}

// NewSimulator creates a simulator whose clock starts at zero.
func NewSimulator() *Simulator {
	return &Simulator{
		events: make([]*scheduledEvent, 0),
		index:  make(map[string]*scheduledEvent),
	}
}

// Now returns the current simulation time.
func (s *Simulator) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Schedule registers a callback to run at the specified simulation time.
// Times in the past are clamped to now.
func (s *Simulator) Schedule(at time.Duration, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at < s.now {
		at = s.now
	}

	s.counter++
	id = fmt.Sprintf("ev-%d", s.counter)

	ev := &scheduledEvent{
		id:   id,
		when: at,
		f:    f,
	}
	s.addEventLocked(ev)
	s.index[id] = ev
	return id
}

// ScheduleAfter is shorthand for Schedule(Now()+delay, f).
func (s *Simulator) ScheduleAfter(delay time.Duration, f func()) string {
	return s.Schedule(s.Now()+delay, f)
}

// addEventLocked inserts an event after every event with the same or an
// earlier time. Caller must hold s.mu.
func (s *Simulator) addEventLocked(ev *scheduledEvent) {
	idx := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].when > ev.when
	})

	s.events = append(s.events, nil)
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = ev
}

// Cancel attempts to cancel a previously scheduled event.
func (s *Simulator) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.index[id]
	if !ok {
		return
	}

	ev.cancelled = true
	delete(s.index, id)
	// Removal from s.events is lazy; the run loop skips cancelled events.
}

// IsPending reports whether id is still waiting to run.
func (s *Simulator) IsPending(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// Pending returns the number of events waiting to run.
func (s *Simulator) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// NextEventTime returns the time of the earliest pending event.
func (s *Simulator) NextEventTime() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if !ev.cancelled {
			return ev.when, true
		}
	}
	return 0, false
}

// popDueLocked removes and returns the earliest non-cancelled event due at or
// before limit. Caller must hold s.mu.
func (s *Simulator) popDueLocked(limit time.Duration) *scheduledEvent {
	for len(s.events) > 0 {
		ev := s.events[0]
		if ev.cancelled {
			s.events = s.events[1:]
			continue
		}
		if ev.when > limit {
			return nil
		}
		s.events = s.events[1:]
		delete(s.index, ev.id)
		return ev
	}
	return nil
}

// RunDue executes all events whose scheduled time is <= Now().
func (s *Simulator) RunDue() {
	s.AdvanceTo(s.Now())
}

// AdvanceTo runs every event due at or before t, in time order, then leaves
// the clock at t. Time is kept monotonic (does not go backwards).
func (s *Simulator) AdvanceTo(t time.Duration) {
	for {
		s.mu.Lock()
		if t < s.now || s.stopped {
			s.mu.Unlock()
			return
		}
		ev := s.popDueLocked(t)
		if ev == nil {
			s.now = t
			s.mu.Unlock()
			return
		}
		s.now = ev.when
		callback := ev.f
		s.mu.Unlock()

		// Execute callback outside the lock so it can schedule or cancel.
		if callback != nil {
			callback()
		}
	}
}

// RunUntil is AdvanceTo under the name used by scenario drivers.
func (s *Simulator) RunUntil(end time.Duration) {
	s.AdvanceTo(end)
}

// Run executes events until none remain or Stop is called.
func (s *Simulator) Run() {
	for {
		next, ok := s.NextEventTime()
		if !ok {
			return
		}
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}
		s.AdvanceTo(next)
	}
}

// Stop prevents any further event from running.
func (s *Simulator) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}
