package kb

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/signalsfoundry/vanet-simulator/model"
)

var (
	// ErrEdgeExists is returned when adding an edge whose ID is taken.
	ErrEdgeExists = errors.New("edge already exists")
	// ErrEdgeNotFound is returned for lookups of unknown edges.
	ErrEdgeNotFound = errors.New("edge not found")
	// ErrRouteExists is returned when adding a route whose ID is taken.
	ErrRouteExists = errors.New("route already exists")
	// ErrVehicleExists is returned when adding a vehicle whose ID is taken.
	ErrVehicleExists = errors.New("vehicle already exists")
	// ErrVehicleNotFound is returned for lookups of unknown vehicles.
	ErrVehicleNotFound = errors.New("vehicle not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventPerfectTravelTimeUpdated EventType = iota
	EventVehicleMoved
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type    EventType
	Report  model.TravelTimeReport
	Vehicle model.VehicleDefinition
}

// KnowledgeBase is an in-memory, thread-safe store for the road network:
// edges with their static costs and lengths, the route alternatives, the
// vehicles, and the oracle travel times observed by the traffic simulator.
type KnowledgeBase struct {
	mu sync.RWMutex

	edges    map[string]*model.Edge
	routes   map[string]*model.Route
	vehicles map[string]*model.VehicleDefinition
	perfect  map[string]model.TravelTimeReport

	subs   []subscriber
	nextID uint64
}

type subscriber struct {
	id uint64
	fn func(Event)
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		edges:    make(map[string]*model.Edge),
		routes:   make(map[string]*model.Route),
		vehicles: make(map[string]*model.VehicleDefinition),
		perfect:  make(map[string]model.TravelTimeReport),
	}
}

// AddEdge adds a road segment.
func (kb *KnowledgeBase) AddEdge(e *model.Edge) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.edges[e.ID]; exists {
		return fmt.Errorf("%w: %q", ErrEdgeExists, e.ID)
	}
	kb.edges[e.ID] = e
	return nil
}

// AddRoute adds a route. Every edge of the route must already exist.
func (kb *KnowledgeBase) AddRoute(r *model.Route) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.routes[r.ID]; exists {
		return fmt.Errorf("%w: %q", ErrRouteExists, r.ID)
	}
	for _, id := range r.Edges {
		if _, ok := kb.edges[id]; !ok {
			return fmt.Errorf("route %q: %w: %q", r.ID, ErrEdgeNotFound, id)
		}
	}
	kb.routes[r.ID] = r
	return nil
}

// AddVehicle adds a vehicle. Its route, if set, must exist.
func (kb *KnowledgeBase) AddVehicle(v *model.VehicleDefinition) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.vehicles[v.ID]; exists {
		return fmt.Errorf("%w: %q", ErrVehicleExists, v.ID)
	}
	if v.Route != "" {
		if _, ok := kb.routes[v.Route]; !ok {
			return fmt.Errorf("route %q not found for vehicle %q", v.Route, v.ID)
		}
	}
	kb.vehicles[v.ID] = v
	return nil
}

// GetEdge returns the edge with the given ID, or nil if not found.
func (kb *KnowledgeBase) GetEdge(id string) *model.Edge {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.edges[id]
}

// GetRoute returns the route with the given ID, or nil if not found.
func (kb *KnowledgeBase) GetRoute(id string) *model.Route {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.routes[id]
}

// GetVehicle returns the vehicle with the given ID, or nil if not found.
func (kb *KnowledgeBase) GetVehicle(id string) *model.VehicleDefinition {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.vehicles[id]
}

// Routes returns a copy of every route keyed by ID.
func (kb *KnowledgeBase) Routes() map[string]model.Route {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make(map[string]model.Route, len(kb.routes))
	for id, r := range kb.routes {
		res[id] = model.Route{ID: r.ID, Edges: append([]string(nil), r.Edges...)}
	}
	return res
}

// ListVehicles returns a snapshot slice of all vehicles ordered by ID.
func (kb *KnowledgeBase) ListVehicles() []*model.VehicleDefinition {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]*model.VehicleDefinition, 0, len(kb.vehicles))
	for _, v := range kb.vehicles {
		res = append(res, v)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// EdgeIDs returns the IDs of every known edge in sorted order.
func (kb *KnowledgeBase) EdgeIDs() []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]string, 0, len(kb.edges))
	for id := range kb.edges {
		res = append(res, id)
	}
	sort.Strings(res)
	return res
}

// EdgeStaticCost returns the free-flow travel time of an edge, zero if
// the edge is unknown.
func (kb *KnowledgeBase) EdgeStaticCost(id string) float64 {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if e, ok := kb.edges[id]; ok {
		return e.StaticCost
	}
	return 0
}

// EdgeLength returns the length of an edge, zero if unknown.
func (kb *KnowledgeBase) EdgeLength(id string) float64 {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if e, ok := kb.edges[id]; ok {
		return e.Length
	}
	return 0
}

// RouteStaticCost sums the static costs of the edges of r strictly between
// origin and destination.
func (kb *KnowledgeBase) RouteStaticCost(r model.Route, origin, destination string) float64 {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	total := 0.0
	for _, id := range r.EdgesExcludingMargins(origin, destination) {
		if e, ok := kb.edges[id]; ok {
			total += e.StaticCost
		}
	}
	return total
}

// SetPerfectTravelTime records the oracle travel time of an edge as
// observed at the given time, and notifies subscribers.
func (kb *KnowledgeBase) SetPerfectTravelTime(id string, travelTime, at float64) error {
	kb.mu.Lock()
	if _, ok := kb.edges[id]; !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrEdgeNotFound, id)
	}
	rep := model.TravelTimeReport{EdgeID: id, Timestamp: at, TravelTime: travelTime}
	kb.perfect[id] = rep
	event := Event{Type: EventPerfectTravelTimeUpdated, Report: rep}
	subs := kb.subscribers()
	kb.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
	return nil
}

// PerfectTravelTime returns the latest oracle observation of an edge.
func (kb *KnowledgeBase) PerfectTravelTime(id string) (model.TravelTimeReport, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	rep, ok := kb.perfect[id]
	return rep, ok
}

// EdgePerfectCost returns the oracle travel time of an edge, falling back
// to its static cost when the oracle has not observed it.
func (kb *KnowledgeBase) EdgePerfectCost(id string) float64 {
	if rep, ok := kb.PerfectTravelTime(id); ok {
		return rep.TravelTime
	}
	return kb.EdgeStaticCost(id)
}

// UpdateVehiclePosition moves a vehicle and notifies subscribers.
func (kb *KnowledgeBase) UpdateVehiclePosition(id string, pos model.Position) error {
	kb.mu.Lock()
	v, ok := kb.vehicles[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrVehicleNotFound, id)
	}
	v.Position = pos
	event := Event{
		Type:    EventVehicleMoved,
		Vehicle: *v, // copy for safety
	}
	subs := kb.subscribers()
	kb.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
	return nil
}

// Subscribe registers a callback for KB events, notified outside the lock
// in subscription order. The returned function removes exactly this
// callback and is safe to call more than once.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.nextID++
	id := kb.nextID
	kb.subs = append(kb.subs, subscriber{id: id, fn: fn})

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		kb.subs = slices.DeleteFunc(kb.subs, func(s subscriber) bool { return s.id == id })
	}
}

// subscribers snapshots the callbacks; callers hold kb.mu.
func (kb *KnowledgeBase) subscribers() []func(Event) {
	out := make([]func(Event), len(kb.subs))
	for i, s := range kb.subs {
		out[i] = s.fn
	}
	return out
}
