package knowledge

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/vanet-simulator/internal/logging"
	"github.com/signalsfoundry/vanet-simulator/model"
	"github.com/signalsfoundry/vanet-simulator/timectrl"
)

const tracerName = "github.com/signalsfoundry/vanet-simulator/knowledge"

// TrafficInformation is the static and oracle view of the road network.
type TrafficInformation interface {
	RouteStaticCost(r model.Route, origin, destination string) float64
	EdgeStaticCost(edge string) float64
	EdgeLength(edge string) float64
	EdgePerfectCost(edge string) float64
	PerfectTravelTime(edge string) (model.TravelTimeReport, bool)
	EdgeIDs() []string
}

// MetricsRecorder is the hook an aggregator reports through.
type MetricsRecorder interface {
	IncReport(accepted bool)
	ObserveAnalysis(elapsed time.Duration, updatedEdges int, congestedLength, denseLength float64)
}

type noopMetrics struct{}

func (noopMetrics) IncReport(bool)                                      {}
func (noopMetrics) ObserveAnalysis(time.Duration, int, float64, float64) {}

// RouteEstimate is the outcome of one analysis pass for one route.
type RouteEstimate struct {
	TravelTime      float64
	Delay           float64
	CongestedLength float64
	DenseLength     float64
	// PacketAge is the mean age of the reports used for this route.
	PacketAge    float64
	Edges        int
	UpdatedEdges int
}

// Snapshot is the immutable result of an analysis pass.
type Snapshot struct {
	At     float64
	Routes map[string]RouteEstimate

	SumDelay           float64
	SumCongestedLength float64
	SumDenseLength     float64
	SumLength          float64
	UpdatedEdges       int
	Congested          bool
	Dense              bool
}

var emptySnapshot = &Snapshot{Routes: map[string]RouteEstimate{}}

// Option configures a Knowledge.
type Option func(*Knowledge)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(k *Knowledge) {
		if l != nil {
			k.log = l
		}
	}
}

// WithMetrics sets the metrics hook.
func WithMetrics(m MetricsRecorder) Option {
	return func(k *Knowledge) {
		if m != nil {
			k.metrics = m
		}
	}
}

// Knowledge aggregates travel-time reports heard by one vehicle into route
// cost estimates.
type Knowledge struct {
	cfg     Config
	clock   timectrl.SimClock
	tis     TrafficInformation
	log     logging.Logger
	metrics MetricsRecorder

	mu       sync.RWMutex
	records  map[string]*TravelTimeRecord
	vehicles map[string]int

	snapshot atomic.Pointer[Snapshot]
}

// New builds an aggregator. clock supplies the current simulation time.
func New(cfg Config, clock timectrl.SimClock, tis TrafficInformation, opts ...Option) (*Knowledge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k := &Knowledge{
		cfg:      cfg,
		clock:    clock,
		tis:      tis,
		log:      logging.Noop(),
		metrics:  noopMetrics{},
		records:  make(map[string]*TravelTimeRecord),
		vehicles: make(map[string]int),
	}
	for _, o := range opts {
		o(k)
	}
	return k, nil
}

func (k *Knowledge) now() float64 { return k.clock.Now().Seconds() }

// Record stores a report if it is the first for its edge or strictly newer
// than the latest one held. It reports whether the report was accepted.
func (k *Knowledge) Record(rep model.TravelTimeReport) bool {
	k.mu.Lock()
	accepted := k.recordLocked(rep)
	k.mu.Unlock()
	k.metrics.IncReport(accepted)
	return accepted
}

func (k *Knowledge) recordLocked(rep model.TravelTimeReport) bool {
	rec, ok := k.records[rep.EdgeID]
	if ok && rec.LatestTime() >= rep.Timestamp {
		return false
	}
	if !ok {
		rec = &TravelTimeRecord{}
		k.records[rep.EdgeID] = rec
	}
	rec.add(rep.Timestamp, rep.TravelTime)
	return true
}

// RecordBatch applies Record to each report and returns how many were
// accepted.
func (k *Knowledge) RecordBatch(reps []model.TravelTimeReport) int {
	n := 0
	for _, rep := range reps {
		if k.Record(rep) {
			n++
		}
	}
	return n
}

// Records returns a copy of every record keyed by edge.
func (k *Knowledge) Records() map[string]TravelTimeRecord {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make(map[string]TravelTimeRecord, len(k.records))
	for id, rec := range k.records {
		out[id] = rec.clone()
	}
	return out
}

// LatestReports returns the latest sample of every record as reports, in
// edge order. Vehicles broadcast these.
func (k *Knowledge) LatestReports() []model.TravelTimeReport {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]model.TravelTimeReport, 0, len(k.records))
	for _, id := range slices.Sorted(maps.Keys(k.records)) {
		s, _ := k.records[id].Latest()
		out = append(out, model.TravelTimeReport{EdgeID: id, Timestamp: s.Time, TravelTime: s.Value})
	}
	return out
}

// AddVehicle counts one more vehicle on edge and returns the new count.
func (k *Knowledge) AddVehicle(edge string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.vehicles[edge]++
	return k.vehicles[edge]
}

// RemoveVehicle counts one vehicle fewer on edge, never going below zero.
func (k *Knowledge) RemoveVehicle(edge string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.vehicles[edge] > 0 {
		k.vehicles[edge]--
	}
	return k.vehicles[edge]
}

// Vehicles returns the number of vehicles counted on edge.
func (k *Knowledge) Vehicles(edge string) int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.vehicles[edge]
}

// Analyze recomputes the cost of every route between origin and
// destination from the static costs and the fresh reports held, and
// publishes the result as the current snapshot.
//
// With perfect set, every recorded edge first receives the oracle travel
// time stamped now.
func (k *Knowledge) Analyze(ctx context.Context, routes map[string]model.Route, origin, destination string, perfect bool) *Snapshot {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "knowledge.Analyze", trace.WithAttributes(
		attribute.Int("routes", len(routes)),
		attribute.String("origin", origin),
		attribute.String("destination", destination),
		attribute.Bool("perfect", perfect),
	))
	defer span.End()
	started := time.Now()

	now := k.now()
	routeIDs := slices.Sorted(maps.Keys(routes))
	snap := &Snapshot{At: now, Routes: make(map[string]RouteEstimate, len(routes))}
	for _, id := range routeIDs {
		r := routes[id]
		snap.Routes[id] = RouteEstimate{
			TravelTime: k.tis.RouteStaticCost(r, origin, destination),
			Edges:      r.CountEdgesExcludingMargins(origin, destination),
		}
	}

	k.mu.Lock()
	edges := slices.Sorted(maps.Keys(k.records))
	for _, edge := range edges {
		rec := k.records[edge]
		latest, _ := rec.Latest()
		travelTime := latest.Value
		age := 0.0
		if latest.Time != 0 {
			age = now - latest.Time
		}

		if perfect {
			heard := travelTime
			travelTime = k.tis.EdgePerfectCost(edge)
			k.log.Debug(ctx, "perfect information",
				logging.Edge(edge),
				logging.Float64("vanet", heard),
				logging.Float64("vanet_age", age),
				logging.Float64("perfect", travelTime),
			)
			age = 0
			rec.add(now, travelTime)
		}

		expected := k.tis.EdgeStaticCost(edge)
		length := k.tis.EdgeLength(edge)
		fresh := travelTime > 0 && age < k.cfg.FreshnessWindow

		for _, id := range routeIDs {
			if !routes[id].ContainsEdgeExcludingMargins(edge, origin, destination) {
				continue
			}
			snap.SumLength += length
			if !fresh {
				continue
			}
			est := snap.Routes[id]
			est.TravelTime += travelTime - expected
			est.UpdatedEdges++
			est.PacketAge += age
			snap.UpdatedEdges++
			k.classify(ctx, snap, &est, edge, travelTime, expected, length)
			snap.Routes[id] = est
		}
	}
	k.mu.Unlock()

	for id, est := range snap.Routes {
		if est.UpdatedEdges > 0 {
			est.PacketAge /= float64(est.UpdatedEdges)
		} else {
			est.PacketAge = 0
		}
		snap.Routes[id] = est
	}

	k.snapshot.Store(snap)
	span.SetAttributes(
		attribute.Int("updated_edges", snap.UpdatedEdges),
		attribute.Bool("congested", snap.Congested),
		attribute.Bool("dense", snap.Dense),
	)
	k.metrics.ObserveAnalysis(time.Since(started), snap.UpdatedEdges, snap.SumCongestedLength, snap.SumDenseLength)
	return snap
}

// classify accumulates the delay and flow class of a fresh edge report
// into the route estimate and the pass totals.
func (k *Knowledge) classify(ctx context.Context, snap *Snapshot, est *RouteEstimate, edge string, travelTime, expected, length float64) {
	if isSumoStepArtifact(travelTime, expected, k.cfg.SimulationStep) {
		k.log.Debug(ctx, "ignoring simulation step travel time",
			logging.Edge(edge),
			logging.Float64("travel_time", travelTime),
		)
		return
	}
	delay := travelTime - expected
	if delay > 0 {
		est.Delay += delay
		snap.SumDelay += delay
	}
	capacity := ActualCapacity(expected, travelTime)
	switch {
	case capacity < k.cfg.CongestionThreshold:
		est.CongestedLength += length
		snap.SumCongestedLength += length
		snap.Congested = true
		k.log.Debug(ctx, "congestion",
			logging.Edge(edge),
			logging.Float64("capacity", capacity),
			logging.Float64("travel_time", travelTime),
			logging.Float64("expected", expected),
		)
	case capacity > k.cfg.CongestionThreshold && capacity < k.cfg.DensityThreshold:
		est.DenseLength += length
		snap.SumDenseLength += length
		snap.Dense = true
		k.log.Debug(ctx, "dense flow",
			logging.Edge(edge),
			logging.Float64("capacity", capacity),
			logging.Float64("travel_time", travelTime),
			logging.Float64("expected", expected),
		)
	}
}

// EdgeCosts returns, for every edge lying strictly between origin and
// destination on any route, the fresh reported travel time or the static
// cost when there is none. With usePerfect the oracle observations are
// read instead of the local records.
func (k *Knowledge) EdgeCosts(routes map[string]model.Route, origin, destination string, usePerfect bool) map[string]float64 {
	now := k.now()
	costs := make(map[string]float64)
	for _, edge := range k.tis.EdgeIDs() {
		onRoute := false
		for _, r := range routes {
			if r.ContainsEdgeExcludingMargins(edge, origin, destination) {
				onRoute = true
				break
			}
		}
		if !onRoute {
			continue
		}

		var latest Sample
		if usePerfect {
			if rep, ok := k.tis.PerfectTravelTime(edge); ok {
				latest = Sample{Time: rep.Timestamp, Value: rep.TravelTime}
			}
		} else {
			k.mu.RLock()
			if rec, ok := k.records[edge]; ok {
				latest, _ = rec.Latest()
			}
			k.mu.RUnlock()
		}
		age := 0.0
		if latest.Time != 0 {
			age = now - latest.Time
		}
		if latest.Value > 0 && age < k.cfg.FreshnessWindow {
			costs[edge] = latest.Value
		} else {
			costs[edge] = k.tis.EdgeStaticCost(edge)
		}
	}
	return costs
}

// AnalyzeCorrelation returns, for every ordered pair of distinct routes,
// the edges of the first that the second also uses between origin and
// destination.
func (k *Knowledge) AnalyzeCorrelation(routes map[string]model.Route, origin, destination string) map[string]map[string][]string {
	out := make(map[string]map[string][]string, len(routes))
	for id, r := range routes {
		out[id] = make(map[string][]string)
		for otherID, other := range routes {
			if id == otherID {
				continue
			}
			shared := []string{}
			for _, edge := range r.Edges {
				if other.ContainsEdgeExcludingMargins(edge, origin, destination) {
					shared = append(shared, edge)
				}
			}
			out[id][otherID] = shared
		}
	}
	for _, id := range slices.Sorted(maps.Keys(out)) {
		for _, otherID := range slices.Sorted(maps.Keys(out[id])) {
			k.log.Debug(context.Background(), "route correlation",
				logging.String("route", id),
				logging.String("with", otherID),
				logging.Int("shared", len(out[id][otherID])),
				logging.String("edges", fmt.Sprint(out[id][otherID])),
			)
		}
	}
	return out
}

// Snapshot returns the result of the latest analysis pass, or an empty
// snapshot before the first one.
func (k *Knowledge) Snapshot() *Snapshot {
	if s := k.snapshot.Load(); s != nil {
		return s
	}
	return emptySnapshot
}

func (k *Knowledge) perRoute(f func(RouteEstimate) float64) map[string]float64 {
	s := k.Snapshot()
	out := make(map[string]float64, len(s.Routes))
	for id, est := range s.Routes {
		out[id] = f(est)
	}
	return out
}

// TravelTimes returns the estimated travel time of every route from the
// latest analysis, in seconds.
func (k *Knowledge) TravelTimes() map[string]float64 {
	return k.perRoute(func(e RouteEstimate) float64 { return e.TravelTime })
}

// Delays returns, per route, the summed excess of fresh reports over
// static costs.
func (k *Knowledge) Delays() map[string]float64 {
	return k.perRoute(func(e RouteEstimate) float64 { return e.Delay })
}

// CongestedLengths returns, per route, the length of edges classified as
// congested.
func (k *Knowledge) CongestedLengths() map[string]float64 {
	return k.perRoute(func(e RouteEstimate) float64 { return e.CongestedLength })
}

// DenseLengths returns, per route, the length of edges classified as
// dense flow.
func (k *Knowledge) DenseLengths() map[string]float64 {
	return k.perRoute(func(e RouteEstimate) float64 { return e.DenseLength })
}

// PacketAges returns, per route, the mean age of the fresh reports used.
func (k *Knowledge) PacketAges() map[string]float64 {
	return k.perRoute(func(e RouteEstimate) float64 { return e.PacketAge })
}

// UpdatedEdges returns, per route, how many edges fresh reports replaced.
func (k *Knowledge) UpdatedEdges() map[string]int {
	s := k.Snapshot()
	out := make(map[string]int, len(s.Routes))
	for id, est := range s.Routes {
		out[id] = est.UpdatedEdges
	}
	return out
}

// EdgeCounts returns, per route, how many edges lie between origin and
// destination.
func (k *Knowledge) EdgeCounts() map[string]int {
	s := k.Snapshot()
	out := make(map[string]int, len(s.Routes))
	for id, est := range s.Routes {
		out[id] = est.Edges
	}
	return out
}

// SumDelay is the delay summed over every route.
func (k *Knowledge) SumDelay() float64 { return k.Snapshot().SumDelay }

// SumCongestedLength is the congested length summed over every route.
func (k *Knowledge) SumCongestedLength() float64 { return k.Snapshot().SumCongestedLength }

// SumDenseLength is the dense-flow length summed over every route.
func (k *Knowledge) SumDenseLength() float64 { return k.Snapshot().SumDenseLength }

// SumLength is the length of every route membership, so shared edges count
// once per route.
func (k *Knowledge) SumLength() float64 { return k.Snapshot().SumLength }

// IsCongestedFlow reports whether the latest analysis found congestion.
func (k *Knowledge) IsCongestedFlow() bool { return k.Snapshot().Congested }

// IsDenseFlow reports whether the latest analysis found dense flow.
func (k *Knowledge) IsDenseFlow() bool { return k.Snapshot().Dense }
