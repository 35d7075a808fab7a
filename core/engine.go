package core

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/vanet-simulator/internal/config"
	"github.com/signalsfoundry/vanet-simulator/internal/logging"
	"github.com/signalsfoundry/vanet-simulator/internal/sched"
	"github.com/signalsfoundry/vanet-simulator/kb"
	"github.com/signalsfoundry/vanet-simulator/knowledge"
	"github.com/signalsfoundry/vanet-simulator/model"
	"github.com/signalsfoundry/vanet-simulator/phy"
	"github.com/signalsfoundry/vanet-simulator/timectrl"
)

const tracerName = "github.com/signalsfoundry/vanet-simulator/core"

// Vehicle is one simulated car: a radio, a travel-time aggregator and the
// motion model moving both.
type Vehicle struct {
	Def       *model.VehicleDefinition
	Phy       *phy.Phy
	Knowledge *knowledge.Knowledge

	motion  MotionModel
	traffic phy.RandomStream
	stats   *VehicleStats
	// neighbours maps each vehicle heard from to the edge it announced.
	neighbours map[string]string
}

// Stats returns a copy of the vehicle's counters.
func (v *Vehicle) Stats() VehicleStats { return v.stats.clone() }

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger. Vehicles log through it too.
func WithLogger(l logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithPhyMetrics sets a factory returning the metrics hook of each
// vehicle's PHY.
func WithPhyMetrics(f func(vehicle string) phy.MetricsRecorder) EngineOption {
	return func(e *Engine) { e.phyMetrics = f }
}

// WithKnowledgeMetrics sets the metrics hook shared by every aggregator.
func WithKnowledgeMetrics(m knowledge.MetricsRecorder) EngineOption {
	return func(e *Engine) { e.knowledgeMetrics = m }
}

// WithPropagationLoss replaces the log-distance path loss model.
func WithPropagationLoss(l phy.PropagationLoss) EngineOption {
	return func(e *Engine) { e.loss = l }
}

// Engine runs a scenario on a discrete-event simulator: vehicles broadcast
// what they know about travel times, receivers merge what they decode, and
// every vehicle periodically re-estimates its route costs.
type Engine struct {
	sc    *config.Scenario
	sim   *sched.Simulator
	store *kb.KnowledgeBase
	log   logging.Logger
	runID string

	phyMetrics       func(string) phy.MetricsRecorder
	knowledgeMetrics knowledge.MetricsRecorder
	loss             phy.PropagationLoss

	channel  *phy.BroadcastChannel
	vehicles []*Vehicle
	byID     map[string]*Vehicle
	routes   map[string]model.Route

	txVector phy.TxVector
	preamble phy.Preamble
	packets  uint64

	oracleUpdates int
	moves         int

	// runCtx carries the run span while Run drives the simulator.
	runCtx        context.Context
	tickListeners []func(time.Duration)
}

// NewEngine builds every vehicle of sc and schedules the scenario's
// traffic, analysis passes, channel switches and oracle updates. The run ID
// carried by ctx, or a fresh one, tags every log line.
func NewEngine(ctx context.Context, sc *config.Scenario, opts ...EngineOption) (*Engine, error) {
	if sc == nil {
		return nil, fmt.Errorf("NewEngine: scenario is nil")
	}
	e := &Engine{
		sc:     sc,
		sim:    sched.NewSimulator(),
		store:  kb.NewKnowledgeBase(),
		log:    logging.Noop(),
		loss:   phy.DefaultLogDistanceLoss(),
		byID:   make(map[string]*Vehicle),
		runCtx: context.Background(),
	}
	for _, o := range opts {
		o(e)
	}
	ctx, e.log = logging.WithRunLogger(ctx, e.log)
	e.runID = logging.RunIDFromContext(ctx)
	e.log = logging.WithSimClock(e.log.With(logging.String("scenario", sc.Name)), e.sim.Now)

	v, preamble, err := sc.Traffic.TxVector()
	if err != nil {
		return nil, err
	}
	e.txVector, e.preamble = v, preamble

	if _, err := LoadNetworkScenario(e.store, sc); err != nil {
		return nil, err
	}
	e.routes = e.store.Routes()
	e.store.Subscribe(e.onStoreEvent)
	e.channel = phy.NewBroadcastChannel(e.sim, e.loss)

	for _, def := range e.store.ListVehicles() {
		veh, err := e.newVehicle(def)
		if err != nil {
			return nil, err
		}
		e.vehicles = append(e.vehicles, veh)
		e.byID[def.ID] = veh
	}

	e.scheduleScenario()
	e.log.Info(ctx, "scenario loaded",
		logging.Int("vehicles", len(e.vehicles)),
		logging.Int("routes", len(e.routes)),
		logging.Duration("duration", sc.Duration),
	)
	return e, nil
}

func (e *Engine) streamName(vehicle, purpose string) string {
	seed := e.sc.Seed
	if seed == "" {
		seed = e.sc.Name
	}
	return seed + "/" + purpose + "/" + vehicle
}

func (e *Engine) newVehicle(def *model.VehicleDefinition) (*Vehicle, error) {
	log := e.log.With(logging.Vehicle(def.ID))

	phyOpts := []phy.Option{
		phy.WithLogger(log),
		phy.WithRandomStream(newStream(e.streamName(def.ID, "phy"))),
	}
	if e.phyMetrics != nil {
		phyOpts = append(phyOpts, phy.WithMetrics(e.phyMetrics(def.ID)))
	}
	p, err := phy.New(def.ID, e.sc.Phy, e.sim, phyOpts...)
	if err != nil {
		return nil, fmt.Errorf("vehicle %q: %w", def.ID, err)
	}

	k, err := knowledge.New(e.sc.Knowledge, e.sim, e.store,
		knowledge.WithLogger(log),
		knowledge.WithMetrics(e.knowledgeMetrics),
	)
	if err != nil {
		return nil, fmt.Errorf("vehicle %q: %w", def.ID, err)
	}

	veh := &Vehicle{
		Def:        def,
		Phy:        p,
		Knowledge:  k,
		motion:     NewMotionModel(def),
		traffic:    newStream(e.streamName(def.ID, "traffic")),
		stats:      newVehicleStats(),
		neighbours: make(map[string]string),
	}
	p.AddObserver(veh.stats)
	p.SetReceiveOkCallback(func(pkt *phy.Packet, _ float64, _ phy.Mode, _ phy.Preamble) {
		e.deliver(veh, pkt)
	})
	e.channel.Add(p, clockedMobility{clock: e.sim, model: veh.motion})
	if def.Edge != "" {
		k.AddVehicle(def.Edge)
	}
	return veh, nil
}

// deliver merges a decoded beacon into the receiver's knowledge.
func (e *Engine) deliver(v *Vehicle, pkt *phy.Packet) {
	b, ok := pkt.Payload.(Beacon)
	if !ok {
		return
	}
	if prev, seen := v.neighbours[b.Sender]; !seen || prev != b.Edge {
		if seen && prev != "" {
			v.Knowledge.RemoveVehicle(prev)
		}
		if b.Edge != "" {
			v.Knowledge.AddVehicle(b.Edge)
		}
		v.neighbours[b.Sender] = b.Edge
	}
	v.stats.ReportsHeard += len(b.Reports)
	v.stats.ReportsAccepted += v.Knowledge.RecordBatch(b.Reports)
}

// every schedules fn at start and then each interval, up to the end of
// the scenario.
func (e *Engine) every(start, interval time.Duration, fn func()) {
	var tick func()
	next := start
	tick = func() {
		fn()
		next += interval
		if next <= e.sc.Duration {
			e.sim.Schedule(next, tick)
		}
	}
	if start <= e.sc.Duration {
		e.sim.Schedule(start, tick)
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// onStoreEvent follows oracle updates and vehicle moves published by the
// road-network store.
func (e *Engine) onStoreEvent(ev kb.Event) {
	switch ev.Type {
	case kb.EventPerfectTravelTimeUpdated:
		e.oracleUpdates++
		e.log.Debug(e.runCtx, "oracle travel time updated",
			logging.Edge(ev.Report.EdgeID),
			logging.Float64("travel_time", ev.Report.TravelTime),
		)
	case kb.EventVehicleMoved:
		e.moves++
	}
}

func (e *Engine) scheduleScenario() {
	for _, veh := range e.vehicles {
		// Random phase within one interval keeps broadcasts from aligning.
		phase := time.Duration(veh.traffic.RandU01() * float64(e.sc.Traffic.Interval))
		e.every(e.sc.Traffic.Start+phase, e.sc.Traffic.Interval, func() { e.broadcast(veh) })
	}

	for _, vc := range e.sc.Vehicles {
		veh := e.byID[vc.ID]
		for _, rep := range vc.Reports {
			r := rep.Model()
			e.sim.Schedule(secondsToDuration(rep.At), func() { veh.Knowledge.Record(r) })
		}
	}

	for _, rep := range e.sc.Network.Perfect {
		if rep.At == 0 {
			continue
		}
		e.sim.Schedule(secondsToDuration(rep.At), func() {
			if err := e.store.SetPerfectTravelTime(rep.Edge, rep.TravelTime, rep.At); err != nil {
				e.log.Warn(e.runCtx, "perfect travel time update failed", logging.String("error", err.Error()))
			}
		})
	}

	for _, cs := range e.sc.ChannelSwitches {
		e.sim.Schedule(cs.At, func() { e.switchChannel(cs) })
	}

	e.every(e.sc.Analysis.Interval, e.sc.Analysis.Interval, e.analyze)
}

func (e *Engine) broadcast(v *Vehicle) {
	if v.Phy.IsStateTx() || v.Phy.IsStateSwitching() {
		v.stats.TxDeferred++
		return
	}
	e.packets++
	pkt := &phy.Packet{
		ID:   e.packets,
		Size: e.sc.Traffic.Size,
		Payload: Beacon{
			Sender:  v.Def.ID,
			Edge:    v.Def.Edge,
			Reports: v.Knowledge.LatestReports(),
		},
	}
	v.Phy.SendPacket(pkt, e.txVector, e.preamble)
}

func (e *Engine) switchChannel(cs config.ChannelSwitch) {
	v := e.byID[cs.Vehicle]
	if v.Phy.IsStateSwitching() {
		e.log.Warn(e.runCtx, "channel switch skipped while switching",
			logging.Vehicle(cs.Vehicle),
			logging.Int("channel", int(cs.Channel)),
		)
		return
	}
	if err := v.Phy.SetChannelNumber(cs.Channel); err != nil {
		e.log.Warn(e.runCtx, "channel switch rejected",
			logging.Vehicle(cs.Vehicle),
			logging.String("error", err.Error()),
		)
		return
	}
	v.stats.ChannelSwitches++
}

func (e *Engine) analyze() {
	now := e.sim.Now()
	for _, v := range e.vehicles {
		if err := e.store.UpdateVehiclePosition(v.Def.ID, v.motion.PositionAt(now)); err != nil {
			e.log.Warn(e.runCtx, "vehicle position update failed", logging.String("error", err.Error()))
		}
		snap := v.Knowledge.Analyze(e.runCtx, e.routes, e.sc.Network.Origin, e.sc.Network.Destination, e.sc.Analysis.Perfect)
		e.log.Debug(e.runCtx, "route costs",
			logging.Vehicle(v.Def.ID),
			logging.Int("updated_edges", snap.UpdatedEdges),
			logging.Bool("congested", snap.Congested),
			logging.Bool("dense", snap.Dense),
		)
	}
	for _, fn := range e.tickListeners {
		fn(now)
	}
}

// RegisterTickListener adds a callback run after every analysis pass.
func (e *Engine) RegisterTickListener(fn func(time.Duration)) {
	e.tickListeners = append(e.tickListeners, fn)
}

// Now implements timectrl.SimClock.
func (e *Engine) Now() time.Duration { return e.sim.Now() }

// AdvanceTo runs the scenario up to t, never past its duration. It
// implements timectrl.Stepper.
func (e *Engine) AdvanceTo(t time.Duration) {
	e.sim.AdvanceTo(min(t, e.sc.Duration))
}

// Done reports whether the scenario reached its end.
func (e *Engine) Done() bool { return e.sim.Now() >= e.sc.Duration }

// Run drives the scenario to completion as fast as possible, stopping
// early when ctx is cancelled, and returns the summary of what was reached.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	tc := timectrl.NewTimeController(e, e.sc.Analysis.Interval, timectrl.Accelerated)
	return e.Drive(ctx, tc)
}

// Drive runs the scenario under tc, which may pace it in real time.
func (e *Engine) Drive(ctx context.Context, tc *timectrl.TimeController) (*Summary, error) {
	ctx = logging.ContextWithRunID(ctx, e.runID)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "core.Run", trace.WithAttributes(
		attribute.String("scenario", e.sc.Name),
		attribute.String("run_id", e.runID),
		attribute.Int("vehicles", len(e.vehicles)),
	))
	defer span.End()
	e.runCtx = ctx
	defer func() { e.runCtx = context.Background() }()

	started := time.Now()
	e.log.Info(ctx, "run started", logging.String("mode", tc.Mode.String()))
	if !e.Done() {
		<-tc.Start(e.sc.Duration-e.sim.Now(), ctx.Done())
	}

	summary := e.Summary()
	tx, rxOk, drops := summary.Totals()
	span.SetAttributes(
		attribute.Int("tx", tx),
		attribute.Int("rx_ok", rxOk),
		attribute.Int("drops", drops),
	)
	e.log.Info(ctx, "run finished",
		logging.Duration("sim_time", e.sim.Now()),
		logging.Duration("wall_time", time.Since(started)),
		logging.Int("tx", tx),
		logging.Int("rx_ok", rxOk),
		logging.Int("drops", drops),
	)
	if err := ctx.Err(); err != nil && !e.Done() {
		return summary, err
	}
	return summary, nil
}

// Summary reports the current state of every vehicle.
func (e *Engine) Summary() *Summary {
	origin, dest := e.sc.Network.Origin, e.sc.Network.Destination
	s := &Summary{
		RunID:    e.runID,
		Scenario: e.sc.Name,
		SimTime:  e.sim.Now().Seconds(),

		OracleUpdates: e.oracleUpdates,
		PositionFixes: e.moves,
	}
	for _, v := range e.vehicles {
		costs := v.Knowledge.TravelTimes()
		s.Vehicles = append(s.Vehicles, VehicleSummary{
			ID:         v.Def.ID,
			Channel:    v.Phy.ChannelNumber(),
			FreqMHz:    v.Phy.ChannelFrequencyMHz(),
			Position:   v.motion.PositionAt(e.sim.Now()),
			Stats:      v.Stats(),
			Records:    len(v.Knowledge.Records()),
			Neighbours: len(v.neighbours),
			RouteCosts: costs,
			EdgeCosts:  v.Knowledge.EdgeCosts(e.routes, origin, dest, e.sc.Analysis.Perfect),
			BestRoute:  bestRoute(costs),
			Congested:  v.Knowledge.IsCongestedFlow(),
			Dense:      v.Knowledge.IsDenseFlow(),
		})
	}
	if len(e.vehicles) > 0 {
		s.Correlation = e.vehicles[0].Knowledge.AnalyzeCorrelation(e.routes, origin, dest)
	}
	return s
}

// Vehicle returns the vehicle with the given ID, or nil.
func (e *Engine) Vehicle(id string) *Vehicle { return e.byID[id] }

// Vehicles returns every vehicle ordered by ID.
func (e *Engine) Vehicles() []*Vehicle { return append([]*Vehicle(nil), e.vehicles...) }

// KB returns the road network store.
func (e *Engine) KB() *kb.KnowledgeBase { return e.store }

// Simulator exposes the underlying event scheduler.
func (e *Engine) Simulator() *sched.Simulator { return e.sim }
