package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/vanet-simulator/internal/config"
	"github.com/signalsfoundry/vanet-simulator/knowledge"
	"github.com/signalsfoundry/vanet-simulator/phy"
)

// testScenario has two parked vehicles 50 m apart on an 802.11a channel.
// veh-a measured a slow crossing of edge a at t=1s.
func testScenario() *config.Scenario {
	return &config.Scenario{
		Name:      "pair",
		Seed:      "pair",
		Duration:  10 * time.Second,
		Phy:       phy.DefaultConfig(),
		Knowledge: knowledge.DefaultConfig(),
		Network: config.Network{
			Origin:      "o",
			Destination: "d",
			Edges: []config.Edge{
				{ID: "o", Length: 10, StaticCost: 1},
				{ID: "a", Length: 100, StaticCost: 10},
				{ID: "d", Length: 10, StaticCost: 1},
			},
			Routes: []config.Route{{ID: "r", Edges: []string{"o", "a", "d"}}},
		},
		Vehicles: []config.Vehicle{
			{
				ID:       "veh-a",
				Position: config.Position{X: 0},
				Route:    "r",
				Edge:     "a",
				Reports:  []config.Report{{Edge: "a", At: 1, TravelTime: 30}},
			},
			{ID: "veh-b", Position: config.Position{X: 50}, Route: "r", Edge: "o"},
		},
		Traffic: config.Traffic{
			Interval: time.Second,
			Size:     200,
			Mode:     "OfdmRate6Mbps",
		},
		Analysis: config.Analysis{Interval: 2 * time.Second},
	}
}

type analysisCounter struct{ passes, accepted int }

func (a *analysisCounter) IncReport(ok bool) {
	if ok {
		a.accepted++
	}
}

func (a *analysisCounter) ObserveAnalysis(time.Duration, int, float64, float64) { a.passes++ }

func TestEngineSpreadsReportsOverTheAir(t *testing.T) {
	metrics := &analysisCounter{}
	eng, err := NewEngine(context.Background(), testScenario(), WithKnowledgeMetrics(metrics))
	require.NoError(t, err)

	var ticks []time.Duration
	eng.RegisterTickListener(func(now time.Duration) { ticks = append(ticks, now) })

	summary, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.0, summary.SimTime)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second, 8 * time.Second, 10 * time.Second}, ticks)
	// Two vehicles, five passes each.
	assert.Equal(t, 10, metrics.passes)

	require.Len(t, summary.Vehicles, 2)
	a, b := summary.Vehicles[0], summary.Vehicles[1]
	assert.Equal(t, "veh-a", a.ID)
	assert.Equal(t, "veh-b", b.ID)

	assert.GreaterOrEqual(t, a.Stats.Tx, 9)
	assert.Positive(t, b.Stats.RxOk)
	assert.Greater(t, b.Stats.MeanSnrDb(), 5.0)
	assert.Equal(t, 1, b.Neighbours)
	assert.Equal(t, 1, b.Records)
	assert.Positive(t, b.Stats.ReportsAccepted)

	// Both vehicles now price edge a at the reported 30 s.
	assert.InDelta(t, 30, a.RouteCosts["r"], 1e-9)
	assert.InDelta(t, 30, b.RouteCosts["r"], 1e-9)
	assert.Equal(t, 30.0, b.EdgeCosts["a"])
	assert.Equal(t, "r", b.BestRoute)
	assert.True(t, b.Congested)

	vb := eng.Vehicle("veh-b")
	assert.Equal(t, 1, vb.Knowledge.Vehicles("a"))
	assert.Equal(t, 1, vb.Knowledge.Vehicles("o"))
}

func TestEngineVehicleDriftsOutOfRange(t *testing.T) {
	sc := testScenario()
	// Beyond roughly 175 m veh-a's frames arrive below the energy detection
	// threshold.
	sc.Vehicles[1].Velocity = config.Position{X: 30}
	eng, err := NewEngine(context.Background(), sc)
	require.NoError(t, err)

	summary, err := eng.Run(context.Background())
	require.NoError(t, err)
	b := summary.Vehicles[1]
	assert.InDelta(t, 350, b.Position.X, 1e-9)
	assert.Positive(t, b.Stats.RxOk)
	assert.Positive(t, b.Stats.Drops[phy.DropBelowThreshold.String()])
	assert.LessOrEqual(t, b.Stats.RxOk, 6)
}

func TestEngineChannelSwitchIsolatesVehicle(t *testing.T) {
	sc := testScenario()
	sc.ChannelSwitches = []config.ChannelSwitch{{Vehicle: "veh-b", At: 3 * time.Second, Channel: 5}}
	eng, err := NewEngine(context.Background(), sc)
	require.NoError(t, err)

	eng.AdvanceTo(3*time.Second + time.Millisecond)
	vb := eng.Vehicle("veh-b")
	assert.Equal(t, uint16(5), vb.Phy.ChannelNumber())
	assert.Equal(t, 1, vb.Stats().ChannelSwitches)
	heard := vb.Stats().RxOk

	eng.AdvanceTo(time.Minute)
	assert.True(t, eng.Done())
	assert.Equal(t, 10*time.Second, eng.Now())
	assert.Equal(t, heard, vb.Stats().RxOk)
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	eng, err := NewEngine(context.Background(), testScenario())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := eng.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Less(t, summary.SimTime, 10.0)
}

func TestEngineRejectsUnknownMode(t *testing.T) {
	sc := testScenario()
	sc.Traffic.Mode = "OfdmRate7Mbps"
	_, err := NewEngine(context.Background(), sc)
	assert.ErrorIs(t, err, config.ErrInvalidScenario)
}

func TestSummaryCorrelation(t *testing.T) {
	sc := testScenario()
	sc.Network.Edges = append(sc.Network.Edges, config.Edge{ID: "b", Length: 50, StaticCost: 20})
	sc.Network.Routes = append(sc.Network.Routes, config.Route{ID: "s", Edges: []string{"o", "a", "b", "d"}})
	eng, err := NewEngine(context.Background(), sc)
	require.NoError(t, err)

	s := eng.Summary()
	assert.Equal(t, []string{"a"}, s.Correlation["s"]["r"])
	assert.Equal(t, []string{"a"}, s.Correlation["r"]["s"])
}

func TestEngineFollowsStoreEvents(t *testing.T) {
	sc := testScenario()
	sc.Network.Perfect = []config.Report{
		{Edge: "a", At: 0, TravelTime: 12},
		{Edge: "a", At: 4, TravelTime: 40},
	}
	eng, err := NewEngine(context.Background(), sc)
	require.NoError(t, err)

	summary, err := eng.Run(context.Background())
	require.NoError(t, err)

	// The oracle value at t=0 is part of loading, not an update.
	assert.Equal(t, 1, summary.OracleUpdates)
	assert.Equal(t, 10, summary.PositionFixes)
	assert.InDelta(t, 40, eng.KB().EdgePerfectCost("a"), 1e-9)
}
