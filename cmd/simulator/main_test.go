package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/vanet-simulator/core"
	"github.com/signalsfoundry/vanet-simulator/internal/config"
)

const sampleScenario = "../../configs/highway.yaml"

func TestWriteSummary(t *testing.T) {
	sc := &config.Scenario{Network: config.Network{Routes: []config.Route{
		{ID: "highway"}, {ID: "detour"},
	}}}
	s := &core.Summary{
		RunID:    "run-1",
		Scenario: "demo",
		SimTime:  60,
		Vehicles: []core.VehicleSummary{
			{
				ID:         "veh-0",
				Channel:    178,
				FreqMHz:    5890,
				Stats:      core.VehicleStats{Tx: 1200, RxOk: 3400, Drops: map[string]int{"below_threshold": 2, "rx_busy": 1}},
				RouteCosts: map[string]float64{"highway": 240, "detour": 136},
				BestRoute:  "detour",
				Congested:  true,
			},
		},
	}

	var buf bytes.Buffer
	writeSummary(&buf, sc, s)
	out := buf.String()

	assert.Contains(t, out, "scenario demo (run run-1) reached 60.0s")
	assert.Contains(t, out, "1,200 sent, 3,400 received, 3 dropped")
	assert.Contains(t, out, "5.89 GHz")
	assert.Contains(t, out, "below_threshold=2,rx_busy=1")
	assert.Contains(t, out, "congested")
	assert.Contains(t, out, "DETOUR")
	assert.Contains(t, out, "136.0s")
	assert.Less(t, strings.Index(out, "DETOUR"), strings.Index(out, "HIGHWAY"))
}

func TestWriteSummaryWithoutVehicles(t *testing.T) {
	var buf bytes.Buffer
	writeSummary(&buf, &config.Scenario{}, &core.Summary{Scenario: "empty"})
	assert.Contains(t, buf.String(), "0 sent, 0 received, 0 dropped")
	assert.NotContains(t, buf.String(), "HIGHWAY")
}

func TestRunCommandOnSampleScenario(t *testing.T) {
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"run", "--scenario", sampleScenario, "--log-level", "error"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))

	got := out.String()
	assert.Contains(t, got, "scenario highway-detour")
	assert.Contains(t, got, "reached 60.0s")
	for _, id := range []string{"veh-0", "veh-1", "veh-2", "veh-3"} {
		assert.Contains(t, got, id)
	}
}

func TestRunCommandMissingScenario(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "-s", "does-not-exist.yaml"})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestRootListsSubcommands(t *testing.T) {
	cmd := newRootCmd()
	names := make([]string, 0)
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"run", "serve"}, names)
}
