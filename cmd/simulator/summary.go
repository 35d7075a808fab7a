package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/signalsfoundry/vanet-simulator/core"
	"github.com/signalsfoundry/vanet-simulator/internal/config"
)

// writeSummary prints the end-of-run report: one row per vehicle followed
// by the route costs each vehicle settled on.
func writeSummary(w io.Writer, sc *config.Scenario, s *core.Summary) {
	tx, rxOk, drops := s.Totals()
	fmt.Fprintf(w, "scenario %s (run %s) reached %.1fs\n", s.Scenario, s.RunID, s.SimTime)
	fmt.Fprintf(w, "frames: %s sent, %s received, %s dropped\n",
		humanize.Comma(int64(tx)), humanize.Comma(int64(rxOk)), humanize.Comma(int64(drops)))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VEHICLE\tCHANNEL\tTX\tRX\tDROPS\tSNR\tRECORDS\tNEIGHBOURS\tBEST\tFLOW")
	for _, v := range s.Vehicles {
		fmt.Fprintf(tw, "%s\t%d (%s)\t%d\t%d\t%s\t%.1f dB\t%d\t%d\t%s\t%s\n",
			v.ID,
			v.Channel, humanize.SIWithDigits(v.FreqMHz*1e6, 3, "Hz"),
			v.Stats.Tx, v.Stats.RxOk, formatDrops(v.Stats.Drops),
			v.Stats.MeanSnrDb(),
			v.Records, v.Neighbours,
			v.BestRoute, flowLabel(v),
		)
	}
	tw.Flush()

	if len(s.Vehicles) == 0 {
		return
	}
	routes := make([]string, 0, len(sc.Network.Routes))
	for _, r := range sc.Network.Routes {
		routes = append(routes, r.ID)
	}
	slices.Sort(routes)

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VEHICLE\t"+strings.ToUpper(strings.Join(routes, "\t")))
	for _, v := range s.Vehicles {
		cols := make([]string, 0, len(routes)+1)
		cols = append(cols, v.ID)
		for _, r := range routes {
			cols = append(cols, fmt.Sprintf("%.1fs", v.RouteCosts[r]))
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	tw.Flush()
}

func formatDrops(drops map[string]int) string {
	if len(drops) == 0 {
		return "0"
	}
	parts := make([]string, 0, len(drops))
	for _, reason := range slices.Sorted(maps.Keys(drops)) {
		parts = append(parts, fmt.Sprintf("%s=%d", reason, drops[reason]))
	}
	return strings.Join(parts, ",")
}

func flowLabel(v core.VehicleSummary) string {
	switch {
	case v.Congested:
		return "congested"
	case v.Dense:
		return "dense"
	default:
		return "free"
	}
}
