package core

import (
	"maps"
	"slices"

	"github.com/signalsfoundry/vanet-simulator/model"
	"github.com/signalsfoundry/vanet-simulator/phy"
)

// Beacon is the payload vehicles broadcast: who they are, where they are
// and the latest travel time they know for every edge.
type Beacon struct {
	Sender  string
	Edge    string
	Reports []model.TravelTimeReport
}

// VehicleStats counts one vehicle's radio and knowledge activity. It
// observes the vehicle's PHY.
type VehicleStats struct {
	Tx              int
	TxDeferred      int
	RxOk            int
	Drops           map[string]int
	ReportsHeard    int
	ReportsAccepted int
	ChannelSwitches int

	snrSumDb float64
}

func newVehicleStats() *VehicleStats {
	return &VehicleStats{Drops: make(map[string]int)}
}

func (s *VehicleStats) RxBegin(*phy.Packet) {}

func (s *VehicleStats) RxEnd(_ *phy.Packet, info phy.RxInfo) {
	s.RxOk++
	s.snrSumDb += phy.RatioToDb(info.Snr)
}

func (s *VehicleStats) RxDrop(_ *phy.Packet, reason phy.DropReason) {
	s.Drops[reason.String()]++
}

func (s *VehicleStats) TxBegin(*phy.Packet, phy.TxInfo) { s.Tx++ }

// MeanSnrDb is the average SNR of the frames received, zero if none.
func (s *VehicleStats) MeanSnrDb() float64 {
	if s.RxOk == 0 {
		return 0
	}
	return s.snrSumDb / float64(s.RxOk)
}

// TotalDrops sums the drops over every reason.
func (s *VehicleStats) TotalDrops() int {
	n := 0
	for _, c := range s.Drops {
		n += c
	}
	return n
}

func (s *VehicleStats) clone() VehicleStats {
	out := *s
	out.Drops = maps.Clone(s.Drops)
	return out
}

// VehicleSummary is one vehicle's state at the end of a run.
type VehicleSummary struct {
	ID       string
	Channel  uint16
	FreqMHz  float64
	Position model.Position
	Stats    VehicleStats

	Records    int
	Neighbours int
	RouteCosts map[string]float64
	EdgeCosts  map[string]float64
	BestRoute  string
	Congested  bool
	Dense      bool
}

// Summary is the outcome of a scenario run.
type Summary struct {
	RunID    string
	Scenario string
	SimTime  float64 // seconds reached
	Vehicles []VehicleSummary

	// OracleUpdates counts perfect travel times published during the run;
	// PositionFixes counts vehicle positions pushed to the road network.
	OracleUpdates int
	PositionFixes int

	// Correlation lists, per ordered route pair, the edges they share
	// between origin and destination.
	Correlation map[string]map[string][]string
}

// Totals sums the per-vehicle radio counters.
func (s *Summary) Totals() (tx, rxOk, drops int) {
	for _, v := range s.Vehicles {
		tx += v.Stats.Tx
		rxOk += v.Stats.RxOk
		drops += v.Stats.TotalDrops()
	}
	return tx, rxOk, drops
}

// bestRoute returns the cheapest route, ties broken by ID.
func bestRoute(costs map[string]float64) string {
	best := ""
	for _, id := range slices.Sorted(maps.Keys(costs)) {
		if best == "" || costs[id] < costs[best] {
			best = id
		}
	}
	return best
}
