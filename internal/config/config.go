// Package config loads simulation scenarios from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/vanet-simulator/knowledge"
	"github.com/signalsfoundry/vanet-simulator/model"
	"github.com/signalsfoundry/vanet-simulator/phy"
)

// ErrInvalidScenario is returned for scenarios that fail the schema or
// reference unknown entities.
var ErrInvalidScenario = errors.New("invalid scenario")

// Position is a point or velocity in metres (per second).
type Position struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

func (p Position) Model() model.Position { return model.Position{X: p.X, Y: p.Y, Z: p.Z} }

// Edge is a road segment.
type Edge struct {
	ID          string  `yaml:"id"`
	Length      float64 `yaml:"length"`
	StaticCost  float64 `yaml:"static_cost"`
	PerfectCost float64 `yaml:"perfect_cost"`
}

// Route is an ordered list of edge IDs.
type Route struct {
	ID    string   `yaml:"id"`
	Edges []string `yaml:"edges"`
}

// Report is a travel-time observation, in seconds.
type Report struct {
	Edge       string  `yaml:"edge"`
	At         float64 `yaml:"at"`
	TravelTime float64 `yaml:"travel_time"`
}

func (r Report) Model() model.TravelTimeReport {
	return model.TravelTimeReport{EdgeID: r.Edge, Timestamp: r.At, TravelTime: r.TravelTime}
}

// Vehicle is one simulated car with its radio. Reports are the travel
// times the vehicle measured itself, learnt at their timestamp.
type Vehicle struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Position Position `yaml:"position"`
	Velocity Position `yaml:"velocity"`
	Route    string   `yaml:"route"`
	Edge     string   `yaml:"edge"`
	Reports  []Report `yaml:"reports"`
}

// Network is the road network and the trip every vehicle evaluates.
type Network struct {
	Edges       []Edge   `yaml:"edges"`
	Routes      []Route  `yaml:"routes"`
	Origin      string   `yaml:"origin"`
	Destination string   `yaml:"destination"`
	Perfect     []Report `yaml:"perfect"`
}

// Traffic configures the periodic report broadcasts.
type Traffic struct {
	Interval   time.Duration `yaml:"interval"`
	Start      time.Duration `yaml:"start"`
	Size       uint32        `yaml:"size"`
	Mode       string        `yaml:"mode"`
	Preamble   string        `yaml:"preamble"`
	PowerLevel uint8         `yaml:"power_level"`
}

// Analysis configures the periodic route cost analysis.
type Analysis struct {
	Interval time.Duration `yaml:"interval"`
	Perfect  bool          `yaml:"perfect"`
}

// ChannelSwitch asks one vehicle's PHY to retune at a given time.
type ChannelSwitch struct {
	Vehicle string        `yaml:"vehicle"`
	At      time.Duration `yaml:"at"`
	Channel uint16        `yaml:"channel"`
}

// Scenario is the root of a scenario document.
type Scenario struct {
	Name            string           `yaml:"name"`
	Seed            string           `yaml:"seed"`
	Duration        time.Duration    `yaml:"duration"`
	Phy             phy.Config       `yaml:"phy"`
	Knowledge       knowledge.Config `yaml:"knowledge"`
	Network         Network          `yaml:"network"`
	Vehicles        []Vehicle        `yaml:"vehicles"`
	Traffic         Traffic          `yaml:"traffic"`
	Analysis        Analysis         `yaml:"analysis"`
	ChannelSwitches []ChannelSwitch  `yaml:"channel_switches"`
}

// TxVector resolves the traffic mode and power level.
func (t Traffic) TxVector() (phy.TxVector, phy.Preamble, error) {
	mode, ok := phy.ModeByName(t.Mode)
	if !ok {
		return phy.TxVector{}, 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidScenario, t.Mode)
	}
	preamble := phy.PreambleLong
	if t.Preamble != "" {
		p, err := phy.ParsePreamble(t.Preamble)
		if err != nil {
			return phy.TxVector{}, 0, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
		}
		preamble = p
	}
	return phy.TxVector{Mode: mode, TxPowerLevel: t.PowerLevel}, preamble, nil
}

// Load reads, validates and decodes a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read scenario: %w", err)
	}
	return Parse(path, data)
}

// Parse validates data against the scenario schema, decodes it over the
// default radio and aggregation settings, and checks cross references.
func Parse(filename string, data []byte) (*Scenario, error) {
	if err := ValidateWithCue(filename, data); err != nil {
		return nil, err
	}

	sc := &Scenario{
		Phy:       phy.DefaultConfig(),
		Knowledge: knowledge.DefaultConfig(),
	}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Validate checks the invariants the schema cannot express.
func (sc *Scenario) Validate() error {
	if err := sc.Phy.Validate(); err != nil {
		return fmt.Errorf("%w: phy: %v", ErrInvalidScenario, err)
	}
	if err := sc.Knowledge.Validate(); err != nil {
		return fmt.Errorf("%w: knowledge: %v", ErrInvalidScenario, err)
	}
	if sc.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidScenario)
	}
	if sc.Traffic.Interval <= 0 || sc.Analysis.Interval <= 0 {
		return fmt.Errorf("%w: traffic and analysis intervals must be positive", ErrInvalidScenario)
	}
	if _, _, err := sc.Traffic.TxVector(); err != nil {
		return err
	}
	if uint32(sc.Traffic.PowerLevel) >= sc.Phy.TxPowerLevels {
		return fmt.Errorf("%w: power level %d with %d levels configured",
			ErrInvalidScenario, sc.Traffic.PowerLevel, sc.Phy.TxPowerLevels)
	}

	edges := make(map[string]bool, len(sc.Network.Edges))
	for _, e := range sc.Network.Edges {
		if edges[e.ID] {
			return fmt.Errorf("%w: duplicate edge %q", ErrInvalidScenario, e.ID)
		}
		edges[e.ID] = true
	}
	routes := make(map[string]bool, len(sc.Network.Routes))
	for _, r := range sc.Network.Routes {
		if routes[r.ID] {
			return fmt.Errorf("%w: duplicate route %q", ErrInvalidScenario, r.ID)
		}
		routes[r.ID] = true
		for _, e := range r.Edges {
			if !edges[e] {
				return fmt.Errorf("%w: route %q uses unknown edge %q", ErrInvalidScenario, r.ID, e)
			}
		}
	}
	for _, id := range []string{sc.Network.Origin, sc.Network.Destination} {
		if !edges[id] {
			return fmt.Errorf("%w: unknown origin/destination edge %q", ErrInvalidScenario, id)
		}
	}
	for _, rep := range sc.Network.Perfect {
		if !edges[rep.Edge] {
			return fmt.Errorf("%w: perfect travel time for unknown edge %q", ErrInvalidScenario, rep.Edge)
		}
	}

	vehicles := make(map[string]bool, len(sc.Vehicles))
	for _, v := range sc.Vehicles {
		if vehicles[v.ID] {
			return fmt.Errorf("%w: duplicate vehicle %q", ErrInvalidScenario, v.ID)
		}
		vehicles[v.ID] = true
		if v.Route != "" && !routes[v.Route] {
			return fmt.Errorf("%w: vehicle %q follows unknown route %q", ErrInvalidScenario, v.ID, v.Route)
		}
		if v.Edge != "" && !edges[v.Edge] {
			return fmt.Errorf("%w: vehicle %q starts on unknown edge %q", ErrInvalidScenario, v.ID, v.Edge)
		}
		for _, rep := range v.Reports {
			if !edges[rep.Edge] {
				return fmt.Errorf("%w: vehicle %q reports unknown edge %q", ErrInvalidScenario, v.ID, rep.Edge)
			}
		}
	}
	for _, cs := range sc.ChannelSwitches {
		if !vehicles[cs.Vehicle] {
			return fmt.Errorf("%w: channel switch for unknown vehicle %q", ErrInvalidScenario, cs.Vehicle)
		}
	}
	return nil
}
