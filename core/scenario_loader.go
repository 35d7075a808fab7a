package core

import (
	"fmt"

	"github.com/signalsfoundry/vanet-simulator/internal/config"
	"github.com/signalsfoundry/vanet-simulator/kb"
	"github.com/signalsfoundry/vanet-simulator/model"
)

// NetworkScenario is a small summary of what was loaded into the KB.
type NetworkScenario struct {
	EdgeIDs    []string
	RouteIDs   []string
	VehicleIDs []string
}

// LoadNetworkScenario populates store with the road network and vehicles of
// sc. Oracle travel times stamped at zero are applied immediately; later
// ones are left for the engine to schedule.
func LoadNetworkScenario(store *kb.KnowledgeBase, sc *config.Scenario) (*NetworkScenario, error) {
	if store == nil {
		return nil, fmt.Errorf("LoadNetworkScenario: kb is nil")
	}
	if sc == nil {
		return nil, fmt.Errorf("LoadNetworkScenario: scenario is nil")
	}

	result := &NetworkScenario{
		EdgeIDs:    make([]string, 0, len(sc.Network.Edges)),
		RouteIDs:   make([]string, 0, len(sc.Network.Routes)),
		VehicleIDs: make([]string, 0, len(sc.Vehicles)),
	}

	for _, e := range sc.Network.Edges {
		if err := store.AddEdge(&model.Edge{ID: e.ID, Length: e.Length, StaticCost: e.StaticCost}); err != nil {
			return nil, fmt.Errorf("LoadNetworkScenario: %w", err)
		}
		if e.PerfectCost > 0 {
			if err := store.SetPerfectTravelTime(e.ID, e.PerfectCost, 0); err != nil {
				return nil, fmt.Errorf("LoadNetworkScenario: %w", err)
			}
		}
		result.EdgeIDs = append(result.EdgeIDs, e.ID)
	}

	for _, r := range sc.Network.Routes {
		route := &model.Route{ID: r.ID, Edges: append([]string(nil), r.Edges...)}
		if err := store.AddRoute(route); err != nil {
			return nil, fmt.Errorf("LoadNetworkScenario: %w", err)
		}
		result.RouteIDs = append(result.RouteIDs, r.ID)
	}

	for _, rep := range sc.Network.Perfect {
		if rep.At != 0 {
			continue
		}
		if err := store.SetPerfectTravelTime(rep.Edge, rep.TravelTime, 0); err != nil {
			return nil, fmt.Errorf("LoadNetworkScenario: %w", err)
		}
	}

	for _, v := range sc.Vehicles {
		def := &model.VehicleDefinition{
			ID:       v.ID,
			Name:     v.Name,
			Start:    v.Position.Model(),
			Velocity: v.Velocity.Model(),
			Position: v.Position.Model(),
			Route:    v.Route,
			Edge:     v.Edge,
		}
		if err := store.AddVehicle(def); err != nil {
			return nil, fmt.Errorf("LoadNetworkScenario: %w", err)
		}
		result.VehicleIDs = append(result.VehicleIDs, v.ID)
	}

	return result, nil
}
