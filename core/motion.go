package core

import (
	"time"

	"github.com/signalsfoundry/vanet-simulator/model"
	"github.com/signalsfoundry/vanet-simulator/timectrl"
)

// MotionModel gives a vehicle's position at a simulation time.
type MotionModel interface {
	PositionAt(t time.Duration) model.Position
}

// StaticMotionModel keeps a vehicle where it started.
type StaticMotionModel struct {
	At model.Position
}

// PositionAt returns the fixed position.
func (m StaticMotionModel) PositionAt(time.Duration) model.Position { return m.At }

// LinearMotionModel moves a vehicle from Start at a constant Velocity
// (metres per second).
type LinearMotionModel struct {
	Start    model.Position
	Velocity model.Position
}

// PositionAt returns Start + Velocity·t.
func (m LinearMotionModel) PositionAt(t time.Duration) model.Position {
	return m.Start.Add(m.Velocity.Scale(t.Seconds()))
}

// NewMotionModel chooses a motion model for the vehicle: linear when it has
// a non-zero velocity, static otherwise.
func NewMotionModel(v *model.VehicleDefinition) MotionModel {
	if v.Velocity == (model.Position{}) {
		return StaticMotionModel{At: v.Start}
	}
	return LinearMotionModel{Start: v.Start, Velocity: v.Velocity}
}

// clockedMobility reads a motion model at the current simulation time, so a
// broadcast channel always sees up-to-date positions.
type clockedMobility struct {
	clock timectrl.SimClock
	model MotionModel
}

func (m clockedMobility) Position() model.Position { return m.model.PositionAt(m.clock.Now()) }
