package model

// VehicleDefinition represents a vehicle carrying a radio and a local
// travel-time knowledge base.
type VehicleDefinition struct {
	ID   string
	Name string

	// Start is the position at simulation time zero.
	Start Position
	// Velocity is a constant velocity in metres per second.
	Velocity Position
	// Position is the latest position propagated by the motion model.
	Position Position

	// Route is the ID of the route the vehicle currently follows.
	Route string
	// Edge is the road segment the vehicle is on at time zero.
	Edge string
}
