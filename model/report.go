package model

// TravelTimeReport is one observation of the time needed to cross an
// edge, as broadcast between vehicles.
type TravelTimeReport struct {
	EdgeID string
	// Timestamp is the simulation time of the observation, in seconds.
	Timestamp float64
	// TravelTime in seconds.
	TravelTime float64
}
