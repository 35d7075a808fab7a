package model

import "math"

// Position is a point in a local Cartesian frame, in metres.
type Position struct {
	X float64
	Y float64
	Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (p Position) DistanceTo(other Position) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	dz := p.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Add returns p + other.
func (p Position) Add(other Position) Position {
	return Position{X: p.X + other.X, Y: p.Y + other.Y, Z: p.Z + other.Z}
}

// Scale returns p multiplied by k.
func (p Position) Scale(k float64) Position {
	return Position{X: p.X * k, Y: p.Y * k, Z: p.Z * k}
}
