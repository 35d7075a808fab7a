package model

// Edge is a road segment of the network.
type Edge struct {
	ID string
	// Length in metres.
	Length float64
	// StaticCost is the free-flow travel time in seconds.
	StaticCost float64
}

// Route is an ordered list of edge IDs.
type Route struct {
	ID    string
	Edges []string
}

// marginBounds returns the indices of origin and destination in r, or -1
// and len(r.Edges) when they are absent.
func (r Route) marginBounds(origin, destination string) (int, int) {
	lo, hi := -1, len(r.Edges)
	for i, e := range r.Edges {
		if e == origin && lo < 0 {
			lo = i
		}
	}
	for i := len(r.Edges) - 1; i > lo; i-- {
		if r.Edges[i] == destination {
			hi = i
			break
		}
	}
	return lo, hi
}

// EdgesExcludingMargins returns the edges strictly between origin and
// destination. An origin or destination not on the route does not trim
// that end.
func (r Route) EdgesExcludingMargins(origin, destination string) []string {
	lo, hi := r.marginBounds(origin, destination)
	if hi-lo <= 1 {
		return nil
	}
	out := make([]string, hi-lo-1)
	copy(out, r.Edges[lo+1:hi])
	return out
}

// ContainsEdgeExcludingMargins reports whether edge lies strictly between
// origin and destination on r.
func (r Route) ContainsEdgeExcludingMargins(edge, origin, destination string) bool {
	lo, hi := r.marginBounds(origin, destination)
	for i := lo + 1; i < hi; i++ {
		if r.Edges[i] == edge {
			return true
		}
	}
	return false
}

// CountEdgesExcludingMargins returns the number of edges strictly between
// origin and destination.
func (r Route) CountEdgesExcludingMargins(origin, destination string) int {
	lo, hi := r.marginBounds(origin, destination)
	return max(hi-lo-1, 0)
}
