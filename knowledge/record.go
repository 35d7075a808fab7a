package knowledge

// Sample is one reported travel time.
type Sample struct {
	Time  float64 // seconds
	Value float64 // seconds
}

// TravelTimeRecord is the append-only history of travel times heard for
// one edge.
type TravelTimeRecord struct {
	samples []Sample
}

func (r *TravelTimeRecord) add(t, v float64) {
	r.samples = append(r.samples, Sample{Time: t, Value: v})
}

// Len returns the number of samples.
func (r TravelTimeRecord) Len() int { return len(r.samples) }

// Samples returns a copy of the history, oldest first.
func (r TravelTimeRecord) Samples() []Sample {
	return append([]Sample(nil), r.samples...)
}

// Latest returns the most recently added sample.
func (r TravelTimeRecord) Latest() (Sample, bool) {
	if len(r.samples) == 0 {
		return Sample{}, false
	}
	return r.samples[len(r.samples)-1], true
}

// LatestValue returns the value of the latest sample, zero if none.
func (r TravelTimeRecord) LatestValue() float64 {
	s, _ := r.Latest()
	return s.Value
}

// LatestTime returns the time of the latest sample, zero if none.
func (r TravelTimeRecord) LatestTime() float64 {
	s, _ := r.Latest()
	return s.Time
}

// AverageValue returns the mean of every sample value, zero if none.
func (r TravelTimeRecord) AverageValue() float64 {
	if len(r.samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range r.samples {
		sum += s.Value
	}
	return sum / float64(len(r.samples))
}

func (r TravelTimeRecord) clone() TravelTimeRecord {
	return TravelTimeRecord{samples: r.Samples()}
}

// ActualCapacity is the share of free-flow speed a travel time implies:
// expected / travelTime. It reads as free flow (1) when either value is
// not positive.
func ActualCapacity(expected, travelTime float64) float64 {
	if expected <= 0 || travelTime <= 0 {
		return 1
	}
	return expected / travelTime
}

// isSumoStepArtifact reports a travel time that equals the traffic
// simulator's step on an edge whose expected time does not exceed it. SUMO
// reports one step for edges a vehicle crossed within a single step, so
// the value says nothing about congestion.
func isSumoStepArtifact(travelTime, expected, step float64) bool {
	return step > 0 && travelTime == step && expected <= step
}
