package throughput

import "time"

// Snapshot is one reading of the appliance's cumulative counters.
type Snapshot struct {
	Down int64 // total received
	Up   int64 // total transmitted
	At   time.Time
}

// RateCalculator turns successive snapshots into rates. It keeps only the
// previous snapshot.
type RateCalculator struct {
	prev    Snapshot
	hasPrev bool
}

func NewRateCalculator() *RateCalculator {
	return &RateCalculator{}
}

// Update returns the rates between the previous snapshot and cur, then stores
// cur. The counters are bytes, so bytes per millisecond is KB/s.
//
// The first call after construction or Reset yields Unavailable for both
// series, as does a non-positive elapsed time. A counter that went backwards
// yields Unavailable for that series only.
func (r *RateCalculator) Update(cur Snapshot) (down, up Sample) {
	prev, ok := r.prev, r.hasPrev
	r.prev = cur
	r.hasPrev = true

	if !ok {
		return Unavailable, Unavailable
	}

	elapsedMS := float64(cur.At.Sub(prev.At)) / float64(time.Millisecond)
	if elapsedMS <= 0 {
		return Unavailable, Unavailable
	}
	return rate(prev.Down, cur.Down, elapsedMS), rate(prev.Up, cur.Up, elapsedMS)
}

func rate(prev, cur int64, elapsedMS float64) Sample {
	if cur < prev {
		return Unavailable
	}
	return Sample(float64(cur-prev) / elapsedMS)
}

// Reset forgets the previous snapshot.
func (r *RateCalculator) Reset() {
	r.prev = Snapshot{}
	r.hasPrev = false
}

func (r *RateCalculator) Previous() (Snapshot, bool) {
	return r.prev, r.hasPrev
}
