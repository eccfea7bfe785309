package gauge

import "time"

const (
	// rateWindow is the trailing span considered for the rate estimate.
	rateWindow = time.Hour
	// minRateSpan is how much observed time must exist before a rate is
	// reported; shorter spans would be normalized against a near-zero
	// divisor and spike misleadingly.
	minRateSpan = 5 * time.Minute
)

type rateEntry struct {
	at       time.Time
	volumeML float64
}

// RateEstimator keeps a sliding one-hour window of tip volumes and derives
// a rainfall rate in mm/h. It is stateless about wall-clock time except
// through the timestamps it holds: pruning happens lazily on every update
// and read, never via a background timer.
type RateEstimator struct {
	factor  float64
	started time.Time
	entries []rateEntry
}

// NewRateEstimator constructs an estimator. started marks the beginning of
// the observation span; reconstructed history may extend it further back.
func NewRateEstimator(params Params, started time.Time) *RateEstimator {
	return &RateEstimator{factor: params.DepthFactor(), started: started}
}

// Observe appends one tip's volume and prunes entries older than the window.
func (r *RateEstimator) Observe(at time.Time, volumeML float64) {
	r.entries = append(r.entries, rateEntry{at: at, volumeML: volumeML})
	r.prune(at)
}

// Prune drops entries older than the window relative to now.
func (r *RateEstimator) Prune(now time.Time) {
	r.prune(now)
}

func (r *RateEstimator) prune(now time.Time) {
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(r.entries) && !r.entries[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		r.entries = append(r.entries[:0], r.entries[i:]...)
	}
}

// Rate returns the rainfall rate in mm/h. The second return is false while
// too little observation time exists for a meaningful estimate ("unknown").
// The depth collected inside the window is normalized to a full hour using
// the observed span, capped at the window length.
func (r *RateEstimator) Rate(now time.Time) (float64, bool) {
	r.prune(now)

	span := now.Sub(r.started)
	if len(r.entries) > 0 {
		if oldest := now.Sub(r.entries[0].at); oldest > span {
			span = oldest
		}
	}
	if span > rateWindow {
		span = rateWindow
	}
	if span < minRateSpan {
		return 0, false
	}

	var volume float64
	for _, e := range r.entries {
		volume += e.volumeML
	}
	if volume <= 0 {
		return 0, true
	}
	depth := volume * r.factor
	return depth * float64(rateWindow) / float64(span), true
}

// Seed replaces the window with reconstructed entries, oldest first, and
// prunes against now. Insertion order is preserved for equal timestamps.
func (r *RateEstimator) Seed(now time.Time, entries []TipEvent, params Params) {
	r.entries = r.entries[:0]
	for _, ev := range entries {
		r.entries = append(r.entries, rateEntry{at: ev.Time, volumeML: params.TipVolume(ev.Direction)})
	}
	r.prune(now)
}

// WindowLen reports how many tips the window currently holds.
func (r *RateEstimator) WindowLen() int {
	return len(r.entries)
}
