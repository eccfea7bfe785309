package gauge

// Normalizer converts raw state notifications into canonical tip events.
// It tracks the last recorded valid state and optionally infers missed
// flips from duplicate same-state reports.
type Normalizer struct {
	missedFlipRecovery bool

	last      Direction
	lastKnown bool
}

// NewNormalizer constructs a Normalizer. With recovery enabled, a duplicate
// same-state notification is interpreted as two hidden flips; with it
// disabled such notifications are dropped as sensor noise.
func NewNormalizer(missedFlipRecovery bool) *Normalizer {
	return &Normalizer{missedFlipRecovery: missedFlipRecovery}
}

// Apply processes one notification and returns zero or more tip events.
// The first valid state after startup (or after an unavailability gap) only
// seeds the comparison baseline and never emits.
func (n *Normalizer) Apply(note Notification) []TipEvent {
	dir, ok := ParseDirection(note.State)
	if !ok {
		// Invalid state reported by the sensor. Drop the baseline so the
		// next valid state re-seeds without counting a phantom transition.
		n.lastKnown = false
		return nil
	}

	if !n.lastKnown {
		n.last = dir
		n.lastKnown = true
		return nil
	}

	if dir != n.last {
		n.last = dir
		return []TipEvent{{Time: note.Time, Direction: dir}}
	}

	if !n.missedFlipRecovery {
		return nil
	}

	// Same state reported again: assume an even number of missed flips, at
	// least two. Best effort; the heuristic can overcount. No intermediate
	// timestamp is knowable, so both synthetic tips share the report time.
	return []TipEvent{
		{Time: note.Time, Direction: dir.Opposite()},
		{Time: note.Time, Direction: dir},
	}
}

// Reset clears the recorded state, e.g. before a history replay.
func (n *Normalizer) Reset() {
	n.lastKnown = false
}

// Last reports the last recorded valid state, if any.
func (n *Normalizer) Last() (Direction, bool) {
	return n.last, n.lastKnown
}
