package gauge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func note(state string, at time.Time) Notification {
	return Notification{State: state, Time: at}
}

func TestNormalizerFirstStateOnlySeeds(t *testing.T) {
	n := NewNormalizer(false)
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	events := n.Apply(note("on", at))
	require.Empty(t, events)

	last, known := n.Last()
	require.True(t, known)
	require.Equal(t, DirectionOn, last)
}

func TestNormalizerTransitionEmitsOneEvent(t *testing.T) {
	n := NewNormalizer(false)
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	n.Apply(note("off", at))
	events := n.Apply(note("on", at.Add(time.Minute)))

	require.Len(t, events, 1)
	require.Equal(t, DirectionOn, events[0].Direction)
	require.Equal(t, at.Add(time.Minute), events[0].Time)
}

func TestNormalizerDuplicateDroppedWithoutRecovery(t *testing.T) {
	n := NewNormalizer(false)
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	n.Apply(note("on", at))
	events := n.Apply(note("on", at.Add(time.Minute)))

	require.Empty(t, events)
	last, known := n.Last()
	require.True(t, known)
	require.Equal(t, DirectionOn, last)
}

func TestNormalizerDuplicateExpandsWithRecovery(t *testing.T) {
	n := NewNormalizer(true)
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	n.Apply(note("on", at))
	events := n.Apply(note("on", at.Add(time.Minute)))

	require.Len(t, events, 2)
	require.Equal(t, DirectionOff, events[0].Direction)
	require.Equal(t, DirectionOn, events[1].Direction)
	// No intermediate timestamp is knowable; both carry the report time.
	require.Equal(t, events[0].Time, events[1].Time)
}

func TestNormalizerInvalidStateClearsBaseline(t *testing.T) {
	n := NewNormalizer(false)
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	n.Apply(note("on", at))
	require.Empty(t, n.Apply(note("unavailable", at.Add(time.Minute))))

	_, known := n.Last()
	require.False(t, known)

	// The next valid state re-seeds without a phantom transition, even
	// though it differs from the last recorded state.
	events := n.Apply(note("off", at.Add(2*time.Minute)))
	require.Empty(t, events)

	events = n.Apply(note("on", at.Add(3*time.Minute)))
	require.Len(t, events, 1)
}

func TestParseDirection(t *testing.T) {
	for state, want := range map[string]Direction{"on": DirectionOn, "off": DirectionOff} {
		got, ok := ParseDirection(state)
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	for _, state := range []string{"unknown", "unavailable", "", "ON", "1"} {
		_, ok := ParseDirection(state)
		require.False(t, ok, "state %q must not parse", state)
	}
}
