package reputation

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	source string
	until  time.Time
	calls  int
}

func (r *recordingNotifier) NotifyBlacklisted(source string, until time.Time) {
	r.source = source
	r.until = until
	r.calls++
}

func TestCache_BlacklistsAfterThreshold(t *testing.T) {
	n := &recordingNotifier{}
	c := New(3, 10*time.Minute, 5*time.Minute, zerolog.Nop(), n)

	c.RecordFailure("1.2.3.4")
	require.False(t, c.IsBlacklisted("1.2.3.4"))
	c.RecordFailure("1.2.3.4")
	require.False(t, c.IsBlacklisted("1.2.3.4"))
	c.RecordFailure("1.2.3.4")

	require.True(t, c.IsBlacklisted("1.2.3.4"))
	require.Equal(t, 1, n.calls)
	require.Equal(t, "1.2.3.4", n.source)
}

func TestCache_UnknownSourceNotBlacklisted(t *testing.T) {
	c := New(3, time.Minute, time.Minute, zerolog.Nop(), nil)
	require.False(t, c.IsBlacklisted("9.9.9.9"))
}

func TestCache_SweepEvictsAgedExpiredEntries(t *testing.T) {
	c := New(1, time.Millisecond, time.Millisecond, zerolog.Nop(), nil)

	c.RecordFailure("1.2.3.4")
	require.True(t, c.IsBlacklisted("1.2.3.4"))

	time.Sleep(5 * time.Millisecond)
	c.Sweep()

	require.False(t, c.IsBlacklisted("1.2.3.4"))
	c.mu.Lock()
	_, present := c.entries["1.2.3.4"]
	c.mu.Unlock()
	require.False(t, present)
}

func TestCache_SweepKeepsStillBlacklisted(t *testing.T) {
	c := New(1, time.Hour, time.Millisecond, zerolog.Nop(), nil)

	c.RecordFailure("1.2.3.4")
	time.Sleep(5 * time.Millisecond)
	c.Sweep()

	// lastActivity is aged out, but BlacklistedUntil is an hour away:
	// must survive the sweep.
	require.True(t, c.IsBlacklisted("1.2.3.4"))
}
