package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithinHeartbeatWindow(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)
	slack := 10 * time.Minute

	assert.True(t, withinHeartbeatWindow(start, end, start, slack))
	assert.True(t, withinHeartbeatWindow(start, end, end, slack))
	assert.True(t, withinHeartbeatWindow(start, end, start.Add(-slack), slack))
	assert.True(t, withinHeartbeatWindow(start, end, end.Add(slack), slack))

	assert.False(t, withinHeartbeatWindow(start, end, start.Add(-slack-time.Second), slack))
	assert.False(t, withinHeartbeatWindow(start, end, end.Add(slack+time.Second), slack))
}

func TestWithinJoinWindow(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	grace := 10 * time.Minute

	assert.True(t, withinJoinWindow(start, start, grace))
	assert.True(t, withinJoinWindow(start, start.Add(-grace), grace))
	assert.True(t, withinJoinWindow(start, start.Add(grace), grace))

	assert.False(t, withinJoinWindow(start, start.Add(-grace-time.Second), grace))
	assert.False(t, withinJoinWindow(start, start.Add(grace+time.Second), grace))
	// Half an hour late is well past the grace window even though the
	// session itself is still running.
	assert.False(t, withinJoinWindow(start, start.Add(30*time.Minute), grace))
}

func TestShouldCountBeat(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 5, 0, 0, time.UTC)
	min := 25 * time.Second
	at := func(t time.Time) *time.Time { return &t }

	// First beat always counts.
	assert.True(t, shouldCountBeat(nil, now, min))

	// Exactly the minimum interval apart counts.
	assert.True(t, shouldCountBeat(at(now.Add(-min)), now, min))
	assert.True(t, shouldCountBeat(at(now.Add(-time.Minute)), now, min))

	// Anything closer is acknowledged but not counted.
	assert.False(t, shouldCountBeat(at(now.Add(-min+time.Second)), now, min))
	assert.False(t, shouldCountBeat(at(now), now, min))
}
