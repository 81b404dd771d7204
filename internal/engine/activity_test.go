package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityLogNewestFirst(t *testing.T) {
	log := NewActivityLog()
	log.Add(ActivityInfo, "first", nil)
	log.Add(ActivityWarning, "second", nil)
	log.Add(ActivitySuccess, "third", map[string]any{"pnl": 1.5})

	entries := log.Recent(2)
	require.Len(t, entries, 2)
	assert.Equal(t, "third", entries[0].Message)
	assert.Equal(t, "second", entries[1].Message)
	assert.Equal(t, 1.5, entries[0].Data["pnl"])
}

func TestActivityLogEvictsOldest(t *testing.T) {
	log := NewActivityLog()
	for i := 0; i < activityCap+20; i++ {
		log.Add(ActivityInfo, fmt.Sprintf("entry %d", i), nil)
	}

	assert.Equal(t, activityCap, log.Len())

	entries := log.Recent(0)
	require.Len(t, entries, activityCap)
	assert.Equal(t, fmt.Sprintf("entry %d", activityCap+19), entries[0].Message)
	// Oldest retained entry is the one just past the eviction point
	assert.Equal(t, "entry 20", entries[len(entries)-1].Message)
}

func TestActivityLogTimestampFormat(t *testing.T) {
	log := NewActivityLog()
	log.Add(ActivityError, "boom", nil)

	entries := log.Recent(1)
	require.Len(t, entries, 1)

	ts, err := time.Parse(time.RFC3339, entries[0].Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts, 5*time.Second)
}

func TestActivityLogRecentBeyondLength(t *testing.T) {
	log := NewActivityLog()
	log.Add(ActivityInfo, "only", nil)

	assert.Len(t, log.Recent(50), 1)
	assert.Empty(t, NewActivityLog().Recent(10))
}
