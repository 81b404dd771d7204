// Package engine contains the trading control loop: the decision pipeline,
// the per-bot trader lifecycle and the registry of running bots.
package engine

import (
	"sync"
	"time"
)

// activityCap bounds the in-memory activity ring
const activityCap = 100

// ActivityLevel classifies an activity entry
type ActivityLevel string

const (
	ActivityInfo    ActivityLevel = "info"
	ActivityWarning ActivityLevel = "warning"
	ActivityError   ActivityLevel = "error"
	ActivitySuccess ActivityLevel = "success"
)

// ActivityEntry is one row of the bot's recent-activity feed
type ActivityEntry struct {
	Timestamp string         `json:"timestamp"` // RFC3339, UTC
	Level     ActivityLevel  `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// ActivityLog is a fixed-capacity ring of recent bot activity, newest
// last. Safe for concurrent use.
type ActivityLog struct {
	mu      sync.RWMutex
	entries []ActivityEntry
}

// NewActivityLog creates an empty activity log
func NewActivityLog() *ActivityLog {
	return &ActivityLog{}
}

// Add appends an entry, evicting the oldest when full
func (l *ActivityLog) Add(level ActivityLevel, message string, data map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, ActivityEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Message:   message,
		Data:      data,
	})
	if len(l.entries) > activityCap {
		l.entries = l.entries[len(l.entries)-activityCap:]
	}
}

// Recent returns up to n entries, newest first
func (l *ActivityLog) Recent(n int) []ActivityEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]ActivityEntry, n)
	for i := 0; i < n; i++ {
		out[i] = l.entries[len(l.entries)-1-i]
	}
	return out
}

// Len returns the number of retained entries
func (l *ActivityLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
