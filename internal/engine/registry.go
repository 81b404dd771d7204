package engine

import (
	"errors"
	"sync"
)

// ErrBotNotFound is returned when a registry lookup misses
var ErrBotNotFound = errors.New("engine: bot not found")

// Registry tracks running traders by config ID. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	traders map[string]*Trader
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{traders: make(map[string]*Trader)}
}

// Add registers a trader under its config ID, replacing any previous entry
func (r *Registry) Add(configID string, trader *Trader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traders[configID] = trader
}

// Get returns the trader for a config ID
func (r *Registry) Get(configID string) (*Trader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	trader, ok := r.traders[configID]
	if !ok {
		return nil, ErrBotNotFound
	}
	return trader, nil
}

// Remove stops the trader if running and drops it from the registry
func (r *Registry) Remove(configID string) error {
	r.mu.Lock()
	trader, ok := r.traders[configID]
	if ok {
		delete(r.traders, configID)
	}
	r.mu.Unlock()

	if !ok {
		return ErrBotNotFound
	}
	if trader.State() == StateRunning {
		return trader.Stop()
	}
	return nil
}

// List returns the registered config IDs
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.traders))
	for id := range r.traders {
		ids = append(ids, id)
	}
	return ids
}

// StopAll stops every running trader, returning the first error seen
func (r *Registry) StopAll() error {
	r.mu.RLock()
	traders := make([]*Trader, 0, len(r.traders))
	for _, t := range r.traders {
		traders = append(traders, t)
	}
	r.mu.RUnlock()

	var firstErr error
	for _, t := range traders {
		if t.State() != StateRunning {
			continue
		}
		if err := t.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
