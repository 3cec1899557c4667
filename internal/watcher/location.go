package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unklstewy/overhead/pkg/coordinates"
)

// Location supplies the observer position for a check.
type Location interface {
	Location(ctx context.Context) (coordinates.Geographic, error)
}

// StaticLocation is a fixed observer position.
type StaticLocation coordinates.Geographic

// Location returns the fixed position.
func (s StaticLocation) Location(context.Context) (coordinates.Geographic, error) {
	return coordinates.Geographic(s), nil
}

// MutableLocation is a position that can be updated while the watcher
// runs, for example by a phone reporting where it is.
type MutableLocation struct {
	mu        sync.RWMutex
	loc       coordinates.Geographic
	updatedAt time.Time
}

// NewMutableLocation starts at initial.
func NewMutableLocation(initial coordinates.Geographic) *MutableLocation {
	return &MutableLocation{loc: initial}
}

// Location returns the current position.
func (m *MutableLocation) Location(context.Context) (coordinates.Geographic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loc, nil
}

// Set replaces the position. Out of range coordinates are rejected.
func (m *MutableLocation) Set(loc coordinates.Geographic) error {
	if !loc.Valid() {
		return fmt.Errorf("invalid location (%.4f, %.4f)", loc.Latitude, loc.Longitude)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loc = loc
	m.updatedAt = time.Now()
	return nil
}

// UpdatedAt is when Set last succeeded; zero if never.
func (m *MutableLocation) UpdatedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updatedAt
}
