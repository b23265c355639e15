package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps locations in process memory, newest first. It is lost on
// restart.
type MemoryStore struct {
	mu    sync.Mutex
	items []SavedLocation
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) Save(_ context.Context, loc SavedLocation) (SavedLocation, error) {
	if err := loc.Coordinates.Validate(); err != nil {
		return SavedLocation{}, fmt.Errorf("store: save: %w", err)
	}
	loc.Name = defaultName(loc)

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.items {
		if !near(existing.Coordinates, loc.Coordinates) {
			continue
		}
		merged := existing
		merged.Name = loc.Name
		merged.Coordinates = loc.Coordinates
		merged.Report = loc.Report
		if loc.Address != "" {
			merged.Address = loc.Address
		}
		if loc.Note != "" {
			merged.Note = loc.Note
		}
		if loc.Risk != nil {
			merged.Risk = loc.Risk
		}
		m.items[i] = merged
		return merged, nil
	}

	if loc.ID == uuid.Nil {
		loc.ID = uuid.New()
	}
	loc.CreatedAt = m.now().UTC()
	m.items = append([]SavedLocation{loc}, m.items...)
	return loc, nil
}

func (m *MemoryStore) List(context.Context) ([]SavedLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SavedLocation(nil), m.items...), nil
}

func (m *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, loc := range m.items {
		if loc.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return ErrLocationNotFound
}

func (m *MemoryStore) UpdateNote(_ context.Context, id uuid.UUID, note string) (SavedLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].Note = strings.TrimSpace(note)
			return m.items[i], nil
		}
	}
	return SavedLocation{}, ErrLocationNotFound
}
