package tracker

import (
	"context"
	"sort"
	"sync"
	"time"
)

type Memory struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

func (m *Memory) Begin(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	s.UpdatedAt = now
	m.sessions[s.ID] = s
	return nil
}

// Update changes the state of a tracked session. A pid of 0 keeps the
// previous pid. Unknown ids are ignored.
func (m *Memory) Update(_ context.Context, id, state string, pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	s.State = state
	if pid != 0 {
		s.PID = pid
	}
	s.UpdatedAt = m.now().UTC()
	m.sessions[id] = s
	return nil
}

func (m *Memory) End(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// List returns live sessions, oldest first.
func (m *Memory) List(_ context.Context) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sortByStart(out)
	return out, nil
}

func sortByStart(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
}
