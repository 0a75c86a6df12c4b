package session

import (
	"context"
	"sync"
	"time"

	"ddorchestrator/internal/ddrerr"
	"ddorchestrator/internal/model"
)

type memoryEntry struct {
	session    *model.Session
	terminalAt time.Time
	isTerminal bool
}

// MemoryStore is the in-memory Store implementation, adequate for
// single-process deployment (spec 6.3). Entries expire on a timer exactly
// like the teacher's debate.DebateManager cleanup goroutine.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func (m *MemoryStore) Put(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[s.ID] = &memoryEntry{session: s}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*model.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false, nil
	}
	return e.session, true, nil
}

func (m *MemoryStore) AppendStep(_ context.Context, id string, step model.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return ddrerr.New(ddrerr.SessionNotFound, "session not found: "+id)
	}
	e.session.Steps = append(e.session.Steps, step)
	return nil
}

func (m *MemoryStore) UpdateStep(_ context.Context, id string, step model.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return ddrerr.New(ddrerr.SessionNotFound, "session not found: "+id)
	}
	for i := range e.session.Steps {
		if e.session.Steps[i].Index == step.Index {
			e.session.Steps[i] = step
			return nil
		}
	}
	return ddrerr.New(ddrerr.InternalError, "step not found for update")
}

func (m *MemoryStore) UpdateState(_ context.Context, id string, state model.WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return ddrerr.New(ddrerr.SessionNotFound, "session not found: "+id)
	}
	e.session.State = state
	return nil
}

func (m *MemoryStore) MarkTerminal(_ context.Context, id string, state model.WorkflowState, canceledReason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return ddrerr.New(ddrerr.SessionNotFound, "session not found: "+id)
	}
	e.session.State = state
	e.session.CanceledReason = canceledReason
	e.isTerminal = true
	e.terminalAt = time.Now()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) Expire(_ context.Context, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.isTerminal && e.terminalAt.Before(cutoff) {
			delete(m.entries, id)
		}
	}
	return nil
}
