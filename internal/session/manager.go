package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"ddorchestrator/internal/ddrerr"
	"ddorchestrator/internal/eventbus"
	"ddorchestrator/internal/logging"
	"ddorchestrator/internal/model"
)

// sessionHandle bundles the per-session mutex (spec section 5's
// single-active-transition invariant), the event bus, and the HITL resume
// channel a suspended workflow blocks on.
type sessionHandle struct {
	mu       sync.Mutex
	bus      *eventbus.Bus
	resumeCh chan ResumeSignal
	cancel   context.CancelCauseFunc

	// resumeMu/resumed make Resume single-use: once a signal has been
	// delivered, every later call is invalid_state, including after the
	// workflow has already drained resumeCh (so channel capacity alone is
	// never the guard).
	resumeMu sync.Mutex
	resumed  bool
}

// ResumeSignal carries a client's HITL decision into a suspended workflow.
type ResumeSignal struct {
	Action  string // "approve" | "revise"
	Payload map[string]any
}

// Manager is the Session Manager (spec 4.5): create, get, subscribe,
// resume, enforcing the single-active-transition invariant per session.
// Grounded on the teacher's pkg/core/debate/manager.go singleton
// (sync.Once + activeDebates map + cleanup goroutine), generalized to an
// injectable Store.
type Manager struct {
	store   Store
	mu      sync.RWMutex
	handles map[string]*sessionHandle

	// MaxConcurrentSessions bounds the number of non-terminal sessions this
	// process will hold open at once (spec 6.4 MAX_CONCURRENT_SESSIONS).
	// Zero (the zero-value default) means unbounded.
	MaxConcurrentSessions int
}

func NewManager(store Store) *Manager {
	m := &Manager{store: store, handles: make(map[string]*sessionHandle)}
	go m.cleanupLoop()
	return m
}

// cleanupLoop mirrors the teacher's hourly cleanup ticker
// (pkg/core/debate/manager.go cleanup), pruning sessions whose terminal
// state is older than the retention window.
func (m *Manager) cleanupLoop() {
	const retention = 24 * time.Hour
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		if err := m.store.Expire(context.Background(), time.Now().Add(-retention)); err != nil {
			logging.Warn("session manager: expire failed: %v", err)
		}
		m.pruneHandles(context.Background())
	}
}

// pruneHandles drops per-session handles (bus, resume channel, cancel
// func) whose session no longer exists in the Store, so a long-running
// process doesn't accumulate one handle per session forever; Expire above
// is what actually removes the session from the Store.
func (m *Manager) pruneHandles(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if _, found, err := m.store.Get(ctx, id); err == nil && !found {
			m.mu.Lock()
			delete(m.handles, id)
			m.mu.Unlock()
		}
	}
}

// Create implements create(initial_request) -> session_id. Fails with
// internal_error when MaxConcurrentSessions is set and already reached
// (spec 6.4 MAX_CONCURRENT_SESSIONS).
func (m *Manager) Create(ctx context.Context, userID, companyName string) (*model.Session, context.Context, error) {
	active := 0
	if m.MaxConcurrentSessions > 0 {
		m.mu.RLock()
		ids := make([]string, 0, len(m.handles))
		for id := range m.handles {
			ids = append(ids, id)
		}
		m.mu.RUnlock()
		for _, id := range ids {
			if s, found, err := m.store.Get(ctx, id); err == nil && found && s.State != model.StateCompleted && s.State != model.StateError {
				active++
			}
		}
	}
	if m.MaxConcurrentSessions > 0 && active >= m.MaxConcurrentSessions {
		return nil, nil, ddrerr.New(ddrerr.InternalError, "max concurrent sessions reached")
	}

	id := uuid.NewString()
	s := &model.Session{
		ID:          id,
		UserID:      userID,
		CompanyName: companyName,
		CreatedAt:   time.Now(),
		State:       model.StateInit,
		Context:     make(map[string]any),
	}
	if err := m.store.Put(ctx, s); err != nil {
		return nil, nil, err
	}

	sessionCtx, cancel := context.WithCancelCause(context.Background())

	m.mu.Lock()
	m.handles[id] = &sessionHandle{
		bus:      eventbus.New(),
		resumeCh: make(chan ResumeSignal, 1),
		cancel:   cancel,
	}
	m.mu.Unlock()

	return s, sessionCtx, nil
}

// Get implements get(session_id) -> session | not_found.
func (m *Manager) Get(ctx context.Context, id string) (*model.Session, error) {
	s, found, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ddrerr.New(ddrerr.SessionNotFound, "session not found: "+id)
	}
	return s, nil
}

// Subscribe implements subscribe(session_id) -> event_stream.
func (m *Manager) Subscribe(id string) (<-chan eventbus.Event, func(), error) {
	m.mu.RLock()
	h, ok := m.handles[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, ddrerr.New(ddrerr.SessionNotFound, "session not found: "+id)
	}
	ch, unsub := h.bus.Subscribe()
	return ch, unsub, nil
}

// Bus returns the session's event bus for the workflow to publish to.
func (m *Manager) Bus(id string) (*eventbus.Bus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handles[id]
	if !ok {
		return nil, false
	}
	return h.bus, true
}

// Lock acquires the per-session transition mutex (spec section 5);
// callers must Unlock when the transition completes.
func (m *Manager) Lock(id string) (func(), error) {
	m.mu.RLock()
	h, ok := m.handles[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ddrerr.New(ddrerr.SessionNotFound, "session not found: "+id)
	}
	h.mu.Lock()
	return h.mu.Unlock, nil
}

// Resume implements resume(session_id, user_input), valid only when
// state == HITL_REVIEW (spec 4.5, 6.1); fails with invalid_state
// otherwise, and on a second resume of the same session (spec 8 "double
// resume invalid_state").
func (m *Manager) Resume(ctx context.Context, id string, signal ResumeSignal) error {
	s, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.State != model.StateHITLReview {
		return ddrerr.New(ddrerr.InvalidState, "resume called outside HITL_REVIEW")
	}

	m.mu.RLock()
	h, ok := m.handles[id]
	m.mu.RUnlock()
	if !ok {
		return ddrerr.New(ddrerr.SessionNotFound, "session not found: "+id)
	}

	h.resumeMu.Lock()
	defer h.resumeMu.Unlock()
	if h.resumed {
		return ddrerr.New(ddrerr.InvalidState, "resume already delivered for this session")
	}
	h.resumed = true
	// resumeCh has capacity 1 and exactly one send ever reaches it, so
	// this never blocks.
	h.resumeCh <- signal
	return nil
}

// AwaitResume is called by the workflow at HITL_REVIEW; it blocks until
// Resume is called or ctx is canceled.
func (m *Manager) AwaitResume(ctx context.Context, id string) (ResumeSignal, error) {
	m.mu.RLock()
	h, ok := m.handles[id]
	m.mu.RUnlock()
	if !ok {
		return ResumeSignal{}, ddrerr.New(ddrerr.SessionNotFound, "session not found: "+id)
	}
	select {
	case sig := <-h.resumeCh:
		return sig, nil
	case <-ctx.Done():
		return ResumeSignal{}, context.Cause(ctx)
	}
}

// Cancel implements external cancellation (spec section 5): propagates to
// all in-flight calls for the session via context.CancelCause with
// reason=canceled.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	h, ok := m.handles[id]
	m.mu.RUnlock()
	if !ok {
		return ddrerr.New(ddrerr.SessionNotFound, "session not found: "+id)
	}
	h.cancel(errCanceled)
	return nil
}

var errCanceled = ddrerr.New(ddrerr.InternalError, "reason=canceled")

// Store exposes the underlying Store so the workflow can append/update
// steps without the manager mediating every call.
func (m *Manager) Store() Store { return m.store }
