// Package session implements the Session Manager (spec 4.5): create, get,
// subscribe, resume, plus the pluggable Store interface backing session
// persistence (spec 6.3). Grounded on the teacher's
// pkg/core/debate/manager.go singleton-with-cleanup-goroutine pattern,
// generalized from "one map of debates" to a Store interface with two
// implementations (memory, redis).
package session

import (
	"context"
	"time"

	"ddorchestrator/internal/model"
)

// Store is the pluggable session-persistence capability (spec 6.3):
// get, put, append_step, update_state, mark_terminal.
type Store interface {
	Put(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, bool, error)
	AppendStep(ctx context.Context, id string, step model.Step) error
	UpdateState(ctx context.Context, id string, state model.WorkflowState) error
	UpdateStep(ctx context.Context, id string, step model.Step) error
	MarkTerminal(ctx context.Context, id string, state model.WorkflowState, canceledReason string) error
	Delete(ctx context.Context, id string) error
	// Expire removes sessions whose terminal state was reached before
	// cutoff, mirroring the teacher's hourly cleanup ticker
	// (pkg/core/debate/manager.go cleanup) generalized to any Store.
	Expire(ctx context.Context, cutoff time.Time) error
}
