// Package model defines the data types shared across the orchestrator:
// sessions, steps, workflow state, business-plan structured data, analysis
// outputs, and the roundtable's message types.
package model

import "time"

// WorkflowState enumerates the DD State Machine's states.
type WorkflowState string

const (
	StateInit            WorkflowState = "INIT"
	StateDocParse        WorkflowState = "DOC_PARSE"
	StatePreferenceCheck WorkflowState = "PREFERENCE_CHECK"
	StateTDD             WorkflowState = "TDD"
	StateMDD             WorkflowState = "MDD"
	StateCrossCheck      WorkflowState = "CROSS_CHECK"
	StateDDQuestions     WorkflowState = "DD_QUESTIONS"
	StateHITLReview      WorkflowState = "HITL_REVIEW"
	StateCompleted       WorkflowState = "COMPLETED"
	StateError           WorkflowState = "ERROR"
)

// StepStatus enumerates a Step's lifecycle.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
	StepPaused  StepStatus = "paused"
)

// Step is one recorded unit of workflow progress. Once Status is Success or
// Error it is immutable; steps are appended in order and never reordered.
type Step struct {
	Index       int            `json:"index"`
	Title       string         `json:"title"`
	Status      StepStatus     `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	Degraded    bool           `json:"degraded,omitempty"`
	Percent     int            `json:"percent,omitempty"`
	SubStep     string         `json:"sub_step,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at,omitempty"`
}

// Session is a session-scoped run of the DD workflow.
type Session struct {
	ID             string         `json:"session_id"`
	UserID         string         `json:"user_id"`
	CompanyName    string         `json:"company_name"`
	CreatedAt      time.Time      `json:"created_at"`
	State          WorkflowState  `json:"state"`
	Steps          []Step         `json:"steps"`
	Context        map[string]any `json:"context"`
	CanceledReason string         `json:"canceled_reason,omitempty"`
}

// SessionSnapshot is the client-facing view returned by get/resume.
type SessionSnapshot struct {
	SessionID string         `json:"session_id"`
	State     WorkflowState  `json:"state"`
	Steps     []Step         `json:"steps"`
	Context   map[string]any `json:"context,omitempty"`
}

func (s *Session) Snapshot() SessionSnapshot {
	stepsCopy := make([]Step, len(s.Steps))
	copy(stepsCopy, s.Steps)
	return SessionSnapshot{
		SessionID: s.ID,
		State:     s.State,
		Steps:     stepsCopy,
		Context:   s.Context,
	}
}
