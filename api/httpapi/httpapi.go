// Package httpapi implements the request/response transport for the
// Start, Get, and Resume operations (spec section 6.1): a buffered
// (non-streaming) Start that blocks until the workflow reaches a
// terminal or suspended state and returns the accumulated events plus
// whatever result is available, a Get returning a SessionSnapshot, and a
// Resume delivering a client's HITL decision. Grounded on the teacher's
// pkg/api/debate/handlers.go CORS-and-method-check handler shape,
// generalized from JSON-only bodies to multipart/form-data for the
// Start endpoint's business-plan file upload.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"ddorchestrator/internal/ddrerr"
	"ddorchestrator/internal/eventbus"
	"ddorchestrator/internal/model"
	"ddorchestrator/internal/session"
	"ddorchestrator/internal/workflow"
)

const maxUploadBytes = 25 << 20 // 25 MiB, matching the teacher's edgar upload handler cap

// Handler wires HTTP requests to the Session Manager and Orchestrator.
type Handler struct {
	Manager *session.Manager
	Orch    *workflow.Orchestrator
}

func NewHandler(mgr *session.Manager, orch *workflow.Orchestrator) *Handler {
	return &Handler{Manager: mgr, Orch: orch}
}

func cors(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// startResponse is returned once the workflow run finishes, is suspended
// at HITL_REVIEW, or errors; events accumulates every bus event observed
// while this request was blocked waiting.
type startResponse struct {
	SessionID string               `json:"session_id"`
	State     model.WorkflowState  `json:"state"`
	Events    []eventbus.Event     `json:"events"`
	Result    *model.PreliminaryIM `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// Start accepts multipart/form-data: company_name, user_id, bp_file, and
// a preferences JSON field, runs the workflow synchronously, and returns
// once it reaches HITL_REVIEW, COMPLETED, or ERROR.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	cors(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	userID := r.FormValue("user_id")
	companyName := r.FormValue("company_name")
	if companyName == "" {
		http.Error(w, "company_name is required", http.StatusBadRequest)
		return
	}

	var prefs model.InstitutionPreferences
	if raw := r.FormValue("preferences"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
			http.Error(w, "preferences is not valid JSON", http.StatusBadRequest)
			return
		}
	}

	var bpBytes []byte
	bpMime := "application/octet-stream"
	if file, header, err := r.FormFile("bp_file"); err == nil {
		defer file.Close()
		bpBytes, err = io.ReadAll(file)
		if err != nil {
			http.Error(w, "could not read bp_file", http.StatusBadRequest)
			return
		}
		if ct := header.Header.Get("Content-Type"); ct != "" {
			bpMime = ct
		}
	}

	sess, ctx, err := h.Manager.Create(r.Context(), userID, companyName)
	if err != nil {
		writeJSONError(w, err)
		return
	}

	eventsCh, unsubscribe, err := h.Manager.Subscribe(sess.ID)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	defer unsubscribe()

	resultCh := make(chan struct {
		im  *model.PreliminaryIM
		err error
	}, 1)
	go func() {
		im, werr := h.Orch.Run(ctx, sess, workflow.Input{BPBytes: bpBytes, BPMime: bpMime, Preferences: prefs})
		resultCh <- struct {
			im  *model.PreliminaryIM
			err error
		}{im, werr}
	}()

	var events []eventbus.Event
	for {
		select {
		case ev := <-eventsCh:
			events = append(events, ev)
			if ev.Kind == "hitl_required" {
				writeJSON(w, http.StatusOK, startResponse{SessionID: sess.ID, State: model.StateHITLReview, Events: events})
				return
			}
		case res := <-resultCh:
			// The result can win the select while the subscriber channel
			// still holds buffered events; drain them so the buffered
			// response carries the full event sequence.
		drain:
			for {
				select {
				case ev := <-eventsCh:
					events = append(events, ev)
				default:
					break drain
				}
			}
			state := model.StateCompleted
			errMsg := ""
			if res.err != nil {
				state = model.StateError
				errMsg = res.err.Error()
			}
			writeJSON(w, http.StatusOK, startResponse{SessionID: sess.ID, State: state, Events: events, Result: res.im, Error: errMsg})
			return
		}
	}
}

// Get returns the session's current snapshot.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cors(w)
	id := r.URL.Query().Get("session_id")
	if id == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	sess, err := h.Manager.Get(r.Context(), id)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type resumeRequest struct {
	SessionID string         `json:"session_id"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Resume delivers a client's HITL decision to a suspended workflow.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	cors(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.Action == "" {
		http.Error(w, "session_id and action are required", http.StatusBadRequest)
		return
	}

	if err := h.Manager.Resume(r.Context(), req.SessionID, session.ResumeSignal{Action: req.Action, Payload: req.Payload}); err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if ddrerr.KindOf(err) == ddrerr.SessionNotFound {
		status = http.StatusNotFound
	}
	if ddrerr.KindOf(err) == ddrerr.InvalidState {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
