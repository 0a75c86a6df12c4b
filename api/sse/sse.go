// Package sse implements the streaming transport for the Roundtable
// Meeting endpoints (spec 6.1): agents_ready, a sequence of agent_event
// frames, then discussion_complete carrying the meeting summary, plus an
// intervention endpoint a human can POST to mid-meeting. Grounded
// directly on the teacher's pkg/api/debate/handlers.go
// HandleStreamDebate (Subscribe/Unsubscribe, history replay, heartbeat
// ticker, sendSSE/sendSSEEvent helpers), generalized from one fixed
// debate orchestrator to the registry of concurrently running Meetings
// below.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ddorchestrator/internal/logging"
	"ddorchestrator/internal/model"
	"ddorchestrator/internal/prompt"
	"ddorchestrator/internal/roundtable"
	"ddorchestrator/internal/serviceclients/llmgateway"
)

// Registry tracks in-flight roundtable meetings by topic ID so the SSE
// handler and the intervention handler can find the same *roundtable.Meeting.
type Registry struct {
	mu       sync.Mutex
	meetings map[string]*roundtable.Meeting
}

func NewRegistry() *Registry {
	return &Registry{meetings: make(map[string]*roundtable.Meeting)}
}

func (r *Registry) put(id string, m *roundtable.Meeting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meetings[id] = m
}

func (r *Registry) get(id string) (*roundtable.Meeting, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[id]
	return m, ok
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.meetings, id)
}

// StartRequest is the JSON body accepted by Handler.Start.
type StartRequest struct {
	TopicID     string               `json:"topic_id"`
	Topic       string               `json:"topic"`
	CompanyName string               `json:"company_name"`
	Context     map[string]any       `json:"context,omitempty"`
	Profiles    []model.AgentProfile `json:"agent_profiles"`
	MaxRounds   int                  `json:"max_rounds,omitempty"`
}

// InterventionRequest is the JSON body accepted by Handler.Intervene.
type InterventionRequest struct {
	TopicID string `json:"topic_id"`
	Content string `json:"content"`
}

// Handler wires HTTP requests to roundtable.Meeting runs.
type Handler struct {
	LLM      *llmgateway.Client
	ModelID  string
	Registry *Registry
	Prompts  *prompt.Registry
}

func NewHandler(llm *llmgateway.Client, modelID string) *Handler {
	return &Handler{LLM: llm, ModelID: modelID, Registry: NewRegistry()}
}

// Start begins a roundtable meeting and streams its messages as SSE
// frames: agents_ready, then one agent_event frame per emitted message,
// then discussion_complete carrying the model.MeetingSummary.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Content-Type", "text/event-stream")

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.TopicID == "" || len(req.Profiles) == 0 {
		http.Error(w, "topic_id and agent_profiles are required", http.StatusBadRequest)
		return
	}

	participants := make([]roundtable.Participant, 0, len(req.Profiles))
	for _, p := range req.Profiles {
		participants = append(participants, &roundtable.LLMParticipant{AgentProfile: p, LLM: h.LLM, ModelID: h.ModelID, Prompts: h.Prompts})
	}
	meeting := roundtable.NewMeeting(roundtable.MeetingContext{
		Topic:       req.Topic,
		CompanyName: req.CompanyName,
		Context:     req.Context,
	}, participants, req.MaxRounds)
	h.Registry.put(req.TopicID, meeting)
	defer h.Registry.remove(req.TopicID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sendSSEEvent(w, flusher, "agents_ready", req.Profiles)

	msgCh := make(chan model.Message, 64)
	done := make(chan model.MeetingSummary, 1)
	go func() {
		summary := meeting.Run(r.Context(), func(msg model.Message) {
			select {
			case msgCh <- msg:
			default:
				logging.Warn("sse: topic %s agent_event channel full, dropping message from %s", req.TopicID, msg.Sender)
			}
		})
		close(msgCh)
		done <- summary
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	notify := r.Context().Done()

	var pendingSummary *model.MeetingSummary
	for {
		select {
		case msg, open := <-msgCh:
			if !open {
				msgCh = nil
				if pendingSummary != nil {
					sendSSEEvent(w, flusher, "discussion_complete", *pendingSummary)
					return
				}
				continue
			}
			sendSSEEvent(w, flusher, "agent_event", msg)
		case summary := <-done:
			// msgCh may still hold buffered agent_event messages; defer
			// discussion_complete until msgCh reports closed so every
			// message the meeting emitted is drained first.
			if msgCh == nil {
				sendSSEEvent(w, flusher, "discussion_complete", summary)
				return
			}
			pendingSummary = &summary
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

// Intervene injects a human message into a running meeting (spec 4.6
// external_intervention, the one mid-meeting write this package performs).
func (h *Handler) Intervene(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	var req InterventionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	meeting, ok := h.Registry.get(req.TopicID)
	if !ok {
		http.Error(w, "no running meeting for topic_id", http.StatusNotFound)
		return
	}
	meeting.Intervene(req.Content)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "submitted"})
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
