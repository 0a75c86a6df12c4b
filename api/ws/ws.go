// Package ws implements the bidirectional streaming transport for the
// Start operation (spec section 6.1): the client opens a websocket, sends
// one initial JSON frame, the server runs the workflow and streams every
// bus event back as a frame, and at HITL_REVIEW the server sends a
// hitl_required frame and blocks for a single response frame before
// resuming. Grounded on the teacher's SSE handler
// (pkg/api/debate/handlers.go HandleStreamDebate) generalized from
// one-way SSE to duplex websocket, using gorilla/websocket since the
// teacher's own transport cannot carry the client-to-server resume frame
// a duplex HITL round trip needs.
package ws

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ddorchestrator/internal/logging"
	"ddorchestrator/internal/model"
	"ddorchestrator/internal/session"
	"ddorchestrator/internal/workflow"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// startFrame is the client's initial frame.
type startFrame struct {
	UserID      string                       `json:"user_id"`
	CompanyName string                       `json:"company_name"`
	BPBase64    string                       `json:"bp_file_base64"`
	BPMime      string                       `json:"bp_mime_type"`
	Preferences model.InstitutionPreferences `json:"preferences"`
}

// resumeFrame is the client's HITL response frame.
type resumeFrame struct {
	Action  string         `json:"action"` // approve | revise
	Payload map[string]any `json:"payload,omitempty"`
}

type outFrame struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

// Handler wires a websocket connection to the Session Manager and
// Orchestrator for the duration of one workflow run.
type Handler struct {
	Manager *session.Manager
	Orch    *workflow.Orchestrator
}

func NewHandler(mgr *session.Manager, orch *workflow.Orchestrator) *Handler {
	return &Handler{Manager: mgr, Orch: orch}
}

// safeConn serializes writes to the underlying connection: gorilla/websocket
// permits at most one concurrent writer, but this handler has an events
// goroutine writing JSON frames and the main goroutine writing ping control
// frames at the same time.
type safeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *safeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(v)
}

func (c *safeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteControl(messageType, data, deadline)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("ws: upgrade failed: %v", err)
		return
	}
	conn := &safeConn{Conn: rawConn}
	defer conn.Close()

	var start startFrame
	if err := conn.ReadJSON(&start); err != nil {
		writeError(conn, "invalid_request", "could not decode start frame: "+err.Error())
		return
	}

	bpBytes, err := decodeBase64(start.BPBase64)
	if err != nil {
		writeError(conn, "invalid_request", "bp_file_base64 is not valid base64")
		return
	}

	sess, ctx, err := h.Manager.Create(r.Context(), start.UserID, start.CompanyName)
	if err != nil {
		writeError(conn, "internal_error", err.Error())
		return
	}

	eventsCh, unsubscribe, err := h.Manager.Subscribe(sess.ID)
	if err != nil {
		writeError(conn, "internal_error", err.Error())
		return
	}
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range eventsCh {
			if err := conn.WriteJSON(outFrame{Kind: ev.Kind, Data: ev.Data}); err != nil {
				return
			}
			switch ev.Kind {
			case "hitl_required":
				go h.awaitResumeFrame(conn, sess.ID)
			case "workflow_complete", "buffer_overflow":
				return
			}
		}
	}()

	go func() {
		if _, werr := h.Orch.Run(ctx, sess, workflow.Input{
			BPBytes:     bpBytes,
			BPMime:      start.BPMime,
			Preferences: start.Preferences,
		}); werr != nil {
			logging.Warn("ws: session %s workflow run ended with error: %v", sess.ID, werr)
		}
	}()

	// Block until a ping write fails or the events goroutine stops: it
	// returns after writing workflow_complete or buffer_overflow, on a
	// write error, or when the subscriber channel is closed.
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()
	for {
		select {
		case <-done:
			return
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) awaitResumeFrame(conn *safeConn, sessionID string) {
	var frame resumeFrame
	if err := conn.ReadJSON(&frame); err != nil {
		return
	}
	_ = h.Manager.Resume(context.Background(), sessionID, session.ResumeSignal{Action: frame.Action, Payload: frame.Payload})
}

func decodeBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func writeError(conn *safeConn, kind, message string) {
	_ = conn.WriteJSON(outFrame{Kind: kind, Data: map[string]string{"error": message}})
}
