package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ddorchestrator/internal/agents"
	"ddorchestrator/internal/model"
	"ddorchestrator/internal/serviceclients/externaldata"
	"ddorchestrator/internal/serviceclients/internalknowledge"
	"ddorchestrator/internal/serviceclients/llmgateway"
	"ddorchestrator/internal/serviceclients/websearch"
	"ddorchestrator/internal/session"
	"ddorchestrator/internal/workflow"
)

func testHandler() (*Handler, *session.Manager) {
	mgr := session.NewManager(session.NewMemoryStore())
	deps := agents.Deps{
		LLM:               llmgateway.New("", "test-model"),
		WebSearch:         websearch.New(""),
		ExternalData:      externaldata.New(""),
		InternalKnowledge: internalknowledge.New("", internalknowledge.NewMemoryBackend()),
		ModelID:           "test-model",
		CallTimeout:       2 * time.Second,
	}
	orch := workflow.NewOrchestrator(mgr, deps, nil)
	return NewHandler(mgr, orch), mgr
}

func multipartStart(t *testing.T, fields map[string]string, fileContents string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if fileContents != "" {
		fw, err := mw.CreateFormFile("bp_file", "plan.pdf")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(fileContents)); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func TestStart_MissingCompanyNameIsBadRequest(t *testing.T) {
	h, _ := testHandler()
	body, contentType := multipartStart(t, map[string]string{"user_id": "u1"}, "")
	req := httptest.NewRequest(http.MethodPost, "/api/dd/start", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Start(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStart_PreferenceAbortReturnsCompletedResult(t *testing.T) {
	h, _ := testHandler()
	// Against the minimal fallback BP the degraded parser produces, these
	// requirements drive the weighted score below threshold, so the run
	// terminates synchronously at PREFERENCE_CHECK without suspending.
	prefs, _ := json.Marshal(model.InstitutionPreferences{
		MinTeamSize:    3,
		RequireRevenue: true,
		RequireProduct: true,
	})
	body, contentType := multipartStart(t, map[string]string{
		"user_id":      "u1",
		"company_name": "Acme Robotics",
		"preferences":  string(prefs),
	}, "raw plan bytes")
	req := httptest.NewRequest(http.MethodPost, "/api/dd/start", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Start(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp startResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State != model.StateCompleted {
		t.Errorf("expected COMPLETED, got %s", resp.State)
	}
	if resp.Result == nil || resp.Result.PreferenceMatch == nil {
		t.Fatal("expected a preference-match result on early abort")
	}
	if resp.Result.PreferenceMatch.Recommendation != model.RecommendAbort {
		t.Errorf("expected abort recommendation, got %s", resp.Result.PreferenceMatch.Recommendation)
	}
	if resp.Result.TeamSection != nil {
		t.Error("expected no team section past an aborted preference check")
	}
	if len(resp.Events) == 0 {
		t.Error("expected buffered bus events in the response")
	}
}

func TestStart_SuspendsAtHITLReview(t *testing.T) {
	h, mgr := testHandler()
	body, contentType := multipartStart(t, map[string]string{
		"user_id":      "u1",
		"company_name": "Acme Robotics",
	}, "raw plan bytes")
	req := httptest.NewRequest(http.MethodPost, "/api/dd/start", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Start(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp startResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State != model.StateHITLReview {
		t.Fatalf("expected HITL_REVIEW, got %s", resp.State)
	}

	// The suspended workflow is still resumable through the manager.
	if err := mgr.Resume(context.Background(), resp.SessionID, session.ResumeSignal{Action: "approve"}); err != nil {
		t.Fatalf("resume after buffered start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		sess, err := mgr.Get(context.Background(), resp.SessionID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if sess.State == model.StateCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("session never completed after resume, state %s", sess.State)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestGet_UnknownSessionIsNotFound(t *testing.T) {
	h, _ := testHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/dd/get?session_id=nope", nil)
	rec := httptest.NewRecorder()

	h.Get(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestResume_OutsideHITLReviewIsConflict(t *testing.T) {
	h, mgr := testHandler()
	sess, _, err := mgr.Create(context.Background(), "u1", "Acme Robotics")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	payload, _ := json.Marshal(resumeRequest{SessionID: sess.ID, Action: "approve"})
	req := httptest.NewRequest(http.MethodPost, "/api/dd/resume", bytes.NewReader(payload))
	rec := httptest.NewRecorder()

	h.Resume(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "invalid_state") {
		t.Errorf("expected invalid_state in error body, got %s", rec.Body.String())
	}
}

func TestResume_UnknownSessionIsNotFound(t *testing.T) {
	h, _ := testHandler()
	payload, _ := json.Marshal(resumeRequest{SessionID: "nope", Action: "approve"})
	req := httptest.NewRequest(http.MethodPost, "/api/dd/resume", bytes.NewReader(payload))
	rec := httptest.NewRecorder()

	h.Resume(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}
