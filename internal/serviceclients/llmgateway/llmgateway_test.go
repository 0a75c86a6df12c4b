package llmgateway

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestGenerate_NoAPIKeyIsServiceUnavailable(t *testing.T) {
	c := New("", "gemini-2.0-flash")
	_, err := c.Generate(context.Background(), "system", "prompt", GenConfig{})
	if err == nil {
		t.Fatal("expected an error when no API key is configured")
	}
}

func TestGenerateWithFile_NoAPIKeyIsServiceUnavailable(t *testing.T) {
	c := New("", "gemini-2.0-flash")
	_, err := c.GenerateWithFile(context.Background(), "system", "prompt", []byte("pdf bytes"), "application/pdf", GenConfig{})
	if err == nil {
		t.Fatal("expected an error when no API key is configured")
	}
}

func TestGenerateWithTools_PropagatesUnderlyingFailure(t *testing.T) {
	c := New("", "gemini-2.0-flash")
	_, err := c.GenerateWithTools(context.Background(), "system", "prompt", []Tool{{Name: "google_search"}}, 1, GenConfig{})
	if err == nil {
		t.Fatal("expected GenerateWithTools to surface the underlying Generate error")
	}
}

func TestModel_PrefersCallConfigThenClientDefaultThenHardcodedFallback(t *testing.T) {
	c := New("key", "")
	if got := c.model(GenConfig{ModelID: "gemini-2.5-pro"}); got != "gemini-2.5-pro" {
		t.Fatalf("expected call-level override, got %s", got)
	}

	c2 := New("key", "gemini-1.5-flash")
	if got := c2.model(GenConfig{}); got != "gemini-1.5-flash" {
		t.Fatalf("expected client default, got %s", got)
	}

	c3 := New("key", "")
	if got := c3.model(GenConfig{}); got != "gemini-2.0-flash" {
		t.Fatalf("expected hardcoded fallback, got %s", got)
	}
}

func TestClassifyError_MapsKnownFailureKinds(t *testing.T) {
	cases := []struct {
		msg  string
		want FailureKind
	}{
		{"context deadline exceeded", FailureTimeout},
		{"rate limit exceeded", FailureRateLimited},
		{"got status 429", FailureRateLimited},
		{"something unexpected happened", FailureUpstreamError},
	}
	for _, tc := range cases {
		err := classifyError(errors.New(tc.msg))
		if !strings.Contains(err.Error(), string(tc.want)) {
			t.Errorf("classifyError(%q): expected kind %s in %q", tc.msg, tc.want, err.Error())
		}
	}
}

func TestBuildConfig_JSONModeSetsResponseMIMEType(t *testing.T) {
	c := New("key", "gemini-2.0-flash")
	cfg := c.buildConfig("system prompt", GenConfig{JSONMode: true})
	if cfg.ResponseMIMEType != "application/json" {
		t.Fatalf("expected application/json response MIME type, got %s", cfg.ResponseMIMEType)
	}
	if cfg.SystemInstruction == nil {
		t.Fatal("expected system instruction to be set")
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key-123")
	if got := APIKeyFromEnv(); got != "test-key-123" {
		t.Fatalf("expected env var value, got %s", got)
	}
}
