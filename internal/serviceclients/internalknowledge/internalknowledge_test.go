package internalknowledge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearch_NoBackendNoURLReturnsEmpty(t *testing.T) {
	c := New("", nil)
	chunks, err := c.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunks != nil {
		t.Fatalf("expected nil chunks, got %v", chunks)
	}
}

func TestSearch_MemoryBackendSubstringMatch(t *testing.T) {
	backend := NewMemoryBackend()
	_ = backend.Add(context.Background(), Chunk{Content: "the quick brown fox"})
	_ = backend.Add(context.Background(), Chunk{Content: "lorem ipsum dolor"})

	c := New("", backend)
	chunks, err := c.Search(context.Background(), "Quick", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Content != "the quick brown fox" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}

func TestSearch_MemoryBackendRespectsLimit(t *testing.T) {
	backend := NewMemoryBackend()
	for i := 0; i < 5; i++ {
		_ = backend.Add(context.Background(), Chunk{Content: "match me"})
	}

	c := New("", backend)
	chunks, err := c.Search(context.Background(), "match", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected limit to cap results at 2, got %d", len(chunks))
	}
}

func TestSearch_HTTPBackendPreferredOverInProcess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"content":"remote chunk"}]`))
	}))
	defer srv.Close()

	backend := NewMemoryBackend()
	_ = backend.Add(context.Background(), Chunk{Content: "local chunk"})

	c := New(srv.URL, backend)
	chunks, err := c.Search(context.Background(), "query", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Content != "remote chunk" {
		t.Fatalf("expected HTTP backend to take priority, got %+v", chunks)
	}
}

func TestSearch_HTTPUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	if _, err := c.Search(context.Background(), "query", 5); err == nil {
		t.Fatal("expected an error for a 5xx response")
	}
}
