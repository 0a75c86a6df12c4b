package externaldata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestLookupCompany_EmptyBaseURLReturnsNotFound(t *testing.T) {
	c := New("")
	rec, err := c.LookupCompany(context.Background(), "Acme Inc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Found {
		t.Fatalf("expected Found=false for unconfigured backend, got %+v", rec)
	}
}

func TestLookupPerson_NotFoundUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	rec, err := c.LookupPerson(context.Background(), "Jane Doe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Found {
		t.Fatalf("expected Found=false for a 404 response, got %+v", rec)
	}
}

func TestLookupCompany_FoundAndCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"ticker":"ACME"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	rec, err := c.LookupCompany(context.Background(), "Acme Inc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.Found {
		t.Fatalf("expected Found=true, got %+v", rec)
	}

	if _, err := c.LookupCompany(context.Background(), "Acme Inc"); err != nil {
		t.Fatalf("unexpected error on cached lookup: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected the second lookup to hit the cache, saw %d upstream calls", got)
	}
}

// TestLookupCompany_ConcurrentCallsCoalesce exercises the singleflight
// coalescing path: N concurrent lookups for the same key should result in
// exactly one outbound request.
func TestLookupCompany_ConcurrentCallsCoalesce(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"ticker":"ACME"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)

	const n = 8
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := c.LookupCompany(context.Background(), "Acme Inc")
			done <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)

	for i := 0; i < n; i++ {
		if err := <-done; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly one coalesced upstream call, saw %d", got)
	}
}
