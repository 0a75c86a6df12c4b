package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearch_EmptyBaseURLIsDegradedSuccess(t *testing.T) {
	c := New("")
	results, err := c.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("expected no error for unconfigured backend, got %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results for unconfigured backend, got %v", results)
	}
}

func TestSearch_JSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"title":"Result One","url":"https://example.com/1","snippet":"first hit"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	results, err := c.Search(context.Background(), "query", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Result One" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestSearch_HTMLResponseIsParsed(t *testing.T) {
	html := `<html><body>
		<div class="result">
			<div class="result-title"><a href="https://example.com/a">Title A</a></div>
			<div class="result-snippet">snippet a</div>
		</div>
		<div class="result">
			<div class="result-title"><a href="https://example.com/b">Title B</a></div>
			<div class="result-snippet">snippet b</div>
		</div>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(html))
	}))
	defer srv.Close()

	c := New(srv.URL)
	results, err := c.Search(context.Background(), "query", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected limit to cap results at 1, got %d", len(results))
	}
	if results[0].URL != "https://example.com/a" {
		t.Fatalf("unexpected result: %+v", results[0])
	}
}

func TestSearch_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Search(context.Background(), "query", 5); err == nil {
		t.Fatal("expected an error for a 429 response")
	}
}

func TestSearch_UpstreamServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Search(context.Background(), "query", 5); err == nil {
		t.Fatal("expected an error for a 5xx response")
	}
}
