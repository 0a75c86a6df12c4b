// Package externaldata is the External Data service client (spec 4.1):
// lookup_company(name) -> record_or_none; lookup_person(name) ->
// record_or_none, cached by (operation, key). The teacher's own cache
// (pkg/core/edgar/cache.go) is a flat file cache with no coalescing; the
// concurrency model (spec section 5) requires "lookup-or-compute with
// coalescing" for a single-writer-per-key discipline, so this client
// upgrades to golang.org/x/sync/singleflight -- a real dependency already
// present in the retrieval pack (theRebelliousNerd-codenerd's go.mod) --
// rather than hand-rolling a coalescing mutex map.
package externaldata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"ddorchestrator/internal/ddrerr"
)

// Record is a generic corporate/person lookup result; the wire schema is
// owned by the external service, so we keep it as a free-form map plus a
// Found flag rather than a fixed struct.
type Record struct {
	Found bool           `json:"found"`
	Data  map[string]any `json:"data,omitempty"`
}

// Client is the External Data service client with a concurrency-safe,
// coalescing, read-through cache.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]Record
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		cache:   make(map[string]Record),
	}
}

func cacheKey(operation, key string) string {
	return operation + "::" + key
}

// LookupCompany implements lookup_company(name) -> record_or_none.
func (c *Client) LookupCompany(ctx context.Context, name string) (Record, error) {
	return c.lookup(ctx, "lookup_company", name)
}

// LookupPerson implements lookup_person(name) -> record_or_none.
func (c *Client) LookupPerson(ctx context.Context, name string) (Record, error) {
	return c.lookup(ctx, "lookup_person", name)
}

func (c *Client) lookup(ctx context.Context, operation, key string) (Record, error) {
	ck := cacheKey(operation, key)

	c.mu.RLock()
	if rec, ok := c.cache[ck]; ok {
		c.mu.RUnlock()
		return rec, nil
	}
	c.mu.RUnlock()

	// Reads above take only the shared read lock; writes go through singleflight so
	// concurrent lookups for the same (operation, key) coalesce into one
	// outbound call, matching the single-writer-per-key discipline.
	v, err, _ := c.group.Do(ck, func() (interface{}, error) {
		rec, err := c.fetch(ctx, operation, key)
		if err != nil {
			return Record{}, err
		}
		c.mu.Lock()
		c.cache[ck] = rec
		c.mu.Unlock()
		return rec, nil
	})
	if err != nil {
		return Record{}, err
	}
	return v.(Record), nil
}

func (c *Client) fetch(ctx context.Context, operation, key string) (Record, error) {
	if c.BaseURL == "" {
		return Record{Found: false}, nil
	}

	payload, _ := json.Marshal(map[string]string{"operation": operation, "key": key})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return Record{}, ddrerr.Wrap(ddrerr.ServiceUnavailable, "externaldata: build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Record{}, ddrerr.Wrap(ddrerr.ServiceUnavailable, "externaldata: request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Record{Found: false}, nil
	}
	if resp.StatusCode >= 500 {
		return Record{}, ddrerr.New(ddrerr.ServiceUnavailable, fmt.Sprintf("externaldata: upstream status %d", resp.StatusCode))
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return Record{}, ddrerr.Wrap(ddrerr.ServiceUnavailable, "externaldata: decode response", err)
	}
	rec.Found = true
	return rec, nil
}
