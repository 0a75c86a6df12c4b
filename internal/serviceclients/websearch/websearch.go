// Package websearch is the Web Search service client (spec section 4.1):
// search(query, limit) -> [{title, url, snippet}]. It POSTs to the
// configured WEB_SEARCH_URL and, when the response is an HTML results
// page rather than JSON, parses it with goquery -- the same library the
// teacher uses for HTML traversal in pkg/core/edgar/parser.go and
// pkg/core/edgar/html_sanitizer.go, here retargeted at search-result
// snippets instead of SEC filing tables.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ddorchestrator/internal/ddrerr"
)

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Client is the Web Search service client.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 20 * time.Second}}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// Search implements search(query, limit) -> results. Empty is success with
// zero results, not a failure (spec 4.1); an actual upstream failure
// surfaces as a non-nil error.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if c.BaseURL == "" {
		return nil, nil // degraded mode: no search backend configured, treat as empty
	}

	body, _ := json.Marshal(searchRequest{Query: query, Limit: limit})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, ddrerr.Wrap(ddrerr.ServiceUnavailable, "websearch: build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ddrerr.Wrap(ddrerr.ServiceUnavailable, "websearch: timeout", err)
		}
		return nil, ddrerr.Wrap(ddrerr.ServiceUnavailable, "websearch: request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ddrerr.New(ddrerr.ServiceUnavailable, "websearch: quota_exceeded")
	}
	if resp.StatusCode >= 500 {
		return nil, ddrerr.New(ddrerr.ServiceUnavailable, fmt.Sprintf("websearch: upstream status %d", resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		var results []Result
		if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
			return nil, ddrerr.Wrap(ddrerr.ServiceUnavailable, "websearch: decode response", err)
		}
		return results, nil
	}

	return parseHTMLResults(resp.Body, limit)
}

// parseHTMLResults handles the case where the configured search backend
// returns a rendered results page instead of JSON: each result is expected
// to live in a ".result" element with ".result-title a" (title text and
// href URL) and ".result-snippet" children -- a conservative convention chosen so a
// reverse-proxied search UI can be pointed at WEB_SEARCH_URL directly.
func parseHTMLResults(body io.Reader, limit int) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, ddrerr.Wrap(ddrerr.ServiceUnavailable, "websearch: parse html response", err)
	}

	var results []Result
	doc.Find(".result").Each(func(i int, sel *goquery.Selection) {
		if limit > 0 && len(results) >= limit {
			return
		}
		titleSel := sel.Find(".result-title a")
		title := strings.TrimSpace(titleSel.Text())
		url, _ := titleSel.Attr("href")
		snippet := strings.TrimSpace(sel.Find(".result-snippet").Text())
		if title == "" && url == "" {
			return
		}
		results = append(results, Result{Title: title, URL: url, Snippet: snippet})
	})

	return results, nil
}
