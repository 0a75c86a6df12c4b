// Package llmgateway is the uniform LLM Gateway service client (spec
// section 4.1), grounded on the teacher's pkg/core/llm/gemini.go. Every
// roundtable participant and analysis agent routes through this one
// client rather than talking to a provider SDK directly, per the spec's
// single-service-client-layer invariant (see DESIGN.md for the dropped
// github.com/google/generative-ai-go dependency this consolidation costs).
package llmgateway

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"ddorchestrator/internal/ddrerr"
)

// FailureKind is the LLM Gateway's own typed failure taxonomy (spec 4.1):
// {timeout, rate_limited, invalid_response, upstream_error}. This is finer
// grained than ddrerr.Kind (which is the state-machine-level taxonomy);
// classifyError wraps every failed call as a ddrerr.ServiceUnavailable
// whose message names the FailureKind, since every one of these kinds is
// locally recovered at the agent boundary. classifyError produces timeout,
// rate_limited or upstream_error; invalid_response is not produced here.
type FailureKind string

const (
	FailureTimeout         FailureKind = "timeout"
	FailureRateLimited     FailureKind = "rate_limited"
	FailureInvalidResponse FailureKind = "invalid_response"
	FailureUpstreamError   FailureKind = "upstream_error"
)

// GenConfig is the configuration recognized by every operation (spec 4.1).
type GenConfig struct {
	ModelID         string
	Temperature     float32
	MaxOutputTokens int32
	JSONMode        bool
	GoogleSearch    bool
}

// Tool is a named function tool for generate_with_tools.
type Tool struct {
	Name        string
	Description string
}

// ToolCallResult is the structured result of generate_with_tools.
type ToolCallResult struct {
	Text       string
	ToolsUsed  []string
	Iterations int
}

// Client is the LLM Gateway client.
type Client struct {
	apiKey       string
	defaultModel string
	newClient    func(ctx context.Context) (*genai.Client, error)
}

// New builds a Client. apiKey and defaultModel are read from config by the
// caller (cmd/server); an empty apiKey is tolerated at construction time so
// tests can exercise typed-error paths without credentials.
func New(apiKey, defaultModel string) *Client {
	c := &Client{apiKey: apiKey, defaultModel: defaultModel}
	c.newClient = func(ctx context.Context) (*genai.Client, error) {
		return genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	}
	return c
}

func (c *Client) model(cfg GenConfig) string {
	if cfg.ModelID != "" {
		return cfg.ModelID
	}
	if c.defaultModel != "" {
		return c.defaultModel
	}
	return "gemini-2.0-flash"
}

func (c *Client) buildConfig(systemPrompt string, cfg GenConfig) *genai.GenerateContentConfig {
	temp := cfg.Temperature
	if temp == 0 {
		temp = 0.1
	}
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temp),
	}
	if cfg.MaxOutputTokens > 0 {
		gc.MaxOutputTokens = cfg.MaxOutputTokens
	}
	if cfg.JSONMode {
		gc.ResponseMIMEType = "application/json"
	}
	if systemPrompt != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}
	if cfg.GoogleSearch {
		gc.Tools = []*genai.Tool{{GoogleSearchRetrieval: &genai.GoogleSearchRetrieval{}}}
	}
	return gc
}

// Generate implements generate(prompt, config) -> text.
func (c *Client) Generate(ctx context.Context, systemPrompt, prompt string, cfg GenConfig) (string, error) {
	if c.apiKey == "" {
		return "", ddrerr.New(ddrerr.ServiceUnavailable, "llm gateway: no API key configured")
	}

	client, err := c.newClient(ctx)
	if err != nil {
		return "", ddrerr.Wrap(ddrerr.ServiceUnavailable, "llm gateway: client init failed", err)
	}

	genConfig := c.buildConfig(systemPrompt, cfg)
	result, err := client.Models.GenerateContent(ctx, c.model(cfg), genai.Text(prompt), genConfig)
	if err != nil {
		return "", classifyError(err)
	}

	return textWithCitations(result), nil
}

// GenerateWithFile implements generate_with_file(prompt, file_bytes, mime,
// config) -> text, grounded on the same GenerateContent call shape with an
// inline data part appended, for the BP Parser's document-understanding
// call.
func (c *Client) GenerateWithFile(ctx context.Context, systemPrompt, prompt string, fileBytes []byte, mimeType string, cfg GenConfig) (string, error) {
	if c.apiKey == "" {
		return "", ddrerr.New(ddrerr.ServiceUnavailable, "llm gateway: no API key configured")
	}

	client, err := c.newClient(ctx)
	if err != nil {
		return "", ddrerr.Wrap(ddrerr.ServiceUnavailable, "llm gateway: client init failed", err)
	}

	genConfig := c.buildConfig(systemPrompt, cfg)
	parts := []*genai.Part{
		{Text: prompt},
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: fileBytes}},
	}
	content := &genai.Content{Parts: parts, Role: "user"}

	result, err := client.Models.GenerateContent(ctx, c.model(cfg), []*genai.Content{content}, genConfig)
	if err != nil {
		return "", classifyError(err)
	}

	return textWithCitations(result), nil
}

// GenerateWithTools implements generate_with_tools(prompt, tools,
// max_iterations) -> structured_result as one Generate call with Google
// Search grounding enabled. maxIterations is not consulted and Iterations
// is always 1. No other tool in tools is executed; ToolsUsed lists only
// the entries named google_search.
func (c *Client) GenerateWithTools(ctx context.Context, systemPrompt, prompt string, tools []Tool, maxIterations int, cfg GenConfig) (ToolCallResult, error) {
	cfg.GoogleSearch = true
	text, err := c.Generate(ctx, systemPrompt, prompt, cfg)
	if err != nil {
		return ToolCallResult{}, err
	}
	used := []string{}
	for _, t := range tools {
		if strings.EqualFold(t.Name, "google_search") {
			used = append(used, t.Name)
		}
	}
	return ToolCallResult{Text: text, ToolsUsed: used, Iterations: 1}, nil
}

func textWithCitations(result *genai.GenerateContentResponse) string {
	text := result.Text()
	if len(result.Candidates) == 0 {
		return text
	}
	cand := result.Candidates[0]
	if cand.GroundingMetadata == nil || len(cand.GroundingMetadata.GroundingChunks) == 0 {
		return text
	}
	var citations []string
	for _, chunk := range cand.GroundingMetadata.GroundingChunks {
		if chunk.Web != nil {
			citations = append(citations, fmt.Sprintf("[%s](%s)", chunk.Web.Title, chunk.Web.URI))
		}
	}
	if len(citations) == 0 {
		return text
	}
	return fmt.Sprintf("%s\n\n**Sources:**\n%s", text, strings.Join(citations, "\n"))
}

func classifyError(err error) error {
	msg := strings.ToLower(err.Error())
	kind := FailureUpstreamError
	switch {
	case strings.Contains(msg, "deadline") || strings.Contains(msg, "context canceled") || strings.Contains(msg, "timeout"):
		kind = FailureTimeout
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate"):
		kind = FailureRateLimited
	}
	return ddrerr.Wrap(ddrerr.ServiceUnavailable, fmt.Sprintf("llm gateway call failed (%s)", kind), err)
}

// APIKeyFromEnv reads GEMINI_API_KEY, matching the teacher's own lookup in
// gemini.go.
func APIKeyFromEnv() string {
	return os.Getenv("GEMINI_API_KEY")
}
