package agents

import (
	"context"
	"fmt"
	"strings"

	"ddorchestrator/internal/jsonx"
	"ddorchestrator/internal/logging"
	"ddorchestrator/internal/markdownx"
	"ddorchestrator/internal/model"
	"ddorchestrator/internal/serviceclients/externaldata"
	"ddorchestrator/internal/serviceclients/internalknowledge"
	"ddorchestrator/internal/serviceclients/llmgateway"
	"ddorchestrator/internal/serviceclients/websearch"
)

// MarketAnalyst implements the Market Analyst agent (spec 4.3.c): four
// parallel gathers (market size, competitors, internal knowledge, external
// corporate record) feeding one LLM call instructed to flag TAM
// discrepancies as red flags.
type MarketAnalyst struct {
	Deps Deps
}

func (a *MarketAnalyst) Analyze(ctx context.Context, bp model.BPStructuredData, sem chan struct{}, report ProgressFunc) model.MarketAnalysisOutput {
	market := bp.TargetMarket
	if market == "" {
		market = bp.InferredIndustry
	}

	var sizeResult GatherResult[[]websearch.Result]
	var compResult GatherResult[[]websearch.Result]
	var knowledgeResult GatherResult[[]internalknowledge.Chunk]
	var companyResult GatherResult[externaldata.Record]

	Fanout([]func(){
		func() {
			sizeResult = gatherCall(ctx, sem, a.Deps.callTimeout(), func(cctx context.Context) ([]websearch.Result, error) {
				return a.Deps.WebSearch.Search(cctx, fmt.Sprintf("%s market size", market), 5)
			})
		},
		func() {
			compResult = gatherCall(ctx, sem, a.Deps.callTimeout(), func(cctx context.Context) ([]websearch.Result, error) {
				return a.Deps.WebSearch.Search(cctx, fmt.Sprintf("%s competitors", market), 5)
			})
		},
		func() {
			knowledgeResult = gatherCall(ctx, sem, a.Deps.callTimeout(), func(cctx context.Context) ([]internalknowledge.Chunk, error) {
				return a.Deps.InternalKnowledge.Search(cctx, fmt.Sprintf("similar projects in %s", market), 5)
			})
		},
		func() {
			companyResult = gatherCall(ctx, sem, a.Deps.callTimeout(), func(cctx context.Context) (externaldata.Record, error) {
				return a.Deps.ExternalData.LookupCompany(cctx, bp.CompanyName)
			})
		},
	})
	report.report(35, "market research and external-data gathers complete")

	var sources []string
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("BP-claimed TAM: %s\n\n", valueOr(bp.TAMEstimate, "not provided")))

	sb.WriteString("Web-sourced market size snippets:\n")
	if sizeResult.Unavailable {
		sb.WriteString("(market size search unavailable)\n")
	} else {
		for _, r := range sizeResult.Value {
			sb.WriteString(fmt.Sprintf("- %s: %s (%s)\n", r.Title, r.Snippet, r.URL))
			sources = append(sources, r.URL)
		}
	}

	sb.WriteString("\nWeb-sourced competitor snippets:\n")
	if compResult.Unavailable {
		sb.WriteString("(competitor search unavailable)\n")
	} else {
		for _, r := range compResult.Value {
			sb.WriteString(fmt.Sprintf("- %s: %s (%s)\n", r.Title, r.Snippet, r.URL))
			sources = append(sources, r.URL)
		}
	}

	sb.WriteString("\nInternal knowledge on similar projects:\n")
	if knowledgeResult.Unavailable {
		sb.WriteString("(internal knowledge search unavailable)\n")
	} else {
		for _, c := range knowledgeResult.Value {
			sb.WriteString(fmt.Sprintf("- %s\n", c.Content))
		}
	}

	sb.WriteString("\nExternal corporate record:\n")
	if companyResult.Unavailable || !companyResult.Value.Found {
		sb.WriteString("(no external corporate record on file)\n")
	} else {
		sb.WriteString(fmt.Sprintf("- %v\n", companyResult.Value.Data))
	}

	prompt := fmt.Sprintf(`Given this market research context, produce a JSON object with exactly these fields:
{"summary": "string", "market_validation": "string", "competitive_landscape": "string", "red_flags": ["string"]}

Explicitly compare the BP-claimed TAM against the web-sourced figures. If they differ by a significant order of magnitude, add an entry to red_flags describing the magnitude discrepancy.

Context:
%s`, sb.String())

	report.report(65, "calling LLM with web-grounded tool use for market assessment")
	systemPrompt := a.Deps.systemPrompt("market_analyst_system", "You are a skeptical market due-diligence analyst.")
	toolResult, err := a.Deps.LLM.GenerateWithTools(ctx, systemPrompt, prompt, []llmgateway.Tool{
		{Name: "google_search", Description: "Search the web to ground claims about market size and competitors"},
	}, 1, llmgateway.GenConfig{
		ModelID:  a.Deps.ModelID,
		JSONMode: true,
	})
	if err != nil {
		logging.Warn("market analyst: llm call failed: %v", err)
		return a.fallback(bp, sources, true)
	}
	raw := toolResult.Text

	var wire struct {
		Summary              string   `json:"summary"`
		MarketValidation     string   `json:"market_validation"`
		CompetitiveLandscape string   `json:"competitive_landscape"`
		RedFlags             []string `json:"red_flags"`
	}
	if err := jsonx.SmartParseInto(raw, &wire); err != nil {
		logging.Warn("market analyst: parse failed, raw response: %s", raw)
		return a.fallback(bp, sources, true)
	}

	summary := markdownx.Clean(wire.Summary)
	if !markdownx.Valid(summary) {
		logging.Warn("market analyst: summary did not parse as markdown, embedding as-is")
	}

	return model.MarketAnalysisOutput{
		Summary:              summary,
		MarketValidation:     markdownx.Clean(wire.MarketValidation),
		CompetitiveLandscape: markdownx.Clean(wire.CompetitiveLandscape),
		RedFlags:             wire.RedFlags,
		DataSources:          sources,
	}
}

func (a *MarketAnalyst) fallback(bp model.BPStructuredData, sources []string, degraded bool) model.MarketAnalysisOutput {
	return model.MarketAnalysisOutput{
		Summary:          fmt.Sprintf("Market analysis unavailable for %s; downstream services did not respond.", valueOr(bp.TargetMarket, bp.InferredIndustry)),
		MarketValidation: "unknown",
		DataSources:      sources,
		Degraded:         degraded,
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
