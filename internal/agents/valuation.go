package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ddorchestrator/internal/jsonx"
	"ddorchestrator/internal/logging"
	"ddorchestrator/internal/model"
	"ddorchestrator/internal/serviceclients/llmgateway"
	"ddorchestrator/internal/serviceclients/websearch"
)

// ValuationAgent implements the Valuation Agent (spec 4.3.e): web-search
// industry multiples, then LLM-reason a valuation band and comps list.
// Its deterministic fallback reports a zero band with no comparables. When
// the LLM returns comparables but no band, the band is filled in with the
// teacher's quartile-range comps technique (pkg/core/valuation/relative.go
// calculateMultiples), reimplemented against the ComparableCompany entries
// the LLM itself surfaces instead of a hardcoded peer table, since this
// agent has no access to a pre-loaded peer database.
type ValuationAgent struct {
	Deps Deps
}

func (a *ValuationAgent) Analyze(ctx context.Context, bp model.BPStructuredData, sem chan struct{}, report ProgressFunc) model.ValuationOutput {
	industry := valueOr(bp.InferredIndustry, bp.TargetMarket)

	multiplesResult := gatherCall(ctx, sem, a.Deps.callTimeout(), func(cctx context.Context) ([]websearch.Result, error) {
		return a.Deps.WebSearch.Search(cctx, fmt.Sprintf("%s industry valuation multiples comparable companies", industry), 8)
	})
	report.report(50, "industry multiples search complete")

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Company: %s, industry: %s, stage: %s\n", bp.CompanyName, industry, bp.InferredStage))
	if multiplesResult.Unavailable {
		sb.WriteString("(industry multiples search unavailable)\n")
	} else {
		for _, r := range multiplesResult.Value {
			sb.WriteString(fmt.Sprintf("- %s: %s (%s)\n", r.Title, r.Snippet, r.URL))
		}
	}

	prompt := fmt.Sprintf(`Reason a valuation band for this early-stage company given the context below. Return a JSON object:
{"low": number, "high": number, "currency": "string (ISO 4217)", "methodology": "string", "comparables": [{"name": "string", "ev_to_revenue": number, "ev_to_ebitda": number, "pe_ratio": number}], "assumptions": ["string"], "risks": ["string"]}

Context:
%s`, sb.String())

	systemPrompt := a.Deps.systemPrompt("valuation_agent_system", "You are a venture valuation analyst grounding every band in comparable multiples.")
	raw, err := a.Deps.LLM.Generate(ctx, systemPrompt, prompt, llmgateway.GenConfig{
		ModelID:  a.Deps.ModelID,
		JSONMode: true,
	})
	if err != nil {
		logging.Warn("valuation agent: llm call failed: %v", err)
		return a.fallback(bp, nil, true)
	}

	var wire model.ValuationOutput
	if err := jsonx.SmartParseInto(raw, &wire); err != nil {
		logging.Warn("valuation agent: parse failed, raw response: %s", raw)
		return a.fallback(bp, nil, true)
	}

	if wire.Low == 0 && wire.High == 0 && len(wire.Comparables) > 0 {
		wire.Low, wire.High = quartileEVRevenueBand(wire.Comparables)
	}
	return wire
}

func (a *ValuationAgent) fallback(bp model.BPStructuredData, comps []model.ComparableCompany, degraded bool) model.ValuationOutput {
	low, high := quartileEVRevenueBand(comps)
	return model.ValuationOutput{
		Low:         low,
		High:        high,
		Currency:    "USD",
		Methodology: "unavailable: deterministic fallback, no comparable-multiples data",
		Comparables: comps,
		Assumptions: []string{"valuation service degraded"},
		Degraded:    degraded,
	}
}

// quartileEVRevenueBand reimplements the teacher's 25th-75th percentile
// multiple-range technique (pkg/core/valuation/relative.go getRange)
// directly over EV/Revenue multiples, since this agent has no
// target financial metrics to multiply against -- it reports the
// multiple band itself as the valuation band.
func quartileEVRevenueBand(comps []model.ComparableCompany) (float64, float64) {
	var mults []float64
	for _, c := range comps {
		if c.EVToRevenue > 0 {
			mults = append(mults, c.EVToRevenue)
		}
	}
	if len(mults) == 0 {
		return 0, 0
	}
	sort.Float64s(mults)
	lowIdx := int(float64(len(mults)) * 0.25)
	highIdx := int(float64(len(mults)) * 0.75)
	if highIdx >= len(mults) {
		highIdx = len(mults) - 1
	}
	return mults[lowIdx], mults[highIdx]
}
