package agents

import (
	"context"
	"fmt"

	"ddorchestrator/internal/jsonx"
	"ddorchestrator/internal/logging"
	"ddorchestrator/internal/model"
	"ddorchestrator/internal/serviceclients/llmgateway"
)

// ExitAgent implements the Exit Agent (spec 4.3.f): consumes BP, market
// analysis, and valuation output to produce an exit-path assessment.
type ExitAgent struct {
	Deps Deps
}

func (a *ExitAgent) Analyze(ctx context.Context, bp model.BPStructuredData, market model.MarketAnalysisOutput, valuation model.ValuationOutput, report ProgressFunc) model.ExitOutput {
	prompt := fmt.Sprintf(`Given the company context below, produce a JSON object:
{"primary_path": "string", "ipo_analysis": "string", "ma_opportunities": ["string"], "exit_risks": ["string"]}

Company: %s
Market competitive landscape: %s
Market red flags: %v
Valuation band: %.2f-%.2f %s (%s)
Valuation comparables: %v`, bp.CompanyName, market.CompetitiveLandscape, market.RedFlags, valuation.Low, valuation.High, valuation.Currency, valuation.Methodology, valuation.Comparables)

	report.report(50, "reasoning exit paths from market and valuation context")
	systemPrompt := a.Deps.systemPrompt("exit_agent_system", "You are a venture exit-strategy analyst.")
	raw, err := a.Deps.LLM.Generate(ctx, systemPrompt, prompt, llmgateway.GenConfig{
		ModelID:  a.Deps.ModelID,
		JSONMode: true,
	})
	if err != nil {
		logging.Warn("exit agent: llm call failed: %v", err)
		return a.fallback(true)
	}

	var wire model.ExitOutput
	if err := jsonx.SmartParseInto(raw, &wire); err != nil {
		logging.Warn("exit agent: parse failed, raw response: %s", raw)
		return a.fallback(true)
	}
	return wire
}

func (a *ExitAgent) fallback(degraded bool) model.ExitOutput {
	return model.ExitOutput{
		PrimaryPath: "unknown",
		IPOAnalysis: "unavailable: exit analysis service degraded",
		Degraded:    degraded,
	}
}
