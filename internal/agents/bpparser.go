package agents

import (
	"context"

	"ddorchestrator/internal/jsonx"
	"ddorchestrator/internal/logging"
	"ddorchestrator/internal/model"
	"ddorchestrator/internal/serviceclients/llmgateway"
)

// BPParser consumes raw document bytes and produces BPStructuredData
// (spec 4.3.a).
type BPParser struct {
	Deps Deps
}

const bpParserSchemaPrompt = `Extract the following JSON object from the attached document. Return ONLY the JSON object, no prose, no markdown fences.
{
  "company_name": "string",
  "founding_date": "string",
  "team": [{"name": "string", "title": "string", "background": "string"}],
  "product_description": "string",
  "target_market": "string",
  "tam_estimate": "string",
  "competitors": ["string"],
  "funding_request": "string",
  "current_valuation": "string",
  "projected_financials": {"string": "string"},
  "inferred_stage": "string (one of: pre-seed, seed, series-a, series-b, growth)",
  "inferred_industry": "string",
  "inferred_geography": "string",
  "has_revenue": boolean,
  "has_product": boolean,
  "investment_amount_ask": number
}
All numeric values you might be tempted to put in string fields must be emitted as plain strings.`

// Analyze runs the gather -> context -> LLM -> parse -> fallback sequence
// against a document. callerCompanyName is the company name of the fallback
// result, and also fills CompanyName when the parsed document leaves it empty.
func (a *BPParser) Analyze(ctx context.Context, docBytes []byte, mimeType, callerCompanyName string, report ProgressFunc) (model.BPStructuredData, bool) {
	if len(docBytes) == 0 {
		return a.fallback(callerCompanyName), true
	}

	report.report(20, "document received, extracting structured fields")
	systemPrompt := a.Deps.systemPrompt("bp_parser_system", "You are a meticulous business-plan extraction engine.")
	raw, err := a.Deps.LLM.GenerateWithFile(ctx, systemPrompt, bpParserSchemaPrompt, docBytes, mimeType, llmgateway.GenConfig{
		ModelID:  a.Deps.ModelID,
		JSONMode: true,
	})
	if err != nil {
		logging.Warn("bp parser: llm call failed: %v", err)
		return a.fallback(callerCompanyName), true
	}

	var wire bpWire
	if err := jsonx.SmartParseInto(raw, &wire); err != nil {
		logging.Warn("bp parser: parse failed, raw response: %s", raw)
		return a.fallback(callerCompanyName), true
	}

	bp := wire.toModel()
	if bp.CompanyName == "" {
		bp.CompanyName = callerCompanyName
	}
	return bp, false
}

func (a *BPParser) fallback(callerCompanyName string) model.BPStructuredData {
	return model.BPStructuredData{CompanyName: callerCompanyName}
}

// bpWire tolerates the LLM emitting numbers where the schema calls for
// strings (spec 4.3.a); fields that can arrive as either are decoded as
// any and coerced.
type bpWire struct {
	CompanyName         string             `json:"company_name"`
	FoundingDate        any                `json:"founding_date"`
	Team                []model.TeamMember `json:"team"`
	ProductDescription  string             `json:"product_description"`
	TargetMarket        string             `json:"target_market"`
	TAMEstimate         any                `json:"tam_estimate"`
	Competitors         []string           `json:"competitors"`
	FundingRequest      any                `json:"funding_request"`
	CurrentValuation    any                `json:"current_valuation"`
	ProjectedFinancials map[string]any     `json:"projected_financials"`
	InferredStage       string             `json:"inferred_stage"`
	InferredIndustry    string             `json:"inferred_industry"`
	InferredGeography   string             `json:"inferred_geography"`
	HasRevenue          bool               `json:"has_revenue"`
	HasProduct          bool               `json:"has_product"`
	InvestmentAmountAsk float64            `json:"investment_amount_ask"`
}

func (w bpWire) toModel() model.BPStructuredData {
	projected := make(map[string]string, len(w.ProjectedFinancials))
	for k, v := range w.ProjectedFinancials {
		projected[k] = jsonx.NumberToString(v)
	}
	return model.BPStructuredData{
		CompanyName:         w.CompanyName,
		FoundingDate:        jsonx.NumberToString(w.FoundingDate),
		Team:                w.Team,
		ProductDescription:  w.ProductDescription,
		TargetMarket:        w.TargetMarket,
		TAMEstimate:         jsonx.NumberToString(w.TAMEstimate),
		Competitors:         w.Competitors,
		FundingRequest:      jsonx.NumberToString(w.FundingRequest),
		CurrentValuation:    jsonx.NumberToString(w.CurrentValuation),
		ProjectedFinancials: projected,
		InferredStage:       w.InferredStage,
		InferredIndustry:    w.InferredIndustry,
		InferredGeography:   w.InferredGeography,
		HasRevenue:          w.HasRevenue,
		HasProduct:          w.HasProduct,
		InvestmentAmountAsk: w.InvestmentAmountAsk,
	}
}
