package agents

import (
	"context"
	"fmt"

	"ddorchestrator/internal/jsonx"
	"ddorchestrator/internal/logging"
	"ddorchestrator/internal/model"
	"ddorchestrator/internal/serviceclients/llmgateway"
)

const (
	minDDQuestions = 10
	maxDDQuestions = 20
)

// DDQGenerator implements the Risk/DDQ Generator agent (spec 4.3.d).
type DDQGenerator struct {
	Deps Deps
}

func (a *DDQGenerator) Analyze(ctx context.Context, bp model.BPStructuredData, team model.TeamAnalysisOutput, market model.MarketAnalysisOutput, report ProgressFunc) []model.DDQuestion {
	prompt := fmt.Sprintf(`Given the team and market analysis below, generate between %d and %d due-diligence questions spanning all five categories (Team, Market, Product, Financial, Risk). Return a JSON array of objects:
[{"category": "Team|Market|Product|Financial|Risk", "question": "string", "reasoning": "string", "priority": "high|medium|low"}]

Team analysis: %s
Concerns: %v

Market analysis: %s
Red flags: %v

Company: %s`, minDDQuestions, maxDDQuestions, team.Summary, team.Concerns, market.Summary, market.RedFlags, bp.CompanyName)

	report.report(50, "generating due-diligence questions")
	systemPrompt := a.Deps.systemPrompt("ddq_generator_system", "You are a due-diligence question-generation specialist.")
	raw, err := a.Deps.LLM.Generate(ctx, systemPrompt, prompt, llmgateway.GenConfig{
		ModelID:  a.Deps.ModelID,
		JSONMode: true,
	})

	var questions []model.DDQuestion
	if err == nil {
		var wire []ddqWire
		if perr := jsonx.SmartParseInto(raw, &wire); perr == nil {
			for _, w := range wire {
				questions = append(questions, w.toModel())
			}
		} else {
			logging.Warn("ddq generator: parse failed, raw response: %s", raw)
		}
	} else {
		logging.Warn("ddq generator: llm call failed: %v", err)
	}

	return topUp(questions, bp, team, market)
}

type ddqWire struct {
	Category  string `json:"category"`
	Question  string `json:"question"`
	Reasoning string `json:"reasoning"`
	Priority  string `json:"priority"`
}

func (w ddqWire) toModel() model.DDQuestion {
	cat := model.DDQCategory(w.Category)
	switch cat {
	case model.DDQTeam, model.DDQMarket, model.DDQProduct, model.DDQFinancial, model.DDQRisk:
	default:
		cat = model.DDQRisk
	}
	priority := model.DDQPriority(w.Priority)
	switch priority {
	case model.PriorityHigh, model.PriorityMedium, model.PriorityLow:
	default:
		priority = model.PriorityMedium
	}
	return model.DDQuestion{Category: cat, Question: w.Question, Reasoning: w.Reasoning, Priority: priority}
}

// templatePool is the deterministic top-up source ensuring category
// coverage when the LLM emits fewer than minDDQuestions (spec 4.3.d).
var templatePool = []model.DDQuestion{
	{Category: model.DDQTeam, Question: "What is each founder's prior track record in this specific industry?", Reasoning: "Establishes baseline founder-market fit.", Priority: model.PriorityMedium},
	{Category: model.DDQTeam, Question: "Are there any unfilled key roles on the leadership team?", Reasoning: "Identifies execution risk from team gaps.", Priority: model.PriorityMedium},
	{Category: model.DDQMarket, Question: "What is the source and methodology behind the claimed TAM figure?", Reasoning: "Validates market sizing rigor.", Priority: model.PriorityHigh},
	{Category: model.DDQMarket, Question: "Who are the three most direct competitors and how does this company differentiate?", Reasoning: "Tests competitive positioning clarity.", Priority: model.PriorityMedium},
	{Category: model.DDQProduct, Question: "What is the current stage of product development and time to general availability?", Reasoning: "Assesses execution timeline risk.", Priority: model.PriorityMedium},
	{Category: model.DDQProduct, Question: "What defensible moat, if any, protects the product from fast-following competitors?", Reasoning: "Tests durability of advantage.", Priority: model.PriorityHigh},
	{Category: model.DDQFinancial, Question: "What are the key assumptions behind the projected financials?", Reasoning: "Surfaces unrealistic growth assumptions.", Priority: model.PriorityHigh},
	{Category: model.DDQFinancial, Question: "What is the current monthly burn rate and runway?", Reasoning: "Assesses near-term capital risk.", Priority: model.PriorityMedium},
	{Category: model.DDQRisk, Question: "What regulatory risks apply to this business model and jurisdiction?", Reasoning: "Surfaces compliance exposure.", Priority: model.PriorityMedium},
	{Category: model.DDQRisk, Question: "What single point of failure, if any, exists in the supply chain or key-person dependency?", Reasoning: "Surfaces operational risk concentration.", Priority: model.PriorityMedium},
}

func topUp(questions []model.DDQuestion, _ model.BPStructuredData, _ model.TeamAnalysisOutput, _ model.MarketAnalysisOutput) []model.DDQuestion {
	if len(questions) > maxDDQuestions {
		questions = questions[:maxDDQuestions]
	}
	if len(questions) >= minDDQuestions {
		return ensureCategoryCoverage(questions)
	}

	have := make(map[string]bool)
	for _, q := range questions {
		have[string(q.Category)+q.Question] = true
	}

	for _, t := range templatePool {
		if len(questions) >= minDDQuestions {
			break
		}
		key := string(t.Category) + t.Question
		if have[key] {
			continue
		}
		questions = append(questions, t)
		have[key] = true
	}

	return ensureCategoryCoverage(questions)
}

// ensureCategoryCoverage guarantees every one of the five categories is
// represented at least once, pulling from templatePool if necessary, even
// if that pushes the count slightly above what the LLM alone produced.
func ensureCategoryCoverage(questions []model.DDQuestion) []model.DDQuestion {
	present := make(map[model.DDQCategory]bool)
	for _, q := range questions {
		present[q.Category] = true
	}
	for _, cat := range []model.DDQCategory{model.DDQTeam, model.DDQMarket, model.DDQProduct, model.DDQFinancial, model.DDQRisk} {
		if present[cat] {
			continue
		}
		for _, t := range templatePool {
			if t.Category == cat {
				questions = append(questions, t)
				present[cat] = true
				break
			}
		}
	}
	return questions
}
