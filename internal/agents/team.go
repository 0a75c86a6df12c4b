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
	"ddorchestrator/internal/serviceclients/llmgateway"
	"ddorchestrator/internal/serviceclients/websearch"
)

const maxTeamMembersSearched = 5

// TeamAnalyst implements the Team Analyst agent (spec 4.3.b).
type TeamAnalyst struct {
	Deps Deps
}

func (a *TeamAnalyst) Analyze(ctx context.Context, bp model.BPStructuredData, sem chan struct{}, report ProgressFunc) model.TeamAnalysisOutput {
	members := bp.Team
	if len(members) > maxTeamMembersSearched {
		members = members[:maxTeamMembersSearched]
	}

	searchResults := make([]GatherResult[[]websearch.Result], len(members))
	personResults := make([]GatherResult[externaldata.Record], len(members))
	thunks := make([]func(), 0, len(members)*2)
	for i, m := range members {
		i, m := i, m
		thunks = append(thunks, func() {
			query := fmt.Sprintf("%s %s background", m.Name, m.Title)
			searchResults[i] = gatherCall(ctx, sem, a.Deps.callTimeout(), func(cctx context.Context) ([]websearch.Result, error) {
				return a.Deps.WebSearch.Search(cctx, query, 5)
			})
		})
		thunks = append(thunks, func() {
			personResults[i] = gatherCall(ctx, sem, a.Deps.callTimeout(), func(cctx context.Context) (externaldata.Record, error) {
				return a.Deps.ExternalData.LookupPerson(cctx, m.Name)
			})
		})
	}
	Fanout(thunks)
	report.report(40, "team web search and external-data lookups complete")

	var sources []string
	var contextBuilder strings.Builder
	contextBuilder.WriteString("Team members:\n")
	for i, m := range members {
		contextBuilder.WriteString(fmt.Sprintf("- %s (%s): %s\n", m.Name, m.Title, m.Background))
		if searchResults[i].Unavailable {
			contextBuilder.WriteString("  (web search unavailable for this member)\n")
		} else {
			for _, r := range searchResults[i].Value {
				contextBuilder.WriteString(fmt.Sprintf("  * %s: %s (%s)\n", r.Title, r.Snippet, r.URL))
				sources = append(sources, r.URL)
			}
		}
		if !personResults[i].Unavailable && personResults[i].Value.Found {
			contextBuilder.WriteString(fmt.Sprintf("  external record: %v\n", personResults[i].Value.Data))
		}
	}

	prompt := fmt.Sprintf(`Given the following team research context, produce a JSON object with exactly these fields:
{"summary": "string", "strengths": ["string"], "concerns": ["string"], "experience_match_score": number (0-10), "key_findings": ["string"]}

Context:
%s`, contextBuilder.String())

	report.report(60, "calling LLM for team assessment")
	systemPrompt := a.Deps.systemPrompt("team_analyst_system", "You are a rigorous venture due-diligence team analyst.")
	raw, err := a.Deps.LLM.Generate(ctx, systemPrompt, prompt, llmgateway.GenConfig{
		ModelID:  a.Deps.ModelID,
		JSONMode: true,
	})
	if err != nil {
		logging.Warn("team analyst: llm call failed: %v", err)
		return a.fallback(bp, sources, true)
	}

	var wire struct {
		Summary              string   `json:"summary"`
		Strengths            []string `json:"strengths"`
		Concerns             []string `json:"concerns"`
		ExperienceMatchScore float64  `json:"experience_match_score"`
		KeyFindings          []string `json:"key_findings"`
	}
	if err := jsonx.SmartParseInto(raw, &wire); err != nil {
		logging.Warn("team analyst: parse failed, raw response: %s", raw)
		return a.fallback(bp, sources, true)
	}

	summary := markdownx.Clean(wire.Summary)
	if !markdownx.Valid(summary) {
		logging.Warn("team analyst: summary did not parse as markdown, embedding as-is")
	}

	out := model.TeamAnalysisOutput{
		Summary:              summary,
		Strengths:            wire.Strengths,
		Concerns:             wire.Concerns,
		ExperienceMatchScore: wire.ExperienceMatchScore,
		KeyFindings:          wire.KeyFindings,
		DataSources:          sources,
	}
	out.ClampScore()
	return out
}

func (a *TeamAnalyst) fallback(bp model.BPStructuredData, sources []string, degraded bool) model.TeamAnalysisOutput {
	names := make([]string, 0, len(bp.Team))
	for _, m := range bp.Team {
		names = append(names, m.Name)
	}
	return model.TeamAnalysisOutput{
		Summary:              fmt.Sprintf("Team analysis unavailable for %s; data sources could not be reached.", strings.Join(names, ", ")),
		ExperienceMatchScore: 0,
		DataSources:          sources,
		Degraded:             degraded,
	}
}
