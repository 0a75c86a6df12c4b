package model

import "time"

// TeamAnalysisOutput is the result of the Team Analyst agent.
type TeamAnalysisOutput struct {
	Summary              string   `json:"summary"`
	Strengths            []string `json:"strengths"`
	Concerns             []string `json:"concerns"`
	ExperienceMatchScore float64  `json:"experience_match_score"`
	KeyFindings          []string `json:"key_findings"`
	DataSources          []string `json:"data_sources"`
	Degraded             bool     `json:"degraded,omitempty"`
}

// ClampScore enforces the [0,10] invariant on ExperienceMatchScore.
func (t *TeamAnalysisOutput) ClampScore() {
	if t.ExperienceMatchScore < 0 {
		t.ExperienceMatchScore = 0
	}
	if t.ExperienceMatchScore > 10 {
		t.ExperienceMatchScore = 10
	}
}

// MarketAnalysisOutput is the result of the Market Analyst agent.
type MarketAnalysisOutput struct {
	Summary              string   `json:"summary"`
	MarketValidation     string   `json:"market_validation"`
	CompetitiveLandscape string   `json:"competitive_landscape"`
	RedFlags             []string `json:"red_flags"`
	DataSources          []string `json:"data_sources"`
	Degraded             bool     `json:"degraded,omitempty"`
}

// DDQCategory enumerates the five due-diligence-question categories.
type DDQCategory string

const (
	DDQTeam      DDQCategory = "Team"
	DDQMarket    DDQCategory = "Market"
	DDQProduct   DDQCategory = "Product"
	DDQFinancial DDQCategory = "Financial"
	DDQRisk      DDQCategory = "Risk"
)

// DDQPriority labels a DDQuestion's priority.
type DDQPriority string

const (
	PriorityHigh   DDQPriority = "high"
	PriorityMedium DDQPriority = "medium"
	PriorityLow    DDQPriority = "low"
)

// DDQuestion is one generated due-diligence question.
type DDQuestion struct {
	Category  DDQCategory `json:"category"`
	Question  string      `json:"question"`
	Reasoning string      `json:"reasoning"`
	BPRef     string      `json:"bp_reference,omitempty"`
	Priority  DDQPriority `json:"priority"`
}

// Recommendation is the Preference Matcher's pass/fail verdict.
type Recommendation string

const (
	RecommendProceed Recommendation = "proceed"
	RecommendAbort   Recommendation = "abort"
)

// DimensionScore is one scored dimension of a PreferenceMatchResult.
type DimensionScore struct {
	Dimension string  `json:"dimension"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason,omitempty"`
}

// PreferenceMatchResult is the output of the Preference Matcher.
type PreferenceMatchResult struct {
	Match              bool             `json:"match"`
	Score              float64          `json:"score"`
	Dimensions         []DimensionScore `json:"dimensions"`
	MatchedCriteria    []string         `json:"matched_criteria"`
	MismatchedCriteria []string         `json:"mismatched_criteria"`
	Recommendation     Recommendation   `json:"recommendation"`
	MismatchReasons    []string         `json:"mismatch_reasons"`
}

// ComparableCompany is one peer used in the Valuation Agent's comps table.
type ComparableCompany struct {
	Name        string  `json:"name"`
	EVToRevenue float64 `json:"ev_to_revenue,omitempty"`
	EVToEBITDA  float64 `json:"ev_to_ebitda,omitempty"`
	PERatio     float64 `json:"pe_ratio,omitempty"`
}

// ValuationOutput is the result of the Valuation Agent.
type ValuationOutput struct {
	Low         float64             `json:"low"`
	High        float64             `json:"high"`
	Currency    string              `json:"currency"`
	Methodology string              `json:"methodology"`
	Comparables []ComparableCompany `json:"comparables"`
	Assumptions []string            `json:"assumptions"`
	Risks       []string            `json:"risks"`
	Degraded    bool                `json:"degraded,omitempty"`
}

// ExitOutput is the result of the Exit Agent.
type ExitOutput struct {
	PrimaryPath     string   `json:"primary_path"`
	IPOAnalysis     string   `json:"ipo_analysis"`
	MAOpportunities []string `json:"ma_opportunities"`
	ExitRisks       []string `json:"exit_risks"`
	Degraded        bool     `json:"degraded,omitempty"`
}

// PreliminaryIM is the final artifact assembled at COMPLETED.
type PreliminaryIM struct {
	CompanyName     string                 `json:"company_name"`
	TeamSection     *TeamAnalysisOutput    `json:"team_section,omitempty"`
	MarketSection   *MarketAnalysisOutput  `json:"market_section,omitempty"`
	Valuation       *ValuationOutput       `json:"valuation,omitempty"`
	Exit            *ExitOutput            `json:"exit,omitempty"`
	DDQuestions     []DDQuestion           `json:"dd_questions,omitempty"`
	PreferenceMatch *PreferenceMatchResult `json:"preference_match,omitempty"`
	GeneratedAt     time.Time              `json:"generated_at"`
}
