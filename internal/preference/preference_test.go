package preference

import (
	"testing"

	"ddorchestrator/internal/model"
)

func baseBP() model.BPStructuredData {
	return model.BPStructuredData{
		CompanyName:         "Acme Robotics",
		InferredIndustry:    "robotics",
		InferredStage:       "seed",
		InferredGeography:   "US",
		InvestmentAmountAsk: 1_000_000,
		Team:                []model.TeamMember{{Name: "A"}, {Name: "B"}, {Name: "C"}},
		HasRevenue:          true,
		HasProduct:          true,
	}
}

func basePrefs() model.InstitutionPreferences {
	return model.InstitutionPreferences{
		FocusIndustries:      []string{"robotics", "fintech"},
		PreferredStages:      []string{"seed", "series-a"},
		PreferredGeographies: []string{"US", "Canada"},
		MinInvestment:        500_000,
		MaxInvestment:        2_000_000,
		MinTeamSize:          2,
	}
}

func TestMatch_FullMatch(t *testing.T) {
	result := Match(baseBP(), basePrefs())
	if !result.Match {
		t.Fatalf("expected match, got score %v recommendation %v", result.Score, result.Recommendation)
	}
	if result.Recommendation != model.RecommendProceed {
		t.Errorf("expected proceed, got %s", result.Recommendation)
	}
	if result.Score != 100 {
		t.Errorf("expected a perfect 100 score on full match, got %v", result.Score)
	}
}

func TestMatch_ExclusionDominates(t *testing.T) {
	bp := baseBP()
	prefs := basePrefs()
	prefs.ExcludedIndustries = []string{"robotics"}

	result := Match(bp, prefs)
	if result.Match {
		t.Fatal("expected exclusion hit to force a non-match regardless of score")
	}
	if result.Recommendation != model.RecommendAbort {
		t.Errorf("expected abort, got %s", result.Recommendation)
	}
	found := false
	for _, r := range result.MismatchReasons {
		if r == "industry in exclusion list" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected exclusion mismatch reason, got %v", result.MismatchReasons)
	}
}

func TestMatch_BelowThreshold(t *testing.T) {
	bp := baseBP()
	// Industry outside the focus list (50), stage and geography mismatched
	// (0 each), everything else full: 15+0+0+15+10+7.5+7.5 = 55 < 60.
	bp.InferredIndustry = "biotech"
	bp.InferredStage = "growth"
	bp.InferredGeography = "Germany"
	prefs := basePrefs()

	result := Match(bp, prefs)
	if result.Match {
		t.Fatalf("expected no match, got score %v", result.Score)
	}
	if result.Recommendation != model.RecommendAbort {
		t.Errorf("expected abort, got %s", result.Recommendation)
	}
}

func TestMatch_InvestmentAmountTaper(t *testing.T) {
	bp := baseBP()
	prefs := basePrefs()

	// 10% above max (within the 20% taper band) should score between 0 and 100.
	bp.InvestmentAmountAsk = prefs.MaxInvestment * 1.1
	result := Match(bp, prefs)

	var amountScore float64
	for _, d := range result.Dimensions {
		if d.Dimension == "investment_amount" {
			amountScore = d.Score
		}
	}
	if amountScore <= 0 || amountScore >= 100 {
		t.Errorf("expected a tapered score strictly between 0 and 100, got %v", amountScore)
	}
}

func TestMatch_InvestmentAmountOutsideTaper(t *testing.T) {
	bp := baseBP()
	prefs := basePrefs()
	bp.InvestmentAmountAsk = prefs.MaxInvestment * 2

	result := Match(bp, prefs)
	for _, d := range result.Dimensions {
		if d.Dimension == "investment_amount" && d.Score != 0 {
			t.Errorf("expected investment_amount score of 0 far outside taper band, got %v", d.Score)
		}
	}
}

func TestMatch_MissingDataScoresNeutral(t *testing.T) {
	bp := model.BPStructuredData{CompanyName: "Unknown Co"}
	prefs := basePrefs()

	result := Match(bp, prefs)
	for _, d := range result.Dimensions {
		switch d.Dimension {
		case "industry", "geography", "investment_amount":
			if d.Score != 50 {
				t.Errorf("dimension %s: expected neutral score of 50 on missing BP data, got %v", d.Dimension, d.Score)
			}
		}
	}
}

func TestMatch_RequirementsEnforced(t *testing.T) {
	bp := baseBP()
	bp.HasRevenue = false
	prefs := basePrefs()
	prefs.RequireRevenue = true

	result := Match(bp, prefs)
	for _, d := range result.Dimensions {
		if d.Dimension == "has_revenue" && d.Score != 0 {
			t.Errorf("expected has_revenue score of 0 when required but absent, got %v", d.Score)
		}
	}
}

func TestMatch_TeamSizeBelowMinimum(t *testing.T) {
	bp := baseBP()
	bp.Team = []model.TeamMember{{Name: "Solo Founder"}}
	prefs := basePrefs()
	prefs.MinTeamSize = 3

	result := Match(bp, prefs)
	for _, d := range result.Dimensions {
		if d.Dimension == "team_size" && d.Score != 0 {
			t.Errorf("expected team_size score of 0 below minimum, got %v", d.Score)
		}
	}
}
