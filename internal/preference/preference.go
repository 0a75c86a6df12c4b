// Package preference implements the Preference Matcher: a pure function
// from a parsed BP plus an institution's stored preferences to a weighted
// match score with per-dimension breakdown and a pass/fail verdict
// (spec section 4.2). It has no external dependencies because the
// concern -- a weighted scorecard with a dominance override -- is a
// domain calculation, not something any corpus library models.
package preference

import (
	"ddorchestrator/internal/model"
)

const matchThreshold = 60.0

const (
	weightIndustry         = 0.30
	weightStage            = 0.20
	weightGeography        = 0.10
	weightInvestmentAmount = 0.15
	weightTeamSize         = 0.10
	weightHasRevenue       = 0.075
	weightHasProduct       = 0.075
)

// Match scores bp against prefs and returns the full breakdown.
func Match(bp model.BPStructuredData, prefs model.InstitutionPreferences) model.PreferenceMatchResult {
	var dims []model.DimensionScore
	var matched, mismatched, mismatchReasons []string
	exclusionHit := false

	industryScore, industryReason, excluded := scoreIndustry(bp, prefs)
	dims = append(dims, model.DimensionScore{Dimension: "industry", Score: industryScore, Reason: industryReason})
	if excluded {
		exclusionHit = true
		mismatchReasons = append(mismatchReasons, "industry in exclusion list")
	}
	recordCriterion(industryScore, "industry", industryReason, &matched, &mismatched)

	stageScore, stageReason := scoreStage(bp, prefs)
	dims = append(dims, model.DimensionScore{Dimension: "stage", Score: stageScore, Reason: stageReason})
	recordCriterion(stageScore, "stage", stageReason, &matched, &mismatched)

	geoScore, geoReason := scoreGeography(bp, prefs)
	dims = append(dims, model.DimensionScore{Dimension: "geography", Score: geoScore, Reason: geoReason})
	recordCriterion(geoScore, "geography", geoReason, &matched, &mismatched)

	amountScore, amountReason := scoreInvestmentAmount(bp, prefs)
	dims = append(dims, model.DimensionScore{Dimension: "investment_amount", Score: amountScore, Reason: amountReason})
	recordCriterion(amountScore, "investment_amount", amountReason, &matched, &mismatched)

	teamScore, teamReason := scoreTeamSize(bp, prefs)
	dims = append(dims, model.DimensionScore{Dimension: "team_size", Score: teamScore, Reason: teamReason})
	recordCriterion(teamScore, "team_size", teamReason, &matched, &mismatched)

	revenueScore, revenueReason := scoreRequirement(prefs.RequireRevenue, bp.HasRevenue, "has_revenue")
	dims = append(dims, model.DimensionScore{Dimension: "has_revenue", Score: revenueScore, Reason: revenueReason})
	recordCriterion(revenueScore, "has_revenue", revenueReason, &matched, &mismatched)

	productScore, productReason := scoreRequirement(prefs.RequireProduct, bp.HasProduct, "has_product")
	dims = append(dims, model.DimensionScore{Dimension: "has_product", Score: productScore, Reason: productReason})
	recordCriterion(productScore, "has_product", productReason, &matched, &mismatched)

	weighted := industryScore*weightIndustry +
		stageScore*weightStage +
		geoScore*weightGeography +
		amountScore*weightInvestmentAmount +
		teamScore*weightTeamSize +
		revenueScore*weightHasRevenue +
		productScore*weightHasProduct

	match := weighted >= matchThreshold && !exclusionHit
	recommendation := model.RecommendProceed
	if !match {
		recommendation = model.RecommendAbort
		if !exclusionHit && weighted < matchThreshold {
			mismatchReasons = append(mismatchReasons, "weighted score below threshold")
		}
	}

	return model.PreferenceMatchResult{
		Match:              match,
		Score:              weighted,
		Dimensions:         dims,
		MatchedCriteria:    matched,
		MismatchedCriteria: mismatched,
		Recommendation:     recommendation,
		MismatchReasons:    mismatchReasons,
	}
}

func recordCriterion(score float64, dim, reason string, matched, mismatched *[]string) {
	if score >= 100 {
		*matched = append(*matched, dim)
	} else if score < 100 && reason != "" {
		*mismatched = append(*mismatched, dim+": "+reason)
	}
}

func scoreIndustry(bp model.BPStructuredData, prefs model.InstitutionPreferences) (float64, string, bool) {
	industry := bp.InferredIndustry
	if industry == "" {
		return 50, "industry not determined from BP", false
	}
	for _, excluded := range prefs.ExcludedIndustries {
		if equalFold(excluded, industry) {
			return 0, "industry in exclusion list", true
		}
	}
	for _, focus := range prefs.FocusIndustries {
		if equalFold(focus, industry) {
			return 100, "", false
		}
	}
	return 50, "industry not in focus list", false
}

func scoreStage(bp model.BPStructuredData, prefs model.InstitutionPreferences) (float64, string) {
	if bp.InferredStage == "" {
		return 50, "stage not determined from BP"
	}
	for _, stage := range prefs.PreferredStages {
		if equalFold(stage, bp.InferredStage) {
			return 100, ""
		}
	}
	return 0, "stage not in preferred_stages"
}

func scoreGeography(bp model.BPStructuredData, prefs model.InstitutionPreferences) (float64, string) {
	if bp.InferredGeography == "" {
		return 50, "geography unknown"
	}
	if len(prefs.PreferredGeographies) == 0 {
		return 50, "no geography preference configured"
	}
	for _, g := range prefs.PreferredGeographies {
		if equalFold(g, bp.InferredGeography) {
			return 100, ""
		}
	}
	return 0, "geography outside preferred_geographies"
}

func scoreInvestmentAmount(bp model.BPStructuredData, prefs model.InstitutionPreferences) (float64, string) {
	if bp.InvestmentAmountAsk <= 0 {
		return 50, "investment amount not determined from BP"
	}
	min, max := prefs.MinInvestment, prefs.MaxInvestment
	if max <= 0 {
		return 50, "no investment range configured"
	}
	if bp.InvestmentAmountAsk >= min && bp.InvestmentAmountAsk <= max {
		return 100, ""
	}
	taper := 0.20
	lowBound := min * (1 - taper)
	highBound := max * (1 + taper)
	if bp.InvestmentAmountAsk < lowBound || bp.InvestmentAmountAsk > highBound {
		return 0, "investment amount outside tapered range"
	}
	var distanceRatio float64
	if bp.InvestmentAmountAsk < min {
		distanceRatio = (min - bp.InvestmentAmountAsk) / (min - lowBound)
	} else {
		distanceRatio = (bp.InvestmentAmountAsk - max) / (highBound - max)
	}
	score := 100 * (1 - distanceRatio)
	if score < 0 {
		score = 0
	}
	return score, "investment amount within taper band"
}

func scoreTeamSize(bp model.BPStructuredData, prefs model.InstitutionPreferences) (float64, string) {
	if prefs.MinTeamSize <= 0 {
		return 100, ""
	}
	if len(bp.Team) < prefs.MinTeamSize {
		return 0, "team size below minimum required"
	}
	return 100, ""
}

func scoreRequirement(required, present bool, label string) (float64, string) {
	if !required {
		return 100, ""
	}
	if present {
		return 100, ""
	}
	return 0, label + " required but not present"
}

func equalFold(a, b string) bool {
	return asciiLower(a) == asciiLower(b)
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
