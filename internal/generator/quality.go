package generator

import "github.com/lsat-prep/adaptive/internal/models"

// StructuralScore holds the individual structural compliance checks.
type StructuralScore struct {
	StemLengthOK       bool
	OptionCountOK      bool
	AllOptionsInRange  bool
	ExplanationPresent bool
}

// ComputeStructuralScore evaluates structural compliance for a single question.
func ComputeStructuralScore(q models.Question) StructuralScore {
	stemLen := len(q.Stem)

	optionsOK := true
	for _, o := range q.Options {
		textLen := len(o.Text)
		if textLen < 1 || textLen > 400 {
			optionsOK = false
		}
	}

	return StructuralScore{
		StemLengthOK:       stemLen >= 20 && stemLen <= 1200,
		OptionCountOK:      len(q.Options) >= 4 && len(q.Options) <= 5,
		AllOptionsInRange:  optionsOK,
		ExplanationPresent: len(q.Explanation) >= 20,
	}
}

// ComputeQualityScore calculates a score in [0, 1]; each check is worth 0.25.
func ComputeQualityScore(s StructuralScore) float64 {
	score := 0.0
	if s.StemLengthOK {
		score += 0.25
	}
	if s.OptionCountOK {
		score += 0.25
	}
	if s.AllOptionsInRange {
		score += 0.25
	}
	if s.ExplanationPresent {
		score += 0.25
	}
	return score
}

// ClassifyQuality returns a classification based on the quality score.
// Returns: "reject" (< 0.50), "flagged" (0.50-0.75), "passed" (> 0.75)
func ClassifyQuality(score float64) string {
	if score < 0.50 {
		return "reject"
	}
	if score <= 0.75 {
		return "flagged"
	}
	return "passed"
}
