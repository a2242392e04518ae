package services

import (
	"strconv"
	"strings"

	"intake/models"
)

// Severity thresholds on the normalized 0-1 answer scale. An answer in the
// top quintile counts as high severity and forces an AI checkpoint; an
// answer at or below the negative bound counts toward early module close.
const (
	highSeverityBound = 0.8
	negativeBound     = 0.25
)

// NormalizedSeverity maps an answer onto a 0-1 severity scale regardless of
// question type. Free-text answers are unscored and return 0.
func NormalizedSeverity(q *models.Question, r *models.Response) float64 {
	switch q.Type {
	case models.QuestionTypeYesNo:
		if strings.EqualFold(r.Value, "yes") {
			return 1
		}
		return 0
	case models.QuestionTypeLikertScale:
		if q.Scale == nil || q.Scale.Max <= q.Scale.Min {
			return 0
		}
		v := 0.0
		if r.Numeric != nil {
			v = *r.Numeric
		} else if parsed, err := strconv.ParseFloat(r.Value, 64); err == nil {
			v = parsed
		}
		min, max := float64(q.Scale.Min), float64(q.Scale.Max)
		if v < min {
			v = min
		}
		if v > max {
			v = max
		}
		return (v - min) / (max - min)
	case models.QuestionTypeMultipleChoice:
		maxScore := 0.0
		for _, opt := range q.Options {
			if opt.Score > maxScore {
				maxScore = opt.Score
			}
		}
		if maxScore <= 0 {
			return 0
		}
		for _, opt := range q.Options {
			if opt.Value == r.Value {
				return opt.Score / maxScore
			}
		}
		return 0
	default:
		return 0
	}
}

// Scorable reports whether the answer contributes to module severity.
func Scorable(q *models.Question) bool {
	return q.Type != models.QuestionTypeFreeText && q.ScoringWeight > 0
}

// IsNegative reports whether the answer indicates absence of symptoms.
func IsNegative(q *models.Question, r *models.Response) bool {
	if !Scorable(q) {
		return false
	}
	return NormalizedSeverity(q, r) <= negativeBound
}

// IsHighSeverity reports whether the answer lands in the top quintile of
// its scale.
func IsHighSeverity(q *models.Question, r *models.Response) bool {
	if !Scorable(q) {
		return false
	}
	return NormalizedSeverity(q, r) >= highSeverityBound
}
