package services

import (
	"strconv"
	"strings"

	"intake/models"
	"intake/registry"
)

// Evaluator decides whether a question is eligible to be asked in a
// session. It is a pure function of session state: demographic gates,
// depends-on predicates, and skip-group exclusions.
type Evaluator struct {
	registry *registry.Registry
}

// NewEvaluator creates the conditional logic evaluator.
func NewEvaluator(reg *registry.Registry) *Evaluator {
	return &Evaluator{registry: reg}
}

// IsEligible reports whether the question may be asked given everything
// answered so far. A question whose prerequisite was never asked (for
// example because its module was closed upstream) is simply not eligible;
// absence of a prerequisite never fails the flow.
func (e *Evaluator) IsEligible(q *models.Question, session *models.Session) bool {
	a := session.Assessment

	if q.SexSpecific != models.SexUnspecified && q.SexSpecific != a.ClientSex {
		return false
	}

	for _, id := range a.SkippedQuestionIDs {
		if id == q.ID {
			return false
		}
	}

	if q.SkipGroup != "" {
		for _, group := range a.ExcludedSkipGroups {
			if group == q.SkipGroup {
				return false
			}
		}
	}

	if q.Conditional != nil {
		prior, ok := session.ResponseFor(q.Conditional.DependsOn)
		if !ok {
			return false
		}
		if !satisfies(q.Conditional, prior) {
			return false
		}
	}

	return true
}

// EligibleQuestions returns the unanswered, eligible questions of a module
// in registry order. Conditional questions are only considered once the
// module is activated.
func (e *Evaluator) EligibleQuestions(module string, activated bool, session *models.Session) []models.Question {
	var out []models.Question
	for _, q := range e.registry.ByModule(module) {
		if !q.Required && !activated {
			continue
		}
		if session.Answered(q.ID) {
			continue
		}
		if e.IsEligible(&q, session) {
			out = append(out, q)
		}
	}
	return out
}

func satisfies(rule *models.ConditionalRule, prior *models.Response) bool {
	switch rule.Operator {
	case models.OperatorEq:
		return strings.EqualFold(prior.Value, rule.Value)
	case models.OperatorNeq:
		return !strings.EqualFold(prior.Value, rule.Value)
	case models.OperatorGte, models.OperatorLte:
		threshold, err := strconv.ParseFloat(rule.Value, 64)
		if err != nil {
			return false
		}
		var answered float64
		if prior.Numeric != nil {
			answered = *prior.Numeric
		} else if parsed, perr := strconv.ParseFloat(prior.Value, 64); perr == nil {
			answered = parsed
		} else {
			return false
		}
		if rule.Operator == models.OperatorGte {
			return answered >= threshold
		}
		return answered <= threshold
	case models.OperatorContains:
		for _, sel := range prior.Selections {
			if strings.EqualFold(sel, rule.Value) {
				return true
			}
		}
		return strings.Contains(strings.ToLower(prior.Value), strings.ToLower(rule.Value))
	default:
		return false
	}
}
