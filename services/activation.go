package services

import (
	"time"

	"go.uber.org/zap"

	"intake/models"
	"intake/registry"
)

// Very low running severity closes a module early once its minimum is met,
// even when some answers were not strictly negative.
const lowSeverityExit = 15.0

// ActivationEngine maintains the per-module severity tallies and makes the
// activation and early-close decisions. Tallies are updated incrementally
// after each answer, never recomputed retroactively, which is what makes
// activation sticky.
type ActivationEngine struct {
	registry *registry.Registry
	log      *zap.Logger
}

// NewActivationEngine creates the module activation engine.
func NewActivationEngine(reg *registry.Registry, log *zap.Logger) *ActivationEngine {
	return &ActivationEngine{registry: reg, log: log}
}

// ActivationState reports a module's current state for a session.
func (e *ActivationEngine) ActivationState(module string, session *models.Session) (locked, activated bool) {
	t, ok := session.Assessment.ModuleState[module]
	if !ok {
		return true, false
	}
	return !t.Activated, t.Activated
}

// RecordAnswer folds a newly recorded response into the session: severity
// tallies, threshold activation, skip-group exclusion, red flags, and the
// high-severity checkpoint flag. Called once per accepted answer.
func (e *ActivationEngine) RecordAnswer(session *models.Session, q *models.Question, resp *models.Response) {
	a := session.Assessment
	tally := a.Tally(q.Module)
	tally.Answered++

	if Scorable(q) {
		severity := NormalizedSeverity(q, resp)
		tally.ScoreSum += severity * q.ScoringWeight
		tally.WeightSum += q.ScoringWeight
		if IsNegative(q, resp) {
			tally.Negative++
		}
		if IsHighSeverity(q, resp) {
			a.CheckpointPending = true
		}
		if q.RedFlagThreshold > 0 && severity >= q.RedFlagThreshold {
			a.RedFlags = append(a.RedFlags, models.RedFlag{
				QuestionID: q.ID,
				Value:      resp.Value,
				RecordedAt: time.Now(),
			})
			e.log.Warn("Red flag answer recorded",
				zap.String("assessment_id", a.ID),
				zap.String("question_id", q.ID),
				zap.String("value", resp.Value))
		}
	}

	// A negative answer to a gating question excludes its whole follow-up
	// group for the rest of the session.
	if q.GatesSkipGroup != "" && IsNegative(q, resp) {
		if !containsString(a.ExcludedSkipGroups, q.GatesSkipGroup) {
			a.ExcludedSkipGroups = append(a.ExcludedSkipGroups, q.GatesSkipGroup)
			e.log.Info("Skip group excluded by gating answer",
				zap.String("assessment_id", a.ID),
				zap.String("skip_group", q.GatesSkipGroup),
				zap.String("gating_question", q.ID))
		}
	}

	// Activation is evaluated on required answers only and is sticky once
	// the threshold is crossed.
	if q.Required && !tally.Activated {
		spec, err := e.registry.Module(q.Module)
		if err == nil && tally.Severity() >= spec.ActivationThreshold {
			tally.Activated = true
			e.log.Info("Module activated",
				zap.String("assessment_id", a.ID),
				zap.String("module", q.Module),
				zap.Float64("severity", tally.Severity()))
		}
	}
}

// ShouldCloseEarly decides whether a module can be force-closed: its
// minimum is answered and the answers so far show no meaningful signal.
func (e *ActivationEngine) ShouldCloseEarly(spec *models.ModuleSpec, tally *models.ModuleTally) bool {
	if tally.Closed {
		return false
	}
	if tally.Answered >= spec.MaxQuestions {
		return true
	}
	if tally.Answered < spec.MinQuestions {
		return false
	}
	if float64(tally.Negative)/float64(tally.Answered) >= spec.ExitNegativeRatio {
		return true
	}
	return tally.Severity() < lowSeverityExit
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
