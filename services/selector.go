package services

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"intake/config"
	"intake/models"
	"intake/registry"
)

// AnswerSummary is one recent answer passed to the advisor.
type AnswerSummary struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Value      string `json:"value"`
}

// ModuleSummary gives the advisor the running context of the current
// module so it can reason about redundancy and early exit.
type ModuleSummary struct {
	Module        string  `json:"module"`
	Asked         int     `json:"asked"`
	NegativeRatio float64 `json:"negative_ratio"`
	Severity      float64 `json:"severity"`
}

// AdvisorRequest is the narrow contract between the selector and the AI
// capability: the eligible candidates, a window of recent answers, and the
// opaque context blob from the previous call.
type AdvisorRequest struct {
	Eligible      []models.Question
	RecentAnswers []AnswerSummary
	Module        ModuleSummary
	AIContext     json.RawMessage
}

// AdvisorDecision is the AI capability's answer. A selected id outside the
// eligible set is discarded by the selector.
type AdvisorDecision struct {
	SelectedQuestionID string          `json:"selected_question_id"`
	SkipQuestionIDs    []string        `json:"skip_question_ids"`
	UpdatedContext     json.RawMessage `json:"updated_context"`
	Reasoning          string          `json:"reasoning"`
}

// QuestionAdvisor is the single external capability the selector depends
// on. Implementations must honor the context deadline.
type QuestionAdvisor interface {
	SuggestNext(ctx context.Context, req AdvisorRequest) (*AdvisorDecision, error)
}

// Selector chooses the next question for a session: deterministic registry
// order by default, with periodic AI-assisted overrides. SelectNext is
// total: it always yields either a question or completion, regardless of
// advisor availability.
type Selector struct {
	registry           *registry.Registry
	evaluator          *Evaluator
	activation         *ActivationEngine
	advisor            QuestionAdvisor // nil disables AI checkpoints
	checkpointInterval int
	minQuestions       int
	maxQuestions       int
	log                *zap.Logger
}

// NewSelector creates the adaptive question selector. A nil advisor leaves
// the selector purely deterministic.
func NewSelector(
	reg *registry.Registry,
	evaluator *Evaluator,
	activation *ActivationEngine,
	advisor QuestionAdvisor,
	cfg config.AssessmentConfig,
	aiCfg config.AIConfig,
	log *zap.Logger,
) *Selector {
	return &Selector{
		registry:           reg,
		evaluator:          evaluator,
		activation:         activation,
		advisor:            advisor,
		checkpointInterval: aiCfg.CheckpointInterval,
		minQuestions:       cfg.MinQuestions,
		maxQuestions:       cfg.MaxQuestions,
		log:                log,
	}
}

// SelectNext returns the next question to present, or complete=true when
// the session is done. It may mutate the session's assessment (current
// module, closed modules, skip set, questionsSaved, aiContext); the caller
// persists those changes.
func (s *Selector) SelectNext(session *models.Session) (question *models.Question, complete bool) {
	a := session.Assessment

	if s.maxQuestions > 0 && a.QuestionsAsked >= s.maxQuestions {
		s.log.Info("Global question cap reached",
			zap.String("assessment_id", a.ID),
			zap.Int("questions_asked", a.QuestionsAsked))
		return nil, true
	}

	modules := s.registry.Modules()
	start := moduleIndex(modules, a.CurrentModule)

	// Below the global minimum, modules that still hold eligible questions
	// must not close early; the session only completes this short when
	// nothing remains askable at all.
	belowFloor := s.minQuestions > 0 && a.QuestionsAsked < s.minQuestions

	for i := start; i < len(modules); i++ {
		spec := &modules[i]
		tally := a.Tally(spec.Name)
		if tally.Closed {
			continue
		}

		eligible := s.evaluator.EligibleQuestions(spec.Name, tally.Activated, session)
		if len(eligible) == 0 {
			tally.Closed = true
			continue
		}

		if !belowFloor && s.activation.ShouldCloseEarly(spec, tally) {
			tally.Closed = true
			a.QuestionsSaved += len(eligible)
			s.log.Info("Module closed early",
				zap.String("assessment_id", a.ID),
				zap.String("module", spec.Name),
				zap.Int("questions_saved", len(eligible)))
			continue
		}

		a.CurrentModule = spec.Name
		return s.pick(session, spec, tally, eligible), false
	}

	return nil, true
}

// pick applies the deterministic default and, at checkpoints, the AI
// override. The deterministic choice is always available and never blocks.
func (s *Selector) pick(session *models.Session, spec *models.ModuleSpec, tally *models.ModuleTally, eligible []models.Question) *models.Question {
	a := session.Assessment
	fallback := &eligible[0]

	if s.advisor == nil || !s.checkpointDue(a) {
		return fallback
	}
	a.CheckpointPending = false

	req := AdvisorRequest{
		Eligible:      eligible,
		RecentAnswers: recentAnswers(session, 5),
		Module: ModuleSummary{
			Module:        spec.Name,
			Asked:         tally.Answered,
			NegativeRatio: negativeRatio(tally),
			Severity:      tally.Severity(),
		},
		AIContext: a.AIContext,
	}

	decision, err := s.advisor.SuggestNext(context.Background(), req)
	if err != nil {
		// The assessment must never stall on the AI capability; fall back
		// and record the failure for observability only.
		s.log.Warn("Advisor call failed, using deterministic selection",
			zap.String("assessment_id", a.ID),
			zap.Error(err))
		return fallback
	}

	if len(decision.UpdatedContext) > 0 {
		a.AIContext = decision.UpdatedContext
	}

	eligibleIDs := make(map[string]bool, len(eligible))
	for i := range eligible {
		eligibleIDs[eligible[i].ID] = true
	}

	for _, skipID := range decision.SkipQuestionIDs {
		if skipID == decision.SelectedQuestionID {
			continue
		}
		if session.Answered(skipID) || containsString(a.SkippedQuestionIDs, skipID) {
			continue
		}
		if _, err := s.registry.FindByID(skipID); err != nil {
			continue
		}
		a.SkippedQuestionIDs = append(a.SkippedQuestionIDs, skipID)
		if eligibleIDs[skipID] {
			a.QuestionsSaved++
		}
	}

	if chosen, ok := findQuestion(eligible, decision.SelectedQuestionID); ok {
		// The advisor may have skipped its own selection's neighbors; make
		// sure the chosen question itself survived the skip pass.
		if !containsString(a.SkippedQuestionIDs, chosen.ID) {
			s.log.Debug("Advisor selected question",
				zap.String("assessment_id", a.ID),
				zap.String("question_id", chosen.ID),
				zap.String("reasoning", decision.Reasoning))
			return chosen
		}
	} else if decision.SelectedQuestionID != "" {
		s.log.Warn("Advisor suggested non-eligible question, discarding",
			zap.String("assessment_id", a.ID),
			zap.String("suggested_id", decision.SelectedQuestionID))
	}

	// The skip pass may have consumed the deterministic first choice.
	for i := range eligible {
		if !containsString(a.SkippedQuestionIDs, eligible[i].ID) {
			return &eligible[i]
		}
	}

	// The advisor skipped every eligible question; the fallback gets asked
	// anyway, so it must leave the skip set and the savings count.
	for i, id := range a.SkippedQuestionIDs {
		if id == fallback.ID {
			a.SkippedQuestionIDs = append(a.SkippedQuestionIDs[:i], a.SkippedQuestionIDs[i+1:]...)
			a.QuestionsSaved--
			break
		}
	}
	return fallback
}

// checkpointDue reports whether this selection is an AI checkpoint: the
// session's first question, every Nth question, or right after a
// high-severity answer.
func (s *Selector) checkpointDue(a *models.Assessment) bool {
	if a.CheckpointPending {
		return true
	}
	if a.QuestionsAsked == 0 {
		return true
	}
	return s.checkpointInterval > 0 && a.QuestionsAsked%s.checkpointInterval == 0
}

func recentAnswers(session *models.Session, n int) []AnswerSummary {
	responses := session.Responses
	if len(responses) > n {
		responses = responses[len(responses)-n:]
	}
	out := make([]AnswerSummary, 0, len(responses))
	for _, r := range responses {
		out = append(out, AnswerSummary{
			QuestionID: r.QuestionID,
			Question:   r.QuestionText,
			Value:      r.Value,
		})
	}
	return out
}

func negativeRatio(t *models.ModuleTally) float64 {
	if t.Answered == 0 {
		return 0
	}
	return float64(t.Negative) / float64(t.Answered)
}

func moduleIndex(modules []models.ModuleSpec, name string) int {
	for i := range modules {
		if modules[i].Name == name {
			return i
		}
	}
	return 0
}

func findQuestion(questions []models.Question, id string) (*models.Question, bool) {
	for i := range questions {
		if questions[i].ID == id {
			return &questions[i], true
		}
	}
	return nil, false
}
