package services

import (
	"math"

	"intake/config"
	"intake/models"
	"intake/registry"
)

// ProgressTracker computes completion accounting for a session. The
// denominator of the completion rate is the expected question count of the
// currently activated modules, so it grows as modules unlock. Clients of
// the API must not assume the rate only ever increases.
type ProgressTracker struct {
	registry         *registry.Registry
	minQuestions     int
	secondsPerAnswer int
}

// NewProgressTracker creates the progress and completion tracker.
func NewProgressTracker(reg *registry.Registry, cfg config.AssessmentConfig) *ProgressTracker {
	seconds := cfg.SecondsPerAnswer
	if seconds <= 0 {
		seconds = 30
	}
	return &ProgressTracker{
		registry:         reg,
		minQuestions:     cfg.MinQuestions,
		secondsPerAnswer: seconds,
	}
}

// Report builds the progress payload for a session.
func (p *ProgressTracker) Report(session *models.Session) *models.ProgressReport {
	a := session.Assessment

	var moduleProgress []models.ModuleProgress
	expectedTotal := 0
	for _, spec := range p.registry.Modules() {
		tally, tracked := a.ModuleState[spec.Name]
		expected := p.expectedForModule(&spec, session)
		expectedTotal += expected

		state := "locked"
		asked := 0
		if tracked {
			asked = tally.Answered
			switch {
			case tally.Closed:
				state = "closed"
			case tally.Activated:
				state = "active"
			case tally.Answered > 0:
				state = "active"
			}
		}
		moduleProgress = append(moduleProgress, models.ModuleProgress{
			Module:   spec.Name,
			State:    state,
			Asked:    asked,
			Expected: expected,
		})
	}

	// The selector does not let a live session finish before the global
	// minimum while questions remain, so the denominator honors the same
	// floor.
	if a.Status != models.AssessmentStatusCompleted && expectedTotal < p.minQuestions {
		expectedTotal = p.minQuestions
	}

	rate := 0.0
	if expectedTotal > 0 {
		rate = float64(a.QuestionsAsked) / float64(expectedTotal) * 100
	}
	if rate > 100 {
		rate = 100
	}
	if a.Status == models.AssessmentStatusCompleted {
		rate = 100
	}

	remaining := expectedTotal - a.QuestionsAsked
	if remaining < 0 {
		remaining = 0
	}
	minutes := int(math.Ceil(float64(remaining*p.secondsPerAnswer) / 60))

	return &models.ProgressReport{
		AssessmentID:              a.ID,
		Status:                    a.Status,
		QuestionsAsked:            a.QuestionsAsked,
		QuestionsSaved:            a.QuestionsSaved,
		CompletionRate:            rate,
		EstimatedMinutesRemaining: minutes,
		Modules:                   moduleProgress,
	}
}

// CompletionRate is the shorthand used after each submission.
func (p *ProgressTracker) CompletionRate(session *models.Session) float64 {
	return p.Report(session).CompletionRate
}

// expectedForModule estimates how many questions a module will contribute:
// what it actually consumed once closed, its full eligible set once
// activated, and only the required set while locked.
func (p *ProgressTracker) expectedForModule(spec *models.ModuleSpec, session *models.Session) int {
	a := session.Assessment
	tally, tracked := a.ModuleState[spec.Name]
	if tracked && tally.Closed {
		return tally.Answered
	}

	activated := tracked && tally.Activated
	count := 0
	for _, q := range p.registry.ByModule(spec.Name) {
		if !q.Required && !activated {
			continue
		}
		if q.SexSpecific != models.SexUnspecified && q.SexSpecific != a.ClientSex {
			continue
		}
		if containsString(a.SkippedQuestionIDs, q.ID) && !session.Answered(q.ID) {
			continue
		}
		if q.SkipGroup != "" && containsString(a.ExcludedSkipGroups, q.SkipGroup) && !session.Answered(q.ID) {
			continue
		}
		count++
	}
	if spec.MaxQuestions > 0 && count > spec.MaxQuestions {
		count = spec.MaxQuestions
	}
	if tracked && count < tally.Answered {
		count = tally.Answered
	}
	return count
}
