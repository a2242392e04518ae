package models

import (
	"encoding/json"
	"time"
)

// AssessmentStatus is the lifecycle state of an intake session.
type AssessmentStatus string

const (
	AssessmentStatusInProgress AssessmentStatus = "IN_PROGRESS"
	AssessmentStatusPaused     AssessmentStatus = "PAUSED"
	AssessmentStatusCompleted  AssessmentStatus = "COMPLETED"
)

// ModuleTally is the incrementally maintained state of one module within a
// session. Severity is evaluated after each answer, never recomputed
// retroactively, so activation stays sticky even if later answers would no
// longer cross the threshold.
type ModuleTally struct {
	ScoreSum  float64 `json:"score_sum"`  // weighted normalized severity sum
	WeightSum float64 `json:"weight_sum"` // sum of scoring weights answered
	Answered  int     `json:"answered"`
	Negative  int     `json:"negative"` // answers indicating no symptoms
	Activated bool    `json:"activated"`
	Closed    bool    `json:"closed"`
}

// Severity returns the module's running severity scaled to 0-100.
func (t *ModuleTally) Severity() float64 {
	if t.WeightSum <= 0 {
		return 0
	}
	return (t.ScoreSum / t.WeightSum) * 100
}

// RedFlag records a high-severity answer to a flagged question.
type RedFlag struct {
	QuestionID string    `json:"question_id"`
	Value      string    `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Assessment is a client's intake session. At most one assessment with
// status IN_PROGRESS or PAUSED exists per client at any time.
type Assessment struct {
	ID         string           `json:"id" gorm:"primaryKey"`
	ClientID   string           `json:"client_id" gorm:"index"`
	TemplateID string           `json:"template_id"`
	Status     AssessmentStatus `json:"status" gorm:"index"`

	// Demographics are recorded once at start so eligibility never depends
	// on a mutable external profile.
	ClientSex       Sex `json:"client_sex"`
	ClientBirthYear int `json:"client_birth_year,omitempty"`

	CurrentModule  string  `json:"current_module"`
	QuestionsAsked int     `json:"questions_asked"`
	QuestionsSaved int     `json:"questions_saved"`
	CompletionRate float64 `json:"completion_rate"`

	// ModuleState holds the per-module running tallies.
	ModuleState map[string]*ModuleTally `json:"module_state" gorm:"serializer:json"`

	// SkippedQuestionIDs are questions pre-emptively skipped by the
	// adaptive selector; the evaluator treats them as ineligible.
	SkippedQuestionIDs []string `json:"skipped_question_ids" gorm:"serializer:json"`

	// ExcludedSkipGroups are skip groups whose gating question was
	// answered negatively.
	ExcludedSkipGroups []string `json:"excluded_skip_groups" gorm:"serializer:json"`

	RedFlags []RedFlag `json:"red_flags,omitempty" gorm:"serializer:json"`

	// CheckpointPending forces an AI checkpoint on the next selection; set
	// when a high-severity answer is recorded.
	CheckpointPending bool `json:"checkpoint_pending"`

	// AIContext is an opaque blob round-tripped through the AI capability
	// to preserve reasoning continuity across checkpoints and pause/resume.
	AIContext json.RawMessage `json:"ai_context,omitempty" gorm:"serializer:json"`

	StartedAt    time.Time  `json:"started_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	PausedAt     *time.Time `json:"paused_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Tally returns the tally for a module, creating it on first touch.
func (a *Assessment) Tally(module string) *ModuleTally {
	if a.ModuleState == nil {
		a.ModuleState = make(map[string]*ModuleTally)
	}
	t, ok := a.ModuleState[module]
	if !ok {
		t = &ModuleTally{}
		a.ModuleState[module] = t
	}
	return t
}

// IsActive reports whether the assessment still accepts work (started but
// not yet completed).
func (a *Assessment) IsActive() bool {
	return a.Status == AssessmentStatusInProgress || a.Status == AssessmentStatusPaused
}

// Response is one answered question, append-only. Question text and type
// are denormalized at write time so historic answers stay interpretable
// even if the registry entry for the question changes in a later bank
// revision.
type Response struct {
	ID           uint         `json:"id" gorm:"primaryKey"`
	AssessmentID string       `json:"assessment_id" gorm:"index;uniqueIndex:idx_assessment_question"`
	QuestionID   string       `json:"question_id" gorm:"uniqueIndex:idx_assessment_question"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	Module       string       `json:"module"`

	// Value is the canonical answer: "yes"/"no"/"unsure" for yes-no, the
	// numeric string for scales, the option value for multiple choice.
	Value string `json:"value"`
	// Numeric is set for scale answers and scored options.
	Numeric *float64 `json:"numeric,omitempty"`
	// Selections holds every chosen option when more than one applies.
	Selections []string `json:"selections,omitempty" gorm:"serializer:json"`
	FreeText   string   `json:"free_text,omitempty"`

	AnsweredAt time.Time `json:"answered_at"`
}

// Session is the in-memory view the engine components operate on: the
// assessment row plus its responses, indexed by question id.
type Session struct {
	Assessment *Assessment
	Responses  []Response
	byQuestion map[string]*Response
}

// NewSession builds a session view over an assessment and its responses.
func NewSession(a *Assessment, responses []Response) *Session {
	s := &Session{
		Assessment: a,
		Responses:  responses,
		byQuestion: make(map[string]*Response, len(responses)),
	}
	for i := range responses {
		s.byQuestion[responses[i].QuestionID] = &responses[i]
	}
	return s
}

// ResponseFor returns the recorded answer for a question, if any.
func (s *Session) ResponseFor(questionID string) (*Response, bool) {
	r, ok := s.byQuestion[questionID]
	return r, ok
}

// Answered reports whether the question has already been answered.
func (s *Session) Answered(questionID string) bool {
	_, ok := s.byQuestion[questionID]
	return ok
}

// ModuleProgress is the per-module slice of a progress report.
type ModuleProgress struct {
	Module   string `json:"module"`
	State    string `json:"state"` // locked, active, closed
	Asked    int    `json:"asked"`
	Expected int    `json:"expected"`
}

// ProgressReport is the payload returned by the progress tracker. The
// completion rate's denominator grows as modules activate, so the rate is
// not strictly monotonic increasing across a session.
type ProgressReport struct {
	AssessmentID              string           `json:"assessment_id"`
	Status                    AssessmentStatus `json:"status"`
	QuestionsAsked            int              `json:"questions_asked"`
	QuestionsSaved            int              `json:"questions_saved"`
	CompletionRate            float64          `json:"completion_rate"`
	EstimatedMinutesRemaining int              `json:"estimated_minutes_remaining"`
	Modules                   []ModuleProgress `json:"modules"`
}
