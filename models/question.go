package models

// QuestionType defines the answer format of an intake question.
type QuestionType string

const (
	QuestionTypeYesNo          QuestionType = "yes_no"          // Yes / No / Unsure
	QuestionTypeLikertScale    QuestionType = "likert_scale"    // Numeric scale, bounds in ScaleConfig
	QuestionTypeMultipleChoice QuestionType = "multiple_choice" // One option from Options
	QuestionTypeFreeText       QuestionType = "free_text"       // Unscored free text
)

// Sex is the demographic attribute used for gating sex-specific questions.
type Sex string

const (
	SexFemale      Sex = "female"
	SexMale        Sex = "male"
	SexUnspecified Sex = ""
)

// ConditionOperator is the comparison applied by a depends-on rule.
type ConditionOperator string

const (
	OperatorEq       ConditionOperator = "eq"
	OperatorNeq      ConditionOperator = "neq"
	OperatorGte      ConditionOperator = "gte"
	OperatorLte      ConditionOperator = "lte"
	OperatorContains ConditionOperator = "contains"
)

// ConditionalRule gates a question on a prior answer. The question is only
// eligible when the referenced question has been answered and the answer
// satisfies the predicate. An unanswered prerequisite makes the question
// ineligible, never an error.
type ConditionalRule struct {
	DependsOn string            `yaml:"depends_on" json:"depends_on"`
	Operator  ConditionOperator `yaml:"operator" json:"operator"`
	Value     string            `yaml:"value" json:"value"`
}

// QuestionOption is one selectable answer for choice-based questions.
// Score feeds the module severity calculation.
type QuestionOption struct {
	Value string  `yaml:"value" json:"value"`
	Label string  `yaml:"label" json:"label"`
	Score float64 `yaml:"score" json:"score"`
}

// ScaleConfig bounds a Likert-scale question.
type ScaleConfig struct {
	Min      int    `yaml:"min" json:"min"`
	Max      int    `yaml:"max" json:"max"`
	MinLabel string `yaml:"min_label,omitempty" json:"min_label,omitempty"`
	MaxLabel string `yaml:"max_label,omitempty" json:"max_label,omitempty"`
}

// Question is one immutable entry of the intake question bank. Questions are
// defined in the bank file, validated at registry build time, and never
// mutated at runtime.
type Question struct {
	ID            string           `yaml:"id" json:"id"`
	Module        string           `yaml:"module" json:"module"`
	Text          string           `yaml:"text" json:"text"`
	Type          QuestionType     `yaml:"type" json:"type"`
	Options       []QuestionOption `yaml:"options,omitempty" json:"options,omitempty"`
	Scale         *ScaleConfig     `yaml:"scale,omitempty" json:"scale,omitempty"`
	ScoringWeight float64          `yaml:"scoring_weight" json:"scoring_weight"`
	Required      bool             `yaml:"required" json:"required"`

	// SexSpecific restricts the question to clients of the given sex.
	SexSpecific Sex `yaml:"sex_specific,omitempty" json:"sex_specific,omitempty"`

	// Conditional gates the question on a prior answer.
	Conditional *ConditionalRule `yaml:"conditional,omitempty" json:"conditional,omitempty"`

	// SkipGroup names a follow-up group. A negative answer to the group's
	// gating question excludes every member of the group for the rest of
	// the session.
	SkipGroup string `yaml:"skip_group,omitempty" json:"skip_group,omitempty"`

	// GatesSkipGroup marks this question as the gate for a skip group: a
	// negative answer excludes the whole group.
	GatesSkipGroup string `yaml:"gates_skip_group,omitempty" json:"gates_skip_group,omitempty"`

	// RedFlagThreshold, when > 0, records a red flag into the assessment
	// context if the normalized answer severity reaches it (0-1 scale).
	RedFlagThreshold float64 `yaml:"red_flag_threshold,omitempty" json:"red_flag_threshold,omitempty"`
}

// ModuleSpec describes one functional-health module of the bank: which
// questions are always asked, which unlock on activation, and the bounds
// used by the activation engine.
type ModuleSpec struct {
	Name string `yaml:"name" json:"name"`

	// ActivationThreshold is the 0-100 severity score of the module's
	// required questions at which the conditional set unlocks. Activation
	// is sticky for the session.
	ActivationThreshold float64 `yaml:"activation_threshold" json:"activation_threshold"`

	// MinQuestions must be answered before the module may close early.
	MinQuestions int `yaml:"min_questions" json:"min_questions"`
	// MaxQuestions caps the module regardless of activation.
	MaxQuestions int `yaml:"max_questions" json:"max_questions"`

	// ExitNegativeRatio closes the module early once MinQuestions are
	// answered and this share of answers indicates no symptoms.
	ExitNegativeRatio float64 `yaml:"exit_negative_ratio" json:"exit_negative_ratio"`
}

// QuestionBank is the YAML shape of the bank file.
type QuestionBank struct {
	Modules   []ModuleSpec `yaml:"modules"`
	Questions []Question   `yaml:"questions"`
}
