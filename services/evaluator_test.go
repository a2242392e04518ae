package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"intake/models"
	"intake/registry"
)

// testBank is the fixture bank shared by the engine tests: a screening
// module with demographic gates, a conditional follow-up group, and an
// energy module that unlocks a numeric-gated question.
func testBank() models.QuestionBank {
	return models.QuestionBank{
		Modules: []models.ModuleSpec{
			{Name: "SCREENING", ActivationThreshold: 30, MinQuestions: 2, MaxQuestions: 6, ExitNegativeRatio: 0.75},
			{Name: "ENERGY", ActivationThreshold: 40, MinQuestions: 1, MaxQuestions: 4, ExitNegativeRatio: 1.0},
		},
		Questions: []models.Question{
			{ID: "SCR_HEAD", Module: "SCREENING", Text: "Do you get frequent headaches?", Type: models.QuestionTypeYesNo,
				ScoringWeight: 1, Required: true, GatesSkipGroup: "headache_followups"},
			{ID: "SCR_FATIGUE", Module: "SCREENING", Text: "Rate your fatigue over the last month", Type: models.QuestionTypeLikertScale,
				Scale: &models.ScaleConfig{Min: 0, Max: 10}, ScoringWeight: 1, Required: true, RedFlagThreshold: 0.9},
			{ID: "SCR_PREG", Module: "SCREENING", Text: "Are your menstrual cycles regular?", Type: models.QuestionTypeYesNo,
				ScoringWeight: 1, Required: true, SexSpecific: models.SexFemale},
			{ID: "SCR_PROSTATE", Module: "SCREENING", Text: "Any urinary difficulties?", Type: models.QuestionTypeYesNo,
				ScoringWeight: 1, Required: true, SexSpecific: models.SexMale},
			{ID: "SCR_NOTES", Module: "SCREENING", Text: "Anything else we should know?", Type: models.QuestionTypeFreeText,
				Required: true},
			{ID: "SCR_HEAD_FREQ", Module: "SCREENING", Text: "How severe are the headaches?", Type: models.QuestionTypeLikertScale,
				Scale: &models.ScaleConfig{Min: 0, Max: 10}, ScoringWeight: 1, SkipGroup: "headache_followups",
				Conditional: &models.ConditionalRule{DependsOn: "SCR_HEAD", Operator: models.OperatorEq, Value: "yes"}},
			{ID: "SCR_STRESS", Module: "SCREENING", Text: "How would you describe your stress level?", Type: models.QuestionTypeMultipleChoice,
				ScoringWeight: 1,
				Options: []models.QuestionOption{
					{Value: "none", Label: "None", Score: 0},
					{Value: "mild", Label: "Mild", Score: 1},
					{Value: "severe", Label: "Severe", Score: 3},
				}},

			{ID: "NRG_RESTED", Module: "ENERGY", Text: "Do you wake up rested?", Type: models.QuestionTypeYesNo,
				ScoringWeight: 1, Required: true},
			{ID: "NRG_CRASH", Module: "ENERGY", Text: "Do you crash in the afternoon?", Type: models.QuestionTypeYesNo,
				ScoringWeight: 1,
				Conditional: &models.ConditionalRule{DependsOn: "SCR_FATIGUE", Operator: models.OperatorGte, Value: "6"}},
		},
	}
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Build(testBank())
	assert.NoError(t, err)
	return reg
}

func newTestAssessment(sex models.Sex) *models.Assessment {
	return &models.Assessment{
		ID:            "assess-1",
		ClientID:      "client-1",
		Status:        models.AssessmentStatusInProgress,
		ClientSex:     sex,
		CurrentModule: "SCREENING",
		ModuleState:   make(map[string]*models.ModuleTally),
	}
}

func yesNoResponse(questionID, value string) models.Response {
	return models.Response{
		QuestionID:   questionID,
		QuestionType: models.QuestionTypeYesNo,
		Value:        value,
	}
}

func likertResponse(questionID string, value float64) models.Response {
	v := value
	return models.Response{
		QuestionID:   questionID,
		QuestionType: models.QuestionTypeLikertScale,
		Numeric:      &v,
	}
}

func TestEvaluator_SexGating(t *testing.T) {
	reg := testRegistry(t)
	evaluator := NewEvaluator(reg)
	preg, _ := reg.FindByID("SCR_PREG")
	prostate, _ := reg.FindByID("SCR_PROSTATE")

	female := models.NewSession(newTestAssessment(models.SexFemale), nil)
	assert.True(t, evaluator.IsEligible(preg, female))
	assert.False(t, evaluator.IsEligible(prostate, female))

	male := models.NewSession(newTestAssessment(models.SexMale), nil)
	assert.False(t, evaluator.IsEligible(preg, male))
	assert.True(t, evaluator.IsEligible(prostate, male))

	// Unspecified sex skips both sex-specific questions.
	unspecified := models.NewSession(newTestAssessment(models.SexUnspecified), nil)
	assert.False(t, evaluator.IsEligible(preg, unspecified))
	assert.False(t, evaluator.IsEligible(prostate, unspecified))
}

func TestEvaluator_UnansweredPrerequisiteIsNotEligible(t *testing.T) {
	reg := testRegistry(t)
	evaluator := NewEvaluator(reg)
	followup, _ := reg.FindByID("SCR_HEAD_FREQ")

	session := models.NewSession(newTestAssessment(models.SexFemale), nil)

	assert.False(t, evaluator.IsEligible(followup, session))
}

func TestEvaluator_ConditionalEq(t *testing.T) {
	reg := testRegistry(t)
	evaluator := NewEvaluator(reg)
	followup, _ := reg.FindByID("SCR_HEAD_FREQ")

	positive := models.NewSession(newTestAssessment(models.SexFemale),
		[]models.Response{yesNoResponse("SCR_HEAD", "yes")})
	assert.True(t, evaluator.IsEligible(followup, positive))

	negative := models.NewSession(newTestAssessment(models.SexFemale),
		[]models.Response{yesNoResponse("SCR_HEAD", "no")})
	assert.False(t, evaluator.IsEligible(followup, negative))
}

func TestEvaluator_ConditionalGte(t *testing.T) {
	reg := testRegistry(t)
	evaluator := NewEvaluator(reg)
	crash, _ := reg.FindByID("NRG_CRASH")

	high := models.NewSession(newTestAssessment(models.SexFemale),
		[]models.Response{likertResponse("SCR_FATIGUE", 8)})
	assert.True(t, evaluator.IsEligible(crash, high))

	low := models.NewSession(newTestAssessment(models.SexFemale),
		[]models.Response{likertResponse("SCR_FATIGUE", 3)})
	assert.False(t, evaluator.IsEligible(crash, low))
}

func TestEvaluator_ExcludedSkipGroup(t *testing.T) {
	reg := testRegistry(t)
	evaluator := NewEvaluator(reg)
	followup, _ := reg.FindByID("SCR_HEAD_FREQ")

	a := newTestAssessment(models.SexFemale)
	a.ExcludedSkipGroups = []string{"headache_followups"}
	// Even with the conditional satisfied the group exclusion wins.
	session := models.NewSession(a, []models.Response{yesNoResponse("SCR_HEAD", "yes")})

	assert.False(t, evaluator.IsEligible(followup, session))
}

func TestEvaluator_SkippedQuestionIDs(t *testing.T) {
	reg := testRegistry(t)
	evaluator := NewEvaluator(reg)
	head, _ := reg.FindByID("SCR_HEAD")

	a := newTestAssessment(models.SexFemale)
	a.SkippedQuestionIDs = []string{"SCR_HEAD"}
	session := models.NewSession(a, nil)

	assert.False(t, evaluator.IsEligible(head, session))
}

func TestEvaluator_EligibleQuestions_RequiredOnlyBeforeActivation(t *testing.T) {
	reg := testRegistry(t)
	evaluator := NewEvaluator(reg)

	session := models.NewSession(newTestAssessment(models.SexFemale),
		[]models.Response{yesNoResponse("SCR_HEAD", "yes")})

	locked := evaluator.EligibleQuestions("SCREENING", false, session)
	lockedIDs := questionIDs(locked)
	assert.Equal(t, []string{"SCR_FATIGUE", "SCR_PREG", "SCR_NOTES"}, lockedIDs)

	activated := evaluator.EligibleQuestions("SCREENING", true, session)
	activatedIDs := questionIDs(activated)
	assert.Equal(t, []string{"SCR_FATIGUE", "SCR_PREG", "SCR_NOTES", "SCR_HEAD_FREQ", "SCR_STRESS"}, activatedIDs)
}

func TestEvaluator_EligibleQuestions_ExcludesAnswered(t *testing.T) {
	reg := testRegistry(t)
	evaluator := NewEvaluator(reg)

	session := models.NewSession(newTestAssessment(models.SexMale),
		[]models.Response{
			yesNoResponse("SCR_HEAD", "no"),
			likertResponse("SCR_FATIGUE", 2),
		})

	eligible := evaluator.EligibleQuestions("SCREENING", false, session)
	assert.Equal(t, []string{"SCR_PROSTATE", "SCR_NOTES"}, questionIDs(eligible))
}

func questionIDs(questions []models.Question) []string {
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	return ids
}
