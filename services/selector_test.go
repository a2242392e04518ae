package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"intake/config"
	"intake/models"
	"intake/registry"
)

// MockAdvisor is a mock type for the QuestionAdvisor interface.
type MockAdvisor struct {
	mock.Mock
}

func (m *MockAdvisor) SuggestNext(ctx context.Context, req AdvisorRequest) (*AdvisorDecision, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AdvisorDecision), args.Error(1)
}

func newTestSelector(t *testing.T, reg *registry.Registry, advisor QuestionAdvisor) *Selector {
	t.Helper()
	evaluator := NewEvaluator(reg)
	activation := NewActivationEngine(reg, zap.NewNop())
	return NewSelector(reg, evaluator, activation, advisor,
		config.AssessmentConfig{MinQuestions: 1, MaxQuestions: 50},
		config.AIConfig{CheckpointInterval: 10},
		zap.NewNop())
}

func TestSelector_DeterministicFirstEligible(t *testing.T) {
	reg := testRegistry(t)
	selector := newTestSelector(t, reg, nil)

	session := models.NewSession(newTestAssessment(models.SexFemale), nil)
	question, complete := selector.SelectNext(session)

	assert.False(t, complete)
	assert.NotNil(t, question)
	assert.Equal(t, "SCR_HEAD", question.ID)
}

func TestSelector_GlobalCapCompletes(t *testing.T) {
	reg := testRegistry(t)
	selector := newTestSelector(t, reg, nil)

	a := newTestAssessment(models.SexFemale)
	a.QuestionsAsked = 50
	question, complete := selector.SelectNext(models.NewSession(a, nil))

	assert.True(t, complete)
	assert.Nil(t, question)
}

func TestSelector_ExhaustedModulesComplete(t *testing.T) {
	reg := testRegistry(t)
	selector := newTestSelector(t, reg, nil)

	a := newTestAssessment(models.SexUnspecified)
	// Answer every question an unspecified-sex client can be asked without
	// activating any module.
	responses := []models.Response{
		yesNoResponse("SCR_HEAD", "no"),
		likertResponse("SCR_FATIGUE", 1),
		{QuestionID: "SCR_NOTES", QuestionType: models.QuestionTypeFreeText, FreeText: "n/a"},
		yesNoResponse("NRG_RESTED", "yes"),
	}
	a.QuestionsAsked = len(responses)

	question, complete := selector.SelectNext(models.NewSession(a, responses))

	assert.True(t, complete)
	assert.Nil(t, question)
	assert.True(t, a.Tally("SCREENING").Closed)
	assert.True(t, a.Tally("ENERGY").Closed)
}

func TestSelector_EarlyCloseCountsSavedQuestions(t *testing.T) {
	reg := testRegistry(t)
	selector := newTestSelector(t, reg, nil)

	a := newTestAssessment(models.SexFemale)
	responses := []models.Response{
		yesNoResponse("SCR_HEAD", "no"),
		likertResponse("SCR_FATIGUE", 0),
		yesNoResponse("SCR_PREG", "no"),
	}
	a.QuestionsAsked = len(responses)
	tally := a.Tally("SCREENING")
	tally.Answered = 3
	tally.Negative = 3
	tally.ScoreSum = 0
	tally.WeightSum = 3

	question, complete := selector.SelectNext(models.NewSession(a, responses))

	// SCREENING closes early (all negative), leaving SCR_NOTES unasked;
	// selection moves on to the first ENERGY question.
	assert.False(t, complete)
	assert.Equal(t, "NRG_RESTED", question.ID)
	assert.Equal(t, "ENERGY", a.CurrentModule)
	assert.True(t, a.Tally("SCREENING").Closed)
	assert.Equal(t, 1, a.QuestionsSaved)
}

// With a global minimum above what the bank can supply, low-signal answers
// must not close modules early: every eligible question gets asked, and the
// session only finishes once nothing remains askable.
func TestSelector_GlobalMinimumDefersEarlyClose(t *testing.T) {
	reg := testRegistry(t)
	evaluator := NewEvaluator(reg)
	activation := NewActivationEngine(reg, zap.NewNop())
	selector := NewSelector(reg, evaluator, activation, nil,
		config.AssessmentConfig{MinQuestions: 10, MaxQuestions: 50},
		config.AIConfig{CheckpointInterval: 10},
		zap.NewNop())

	a := newTestAssessment(models.SexFemale)
	var responses []models.Response

	for step := 0; step < 20; step++ {
		session := models.NewSession(a, responses)
		question, complete := selector.SelectNext(session)
		if complete {
			// All-negative answers would have closed SCREENING after its
			// per-module minimum; the floor keeps the remaining questions
			// in play, so nothing is skipped as saved.
			assert.Equal(t, 5, a.QuestionsAsked)
			assert.Equal(t, 0, a.QuestionsSaved)
			return
		}

		resp := answerNegatively(question)
		responses = append(responses, resp)
		session = models.NewSession(a, responses)
		activation.RecordAnswer(session, question, &resp)
		a.QuestionsAsked++
	}
	t.Fatal("assessment did not terminate within the step bound")
}

func TestSelector_AdvisorOverridesSelection(t *testing.T) {
	reg := testRegistry(t)
	advisor := new(MockAdvisor)
	selector := newTestSelector(t, reg, advisor)

	// QuestionsAsked == 0 makes the first selection a checkpoint.
	session := models.NewSession(newTestAssessment(models.SexFemale), nil)
	advisor.On("SuggestNext", mock.Anything, mock.AnythingOfType("AdvisorRequest")).
		Return(&AdvisorDecision{SelectedQuestionID: "SCR_FATIGUE", Reasoning: "fatigue first"}, nil).Once()

	question, complete := selector.SelectNext(session)

	assert.False(t, complete)
	assert.Equal(t, "SCR_FATIGUE", question.ID)
	advisor.AssertExpectations(t)
}

func TestSelector_AdvisorFailureFallsBack(t *testing.T) {
	reg := testRegistry(t)
	advisor := new(MockAdvisor)
	selector := newTestSelector(t, reg, advisor)

	session := models.NewSession(newTestAssessment(models.SexFemale), nil)
	advisor.On("SuggestNext", mock.Anything, mock.AnythingOfType("AdvisorRequest")).
		Return(nil, errors.New("upstream timeout")).Once()

	question, complete := selector.SelectNext(session)

	assert.False(t, complete)
	assert.Equal(t, "SCR_HEAD", question.ID)
	advisor.AssertExpectations(t)
}

func TestSelector_NonEligibleSuggestionDiscarded(t *testing.T) {
	reg := testRegistry(t)
	advisor := new(MockAdvisor)
	selector := newTestSelector(t, reg, advisor)

	session := models.NewSession(newTestAssessment(models.SexFemale), nil)
	// NRG_RESTED exists but is not in the current eligible set.
	advisor.On("SuggestNext", mock.Anything, mock.AnythingOfType("AdvisorRequest")).
		Return(&AdvisorDecision{SelectedQuestionID: "NRG_RESTED"}, nil).Once()

	question, complete := selector.SelectNext(session)

	assert.False(t, complete)
	assert.Equal(t, "SCR_HEAD", question.ID)
}

func TestSelector_AdvisorSkipsAreRecorded(t *testing.T) {
	reg := testRegistry(t)
	advisor := new(MockAdvisor)
	selector := newTestSelector(t, reg, advisor)

	a := newTestAssessment(models.SexFemale)
	session := models.NewSession(a, nil)
	advisor.On("SuggestNext", mock.Anything, mock.AnythingOfType("AdvisorRequest")).
		Return(&AdvisorDecision{
			SelectedQuestionID: "SCR_FATIGUE",
			SkipQuestionIDs:    []string{"SCR_PREG", "UNKNOWN_ID"},
			UpdatedContext:     json.RawMessage(`{"note":"low concern"}`),
		}, nil).Once()

	question, _ := selector.SelectNext(session)

	assert.Equal(t, "SCR_FATIGUE", question.ID)
	assert.Contains(t, a.SkippedQuestionIDs, "SCR_PREG")
	assert.NotContains(t, a.SkippedQuestionIDs, "UNKNOWN_ID")
	assert.Equal(t, 1, a.QuestionsSaved)
	assert.JSONEq(t, `{"note":"low concern"}`, string(a.AIContext))
}

// An advisor that skips every eligible question must not leave the asked
// question in the skip set or count it as saved.
func TestSelector_FallbackSurvivesBlanketSkip(t *testing.T) {
	reg := testRegistry(t)
	advisor := new(MockAdvisor)
	selector := newTestSelector(t, reg, advisor)

	a := newTestAssessment(models.SexFemale)
	session := models.NewSession(a, nil)
	advisor.On("SuggestNext", mock.Anything, mock.AnythingOfType("AdvisorRequest")).
		Return(&AdvisorDecision{
			SkipQuestionIDs: []string{"SCR_HEAD", "SCR_FATIGUE", "SCR_PREG", "SCR_NOTES"},
		}, nil).Once()

	question, complete := selector.SelectNext(session)

	assert.False(t, complete)
	assert.Equal(t, "SCR_HEAD", question.ID)
	assert.NotContains(t, a.SkippedQuestionIDs, "SCR_HEAD")
	assert.ElementsMatch(t, []string{"SCR_FATIGUE", "SCR_PREG", "SCR_NOTES"}, a.SkippedQuestionIDs)
	assert.Equal(t, 3, a.QuestionsSaved)
}

func TestSelector_NoCheckpointBetweenIntervals(t *testing.T) {
	reg := testRegistry(t)
	advisor := new(MockAdvisor)
	selector := newTestSelector(t, reg, advisor)

	a := newTestAssessment(models.SexFemale)
	a.QuestionsAsked = 3 // not 0, not a multiple of the interval
	responses := []models.Response{yesNoResponse("SCR_HEAD", "yes")}
	a.Tally("SCREENING").Answered = 1

	question, complete := selector.SelectNext(models.NewSession(a, responses))

	assert.False(t, complete)
	assert.NotNil(t, question)
	advisor.AssertNotCalled(t, "SuggestNext", mock.Anything, mock.Anything)
}

func TestSelector_PendingCheckpointTriggersAdvisorAndClears(t *testing.T) {
	reg := testRegistry(t)
	advisor := new(MockAdvisor)
	selector := newTestSelector(t, reg, advisor)

	a := newTestAssessment(models.SexFemale)
	a.QuestionsAsked = 3
	a.CheckpointPending = true
	responses := []models.Response{yesNoResponse("SCR_HEAD", "yes")}
	advisor.On("SuggestNext", mock.Anything, mock.AnythingOfType("AdvisorRequest")).
		Return(&AdvisorDecision{}, nil).Once()

	_, complete := selector.SelectNext(models.NewSession(a, responses))

	assert.False(t, complete)
	assert.False(t, a.CheckpointPending)
	advisor.AssertExpectations(t)
}

// The assessment must reach completion in bounded steps even when every
// advisor call fails.
func TestSelector_BoundedTerminationWithFailingAdvisor(t *testing.T) {
	reg := testRegistry(t)
	advisor := new(MockAdvisor)
	selector := newTestSelector(t, reg, advisor)
	activation := NewActivationEngine(reg, zap.NewNop())

	advisor.On("SuggestNext", mock.Anything, mock.AnythingOfType("AdvisorRequest")).
		Return(nil, errors.New("permanently down"))

	a := newTestAssessment(models.SexFemale)
	var responses []models.Response

	for step := 0; step < 60; step++ {
		session := models.NewSession(a, responses)
		question, complete := selector.SelectNext(session)
		if complete {
			assert.LessOrEqual(t, a.QuestionsAsked, 50)
			return
		}

		resp := answerPositively(question)
		responses = append(responses, resp)
		session = models.NewSession(a, responses)
		activation.RecordAnswer(session, question, &resp)
		a.QuestionsAsked++
	}
	t.Fatal("assessment did not terminate within the step bound")
}

func answerNegatively(q *models.Question) models.Response {
	resp := models.Response{QuestionID: q.ID, QuestionType: q.Type}
	switch q.Type {
	case models.QuestionTypeYesNo:
		resp.Value = "no"
	case models.QuestionTypeLikertScale:
		v := float64(q.Scale.Min)
		resp.Numeric = &v
		resp.Value = fmt.Sprintf("%d", q.Scale.Min)
	case models.QuestionTypeMultipleChoice:
		resp.Value = q.Options[0].Value
	case models.QuestionTypeFreeText:
		resp.FreeText = "n/a"
	}
	return resp
}

func answerPositively(q *models.Question) models.Response {
	resp := models.Response{QuestionID: q.ID, QuestionType: q.Type}
	switch q.Type {
	case models.QuestionTypeYesNo:
		resp.Value = "yes"
	case models.QuestionTypeLikertScale:
		v := float64(q.Scale.Max)
		resp.Numeric = &v
		resp.Value = fmt.Sprintf("%d", q.Scale.Max)
	case models.QuestionTypeMultipleChoice:
		resp.Value = q.Options[len(q.Options)-1].Value
	case models.QuestionTypeFreeText:
		resp.FreeText = "details"
	}
	return resp
}
