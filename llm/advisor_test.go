package llm

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"intake/config"
	"intake/models"
	"intake/services"
)

func TestNew_MissingAPIKey(t *testing.T) {
	os.Unsetenv("INTAKE_TEST_MISSING_KEY")

	_, err := New(config.AIConfig{APIKeyEnv: "INTAKE_TEST_MISSING_KEY"}, nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "INTAKE_TEST_MISSING_KEY")
}

func TestBuildUserPrompt(t *testing.T) {
	req := services.AdvisorRequest{
		Eligible: []models.Question{
			{ID: "SCR_HEAD", Text: "Do you get frequent headaches?"},
			{ID: "SCR_FATIGUE", Text: "Rate your fatigue"},
		},
		RecentAnswers: []services.AnswerSummary{
			{QuestionID: "SCR_SLEEP", Question: "Do you sleep well?", Value: "no"},
		},
		Module: services.ModuleSummary{
			Module:        "SCREENING",
			Asked:         4,
			NegativeRatio: 0.25,
			Severity:      42.5,
		},
		AIContext: json.RawMessage(`{"focus":"neurological"}`),
	}

	prompt := buildUserPrompt(req)

	assert.Contains(t, prompt, "MODULE: SCREENING")
	assert.Contains(t, prompt, "SCR_HEAD: Do you get frequent headaches?")
	assert.Contains(t, prompt, "SCR_FATIGUE")
	assert.Contains(t, prompt, "Do you sleep well? (SCR_SLEEP): no")
	assert.Contains(t, prompt, `{"focus":"neurological"}`)
	assert.Contains(t, prompt, "negative ratio: 0.25")
}

func TestBuildUserPrompt_OmitsEmptySections(t *testing.T) {
	req := services.AdvisorRequest{
		Eligible: []models.Question{{ID: "Q1", Text: "First question"}},
		Module:   services.ModuleSummary{Module: "ENERGY"},
	}

	prompt := buildUserPrompt(req)

	assert.NotContains(t, prompt, "RECENT ANSWERS")
	assert.NotContains(t, prompt, "PREVIOUS NOTES")
}
