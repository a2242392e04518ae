package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"intake/config"
	"intake/services"
)

// Advisor implements services.QuestionAdvisor against any OpenAI-compatible
// chat completion endpoint.
type Advisor struct {
	api     *openai.Client
	model   string
	timeout timeoutFn
	log     *zap.Logger
}

type timeoutFn func(ctx context.Context) (context.Context, context.CancelFunc)

// New creates an Advisor from config. It returns an error when the API key
// named by the config is absent, so the caller can fall back to running
// without AI assistance.
func New(cfg config.AIConfig, log *zap.Logger) (*Advisor, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s is not set", cfg.APIKeyEnv)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	return &Advisor{
		api:   openai.NewClientWithConfig(clientCfg),
		model: cfg.Model,
		timeout: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return context.WithTimeout(ctx, timeout)
		},
		log: log,
	}, nil
}

// SuggestNext asks the model to pick the next question from the eligible
// set and to mark candidates made redundant by recent answers.
func (a *Advisor) SuggestNext(ctx context.Context, req services.AdvisorRequest) (*services.AdvisorDecision, error) {
	if len(req.Eligible) == 0 {
		return nil, errors.New("no eligible questions to choose from")
	}

	ctx, cancel := a.timeout(ctx)
	defer cancel()

	resp, err := a.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(req)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("advisor API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("advisor returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	a.log.Debug("Advisor raw response", zap.String("content", raw))

	var decision services.AdvisorDecision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return nil, fmt.Errorf("parse advisor response: %w (raw: %s)", err, raw)
	}
	return &decision, nil
}

const systemPrompt = `You are a clinical intake assistant guiding an adaptive health questionnaire.
You are given the questions still eligible in the current module, the client's recent answers, and a summary of the module so far.
Pick the single most informative next question. Mark as skippable only questions that the recent answers have clearly made redundant.
Respond ONLY with a JSON object with these fields:
{"selected_question_id": "<id from the eligible list>", "skip_question_ids": ["<id>", ...], "updated_context": {<your working notes as JSON>}, "reasoning": "<one sentence>"}`

func buildUserPrompt(req services.AdvisorRequest) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "MODULE: %s (questions asked: %d, negative ratio: %.2f, severity: %.1f)\n\n",
		req.Module.Module, req.Module.Asked, req.Module.NegativeRatio, req.Module.Severity)

	sb.WriteString("ELIGIBLE QUESTIONS:\n")
	for _, q := range req.Eligible {
		fmt.Fprintf(&sb, "- %s: %s\n", q.ID, q.Text)
	}

	if len(req.RecentAnswers) > 0 {
		sb.WriteString("\nRECENT ANSWERS:\n")
		for _, ans := range req.RecentAnswers {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", ans.Question, ans.QuestionID, ans.Value)
		}
	}

	if len(req.AIContext) > 0 {
		sb.WriteString("\nYOUR PREVIOUS NOTES:\n")
		sb.Write(req.AIContext)
		sb.WriteString("\n")
	}

	return sb.String()
}
