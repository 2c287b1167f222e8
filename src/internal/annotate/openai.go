// FILE: thermwatch/src/internal/annotate/openai.go
package annotate

import (
	"context"
	"fmt"
	"strings"

	"thermwatch/src/internal/config"

	"github.com/lixenwraith/log"
	"github.com/sashabaranov/go-openai"
)

const promptTemplate = "Sensor Data: Temperature is %.1f°C. Vibration is %.1fHz. " +
	"The threshold is %.0f°C. Since this value is high, provide a short, technical " +
	"2-sentence repair instruction for a factory operator. " +
	"Start with 'ACTION REQUIRED:'."

// OpenAIAnnotator asks an OpenAI-compatible chat completions endpoint for a
// repair instruction
type OpenAIAnnotator struct {
	client    *openai.Client
	model     string
	maxTokens int
	threshold float64
	logger    *log.Logger
}

// NewOpenAIAnnotator creates a client for cfg.BaseURL
func NewOpenAIAnnotator(cfg config.AnnotateConfig, threshold float64, logger *log.Logger) *OpenAIAnnotator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	logger.Info("msg", "Annotation provider configured",
		"component", "annotate",
		"base_url", clientCfg.BaseURL,
		"model", cfg.Model)

	return &OpenAIAnnotator{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: int(cfg.MaxTokens),
		threshold: threshold,
		logger:    logger,
	}
}

// Prompt builds the instruction sent for one reading
func (a *OpenAIAnnotator) Prompt(temperature, vibration float64) string {
	return fmt.Sprintf(promptTemplate, temperature, vibration, a.threshold)
}

func (a *OpenAIAnnotator) Annotate(ctx context.Context, temperature, vibration float64) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: a.Prompt(temperature, vibration)},
		},
		MaxTokens: a.maxTokens,
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}

	a.logger.Debug("msg", "Annotation received",
		"component", "annotate",
		"finish_reason", resp.Choices[0].FinishReason,
		"total_tokens", resp.Usage.TotalTokens)

	return resp.Choices[0].Message.Content, nil
}

func (a *OpenAIAnnotator) Name() string { return "openai:" + a.model }
