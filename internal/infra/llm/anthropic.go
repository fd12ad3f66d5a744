package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vietddude/eventsync/internal/core/apperr"
	"github.com/vietddude/eventsync/internal/core/domain"
)

// Anthropic generates configs with the Claude Messages API.
type Anthropic struct {
	client *anthropic.Client
	cfg    Config
}

// NewAnthropic creates an Anthropic capability. An empty API key falls back
// to the ANTHROPIC_API_KEY environment variable read by the SDK.
func NewAnthropic(cfg Config) *Anthropic {
	if cfg.Model == "" {
		cfg.Model = string(anthropic.ModelClaude3_5Sonnet20241022)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	// Retries are owned by the resilience executor.
	opts = append(opts, option.WithMaxRetries(0))

	client := anthropic.NewClient(opts...)
	return &Anthropic{client: &client, cfg: cfg}
}

func (a *Anthropic) Generate(ctx context.Context, inputs domain.GenerationInputs) (*domain.EventConfig, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: a.cfg.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(inputs))),
		},
	}
	if a.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(a.cfg.Temperature)
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, classifyStatus(ProviderAnthropic, apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if resp.StopReason == anthropic.StopReasonMaxTokens {
		return nil, &apperr.GenerationError{Cause: errEmptyCompletion, Context: "anthropic reply truncated at max_tokens"}
	}
	return parseConfig(text.String(), inputs)
}
