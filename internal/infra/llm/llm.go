// Package llm provides generation capabilities backed by hosted language
// models, plus a deterministic static capability for local runs.
//
// This package contains:
//   - Anthropic: Claude Messages API capability
//   - OpenAI: Chat Completions API capability
//   - Static: offline capability deriving a config from the inputs
//   - New: builds the configured capability
package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vietddude/eventsync/internal/core/apperr"
	"github.com/vietddude/eventsync/internal/core/domain"
	"github.com/vietddude/eventsync/internal/generation"
)

// Providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderStatic    = "static"
)

// Config selects and configures the generation provider.
type Config struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	MaxTokens   int64   `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// New builds the capability named by cfg.Provider.
func New(cfg Config) (generation.Capability, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderStatic, "":
		return NewStatic(), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

const systemPrompt = `You plan events. Reply with a single JSON object and nothing else.
Schema:
{
  "title": string,
  "summary": string,
  "speakers": [{"name": string, "email": string, "tags": [string]}],
  "sessions": [{"title": string, "track": string, "tag": string, "starts_at_minute": int, "duration_minutes": int}]
}
Session tags are short lowercase slugs. Only list speakers named in the input.`

// buildPrompt renders the user prompt for inputs.
func buildPrompt(in domain.GenerationInputs) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event basics: %s\n", strings.TrimSpace(in.EventBasics))
	if in.Audience != "" {
		fmt.Fprintf(&b, "Audience: %s\n", in.Audience)
	}
	if in.Goals != "" {
		fmt.Fprintf(&b, "Goals: %s\n", in.Goals)
	}
	if in.Format != "" {
		fmt.Fprintf(&b, "Format: %s\n", in.Format)
	}
	if in.DurationHours > 0 {
		fmt.Fprintf(&b, "Duration: %d hours\n", in.DurationHours)
	}
	for _, a := range in.Attendees {
		if a.Role == domain.RoleSpeaker {
			fmt.Fprintf(&b, "Speaker: %s <%s>\n", a.Name, a.Email)
		}
	}
	return b.String()
}

type generatedSpeaker struct {
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Tags  []string `json:"tags"`
}

type generatedConfig struct {
	Title    string             `json:"title"`
	Summary  string             `json:"summary"`
	Speakers []generatedSpeaker `json:"speakers"`
	Sessions []domain.Session   `json:"sessions"`
}

var errEmptyCompletion = errors.New("empty completion")

// parseConfig decodes a model reply into an EventConfig. Attendees come
// from the inputs, not from the model.
func parseConfig(reply string, in domain.GenerationInputs) (*domain.EventConfig, error) {
	body := stripFences(reply)
	if body == "" {
		return nil, &apperr.GenerationError{Cause: errEmptyCompletion, Context: "parse"}
	}

	var out generatedConfig
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, &apperr.GenerationError{Cause: err, Context: "parse"}
	}
	if strings.TrimSpace(out.Title) == "" {
		return nil, &apperr.GenerationError{Cause: errors.New("missing title"), Context: "parse"}
	}

	cfg := &domain.EventConfig{
		Title:       out.Title,
		Summary:     out.Summary,
		Sessions:    out.Sessions,
		GeneratedAt: time.Now().UTC(),
	}
	for _, s := range out.Speakers {
		cfg.Speakers = append(cfg.Speakers, domain.Participant{SyncTarget: domain.SyncTarget{
			Name:  s.Name,
			Email: s.Email,
			Tags:  s.Tags,
			Role:  domain.RoleSpeaker,
		}})
	}
	for _, a := range in.Attendees {
		if a.Role == domain.RoleSpeaker {
			continue
		}
		cfg.Attendees = append(cfg.Attendees, domain.Participant{SyncTarget: a})
	}
	return cfg, nil
}

// stripFences removes a surrounding markdown code fence and any text
// outside the outermost JSON object.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return strings.TrimSpace(s)
	}
	return s[start : end+1]
}

// classifyStatus maps a provider HTTP status to the error taxonomy.
func classifyStatus(provider string, status int, err error) error {
	switch {
	case status == 429, status >= 500:
		return &apperr.ConnectionError{Endpoint: provider, StatusCode: status, Err: err}
	case status == 408:
		return &apperr.TimeoutError{Err: err}
	default:
		return &apperr.GenerationError{Cause: err, Context: fmt.Sprintf("%s status %d", provider, status)}
	}
}
