package llm

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/vietddude/eventsync/internal/core/domain"
)

// Static derives a config from the inputs without calling any model.
// Output depends only on the inputs, which makes it usable offline and in tests.
type Static struct {
	now func() time.Time
}

// NewStatic creates a static capability.
func NewStatic() *Static {
	return &Static{now: time.Now}
}

func (s *Static) Generate(ctx context.Context, in domain.GenerationInputs) (*domain.EventConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	basics := strings.TrimSpace(in.EventBasics)
	cfg := &domain.EventConfig{
		Title:       titleFrom(basics),
		Summary:     basics,
		GeneratedAt: s.now().UTC(),
	}
	for _, a := range in.Attendees {
		p := domain.Participant{SyncTarget: a}
		if a.Role == domain.RoleSpeaker {
			cfg.Speakers = append(cfg.Speakers, p)
		} else {
			cfg.Attendees = append(cfg.Attendees, p)
		}
	}

	hours := in.DurationHours
	if hours <= 0 {
		hours = 2
	}
	cfg.Sessions = append(cfg.Sessions, domain.Session{Title: "Welcome", Tag: "welcome", DurationMinutes: 15})
	minute := 15
	for _, sp := range cfg.Speakers {
		if minute+45 > hours*60 {
			break
		}
		cfg.Sessions = append(cfg.Sessions, domain.Session{
			Title:           "Talk by " + sp.Name,
			Track:           "main",
			Tag:             slug("talk " + sp.Name),
			StartsAtMinute:  minute,
			DurationMinutes: 45,
		})
		minute += 45
	}
	cfg.Sessions = append(cfg.Sessions, domain.Session{
		Title:           "Networking",
		Tag:             "networking",
		StartsAtMinute:  minute,
		DurationMinutes: 30,
	})
	return cfg, nil
}

// titleFrom uses the first sentence of basics, capped at eight words.
func titleFrom(basics string) string {
	if i := strings.IndexAny(basics, ".!?\n"); i > 0 {
		basics = basics[:i]
	}
	words := strings.Fields(basics)
	if len(words) > 8 {
		words = words[:8]
	}
	return strings.Join(words, " ")
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
