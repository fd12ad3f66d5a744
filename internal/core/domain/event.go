package domain

import "time"

// GenerationInputs are the natural-language inputs collected by the front end.
type GenerationInputs struct {
	EventBasics   string       `json:"event_basics"             yaml:"event_basics"`
	Audience      string       `json:"audience,omitempty"       yaml:"audience"`
	Goals         string       `json:"goals,omitempty"          yaml:"goals"`
	Format        string       `json:"format,omitempty"         yaml:"format"`
	DurationHours int          `json:"duration_hours,omitempty" yaml:"duration_hours"`
	Attendees     []SyncTarget `json:"attendees,omitempty"      yaml:"attendees"`
}

// EventConfig is the structured configuration produced by generation.
type EventConfig struct {
	ID          string        `json:"id,omitempty"`
	Title       string        `json:"title"`
	Summary     string        `json:"summary"`
	Attendees   []Participant `json:"attendees"`
	Speakers    []Participant `json:"speakers"`
	Sessions    []Session     `json:"sessions"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Participant is an attendee or speaker entry of a generated config.
// IdentityID and Handle are filled in by protocol sync.
type Participant struct {
	SyncTarget
	IdentityID string `json:"identity_id,omitempty"`
	Handle     string `json:"handle,omitempty"`
	IsFallback bool   `json:"is_fallback,omitempty"`
}

// Session is one scheduled slot of a generated config.
type Session struct {
	Title           string `json:"title"`
	Track           string `json:"track,omitempty"`
	Tag             string `json:"tag,omitempty"`
	StartsAtMinute  int    `json:"starts_at_minute"`
	DurationMinutes int    `json:"duration_minutes"`
}

// TagLabel returns the context tag label for the session.
func (s Session) TagLabel() string {
	if s.Tag != "" {
		return s.Tag
	}
	return s.Title
}
