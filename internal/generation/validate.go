package generation

import (
	"net/mail"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/vietddude/eventsync/internal/core/apperr"
)

// Input limits.
const (
	MinEventBasicsLength = 20
	MaxEventBasicsLength = 4000
	MaxFieldLength       = 1000
	MaxDurationHours     = 24 * 14
	MaxAttendees         = 500
)

// Validate checks req without performing any I/O.
func Validate(req Request) error {
	if strings.TrimSpace(req.CallerID) == "" {
		return &apperr.ValidationError{Field: "caller_id"}
	}

	in := req.Inputs
	basics := strings.TrimSpace(in.EventBasics)
	switch n := utf8.RuneCountInString(basics); {
	case n < MinEventBasicsLength, n > MaxEventBasicsLength:
		return &apperr.ValidationError{Field: "event_basics", Value: apperr.Truncate(basics, 40)}
	}

	for _, f := range []struct{ name, value string }{
		{"audience", in.Audience},
		{"goals", in.Goals},
		{"format", in.Format},
	} {
		if utf8.RuneCountInString(f.value) > MaxFieldLength {
			return &apperr.ValidationError{Field: f.name, Value: apperr.Truncate(f.value, 40)}
		}
	}

	if in.DurationHours < 0 || in.DurationHours > MaxDurationHours {
		return &apperr.ValidationError{Field: "duration_hours", Value: strconv.Itoa(in.DurationHours)}
	}

	if len(in.Attendees) > MaxAttendees {
		return &apperr.ValidationError{Field: "attendees", Value: strconv.Itoa(len(in.Attendees))}
	}
	for _, a := range in.Attendees {
		if a.Email == "" {
			continue
		}
		if _, err := mail.ParseAddress(a.Email); err != nil {
			return &apperr.ValidationError{Field: "attendee email", Value: a.Email}
		}
	}
	return nil
}
