package apperr

import (
	"fmt"
	"unicode/utf8"
)

// UserMessage returns a stable message safe to show to end users.
// It never includes causes, endpoints or identifiers.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	e, _ := As(Classify(err))
	switch v := e.(type) {
	case *ValidationError:
		if v.Field != "" {
			return fmt.Sprintf("The %s you provided is not valid. Please check it and try again.", v.Field)
		}
		return "Some of the information you provided is not valid. Please check it and try again."
	case *TimeoutError:
		return "The request took too long to complete. Please try again in a moment."
	case *ConnectionError:
		return "We could not reach a required service. Please try again shortly."
	case *RateLimitError:
		return "You have reached the request limit. Please wait before trying again."
	case *GenerationError:
		return "We could not generate your event configuration. Please try again."
	}
	return "Something went wrong. Please try again."
}

// Truncate shortens s to at most n runes, marking the cut.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

// LogAttrs returns the attributes attached to every failure log line.
func LogAttrs(op, input string, attempt int) []any {
	return []any{"op", op, "input", Truncate(input, 120), "attempt", attempt}
}
