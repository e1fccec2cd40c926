package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

func asChatError(err error) *ChatError {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce
	}
	return Wrap(ErrCodeInternal, err)
}

// FormatForUser returns a short message suitable for a chat reply.
// The cause is included only when debug is true.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	ce := asChatError(err)
	msg := ce.Message
	if debug && ce.Cause != nil && ce.Cause.Error() != ce.Message {
		msg = fmt.Sprintf("%s (%v)", msg, ce.Cause)
	}
	return msg
}

// FormatForCLI formats an error for terminal output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ce := asChatError(err)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", ce.Message)
	if ce.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", ce.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", ce.Code)
	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	ce := asChatError(err)
	je := jsonError{
		Code:       ce.Code,
		Message:    ce.Message,
		Category:   string(ce.Category),
		Severity:   string(ce.Severity),
		Details:    ce.Details,
		Suggestion: ce.Suggestion,
		Retryable:  ce.Retryable,
	}
	if ce.Cause != nil {
		je.Cause = ce.Cause.Error()
	}
	return json.Marshal(je)
}

// LogAttrs returns slog-friendly key/value pairs for err.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	var ce *ChatError
	if !errors.As(err, &ce) {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error", ce.Message,
		"error_code", ce.Code,
		"retryable", ce.Retryable,
	}
	if ce.Cause != nil {
		attrs = append(attrs, "cause", ce.Cause.Error())
	}
	for k, v := range ce.Details {
		attrs = append(attrs, "detail_"+k, v)
	}
	return attrs
}
