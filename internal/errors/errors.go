package errors

import (
	"errors"
	"fmt"
)

// ChatError is the structured error type for chatsearch.
// It carries enough context for logging, user-facing replies and retry decisions.
type ChatError struct {
	// Code is the unique error code (e.g., "ERR_503_QUERY_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is derived from the code.
	Category Category

	// Severity is derived from the code.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ChatError) Unwrap() error {
	return e.Cause
}

// Is matches another ChatError by code, so errors.Is works across wrapping.
func (e *ChatError) Is(target error) bool {
	if t, ok := target.(*ChatError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *ChatError) WithDetail(key, value string) *ChatError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *ChatError) WithSuggestion(suggestion string) *ChatError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ChatError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ChatError {
	return &ChatError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ChatError from an existing error.
// The error's message becomes the ChatError message.
func Wrap(code string, err error) *ChatError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *ChatError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StoreError creates an index store error.
func StoreError(message string, cause error) *ChatError {
	return New(ErrCodeStoreOpen, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are retryable.
func NetworkError(message string, cause error) *ChatError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *ChatError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ChatError {
	return New(ErrCodeInternal, message, cause)
}

// IngestError reports a rejected document write other than a duplicate.
func IngestError(docID string, cause error) *ChatError {
	return New(ErrCodeIngestFailed, "failed to add document", cause).
		WithDetail("doc_id", docID)
}

// QueryError reports a rejected read from the index store.
func QueryError(index string, cause error) *ChatError {
	msg := "query failed"
	if cause != nil {
		msg = cause.Error()
	}
	return New(ErrCodeQueryFailed, msg, cause).
		WithDetail("index", index)
}

// ChannelNotEnabledError is a policy denial for searches in a disabled channel.
func ChannelNotEnabledError(channelID int64) *ChatError {
	return New(ErrCodeChannelNotEnabled, "search is not enabled in this chat", nil).
		WithDetail("channel_id", fmt.Sprintf("%d", channelID)).
		WithSuggestion("ask the bot owner to run /enable in this chat")
}

// MalformedControlToken reports a control token that failed to decode.
func MalformedControlToken(token string, cause error) *ChatError {
	return New(ErrCodeMalformedToken, "malformed control token", cause).
		WithDetail("token", token)
}

// IsRetryable checks if an error is retryable.
// Returns true if a ChatError in the chain has the Retryable flag set.
func IsRetryable(err error) bool {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Severity == SeverityFatal
	}
	return false
}

// HasCode reports whether any ChatError in the chain carries code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from the first ChatError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category from the first ChatError in the chain.
func GetCategory(err error) Category {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}
