// Package errors provides structured error handling for chatsearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (index files, database)
//   - 3XX: Network errors (chat transport, daemon socket)
//   - 4XX: Validation and policy errors
//   - 5XX: Internal errors (ingest, query)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates index store errors.
	CategoryStorage Category = "STORAGE"
	// CategoryNetwork indicates transport or socket errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates bad input or a policy denial.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeMissingToken   = "ERR_103_MISSING_BOT_TOKEN"

	// Storage errors (200-299)
	ErrCodeStoreOpen    = "ERR_201_STORE_OPEN"
	ErrCodeCorruptIndex = "ERR_202_CORRUPT_INDEX"
	ErrCodeLockHeld     = "ERR_203_LOCK_HELD"
	ErrCodeExportRead   = "ERR_204_EXPORT_READ"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeDaemonUnavailable  = "ERR_303_DAEMON_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidQuery      = "ERR_403_INVALID_QUERY"
	ErrCodeUnknownCommand    = "ERR_406_UNKNOWN_COMMAND"
	ErrCodeChannelNotEnabled = "ERR_407_CHANNEL_NOT_ENABLED"
	ErrCodeMalformedToken    = "ERR_408_MALFORMED_TOKEN"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeQueryFailed  = "ERR_503_QUERY_FAILED"
	ErrCodeIngestFailed = "ERR_505_INGEST_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "ERR_407_CHANNEL_NOT_ENABLED" -> '4'
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeLockHeld, ErrCodeMissingToken:
		return SeverityFatal
	case ErrCodeChannelNotEnabled:
		// A policy denial, not a fault.
		return SeverityInfo
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeDaemonUnavailable:
		return true
	default:
		return false
	}
}
