// Package mcp exposes chat search to AI clients over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeSearchFailed indicates the index store failed a query.
	ErrCodeSearchFailed = -32001

	// ErrCodeUnavailable indicates the search daemon cannot be reached.
	ErrCodeUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrResourceNotFound indicates the requested resource does not exist.
var ErrResourceNotFound = errors.New("resource not found")

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var ce *cserrors.ChatError
	if errors.As(err, &ce) {
		return mapChatError(ce)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Resource not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

func mapChatError(ce *cserrors.ChatError) *MCPError {
	message := ce.Message
	if ce.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", ce.Message, ce.Suggestion)
	}

	switch ce.Code {
	case cserrors.ErrCodeQueryFailed:
		return &MCPError{Code: ErrCodeSearchFailed, Message: message}
	case cserrors.ErrCodeDaemonUnavailable:
		return &MCPError{Code: ErrCodeUnavailable, Message: message}
	case cserrors.ErrCodeNetworkTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	}

	switch ce.Category {
	case cserrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case cserrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeUnavailable, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
