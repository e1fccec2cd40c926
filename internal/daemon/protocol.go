package daemon

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Aman-CERP/chatsearch/internal/search"
	"github.com/Aman-CERP/chatsearch/internal/store"
)

// JSON-RPC 2.0 method names.
const (
	MethodAdd    = "add"
	MethodSearch = "search"
	MethodStatus = "status"
	MethodPing   = "ping"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrCodeHandlerFailed is returned when the search service rejects a call.
// Error.Data carries the service error code.
const ErrCodeHandlerFailed = -32002

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrCodeInternalError, "failed to encode result")
	}
	return Response{JSONRPC: "2.0", Result: data, ID: id}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}
}

// AddParams are the parameters for the add method.
type AddParams struct {
	ChannelID int64  `json:"channel_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Author    string `json:"author"`
	// Timestamp is unix seconds.
	Timestamp int64 `json:"timestamp"`
}

// Validate checks that required fields are present.
func (p *AddParams) Validate() error {
	if p.ChannelID == 0 {
		return fmt.Errorf("channel_id is required")
	}
	if p.MessageID == 0 {
		return fmt.Errorf("message_id is required")
	}
	return nil
}

// Time returns the message timestamp.
func (p *AddParams) Time() time.Time {
	return time.Unix(p.Timestamp, 0)
}

// SearchParams are the parameters for the search method.
type SearchParams struct {
	ChannelID int64  `json:"channel_id"`
	Query     string `json:"query"`
	Page      int    `json:"page,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
}

// Validate checks that required fields are present and corrects the page.
// An empty query is valid and yields an empty result.
func (p *SearchParams) Validate() error {
	if p.ChannelID == 0 {
		return fmt.Errorf("channel_id is required")
	}
	if p.Page < 1 {
		p.Page = 1
	}
	return nil
}

// StatusResult contains daemon status information.
type StatusResult struct {
	Running bool               `json:"running"`
	PID     int                `json:"pid"`
	Uptime  string             `json:"uptime"`
	Backend string             `json:"backend,omitempty"`
	Stats   search.Stats       `json:"stats"`
	Indexes []store.IndexStats `json:"indexes"`
}

// Documents sums the document counts of every index.
func (s *StatusResult) Documents() int {
	total := 0
	for _, ix := range s.Indexes {
		total += ix.Documents
	}
	return total
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}
