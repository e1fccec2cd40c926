package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/chatsearch/internal/search"
	"github.com/Aman-CERP/chatsearch/internal/store"
	"github.com/Aman-CERP/chatsearch/internal/telemetry"
	"github.com/Aman-CERP/chatsearch/pkg/version"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50

	queryMetricsURI = "chatsearch://query_metrics"
)

// Searcher runs paged queries. *search.Service and *daemon.Client implement it.
type Searcher interface {
	Search(ctx context.Context, channelID int64, query string, page, pageSize int) (*search.Result, error)
	Indexes(ctx context.Context) ([]store.IndexStats, error)
}

// SearchInput defines the input schema for the search_messages tool.
type SearchInput struct {
	ChatID   int64  `json:"chat_id" jsonschema:"numeric chat id, e.g. -1001234567890"`
	Query    string `json:"query" jsonschema:"full-text query"`
	Page     int    `json:"page,omitempty" jsonschema:"1-based page number, default 1"`
	PageSize int    `json:"page_size,omitempty" jsonschema:"hits per page, default 10, max 50"`
}

// SearchOutput defines the output schema for the search_messages tool.
type SearchOutput struct {
	Query    string          `json:"query" jsonschema:"the query that was run"`
	Page     int             `json:"page" jsonschema:"page number returned"`
	Total    int             `json:"total" jsonschema:"total matches across all pages"`
	HasMore  bool            `json:"has_more" jsonschema:"true when a further page exists"`
	Messages []MessageOutput `json:"messages" jsonschema:"matching messages, newest first"`
}

// MessageOutput is one matching message.
type MessageOutput struct {
	MessageID int64  `json:"message_id" jsonschema:"message id within the chat"`
	Author    string `json:"author" jsonschema:"display name of the sender"`
	Timestamp string `json:"timestamp" jsonschema:"send time, RFC 3339"`
	Text      string `json:"text" jsonschema:"message text"`
	Permalink string `json:"permalink" jsonschema:"t.me link to the message"`
}

// ListChatsInput defines the input schema for the list_chats tool (no parameters).
type ListChatsInput struct{}

// ListChatsOutput defines the output schema for the list_chats tool.
type ListChatsOutput struct {
	Chats []ChatOutput `json:"chats" jsonschema:"indexed chats"`
}

// ChatOutput describes one indexed chat.
type ChatOutput struct {
	Index    string `json:"index" jsonschema:"index name"`
	ChatID   int64  `json:"chat_id" jsonschema:"numeric chat id"`
	Messages int    `json:"messages" jsonschema:"indexed message count"`
}

// Server is the MCP server for chat search.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	metrics  *telemetry.QueryMetrics
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics exposes the query metrics snapshot as a resource.
func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a new MCP server.
func NewServer(searcher Searcher, opts ...Option) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}

	s := &Server{
		searcher: searcher,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "chatsearch",
		Version: version.Version,
	}, nil)

	s.registerTools()
	if s.metrics != nil {
		s.registerQueryMetricsResource()
	}
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_messages",
		Description: "Full-text search over the message history of one chat. Returns the newest matches first with author, time and a t.me permalink. Use list_chats to find chat ids.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_chats",
		Description: "List chats that have a search index, with their message counts.",
	}, s.listChatsHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 2))
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	if input.ChatID == 0 {
		return nil, SearchOutput{}, NewInvalidParamsError("chat_id is required")
	}

	page := max(input.Page, 1)
	size := clampPageSize(input.PageSize)
	requestID := uuid.NewString()
	start := time.Now()

	res, err := s.searcher.Search(ctx, input.ChatID, input.Query, page, size)
	if err != nil {
		s.logger.Error("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.Int64("channel_id", input.ChatID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("mcp_search_completed",
		slog.String("request_id", requestID),
		slog.Int64("channel_id", input.ChatID),
		slog.Int("page", page),
		slog.Int("total", res.Total),
		slog.Duration("duration", time.Since(start)))

	return nil, toSearchOutput(res), nil
}

func (s *Server) listChatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListChatsInput) (
	*mcp.CallToolResult,
	ListChatsOutput,
	error,
) {
	indexes, err := s.searcher.Indexes(ctx)
	if err != nil {
		return nil, ListChatsOutput{}, MapError(err)
	}

	out := ListChatsOutput{Chats: make([]ChatOutput, 0, len(indexes))}
	for _, ix := range indexes {
		id, ok := search.ChannelOf(ix.Name)
		if !ok {
			continue
		}
		out.Chats = append(out.Chats, ChatOutput{Index: ix.Name, ChatID: id, Messages: ix.Documents})
	}
	return nil, out, nil
}

func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "query_metrics",
		URI:         queryMetricsURI,
		Description: "Query and ingest telemetry since start: top terms, zero-result queries, latency buckets",
		MIMEType:    "application/json",
	}, s.queryMetricsHandler)
}

func (s *Server) queryMetricsHandler(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	snap := s.metrics.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode query metrics: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      queryMetricsURI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// Serve runs the server over stdio until ctx is done or the client disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

func toSearchOutput(res *search.Result) SearchOutput {
	out := SearchOutput{
		Query:    res.Query,
		Page:     res.Page,
		Total:    res.Total,
		HasMore:  res.Page*res.PageSize < res.Total,
		Messages: make([]MessageOutput, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		ts := ""
		if !h.Timestamp.IsZero() {
			ts = h.Timestamp.UTC().Format(time.RFC3339)
		}
		out.Messages = append(out.Messages, MessageOutput{
			MessageID: h.MessageID,
			Author:    h.Author,
			Timestamp: ts,
			Text:      h.Text,
			Permalink: h.Permalink,
		})
	}
	return out
}

func clampPageSize(n int) int {
	switch {
	case n <= 0:
		return defaultPageSize
	case n > maxPageSize:
		return maxPageSize
	default:
		return n
	}
}
