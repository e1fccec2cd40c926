package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
	"github.com/Aman-CERP/chatsearch/internal/search"
	"github.com/Aman-CERP/chatsearch/internal/store"
)

// Client talks to a running daemon. It implements the same AddDocument and
// Search methods as the search service, so the gateway can use either.
// Transport failures trip a circuit breaker; service errors do not.
type Client struct {
	socketPath string
	timeout    time.Duration
	breaker    *cserrors.CircuitBreaker
	requestID  atomic.Uint64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *cserrors.CircuitBreaker) ClientOption {
	return func(c *Client) {
		c.breaker = cb
	}
}

// NewClient creates a new daemon client.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	c := &Client{
		socketPath: cfg.SocketPath,
		timeout:    cfg.Timeout,
		breaker:    cserrors.NewCircuitBreaker("daemon", cserrors.WithResetTimeout(10*time.Second)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var out PingResult
	if err := c.call(ctx, MethodPing, nil, &out); err != nil {
		return err
	}
	if !out.Pong {
		return cserrors.New(cserrors.ErrCodeDaemonUnavailable, "daemon did not answer ping", nil)
	}
	return nil
}

// Status retrieves daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var out StatusResult
	if err := c.call(ctx, MethodStatus, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Indexes lists the daemon's indexes with their document counts.
func (c *Client) Indexes(ctx context.Context) ([]store.IndexStats, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}
	return st.Indexes, nil
}

// AddDocument indexes one message through the daemon.
func (c *Client) AddDocument(ctx context.Context, channelID, messageID int64, text, author string, ts time.Time) error {
	if !search.Indexable(text) {
		return nil
	}
	params := AddParams{
		ChannelID: channelID,
		MessageID: messageID,
		Text:      text,
		Author:    author,
		Timestamp: ts.Unix(),
	}
	return c.call(ctx, MethodAdd, params, nil)
}

// Search runs a query through the daemon.
func (c *Client) Search(ctx context.Context, channelID int64, query string, page, pageSize int) (*search.Result, error) {
	if strings.TrimSpace(query) == "" {
		return &search.Result{Query: query, Page: max(page, 1), PageSize: pageSize, Hits: []search.Hit{}}, nil
	}

	params := SearchParams{ChannelID: channelID, Query: query, Page: page, PageSize: pageSize}
	var out search.Result
	if err := c.call(ctx, MethodSearch, params, &out); err != nil {
		return nil, err
	}
	if out.Hits == nil {
		out.Hits = []search.Hit{}
	}
	return &out, nil
}

// call performs one round-trip and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	req := Request{JSONRPC: "2.0", Method: method, ID: c.nextID()}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return cserrors.InternalError("failed to encode params", err)
		}
		req.Params = data
	}

	resp, err := cserrors.CircuitExecute(c.breaker, func() (*Response, error) {
		return c.roundTrip(ctx, req)
	})
	if err != nil {
		if errors.Is(err, cserrors.ErrCircuitOpen) {
			return cserrors.New(cserrors.ErrCodeDaemonUnavailable, "search daemon unavailable", err).
				WithSuggestion("Start it with 'chatsearch daemon start'")
		}
		return err
	}

	if resp.Error != nil {
		return rpcError(method, resp.Error)
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return cserrors.InternalError(fmt.Sprintf("failed to decode %s result", method), err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, req Request) (*Response, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, cserrors.New(cserrors.ErrCodeDaemonUnavailable, "failed to connect to daemon", err).
			WithDetail("socket", c.socketPath).
			WithSuggestion("Start it with 'chatsearch daemon start'")
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, cserrors.NetworkError("failed to set deadline", err)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, cserrors.NetworkError("failed to send request", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, cserrors.New(cserrors.ErrCodeNetworkTimeout, "failed to receive response", err)
	}
	return &resp, nil
}

// rpcError rebuilds the service error carried by a response.
func rpcError(method string, e *Error) error {
	if e.Code == ErrCodeHandlerFailed && e.Data != "" {
		return cserrors.New(e.Data, e.Message, nil)
	}
	if e.Code == ErrCodeInvalidParams {
		return cserrors.ValidationError(fmt.Sprintf("%s: %s", method, e.Message), nil)
	}
	return cserrors.InternalError(fmt.Sprintf("%s failed: %s (code: %d)", method, e.Message, e.Code), nil)
}

// nextID generates a unique request ID.
func (c *Client) nextID() string {
	return fmt.Sprintf("req-%d", c.requestID.Add(1))
}
