package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
	"github.com/Aman-CERP/chatsearch/internal/search"
	"github.com/Aman-CERP/chatsearch/internal/store"
)

// Handler is the search service exposed by the daemon. *search.Service
// implements it.
type Handler interface {
	AddDocument(ctx context.Context, channelID, messageID int64, text, author string, ts time.Time) error
	Search(ctx context.Context, channelID int64, query string, page, pageSize int) (*search.Result, error)
	Stats() search.Stats
	Indexes(ctx context.Context) ([]store.IndexStats, error)
}

var _ Handler = (*search.Service)(nil)

// Server listens on a Unix socket and handles RPC requests. A connection
// may carry any number of newline-delimited requests.
type Server struct {
	cfg     Config
	handler Handler
	backend string
	started time.Time

	mu       sync.Mutex
	listener net.Listener
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for handler.
func NewServer(cfg Config, handler Handler, backend string) (*Server, error) {
	if handler == nil {
		return nil, errors.New("daemon: nil handler")
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	return &Server{cfg: cfg, handler: handler, backend: backend}, nil
}

// ListenAndServe serves until ctx is cancelled. A stale socket file is
// replaced.
func (s *Server) ListenAndServe(ctx context.Context) error {
	_ = os.Remove(s.cfg.SocketPath)

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.SocketPath, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.cfg.SocketPath)
	}()

	slog.Info("daemon_listening", slog.String("socket", s.cfg.SocketPath))

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isShutdown() {
				break
			}
			slog.Error("daemon_accept_failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		if err := conn.SetDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
			return
		}

		var req Request
		if err := decoder.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) && !s.isShutdown() {
				var netErr net.Error
				if !errors.As(err, &netErr) || !netErr.Timeout() {
					_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
				}
			}
			return
		}

		if err := encoder.Encode(s.handleRequest(ctx, req)); err != nil {
			slog.Debug("daemon_write_failed", slog.String("error", err.Error()))
			return
		}
	}
}

// handleRequest dispatches a request to the appropriate handler.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	if req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "jsonrpc must be 2.0")
	}

	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})
	case MethodStatus:
		return NewSuccessResponse(req.ID, s.status(ctx))
	case MethodAdd:
		return s.handleAdd(ctx, req)
	case MethodSearch:
		return s.handleSearch(ctx, req)
	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleAdd(ctx context.Context, req Request) Response {
	var params AddParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params")
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	err := s.handler.AddDocument(ctx, params.ChannelID, params.MessageID, params.Text, params.Author, params.Time())
	if err != nil {
		return handlerError(req.ID, err)
	}
	return NewSuccessResponse(req.ID, struct{}{})
}

func (s *Server) handleSearch(ctx context.Context, req Request) Response {
	var params SearchParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params")
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	res, err := s.handler.Search(ctx, params.ChannelID, params.Query, params.Page, params.PageSize)
	if err != nil {
		return handlerError(req.ID, err)
	}
	return NewSuccessResponse(req.ID, res)
}

// handlerError keeps the service error code so clients can rebuild it.
func handlerError(id string, err error) Response {
	resp := NewErrorResponse(id, ErrCodeHandlerFailed, cserrors.FormatForUser(err, false))
	resp.Error.Data = cserrors.GetCode(err)
	slog.Warn("daemon_request_failed", cserrors.LogAttrs(err)...)
	return resp
}

func (s *Server) status(ctx context.Context) StatusResult {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	status := StatusResult{
		Running: true,
		PID:     os.Getpid(),
		Uptime:  time.Since(started).Round(time.Second).String(),
		Backend: s.backend,
		Stats:   s.handler.Stats(),
	}

	indexes, err := s.handler.Indexes(ctx)
	if err != nil {
		slog.Warn("daemon_index_stats_failed", slog.String("error", err.Error()))
	}
	status.Indexes = indexes
	return status
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shutdown = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
