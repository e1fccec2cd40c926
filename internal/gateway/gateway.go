package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/Aman-CERP/chatsearch/internal/channels"
	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
	"github.com/Aman-CERP/chatsearch/internal/pagination"
	"github.com/Aman-CERP/chatsearch/internal/render"
	"github.com/Aman-CERP/chatsearch/internal/search"
	"github.com/Aman-CERP/chatsearch/internal/telemetry"
)

// Defaults applied when Config leaves a value unset.
const (
	DefaultWorkers     = 16
	DefaultPageSize    = 10
	DefaultCallTimeout = 10 * time.Second
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Config configures a Gateway.
type Config struct {
	// OwnerID may enable and disable search. Zero disables both commands.
	OwnerID int64

	PageSize int

	// Workers bounds concurrently handled events.
	Workers int

	// CallTimeout bounds each searcher and transport call.
	CallTimeout time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithCodec sets the control token codec. Defaults to unsigned tokens.
func WithCodec(c *pagination.Codec) Option {
	return func(g *Gateway) {
		g.codec = c
	}
}

// WithRenderer sets the result renderer. Defaults to one using the codec.
func WithRenderer(r *render.Renderer) Option {
	return func(g *Gateway) {
		g.renderer = r
	}
}

// WithMetrics counts handled updates.
func WithMetrics(p *telemetry.Prometheus) Option {
	return func(g *Gateway) {
		g.metrics = p
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// Gateway handles inbound chat events. Safe for concurrent use.
type Gateway struct {
	searcher  Searcher
	transport Transport
	registry  channels.Registry
	codec     *pagination.Codec
	renderer  *render.Renderer
	metrics   *telemetry.Prometheus
	logger    *slog.Logger

	ownerID     int64
	pageSize    int
	callTimeout time.Duration

	commands map[string]command
	sem      *semaphore.Weighted
	inflight sync.WaitGroup
}

// New creates a Gateway.
func New(searcher Searcher, transport Transport, registry channels.Registry, cfg Config, opts ...Option) (*Gateway, error) {
	switch {
	case searcher == nil:
		return nil, fmt.Errorf("%w: searcher is required", ErrNilDependency)
	case transport == nil:
		return nil, fmt.Errorf("%w: transport is required", ErrNilDependency)
	case registry == nil:
		return nil, fmt.Errorf("%w: registry is required", ErrNilDependency)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	g := &Gateway{
		searcher:    searcher,
		transport:   transport,
		registry:    registry,
		logger:      slog.Default(),
		ownerID:     cfg.OwnerID,
		pageSize:    cfg.PageSize,
		callTimeout: cfg.CallTimeout,
		sem:         semaphore.NewWeighted(int64(cfg.Workers)),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.codec == nil {
		g.codec = pagination.NewCodec("")
	}
	if g.renderer == nil {
		g.renderer = render.New(g.codec)
	}
	g.commands = g.commandTable()
	return g, nil
}

// Dispatch handles ev on its own goroutine. It blocks while all workers are
// busy and returns an error only if ctx ends first.
func (g *Gateway) Dispatch(ctx context.Context, ev Event) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		defer g.sem.Release(1)
		g.Handle(ctx, ev)
	}()
	return nil
}

// Wait blocks until every dispatched event has been handled.
func (g *Gateway) Wait() {
	g.inflight.Wait()
}

// Handle processes one event synchronously. Failures are logged.
func (g *Gateway) Handle(ctx context.Context, ev Event) {
	log := g.logger.With(
		slog.String("event_id", uuid.NewString()),
		slog.String("kind", ev.Kind()))
	g.metrics.ObserveUpdate(ev.Kind())

	var err error
	switch e := ev.(type) {
	case MessageEvent:
		log = log.With(slog.Int64("channel_id", e.ChannelID), slog.Int64("message_id", e.MessageID))
		g.handleMessage(ctx, e, log)
	case CommandEvent:
		log = log.With(slog.Int64("channel_id", e.ChannelID), slog.String("command", e.Command))
		err = g.handleCommand(ctx, e, log)
	case ControlEvent:
		log = log.With(slog.Int64("channel_id", e.ChannelID), slog.Int64("message_id", e.MessageID))
		err = g.handleControl(ctx, e, log)
	default:
		log.Warn("event_unsupported", slog.String("type", fmt.Sprintf("%T", ev)))
		return
	}

	if err != nil {
		log.Error("event_failed", cserrors.LogAttrs(err)...)
	}
}

// handleMessage indexes a message. Failures are logged and never reported
// back to the chat.
func (g *Gateway) handleMessage(ctx context.Context, ev MessageEvent, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	err := g.searcher.AddDocument(ctx, ev.ChannelID, ev.MessageID, ev.Text, ev.Author, ev.Timestamp)
	if err != nil {
		log.Warn("ingest_failed", cserrors.LogAttrs(err)...)
		return
	}
	log.Debug("message_ingested")
}

// handleControl answers an inline control press: a page turn edits the
// message in place, close deletes it.
func (g *Gateway) handleControl(ctx context.Context, ev ControlEvent, log *slog.Logger) error {
	if ev.CallbackID != "" {
		ackCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		if err := g.transport.Ack(ackCtx, ev.CallbackID); err != nil {
			log.Debug("ack_failed", slog.String("error", err.Error()))
		}
		cancel()
	}

	if pagination.IsDeleteToken(ev.Token) {
		return g.handleDelete(ctx, ev, log)
	}

	pt, err := g.codec.DecodePage(ev.Token)
	if err != nil {
		log.Warn("control_rejected", cserrors.LogAttrs(cserrors.MalformedControlToken(ev.Token, err))...)
		return nil
	}
	page := max(pt.Page, 1)

	res, err := g.search(ctx, ev.ChannelID, pt.Query, page)
	if err != nil {
		log.Warn("search_failed", cserrors.LogAttrs(err)...)
		return g.edit(ctx, ev.ChannelID, ev.MessageID, failureText(err), nil)
	}

	msg := g.renderer.Render(res, render.Host{ChannelID: ev.ChannelID, MessageID: ev.MessageID})
	return g.edit(ctx, ev.ChannelID, ev.MessageID, msg.Text, msg.Controls)
}

func (g *Gateway) handleDelete(ctx context.Context, ev ControlEvent, log *slog.Logger) error {
	dt, err := g.codec.DecodeDelete(ev.Token)
	if err != nil {
		// Fall back to the hosting message so a close button always works.
		log.Warn("control_rejected", cserrors.LogAttrs(cserrors.MalformedControlToken(ev.Token, err))...)
		dt = pagination.DeleteToken{}
	}
	// Unknown ids mean the message hosting the control.
	if dt.ChannelID == 0 || dt.MessageID == 0 {
		dt.ChannelID, dt.MessageID = ev.ChannelID, ev.MessageID
	}
	if dt.ChannelID != ev.ChannelID {
		log.Warn("control_rejected",
			slog.String("reason", "cross-channel delete"),
			slog.Int64("target_channel_id", dt.ChannelID))
		return nil
	}

	log.Info("result_deleted",
		slog.Int64("target_channel_id", dt.ChannelID),
		slog.Int64("target_message_id", dt.MessageID))

	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()
	return g.transport.Delete(ctx, dt.ChannelID, dt.MessageID)
}

func (g *Gateway) search(ctx context.Context, channelID int64, query string, page int) (*search.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()
	return g.searcher.Search(ctx, channelID, query, page, g.pageSize)
}

func (g *Gateway) send(ctx context.Context, channelID int64, text string, replyTo int64, controls render.Keyboard) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()
	return g.transport.Send(ctx, channelID, text, replyTo, controls)
}

func (g *Gateway) edit(ctx context.Context, channelID, messageID int64, text string, controls render.Keyboard) error {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()
	return g.transport.Edit(ctx, channelID, messageID, text, controls)
}
