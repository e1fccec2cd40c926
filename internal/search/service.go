// Package search owns the per-channel indexes: ingesting chat messages and
// running paginated queries ordered newest first.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
	"github.com/Aman-CERP/chatsearch/internal/store"
	"github.com/Aman-CERP/chatsearch/internal/telemetry"
)

// Defaults applied when Config leaves a value unset.
const (
	DefaultPageSize       = 10
	DefaultStoreTimeout   = 5 * time.Second
	DefaultIndexCacheSize = 1024
)

// Config configures a Service.
type Config struct {
	// StoreTimeout bounds every store round-trip.
	StoreTimeout time.Duration

	// IndexCacheSize is the number of channels whose index is remembered
	// as created.
	IndexCacheSize int

	// Language selects the analyzer used for documents and queries.
	Language string
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records query and ingest events.
func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// Service implements AddDocument and Search over an IndexStore.
// Safe for concurrent use.
type Service struct {
	store   store.IndexStore
	cfg     Config
	known   *lru.Cache[int64, struct{}]
	creates singleflight.Group
	metrics *telemetry.QueryMetrics
	logger  *slog.Logger

	added    atomic.Int64
	dupes    atomic.Int64
	ingestKO atomic.Int64
	queries  atomic.Int64
	queryKO  atomic.Int64
	started  time.Time
}

// ErrNilStore is returned by New without a store.
var ErrNilStore = errors.New("search: nil index store")

// New creates a Service over st.
func New(st store.IndexStore, cfg Config, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, ErrNilStore
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.IndexCacheSize <= 0 {
		cfg.IndexCacheSize = DefaultIndexCacheSize
	}
	if cfg.Language == "" {
		cfg.Language = store.LanguageChinese
	}

	known, err := lru.New[int64, struct{}](cfg.IndexCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Service{
		store:   st,
		cfg:     cfg,
		known:   known,
		logger:  slog.Default(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AddDocument indexes one message. Re-adding a message is a no-op, and so
// is a text that is not Indexable. Store failures are returned as an
// IngestError and never retried.
func (s *Service) AddDocument(ctx context.Context, channelID, messageID int64, text, author string, ts time.Time) error {
	if !Indexable(text) {
		return nil
	}

	start := time.Now()
	docID := DocID(channelID, messageID)

	outcome, err := s.addDocument(ctx, channelID, docID, store.Document{
		FieldText:      text,
		FieldAuthor:    author,
		FieldTimestamp: ts.Unix(),
		FieldMessageID: messageID,
	})

	if s.metrics != nil {
		s.metrics.RecordIngest(telemetry.IngestEvent{
			ChannelID: channelID,
			Outcome:   outcome,
			Latency:   time.Since(start),
		})
	}

	switch outcome {
	case telemetry.OutcomeOK:
		s.added.Add(1)
	case telemetry.OutcomeDuplicate:
		s.dupes.Add(1)
		s.logger.Debug("document_exists", slog.String("doc_id", docID))
	default:
		s.ingestKO.Add(1)
		return cserrors.IngestError(docID, err)
	}
	return nil
}

func (s *Service) addDocument(ctx context.Context, channelID int64, docID string, doc store.Document) (telemetry.Outcome, error) {
	if err := s.ensureIndex(ctx, channelID); err != nil {
		return telemetry.OutcomeError, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	err := s.store.AddDocument(ctx, IndexName(channelID), docID, doc, s.cfg.Language)
	switch {
	case err == nil:
		return telemetry.OutcomeOK, nil
	case errors.Is(err, store.ErrDocumentExists):
		return telemetry.OutcomeDuplicate, nil
	default:
		return telemetry.OutcomeError, err
	}
}

// ensureIndex creates the channel index on first use. Concurrent first
// uses share one CreateIndex call.
func (s *Service) ensureIndex(ctx context.Context, channelID int64) error {
	if s.known.Contains(channelID) {
		return nil
	}

	name := IndexName(channelID)
	_, err, _ := s.creates.Do(name, func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
		defer cancel()

		err := s.store.CreateIndex(ctx, name, Fields)
		if err != nil && !errors.Is(err, store.ErrIndexExists) {
			return nil, err
		}
		if err == nil {
			s.logger.Info("index_created", slog.String("index", name))
		}
		s.known.Add(channelID, struct{}{})
		return nil, nil
	})
	return err
}

// Search returns page of the hits for query in a channel, newest first.
// Pages start at 1. An empty query and a channel without an index both
// yield an empty result. Store failures are returned as a QueryError.
func (s *Service) Search(ctx context.Context, channelID int64, query string, page, pageSize int) (*Result, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	result := &Result{
		Query:    query,
		Page:     page,
		PageSize: pageSize,
		Hits:     []Hit{},
	}
	if strings.TrimSpace(query) == "" {
		return result, nil
	}

	start := time.Now()
	index := IndexName(channelID)

	res, err := s.query(ctx, store.QueryRequest{
		Index:     index,
		Text:      query,
		SortField: FieldTimestamp,
		SortDesc:  true,
		Start:     (page - 1) * pageSize,
		Count:     pageSize,
		Language:  s.cfg.Language,
	})
	if errors.Is(err, store.ErrIndexNotFound) {
		err = nil
		res = &store.QueryResult{}
	}

	s.queries.Add(1)
	if s.metrics != nil {
		count := 0
		if res != nil {
			count = len(res.Hits)
		}
		s.metrics.RecordQuery(telemetry.QueryEvent{
			ChannelID:   channelID,
			Query:       query,
			ResultCount: count,
			Latency:     time.Since(start),
			Failed:      err != nil,
		})
	}

	if err != nil {
		s.queryKO.Add(1)
		return nil, cserrors.QueryError(index, err)
	}

	result.Total = res.Total
	for _, h := range res.Hits {
		msgID := h.Fields.Int(FieldMessageID)
		hit := Hit{
			MessageID: msgID,
			Text:      h.Fields.String(FieldText),
			Author:    h.Fields.String(FieldAuthor),
			Permalink: Permalink(channelID, msgID),
		}
		if ts := h.Fields.Int(FieldTimestamp); ts != 0 {
			hit.Timestamp = time.Unix(ts, 0)
		}
		result.Hits = append(result.Hits, hit)
	}

	s.logger.Debug("search_completed",
		slog.Int64("channel_id", channelID),
		slog.Int("page", page),
		slog.Int("hits", len(result.Hits)),
		slog.Int("total", result.Total),
		slog.Duration("duration", time.Since(start)))

	return result, nil
}

func (s *Service) query(ctx context.Context, req store.QueryRequest) (*store.QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.store.Query(ctx, req)
}

// Stats returns activity counters.
func (s *Service) Stats() Stats {
	return Stats{
		DocumentsAdded: s.added.Load(),
		DuplicatesSeen: s.dupes.Load(),
		IngestFailures: s.ingestKO.Load(),
		QueriesServed:  s.queries.Load(),
		QueryFailures:  s.queryKO.Load(),
		KnownIndexes:   s.known.Len(),
		StartedAt:      s.started,
	}
}

// Indexes reports the store's per-channel document counts.
func (s *Service) Indexes(ctx context.Context) ([]store.IndexStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, cserrors.StoreError("failed to read index stats", err)
	}
	return stats, nil
}
