// Package telemetry collects search and ingest metrics.
//
// QueryMetrics keeps a small in-memory summary for `chatsearch status`;
// Prometheus collectors expose the same events on /metrics.
package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// Outcome classifies a finished operation.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeEmpty     Outcome = "empty"
	OutcomeError     Outcome = "error"
)

// QueryEvent is one finished search.
type QueryEvent struct {
	ChannelID   int64
	Query       string
	ResultCount int
	Latency     time.Duration
	Failed      bool
}

// IngestEvent is one finished AddDocument.
type IngestEvent struct {
	ChannelID int64
	Outcome   Outcome
	Latency   time.Duration
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
	size  int
}

// NewCircularBuffer creates a buffer holding at most capacity items.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity)}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	}
}

// Items returns the buffered items, oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, 0, b.size)
	start := (b.head - b.size + len(b.items)) % len(b.items)
	for i := 0; i < b.size; i++ {
		out = append(out, b.items[(start+i)%len(b.items)])
	}
	return out
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// ExtractTerms lowercases query and returns its whitespace-separated terms.
func ExtractTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable copy of the collected metrics.
type Snapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	FailedQueries       int64                   `json:"failed_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	TopTerms            []TermCount             `json:"top_terms"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	Ingested            map[Outcome]int64       `json:"ingested"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of successful queries with no hits.
func (s *Snapshot) ZeroResultPercentage() float64 {
	ok := s.TotalQueries - s.FailedQueries
	if ok <= 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(ok) * 100
}

// Config sizes the in-memory collectors.
type Config struct {
	TopTermsCapacity    int
	ZeroResultsCapacity int
}

// DefaultConfig returns the default collector sizes.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:    200,
		ZeroResultsCapacity: 50,
	}
}

// QueryMetrics aggregates query and ingest events. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	topTerms    *lru.Cache[string, int64]
	zeroResults *CircularBuffer[string]
	latencies   map[LatencyBucket]int64
	ingested    map[Outcome]int64
	total       int64
	failed      int64
	zero        int64
	since       time.Time

	prom *Prometheus
}

// NewQueryMetrics creates a collector. prom may be nil.
func NewQueryMetrics(cfg Config, prom *Prometheus) *QueryMetrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = DefaultConfig().TopTermsCapacity
	}
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)

	return &QueryMetrics{
		topTerms:    topTerms,
		zeroResults: NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:   make(map[LatencyBucket]int64),
		ingested:    make(map[Outcome]int64),
		since:       time.Now(),
		prom:        prom,
	}
}

// RecordQuery captures one search.
func (m *QueryMetrics) RecordQuery(e QueryEvent) {
	outcome := OutcomeOK
	switch {
	case e.Failed:
		outcome = OutcomeError
	case e.ResultCount == 0:
		outcome = OutcomeEmpty
	}
	m.prom.observeQuery(outcome, e.Latency)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.latencies[LatencyToBucket(e.Latency)]++
	if e.Failed {
		m.failed++
		return
	}

	for _, term := range ExtractTerms(e.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}
	if e.ResultCount == 0 {
		m.zero++
		m.zeroResults.Add(e.Query)
	}
}

// RecordIngest captures one AddDocument.
func (m *QueryMetrics) RecordIngest(e IngestEvent) {
	m.prom.observeIngest(e.Outcome, e.Latency)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingested[e.Outcome]++
}

// Snapshot returns the current metrics.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	terms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	sort.SliceStable(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})

	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}
	ingested := make(map[Outcome]int64, len(m.ingested))
	for k, v := range m.ingested {
		ingested[k] = v
	}

	return &Snapshot{
		TotalQueries:        m.total,
		FailedQueries:       m.failed,
		ZeroResultCount:     m.zero,
		ZeroResultQueries:   m.zeroResults.Items(),
		TopTerms:            terms,
		LatencyDistribution: latencies,
		Ingested:            ingested,
		Since:               m.since,
	}
}
