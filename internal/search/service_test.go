package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
	"github.com/Aman-CERP/chatsearch/internal/store"
	"github.com/Aman-CERP/chatsearch/internal/telemetry"
)

// countingStore wraps an IndexStore and counts calls.
type countingStore struct {
	store.IndexStore
	creates atomic.Int32
	adds    atomic.Int32
	queries atomic.Int32

	queryErr error
	addErr   error
}

func (c *countingStore) CreateIndex(ctx context.Context, name string, fields []store.Field) error {
	c.creates.Add(1)
	return c.IndexStore.CreateIndex(ctx, name, fields)
}

func (c *countingStore) AddDocument(ctx context.Context, index, docID string, doc store.Document, language string) error {
	c.adds.Add(1)
	if c.addErr != nil {
		return c.addErr
	}
	return c.IndexStore.AddDocument(ctx, index, docID, doc, language)
}

func (c *countingStore) Query(ctx context.Context, req store.QueryRequest) (*store.QueryResult, error) {
	c.queries.Add(1)
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return c.IndexStore.Query(ctx, req)
}

func newTestService(t *testing.T, opts ...Option) (*Service, *countingStore) {
	t.Helper()

	bs, err := store.NewBleveStore("", store.LanguageChinese)
	require.NoError(t, err)
	cs := &countingStore{IndexStore: bs}
	t.Cleanup(func() { _ = cs.Close() })

	svc, err := New(cs, Config{}, opts...)
	require.NoError(t, err)
	return svc, cs
}

func at(sec int64) time.Time { return time.Unix(sec, 0) }

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(nil, Config{})
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestSearch_CatScenario(t *testing.T) {
	// Given: three messages, two mentioning cat
	svc, _ := newTestService(t)
	ctx := context.Background()
	const ch = int64(-1001234)

	require.NoError(t, svc.AddDocument(ctx, ch, 1, "I love my cat", "alice", at(100)))
	require.NoError(t, svc.AddDocument(ctx, ch, 2, "dogs are fine", "bob", at(200)))
	require.NoError(t, svc.AddDocument(ctx, ch, 3, "the cat sleeps", "carol", at(300)))

	// When: searching for cat
	res, err := svc.Search(ctx, ch, "cat", 1, 10)
	require.NoError(t, err)

	// Then: both cat messages, newest first, with supergroup permalinks
	require.Len(t, res.Hits, 2)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, int64(3), res.Hits[0].MessageID)
	assert.Equal(t, "the cat sleeps", res.Hits[0].Text)
	assert.Equal(t, "carol", res.Hits[0].Author)
	assert.Equal(t, at(300), res.Hits[0].Timestamp)
	assert.Equal(t, "https://t.me/c/1234/3", res.Hits[0].Permalink)
	assert.Equal(t, int64(1), res.Hits[1].MessageID)
	assert.Equal(t, "https://t.me/c/1234/1", res.Hits[1].Permalink)
}

func TestSearch_MultiTermQueryMatchesAllTerms(t *testing.T) {
	// Given: one message with both terms and two newer ones with only one
	svc, _ := newTestService(t)
	ctx := context.Background()
	const ch = int64(1)

	require.NoError(t, svc.AddDocument(ctx, ch, 1, "cat and dog together", "a", at(100)))
	require.NoError(t, svc.AddDocument(ctx, ch, 2, "my cat is asleep", "b", at(200)))
	require.NoError(t, svc.AddDocument(ctx, ch, 3, "the dog barked", "c", at(300)))

	// When: searching for both terms
	res, err := svc.Search(ctx, ch, "cat dog", 1, 10)
	require.NoError(t, err)

	// Then: only the message containing both is returned
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, int64(1), res.Hits[0].MessageID)
}

func TestSearch_TimestampsNonIncreasingAcrossPages(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := int64(1); i <= 25; i++ {
		// Shuffle insertion order relative to time.
		ts := (i * 7) % 25
		require.NoError(t, svc.AddDocument(ctx, 5, i, "status report", "bot", at(1000+ts)))
	}

	var all []Hit
	for page := 1; page <= 3; page++ {
		res, err := svc.Search(ctx, 5, "report", page, 10)
		require.NoError(t, err)
		assert.Equal(t, 25, res.Total)
		all = append(all, res.Hits...)
	}

	require.Len(t, all, 25)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].Timestamp.After(all[i-1].Timestamp),
			"hit %d is newer than hit %d", i, i-1)
	}
}

func TestAddDocument_IsIdempotent(t *testing.T) {
	// Given: a message already indexed
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.AddDocument(ctx, 7, 1, "hello world", "alice", at(10)))

	// When: the same message is added again with different text
	require.NoError(t, svc.AddDocument(ctx, 7, 1, "hello again", "alice", at(20)))

	// Then: one document with the original content
	res, err := svc.Search(ctx, 7, "hello", 1, 10)
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "hello world", res.Hits[0].Text)

	stats := svc.Stats()
	assert.Equal(t, int64(1), stats.DocumentsAdded)
	assert.Equal(t, int64(1), stats.DuplicatesSeen)
}

func TestAddDocument_CreatesIndexOncePerChannel(t *testing.T) {
	svc, cs := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			assert.NoError(t, svc.AddDocument(ctx, 9, id, "concurrent message", "x", at(id)))
		}(i)
	}
	wg.Wait()

	// singleflight collapses concurrent creators; later calls hit the cache.
	assert.LessOrEqual(t, cs.creates.Load(), int32(20))
	before := cs.creates.Load()
	require.NoError(t, svc.AddDocument(ctx, 9, 100, "one more", "x", at(100)))
	assert.Equal(t, before, cs.creates.Load())

	res, err := svc.Search(ctx, 9, "concurrent", 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Total)
}

func TestAddDocument_ExistingIndexCountsAsCreated(t *testing.T) {
	svc, cs := newTestService(t)
	ctx := context.Background()
	require.NoError(t, cs.IndexStore.CreateIndex(ctx, IndexName(3), Fields))

	assert.NoError(t, svc.AddDocument(ctx, 3, 1, "pre-created index", "a", at(1)))
}

func TestAddDocument_SkipsNonIndexableText(t *testing.T) {
	svc, cs := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddDocument(ctx, 1, 1, "", "a", at(1)))
	require.NoError(t, svc.AddDocument(ctx, 1, 2, "/search cat", "a", at(1)))

	assert.Zero(t, cs.adds.Load())
	assert.Zero(t, cs.creates.Load())
}

func TestAddDocument_StoreFailureIsIngestError(t *testing.T) {
	svc, cs := newTestService(t)
	cs.addErr = errors.New("disk full")

	err := svc.AddDocument(context.Background(), 1, 42, "hello", "a", at(1))

	require.Error(t, err)
	assert.True(t, cserrors.HasCode(err, cserrors.ErrCodeIngestFailed))
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, int32(1), cs.adds.Load(), "no retries")
	assert.Equal(t, int64(1), svc.Stats().IngestFailures)
}

func TestSearch_EmptyQueryNeverReachesStore(t *testing.T) {
	svc, cs := newTestService(t)

	for _, q := range []string{"", "   ", "\t\n"} {
		res, err := svc.Search(context.Background(), 1, q, 1, 10)
		require.NoError(t, err)
		assert.True(t, res.Empty())
		assert.Zero(t, res.Total)
	}
	assert.Zero(t, cs.queries.Load())
}

func TestSearch_UnknownChannelIsEmpty(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.Search(context.Background(), 404, "anything", 1, 10)

	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.NotNil(t, res.Hits)
}

func TestSearch_StoreFailureIsQueryError(t *testing.T) {
	svc, cs := newTestService(t)
	cs.queryErr = errors.New("syntax error near AND")

	res, err := svc.Search(context.Background(), 1, "cat", 1, 10)

	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, cserrors.HasCode(err, cserrors.ErrCodeQueryFailed))
	assert.Equal(t, "syntax error near AND", cserrors.FormatForUser(err, false))
}

func TestSearch_WindowAndDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for i := int64(1); i <= 12; i++ {
		require.NoError(t, svc.AddDocument(ctx, 2, i, "window test", "a", at(i)))
	}

	// Page 2 of size 10 holds the two oldest.
	res, err := svc.Search(ctx, 2, "window", 2, 10)
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, int64(2), res.Hits[0].MessageID)
	assert.Equal(t, int64(1), res.Hits[1].MessageID)

	// Out of range page and size fall back to defaults.
	res, err = svc.Search(ctx, 2, "window", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, DefaultPageSize, res.PageSize)
	assert.Len(t, res.Hits, DefaultPageSize)
}

func TestSearch_RecordsMetrics(t *testing.T) {
	m := telemetry.NewQueryMetrics(telemetry.DefaultConfig(), nil)
	svc, _ := newTestService(t, WithMetrics(m))
	ctx := context.Background()

	require.NoError(t, svc.AddDocument(ctx, 1, 1, "metrics message", "a", at(1)))
	_, err := svc.Search(ctx, 1, "metrics", 1, 10)
	require.NoError(t, err)
	_, err = svc.Search(ctx, 1, "absent", 1, 10)
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, int64(1), snap.Ingested[telemetry.OutcomeOK])
}

func TestIndexes_ReportsCounts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.AddDocument(ctx, 1, 1, "one", "a", at(1)))
	require.NoError(t, svc.AddDocument(ctx, 1, 2, "two", "a", at(2)))

	stats, err := svc.Indexes(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, IndexName(1), stats[0].Name)
	assert.Equal(t, 2, stats[0].Documents)
}
