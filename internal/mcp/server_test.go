package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
	"github.com/Aman-CERP/chatsearch/internal/search"
	"github.com/Aman-CERP/chatsearch/internal/store"
	"github.com/Aman-CERP/chatsearch/internal/telemetry"
)

const testChat = int64(-1001234567890)

// MockSearcher implements Searcher for testing.
type MockSearcher struct {
	SearchFn  func(ctx context.Context, channelID int64, query string, page, pageSize int) (*search.Result, error)
	IndexesFn func(ctx context.Context) ([]store.IndexStats, error)
}

func (m *MockSearcher) Search(ctx context.Context, channelID int64, query string, page, pageSize int) (*search.Result, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, channelID, query, page, pageSize)
	}
	return &search.Result{Query: query, Page: page, PageSize: pageSize, Hits: []search.Hit{}}, nil
}

func (m *MockSearcher) Indexes(ctx context.Context) ([]store.IndexStats, error) {
	if m.IndexesFn != nil {
		return m.IndexesFn(ctx)
	}
	return nil, nil
}

// newCatService returns a bleve-backed service holding three messages, two
// of which mention "cat".
func newCatService(t *testing.T, metrics *telemetry.QueryMetrics) *search.Service {
	t.Helper()

	st, err := store.NewBleveStore("", store.LanguageEnglish)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	opts := []search.Option{}
	if metrics != nil {
		opts = append(opts, search.WithMetrics(metrics))
	}
	svc, err := search.New(st, search.Config{StoreTimeout: 5 * time.Second, IndexCacheSize: 16, Language: store.LanguageEnglish}, opts...)
	require.NoError(t, err)

	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.AddDocument(ctx, testChat, 1, "my cat is asleep", "Alice", base))
	require.NoError(t, svc.AddDocument(ctx, testChat, 2, "the dog barks", "Bob", base.Add(time.Minute)))
	require.NoError(t, svc.AddDocument(ctx, testChat, 3, "cat food is expensive", "Carol", base.Add(2*time.Minute)))
	return svc
}

func TestNewServer_RequiresSearcher(t *testing.T) {
	srv, err := NewServer(nil)

	assert.Error(t, err)
	assert.Nil(t, srv)
}

func TestSearchHandler_ReturnsNewestFirst(t *testing.T) {
	// Given: a server over a chat with two cat messages
	srv, err := NewServer(newCatService(t, nil))
	require.NoError(t, err)

	// When: searching for cat
	_, out, err := srv.searchHandler(context.Background(), nil, SearchInput{ChatID: testChat, Query: "cat"})

	// Then: both messages come back newest first with permalinks
	require.NoError(t, err)
	assert.Equal(t, 2, out.Total)
	assert.False(t, out.HasMore)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, int64(3), out.Messages[0].MessageID)
	assert.Equal(t, "Carol", out.Messages[0].Author)
	assert.Equal(t, "2024-03-01T12:02:00Z", out.Messages[0].Timestamp)
	assert.Equal(t, "https://t.me/c/1234567890/3", out.Messages[0].Permalink)
	assert.Equal(t, int64(1), out.Messages[1].MessageID)
}

func TestSearchHandler_Paging(t *testing.T) {
	srv, err := NewServer(newCatService(t, nil))
	require.NoError(t, err)

	_, first, err := srv.searchHandler(context.Background(), nil, SearchInput{ChatID: testChat, Query: "cat", PageSize: 1})
	require.NoError(t, err)
	_, second, err := srv.searchHandler(context.Background(), nil, SearchInput{ChatID: testChat, Query: "cat", Page: 2, PageSize: 1})
	require.NoError(t, err)

	assert.True(t, first.HasMore)
	assert.False(t, second.HasMore)
	assert.Equal(t, int64(3), first.Messages[0].MessageID)
	assert.Equal(t, int64(1), second.Messages[0].MessageID)
}

func TestSearchHandler_ClampsPaging(t *testing.T) {
	// Given: a searcher recording its arguments
	var gotPage, gotSize int
	srv, err := NewServer(&MockSearcher{
		SearchFn: func(_ context.Context, _ int64, q string, page, size int) (*search.Result, error) {
			gotPage, gotSize = page, size
			return &search.Result{Query: q, Page: page, PageSize: size}, nil
		},
	})
	require.NoError(t, err)

	tests := []struct {
		name               string
		page, size         int
		wantPage, wantSize int
	}{
		{"defaults", 0, 0, 1, defaultPageSize},
		{"negative page", -3, 5, 1, 5},
		{"oversized page", 2, 500, 2, maxPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := srv.searchHandler(context.Background(), nil, SearchInput{ChatID: 1, Query: "x", Page: tt.page, PageSize: tt.size})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, gotPage)
			assert.Equal(t, tt.wantSize, gotSize)
		})
	}
}

func TestSearchHandler_InvalidInput(t *testing.T) {
	srv, err := NewServer(&MockSearcher{})
	require.NoError(t, err)

	tests := []struct {
		name  string
		input SearchInput
	}{
		{"empty query", SearchInput{ChatID: 1, Query: ""}},
		{"whitespace query", SearchInput{ChatID: 1, Query: "  \t"}},
		{"missing chat", SearchInput{Query: "cat"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := srv.searchHandler(context.Background(), nil, tt.input)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
		})
	}
}

func TestSearchHandler_MapsStoreFailure(t *testing.T) {
	// Given: a searcher whose store fails
	srv, err := NewServer(&MockSearcher{
		SearchFn: func(context.Context, int64, string, int, int) (*search.Result, error) {
			return nil, cserrors.QueryError("search failed", errors.New("disk gone"))
		},
	})
	require.NoError(t, err)

	// When: searching
	_, _, err = srv.searchHandler(context.Background(), nil, SearchInput{ChatID: 1, Query: "cat"})

	// Then: the error carries the search-failed code
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeSearchFailed, mcpErr.Code)
}

func TestListChatsHandler(t *testing.T) {
	// Given: a searcher with one chat index and one foreign index
	srv, err := NewServer(&MockSearcher{
		IndexesFn: func(context.Context) ([]store.IndexStats, error) {
			return []store.IndexStats{
				{Name: search.IndexName(testChat), Documents: 3},
				{Name: "scratch", Documents: 9},
			}, nil
		},
	})
	require.NoError(t, err)

	// When: listing chats
	_, out, err := srv.listChatsHandler(context.Background(), nil, ListChatsInput{})

	// Then: only chat indexes are listed, with their ids
	require.NoError(t, err)
	require.Len(t, out.Chats, 1)
	assert.Equal(t, testChat, out.Chats[0].ChatID)
	assert.Equal(t, 3, out.Chats[0].Messages)
}

func TestServer_EndToEndOverSession(t *testing.T) {
	// Given: a server with metrics connected to an in-memory client
	ctx := context.Background()
	metrics := telemetry.NewQueryMetrics(telemetry.DefaultConfig(), nil)
	srv, err := NewServer(newCatService(t, metrics), WithMetrics(metrics))
	require.NoError(t, err)

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := srv.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer cs.Close()

	// When: listing tools
	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(tools.Tools))
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}

	// Then: both tools are advertised
	assert.ElementsMatch(t, []string{"search_messages", "list_chats"}, names)

	// When: calling search_messages
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search_messages",
		Arguments: map[string]any{"chat_id": testChat, "query": "cat"},
	})

	// Then: structured output carries the total
	require.NoError(t, err)
	require.False(t, res.IsError)
	structured, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2, structured["total"])

	// When: reading the metrics resource
	rr, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: queryMetricsURI})

	// Then: the query above was recorded
	require.NoError(t, err)
	require.Len(t, rr.Contents, 1)
	assert.Contains(t, rr.Contents[0].Text, `"total_queries": 1`)
}
