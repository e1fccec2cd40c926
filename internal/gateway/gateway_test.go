package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatsearch/internal/channels"
	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
	"github.com/Aman-CERP/chatsearch/internal/pagination"
	"github.com/Aman-CERP/chatsearch/internal/render"
	"github.com/Aman-CERP/chatsearch/internal/search"
	"github.com/Aman-CERP/chatsearch/internal/store"
)

const (
	owner   = int64(42)
	channel = int64(-1001234)
)

type sent struct {
	ChannelID int64
	MessageID int64
	Text      string
	ReplyTo   int64
	Controls  render.Keyboard
}

// fakeTransport records outbound calls.
type fakeTransport struct {
	mu      sync.Mutex
	nextID  int64
	sends   []sent
	edits   []sent
	deletes [][2]int64
	acks    []string
}

func (f *fakeTransport) Send(_ context.Context, channelID int64, text string, replyTo int64, controls render.Keyboard) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sends = append(f.sends, sent{ChannelID: channelID, MessageID: f.nextID, Text: text, ReplyTo: replyTo, Controls: controls})
	return f.nextID, nil
}

func (f *fakeTransport) Edit(_ context.Context, channelID, messageID int64, text string, controls render.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sent{ChannelID: channelID, MessageID: messageID, Text: text, Controls: controls})
	return nil
}

func (f *fakeTransport) Delete(_ context.Context, channelID, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, [2]int64{channelID, messageID})
	return nil
}

func (f *fakeTransport) Ack(_ context.Context, callbackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, callbackID)
	return nil
}

func (f *fakeTransport) lastSend(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sends)
	return f.sends[len(f.sends)-1]
}

// fakeSearcher fails or counts on demand.
type fakeSearcher struct {
	searches atomic.Int32
	adds     atomic.Int32
	err      error
}

func (f *fakeSearcher) AddDocument(context.Context, int64, int64, string, string, time.Time) error {
	f.adds.Add(1)
	return f.err
}

func (f *fakeSearcher) Search(_ context.Context, _ int64, query string, page, pageSize int) (*search.Result, error) {
	f.searches.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &search.Result{Query: query, Page: page, PageSize: pageSize, Hits: []search.Hit{}}, nil
}

func newService(t *testing.T) *search.Service {
	t.Helper()
	bs, err := store.NewBleveStore("", store.LanguageChinese)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })
	svc, err := search.New(bs, search.Config{})
	require.NoError(t, err)
	return svc
}

func newGateway(t *testing.T, s Searcher, reg channels.Registry, opts ...Option) (*Gateway, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{nextID: 1000}
	opts = append([]Option{WithRenderer(render.New(nil, render.WithLocation(time.UTC)))}, opts...)
	g, err := New(s, tr, reg, Config{OwnerID: owner, PageSize: 2}, opts...)
	require.NoError(t, err)
	return g, tr
}

func TestNew_RequiresDependencies(t *testing.T) {
	reg := channels.NewMemoryRegistry()
	_, err := New(nil, &fakeTransport{}, reg, Config{})
	assert.ErrorIs(t, err, ErrNilDependency)
	_, err = New(&fakeSearcher{}, nil, reg, Config{})
	assert.ErrorIs(t, err, ErrNilDependency)
	_, err = New(&fakeSearcher{}, &fakeTransport{}, nil, Config{})
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestGateway_CatScenario(t *testing.T) {
	// Given: an enabled channel with three messages
	svc := newService(t)
	g, tr := newGateway(t, svc, channels.NewMemoryRegistry(channel))
	ctx := context.Background()

	g.Handle(ctx, MessageEvent{ChannelID: channel, MessageID: 1, Text: "I love my cat", Author: "alice", Timestamp: time.Unix(100, 0)})
	g.Handle(ctx, MessageEvent{ChannelID: channel, MessageID: 2, Text: "dogs are fine", Author: "bob", Timestamp: time.Unix(200, 0)})
	g.Handle(ctx, MessageEvent{ChannelID: channel, MessageID: 3, Text: "the cat sleeps", Author: "carol", Timestamp: time.Unix(300, 0)})

	// When: someone searches for cat
	g.Handle(ctx, CommandEvent{ChannelID: channel, MessageID: 10, RequesterID: 7, Command: "search", Args: "cat"})

	// Then: one reply with both hits, newest first, and only a close control
	reply := tr.lastSend(t)
	assert.Equal(t, int64(10), reply.ReplyTo)
	want := "\"*cat*\" search results (page 1):\n\n" +
		"[1970/01/01 00:05 - carol](https://t.me/c/1234/3): the cat sleeps\n\n" +
		"[1970/01/01 00:01 - alice](https://t.me/c/1234/1): I love my cat"
	assert.Equal(t, want, reply.Text)
	require.Len(t, reply.Controls, 2)
	assert.Empty(t, reply.Controls[0])
	assert.Equal(t, "del::", reply.Controls[1][0].Data)
}

func TestGateway_PagingEditsInPlace(t *testing.T) {
	// Given: five matching messages and page size two
	svc := newService(t)
	g, tr := newGateway(t, svc, channels.NewMemoryRegistry(channel))
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		g.Handle(ctx, MessageEvent{ChannelID: channel, MessageID: i, Text: "weekly report", Author: "a", Timestamp: time.Unix(i*60, 0)})
	}

	g.Handle(ctx, CommandEvent{ChannelID: channel, MessageID: 10, Command: "search", Args: "report"})
	first := tr.lastSend(t)
	require.Len(t, first.Controls[0], 1)
	assert.Equal(t, render.LabelNext, first.Controls[0][0].Label)

	// When: next is pressed on the result message
	g.Handle(ctx, ControlEvent{ChannelID: channel, MessageID: first.MessageID, Token: first.Controls[0][0].Data, CallbackID: "cb1"})

	// Then: the same message shows page two with both directions
	require.Len(t, tr.edits, 1)
	edit := tr.edits[0]
	assert.Equal(t, first.MessageID, edit.MessageID)
	assert.Contains(t, edit.Text, "(page 2)")
	assert.Contains(t, edit.Text, "https://t.me/c/1234/3")
	require.Len(t, edit.Controls[0], 2)
	assert.Equal(t, "1:report", edit.Controls[0][0].Data)
	assert.Equal(t, "3:report", edit.Controls[0][1].Data)
	assert.Equal(t, pagination.NewCodec("").EncodeDelete(channel, first.MessageID), edit.Controls[1][0].Data)
	assert.Equal(t, []string{"cb1"}, tr.acks)

	// And: the last page has no next control
	g.Handle(ctx, ControlEvent{ChannelID: channel, MessageID: first.MessageID, Token: "3:report"})
	last := tr.edits[1]
	require.Len(t, last.Controls[0], 1)
	assert.Equal(t, render.LabelPrevious, last.Controls[0][0].Label)
}

func TestGateway_SearchNotEnabled(t *testing.T) {
	fs := &fakeSearcher{}
	g, tr := newGateway(t, fs, channels.NewMemoryRegistry())

	g.Handle(context.Background(), CommandEvent{ChannelID: 5, MessageID: 1, Command: "search", Args: "cat"})

	assert.Equal(t, NotEnabledText, tr.lastSend(t).Text)
	assert.Zero(t, fs.searches.Load())
}

func TestGateway_SearchWithoutQuery(t *testing.T) {
	fs := &fakeSearcher{}
	g, tr := newGateway(t, fs, channels.NewMemoryRegistry(5))

	g.Handle(context.Background(), CommandEvent{ChannelID: 5, MessageID: 1, Command: "search", Args: "   "})

	assert.Equal(t, UsageText, tr.lastSend(t).Text)
	assert.Zero(t, fs.searches.Load())
}

func TestGateway_SearchFailureIsReported(t *testing.T) {
	fs := &fakeSearcher{err: cserrors.QueryError("chat_index_5", errors.New("index unavailable"))}
	g, tr := newGateway(t, fs, channels.NewMemoryRegistry(5))

	g.Handle(context.Background(), CommandEvent{ChannelID: 5, MessageID: 1, Command: "search", Args: "cat"})

	assert.Equal(t, "search failed: index unavailable", tr.lastSend(t).Text)
}

func TestGateway_PageFailureEditsMessage(t *testing.T) {
	fs := &fakeSearcher{err: cserrors.QueryError("chat_index_5", errors.New("timeout"))}
	g, tr := newGateway(t, fs, channels.NewMemoryRegistry(5))

	g.Handle(context.Background(), ControlEvent{ChannelID: 5, MessageID: 9, Token: "2:cat"})

	require.Len(t, tr.edits, 1)
	assert.Equal(t, "search failed: timeout", tr.edits[0].Text)
	assert.Nil(t, tr.edits[0].Controls)
}

func TestGateway_IngestFailureIsSilent(t *testing.T) {
	fs := &fakeSearcher{err: cserrors.IngestError("doc_id_5_1", errors.New("disk full"))}
	g, tr := newGateway(t, fs, channels.NewMemoryRegistry(5))

	g.Handle(context.Background(), MessageEvent{ChannelID: 5, MessageID: 1, Text: "hello"})

	assert.Equal(t, int32(1), fs.adds.Load())
	assert.Empty(t, tr.sends)
}

func TestGateway_OwnerCommands(t *testing.T) {
	reg := channels.NewMemoryRegistry()
	g, tr := newGateway(t, &fakeSearcher{}, reg)
	ctx := context.Background()

	// Non-owners are silently ignored.
	g.Handle(ctx, CommandEvent{ChannelID: 5, RequesterID: 7, Command: "enable"})
	assert.False(t, reg.IsEnabled(5))
	assert.Empty(t, tr.sends)

	g.Handle(ctx, CommandEvent{ChannelID: 5, RequesterID: owner, Command: "enable"})
	assert.True(t, reg.IsEnabled(5))
	assert.Equal(t, EnabledText, tr.lastSend(t).Text)

	g.Handle(ctx, CommandEvent{ChannelID: 5, RequesterID: 7, Command: "disable"})
	assert.True(t, reg.IsEnabled(5))

	g.Handle(ctx, CommandEvent{ChannelID: 5, RequesterID: owner, Command: "DISABLE"})
	assert.False(t, reg.IsEnabled(5))
	assert.Equal(t, DisabledText, tr.lastSend(t).Text)
}

func TestGateway_NoOwnerConfigured(t *testing.T) {
	reg := channels.NewMemoryRegistry()
	tr := &fakeTransport{}
	g, err := New(&fakeSearcher{}, tr, reg, Config{})
	require.NoError(t, err)

	g.Handle(context.Background(), CommandEvent{ChannelID: 5, RequesterID: 0, Command: "enable"})

	assert.False(t, reg.IsEnabled(5))
}

func TestGateway_HelpAndUnknown(t *testing.T) {
	g, tr := newGateway(t, &fakeSearcher{}, channels.NewMemoryRegistry())
	ctx := context.Background()

	g.Handle(ctx, CommandEvent{ChannelID: 5, MessageID: 3, Command: "os_stats"})
	assert.Empty(t, tr.sends)

	g.Handle(ctx, CommandEvent{ChannelID: 5, MessageID: 3, Command: "help"})
	assert.Equal(t, HelpText, tr.lastSend(t).Text)
	assert.ElementsMatch(t, []string{"search", "enable", "disable", "help"}, Commands())
}

func TestGateway_CommandTableBoundToGateway(t *testing.T) {
	// Given a gateway
	g, _ := newGateway(t, &fakeSearcher{}, channels.NewMemoryRegistry(5))

	// When listing its command table
	names := make([]string, 0, len(g.commands))
	for name, cmd := range g.commands {
		names = append(names, name)
		assert.NotNil(t, cmd.run, name)
	}

	// Then every listed command has a handler
	assert.ElementsMatch(t, Commands(), names)
	assert.True(t, g.commands[CmdEnable].ownerOnly)
	assert.True(t, g.commands[CmdDisable].ownerOnly)
	assert.False(t, g.commands[CmdSearch].ownerOnly)
}

func TestGateway_DeleteControl(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  [][2]int64
	}{
		{"unknown ids use hosting message", "del::", [][2]int64{{5, 77}}},
		{"explicit ids", "del:5:70", [][2]int64{{5, 70}}},
		{"other channel rejected", "del:6:70", nil},
		{"malformed ids fall back to hosting message", "del:x:1", [][2]int64{{5, 77}}},
		{"extra part falls back to hosting message", "del:1:2:3", [][2]int64{{5, 77}}},
		{"missing part falls back to hosting message", "del:abc", [][2]int64{{5, 77}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeSearcher{}
			g, tr := newGateway(t, fs, channels.NewMemoryRegistry(5))

			g.Handle(context.Background(), ControlEvent{ChannelID: 5, MessageID: 77, Token: tt.token, CallbackID: "cb"})

			assert.Equal(t, tt.want, tr.deletes)
			assert.Zero(t, fs.searches.Load())
			assert.Equal(t, []string{"cb"}, tr.acks)
		})
	}
}

func TestGateway_MalformedPageTokenIgnored(t *testing.T) {
	fs := &fakeSearcher{}
	g, tr := newGateway(t, fs, channels.NewMemoryRegistry(5))

	for _, token := range []string{"", "garbage", "0:cat", "-3:cat"} {
		g.Handle(context.Background(), ControlEvent{ChannelID: 5, MessageID: 1, Token: token})
	}

	assert.Zero(t, fs.searches.Load())
	assert.Empty(t, tr.edits)
}

func TestGateway_SignedTokens(t *testing.T) {
	codec := pagination.NewCodec("key")
	fs := &fakeSearcher{}
	g, tr := newGateway(t, fs, channels.NewMemoryRegistry(5), WithCodec(codec), WithRenderer(render.New(codec)))
	ctx := context.Background()

	// Unsigned page tokens are rejected.
	g.Handle(ctx, ControlEvent{ChannelID: 5, MessageID: 1, Token: "2:cat"})
	assert.Zero(t, fs.searches.Load())

	// An unsigned delete only ever removes the message hosting the control.
	g.Handle(ctx, ControlEvent{ChannelID: 5, MessageID: 1, Token: "del::"})
	g.Handle(ctx, ControlEvent{ChannelID: 5, MessageID: 2, Token: "del:5:70"})
	assert.Equal(t, [][2]int64{{5, 1}, {5, 2}}, tr.deletes)

	g.Handle(ctx, ControlEvent{ChannelID: 5, MessageID: 1, Token: codec.EncodePage(2, "cat")})
	assert.Equal(t, int32(1), fs.searches.Load())
}

func TestGateway_DispatchBoundsWorkers(t *testing.T) {
	blocker := &blockingSearcher{release: make(chan struct{})}
	tr := &fakeTransport{}
	g, err := New(blocker, tr, channels.NewMemoryRegistry(), Config{Workers: 2})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, g.Dispatch(ctx, MessageEvent{ChannelID: 1, MessageID: 1, Text: "a"}))
	require.NoError(t, g.Dispatch(ctx, MessageEvent{ChannelID: 1, MessageID: 2, Text: "b"}))

	// A third dispatch blocks until a worker frees up.
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Dispatch(short, MessageEvent{ChannelID: 1, MessageID: 3, Text: "c"}), context.DeadlineExceeded)

	close(blocker.release)
	g.Wait()
	assert.Equal(t, int32(2), blocker.adds.Load())
	assert.LessOrEqual(t, blocker.peak.Load(), int32(2))
}

type blockingSearcher struct {
	fakeSearcher
	release chan struct{}
	running atomic.Int32
	peak    atomic.Int32
}

func (b *blockingSearcher) AddDocument(ctx context.Context, channelID, messageID int64, text, author string, ts time.Time) error {
	n := b.running.Add(1)
	defer b.running.Add(-1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-b.release
	return b.fakeSearcher.AddDocument(ctx, channelID, messageID, text, author, ts)
}
