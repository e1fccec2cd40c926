// Package gateway turns chat events into search service calls and result
// messages. It is transport agnostic: a Transport sends and edits messages,
// a Searcher indexes and queries.
package gateway

import (
	"context"
	"time"

	"github.com/Aman-CERP/chatsearch/internal/render"
	"github.com/Aman-CERP/chatsearch/internal/search"
)

// Searcher is implemented by *search.Service and *daemon.Client.
type Searcher interface {
	AddDocument(ctx context.Context, channelID, messageID int64, text, author string, ts time.Time) error
	Search(ctx context.Context, channelID int64, query string, page, pageSize int) (*search.Result, error)
}

// Transport delivers outbound messages. Send always disables link previews.
type Transport interface {
	Send(ctx context.Context, channelID int64, text string, replyTo int64, controls render.Keyboard) (int64, error)
	Edit(ctx context.Context, channelID, messageID int64, text string, controls render.Keyboard) error
	Delete(ctx context.Context, channelID, messageID int64) error
	Ack(ctx context.Context, callbackID string) error
}

// Event is an inbound chat event.
type Event interface {
	Kind() string
}

// MessageEvent is a new chat message.
type MessageEvent struct {
	ChannelID int64
	MessageID int64
	Text      string
	Author    string
	Timestamp time.Time
}

// CommandEvent is a bot command such as "/search cat".
type CommandEvent struct {
	ChannelID   int64
	MessageID   int64
	RequesterID int64
	Command     string
	Args        string
}

// ControlEvent is a press of an inline control.
type ControlEvent struct {
	ChannelID  int64
	MessageID  int64
	Token      string
	CallbackID string
}

func (MessageEvent) Kind() string { return "message" }
func (CommandEvent) Kind() string { return "command" }
func (ControlEvent) Kind() string { return "control" }
