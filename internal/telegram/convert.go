package telegram

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Aman-CERP/chatsearch/internal/gateway"
	"github.com/Aman-CERP/chatsearch/internal/render"
)

// Author returns the display name of u: first and last name, else the
// username, else the numeric id.
func Author(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.UserName != "" {
		return u.UserName
	}
	return strconv.FormatInt(u.ID, 10)
}

// ToEvent converts an update to a gateway event. Updates the gateway does
// not handle yield false.
func ToEvent(u tgbotapi.Update) (gateway.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.Message == nil || cq.Message.Chat == nil {
			return nil, false
		}
		return gateway.ControlEvent{
			ChannelID:  cq.Message.Chat.ID,
			MessageID:  int64(cq.Message.MessageID),
			Token:      cq.Data,
			CallbackID: cq.ID,
		}, true

	case u.Message != nil:
		return messageEvent(u.Message)
	}
	return nil, false
}

func messageEvent(m *tgbotapi.Message) (gateway.Event, bool) {
	if m.Chat == nil {
		return nil, false
	}

	if m.IsCommand() {
		var requester int64
		if m.From != nil {
			requester = m.From.ID
		}
		return gateway.CommandEvent{
			ChannelID:   m.Chat.ID,
			MessageID:   int64(m.MessageID),
			RequesterID: requester,
			Command:     m.Command(),
			Args:        m.CommandArguments(),
		}, true
	}

	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if text == "" {
		return nil, false
	}

	return gateway.MessageEvent{
		ChannelID: m.Chat.ID,
		MessageID: int64(m.MessageID),
		Text:      text,
		Author:    Author(m.From),
		Timestamp: m.Time(),
	}, true
}

// keyboard converts controls to an inline keyboard. Empty rows are dropped;
// nil means no keyboard.
func keyboard(kb render.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range kb {
		if len(row) == 0 {
			continue
		}
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		rows = append(rows, buttons)
	}
	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
