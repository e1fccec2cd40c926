package gateway

import (
	"context"
	"log/slog"
	"strings"

	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
	"github.com/Aman-CERP/chatsearch/internal/render"
)

// Reply texts.
const (
	NotEnabledText = "search is not enabled in this chat"
	EnabledText    = "search enabled in this chat"
	DisabledText   = "search disabled in this chat"
	UsageText      = "Usage: /search <query>"
	HelpText       = "/search <query> - search messages in this chat\n" +
		"/enable - enable search in this chat (owner only)\n" +
		"/disable - disable search in this chat (owner only)\n" +
		"/help - show this message"
	searchFailedPrefix = "search failed: "
)

// Command names.
const (
	CmdSearch  = "search"
	CmdEnable  = "enable"
	CmdDisable = "disable"
	CmdHelp    = "help"
)

type commandFunc func(ctx context.Context, ev CommandEvent, log *slog.Logger) error

type command struct {
	ownerOnly bool
	run       commandFunc
}

// commandTable binds the closed set of supported commands to g.
func (g *Gateway) commandTable() map[string]command {
	return map[string]command{
		CmdSearch:  {run: g.cmdSearch},
		CmdEnable:  {ownerOnly: true, run: g.cmdEnable},
		CmdDisable: {ownerOnly: true, run: g.cmdDisable},
		CmdHelp:    {run: g.cmdHelp},
	}
}

// Commands lists the supported command names.
func Commands() []string {
	return []string{CmdSearch, CmdEnable, CmdDisable, CmdHelp}
}

func (g *Gateway) handleCommand(ctx context.Context, ev CommandEvent, log *slog.Logger) error {
	cmd, ok := g.commands[strings.ToLower(ev.Command)]
	if !ok {
		log.Debug("command_unknown", slog.String("command", ev.Command))
		return nil
	}
	if cmd.ownerOnly && (g.ownerID == 0 || ev.RequesterID != g.ownerID) {
		log.Info("command_not_owner",
			slog.String("command", ev.Command),
			slog.Int64("requester_id", ev.RequesterID))
		return nil
	}
	return cmd.run(ctx, ev, log)
}

func (g *Gateway) cmdSearch(ctx context.Context, ev CommandEvent, log *slog.Logger) error {
	if !g.registry.IsEnabled(ev.ChannelID) {
		log.Info("search_not_enabled", cserrors.LogAttrs(cserrors.ChannelNotEnabledError(ev.ChannelID))...)
		_, err := g.send(ctx, ev.ChannelID, NotEnabledText, ev.MessageID, nil)
		return err
	}

	query := strings.TrimSpace(ev.Args)
	if query == "" {
		_, err := g.send(ctx, ev.ChannelID, UsageText, ev.MessageID, nil)
		return err
	}

	log.Info("search_requested", slog.String("query", query))
	res, err := g.search(ctx, ev.ChannelID, query, 1)
	if err != nil {
		log.Warn("search_failed", cserrors.LogAttrs(err)...)
		_, sendErr := g.send(ctx, ev.ChannelID, failureText(err), ev.MessageID, nil)
		return sendErr
	}

	msg := g.renderer.Render(res, render.Host{})
	_, err = g.send(ctx, ev.ChannelID, msg.Text, ev.MessageID, msg.Controls)
	return err
}

func (g *Gateway) cmdEnable(ctx context.Context, ev CommandEvent, log *slog.Logger) error {
	g.registry.Enable(ev.ChannelID)
	log.Info("search_enabled")
	_, err := g.send(ctx, ev.ChannelID, EnabledText, 0, nil)
	return err
}

func (g *Gateway) cmdDisable(ctx context.Context, ev CommandEvent, log *slog.Logger) error {
	g.registry.Disable(ev.ChannelID)
	log.Info("search_disabled")
	_, err := g.send(ctx, ev.ChannelID, DisabledText, 0, nil)
	return err
}

func (g *Gateway) cmdHelp(ctx context.Context, ev CommandEvent, _ *slog.Logger) error {
	_, err := g.send(ctx, ev.ChannelID, HelpText, ev.MessageID, nil)
	return err
}

// failureText is the user-visible reply for a failed read.
func failureText(err error) string {
	return searchFailedPrefix + cserrors.FormatForUser(err, false)
}
