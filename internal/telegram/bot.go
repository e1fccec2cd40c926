// Package telegram adapts the Telegram Bot API to the chat gateway: long
// polling for updates and rate-limited, retried outbound calls.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
	"github.com/Aman-CERP/chatsearch/internal/gateway"
	"github.com/Aman-CERP/chatsearch/internal/render"
)

// Config configures a Bot.
type Config struct {
	Token string

	// Proxy is an optional http(s) or socks5 proxy URL.
	Proxy string

	// PollTimeout is the long-polling timeout. Default 30s.
	PollTimeout time.Duration

	// RateLimit caps outbound calls per second. Default 20.
	RateLimit float64

	// Endpoint overrides the Bot API endpoint format.
	Endpoint string

	Retry cserrors.RetryConfig
}

// Bot implements gateway.Transport on the Bot API.
type Bot struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	retry   cserrors.RetryConfig
	poll    time.Duration
}

var _ gateway.Transport = (*Bot)(nil)

// New connects to the Bot API and verifies the token.
func New(cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, cserrors.New(cserrors.ErrCodeMissingToken, "bot token is not configured", nil).
			WithSuggestion("Set bot.token in the config file or CHATSEARCH_BOT_TOKEN")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = cserrors.DefaultRetryConfig()
	}

	client, err := httpClient(cfg.Proxy, cfg.PollTimeout)
	if err != nil {
		return nil, err
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.Endpoint, client)
	if err != nil {
		return nil, classify(err)
	}
	_ = tgbotapi.SetLogger(slogAdapter{})

	slog.Info("telegram_connected", slog.String("bot", api.Self.UserName))

	return &Bot{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), max(int(cfg.RateLimit), 1)),
		retry:   cfg.Retry,
		poll:    cfg.PollTimeout,
	}, nil
}

func httpClient(proxy string, poll time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, cserrors.ConfigError(fmt.Sprintf("invalid proxy URL %q", proxy), err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	// Long polls hold the request open for the poll timeout.
	return &http.Client{Transport: transport, Timeout: poll + 15*time.Second}, nil
}

// Username returns the bot's username.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Run polls for updates and hands each one to dispatch until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context, dispatch func(context.Context, gateway.Event) error) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(b.poll.Seconds())
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	slog.Info("telegram_polling_started", slog.Int("timeout_seconds", u.Timeout))

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			ev, ok := ToEvent(update)
			if !ok {
				continue
			}
			if err := dispatch(ctx, ev); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.Warn("dispatch_failed",
					slog.Int("update_id", update.UpdateID),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Send posts text as Markdown with link previews disabled.
func (b *Bot) Send(ctx context.Context, channelID int64, text string, replyTo int64, controls render.Keyboard) (int64, error) {
	msg := tgbotapi.NewMessage(channelID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	msg.ReplyToMessageID = int(replyTo)
	if kb := keyboard(controls); kb != nil {
		msg.ReplyMarkup = kb
	}

	sentMsg, err := cserrors.RetryWithResult(ctx, b.retry, func() (tgbotapi.Message, error) {
		if err := b.limiter.Wait(ctx); err != nil {
			return tgbotapi.Message{}, err
		}
		m, err := b.api.Send(msg)
		return m, classify(err)
	})
	if err != nil {
		return 0, err
	}
	return int64(sentMsg.MessageID), nil
}

// Edit replaces the text and controls of a message.
func (b *Bot) Edit(ctx context.Context, channelID, messageID int64, text string, controls render.Keyboard) error {
	edit := tgbotapi.NewEditMessageText(channelID, int(messageID), text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = keyboard(controls)

	err := b.request(ctx, edit)
	if isNotModified(err) {
		return nil
	}
	return err
}

// Delete removes a message.
func (b *Bot) Delete(ctx context.Context, channelID, messageID int64) error {
	return b.request(ctx, tgbotapi.NewDeleteMessage(channelID, int(messageID)))
}

// Ack answers a callback query so the client stops its spinner.
func (b *Bot) Ack(ctx context.Context, callbackID string) error {
	return b.request(ctx, tgbotapi.NewCallback(callbackID, ""))
}

func (b *Bot) request(ctx context.Context, c tgbotapi.Chattable) error {
	return cserrors.Retry(ctx, b.retry, func() error {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := b.api.Request(c)
		return classify(err)
	})
}

// classify marks network failures and rate limiting as retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests {
			return cserrors.NetworkError("telegram rate limit", err).
				WithDetail("retry_after", fmt.Sprint(apiErr.RetryAfter))
		}
		return cserrors.New(cserrors.ErrCodeInvalidInput, apiErr.Message, err)
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return cserrors.New(cserrors.ErrCodeNetworkUnavailable, "telegram unreachable", err)
	}
	return cserrors.InternalError("telegram request failed", err)
}

func isNotModified(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Message, "message is not modified")
}

// slogAdapter routes the library's logging through slog at debug level.
type slogAdapter struct{}

func (slogAdapter) Println(v ...interface{}) {
	slog.Debug("telegram_api", slog.String("msg", strings.TrimSpace(fmt.Sprintln(v...))))
}

func (slogAdapter) Printf(format string, v ...interface{}) {
	slog.Debug("telegram_api", slog.String("msg", fmt.Sprintf(format, v...)))
}
