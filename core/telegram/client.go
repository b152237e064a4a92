package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/trainerbot/core/dispatch"
	"github.com/m3rciful/trainerbot/core/logger"
	"github.com/m3rciful/trainerbot/core/telegram/netutil"
	"github.com/m3rciful/trainerbot/core/telegram/sender"
)

// allowedUpdates lists the update types the bot asks Telegram for.
var allowedUpdates = []string{"message", "callback_query"}

// Options configures a Client.
type Options struct {
	Token           string
	APIURL          string
	LongPollTimeout time.Duration
	HTTPClient      *http.Client
	Sender          *sender.Sender
	// Offline skips the getMe call made when the bot is built.
	Offline bool
}

// Client is the bot's only path to the Bot API. It fetches updates for the
// dispatcher and sends replies through the retrying sender.
type Client struct {
	bot    *tele.Bot
	sender *sender.Sender
}

// NewClient builds the telebot bot. Unless opts.Offline is set the token is
// checked with getMe.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram: empty token")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = BuildHTTPClient(opts.LongPollTimeout)
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   opts.Token,
		URL:     opts.APIURL,
		Client:  hc,
		Offline: opts.Offline,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: new bot: %w", err)
	}
	snd := opts.Sender
	if snd == nil {
		snd = sender.New(sender.Options{})
	}
	return &Client{bot: bot, sender: snd}, nil
}

// raw calls method and stops waiting when ctx is done. telebot's Raw takes no
// context, so an abandoned request keeps its goroutine until the HTTP client
// timeout (long poll + clientHeadroom) ends it; the buffered channel lets it
// exit without a reader.
func (c *Client) raw(ctx context.Context, method string, payload any) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := c.bot.Raw(method, payload)
		ch <- result{data, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.data, r.err
	}
}

// FetchUpdates calls getUpdates.
func (c *Client) FetchUpdates(ctx context.Context, req dispatch.FetchRequest) ([]tele.Update, error) {
	params := map[string]any{
		"offset":          req.Offset,
		"limit":           req.Limit,
		"timeout":         int(req.Timeout / time.Second),
		"allowed_updates": allowedUpdates,
	}
	start := time.Now()
	data, err := c.raw(ctx, "getUpdates", params)
	if err != nil {
		logger.Debug(ctx, logger.CompTGWire, "getUpdates",
			slog.String("status", "fail"),
			slog.Int("offset", req.Offset),
			slog.String("err_kind", netutil.Classify(err)),
			slog.Duration("duration", logger.Took(start)),
		)
		return nil, err
	}
	var resp struct {
		Result []tele.Update `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("telegram: decode getUpdates: %w", err)
	}
	if len(resp.Result) > 0 || logger.ShouldSampleDebug() {
		logger.Debug(ctx, logger.CompTGWire, "getUpdates",
			slog.String("status", "ok"),
			slog.Int("offset", req.Offset),
			slog.Int("fetched", len(resp.Result)),
			slog.Duration("duration", logger.Took(start)),
		)
	}
	return resp.Result, nil
}

// SendPlain sends text as is.
func (c *Client) SendPlain(ctx context.Context, chatID int64, text string) error {
	return c.send(ctx, chatID, text, &tele.SendOptions{})
}

// SendWithKeyboard sends Markdown text with an inline or reply keyboard attached.
func (c *Client) SendWithKeyboard(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) error {
	return c.send(ctx, chatID, text, &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: markup})
}

func (c *Client) send(ctx context.Context, chatID int64, text string, opts *tele.SendOptions) error {
	return c.sender.Do(ctx, "send", "sendMessage", func() error {
		_, err := c.bot.Send(tele.ChatID(chatID), text, opts)
		return err
	})
}

// AckCallback answers a callback query so the client stops its spinner.
func (c *Client) AckCallback(ctx context.Context, callbackID string) error {
	if callbackID == "" {
		return nil
	}
	return c.sender.Do(ctx, "ack", "answerCallbackQuery", func() error {
		return c.bot.Respond(&tele.Callback{ID: callbackID})
	})
}

// SetCommands publishes the command menu.
func (c *Client) SetCommands(ctx context.Context, cmds []tele.Command) error {
	if len(cmds) == 0 {
		return nil
	}
	return c.sender.Do(ctx, "commands", "setMyCommands", func() error {
		return c.bot.SetCommands(cmds)
	})
}

// DeleteWebhook removes a configured webhook so getUpdates is allowed.
// Pending updates are kept.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := c.raw(ctx, "deleteWebhook", map[string]any{"drop_pending_updates": false})
	if err != nil {
		return fmt.Errorf("telegram: deleteWebhook: %w", err)
	}
	logger.Info(ctx, logger.CompTG, "webhook.deleted")
	return nil
}
