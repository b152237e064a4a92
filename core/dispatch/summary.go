package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/m3rciful/trainerbot/core/logger"
	"github.com/m3rciful/trainerbot/core/telegram/netutil"
)

type sendCounterKey struct{}

type sendCounter struct {
	messages atomic.Int32
	keyboard atomic.Bool
}

func withSendCounter(ctx context.Context) (context.Context, *sendCounter) {
	c := &sendCounter{}
	return context.WithValue(ctx, sendCounterKey{}, c), c
}

// NoteSend records a reply sent while handling the update in ctx.
// Outside of a dispatch it does nothing.
func NoteSend(ctx context.Context, withKeyboard bool) {
	c, ok := ctx.Value(sendCounterKey{}).(*sendCounter)
	if !ok {
		return
	}
	c.messages.Add(1)
	if withKeyboard {
		c.keyboard.Store(true)
	}
}

// logHandled writes the one line every dispatched update gets.
func logHandled(ctx context.Context, u Update, replay bool, c *sendCounter, took time.Duration, err error) {
	status, outcome, lvl := "ok", "ok", slog.LevelInfo
	switch {
	case err == nil:
	case errors.Is(err, ErrSkipUpdate):
		status, outcome, lvl = "skip", "skip", slog.LevelWarn
	default:
		status, outcome, lvl = "fail", "fail", slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("kind", u.Kind.String()),
		slog.String("outcome", outcome),
		slog.Int("messages", int(c.messages.Load())),
		slog.Bool("kb", c.keyboard.Load()),
		slog.Duration("duration", took),
	}
	if replay {
		attrs = append(attrs, slog.Bool("replay", true))
	}
	if u.Handle != "" {
		attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Handle, 64)))
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(netutil.Redact(err), 256)),
			slog.String("err_code", errorCode(err)),
		)
		var p *PanicError
		if errors.As(err, &p) {
			attrs = append(attrs, slog.String("stack", string(p.Stack)))
		}
	}
	logger.LogEvent(ctx, logger.Component(logger.CompDispatch), lvl, "update.handled", attrs...)
}
