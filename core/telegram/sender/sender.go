// Package sender runs outbound Telegram calls with bounded retries.
//
// Calls are synchronous: the dispatcher must know whether a reply went out
// before it counts an update as handled.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/m3rciful/trainerbot/core/logger"
	"github.com/m3rciful/trainerbot/core/telegram/netutil"
)

// Options controls retries of a single call.
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on one call including retries.
	MaxDuration time.Duration
}

// Sender executes calls and retries transient failures.
type Sender struct {
	opts  Options
	sleep func(context.Context, time.Duration) error
	fails atomic.Uint64
}

// New returns a Sender, filling zero options with defaults.
func New(opts Options) *Sender {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 15 * time.Second
	}
	return &Sender{opts: opts, sleep: sleepCtx}
}

// Failures returns how many calls ended in error.
func (s *Sender) Failures() uint64 {
	return s.fails.Load()
}

// Do runs fn until it succeeds, fails permanently or the retry budget is spent.
// action and endpoint only label log lines.
func (s *Sender) Do(ctx context.Context, action, endpoint string, fn func() error) error {
	if fn == nil {
		return errors.New("sender: nil call")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := s.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				logger.Info(ctx, logger.CompSender, "send.retry.success", callAttrs(action, endpoint,
					slog.Int("attempts", attempt),
					slog.Duration("duration", logger.Took(start)),
				)...)
			}
			return nil
		}
		if attempt == attempts {
			break
		}

		delay, retry := s.backoff(err, attempt)
		if !retry {
			break
		}
		logger.Warn(ctx, logger.CompSender, "send.retry", callAttrs(action, endpoint,
			slog.Int("attempts", attempt),
			slog.Duration("backoff", delay),
			slog.String("err_kind", netutil.Classify(err)),
			slog.String("err", netutil.Redact(err)),
		)...)
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			break
		}
	}

	s.fails.Add(1)
	logger.Error(ctx, logger.CompSender, "send.fail", callAttrs(action, endpoint,
		slog.String("status", "fail"),
		slog.String("err_kind", netutil.Classify(err)),
		slog.Int("http_code", netutil.HTTPStatus(err)),
		slog.String("err", netutil.Redact(err)),
		slog.Duration("duration", logger.Took(start)),
	)...)
	return err
}

func (s *Sender) backoff(err error, attempt int) (time.Duration, bool) {
	if secs, ok := netutil.RetryAfter(err); ok {
		return time.Duration(max(secs, 1)) * time.Second, true
	}
	if netutil.ShouldRetry(err) {
		return s.opts.RetryBackoff * time.Duration(attempt), true
	}
	return 0, false
}

func callAttrs(action, endpoint string, extra ...slog.Attr) []slog.Attr {
	attrs := []slog.Attr{slog.String("op", action)}
	if endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", endpoint))
	}
	return append(attrs, extra...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
