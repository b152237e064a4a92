package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m3rciful/trainerbot/core/logger"
	"github.com/m3rciful/trainerbot/core/telegram/netutil"
)

// Cycler runs one dispatch cycle.
type Cycler interface {
	RunCycle(ctx context.Context) (CycleResult, error)
}

// Run calls c.RunCycle every interval until ctx is done or a cycle fails with
// a fatal error. Transient failures are logged and retried on the next tick.
func Run(ctx context.Context, c Cycler, interval time.Duration) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	logger.Info(ctx, logger.CompDispatch, "supervisor.start",
		slog.Duration("interval", interval),
	)
	failures := 0
	for {
		if ctx.Err() != nil {
			logger.Info(ctx, logger.CompDispatch, "supervisor.stop", slog.String("reason", "context"))
			return nil
		}
		_, err := c.RunCycle(ctx)
		switch {
		case err == nil:
			failures = 0
		case ctx.Err() != nil:
			logger.Info(ctx, logger.CompDispatch, "supervisor.stop", slog.String("reason", "context"))
			return nil
		case IsFatal(err):
			logger.Error(ctx, logger.CompDispatch, "supervisor.fatal",
				slog.String("err", netutil.Redact(err)),
			)
			return err
		case errors.Is(err, ErrCycleInProgress):
		default:
			failures++
			logCycleFailure(ctx, err, failures)
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			logger.Info(ctx, logger.CompDispatch, "supervisor.stop", slog.String("reason", "context"))
			return nil
		case <-t.C:
		}
	}
}

func logCycleFailure(ctx context.Context, err error, failures int) {
	attrs := []slog.Attr{
		slog.String("status", "fail"),
		slog.String("err", netutil.Redact(err)),
		slog.Int("attempts", failures),
		slog.Bool("retryable", true),
	}
	var ce *CycleError
	if errors.As(err, &ce) {
		attrs = append(attrs,
			slog.String("op", ce.Op),
			slog.String("err_code", ce.Code()),
		)
		if ce.UpdateID != 0 {
			attrs = append(attrs, slog.Int("update_id", ce.UpdateID))
		}
	}
	logger.Warn(ctx, logger.CompDispatch, "cycle.retry", attrs...)
}
