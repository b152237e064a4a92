// Package dispatch fetches Telegram updates after the persisted cursor, routes
// each one to its handler and advances the cursor once the batch is handled.
//
// Delivery is at-least-once: when a handler fails, the cycle stops without
// saving the cursor, so the next cycle sees the whole batch again, including
// the updates that were already handled.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/trainerbot/core/cursor"
	"github.com/m3rciful/trainerbot/core/logger"
	"github.com/m3rciful/trainerbot/core/telegram/netutil"
)

// FetchRequest is one getUpdates call.
type FetchRequest struct {
	Offset  int
	Limit   int
	Timeout time.Duration
}

// Source returns updates with id >= Offset in ascending order.
type Source interface {
	FetchUpdates(ctx context.Context, req FetchRequest) ([]tele.Update, error)
}

// Options configures a Dispatcher.
type Options struct {
	Source   Source
	Cursor   cursor.Store
	Registry *Registry

	BatchLimit      int
	LongPollTimeout time.Duration
	// SkipAck disables the confirming fetch after a batch is persisted.
	SkipAck bool
	// ReplayWindow is how long handled ids are remembered for replay logging.
	ReplayWindow time.Duration
}

// CycleResult summarizes one RunCycle call.
type CycleResult struct {
	CycleID  string
	Cursor   int
	Fetched  int
	Handled  int
	Skipped  int
	Replayed int
	// NewCursor equals Cursor unless the cycle persisted a new value.
	NewCursor int
}

// Dispatcher runs dispatch cycles. Only one cycle may run at a time.
type Dispatcher struct {
	opts    Options
	replay  *replayTracker
	running atomic.Bool
}

// New validates opts and returns a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	switch {
	case opts.Source == nil:
		return nil, errors.New("dispatch: nil source")
	case opts.Cursor == nil:
		return nil, errors.New("dispatch: nil cursor store")
	case opts.Registry == nil:
		return nil, errors.New("dispatch: nil registry")
	}
	if opts.BatchLimit <= 0 || opts.BatchLimit > 100 {
		opts.BatchLimit = 100
	}
	replay, err := newReplayTracker(opts.ReplayWindow)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{opts: opts, replay: replay}, nil
}

// Close releases the replay cache.
func (d *Dispatcher) Close() {
	d.replay.Close()
}

// RunCycle loads the cursor, fetches and dispatches the next batch and, if every
// update was handled or skipped, persists the highest id seen.
func (d *Dispatcher) RunCycle(ctx context.Context) (CycleResult, error) {
	if !d.running.CompareAndSwap(false, true) {
		return CycleResult{}, ErrCycleInProgress
	}
	defer d.running.Store(false)

	res := CycleResult{CycleID: uuid.NewString()}
	ctx = logger.WithCycle(ctx, res.CycleID)
	start := time.Now()

	cur, err := d.opts.Cursor.Load(ctx)
	if err != nil {
		return res, &CycleError{Kind: KindTransient, Op: "cursor.load", Err: err}
	}
	res.Cursor, res.NewCursor = cur, cur

	updates, err := d.opts.Source.FetchUpdates(ctx, FetchRequest{
		Offset:  cur + 1,
		Limit:   d.opts.BatchLimit,
		Timeout: d.opts.LongPollTimeout,
	})
	if err != nil {
		return res, Classify("fetch", 0, err)
	}
	res.Fetched = len(updates)
	if len(updates) == 0 {
		if logger.ShouldSampleDebug() {
			logger.Debug(ctx, logger.CompDispatch, "cycle.empty", slog.Int("cursor", cur))
		}
		return res, nil
	}

	maxSeen := cur
	for _, raw := range updates {
		if err := ctx.Err(); err != nil {
			return res, &CycleError{Kind: KindTransient, Op: "dispatch", Err: err}
		}
		if raw.ID <= cur {
			logger.Warn(ctx, logger.CompDispatch, "update.stale",
				slog.Int("update_id", raw.ID),
				slog.Int("cursor", cur),
			)
			continue
		}
		u := FromTele(raw)
		replay := d.replay.Seen(u.ID)
		if replay {
			res.Replayed++
		}
		if err := d.dispatch(ctx, u, replay); err != nil {
			if !errors.Is(err, ErrSkipUpdate) {
				d.logCycle(ctx, res, "fail", start, err)
				return res, Classify("dispatch", u.ID, err)
			}
			res.Skipped++
		} else {
			res.Handled++
		}
		d.replay.MarkHandled(u.ID)
		maxSeen = max(maxSeen, u.ID)
	}

	if maxSeen > cur {
		if err := d.opts.Cursor.Save(ctx, maxSeen); err != nil {
			d.logCycle(ctx, res, "fail", start, err)
			return res, &CycleError{Kind: KindTransient, Op: "cursor.save", Err: err}
		}
		res.NewCursor = maxSeen
	}
	if !d.opts.SkipAck && maxSeen > cur {
		d.acknowledge(ctx, maxSeen)
	}
	d.logCycle(ctx, res, "ok", start, nil)
	return res, nil
}

// dispatch runs the handler for u, turning a panic into an error.
func (d *Dispatcher) dispatch(ctx context.Context, u Update, replay bool) (err error) {
	name, h := d.opts.Registry.Resolve(u)
	ctx = logger.WithRID(ctx, logger.BuildRID(u.ID, u.ChatID, u.UserID))
	ctx = logger.WithUpdateMeta(ctx, u.ID, u.UserID, u.ChatID)
	ctx = logger.WithHandler(ctx, name)
	ctx, counter := withSendCounter(ctx)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
		logHandled(ctx, u, replay, counter, logger.Took(start), err)
	}()
	if h == nil {
		return nil
	}
	return h(ctx, u)
}

// acknowledge confirms everything up to maxSeen upstream. Whatever it returns is
// discarded; those updates come back on the next cycle.
func (d *Dispatcher) acknowledge(ctx context.Context, maxSeen int) {
	_, err := d.opts.Source.FetchUpdates(ctx, FetchRequest{Offset: maxSeen + 1, Limit: 1})
	if err != nil {
		logger.Warn(ctx, logger.CompDispatch, "cycle.ack",
			slog.String("status", "fail"),
			slog.Int("offset", maxSeen+1),
			slog.String("err_kind", netutil.Classify(err)),
			slog.String("err", netutil.Redact(err)),
		)
	}
}

func (d *Dispatcher) logCycle(ctx context.Context, res CycleResult, status string, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.Int("cursor", res.Cursor),
		slog.Int("max_seen", res.NewCursor),
		slog.Int("fetched", res.Fetched),
		slog.Int("handled", res.Handled),
		slog.Int("skipped", res.Skipped),
		slog.Duration("duration", logger.Took(start)),
	}
	if res.Replayed > 0 {
		attrs = append(attrs, slog.Int("replay", res.Replayed))
	}
	lvl := slog.LevelInfo
	if err != nil {
		lvl = slog.LevelError
		attrs = append(attrs, slog.String("err", netutil.Redact(err)))
	}
	logger.LogEvent(ctx, logger.Component(logger.CompDispatch), lvl, "cycle.done", attrs...)
}

func (r CycleResult) String() string {
	return fmt.Sprintf("cycle %s: cursor %d -> %d, fetched %d, handled %d, skipped %d",
		r.CycleID, r.Cursor, r.NewCursor, r.Fetched, r.Handled, r.Skipped)
}
