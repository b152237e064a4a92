package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

type fakeSource struct {
	mu      sync.Mutex
	batches [][]tele.Update
	reqs    []FetchRequest
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (s *fakeSource) FetchUpdates(ctx context.Context, req FetchRequest) ([]tele.Update, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	block, entered := s.block, s.entered
	s.mu.Unlock()
	if block != nil {
		if entered != nil {
			close(entered)
		}
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	// the ack fetch and any request past the pending batch come back empty
	if req.Limit == 1 && req.Timeout == 0 {
		return nil, nil
	}
	var out []tele.Update
	for _, b := range s.batches {
		for _, u := range b {
			if u.ID >= req.Offset {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (s *fakeSource) requests() []FetchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FetchRequest(nil), s.reqs...)
}

type fakeCursor struct {
	mu    sync.Mutex
	value int
	saves []int
}

func (c *fakeCursor) Load(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, nil
}

func (c *fakeCursor) Save(_ context.Context, id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves = append(c.saves, id)
	c.value = id
	return nil
}

func textUpdate(id int, text string) tele.Update {
	return tele.Update{ID: id, Message: &tele.Message{
		Text:   text,
		Chat:   &tele.Chat{ID: 100},
		Sender: &tele.User{ID: 100, Username: "alice"},
	}}
}

func newTestDispatcher(t *testing.T, src Source, cur *fakeCursor, reg *Registry) *Dispatcher {
	t.Helper()
	d, err := New(Options{
		Source:          src,
		Cursor:          cur,
		Registry:        reg,
		LongPollTimeout: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func recordingRegistry(seen *[]int, fail func(u Update) error) *Registry {
	reg := NewRegistry()
	reg.SetTextFallback(func(_ context.Context, u Update) error {
		*seen = append(*seen, u.ID)
		if fail != nil {
			return fail(u)
		}
		return nil
	})
	return reg
}

func TestRunCycleAdvancesCursorToMaxSeen(t *testing.T) {
	src := &fakeSource{batches: [][]tele.Update{{textUpdate(6, "a"), textUpdate(7, "b"), textUpdate(9, "c")}}}
	cur := &fakeCursor{value: 5}
	var seen []int
	d := newTestDispatcher(t, src, cur, recordingRegistry(&seen, nil))

	res, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(seen) != 3 || seen[0] != 6 || seen[2] != 9 {
		t.Fatalf("handled %v", seen)
	}
	if len(cur.saves) != 1 || cur.saves[0] != 9 {
		t.Fatalf("saves = %v, want [9]", cur.saves)
	}
	if res.Handled != 3 || res.NewCursor != 9 || res.Cursor != 5 {
		t.Fatalf("result = %+v", res)
	}
	reqs := src.requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %+v", reqs)
	}
	if reqs[0].Offset != 6 || reqs[0].Limit != 100 || reqs[0].Timeout != 30*time.Second {
		t.Fatalf("fetch = %+v", reqs[0])
	}
	if reqs[1].Offset != 10 || reqs[1].Limit != 1 || reqs[1].Timeout != 0 {
		t.Fatalf("ack = %+v", reqs[1])
	}
}

func TestRunCycleEmptyBatchWritesNothing(t *testing.T) {
	src := &fakeSource{}
	cur := &fakeCursor{value: 12}
	var seen []int
	d := newTestDispatcher(t, src, cur, recordingRegistry(&seen, nil))

	res, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(cur.saves) != 0 {
		t.Fatalf("saves = %v", cur.saves)
	}
	if len(src.requests()) != 1 {
		t.Fatalf("ack sent for empty batch: %+v", src.requests())
	}
	if res.NewCursor != 12 {
		t.Fatalf("NewCursor = %d", res.NewCursor)
	}
}

func TestRunCycleFailureKeepsCursorAndRedelivers(t *testing.T) {
	src := &fakeSource{batches: [][]tele.Update{{textUpdate(1, "a"), textUpdate(2, "b"), textUpdate(3, "c")}}}
	cur := &fakeCursor{}
	var seen []int
	failing := true
	d := newTestDispatcher(t, src, cur, recordingRegistry(&seen, func(u Update) error {
		if u.ID == 2 && failing {
			return errors.New("store down")
		}
		return nil
	}))

	_, err := d.RunCycle(context.Background())
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want CycleError", err)
	}
	if ce.UpdateID != 2 || ce.Op != "dispatch" || !ce.Retryable() {
		t.Fatalf("cycle error = %+v", ce)
	}
	if len(cur.saves) != 0 {
		t.Fatalf("cursor saved after failure: %v", cur.saves)
	}
	if len(src.requests()) != 1 {
		t.Fatal("ack sent after failed batch")
	}

	failing = false
	res, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	want := []int{1, 2, 1, 2, 3}
	if len(seen) != len(want) {
		t.Fatalf("handled %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("handled %v, want %v", seen, want)
		}
	}
	if res.Replayed != 1 {
		t.Fatalf("Replayed = %d, want 1", res.Replayed)
	}
	if len(cur.saves) != 1 || cur.saves[0] != 3 {
		t.Fatalf("saves = %v", cur.saves)
	}
}

func TestRunCycleSkipDoesNotAbort(t *testing.T) {
	src := &fakeSource{batches: [][]tele.Update{{textUpdate(4, "a"), textUpdate(5, "b")}}}
	cur := &fakeCursor{value: 3}
	var seen []int
	d := newTestDispatcher(t, src, cur, recordingRegistry(&seen, func(u Update) error {
		if u.ID == 4 {
			return Skip(errors.New("user not registered"))
		}
		return nil
	}))

	res, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Skipped != 1 || res.Handled != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(cur.saves) != 1 || cur.saves[0] != 5 {
		t.Fatalf("saves = %v", cur.saves)
	}
}

func TestRunCyclePanicAbortsCycle(t *testing.T) {
	src := &fakeSource{batches: [][]tele.Update{{textUpdate(1, "boom")}}}
	cur := &fakeCursor{}
	var seen []int
	d := newTestDispatcher(t, src, cur, recordingRegistry(&seen, func(Update) error {
		panic("nil map")
	}))

	_, err := d.RunCycle(context.Background())
	var p *PanicError
	if !errors.As(err, &p) {
		t.Fatalf("err = %v, want PanicError", err)
	}
	if len(p.Stack) == 0 {
		t.Fatal("panic stack not captured")
	}
	if len(cur.saves) != 0 {
		t.Fatalf("saves = %v", cur.saves)
	}
	var ce *CycleError
	if errors.As(err, &ce) && ce.Code() != "PANIC" {
		t.Fatalf("code = %s", ce.Code())
	}
}

func TestRunCycleIgnoresStaleIDs(t *testing.T) {
	src := &fakeSource{batches: [][]tele.Update{{textUpdate(8, "new")}}}
	cur := &fakeCursor{value: 7}
	var seen []int
	d := newTestDispatcher(t, src, cur, recordingRegistry(&seen, nil))

	// a source that ignores the offset still must not re-handle id 7
	d.opts.Source = sourceFunc(func(ctx context.Context, req FetchRequest) ([]tele.Update, error) {
		if req.Limit == 1 {
			return nil, nil
		}
		return []tele.Update{textUpdate(7, "old"), textUpdate(8, "new")}, nil
	})
	if _, err := d.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(seen) != 1 || seen[0] != 8 {
		t.Fatalf("handled %v", seen)
	}
}

type sourceFunc func(ctx context.Context, req FetchRequest) ([]tele.Update, error)

func (f sourceFunc) FetchUpdates(ctx context.Context, req FetchRequest) ([]tele.Update, error) {
	return f(ctx, req)
}

func TestRunCycleRejectsConcurrentCycle(t *testing.T) {
	src := &fakeSource{block: make(chan struct{}), entered: make(chan struct{})}
	cur := &fakeCursor{}
	var seen []int
	d := newTestDispatcher(t, src, cur, recordingRegistry(&seen, nil))

	done := make(chan error, 1)
	go func() {
		_, err := d.RunCycle(context.Background())
		done <- err
	}()
	<-src.entered

	if _, err := d.RunCycle(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("err = %v, want ErrCycleInProgress", err)
	}
	close(src.block)
	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}
}

func TestRunCycleUnauthorizedIsFatal(t *testing.T) {
	src := &fakeSource{err: tele.ErrUnauthorized}
	d := newTestDispatcher(t, src, &fakeCursor{}, NewRegistry())

	_, err := d.RunCycle(context.Background())
	if !IsFatal(err) {
		t.Fatalf("err = %v, want fatal", err)
	}
}

func TestRunCycleNetworkErrorIsTransient(t *testing.T) {
	src := &fakeSource{err: context.DeadlineExceeded}
	d := newTestDispatcher(t, src, &fakeCursor{}, NewRegistry())

	_, err := d.RunCycle(context.Background())
	if err == nil || IsFatal(err) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestUnknownCallbackIsSkipped(t *testing.T) {
	src := &fakeSource{batches: [][]tele.Update{{{
		ID: 1,
		Callback: &tele.Callback{
			ID:      "cb",
			Data:    "gone|x",
			Sender:  &tele.User{ID: 5},
			Message: &tele.Message{Chat: &tele.Chat{ID: 5}},
		},
	}}}}
	cur := &fakeCursor{}
	d := newTestDispatcher(t, src, cur, NewRegistry())

	res, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Skipped != 1 || len(cur.saves) != 1 {
		t.Fatalf("result = %+v saves = %v", res, cur.saves)
	}
}

type scriptedCycler struct {
	errs  []error
	calls int
}

func (c *scriptedCycler) RunCycle(context.Context) (CycleResult, error) {
	c.calls++
	if c.calls <= len(c.errs) {
		return CycleResult{}, c.errs[c.calls-1]
	}
	return CycleResult{}, nil
}

func TestRunStopsOnFatal(t *testing.T) {
	fatal := &CycleError{Kind: KindFatal, Op: "fetch", Err: tele.ErrUnauthorized}
	c := &scriptedCycler{errs: []error{
		&CycleError{Kind: KindTransient, Op: "fetch", Err: errors.New("reset")},
		fatal,
	}}
	err := Run(context.Background(), c, time.Millisecond)
	if !errors.Is(err, fatal) {
		t.Fatalf("Run = %v, want fatal error", err)
	}
	if c.calls != 2 {
		t.Fatalf("calls = %d", c.calls)
	}
}

func TestRunReturnsNilOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &scriptedCycler{}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if err := Run(ctx, c, time.Millisecond); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if c.calls == 0 {
		t.Fatal("no cycle ran")
	}
}
