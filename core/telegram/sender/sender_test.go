package sender

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func newTestSender(retries int) (*Sender, *[]time.Duration) {
	s := New(Options{MaxRetries: retries, RetryBackoff: 10 * time.Millisecond, MaxDuration: time.Second})
	var slept []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return s, &slept
}

func TestDoRetriesTransientErrors(t *testing.T) {
	s, slept := newTestSender(2)
	calls := 0
	err := s.Do(context.Background(), "sendMessage", "text", func() error {
		calls++
		if calls < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(*slept) != 2 || (*slept)[1] != 20*time.Millisecond {
		t.Fatalf("backoff = %v", *slept)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	s, _ := newTestSender(3)
	calls := 0
	err := s.Do(context.Background(), "sendMessage", "", func() error {
		calls++
		return tele.ErrUnauthorized
	})
	if !errors.Is(err, tele.ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if s.Failures() != 1 {
		t.Fatalf("failures = %d", s.Failures())
	}
}

func TestDoGivesUpAfterBudget(t *testing.T) {
	s, _ := newTestSender(1)
	calls := 0
	err := s.Do(context.Background(), "answerCallbackQuery", "", func() error {
		calls++
		return errors.New("telegram: Bad Gateway (502)")
	})
	if err == nil || calls != 2 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}
