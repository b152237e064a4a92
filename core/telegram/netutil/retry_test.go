package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestClassify(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), "timeout"},
		{"dial", fmt.Errorf("telebot: %w", dial), "dial"},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.telegram.org"}, "dns"},
		{"unauthorized", tele.ErrUnauthorized, "http_4xx"},
		{"server", errors.New("telegram: Bad Gateway (502)"), "http_5xx"},
		{"other", errors.New("boom"), "unknown"},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("%s: Classify = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	if !ShouldRetry(&net.OpError{Op: "dial", Err: errors.New("refused")}) {
		t.Error("dial errors should be retried")
	}
	if !ShouldRetry(errors.New("telegram: Internal Server Error (500)")) {
		t.Error("5xx should be retried")
	}
	if ShouldRetry(tele.ErrUnauthorized) {
		t.Error("401 must not be retried")
	}
	if ShouldRetry(context.Canceled) {
		t.Error("cancellation must not be retried")
	}
}

func TestIsAuthFailure(t *testing.T) {
	if !IsAuthFailure(fmt.Errorf("getUpdates: %w", tele.ErrUnauthorized)) {
		t.Error("wrapped 401 not detected")
	}
	if !IsAuthFailure(tele.ErrNotFound) {
		t.Error("404 not detected")
	}
	if IsAuthFailure(errors.New("telegram: Bad Request: chat not found (400)")) {
		t.Error("400 is not an auth failure")
	}
}

func TestRedact(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AAbb-cc_dd/getUpdates": EOF`)
	got := Redact(err)
	want := `Post "https://api.telegram.org/bot<redacted>/getUpdates": EOF`
	if got != want {
		t.Fatalf("Redact = %q", got)
	}
}

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"blocked", tele.ErrBlockedByUser, true},
		{"chat not found", fmt.Errorf("send: %w", tele.ErrChatNotFound), true},
		{"query too old", tele.ErrQueryTooOld, true},
		{"unknown 400", errors.New("telegram: Bad Request: message is too long (400)"), true},
		{"unauthorized", tele.ErrUnauthorized, false},
		{"rate limited", errors.New("telegram: Too Many Requests: retry after 3 (429)"), false},
		{"server", errors.New("telegram: Bad Gateway (502)"), false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := IsPermanent(tc.err); got != tc.want {
			t.Errorf("%s: IsPermanent = %v, want %v", tc.name, got, tc.want)
		}
	}
}
