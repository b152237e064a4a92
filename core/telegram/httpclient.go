package telegram

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/trainerbot/core/telegram/netutil"
)

var errNoReplayBody = errors.New("telegram: request body cannot be replayed")

const (
	dialTimeout      = 5 * time.Second
	tlsTimeout       = 5 * time.Second
	idleConnTimeout  = 30 * time.Second
	keepAlive        = 30 * time.Second
	headerHeadroom   = 5 * time.Second
	clientHeadroom   = 15 * time.Second
	dialRetries      = 2
	dialRetryBackoff = 500 * time.Millisecond
)

// BuildHTTPClient returns the client shared by every Bot API call.
// Timeouts leave room for a getUpdates long poll of longPoll.
func BuildHTTPClient(longPoll time.Duration) *http.Client {
	if longPoll < 0 {
		longPoll = 0
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsTimeout,
		ResponseHeaderTimeout: longPoll + headerHeadroom,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   longPoll + clientHeadroom,
		Transport: &dialRetryTransport{base: transport, retries: dialRetries, backoff: dialRetryBackoff},
	}
}

// dialRetryTransport resends a request only when the connection could not be opened,
// so a request the server may have seen is never sent twice at this layer.
type dialRetryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *dialRetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		r := req
		if attempt > 0 {
			r = req.Clone(req.Context())
			if req.Body != nil {
				if req.GetBody == nil {
					return nil, errNoReplayBody
				}
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				r.Body = body
			}
		}
		resp, err := t.base.RoundTrip(r)
		if err == nil || !netutil.IsDialError(err) || attempt >= t.retries {
			return resp, err
		}
		timer := time.NewTimer(t.backoff * time.Duration(attempt+1))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}
