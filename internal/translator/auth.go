// Package translator talks to Microsoft Translator: it caches access tokens
// from the Cognitive Services token service and requests translations with them.
package translator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/m3rciful/trainerbot/core/logger"
)

// DefaultIssuerURL issues access tokens for a Translator subscription.
const DefaultIssuerURL = "https://api.cognitive.microsoft.com/sts/v1.0/issueToken"

// TokenReuse is how long a fetched token is handed out before a new one is
// requested. Tokens live for ten minutes upstream.
const TokenReuse = 5 * time.Minute

const subscriptionHeader = "Ocp-Apim-Subscription-Key"

// AuthServiceError is returned when the token service answers with a non-200 status.
type AuthServiceError struct {
	StatusCode int
	Body       string
}

func (e *AuthServiceError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("translator auth: token service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("translator auth: token service returned %d: %s", e.StatusCode, e.Body)
}

// AuthClient fetches and caches access tokens. It is safe for concurrent use;
// callers racing on an expired token share one fetch.
type AuthClient struct {
	secret    string
	issuerURL string
	http      *http.Client
	now       func() time.Time

	mu         sync.Mutex
	token      []byte
	validUntil time.Time
}

// AuthOption customizes an AuthClient.
type AuthOption func(*AuthClient)

// WithIssuerURL overrides the token endpoint.
func WithIssuerURL(u string) AuthOption {
	return func(c *AuthClient) {
		if u != "" {
			c.issuerURL = u
		}
	}
}

// WithHTTPClient sets the HTTP client used for token requests.
func WithHTTPClient(hc *http.Client) AuthOption {
	return func(c *AuthClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AuthOption {
	return func(c *AuthClient) {
		if now != nil {
			c.now = now
		}
	}
}

// NewAuthClient returns a client for the subscription key secret.
func NewAuthClient(secret string, opts ...AuthOption) *AuthClient {
	c := &AuthClient{
		secret:    secret,
		issuerURL: DefaultIssuerURL,
		http:      &http.Client{Timeout: 10 * time.Second},
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Token returns the cached token, fetching a new one when there is none or
// the reuse window has passed. Failed fetches leave the cache untouched.
func (c *AuthClient) Token(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != nil && !c.now().After(c.validUntil) {
		return c.token, nil
	}
	start := time.Now()
	tok, err := c.fetch(ctx)
	if err != nil {
		logger.Warn(ctx, logger.CompTranslator, "token.fetch",
			slog.String("status", "fail"),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return nil, err
	}
	c.token = tok
	c.validUntil = c.now().Add(TokenReuse)
	logger.Debug(ctx, logger.CompTranslator, "token.fetch",
		slog.String("status", "ok"),
		slog.Duration("duration", logger.Took(start)),
	)
	return c.token, nil
}

func (c *AuthClient) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.issuerURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("translator auth: %w", err)
	}
	req.Header.Set(subscriptionHeader, c.secret)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("translator auth: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("translator auth: read token: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &AuthServiceError{StatusCode: resp.StatusCode, Body: logger.SanitizeLimit(string(body), 200)}
	}
	return body, nil
}
