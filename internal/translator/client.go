package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m3rciful/trainerbot/core/logger"
)

// DefaultEndpoint is the global Translator v3 endpoint.
const DefaultEndpoint = "https://api.cognitive.microsofttranslator.com"

// ErrNoTranslation is returned when the service answers without a translation.
var ErrNoTranslation = errors.New("translator: empty translation")

// TokenSource supplies bearer tokens.
type TokenSource interface {
	Token(ctx context.Context) ([]byte, error)
}

// Client calls the Translator v3 translate operation.
type Client struct {
	endpoint string
	tokens   TokenSource
	http     *http.Client
}

// NewClient returns a client for endpoint, or DefaultEndpoint when it is empty.
func NewClient(endpoint string, tokens TokenSource, hc *http.Client) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{endpoint: strings.TrimRight(endpoint, "/"), tokens: tokens, http: hc}
}

type translateItem struct {
	Text string `json:"Text"`
}

type translateResult struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

// Translate returns text translated from one language code into another.
func (c *Client) Translate(ctx context.Context, text, from, to string) (string, error) {
	start := time.Now()
	out, err := c.translate(ctx, text, from, to)
	attrs := []slog.Attr{
		slog.String("lang", from+"->"+to),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		logger.Warn(ctx, logger.CompTranslator, "translate", append(attrs, slog.String("err", err.Error()))...)
		return "", err
	}
	logger.Debug(ctx, logger.CompTranslator, "translate", attrs...)
	return out, nil
}

func (c *Client) translate(ctx context.Context, text, from, to string) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal([]translateItem{{Text: text}})
	if err != nil {
		return "", err
	}
	q := url.Values{"api-version": {"3.0"}, "to": {to}}
	if from != "" {
		q.Set("from", from)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/translate?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("translator: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+string(token))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("translator: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("translator: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translator: status %d: %s", resp.StatusCode, logger.SanitizeLimit(string(raw), 200))
	}
	var results []translateResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return "", fmt.Errorf("translator: decode response: %w", err)
	}
	if len(results) == 0 || len(results[0].Translations) == 0 || results[0].Translations[0].Text == "" {
		return "", ErrNoTranslation
	}
	return results[0].Translations[0].Text, nil
}
