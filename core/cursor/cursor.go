// Package cursor persists the id of the last fully handled Telegram update.
//
// A stored value that is missing, empty, negative or not a number reads as 0,
// and the 0 is written back straight away so the next read is clean. Stores
// refuse to move the cursor backwards.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/trainerbot/core/config"
	"github.com/m3rciful/trainerbot/core/logger"
)

// ErrCursorRegression is returned by Save when the new value is lower than the stored one.
var ErrCursorRegression = errors.New("cursor: refusing to move backwards")

// Store loads and saves the cursor.
type Store interface {
	Load(ctx context.Context) (int, error)
	Save(ctx context.Context, id int) error
}

// Open builds the store selected by cfg.Backend.
func Open(cfg config.CursorConfig) (Store, error) {
	switch cfg.Backend {
	case config.CursorBackendBolt:
		return OpenBolt(cfg.Path)
	case config.CursorBackendFile, "":
		return NewFileStore(cfg.Path), nil
	default:
		return nil, fmt.Errorf("cursor: unknown backend %q", cfg.Backend)
	}
}

// decode parses a stored value. ok is false when the value must be healed.
func decode(raw []byte) (id int, ok bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func encode(id int) []byte {
	return []byte(strconv.Itoa(id))
}

func logHealed(ctx context.Context, backend string, raw []byte) {
	logger.Warn(ctx, logger.CompCursor, "cursor.heal",
		slog.String("backend", backend),
		slog.String("raw", logger.SanitizeLimit(string(raw), 32)),
		slog.Int("cursor", 0),
	)
}

func checkForward(current, next int) error {
	if next < current {
		return fmt.Errorf("%w: %d -> %d", ErrCursorRegression, current, next)
	}
	return nil
}
