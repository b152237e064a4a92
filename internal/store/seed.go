package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/trainerbot/core/logger"
)

// SeedLanguages upserts langs in order so the picker matches the configured
// list. Languages missing from langs are left in place because users may
// still reference them.
func SeedLanguages(ctx context.Context, db *sqlx.DB, langs []Language) error {
	if len(langs) == 0 {
		langs = DefaultLanguages
	}
	start := time.Now()
	const q = `INSERT INTO languages (code, name, position) VALUES (:code, :name, :position)
		ON CONFLICT (code) DO UPDATE SET name = excluded.name, position = excluded.position`
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed languages: %w", err)
	}
	for _, l := range withPositions(langs) {
		if l.Code == "" || l.Name == "" {
			_ = tx.Rollback()
			return fmt.Errorf("seed languages: empty code or name in %+v", l)
		}
		if _, err := tx.NamedExecContext(ctx, q, l); err != nil {
			_ = tx.Rollback()
			logger.Error(ctx, logger.CompSeed, "seed.languages",
				slog.String("status", "fail"),
				slog.String("lang", l.Code),
				slog.String("err", err.Error()),
			)
			return fmt.Errorf("seed language %s: %w", l.Code, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed languages: %w", err)
	}
	logger.Info(ctx, logger.CompSeed, "seed.languages",
		slog.String("status", "ok"),
		slog.Int("languages", len(langs)),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}
