// Package app wires configuration, storage, the Telegram client and the
// trainer handlers into a runnable bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/trainerbot/core/bootstrap"
	"github.com/m3rciful/trainerbot/core/cursor"
	"github.com/m3rciful/trainerbot/core/dispatch"
	"github.com/m3rciful/trainerbot/core/logger"
	"github.com/m3rciful/trainerbot/core/telegram"
	"github.com/m3rciful/trainerbot/core/telegram/netutil"
	"github.com/m3rciful/trainerbot/core/telegram/sender"
	"github.com/m3rciful/trainerbot/internal/store"
	"github.com/m3rciful/trainerbot/internal/trainer"
	"github.com/m3rciful/trainerbot/internal/translator"
)

// App is a bootstrapped trainer bot.
type App struct {
	cfg        *Config
	db         *sqlx.DB
	cursor     cursor.Store
	client     *telegram.Client
	registry   *dispatch.Registry
	dispatcher *dispatch.Dispatcher
}

// Bootstrap runs the shared bootstrap pipeline and builds every component.
func Bootstrap(ctx context.Context, cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
		Seeders: []bootstrap.Seeder{bootstrap.SeederFunc(func(ctx context.Context, db *sqlx.DB) error {
			return store.SeedLanguages(ctx, db, cfg.Trainer.Languages)
		})},
	})
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, db: res.DB}
	if err := a.build(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.cfg

	var backend trainer.Backend
	if a.db != nil {
		backend = store.NewSQL(a.db)
	} else {
		backend = store.NewMemory(cfg.Trainer.Languages)
	}

	cur, err := cursor.Open(cfg.Cursor)
	if err != nil {
		return fmt.Errorf("app: cursor: %w", err)
	}
	a.cursor = cur

	client, err := telegram.NewClient(telegram.Options{
		Token:           cfg.Telegram.Token,
		APIURL:          cfg.Telegram.APIURL,
		LongPollTimeout: cfg.Telegram.LongPollTimeout(),
		Sender: sender.New(sender.Options{
			MaxRetries:   cfg.Sender.MaxRetries,
			RetryBackoff: time.Duration(cfg.Sender.RetryBackoffMS) * time.Millisecond,
			MaxDuration:  time.Duration(cfg.Sender.MaxDurationMS) * time.Millisecond,
		}),
	})
	if err != nil {
		return fmt.Errorf("app: telegram: %w", err)
	}
	a.client = client

	var hinter trainer.Hinter
	if cfg.Translator.Enabled() {
		auth := translator.NewAuthClient(cfg.Translator.Key, translator.WithIssuerURL(cfg.Translator.IssuerURL))
		hinter = translator.NewClient(cfg.Translator.Endpoint, auth, nil)
	}

	tr, err := trainer.New(trainer.Options{Backend: backend, Messenger: client, Hinter: hinter})
	if err != nil {
		return err
	}
	a.registry = dispatch.NewRegistry()
	if err := tr.Register(a.registry); err != nil {
		return fmt.Errorf("app: register handlers: %w", err)
	}

	a.dispatcher, err = dispatch.New(dispatch.Options{
		Source:          client,
		Cursor:          cur,
		Registry:        a.registry,
		BatchLimit:      cfg.Telegram.BatchLimit,
		LongPollTimeout: cfg.Telegram.LongPollTimeout(),
		SkipAck:         cfg.Polling.SkipAck,
		ReplayWindow:    cfg.Polling.ReplayWindow(),
	})
	if err != nil {
		return fmt.Errorf("app: dispatcher: %w", err)
	}

	callbacks, _ := logger.SummarizeStrings(a.registry.Callbacks(), 8)
	logger.Info(context.Background(), logger.CompApp, "app.built",
		slog.String("driver", cfg.Database.Driver),
		slog.String("callbacks", callbacks),
		slog.String("cursor", cfg.Cursor.Backend),
		slog.Bool("hints", hinter != nil),
		slog.Int("languages", len(cfg.Trainer.Languages)),
	)
	return nil
}

// Run prepares the bot account and dispatches updates until ctx is done or
// Telegram rejects the token.
func (a *App) Run(ctx context.Context) error {
	if !a.cfg.Telegram.SkipWebhookCleanup {
		if err := a.client.DeleteWebhook(ctx); err != nil {
			logger.Warn(ctx, logger.CompTG, "webhook.cleanup",
				slog.String("status", "fail"),
				slog.String("err", netutil.Redact(err)),
			)
		}
	}
	if err := a.client.SetCommands(ctx, a.registry.ListCommands(true)); err != nil {
		logger.Warn(ctx, logger.CompTG, "commands.set",
			slog.String("status", "fail"),
			slog.String("err", netutil.Redact(err)),
		)
	}
	return dispatch.Run(ctx, a.dispatcher, a.cfg.Polling.Interval())
}

// Close releases the dispatcher, cursor store and database.
func (a *App) Close() error {
	var errs []error
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if c, ok := a.cursor.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
