package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/trainerbot/core/logger"
)

// SQLStore implements the trainer backend on postgres, pgx or sqlite3.
// Queries are written with ? placeholders and rebound for the driver.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQL wraps an open pool. The schema must already be migrated.
func NewSQL(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

type userRow struct {
	ID               int64          `db:"id"`
	SourceLang       sql.NullString `db:"source_lang"`
	TargetLang       sql.NullString `db:"target_lang"`
	LastSourceTextID sql.NullInt64  `db:"last_source_text_id"`
	PointsTenths     int64          `db:"points_tenths"`
}

func (r userRow) session() Session {
	return Session{
		SourceLang:       r.SourceLang.String,
		TargetLang:       r.TargetLang.String,
		LastSourceTextID: r.LastSourceTextID.Int64,
	}
}

const selectUser = `SELECT id, source_lang, target_lang, last_source_text_id, points_tenths
	FROM users WHERE external_id = ?`

func (s *SQLStore) loadUser(ctx context.Context, q sqlx.QueryerContext, key UserKey) (userRow, error) {
	var row userRow
	err := sqlx.GetContext(ctx, q, &row, s.db.Rebind(selectUser), key.ExternalID)
	if errors.Is(err, sql.ErrNoRows) {
		return row, ErrNotFound
	}
	return row, err
}

// RegisterUser creates the user or refreshes its chat and handle.
func (s *SQLStore) RegisterUser(ctx context.Context, chatID int64, key UserKey) error {
	const q = `INSERT INTO users (chat_id, external_id, handle) VALUES (?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			chat_id = excluded.chat_id,
			handle = excluded.handle,
			updated_at = CURRENT_TIMESTAMP`
	_, err := s.db.ExecContext(ctx, s.db.Rebind(q), chatID, key.ExternalID, key.Handle)
	return s.observe(ctx, "user.register", time.Now(), err)
}

// ClearPendingText forgets the sentence currently shown to the user.
func (s *SQLStore) ClearPendingText(ctx context.Context, key UserKey) error {
	const q = `UPDATE users SET last_source_text_id = NULL WHERE external_id = ?`
	return s.execUser(ctx, "user.clear_pending", q, key.ExternalID)
}

// GetSession returns the user's languages and pending sentence.
func (s *SQLStore) GetSession(ctx context.Context, key UserKey) (Session, error) {
	row, err := s.loadUser(ctx, s.db, key)
	if err != nil {
		return Session{}, err
	}
	return row.session(), nil
}

// SetSourceLanguage stores the language the user translates from.
func (s *SQLStore) SetSourceLanguage(ctx context.Context, chatID int64, key UserKey, lang string) error {
	return s.setLanguage(ctx, "source_lang", chatID, key, lang)
}

// SetTargetLanguage stores the language the user translates into.
func (s *SQLStore) SetTargetLanguage(ctx context.Context, chatID int64, key UserKey, lang string) error {
	return s.setLanguage(ctx, "target_lang", chatID, key, lang)
}

func (s *SQLStore) setLanguage(ctx context.Context, column string, chatID int64, key UserKey, lang string) error {
	if err := s.checkLanguage(ctx, lang); err != nil {
		return err
	}
	q := `UPDATE users SET ` + column + ` = ?, chat_id = ?, updated_at = CURRENT_TIMESTAMP WHERE external_id = ?`
	return s.execUser(ctx, "user.set_"+strings.TrimSuffix(column, "_lang"), q, lang, chatID, key.ExternalID)
}

func (s *SQLStore) checkLanguage(ctx context.Context, code string) error {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM languages WHERE code = ?`), code)
	if err != nil {
		return fmt.Errorf("check language: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
	}
	return nil
}

// Balance returns the user's points.
func (s *SQLStore) Balance(ctx context.Context, key UserKey) (Balance, error) {
	row, err := s.loadUser(ctx, s.db, key)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Tenths: row.PointsTenths}, nil
}

// NextSentence picks the oldest source sentence in the user's source language
// that has no translation into the target language yet, and marks it pending.
func (s *SQLStore) NextSentence(ctx context.Context, key UserKey) (Sentence, error) {
	start := time.Now()
	row, err := s.loadUser(ctx, s.db, key)
	if err != nil {
		return Sentence{}, err
	}
	sess := row.session()
	if !sess.Ready() {
		return Sentence{}, ErrLanguageNotSet
	}
	const pick = `SELECT s.id, s.lang, s.text FROM sentences s
		WHERE s.lang = ? AND s.source_id IS NULL
		AND NOT EXISTS (SELECT 1 FROM sentences t WHERE t.source_id = s.id AND t.lang = ?)
		ORDER BY s.id LIMIT 1`
	var sent Sentence
	err = s.db.GetContext(ctx, &sent, s.db.Rebind(pick), sess.SourceLang, sess.TargetLang)
	if errors.Is(err, sql.ErrNoRows) {
		return Sentence{}, ErrNoSentence
	}
	if err != nil {
		return Sentence{}, s.observe(ctx, "sentence.next", start, err)
	}
	const mark = `UPDATE users SET last_source_text_id = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(mark), sent.ID, row.ID); err != nil {
		return Sentence{}, s.observe(ctx, "sentence.next", start, err)
	}
	return sent, nil
}

// SubmitSentence stores text from the user. With a pending sentence it is a
// translation into the target language and earns points; otherwise it is a new
// source sentence in the source language.
func (s *SQLStore) SubmitSentence(ctx context.Context, chatID int64, key UserKey, text, channel string) (Submission, error) {
	if channel == "" {
		channel = ChannelTelegram
	}
	start := time.Now()
	var sub Submission
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		row, err := s.loadUser(ctx, tx, key)
		if err != nil {
			return err
		}
		sess := row.session()
		if !sess.Ready() {
			return ErrLanguageNotSet
		}
		sub.Lang = sess.SourceLang
		var sourceID any
		if sess.LastSourceTextID != 0 {
			sub.Lang = sess.TargetLang
			sub.SourceID = sess.LastSourceTextID
			sourceID = sess.LastSourceTextID
		}
		const insert = `INSERT INTO sentences (lang, text, contributor_id, channel, source_id)
			VALUES (?, ?, ?, ?, ?) RETURNING id`
		if err := tx.GetContext(ctx, &sub.SentenceID, tx.Rebind(insert), sub.Lang, text, row.ID, channel, sourceID); err != nil {
			return fmt.Errorf("insert sentence: %w", err)
		}
		if !sub.IsTranslation() {
			return nil
		}
		return s.award(ctx, tx, row.ID, sub.SourceID, &sub)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrLanguageNotSet) {
			return Submission{}, err
		}
		return Submission{}, s.observe(ctx, "sentence.submit", start, err)
	}
	logger.Debug(ctx, logger.CompStore, "sentence.submit",
		slog.String("status", "ok"),
		slog.String("lang", sub.Lang),
		slog.Bool("translation", sub.IsTranslation()),
		slog.Duration("duration", logger.Took(start)),
	)
	return sub, nil
}

// award credits the translator and the source contributor, then clears the
// pending sentence. An anonymous source's share goes to the translator.
func (s *SQLStore) award(ctx context.Context, tx *sqlx.Tx, userID, sourceID int64, sub *Submission) error {
	var contributor sql.NullInt64
	err := tx.GetContext(ctx, &contributor, tx.Rebind(`SELECT contributor_id FROM sentences WHERE id = ?`), sourceID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("load source: %w", err)
	}
	sub.AwardedTenths = TranslatorTenths
	if !contributor.Valid || contributor.Int64 == userID {
		sub.AwardedTenths += ContributorTenths
	} else {
		const credit = `UPDATE users SET points_tenths = points_tenths + ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, tx.Rebind(credit), ContributorTenths, contributor.Int64); err != nil {
			return fmt.Errorf("credit contributor: %w", err)
		}
	}
	const self = `UPDATE users SET points_tenths = points_tenths + ?, last_source_text_id = NULL,
		updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := tx.ExecContext(ctx, tx.Rebind(self), sub.AwardedTenths, userID); err != nil {
		return fmt.Errorf("credit translator: %w", err)
	}
	return nil
}

// Languages lists the selectable languages in picker order.
func (s *SQLStore) Languages(ctx context.Context) ([]Language, error) {
	var langs []Language
	err := s.db.SelectContext(ctx, &langs, `SELECT code, name, position FROM languages ORDER BY position, code`)
	if err != nil {
		return nil, fmt.Errorf("list languages: %w", err)
	}
	return langs, nil
}

func (s *SQLStore) execUser(ctx context.Context, op, q string, args ...any) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return s.observe(ctx, op, start, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// observe logs a failed query and wraps err with op.
func (s *SQLStore) observe(ctx context.Context, op string, start time.Time, err error) error {
	if err == nil {
		return nil
	}
	logger.Error(ctx, logger.CompStore, op,
		slog.String("status", "fail"),
		slog.String("driver", s.db.DriverName()),
		slog.Duration("duration", logger.Took(start)),
		slog.String("err", err.Error()),
	)
	return fmt.Errorf("%s: %w", op, err)
}
