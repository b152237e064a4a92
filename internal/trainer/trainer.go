// Package trainer holds the Telegram handlers of the translation trainer:
// language selection, sentence hand-out and collection, and balances.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/trainerbot/core/dispatch"
	"github.com/m3rciful/trainerbot/core/logger"
	"github.com/m3rciful/trainerbot/core/telegram/callbacks"
	"github.com/m3rciful/trainerbot/core/telegram/commands"
	"github.com/m3rciful/trainerbot/internal/store"
)

// Backend is the translation service the handlers drive.
type Backend interface {
	RegisterUser(ctx context.Context, chatID int64, key store.UserKey) error
	ClearPendingText(ctx context.Context, key store.UserKey) error
	GetSession(ctx context.Context, key store.UserKey) (store.Session, error)
	SetSourceLanguage(ctx context.Context, chatID int64, key store.UserKey, lang string) error
	SetTargetLanguage(ctx context.Context, chatID int64, key store.UserKey, lang string) error
	Balance(ctx context.Context, key store.UserKey) (store.Balance, error)
	NextSentence(ctx context.Context, key store.UserKey) (store.Sentence, error)
	SubmitSentence(ctx context.Context, chatID int64, key store.UserKey, text, channel string) (store.Submission, error)
	Languages(ctx context.Context) ([]store.Language, error)
}

// Messenger sends replies.
type Messenger interface {
	SendPlain(ctx context.Context, chatID int64, text string) error
	SendWithKeyboard(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) error
	AckCallback(ctx context.Context, callbackID string) error
}

// Hinter suggests a machine translation for a sentence.
type Hinter interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// Options wires a Trainer. Hinter may be nil.
type Options struct {
	Backend   Backend
	Messenger Messenger
	Hinter    Hinter
}

// Trainer implements the bot's handlers.
type Trainer struct {
	backend Backend
	msg     Messenger
	hinter  Hinter
}

// New returns a Trainer.
func New(opts Options) (*Trainer, error) {
	if opts.Backend == nil || opts.Messenger == nil {
		return nil, errors.New("trainer: backend and messenger are required")
	}
	return &Trainer{
		backend: opts.Backend,
		msg:     countingMessenger{opts.Messenger},
		hinter:  opts.Hinter,
	}, nil
}

// Register adds every route to reg.
func (t *Trainer) Register(reg *dispatch.Registry) error {
	if err := reg.RegisterCommand("/start", commands.Command{Description: "Register and choose languages"}, t.handleStart); err != nil {
		return err
	}
	texts := map[string]dispatch.HandlerFunc{
		BtnBalance:     t.handleBalance,
		BtnTranslate:   t.handleTranslate,
		BtnSetLanguage: t.handleSetLanguage,
	}
	for text, h := range texts {
		if err := reg.RegisterText(text, h); err != nil {
			return err
		}
	}
	if err := reg.RegisterCallback(SeqSource, t.handleSourcePicked); err != nil {
		return err
	}
	if err := reg.RegisterCallback(SeqTarget, t.handleTargetPicked); err != nil {
		return err
	}
	reg.SetNonText(t.handleNonText)
	reg.SetTextFallback(t.handleSentence)
	reg.SetCallbackNotFound(t.handleUnknownCallback)
	return nil
}

func keyOf(u dispatch.Update) store.UserKey {
	return store.UserKey{ExternalID: u.UserID, Handle: u.Handle}
}

func (t *Trainer) handleNonText(ctx context.Context, u dispatch.Update) error {
	return t.msg.SendPlain(ctx, u.ChatID, msgTextOnly)
}

func (t *Trainer) handleStart(ctx context.Context, u dispatch.Update) error {
	key := keyOf(u)
	if err := t.backend.RegisterUser(ctx, u.ChatID, key); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	if err := t.backend.ClearPendingText(ctx, key); err != nil {
		return t.backendFailure(ctx, u, err)
	}
	return t.sendSourcePicker(ctx, u.ChatID, msgPickSource)
}

func (t *Trainer) handleBalance(ctx context.Context, u dispatch.Update) error {
	key := keyOf(u)
	if err := t.backend.ClearPendingText(ctx, key); err != nil {
		return t.backendFailure(ctx, u, err)
	}
	bal, err := t.backend.Balance(ctx, key)
	if err != nil {
		return t.backendFailure(ctx, u, err)
	}
	return t.msg.SendWithKeyboard(ctx, u.ChatID, balanceText(bal), buildDefaultKeyboard())
}

func (t *Trainer) handleTranslate(ctx context.Context, u dispatch.Update) error {
	return t.sendNextSentence(ctx, u)
}

func (t *Trainer) handleSetLanguage(ctx context.Context, u dispatch.Update) error {
	key := keyOf(u)
	if err := t.backend.ClearPendingText(ctx, key); err != nil {
		return t.backendFailure(ctx, u, err)
	}
	sess, err := t.backend.GetSession(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return t.backendFailure(ctx, u, err)
		}
		if sendErr := t.msg.SendPlain(ctx, u.ChatID, msgLookupFailed); sendErr != nil {
			return sendErr
		}
		return dispatch.Skip(fmt.Errorf("load session: %w", err))
	}
	return t.sendSourcePicker(ctx, u.ChatID, setLanguagePrompt(sess))
}

// handleSentence stores free text as a translation of the pending sentence or
// as a new source sentence, then hands out the next one.
func (t *Trainer) handleSentence(ctx context.Context, u dispatch.Update) error {
	key := keyOf(u)
	sess, err := t.backend.GetSession(ctx, key)
	if err != nil {
		return t.backendFailure(ctx, u, err)
	}
	if !sess.Ready() {
		return t.backendFailure(ctx, u, store.ErrLanguageNotSet)
	}
	sub, err := t.backend.SubmitSentence(ctx, u.ChatID, key, u.Text, store.ChannelTelegram)
	if err != nil {
		return t.backendFailure(ctx, u, err)
	}
	logger.Info(ctx, logger.CompTrainer, "sentence.accepted",
		slog.String("lang", sub.Lang),
		slog.Bool("translation", sub.IsTranslation()),
	)
	if err := t.msg.SendWithKeyboard(ctx, u.ChatID, thanksText(sub), buildDefaultKeyboard()); err != nil {
		return err
	}
	return t.sendNextSentence(ctx, u)
}

func (t *Trainer) sendNextSentence(ctx context.Context, u dispatch.Update) error {
	key := keyOf(u)
	sent, err := t.backend.NextSentence(ctx, key)
	switch {
	case errors.Is(err, store.ErrNoSentence):
		return t.msg.SendWithKeyboard(ctx, u.ChatID, msgNoSentence, buildDefaultKeyboard())
	case err != nil:
		return t.backendFailure(ctx, u, err)
	}
	sess, err := t.backend.GetSession(ctx, key)
	if err != nil {
		return t.backendFailure(ctx, u, err)
	}
	hint := t.hint(ctx, sent.Text, sess.SourceLang, sess.TargetLang)
	return t.msg.SendWithKeyboard(ctx, u.ChatID, sentenceText(sent, sess.TargetLang, hint), buildDefaultKeyboard())
}

func (t *Trainer) hint(ctx context.Context, text, from, to string) string {
	if t.hinter == nil {
		return ""
	}
	out, err := t.hinter.Translate(ctx, text, from, to)
	if err != nil {
		// the sentence still goes out without a hint
		return ""
	}
	return out
}

func (t *Trainer) handleSourcePicked(ctx context.Context, u dispatch.Update) error {
	_, lang := callbacks.Parse(u.Data)
	key := keyOf(u)
	if err := t.clearForCallback(ctx, u); err != nil {
		return err
	}
	if lang == "" {
		return dispatch.Skip(fmt.Errorf("malformed callback %q", u.Data))
	}
	if err := t.backend.SetSourceLanguage(ctx, u.ChatID, key, lang); err != nil {
		return t.backendFailure(ctx, u, err)
	}
	if err := t.msg.AckCallback(ctx, u.CallbackID); err != nil {
		return err
	}
	langs, err := t.backend.Languages(ctx)
	if err != nil {
		return fmt.Errorf("list languages: %w", err)
	}
	return t.msg.SendWithKeyboard(ctx, u.ChatID, targetPrompt(lang), buildLanguagePicker(SeqTarget, langs, lang))
}

func (t *Trainer) handleTargetPicked(ctx context.Context, u dispatch.Update) error {
	_, lang := callbacks.Parse(u.Data)
	key := keyOf(u)
	if err := t.clearForCallback(ctx, u); err != nil {
		return err
	}
	if lang == "" {
		return dispatch.Skip(fmt.Errorf("malformed callback %q", u.Data))
	}
	if err := t.backend.SetTargetLanguage(ctx, u.ChatID, key, lang); err != nil {
		return t.backendFailure(ctx, u, err)
	}
	if err := t.msg.AckCallback(ctx, u.CallbackID); err != nil {
		return err
	}
	sess, err := t.backend.GetSession(ctx, key)
	if err != nil {
		return t.backendFailure(ctx, u, err)
	}
	return t.msg.SendWithKeyboard(ctx, u.ChatID, welcome(sess), buildDefaultKeyboard())
}

func (t *Trainer) handleUnknownCallback(ctx context.Context, u dispatch.Update) error {
	if err := t.clearForCallback(ctx, u); err != nil {
		return err
	}
	seq, _ := callbacks.Parse(u.Data)
	logger.Warn(ctx, logger.CompTrainer, "callback.unknown",
		slog.String("seq", logger.SanitizeLimit(seq, 64)),
	)
	return dispatch.Skip(fmt.Errorf("unknown callback %q", seq))
}

// clearForCallback drops the pending sentence before any picker action. A user
// without a row is left for the handler to report.
func (t *Trainer) clearForCallback(ctx context.Context, u dispatch.Update) error {
	err := t.backend.ClearPendingText(ctx, keyOf(u))
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return fmt.Errorf("clear pending text: %w", err)
}

func (t *Trainer) sendSourcePicker(ctx context.Context, chatID int64, text string) error {
	langs, err := t.backend.Languages(ctx)
	if err != nil {
		return fmt.Errorf("list languages: %w", err)
	}
	return t.msg.SendWithKeyboard(ctx, chatID, text, buildLanguagePicker(SeqSource, langs, ""))
}

// backendFailure turns the expected backend errors into a canned reply and a
// skipped update. Anything else is returned so the cycle is retried.
func (t *Trainer) backendFailure(ctx context.Context, u dispatch.Update, err error) error {
	var sendErr error
	switch {
	case errors.Is(err, store.ErrNotFound):
		sendErr = t.msg.SendPlain(ctx, u.ChatID, msgNeedStart)
	case errors.Is(err, store.ErrLanguageNotSet):
		sendErr = t.sendSourcePicker(ctx, u.ChatID, msgNeedLanguage)
	case errors.Is(err, store.ErrUnknownLanguage):
		sendErr = t.msg.SendPlain(ctx, u.ChatID, msgBadLanguage)
	default:
		return err
	}
	if sendErr != nil {
		return sendErr
	}
	return dispatch.Skip(err)
}
