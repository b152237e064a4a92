package trainer

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/trainerbot/core/dispatch"
	"github.com/m3rciful/trainerbot/core/logger"
	"github.com/m3rciful/trainerbot/core/telegram/netutil"
)

// countingMessenger reports successful sends to the dispatcher's per-update
// summary. A reply Telegram refuses for good skips the update; callback acks
// only fail the update when the bot token is rejected.
type countingMessenger struct {
	next Messenger
}

func (m countingMessenger) SendPlain(ctx context.Context, chatID int64, text string) error {
	if err := m.next.SendPlain(ctx, chatID, text); err != nil {
		return sendFailure(err)
	}
	dispatch.NoteSend(ctx, false)
	return nil
}

func (m countingMessenger) SendWithKeyboard(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) error {
	if err := m.next.SendWithKeyboard(ctx, chatID, text, markup); err != nil {
		return sendFailure(err)
	}
	dispatch.NoteSend(ctx, markup != nil)
	return nil
}

func (m countingMessenger) AckCallback(ctx context.Context, callbackID string) error {
	err := m.next.AckCallback(ctx, callbackID)
	if err == nil {
		return nil
	}
	if netutil.IsAuthFailure(err) {
		return err
	}
	logger.Warn(ctx, logger.CompTrainer, "callback.ack",
		slog.String("status", "fail"),
		slog.String("err_kind", netutil.Classify(err)),
		slog.String("err", netutil.Redact(err)),
	)
	return nil
}

// sendFailure keeps a blocked bot or a vanished chat contained to one update.
func sendFailure(err error) error {
	if netutil.IsPermanent(err) {
		return dispatch.Skip(err)
	}
	return err
}
