package trainer

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/trainerbot/core/telegram/callbacks"
	"github.com/m3rciful/trainerbot/core/telegram/keyboard"
	"github.com/m3rciful/trainerbot/internal/store"
)

const pickerColumns = 3

// buildLanguagePicker lays out one button per language with data "<seq>|<code>".
// The exclude code is left out.
func buildLanguagePicker(seq string, langs []store.Language, exclude string) *tele.ReplyMarkup {
	buttons := make([]keyboard.InlineBtn, 0, len(langs))
	for _, l := range langs {
		if l.Code == exclude {
			continue
		}
		buttons = append(buttons, keyboard.InlineBtn{Text: l.Name, Data: callbacks.Build(seq, l.Code)})
	}
	return keyboard.InlineGrid(buttons, pickerColumns)
}

func buildDefaultKeyboard() *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{BtnTranslate},
		[]string{BtnBalance, BtnSetLanguage},
	)
}
