package trainer

import (
	"fmt"
	"strings"

	"github.com/m3rciful/trainerbot/core/telegram/format"
	"github.com/m3rciful/trainerbot/internal/store"
)

// Reply keyboard labels. Incoming text is matched against them exactly.
const (
	BtnTranslate   = "Translate"
	BtnBalance     = "Balance"
	BtnSetLanguage = "Set Language"
)

// Callback keys of the two language pickers.
const (
	SeqSource = "1st"
	SeqTarget = "2nd"
)

const (
	msgTextOnly = "Currently we only take text data!\n" +
		"Your interest and investment will be our fuel to develop useful tools such as an OCR contributor or a text extractor from sound!"
	msgPickSource   = "Which language do you want to translate from?"
	msgPickTarget   = "Cool! Then, please choose one language that you want to translate to!"
	msgNeedStart    = "I don't know you yet. Please press /start first."
	msgNeedLanguage = "Please choose your languages first.\n\n" + msgPickSource
	msgLookupFailed = "Sorry, I could not load your settings. Please try again in a moment."
	msgNoSentence   = "There is nothing left to translate for this language pair right now.\n" +
		"Send me a sentence in your source language and others will translate it!"
	msgBadLanguage = "That language is not available. Please pick one from the list."
)

func currentSetting(src, tgt string) string {
	return fmt.Sprintf("Current setting: *%s* -> *%s*", orDash(src), orDash(tgt))
}

func orDash(code string) string {
	if code == "" {
		return "-"
	}
	return format.Markdown(code)
}

func setLanguagePrompt(sess store.Session) string {
	return currentSetting(sess.SourceLang, sess.TargetLang) + "\n\n" + msgPickSource
}

func targetPrompt(src string) string {
	return fmt.Sprintf("Source: *%s*\n\n%s", orDash(src), msgPickTarget)
}

func welcome(sess store.Session) string {
	var b strings.Builder
	b.WriteString("Settings are all done!\n")
	b.WriteString(currentSetting(sess.SourceLang, sess.TargetLang))
	b.WriteString("\n\nPlease press 'Translate' button below and earn points immediately!\n\n")

	b.WriteString("*1. How to use it?*\n")
	b.WriteString("Just press 'Translate' button and contribute data!\n\n")

	b.WriteString("*2. How many points can I earn?*\n")
	b.WriteString("Source sentence contributor: *0.1 Point*.\n")
	b.WriteString("Translated sentence contributor: *1 Point*.\n")
	b.WriteString("If 2 contributors are the same user: *1.1 Points*.\n")
	b.WriteString("If I translated a sentence contributed by an anonymous user: *1.1 Points*.\n\n")

	b.WriteString("*3. When can I use these points?*\n")
	b.WriteString("Before launch we'll take a snapshot and make an announcement about the airdrop!\n")
	return b.String()
}

func balanceText(b store.Balance) string {
	return fmt.Sprintf("Your balance: *%s* points", b)
}

func sentenceText(s store.Sentence, target, hint string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Please translate into *%s*:\n\n%s", format.Markdown(target), format.Markdown(s.Text))
	if hint != "" {
		fmt.Fprintf(&b, "\n\n_Machine hint:_ %s", format.Markdown(hint))
	}
	return b.String()
}

func thanksText(sub store.Submission) string {
	if sub.IsTranslation() {
		return fmt.Sprintf("Thanks! You earned *%s* points.", store.Balance{Tenths: sub.AwardedTenths})
	}
	return "Thanks! Your sentence was added and will earn points once someone translates it."
}
