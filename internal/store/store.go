// Package store keeps trainer users, their language sessions and the
// crowdsourced sentences.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the user has never pressed /start.
	ErrNotFound = errors.New("store: user not found")
	// ErrNoSentence is returned when nothing is left to translate for the language pair.
	ErrNoSentence = errors.New("store: no sentence to translate")
	// ErrLanguageNotSet is returned when the source or target language is still empty.
	ErrLanguageNotSet = errors.New("store: language not set")
	// ErrUnknownLanguage is returned for a language code that is not in the languages table.
	ErrUnknownLanguage = errors.New("store: unknown language")
)

// Points, in tenths, awarded when a translation is submitted.
const (
	TranslatorTenths  = 10
	ContributorTenths = 1
)

// ChannelTelegram tags sentences that came in through the bot.
const ChannelTelegram = "telegram"

// UserKey identifies a Telegram user. ExternalID is authoritative; Handle is
// kept up to date for display.
type UserKey struct {
	ExternalID int64
	Handle     string
}

// Session is the per-user language state.
type Session struct {
	SourceLang string
	TargetLang string
	// LastSourceTextID is the sentence currently shown for translation, 0 if none.
	LastSourceTextID int64
}

// Ready reports whether both languages are chosen.
func (s Session) Ready() bool {
	return s.SourceLang != "" && s.TargetLang != ""
}

// Sentence is a stored sentence.
type Sentence struct {
	ID   int64  `db:"id"`
	Lang string `db:"lang"`
	Text string `db:"text"`
}

// Language is one selectable language.
type Language struct {
	Code     string `db:"code" yaml:"code"`
	Name     string `db:"name" yaml:"name"`
	Position int    `db:"position" yaml:"-"`
}

// Balance is a user's points in tenths.
type Balance struct {
	Tenths int64
}

func (b Balance) String() string {
	return fmt.Sprintf("%d.%d", b.Tenths/10, b.Tenths%10)
}

// Submission describes what SubmitSentence recorded.
type Submission struct {
	SentenceID int64
	// SourceID is the translated sentence, 0 when a new source sentence was added.
	SourceID int64
	Lang     string
	// AwardedTenths is what the submitting user earned.
	AwardedTenths int64
}

// IsTranslation reports whether the submission translated a pending sentence.
func (s Submission) IsTranslation() bool { return s.SourceID != 0 }

// DefaultLanguages is the picker shown when no languages are configured.
var DefaultLanguages = []Language{
	{Code: "en", Name: "English"},
	{Code: "ko", Name: "Korean"},
	{Code: "ja", Name: "Japanese"},
	{Code: "zh", Name: "Chinese"},
	{Code: "es", Name: "Spanish"},
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
	{Code: "ru", Name: "Russian"},
	{Code: "vi", Name: "Vietnamese"},
}

// withPositions numbers langs in order.
func withPositions(langs []Language) []Language {
	out := make([]Language, len(langs))
	for i, l := range langs {
		l.Position = i + 1
		out[i] = l
	}
	return out
}
