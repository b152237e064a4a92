package store

import (
	"context"
	"fmt"
	"sync"
)

type memUser struct {
	id      int64
	chatID  int64
	handle  string
	session Session
	points  int64
}

type memSentence struct {
	Sentence
	contributor int64
	sourceID    int64
	channel     string
}

// Memory is an in-process backend for dry runs and tests. Nothing survives a restart.
type Memory struct {
	mu        sync.RWMutex
	users     map[int64]*memUser
	sentences []memSentence
	languages []Language
	nextUser  int64
}

// NewMemory returns an empty store offering langs, or DefaultLanguages when langs is empty.
func NewMemory(langs []Language) *Memory {
	if len(langs) == 0 {
		langs = DefaultLanguages
	}
	return &Memory{
		users:     make(map[int64]*memUser),
		languages: withPositions(langs),
	}
}

// AddSentence stores a source sentence with no contributor, as an import would.
func (m *Memory) AddSentence(lang, text string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := int64(len(m.sentences) + 1)
	m.sentences = append(m.sentences, memSentence{Sentence: Sentence{ID: id, Lang: lang, Text: text}, channel: "import"})
	return id
}

func (m *Memory) RegisterUser(_ context.Context, chatID int64, key UserKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[key.ExternalID]
	if !ok {
		m.nextUser++
		u = &memUser{id: m.nextUser}
		m.users[key.ExternalID] = u
	}
	u.chatID = chatID
	u.handle = key.Handle
	return nil
}

func (m *Memory) ClearPendingText(_ context.Context, key UserKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[key.ExternalID]
	if !ok {
		return ErrNotFound
	}
	u.session.LastSourceTextID = 0
	return nil
}

func (m *Memory) GetSession(_ context.Context, key UserKey) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[key.ExternalID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return u.session, nil
}

func (m *Memory) SetSourceLanguage(_ context.Context, chatID int64, key UserKey, lang string) error {
	return m.update(chatID, key, lang, func(s *Session) { s.SourceLang = lang })
}

func (m *Memory) SetTargetLanguage(_ context.Context, chatID int64, key UserKey, lang string) error {
	return m.update(chatID, key, lang, func(s *Session) { s.TargetLang = lang })
}

func (m *Memory) update(chatID int64, key UserKey, lang string, set func(*Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.knownLanguage(lang) {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	u, ok := m.users[key.ExternalID]
	if !ok {
		return ErrNotFound
	}
	u.chatID = chatID
	set(&u.session)
	return nil
}

func (m *Memory) knownLanguage(code string) bool {
	for _, l := range m.languages {
		if l.Code == code {
			return true
		}
	}
	return false
}

func (m *Memory) Balance(_ context.Context, key UserKey) (Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[key.ExternalID]
	if !ok {
		return Balance{}, ErrNotFound
	}
	return Balance{Tenths: u.points}, nil
}

func (m *Memory) NextSentence(_ context.Context, key UserKey) (Sentence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[key.ExternalID]
	if !ok {
		return Sentence{}, ErrNotFound
	}
	if !u.session.Ready() {
		return Sentence{}, ErrLanguageNotSet
	}
	for _, s := range m.sentences {
		if s.Lang != u.session.SourceLang || s.sourceID != 0 || m.translated(s.ID, u.session.TargetLang) {
			continue
		}
		u.session.LastSourceTextID = s.ID
		return s.Sentence, nil
	}
	return Sentence{}, ErrNoSentence
}

func (m *Memory) translated(id int64, lang string) bool {
	for _, s := range m.sentences {
		if s.sourceID == id && s.Lang == lang {
			return true
		}
	}
	return false
}

func (m *Memory) SubmitSentence(_ context.Context, chatID int64, key UserKey, text, channel string) (Submission, error) {
	if channel == "" {
		channel = ChannelTelegram
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[key.ExternalID]
	if !ok {
		return Submission{}, ErrNotFound
	}
	if !u.session.Ready() {
		return Submission{}, ErrLanguageNotSet
	}
	u.chatID = chatID
	sub := Submission{Lang: u.session.SourceLang, SourceID: u.session.LastSourceTextID}
	if sub.IsTranslation() {
		sub.Lang = u.session.TargetLang
	}
	sub.SentenceID = int64(len(m.sentences) + 1)
	m.sentences = append(m.sentences, memSentence{
		Sentence:    Sentence{ID: sub.SentenceID, Lang: sub.Lang, Text: text},
		contributor: u.id,
		sourceID:    sub.SourceID,
		channel:     channel,
	})
	if !sub.IsTranslation() {
		return sub, nil
	}

	sub.AwardedTenths = TranslatorTenths
	src := m.sentences[sub.SourceID-1]
	if owner := m.userByID(src.contributor); owner != nil && owner != u {
		owner.points += ContributorTenths
	} else {
		sub.AwardedTenths += ContributorTenths
	}
	u.points += sub.AwardedTenths
	u.session.LastSourceTextID = 0
	return sub, nil
}

func (m *Memory) userByID(id int64) *memUser {
	if id == 0 {
		return nil
	}
	for _, u := range m.users {
		if u.id == id {
			return u
		}
	}
	return nil
}

func (m *Memory) Languages(context.Context) ([]Language, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Language(nil), m.languages...), nil
}
