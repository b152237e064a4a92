package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/trainerbot/core/config"
	coredatabase "github.com/m3rciful/trainerbot/core/database"
	"github.com/m3rciful/trainerbot/core/cursor"
	"github.com/m3rciful/trainerbot/core/logger"
	"github.com/m3rciful/trainerbot/internal/store"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "telegram:\n  token: abc\ndatabase:\n  driver: memory\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Database.Driver != coredatabase.DriverMemory {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if len(cfg.Trainer.Languages) != len(store.DefaultLanguages) {
		t.Errorf("languages = %d, want defaults", len(cfg.Trainer.Languages))
	}
	if cfg.Translator.Enabled() {
		t.Error("translator enabled without key")
	}
	if cfg.CoreConfig().Telegram.Token != "abc" {
		t.Errorf("core token = %q", cfg.CoreConfig().Telegram.Token)
	}
}

func TestLoadConfigLanguagesAndEnv(t *testing.T) {
	body := `telegram:
  token: abc
database:
  driver: sqlite
trainer:
  languages:
    - code: en
      name: English
    - code: " ko "
      name: Korean
`
	t.Setenv("TRANSLATOR_KEY", "secret")
	t.Setenv("DB_PATH", "/tmp/other.db")
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Translator.Enabled() {
		t.Error("translator key from env not applied")
	}
	if cfg.Database.Driver != coredatabase.DriverSQLite || cfg.Database.Path != "/tmp/other.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	langs := cfg.Trainer.Languages
	if len(langs) != 2 || langs[0].Code != "en" || langs[1].Code != "ko" {
		t.Errorf("languages = %+v", langs)
	}
}

func TestLoadConfigRejectsBadLanguages(t *testing.T) {
	cases := map[string]string{
		"duplicate": "    - {code: en, name: English}\n    - {code: en, name: Again}\n",
		"separator": "    - {code: \"e|n\", name: English}\n",
		"no name":   "    - {code: en}\n",
	}
	for name, langs := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, "telegram:\n  token: abc\ndatabase:\n  driver: memory\ntrainer:\n  languages:\n"+langs)
			if _, err := LoadConfig(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

const testToken = "123:abc"

// botAPI is a minimal Bot API. It serves updates once, then empty batches.
type botAPI struct {
	updates string
	lastID  int
	// replies overrides the answer for a method; hangup drops the connection instead.
	replies map[string]string
	hangup  map[string]bool

	mu      sync.Mutex
	methods []string
	sends   []map[string]any
	served  bool
	failed  bool
	acked   chan struct{}
	retried chan struct{}
	once    sync.Once
	again   sync.Once
}

func newBotAPI(lastID int, updates ...string) *botAPI {
	return &botAPI{
		updates: "[" + strings.Join(updates, ",") + "]",
		lastID:  lastID,
		replies: map[string]string{},
		hangup:  map[string]bool{},
		acked:   make(chan struct{}),
		retried: make(chan struct{}),
	}
}

func (b *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	b.mu.Lock()
	b.methods = append(b.methods, method)
	reply := `{"ok":true,"result":true}`
	switch method {
	case "getMe":
		reply = `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"trainer","username":"trainer_bot"}}`
	case "getUpdates":
		reply = `{"ok":true,"result":[]}`
		offset, _ := body["offset"].(float64)
		limit, _ := body["limit"].(float64)
		switch {
		case b.failed:
			b.again.Do(func() { close(b.retried) })
		case !b.served && offset == 1:
			b.served = true
			reply = `{"ok":true,"result":` + b.updates + `}`
		case int(offset) == b.lastID+1 && limit == 1:
			b.once.Do(func() { close(b.acked) })
		}
	case "sendMessage":
		b.sends = append(b.sends, body)
		reply = `{"ok":true,"result":{"message_id":2,"date":0,"chat":{"id":42,"type":"private"}}}`
	}
	if override, ok := b.replies[method]; ok {
		reply = override
	}
	hangup := b.hangup[method]
	if hangup {
		b.failed = true
	}
	b.mu.Unlock()

	if hangup {
		if conn, _, err := w.(http.Hijacker).Hijack(); err == nil {
			_ = conn.Close()
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, reply)
}

func startUpdate(id int) string {
	return fmt.Sprintf(`{"update_id":%d,"message":{"message_id":1,"date":0,"text":"/start",`+
		`"chat":{"id":42,"type":"private"},"from":{"id":42,"first_name":"Ann","username":"ann"}}}`, id)
}

func callbackUpdate(id int, data string) string {
	return fmt.Sprintf(`{"update_id":%d,"callback_query":{"id":"cb%d","data":%q,`+
		`"from":{"id":42,"first_name":"Ann","username":"ann"},`+
		`"message":{"message_id":3,"date":0,"chat":{"id":42,"type":"private"}}}}`, id, id, data)
}

// lockedBuffer collects log output written from the dispatcher goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestApp(t *testing.T, api *botAPI) (*App, string) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cursorPath := filepath.Join(t.TempDir(), "lastUpdate.txt")
	cfg := &Config{
		Config: coreconfig.Config{
			Telegram: coreconfig.TelegramConfig{Token: testToken, APIURL: srv.URL},
			Cursor:   coreconfig.CursorConfig{Backend: coreconfig.CursorBackendFile, Path: cursorPath},
			Sender:   coreconfig.SenderConfig{MaxDurationMS: 5000},
		},
		Database: coredatabase.Config{Driver: coredatabase.DriverMemory},
	}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	cfg.Polling.IntervalMS = 10

	a := &App{cfg: cfg}
	if err := a.build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, cursorPath
}

// runUntil runs a until signal fires, then stops it and returns the stored cursor.
func runUntil(t *testing.T, ctx context.Context, a *App, cursorPath string, signal <-chan struct{}) int {
	t.Helper()
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case <-signal:
	case <-time.After(5 * time.Second):
		cancel()
		<-done
		t.Fatal("bot API never saw the expected call")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	got, err := cursor.NewFileStore(cursorPath).Load(context.Background())
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	return got
}

func TestAppRunsStartAgainstBotAPI(t *testing.T) {
	api := newBotAPI(7, startUpdate(7))
	a, cursorPath := newTestApp(t, api)

	if got := runUntil(t, context.Background(), a, cursorPath, api.acked); got != 7 {
		t.Fatalf("cursor = %d, want 7", got)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	joined := strings.Join(api.methods, ",")
	for _, m := range []string{"getMe", "deleteWebhook", "setMyCommands", "getUpdates", "sendMessage"} {
		if !strings.Contains(joined, m) {
			t.Errorf("%s not called: %s", m, joined)
		}
	}
	if len(api.sends) != 1 {
		t.Fatalf("sends = %d", len(api.sends))
	}
	if text, _ := api.sends[0]["text"].(string); !strings.Contains(text, "translate from") {
		t.Errorf("start reply = %q", text)
	}
	if markup, _ := api.sends[0]["reply_markup"].(string); !strings.Contains(markup, "1st|en") {
		t.Errorf("reply_markup = %q", markup)
	}
}

func TestAppExpiredCallbackAckStillAdvancesCursor(t *testing.T) {
	api := newBotAPI(2, startUpdate(1), callbackUpdate(2, "1st|en"))
	api.replies["answerCallbackQuery"] = `{"ok":false,"error_code":400,` +
		`"description":"Bad Request: query is too old and response timeout expired or query ID is invalid"}`
	a, cursorPath := newTestApp(t, api)

	if got := runUntil(t, context.Background(), a, cursorPath, api.acked); got != 2 {
		t.Fatalf("cursor = %d, want 2", got)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.sends) != 2 {
		t.Fatalf("sends = %d, want source and target pickers once each", len(api.sends))
	}
	if markup, _ := api.sends[1]["reply_markup"].(string); !strings.Contains(markup, "2nd|") {
		t.Errorf("target picker = %q", markup)
	}
}

func TestAppBlockedUserDoesNotStallCycle(t *testing.T) {
	api := newBotAPI(1, startUpdate(1))
	api.replies["sendMessage"] = `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`
	a, cursorPath := newTestApp(t, api)

	if got := runUntil(t, context.Background(), a, cursorPath, api.acked); got != 1 {
		t.Fatalf("cursor = %d, want 1", got)
	}
}

func TestAppNetworkSendFailureKeepsCursorAndRedactsToken(t *testing.T) {
	api := newBotAPI(1, startUpdate(1))
	api.hangup["sendMessage"] = true
	a, cursorPath := newTestApp(t, api)

	logs := &lockedBuffer{}
	ctx := logger.WithLogger(context.Background(), slog.New(slog.NewTextHandler(logs, nil)))
	if got := runUntil(t, ctx, a, cursorPath, api.retried); got != 0 {
		t.Fatalf("cursor = %d, want 0 after failed send", got)
	}

	out := logs.String()
	if !strings.Contains(out, "update.handled") || !strings.Contains(out, "status=fail") {
		t.Fatalf("no failed update.handled line:\n%s", out)
	}
	if strings.Contains(out, testToken) {
		t.Fatalf("bot token leaked into logs:\n%s", out)
	}
}
