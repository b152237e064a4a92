package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/trainerbot/core/logger"
	"github.com/m3rciful/trainerbot/core/telegram/callbacks"
	"github.com/m3rciful/trainerbot/core/telegram/commands"
)

// HandlerFunc handles one update. Returning an error wrapping ErrSkipUpdate
// drops the update; any other error aborts the cycle.
type HandlerFunc func(ctx context.Context, u Update) error

type commandRoute struct {
	meta    commands.Command
	handler HandlerFunc
}

// Registry maps updates to handlers. Text and command routes match the whole
// message exactly and case-sensitively; callbacks match on the key before "|".
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]commandRoute
	texts            map[string]HandlerFunc
	callbacks        map[string]HandlerFunc
	nonText          HandlerFunc
	textFallback     HandlerFunc
	callbackNotFound HandlerFunc
}

// NewRegistry returns an empty registry whose unknown-callback handler logs and skips.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commandRoute),
		texts:     make(map[string]HandlerFunc),
		callbacks: make(map[string]HandlerFunc),
		callbackNotFound: func(ctx context.Context, u Update) error {
			key, _ := callbacks.Parse(u.Data)
			logger.Warn(ctx, logger.CompDispatch, "callback.unknown",
				slog.String("seq", logger.SanitizeLimit(key, 64)),
			)
			return fmt.Errorf("%w: unknown callback %q", ErrSkipUpdate, key)
		},
	}
}

func warnSkip(event, name, reason string) {
	logger.Warn(context.Background(), logger.CompTGWire, event,
		slog.String("handler", name),
		slog.String("reason", reason),
	)
}

// RegisterCommand adds a slash command such as "/start".
func (r *Registry) RegisterCommand(name string, meta commands.Command, h HandlerFunc) error {
	if h == nil || !strings.HasPrefix(name, "/") || len(name) < 2 {
		warnSkip("register.command.skip", name, "invalid")
		return fmt.Errorf("invalid command registration %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.commands[name]; dup {
		warnSkip("register.command.duplicate", name, "duplicate")
		return fmt.Errorf("command already registered: %s", name)
	}
	r.commands[name] = commandRoute{meta: meta, handler: h}
	return nil
}

// RegisterText adds a route for messages whose text equals text exactly.
func (r *Registry) RegisterText(text string, h HandlerFunc) error {
	if h == nil || text == "" {
		warnSkip("register.text.skip", text, "invalid")
		return fmt.Errorf("invalid text registration %q", text)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.texts[text]; dup {
		warnSkip("register.text.duplicate", text, "duplicate")
		return fmt.Errorf("text route already registered: %s", text)
	}
	r.texts[text] = h
	return nil
}

// RegisterCallback adds a route for callback data "<key>|...".
func (r *Registry) RegisterCallback(key string, h HandlerFunc) error {
	if h == nil || key == "" || strings.Contains(key, callbacks.Sep) {
		warnSkip("register.callback.skip", key, "invalid")
		return fmt.Errorf("invalid callback registration %q", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.callbacks[key]; dup {
		warnSkip("register.callback.duplicate", key, "duplicate")
		return fmt.Errorf("callback already registered: %s", key)
	}
	r.callbacks[key] = h
	return nil
}

// SetNonText sets the handler for messages without text.
func (r *Registry) SetNonText(h HandlerFunc) {
	r.mu.Lock()
	r.nonText = h
	r.mu.Unlock()
}

// SetTextFallback sets the handler for text that matches no route.
func (r *Registry) SetTextFallback(h HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

// SetCallbackNotFound replaces the handler for unknown callback keys.
func (r *Registry) SetCallbackNotFound(h HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

// ListCommands returns the menu entries sorted by name, leaving out hidden commands when visibleOnly is set.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]tele.Command, 0, len(r.commands))
	for name, route := range r.commands {
		if visibleOnly && route.meta.Hidden {
			continue
		}
		list = append(list, route.meta.Menu(name))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// Callbacks returns the registered callback keys, sorted.
func (r *Registry) Callbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve picks the handler for u and a short name for logs. The handler is nil
// for updates nobody handles.
func (r *Registry) Resolve(u Update) (string, HandlerFunc) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch u.Kind {
	case UpdateMessage:
		if !u.HasText {
			return "message.non_text", r.nonText
		}
		if route, ok := r.lookupCommand(u.Text); ok {
			return "command:" + u.Text, route.handler
		}
		if h, ok := r.texts[u.Text]; ok {
			return "text:" + normalizeName(u.Text), h
		}
		return "text.fallback", r.textFallback
	case UpdateCallback:
		key, _ := callbacks.Parse(u.Data)
		if h, ok := r.callbacks[key]; ok {
			return "callback:" + key, h
		}
		return "callback.unknown", r.callbackNotFound
	}
	return "update.ignored", nil
}

func (r *Registry) lookupCommand(text string) (commandRoute, bool) {
	if route, ok := r.commands[text]; ok {
		return route, true
	}
	for _, route := range r.commands {
		for _, alias := range route.meta.Aliases {
			if alias == text || "/"+alias == text {
				return route, true
			}
		}
	}
	return commandRoute{}, false
}

func normalizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}
