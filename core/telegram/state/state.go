// Package state provides a per-chat conversation state machine for Telegram
// bots: a state→handler table dispatched from one stable text subscription,
// with optional per-step deadlines.
package state

import (
	"sync"
	"time"

	"github.com/veltapay/paybot/core/logger"
	tghelpers "github.com/veltapay/paybot/core/telegram/helpers"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// State identifies a conversation step.
type State string

// StateIdle indicates there is no active conversation with the chat.
const StateIdle State = "idle"

type session struct {
	state  State
	values map[string]string
	// gen invalidates pending deadline timers when the flow advances,
	// completes, or is cancelled.
	gen uint64
}

// Manager owns chat sessions, the state→handler table, and step deadlines.
// All state is keyed by chat id; handlers never observe another chat's flow.
type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]*session
	handlers map[State]tele.HandlerFunc
	onExpire func(chatID int64, st State)
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[int64]*session),
		handlers: make(map[State]tele.HandlerFunc),
	}
}

// RegisterHandler associates a state with its text-input handler.
func (m *Manager) RegisterHandler(st State, h tele.HandlerFunc) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[st] = h
}

// SetOnExpire installs the callback invoked when a step deadline fires.
// The session is already cleared when the callback runs.
func (m *Manager) SetOnExpire(fn func(chatID int64, st State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = fn
}

// Transition moves the chat into st and arms a deadline when timeout > 0.
// Any previously armed deadline for the chat is invalidated.
func (m *Manager) Transition(chatID int64, st State, timeout time.Duration) {
	m.mu.Lock()
	sess, ok := m.sessions[chatID]
	if !ok {
		sess = &session{values: make(map[string]string)}
		m.sessions[chatID] = sess
	}
	sess.state = st
	sess.gen++
	gen := sess.gen
	m.mu.Unlock()

	if timeout <= 0 {
		return
	}
	time.AfterFunc(timeout, func() {
		m.expire(chatID, st, gen)
	})
}

func (m *Manager) expire(chatID int64, st State, gen uint64) {
	m.mu.Lock()
	sess, ok := m.sessions[chatID]
	if !ok || sess.gen != gen || sess.state != st {
		// flow moved on; the timer is stale
		m.mu.Unlock()
		return
	}
	delete(m.sessions, chatID)
	onExpire := m.onExpire
	m.mu.Unlock()

	logger.LogEvent(logger.Background(), logger.Flow, slog.LevelInfo, "step.timeout",
		slog.Int64("chat_id", chatID),
		slog.String("state", string(st)),
	)
	if onExpire != nil {
		onExpire(chatID, st)
	}
}

// Get returns the current state of a chat, or StateIdle if none exists.
func (m *Manager) Get(chatID int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.sessions[chatID]; ok {
		return sess.state
	}
	return StateIdle
}

// InProgress reports whether the chat currently has an active conversation.
func (m *Manager) InProgress(chatID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[chatID]
	return ok && sess.state != StateIdle
}

// Clear removes the session for a chat and invalidates pending deadlines.
func (m *Manager) Clear(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[chatID]; ok {
		sess.gen++
	}
	delete(m.sessions, chatID)
}

// SetValue stores a string value scoped to the chat's active conversation.
func (m *Manager) SetValue(chatID int64, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[chatID]
	if !ok {
		sess = &session{values: make(map[string]string)}
		m.sessions[chatID] = sess
	}
	sess.values[key] = value
}

// Value retrieves a conversation-scoped value by key.
func (m *Manager) Value(chatID int64, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[chatID]
	if !ok {
		return "", false
	}
	v, ok := sess.values[key]
	return v, ok
}

// Dispatch executes the handler registered for the chat's current state.
// Unknown states are ignored so a stray message after completion is a no-op.
func (m *Manager) Dispatch(c tele.Context) error {
	chatID := tghelpers.ChatID(c)
	current := m.Get(chatID)
	ctx := tghelpers.BuildContext(c)
	logger.Debug(ctx, "flow", "fsm.dispatch",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
		slog.String("state", string(current)),
	)

	m.mu.RLock()
	handler, ok := m.handlers[current]
	m.mu.RUnlock()
	if ok {
		return handler(c)
	}
	return nil
}
