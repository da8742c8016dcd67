// Package notify relays deposit push notifications: one websocket
// subscription per authenticated chat, scoped to the chat's organization
// channel, forwarding deposit events as chat messages.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	coreconfig "github.com/veltapay/paybot/core/config"
	"github.com/veltapay/paybot/core/logger"
	"github.com/veltapay/paybot/internal/session"
)

// SessionSource provides the chat's current session. The relay re-reads it
// on every channel-authorization attempt so a refreshed token keeps the
// subscription valid.
type SessionSource interface {
	Get(ctx context.Context, chatID int64) (*session.ChatSession, error)
}

// ChannelAuthorizer signs private-channel subscriptions.
type ChannelAuthorizer interface {
	AuthorizeChannel(ctx context.Context, token, socketID, channel string) (string, error)
}

// SendFunc delivers a text notice to a chat.
type SendFunc func(chatID int64, text string) error

type subscription struct {
	channel string
	conn    *websocket.Conn
	done    chan struct{}

	writeMu sync.Mutex
}

// Relay manages per-chat deposit subscriptions over the push service.
type Relay struct {
	endpoint string
	auth     ChannelAuthorizer
	sessions SessionSource
	send     SendFunc
	dialer   *websocket.Dialer

	mu   sync.Mutex
	subs map[int64]*subscription
}

// NewRelay builds a relay against the configured push application.
func NewRelay(cfg coreconfig.PusherConfig, auth ChannelAuthorizer, sessions SessionSource, send SendFunc) *Relay {
	return &Relay{
		endpoint: fmt.Sprintf("wss://ws-%s.pusher.com/app/%s?protocol=7&client=paybot&version=1.0", cfg.Cluster, cfg.Key),
		auth:     auth,
		sessions: sessions,
		send:     send,
		dialer:   websocket.DefaultDialer,
		subs:     make(map[int64]*subscription),
	}
}

// SetEndpoint overrides the push service URL; tests point it at a local
// server.
func (r *Relay) SetEndpoint(url string) { r.endpoint = url }

// Subscribe opens the chat's organization channel. Subscribing an already
// subscribed chat is a no-op.
func (r *Relay) Subscribe(ctx context.Context, chatID int64) error {
	r.mu.Lock()
	if _, ok := r.subs[chatID]; ok {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	sess, err := r.sessions.Get(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return fmt.Errorf("no session for chat %d", chatID)
	}
	channel := "private-org-" + sess.OrganizationID

	conn, _, err := r.dialer.DialContext(ctx, r.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial push service: %w", err)
	}

	socketID, err := awaitSocketID(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}

	// the current token, not the one captured at login
	authSess, err := r.sessions.Get(ctx, chatID)
	if err != nil || authSess == nil {
		_ = conn.Close()
		return fmt.Errorf("session gone during subscribe for chat %d", chatID)
	}
	signature, err := r.auth.AuthorizeChannel(ctx, authSess.Token, socketID, channel)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("authorize channel: %w", err)
	}

	sub := &subscription{channel: channel, conn: conn, done: make(chan struct{})}
	if err := sub.writeEvent(evSubscribe, subscribeData{Auth: signature, Channel: channel}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("subscribe channel: %w", err)
	}

	r.mu.Lock()
	if _, ok := r.subs[chatID]; ok {
		// lost the race to a concurrent subscribe
		r.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	r.subs[chatID] = sub
	r.mu.Unlock()

	go r.readLoop(chatID, sub)

	logger.LogEvent(ctx, logger.Notify, slog.LevelInfo, "relay.subscribed",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
		slog.String("channel", channel),
	)
	return nil
}

// Unsubscribe releases the chat's channel and connection. Unsubscribing a
// chat without a subscription, or one whose session is already cleared, logs
// and no-ops.
func (r *Relay) Unsubscribe(ctx context.Context, chatID int64) error {
	if sess, err := r.sessions.Get(ctx, chatID); err != nil || sess == nil {
		logger.LogEvent(ctx, logger.Notify, slog.LevelInfo, "relay.unsubscribe_no_session",
			slog.String("status", "ok"),
			slog.Int64("chat_id", chatID),
		)
	}

	r.mu.Lock()
	sub, ok := r.subs[chatID]
	delete(r.subs, chatID)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	_ = sub.writeEvent(evUnsubscribe, unsubscribeData{Channel: sub.channel})
	_ = sub.conn.Close()
	<-sub.done

	logger.LogEvent(ctx, logger.Notify, slog.LevelInfo, "relay.unsubscribed",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
		slog.String("channel", sub.channel),
	)
	return nil
}

// Subscribed reports whether the chat currently holds a subscription.
func (r *Relay) Subscribed(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[chatID]
	return ok
}

// Close tears down every subscription, used at shutdown.
func (r *Relay) Close() {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[int64]*subscription)
	r.mu.Unlock()
	for _, sub := range subs {
		_ = sub.conn.Close()
		<-sub.done
	}
}

// awaitSocketID reads frames until the connection handshake completes.
func awaitSocketID(conn *websocket.Conn) (string, error) {
	deadline := time.Now().Add(10 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return "", fmt.Errorf("push handshake: %w", err)
		}
		if f.Event != evConnEstablished {
			continue
		}
		var data connEstablishedData
		if err := decodeEventData(f.Data, &data); err != nil {
			return "", fmt.Errorf("push handshake payload: %w", err)
		}
		if data.SocketID == "" {
			return "", fmt.Errorf("push handshake missing socket id")
		}
		return data.SocketID, nil
	}
}

func (r *Relay) readLoop(chatID int64, sub *subscription) {
	defer close(sub.done)
	for {
		var f frame
		if err := sub.conn.ReadJSON(&f); err != nil {
			r.dropSub(chatID, sub)
			return
		}

		switch f.Event {
		case evPing:
			_ = sub.writeEvent(evPong, struct{}{})
		case evDeposit:
			var dep depositEvent
			if err := decodeEventData(f.Data, &dep); err != nil {
				logger.LogEvent(logger.Background(), logger.Notify, slog.LevelWarn, "relay.bad_deposit_payload",
					slog.String("status", "error"),
					slog.Int64("chat_id", chatID),
					slog.String("err", err.Error()),
				)
				continue
			}
			if err := r.send(chatID, formatDeposit(dep)); err != nil {
				logger.LogEvent(logger.Background(), logger.Notify, slog.LevelWarn, "relay.forward_failed",
					slog.String("status", "error"),
					slog.Int64("chat_id", chatID),
					slog.String("err", err.Error()),
				)
			}
		case evError:
			logger.LogEvent(logger.Background(), logger.Notify, slog.LevelWarn, "relay.push_error",
				slog.String("status", "error"),
				slog.Int64("chat_id", chatID),
				slog.String("err", logger.SanitizeLimit(string(f.Data), 256)),
			)
		}
	}
}

// dropSub removes the subscription after a read failure, unless Unsubscribe
// already did.
func (r *Relay) dropSub(chatID int64, sub *subscription) {
	r.mu.Lock()
	current, ok := r.subs[chatID]
	if ok && current == sub {
		delete(r.subs, chatID)
	}
	r.mu.Unlock()

	if ok && current == sub {
		logger.LogEvent(logger.Background(), logger.Notify, slog.LevelWarn, "relay.connection_lost",
			slog.String("status", "error"),
			slog.Int64("chat_id", chatID),
			slog.String("channel", sub.channel),
		)
	}
}

func (s *subscription) writeEvent(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(frame{Event: event, Data: raw})
}

func formatDeposit(dep depositEvent) string {
	msg := fmt.Sprintf("Deposit received: %s %s", dep.Amount, dep.Currency)
	if dep.Network != "" {
		msg += fmt.Sprintf(" on %s", dep.Network)
	}
	return msg
}
