package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veltapay/paybot/core/logger"
)

// DefaultTTL is applied when the store is built without an explicit TTL.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "user_session:"

// Store reads and writes chat sessions keyed by chat id.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore builds a Store on top of an established Redis client.
// ttl <= 0 falls back to DefaultTTL.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func sessionKey(chatID int64) string {
	return keyPrefix + strconv.FormatInt(chatID, 10)
}

// Put stores the session under the chat's key with the store TTL.
func (s *Store) Put(ctx context.Context, sess *ChatSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(sess.ChatID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	logger.LogEvent(ctx, logger.Session, slog.LevelInfo, "session.stored",
		slog.String("status", "ok"),
		slog.Int64("chat_id", sess.ChatID),
		slog.String("org_id", sess.OrganizationID),
	)
	return nil
}

// Get returns the chat's session, or (nil, nil) when none is stored.
func (s *Store) Get(ctx context.Context, chatID int64) (*ChatSession, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sess ChatSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Delete removes the chat's session. Deleting a missing session is not an
// error, so logout stays idempotent.
func (s *Store) Delete(ctx context.Context, chatID int64) error {
	if err := s.rdb.Del(ctx, sessionKey(chatID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	logger.LogEvent(ctx, logger.Session, slog.LevelInfo, "session.deleted",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
	)
	return nil
}

// Refresh re-arms the TTL on the chat's key without rewriting the payload.
func (s *Store) Refresh(ctx context.Context, chatID int64) error {
	ok, err := s.rdb.Expire(ctx, sessionKey(chatID), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("refresh session ttl: %w", err)
	}
	if !ok {
		return nil
	}
	logger.LogEvent(ctx, logger.Session, slog.LevelDebug, "session.refreshed",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
	)
	return nil
}
