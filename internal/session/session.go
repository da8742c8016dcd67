// Package session persists per-chat authentication sessions in Redis.
//
// One chat maps to at most one session. Sessions expire server-side via
// key TTL, so a restarted bot process never resurrects a stale login.
package session

// ChatSession is the authenticated state of a single Telegram chat.
type ChatSession struct {
	ChatID         int64  `json:"chatId"`
	Token          string `json:"token"`
	RefreshToken   string `json:"refreshToken,omitempty"`
	OrganizationID string `json:"organizationId"`
	// ExpiresAt is a unix timestamp of the gateway token expiry, when known.
	ExpiresAt int64 `json:"expiresAt,omitempty"`
}
