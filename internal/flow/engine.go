// Package flow implements the per-chat conversation engine: the login
// (email → OTP → token) exchange and the send / withdraw flows, each driven
// step by step through the state manager and ending in an explicit
// confirm/cancel gate.
package flow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/veltapay/paybot/core/logger"
	"github.com/veltapay/paybot/core/telegram/state"
	"github.com/veltapay/paybot/internal/api"
	"github.com/veltapay/paybot/internal/session"
)

// Conversation states. AwaitingAmount and AwaitingConfirmation are shared
// between flows; the active flow is identified by which draft exists for the
// chat, and confirmations are disambiguated by distinct callback keys.
const (
	StateAwaitingEmail            = state.State("awaiting_email")
	StateAwaitingOtp              = state.State("awaiting_otp")
	StateAwaitingRecipient        = state.State("awaiting_recipient")
	StateAwaitingAmount           = state.State("awaiting_amount")
	StateAwaitingDescription      = state.State("awaiting_description")
	StateAwaitingConfirmation     = state.State("awaiting_confirmation")
	StateAwaitingWalletAddress    = state.State("awaiting_wallet_address")
	StateAwaitingNetwork          = state.State("awaiting_network")
	StateAwaitingBankConfirmation = state.State("awaiting_bank_confirmation")
)

// Callback keys for inline buttons. Each confirmation gate owns a distinct
// key so a press can never be consumed by the wrong flow.
const (
	CbConfirmSend     = "confirm_send"
	CbCancelSend      = "cancel_send"
	CbWithdrawBank    = "withdraw_bank"
	CbWithdrawWallet  = "withdraw_wallet"
	CbNetworkPolygon  = "network_polygon"
	CbNetworkArbitrum = "network_arbitrum"
	CbConfirmWalletWd = "confirm_wallet_withdraw"
	CbConfirmBankWd   = "confirm_bank_withdraw"
	CbCancelWithdraw  = "cancel_withdraw"
	CbDefaultWallet   = "default_wallet"
)

// StepTimeout bounds user inactivity at every conversation step.
const StepTimeout = 5 * time.Minute

// refreshSkew is how close to token expiry a renewal is attempted, so a
// token never lapses mid-flow between the check and the API call.
const refreshSkew = time.Minute

// stateValueEmail keys the pending login email inside the chat's session.
const stateValueEmail = "email"

// Reply is a flow step's outbound message, transport-agnostic so engine
// logic is testable without a bot connection. Markdown selects Telegram
// markdown parse mode; user-supplied values are escaped before interpolation.
type Reply struct {
	Text     string
	Markup   *tele.ReplyMarkup
	Markdown bool
}

// Gateway is the slice of the payments API the engine drives.
type Gateway interface {
	RequestOTP(ctx context.Context, email string) (string, error)
	AuthenticateOTP(ctx context.Context, email, otp, sid string) (api.AuthResult, error)
	Me(ctx context.Context, token string) (api.Profile, error)
	Refresh(ctx context.Context, refreshToken string) (api.AuthResult, error)
	DefaultWallet(ctx context.Context, token string) (api.Wallet, error)
	Send(ctx context.Context, token string, req api.SendRequest) (api.Transfer, error)
	WithdrawWallet(ctx context.Context, token string, req api.WalletWithdrawRequest) (api.Transfer, error)
	WithdrawBank(ctx context.Context, token string, req api.BankWithdrawRequest) (api.Transfer, error)
}

// SessionStore is the persisted chat-session surface the engine needs.
// Refresh re-arms the store TTL without rewriting the payload.
type SessionStore interface {
	Get(ctx context.Context, chatID int64) (*session.ChatSession, error)
	Put(ctx context.Context, sess *session.ChatSession) error
	Delete(ctx context.Context, chatID int64) error
	Refresh(ctx context.Context, chatID int64) error
}

// Notifier manages the chat's deposit-notification subscription.
type Notifier interface {
	Subscribe(ctx context.Context, chatID int64) error
	Unsubscribe(ctx context.Context, chatID int64) error
}

// Engine drives all conversation flows for every chat.
type Engine struct {
	gw       Gateway
	sessions SessionStore
	otps     *session.OtpStore
	drafts   *Drafts
	states   *state.Manager
	notify   Notifier
	timeout  time.Duration
}

// NewEngine wires the engine; timeout <= 0 falls back to StepTimeout.
func NewEngine(gw Gateway, sessions SessionStore, otps *session.OtpStore, drafts *Drafts, states *state.Manager, notify Notifier, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = StepTimeout
	}
	return &Engine{
		gw:       gw,
		sessions: sessions,
		otps:     otps,
		drafts:   drafts,
		states:   states,
		notify:   notify,
		timeout:  timeout,
	}
}

// States exposes the state manager for handler registration and dispatch.
func (e *Engine) States() *state.Manager { return e.states }

// Drafts exposes the draft store, used by the expiry hook to discard
// partial flows.
func (e *Engine) Drafts() *Drafts { return e.drafts }

// Abort discards the chat's conversation and drafts unconditionally.
func (e *Engine) Abort(chatID int64) {
	e.states.Clear(chatID)
	e.drafts.Clear(chatID)
}

// Session returns the chat's live session for command handlers, applying
// the same renewal and TTL re-arm as the conversation flows. A non-nil
// reply means the caller should stop and show it.
func (e *Engine) Session(ctx context.Context, chatID int64) (*session.ChatSession, *Reply) {
	sess, deny, err := e.authedSession(ctx, chatID)
	if deny != nil {
		return nil, deny
	}
	if err != nil {
		return nil, &Reply{Text: "Something went wrong, please try again."}
	}
	return sess, nil
}

// authedSession returns the chat's session or a "please log in" reply. A
// token close to expiry is renewed first; plain activity re-arms the store
// TTL so an active chat stays logged in.
func (e *Engine) authedSession(ctx context.Context, chatID int64) (*session.ChatSession, *Reply, error) {
	sess, err := e.sessions.Get(ctx, chatID)
	if err != nil {
		return nil, &Reply{Text: "Something went wrong, please try again."}, err
	}
	if sess == nil {
		return nil, &Reply{Text: "You are not logged in. Use /login first."}, nil
	}

	if sess.ExpiresAt > 0 && nowUnix() >= sess.ExpiresAt-int64(refreshSkew.Seconds()) {
		return e.renewSession(ctx, sess)
	}

	if err := e.sessions.Refresh(ctx, chatID); err != nil {
		logger.Warn(ctx, "flow", "session.ttl_refresh_failed",
			slog.String("status", "error"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
	return sess, nil, nil
}

// renewSession exchanges the refresh token for a new access token and
// persists the result, so the notification relay picks up the fresh token
// on its next read. A session that cannot be renewed is deleted and the
// user is asked to log in again.
func (e *Engine) renewSession(ctx context.Context, sess *session.ChatSession) (*session.ChatSession, *Reply, error) {
	expired := &Reply{Text: "Your session has expired. Use /login to sign in again."}

	if sess.RefreshToken == "" {
		_ = e.sessions.Delete(ctx, sess.ChatID)
		return nil, expired, nil
	}

	res, err := e.gw.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		logger.Warn(ctx, "flow", "session.renew_failed",
			slog.String("status", "error"),
			slog.Int64("chat_id", sess.ChatID),
			slog.String("err", err.Error()),
		)
		if api.IsAuthError(err) {
			_ = e.sessions.Delete(ctx, sess.ChatID)
			return nil, expired, nil
		}
		return nil, &Reply{Text: "Something went wrong, please try again."}, err
	}

	sess.Token = res.Token
	if res.RefreshToken != "" {
		sess.RefreshToken = res.RefreshToken
	}
	if res.ExpiresIn > 0 {
		sess.ExpiresAt = nowUnix() + res.ExpiresIn
	} else {
		sess.ExpiresAt = 0
	}
	if err := e.sessions.Put(ctx, sess); err != nil {
		return nil, &Reply{Text: "Something went wrong, please try again."}, err
	}

	logger.Info(ctx, "flow", "session.renewed",
		slog.String("status", "ok"),
		slog.Int64("chat_id", sess.ChatID),
	)
	return sess, nil, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func nowUnix() int64 { return time.Now().Unix() }

// userMessage renders an error for the chat. Gateway errors carry
// pre-normalized messages; anything else gets the generic phrase so internal
// details never leak.
func userMessage(err error) string {
	if apiErr, ok := err.(*api.Error); ok {
		return apiErr.Message
	}
	return "Something went wrong, please try again."
}
