package flow

import (
	"context"
	"log/slog"

	"github.com/veltapay/paybot/core/logger"
	"github.com/veltapay/paybot/internal/session"
)

// BeginLogin starts the email → OTP exchange. A chat with a live session is
// rejected immediately.
func (e *Engine) BeginLogin(ctx context.Context, chatID int64) Reply {
	sess, err := e.sessions.Get(ctx, chatID)
	if err != nil {
		logger.Error(ctx, "flow", "login.session_check_failed",
			slog.String("status", "error"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return Reply{Text: "Something went wrong, please try again."}
	}
	if sess != nil {
		return Reply{Text: "You are already logged in. Use /logout to switch accounts."}
	}

	e.states.Transition(chatID, StateAwaitingEmail, e.timeout)
	logger.Info(ctx, "flow", "login.started",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
		slog.String("state", string(StateAwaitingEmail)),
	)
	return Reply{Text: "Please enter your email address."}
}

// SubmitEmail handles text while AwaitingEmail. Malformed input aborts the
// flow; the user must reissue /login.
func (e *Engine) SubmitEmail(ctx context.Context, chatID int64, text string) Reply {
	if !ValidEmail(text) {
		e.states.Clear(chatID)
		return Reply{Text: "That doesn't look like an email address. Use /login to try again."}
	}

	email := normalizeEmail(text)
	sid, err := e.gw.RequestOTP(ctx, email)
	if err != nil {
		e.states.Clear(chatID)
		logger.Warn(ctx, "flow", "login.otp_request_failed",
			slog.String("status", "error"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return Reply{Text: userMessage(err)}
	}

	e.otps.Put(email, sid)
	e.states.SetValue(chatID, stateValueEmail, email)
	e.states.Transition(chatID, StateAwaitingOtp, e.timeout)
	logger.Info(ctx, "flow", "login.otp_requested",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
		slog.String("email", email),
	)
	return Reply{Text: "We emailed you a one-time code. Please enter it here."}
}

// SubmitOTP handles text while AwaitingOtp: authenticate, persist the
// session, recover the organization id when the auth response omits it, and
// start the deposit-notification subscription.
func (e *Engine) SubmitOTP(ctx context.Context, chatID int64, text string) Reply {
	otp, ok := NormalizeOTP(text)
	if !ok {
		e.states.Clear(chatID)
		return Reply{Text: "The code must be up to 6 digits. Use /login to try again."}
	}

	email, _ := e.states.Value(chatID, stateValueEmail)
	sid, _ := e.otps.Consume(email)

	res, err := e.gw.AuthenticateOTP(ctx, email, otp, sid)
	if err != nil {
		e.states.Clear(chatID)
		logger.Warn(ctx, "flow", "login.auth_failed",
			slog.String("status", "error"),
			slog.Int64("chat_id", chatID),
			slog.String("email", email),
			slog.String("err", err.Error()),
		)
		return Reply{Text: userMessage(err)}
	}

	sess := &session.ChatSession{
		ChatID:         chatID,
		Token:          res.Token,
		RefreshToken:   res.RefreshToken,
		OrganizationID: res.OrganizationID,
	}
	if res.ExpiresIn > 0 {
		sess.ExpiresAt = nowUnix() + res.ExpiresIn
	}
	if sess.OrganizationID == "" {
		profile, err := e.gw.Me(ctx, sess.Token)
		if err != nil {
			e.states.Clear(chatID)
			return Reply{Text: userMessage(err)}
		}
		sess.OrganizationID = profile.OrganizationID
	}

	if err := e.sessions.Put(ctx, sess); err != nil {
		e.states.Clear(chatID)
		logger.Error(ctx, "flow", "login.session_store_failed",
			slog.String("status", "error"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return Reply{Text: "Something went wrong, please try again."}
	}

	e.states.Clear(chatID)
	if err := e.notify.Subscribe(ctx, chatID); err != nil {
		// login still succeeded; deposits just won't push until resubscribed
		logger.Warn(ctx, "flow", "login.subscribe_failed",
			slog.String("status", "error"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
	logger.Info(ctx, "flow", "login.completed",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
		slog.String("org_id", sess.OrganizationID),
	)
	return Reply{Text: "You're logged in. Deposit notifications are on. Try /balance."}
}

// Logout releases the notification channel first, then deletes the session
// and any in-flight conversation.
func (e *Engine) Logout(ctx context.Context, chatID int64) Reply {
	sess, err := e.sessions.Get(ctx, chatID)
	if err != nil {
		return Reply{Text: "Something went wrong, please try again."}
	}
	if sess == nil {
		return Reply{Text: "You are not logged in."}
	}

	if err := e.notify.Unsubscribe(ctx, chatID); err != nil {
		logger.Warn(ctx, "flow", "logout.unsubscribe_failed",
			slog.String("status", "error"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
	if err := e.sessions.Delete(ctx, chatID); err != nil {
		return Reply{Text: "Something went wrong, please try again."}
	}
	e.Abort(chatID)
	return Reply{Text: "You've been logged out."}
}
