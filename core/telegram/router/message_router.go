package router

import (
	"time"

	tg "github.com/veltapay/paybot/core/telegram"
	"github.com/veltapay/paybot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// FSM defines the minimal interface for a conversation state manager.
type FSM interface {
	InProgress(chatID int64) bool
	Dispatch(c tele.Context) error
}

// TextOptions controls fallback behaviour for text updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// TextRoutes builds the text routing handler. An active conversation for the
// chat takes precedence; otherwise the text is matched against registered
// commands and finally handed to the fallback.
func TextRoutes(fsmMgr FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		chatID := int64(0)
		if chat := c.Chat(); chat != nil {
			chatID = chat.ID
		} else if sender := c.Sender(); sender != nil {
			chatID = sender.ID
		}

		if fsmMgr != nil && fsmMgr.InProgress(chatID) {
			return handleWithSummary(c, "fsm", start, func() error {
				return fsmMgr.Dispatch(c)
			})
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, func() error {
					return cmd.Handler(c)
				})
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", nil)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
	}
}
