// Package app is the composition root: it wires the session store, the
// payments gateway, the conversation engine, and the notification relay into
// the bot's command and callback surface.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/veltapay/paybot/core/config"
	coretelegram "github.com/veltapay/paybot/core/telegram"
	tghelpers "github.com/veltapay/paybot/core/telegram/helpers"
	"github.com/veltapay/paybot/core/telegram/router"
	"github.com/veltapay/paybot/core/telegram/state"
	"github.com/veltapay/paybot/internal/api"
	"github.com/veltapay/paybot/internal/flow"
	"github.com/veltapay/paybot/internal/notify"
	"github.com/veltapay/paybot/internal/session"
)

// App owns every long-lived component of the bot.
type App struct {
	cfg      *coreconfig.Config
	client   *api.Client
	sessions *session.Store
	engine   *flow.Engine
	relay    *notify.Relay

	botMu sync.RWMutex
	bot   *tele.Bot
}

// New wires the application on top of an established Redis connection.
func New(cfg *coreconfig.Config, rdb *redis.Client) *App {
	a := &App{cfg: cfg}

	a.client = api.NewClient(cfg.API)
	a.sessions = session.NewStore(rdb, time.Duration(cfg.Redis.SessionTTLSeconds)*time.Second)
	a.relay = notify.NewRelay(cfg.Pusher, a.client, a.sessions, a.sendText)

	states := state.NewManager()
	a.engine = flow.NewEngine(a.client, a.sessions, session.NewOtpStore(), flow.NewDrafts(), states, a.relay, flow.StepTimeout)

	states.SetOnExpire(func(chatID int64, st state.State) {
		a.engine.Drafts().Clear(chatID)
		_ = a.sendText(chatID, "That took too long, so I cancelled the current step. Start again when you're ready.")
	})
	a.registerStateHandlers(states)
	return a
}

// TelegramRunOptions assembles the registry, middleware chain, and routes.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	a.registerCommands(reg)
	if err := a.registerCallbacks(reg); err != nil {
		return coretelegram.RunOptions{}, err
	}

	reg.SetTextFallback(func(c tele.Context) error {
		return c.Send("I didn't understand that. Try /help.")
	})

	routes := router.TextRoutes(a.engine.States(), reg, router.TextOptions{})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.CommandRoutes(reg)...)

	return coretelegram.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.botMu.Lock()
			a.bot = rt.Bot
			a.botMu.Unlock()
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.relay.Close()
			return nil
		},
	}, nil
}

// sendText delivers a plain message outside of a handler context, used by the
// notification relay and step-timeout hook.
func (a *App) sendText(chatID int64, text string) error {
	a.botMu.RLock()
	bot := a.bot
	a.botMu.RUnlock()
	if bot == nil {
		return fmt.Errorf("bot not running")
	}
	_, err := bot.Send(&tele.Chat{ID: chatID}, text)
	return err
}

// reply renders a flow reply through the handler's tele.Context.
func reply(c tele.Context, r flow.Reply) error {
	if r.Text == "" {
		return nil
	}
	var opts []any
	if r.Markup != nil {
		opts = append(opts, r.Markup)
	}
	if r.Markdown {
		opts = append(opts, tele.ModeMarkdown)
	}
	return c.Send(r.Text, opts...)
}

// chatCtx extracts the request context and chat id from a handler call.
func chatCtx(c tele.Context) (context.Context, int64) {
	return tghelpers.BuildContext(c), tghelpers.ChatID(c)
}

// registerStateHandlers binds each conversation state to its engine step.
func (a *App) registerStateHandlers(states *state.Manager) {
	text := func(fn func(ctx context.Context, chatID int64, text string) flow.Reply) tele.HandlerFunc {
		return func(c tele.Context) error {
			ctx, chatID := chatCtx(c)
			return reply(c, fn(ctx, chatID, c.Text()))
		}
	}

	states.RegisterHandler(flow.StateAwaitingEmail, text(a.engine.SubmitEmail))
	states.RegisterHandler(flow.StateAwaitingOtp, text(a.engine.SubmitOTP))
	states.RegisterHandler(flow.StateAwaitingRecipient, text(a.engine.SubmitRecipient))
	states.RegisterHandler(flow.StateAwaitingAmount, text(a.engine.SubmitAmount))
	states.RegisterHandler(flow.StateAwaitingDescription, text(a.engine.SubmitDescription))
	states.RegisterHandler(flow.StateAwaitingWalletAddress, text(a.engine.SubmitAddress))

	// confirmation and network steps accept buttons only; stray text gets a
	// nudge back to the keyboard
	useButtons := func(c tele.Context) error {
		return c.Send("Please use the buttons above.")
	}
	states.RegisterHandler(flow.StateAwaitingConfirmation, useButtons)
	states.RegisterHandler(flow.StateAwaitingBankConfirmation, useButtons)
	states.RegisterHandler(flow.StateAwaitingNetwork, useButtons)
}
