package app

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	coretelegram "github.com/veltapay/paybot/core/telegram"
	"github.com/veltapay/paybot/core/telegram/commands"
	"github.com/veltapay/paybot/core/telegram/keyboard"
	"github.com/veltapay/paybot/internal/api"
	"github.com/veltapay/paybot/internal/flow"
	"github.com/veltapay/paybot/internal/session"
)

const historyPageSize = 10

func (a *App) registerCommands(reg *coretelegram.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Welcome and status",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     a.handleHelp,
		Description: "List available commands",
	})
	reg.RegisterCommand("/login", commands.Command{
		Handler: func(c tele.Context) error {
			ctx, chatID := chatCtx(c)
			return reply(c, a.engine.BeginLogin(ctx, chatID))
		},
		Description: "Log in with your email",
	})
	reg.RegisterCommand("/logout", commands.Command{
		Handler: func(c tele.Context) error {
			ctx, chatID := chatCtx(c)
			return reply(c, a.engine.Logout(ctx, chatID))
		},
		Description: "Log out and stop notifications",
	})
	reg.RegisterCommand("/profile", commands.Command{
		Handler:     a.handleProfile,
		Description: "Show your account and KYC status",
	})
	reg.RegisterCommand("/balance", commands.Command{
		Handler:     a.handleBalance,
		Description: "Show wallet balances",
	})
	reg.RegisterCommand("/wallets", commands.Command{
		Handler:     a.handleWallets,
		Description: "List your wallets",
	})
	reg.RegisterCommand("/setdefaultwallet", commands.Command{
		Handler:     a.handleSetDefaultWallet,
		Description: "Choose the default wallet",
	})
	reg.RegisterCommand("/send", commands.Command{
		Handler: func(c tele.Context) error {
			ctx, chatID := chatCtx(c)
			return reply(c, a.engine.BeginSend(ctx, chatID))
		},
		Description: "Send funds to an email",
	})
	reg.RegisterCommand("/withdraw", commands.Command{
		Handler: func(c tele.Context) error {
			ctx, chatID := chatCtx(c)
			return reply(c, a.engine.BeginWithdraw(ctx, chatID))
		},
		Description: "Withdraw to a wallet or bank",
	})
	reg.RegisterCommand("/history", commands.Command{
		Handler:     a.handleHistory,
		Description: "Show recent transfers",
	})
}

// requireSession loads the chat's session or tells the user to log in.
// Going through the engine renews a near-expiry token and re-arms the
// session TTL on activity. The bool reports whether the handler may proceed.
func (a *App) requireSession(c tele.Context) (context.Context, *session.ChatSession, bool, error) {
	ctx, chatID := chatCtx(c)
	sess, deny := a.engine.Session(ctx, chatID)
	if deny != nil {
		return ctx, nil, false, reply(c, *deny)
	}
	return ctx, sess, true, nil
}

func (a *App) handleStart(c tele.Context) error {
	ctx, chatID := chatCtx(c)
	sess, err := a.sessions.Get(ctx, chatID)
	if err == nil && sess != nil {
		return c.Send("Welcome back! You're logged in. Try /balance or /send.")
	}
	return c.Send("Welcome to VeltaPay. Use /login to connect your account, then /help for the full command list.")
}

func (a *App) handleHelp(c tele.Context) error {
	lines := []string{
		"/start - welcome and status",
		"/login - log in with your email",
		"/logout - log out and stop notifications",
		"/profile - account and KYC status",
		"/balance - wallet balances",
		"/wallets - list your wallets",
		"/setdefaultwallet - choose the default wallet",
		"/send - send funds to an email",
		"/withdraw - withdraw to a wallet or bank",
		"/history - recent transfers",
	}
	return c.Send("Here's what I can do:\n" + strings.Join(lines, "\n"))
}

func (a *App) handleProfile(c tele.Context) error {
	ctx, sess, ok, err := a.requireSession(c)
	if !ok {
		return err
	}

	profile, err := a.client.Me(ctx, sess.Token)
	if err != nil {
		return c.Send(errText(err))
	}
	kycs, err := a.client.KYCs(ctx, sess.Token)
	if err != nil {
		return c.Send(errText(err))
	}

	kycStatus := "not started"
	if len(kycs) > 0 {
		kycStatus = kycs[0].Status
	}
	name := strings.TrimSpace(profile.FirstName + " " + profile.LastName)
	if name == "" {
		name = profile.Email
	}
	return c.Send(fmt.Sprintf("Account: %s\nEmail: %s\nKYC: %s", name, profile.Email, kycStatus))
}

func (a *App) handleBalance(c tele.Context) error {
	ctx, sess, ok, err := a.requireSession(c)
	if !ok {
		return err
	}

	balances, err := a.client.Balances(ctx, sess.Token)
	if err != nil {
		return c.Send(errText(err))
	}
	if len(balances) == 0 {
		return c.Send("No balances yet.")
	}

	var b strings.Builder
	b.WriteString("Your balances:\n")
	for _, wb := range balances {
		label := wb.Network
		if wb.IsDefault {
			label += " (default)"
		}
		fmt.Fprintf(&b, "%s:\n", label)
		if len(wb.Balances) == 0 {
			b.WriteString("  empty\n")
			continue
		}
		for _, asset := range wb.Balances {
			fmt.Fprintf(&b, "  %s %s\n", asset.Balance, asset.Symbol)
		}
	}
	return c.Send(strings.TrimRight(b.String(), "\n"))
}

func (a *App) handleWallets(c tele.Context) error {
	ctx, sess, ok, err := a.requireSession(c)
	if !ok {
		return err
	}

	wallets, err := a.client.Wallets(ctx, sess.Token)
	if err != nil {
		return c.Send(errText(err))
	}
	if len(wallets) == 0 {
		return c.Send("You have no wallets yet.")
	}

	var b strings.Builder
	b.WriteString("Your wallets:\n")
	for _, w := range wallets {
		marker := ""
		if w.IsDefault {
			marker = " (default)"
		}
		fmt.Fprintf(&b, "%s [%s]%s\n%s\n", walletLabel(w), w.Network, marker, w.Address)
	}
	return c.Send(strings.TrimRight(b.String(), "\n"))
}

func (a *App) handleSetDefaultWallet(c tele.Context) error {
	ctx, sess, ok, err := a.requireSession(c)
	if !ok {
		return err
	}

	wallets, err := a.client.Wallets(ctx, sess.Token)
	if err != nil {
		return c.Send(errText(err))
	}
	if len(wallets) == 0 {
		return c.Send("You have no wallets yet.")
	}

	buttons := make([]keyboard.InlineBtn, 0, len(wallets))
	for _, w := range wallets {
		label := walletLabel(w) + " [" + w.Network + "]"
		if w.IsDefault {
			label += " ✓"
		}
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   label,
			Unique: flow.CbDefaultWallet,
			Data:   w.ID,
		})
	}
	return c.Send("Pick your default wallet:", keyboard.InlineButtons(buttons))
}

func (a *App) handleHistory(c tele.Context) error {
	ctx, sess, ok, err := a.requireSession(c)
	if !ok {
		return err
	}

	page, err := a.client.Transfers(ctx, sess.Token, 1, historyPageSize)
	if err != nil {
		return c.Send(errText(err))
	}
	if len(page.Data) == 0 {
		return c.Send("No transfers yet.")
	}

	var b strings.Builder
	b.WriteString("Recent transfers:\n")
	for _, tr := range page.Data {
		line := fmt.Sprintf("%s %s - %s", tr.Amount, tr.Currency, tr.Status)
		if tr.Recipient != "" {
			line += " to " + tr.Recipient
		}
		b.WriteString(line + "\n")
	}
	if page.Count > len(page.Data) {
		fmt.Fprintf(&b, "Showing %d of %d.", len(page.Data), page.Count)
	}
	return c.Send(strings.TrimRight(b.String(), "\n"))
}

func walletLabel(w api.Wallet) string {
	if w.Name != "" {
		return w.Name
	}
	if len(w.Address) > 10 {
		return w.Address[:6] + "…" + w.Address[len(w.Address)-4:]
	}
	return w.Address
}

// errText mirrors the flow engine's error rendering for plain handlers.
func errText(err error) string {
	if apiErr, ok := err.(*api.Error); ok {
		return apiErr.Message
	}
	return "Something went wrong, please try again."
}
