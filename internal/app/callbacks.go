package app

import (
	"context"

	tele "gopkg.in/telebot.v4"

	coretelegram "github.com/veltapay/paybot/core/telegram"
	"github.com/veltapay/paybot/core/telegram/callbacks"
	"github.com/veltapay/paybot/internal/flow"
)

// registerCallbacks binds every inline-button key. Each confirmation gate has
// its own key, so a press is only ever consumed by the flow that created it.
func (a *App) registerCallbacks(reg *coretelegram.Registry) error {
	press := func(fn func(ctx context.Context, chatID int64) flow.Reply) tele.HandlerFunc {
		return func(c tele.Context) error {
			ctx, chatID := chatCtx(c)
			return reply(c, fn(ctx, chatID))
		}
	}

	bindings := map[string]tele.HandlerFunc{
		flow.CbConfirmSend:     press(a.engine.ConfirmSend),
		flow.CbCancelSend:      press(a.engine.CancelSend),
		flow.CbWithdrawWallet:  press(a.engine.ChooseWalletWithdraw),
		flow.CbWithdrawBank:    press(a.engine.ChooseBankWithdraw),
		flow.CbConfirmWalletWd: press(a.engine.ConfirmWalletWithdraw),
		flow.CbConfirmBankWd:   press(a.engine.ConfirmBankWithdraw),
		flow.CbCancelWithdraw:  press(a.engine.CancelWithdraw),
		flow.CbNetworkPolygon: func(c tele.Context) error {
			ctx, chatID := chatCtx(c)
			return reply(c, a.engine.SelectNetwork(ctx, chatID, "polygon"))
		},
		flow.CbNetworkArbitrum: func(c tele.Context) error {
			ctx, chatID := chatCtx(c)
			return reply(c, a.engine.SelectNetwork(ctx, chatID, "arbitrum"))
		},
		flow.CbDefaultWallet: a.handleDefaultWalletPick,
	}

	for key, handler := range bindings {
		if err := reg.RegisterCallback(key, handler); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) handleDefaultWalletPick(c tele.Context) error {
	ctx, sess, ok, err := a.requireSession(c)
	if !ok {
		return err
	}

	walletID := callbacks.CallbackPayload(c)
	if walletID == "" {
		return c.Send("That button looks stale. Run /setdefaultwallet again.")
	}

	wallet, err := a.client.SetDefaultWallet(ctx, sess.Token, walletID)
	if err != nil {
		return c.Send(errText(err))
	}
	return c.Send("Default wallet updated: " + walletLabel(wallet) + " [" + wallet.Network + "]")
}
