package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/veltapay/paybot/core/logger"
	"github.com/veltapay/paybot/core/telegram/format"
	"github.com/veltapay/paybot/core/telegram/keyboard"
	"github.com/veltapay/paybot/internal/api"
)

// BeginWithdraw offers the destination choice: external wallet or linked
// bank account. The flow proper starts when one is picked.
func (e *Engine) BeginWithdraw(ctx context.Context, chatID int64) Reply {
	_, deny, err := e.authedSession(ctx, chatID)
	if err != nil || deny != nil {
		if deny != nil {
			return *deny
		}
		return Reply{Text: "Something went wrong, please try again."}
	}

	return Reply{
		Text: "Where should the funds go?",
		Markup: keyboard.InlineButtonsRows([]keyboard.InlineBtn{
			{Text: "External wallet", Unique: CbWithdrawWallet},
			{Text: "Bank account", Unique: CbWithdrawBank},
		}),
	}
}

// ChooseWalletWithdraw starts the on-chain withdrawal flow:
// address → amount → network → confirm.
func (e *Engine) ChooseWalletWithdraw(ctx context.Context, chatID int64) Reply {
	e.drafts.BeginWallet(chatID)
	e.states.Transition(chatID, StateAwaitingWalletAddress, e.timeout)
	logger.Info(ctx, "flow", "withdraw.wallet_started",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
	)
	return Reply{Text: "Enter the destination wallet address."}
}

// ChooseBankWithdraw starts the bank withdrawal flow: amount → confirm.
func (e *Engine) ChooseBankWithdraw(ctx context.Context, chatID int64) Reply {
	e.drafts.BeginBank(chatID)
	e.states.Transition(chatID, StateAwaitingAmount, e.timeout)
	logger.Info(ctx, "flow", "withdraw.bank_started",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
	)
	return Reply{Text: "How much? Enter the amount (e.g. 10.50)."}
}

// SubmitAddress handles text while AwaitingWalletAddress. Short addresses
// re-prompt without advancing.
func (e *Engine) SubmitAddress(ctx context.Context, chatID int64, text string) Reply {
	draft, ok := e.drafts.Wallet(chatID)
	if !ok {
		e.states.Clear(chatID)
		return Reply{Text: "No withdrawal in progress. Use /withdraw to start one."}
	}
	if !ValidAddress(text) {
		return Reply{Text: "That address looks too short. Please enter the full wallet address."}
	}

	draft.Address = strings.TrimSpace(text)
	e.states.Transition(chatID, StateAwaitingAmount, e.timeout)
	return Reply{Text: "How much? Enter the amount (e.g. 10.50)."}
}

// SelectNetwork handles the fixed two-option network buttons and presents
// the confirmation gate.
func (e *Engine) SelectNetwork(ctx context.Context, chatID int64, network string) Reply {
	if e.states.Get(chatID) != StateAwaitingNetwork {
		return Reply{Text: "No pending request."}
	}
	if network != "polygon" && network != "arbitrum" {
		return Reply{Text: "Please pick a network using the buttons."}
	}
	draft, ok := e.drafts.Wallet(chatID)
	if !ok {
		e.states.Clear(chatID)
		return Reply{Text: "No pending request."}
	}

	draft.Network = network
	e.states.Transition(chatID, StateAwaitingConfirmation, e.timeout)
	return Reply{
		Text:     fmt.Sprintf("Withdraw *%s* to %s on %s?", draft.Amount, format.EscapeMarkdown(draft.Address), draft.Network),
		Markup:   keyboard.ConfirmCancel("Confirm", CbConfirmWalletWd, "Cancel", CbCancelWithdraw),
		Markdown: true,
	}
}

// ConfirmWalletWithdraw consumes the draft and submits the on-chain
// withdrawal. A tap anywhere but the confirmation gate reports "no pending
// request" without touching the draft.
func (e *Engine) ConfirmWalletWithdraw(ctx context.Context, chatID int64) Reply {
	if e.states.Get(chatID) != StateAwaitingConfirmation {
		return Reply{Text: "No pending request."}
	}
	draft, ok := e.drafts.ConsumeWallet(chatID)
	if !ok {
		return Reply{Text: "No pending request."}
	}
	e.states.Clear(chatID)

	sess, deny, err := e.authedSession(ctx, chatID)
	if err != nil || deny != nil {
		if deny != nil {
			return *deny
		}
		return Reply{Text: "Something went wrong, please try again."}
	}

	transfer, err := e.gw.WithdrawWallet(ctx, sess.Token, api.WalletWithdrawRequest{
		Address: draft.Address,
		Amount:  draft.Amount,
		Network: draft.Network,
	})
	if err != nil {
		logger.Warn(ctx, "flow", "withdraw.wallet_failed",
			slog.String("status", "error"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return Reply{Text: userMessage(err)}
	}

	logger.Info(ctx, "flow", "withdraw.wallet_submitted",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
		slog.String("transfer_id", transfer.ID),
	)
	return Reply{Text: fmt.Sprintf("Withdrawal submitted. ID: %s", transfer.ID)}
}

// ConfirmBankWithdraw consumes the draft and submits the bank withdrawal.
// Only a tap at the bank gate is honored.
func (e *Engine) ConfirmBankWithdraw(ctx context.Context, chatID int64) Reply {
	if e.states.Get(chatID) != StateAwaitingBankConfirmation {
		return Reply{Text: "No pending request."}
	}
	draft, ok := e.drafts.ConsumeBank(chatID)
	if !ok {
		return Reply{Text: "No pending request."}
	}
	e.states.Clear(chatID)

	sess, deny, err := e.authedSession(ctx, chatID)
	if err != nil || deny != nil {
		if deny != nil {
			return *deny
		}
		return Reply{Text: "Something went wrong, please try again."}
	}

	transfer, err := e.gw.WithdrawBank(ctx, sess.Token, api.BankWithdrawRequest{Amount: draft.Amount})
	if err != nil {
		logger.Warn(ctx, "flow", "withdraw.bank_failed",
			slog.String("status", "error"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return Reply{Text: userMessage(err)}
	}

	logger.Info(ctx, "flow", "withdraw.bank_submitted",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
		slog.String("transfer_id", transfer.ID),
	)
	return Reply{Text: fmt.Sprintf("Withdrawal submitted. ID: %s", transfer.ID)}
}

// CancelWithdraw discards whichever withdrawal draft exists. A stale tap
// with nothing to cancel reports "no pending request".
func (e *Engine) CancelWithdraw(ctx context.Context, chatID int64) Reply {
	_, okWallet := e.drafts.ConsumeWallet(chatID)
	_, okBank := e.drafts.ConsumeBank(chatID)
	e.states.Clear(chatID)
	if !okWallet && !okBank {
		return Reply{Text: "No pending request."}
	}
	return Reply{Text: "Withdrawal cancelled."}
}
