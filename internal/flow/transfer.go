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

// BeginSend starts the email-transfer flow:
// recipient → amount → description → confirm.
func (e *Engine) BeginSend(ctx context.Context, chatID int64) Reply {
	_, deny, err := e.authedSession(ctx, chatID)
	if err != nil || deny != nil {
		if deny != nil {
			return *deny
		}
		return Reply{Text: "Something went wrong, please try again."}
	}

	e.drafts.BeginSend(chatID)
	e.states.Transition(chatID, StateAwaitingRecipient, e.timeout)
	logger.Info(ctx, "flow", "send.started",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
	)
	return Reply{Text: "Who are you sending to? Enter the recipient's email."}
}

// SubmitRecipient handles text while AwaitingRecipient. Invalid input
// re-prompts without advancing.
func (e *Engine) SubmitRecipient(ctx context.Context, chatID int64, text string) Reply {
	draft, ok := e.drafts.Send(chatID)
	if !ok {
		e.states.Clear(chatID)
		return Reply{Text: "No transfer in progress. Use /send to start one."}
	}
	if !ValidRecipient(text) {
		return Reply{Text: "Please enter a valid recipient email."}
	}

	draft.Recipient = normalizeEmail(text)
	e.states.Transition(chatID, StateAwaitingAmount, e.timeout)
	return Reply{Text: "How much? Enter the amount (e.g. 10.50)."}
}

// SubmitAmount handles text while AwaitingAmount for whichever flow owns the
// chat's draft. Invalid amounts re-prompt without advancing.
func (e *Engine) SubmitAmount(ctx context.Context, chatID int64, text string) Reply {
	if !ValidAmount(text) {
		return Reply{Text: "Please enter a positive amount with up to 6 decimal places."}
	}
	amount := strings.TrimSpace(text)

	if draft, ok := e.drafts.Send(chatID); ok {
		draft.Amount = amount
		e.states.Transition(chatID, StateAwaitingDescription, e.timeout)
		return Reply{Text: "Add a description, or type \"skip\"."}
	}
	if draft, ok := e.drafts.Wallet(chatID); ok {
		draft.Amount = amount
		e.states.Transition(chatID, StateAwaitingNetwork, e.timeout)
		return Reply{
			Text: "Which network?",
			Markup: keyboard.InlineButtonsRows([]keyboard.InlineBtn{
				{Text: "Polygon", Unique: CbNetworkPolygon},
				{Text: "Arbitrum", Unique: CbNetworkArbitrum},
			}),
		}
	}
	if draft, ok := e.drafts.Bank(chatID); ok {
		draft.Amount = amount
		e.states.Transition(chatID, StateAwaitingBankConfirmation, e.timeout)
		return Reply{
			Text:     fmt.Sprintf("Withdraw *%s* to your linked bank account?", draft.Amount),
			Markup:   keyboard.ConfirmCancel("Confirm", CbConfirmBankWd, "Cancel", CbCancelWithdraw),
			Markdown: true,
		}
	}

	e.states.Clear(chatID)
	return Reply{Text: "No transfer in progress. Use /send or /withdraw to start one."}
}

// SubmitDescription handles text while AwaitingDescription and presents the
// confirmation gate.
func (e *Engine) SubmitDescription(ctx context.Context, chatID int64, text string) Reply {
	draft, ok := e.drafts.Send(chatID)
	if !ok {
		e.states.Clear(chatID)
		return Reply{Text: "No transfer in progress. Use /send to start one."}
	}

	draft.Description = NormalizeDescription(text)
	e.states.Transition(chatID, StateAwaitingConfirmation, e.timeout)

	summary := fmt.Sprintf("Send *%s* to %s", draft.Amount, format.EscapeMarkdown(draft.Recipient))
	if draft.Description != "" {
		summary += fmt.Sprintf(" (%s)", format.EscapeMarkdown(draft.Description))
	}
	return Reply{
		Text:     summary + "?",
		Markup:   keyboard.ConfirmCancel("Confirm", CbConfirmSend, "Cancel", CbCancelSend),
		Markdown: true,
	}
}

// ConfirmSend consumes the draft and submits the transfer. The chat must be
// sitting at the confirmation gate: a second tap, a tap after timeout, or a
// stale button pressed mid-collection all report "no pending request" and
// leave any in-progress flow untouched.
func (e *Engine) ConfirmSend(ctx context.Context, chatID int64) Reply {
	if e.states.Get(chatID) != StateAwaitingConfirmation {
		return Reply{Text: "No pending request."}
	}
	draft, ok := e.drafts.ConsumeSend(chatID)
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

	wallet, err := e.gw.DefaultWallet(ctx, sess.Token)
	if err != nil {
		logger.Warn(ctx, "flow", "send.default_wallet_failed",
			slog.String("status", "error"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return Reply{Text: userMessage(err)}
	}

	transfer, err := e.gw.Send(ctx, sess.Token, sendRequest(draft, wallet.ID))
	if err != nil {
		logger.Warn(ctx, "flow", "send.failed",
			slog.String("status", "error"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return Reply{Text: userMessage(err)}
	}

	logger.Info(ctx, "flow", "send.submitted",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
		slog.String("transfer_id", transfer.ID),
	)
	return Reply{Text: fmt.Sprintf("Transfer submitted. ID: %s", transfer.ID)}
}

// CancelSend discards the draft. A stale tap with nothing to cancel reports
// "no pending request" like the confirm path.
func (e *Engine) CancelSend(ctx context.Context, chatID int64) Reply {
	_, ok := e.drafts.ConsumeSend(chatID)
	e.states.Clear(chatID)
	if !ok {
		return Reply{Text: "No pending request."}
	}
	return Reply{Text: "Transfer cancelled."}
}

func sendRequest(draft *SendDraft, walletID string) api.SendRequest {
	return api.SendRequest{
		Email:       draft.Recipient,
		Amount:      draft.Amount,
		Description: draft.Description,
		WalletID:    walletID,
	}
}
