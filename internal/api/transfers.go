package api

import (
	"context"
	"fmt"
	"net/http"
)

// SendRequest submits an email transfer. Amounts travel as the user's
// original decimal string; the gateway owns precision handling.
type SendRequest struct {
	Email       string `json:"email"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
	WalletID    string `json:"walletId,omitempty"`
}

// Send submits an email transfer and returns the created transfer record.
func (c *Client) Send(ctx context.Context, token string, req SendRequest) (Transfer, error) {
	var out Transfer
	err := c.do(ctx, http.MethodPost, "/transfers/send", token, req, &out)
	return out, err
}

// WalletWithdrawRequest submits an on-chain withdrawal.
type WalletWithdrawRequest struct {
	Address string `json:"walletAddress"`
	Amount  string `json:"amount"`
	Network string `json:"network"`
}

// WithdrawWallet submits a withdrawal to an external wallet address.
func (c *Client) WithdrawWallet(ctx context.Context, token string, req WalletWithdrawRequest) (Transfer, error) {
	var out Transfer
	err := c.do(ctx, http.MethodPost, "/transfers/wallet-withdraw", token, req, &out)
	return out, err
}

// BankWithdrawRequest submits an off-ramp to the linked bank account.
type BankWithdrawRequest struct {
	Amount string `json:"amount"`
}

// WithdrawBank submits a bank withdrawal.
func (c *Client) WithdrawBank(ctx context.Context, token string, req BankWithdrawRequest) (Transfer, error) {
	var out Transfer
	err := c.do(ctx, http.MethodPost, "/transfers/offramp", token, req, &out)
	return out, err
}

// Transfers fetches one page of transfer history.
func (c *Client) Transfers(ctx context.Context, token string, page, limit int) (TransferPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	var out TransferPage
	path := fmt.Sprintf("/transfers?page=%d&limit=%d", page, limit)
	err := c.do(ctx, http.MethodGet, path, token, nil, &out)
	return out, err
}
