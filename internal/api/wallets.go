package api

import (
	"context"
	"net/http"
)

// Wallets lists the organization's wallets.
func (c *Client) Wallets(ctx context.Context, token string) ([]Wallet, error) {
	var out []Wallet
	err := c.do(ctx, http.MethodGet, "/wallets", token, nil, &out)
	return out, err
}

// Balances fetches asset balances grouped per wallet.
func (c *Client) Balances(ctx context.Context, token string) ([]WalletBalance, error) {
	var out []WalletBalance
	err := c.do(ctx, http.MethodGet, "/wallets/balances", token, nil, &out)
	return out, err
}

// DefaultWallet returns the wallet used as the funding source for email
// transfers.
func (c *Client) DefaultWallet(ctx context.Context, token string) (Wallet, error) {
	var out Wallet
	err := c.do(ctx, http.MethodGet, "/wallets/default", token, nil, &out)
	return out, err
}

type setDefaultPayload struct {
	WalletID string `json:"walletId"`
}

// SetDefaultWallet switches the default wallet.
func (c *Client) SetDefaultWallet(ctx context.Context, token, walletID string) (Wallet, error) {
	var out Wallet
	err := c.do(ctx, http.MethodPut, "/wallets/default", token, setDefaultPayload{WalletID: walletID}, &out)
	return out, err
}
