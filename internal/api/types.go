package api

// Profile is the authenticated account as returned by /auth/me.
type Profile struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Role           string `json:"role"`
	OrganizationID string `json:"organizationId"`
}

// KYC is one verification record from /kycs.
type KYC struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Type   string `json:"type"`
}

// Wallet is a read-only projection of a gateway wallet.
type Wallet struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"walletAddress"`
	Network   string `json:"network"`
	IsDefault bool   `json:"isDefault"`
}

// AssetBalance is one asset position inside a wallet.
type AssetBalance struct {
	Symbol   string `json:"symbol"`
	Balance  string `json:"balance"`
	Decimals int    `json:"decimals"`
	Address  string `json:"address"`
}

// WalletBalance groups asset balances per wallet, shape of /wallets/balances.
type WalletBalance struct {
	WalletID  string         `json:"walletId"`
	Network   string         `json:"network"`
	IsDefault bool           `json:"isDefault"`
	Balances  []AssetBalance `json:"balances"`
}

// Transfer is one history entry or submission receipt.
type Transfer struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Type      string `json:"type"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Recipient string `json:"recipient"`
	CreatedAt string `json:"createdAt"`
}

// TransferPage is one page of transfer history.
type TransferPage struct {
	Data  []Transfer `json:"data"`
	Count int        `json:"count"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}
