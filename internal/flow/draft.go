package flow

import "sync"

// SendDraft accumulates the fields of an email transfer before submission.
type SendDraft struct {
	Recipient   string
	Amount      string
	Description string
}

// WalletDraft accumulates the fields of an on-chain withdrawal.
type WalletDraft struct {
	Address string
	Amount  string
	Network string
}

// BankDraft accumulates the fields of a bank withdrawal.
type BankDraft struct {
	Amount string
}

// Drafts is the process-scoped draft store, keyed by chat id. At most one
// draft of each kind exists per chat, and starting a flow clears the others,
// so the active flow is identified by which draft is present.
type Drafts struct {
	mu     sync.Mutex
	send   map[int64]*SendDraft
	wallet map[int64]*WalletDraft
	bank   map[int64]*BankDraft
}

// NewDrafts constructs an empty draft store.
func NewDrafts() *Drafts {
	return &Drafts{
		send:   make(map[int64]*SendDraft),
		wallet: make(map[int64]*WalletDraft),
		bank:   make(map[int64]*BankDraft),
	}
}

// BeginSend starts a fresh send draft for the chat, discarding any other
// in-progress draft.
func (d *Drafts) BeginSend(chatID int64) *SendDraft {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked(chatID)
	draft := &SendDraft{}
	d.send[chatID] = draft
	return draft
}

// BeginWallet starts a fresh wallet-withdrawal draft for the chat.
func (d *Drafts) BeginWallet(chatID int64) *WalletDraft {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked(chatID)
	draft := &WalletDraft{}
	d.wallet[chatID] = draft
	return draft
}

// BeginBank starts a fresh bank-withdrawal draft for the chat.
func (d *Drafts) BeginBank(chatID int64) *BankDraft {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked(chatID)
	draft := &BankDraft{}
	d.bank[chatID] = draft
	return draft
}

// Send returns the chat's in-progress send draft, if any.
func (d *Drafts) Send(chatID int64) (*SendDraft, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft, ok := d.send[chatID]
	return draft, ok
}

// Wallet returns the chat's in-progress wallet-withdrawal draft, if any.
func (d *Drafts) Wallet(chatID int64) (*WalletDraft, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft, ok := d.wallet[chatID]
	return draft, ok
}

// Bank returns the chat's in-progress bank-withdrawal draft, if any.
func (d *Drafts) Bank(chatID int64) (*BankDraft, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft, ok := d.bank[chatID]
	return draft, ok
}

// ConsumeSend removes and returns the chat's send draft. The second return
// is false when no draft exists, which callers report as "no pending
// request" rather than submitting undefined fields.
func (d *Drafts) ConsumeSend(chatID int64) (*SendDraft, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft, ok := d.send[chatID]
	delete(d.send, chatID)
	return draft, ok
}

// ConsumeWallet removes and returns the chat's wallet-withdrawal draft.
func (d *Drafts) ConsumeWallet(chatID int64) (*WalletDraft, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft, ok := d.wallet[chatID]
	delete(d.wallet, chatID)
	return draft, ok
}

// ConsumeBank removes and returns the chat's bank-withdrawal draft.
func (d *Drafts) ConsumeBank(chatID int64) (*BankDraft, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft, ok := d.bank[chatID]
	delete(d.bank, chatID)
	return draft, ok
}

// Clear discards every draft for the chat.
func (d *Drafts) Clear(chatID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked(chatID)
}

func (d *Drafts) clearLocked(chatID int64) {
	delete(d.send, chatID)
	delete(d.wallet, chatID)
	delete(d.bank, chatID)
}
