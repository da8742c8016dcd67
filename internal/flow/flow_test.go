package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veltapay/paybot/core/telegram/state"
	"github.com/veltapay/paybot/internal/api"
	"github.com/veltapay/paybot/internal/session"
)

type fakeGateway struct {
	otpRequests   []string
	otpAuths      []struct{ Email, OTP, Sid string }
	sends         []api.SendRequest
	walletWds     []api.WalletWithdrawRequest
	bankWds       []api.BankWithdrawRequest
	refreshes     []string
	sid           string
	authResult    api.AuthResult
	authErr       error
	refreshResult api.AuthResult
	refreshErr    error
	profile       api.Profile
	defaultWallet api.Wallet
	defaultErr    error
}

func (f *fakeGateway) RequestOTP(_ context.Context, email string) (string, error) {
	f.otpRequests = append(f.otpRequests, email)
	return f.sid, nil
}

func (f *fakeGateway) AuthenticateOTP(_ context.Context, email, otp, sid string) (api.AuthResult, error) {
	f.otpAuths = append(f.otpAuths, struct{ Email, OTP, Sid string }{email, otp, sid})
	return f.authResult, f.authErr
}

func (f *fakeGateway) Me(context.Context, string) (api.Profile, error) {
	return f.profile, nil
}

func (f *fakeGateway) Refresh(_ context.Context, refreshToken string) (api.AuthResult, error) {
	f.refreshes = append(f.refreshes, refreshToken)
	return f.refreshResult, f.refreshErr
}

func (f *fakeGateway) DefaultWallet(context.Context, string) (api.Wallet, error) {
	return f.defaultWallet, f.defaultErr
}

func (f *fakeGateway) Send(_ context.Context, _ string, req api.SendRequest) (api.Transfer, error) {
	f.sends = append(f.sends, req)
	return api.Transfer{ID: "tr-1", Status: "pending"}, nil
}

func (f *fakeGateway) WithdrawWallet(_ context.Context, _ string, req api.WalletWithdrawRequest) (api.Transfer, error) {
	f.walletWds = append(f.walletWds, req)
	return api.Transfer{ID: "wd-1"}, nil
}

func (f *fakeGateway) WithdrawBank(_ context.Context, _ string, req api.BankWithdrawRequest) (api.Transfer, error) {
	f.bankWds = append(f.bankWds, req)
	return api.Transfer{ID: "bd-1"}, nil
}

type memSessions struct {
	mu        sync.Mutex
	items     map[int64]*session.ChatSession
	refreshed int
}

func newMemSessions() *memSessions {
	return &memSessions{items: make(map[int64]*session.ChatSession)}
}

func (m *memSessions) Get(_ context.Context, chatID int64) (*session.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[chatID], nil
}

func (m *memSessions) Put(_ context.Context, sess *session.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[sess.ChatID] = sess
	return nil
}

func (m *memSessions) Delete(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, chatID)
	return nil
}

func (m *memSessions) Refresh(context.Context, int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshed++
	return nil
}

type fakeNotifier struct {
	subscribed   []int64
	unsubscribed []int64
}

func (f *fakeNotifier) Subscribe(_ context.Context, chatID int64) error {
	f.subscribed = append(f.subscribed, chatID)
	return nil
}

func (f *fakeNotifier) Unsubscribe(_ context.Context, chatID int64) error {
	f.unsubscribed = append(f.unsubscribed, chatID)
	return nil
}

type fixture struct {
	engine   *Engine
	gw       *fakeGateway
	sessions *memSessions
	notify   *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := &fakeGateway{
		authResult:    api.AuthResult{Token: "tok", OrganizationID: "org-1", ExpiresIn: 900},
		defaultWallet: api.Wallet{ID: "w-1", IsDefault: true},
	}
	sessions := newMemSessions()
	notify := &fakeNotifier{}
	engine := NewEngine(gw, sessions, session.NewOtpStore(), NewDrafts(), state.NewManager(), notify, 0)
	return &fixture{engine: engine, gw: gw, sessions: sessions, notify: notify}
}

func (f *fixture) login(t *testing.T, chatID int64) {
	t.Helper()
	require.NoError(t, f.sessions.Put(context.Background(), &session.ChatSession{
		ChatID: chatID, Token: "tok", OrganizationID: "org-1",
	}))
}

const chat = int64(100)

func TestInvalidEmailNeverRequestsOTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.BeginLogin(ctx, chat)
	reply := f.engine.SubmitEmail(ctx, chat, "not-an-email")

	assert.Contains(t, reply.Text, "/login")
	assert.Empty(t, f.gw.otpRequests)
	assert.Equal(t, state.StateIdle, f.engine.States().Get(chat))
}

func TestLoginRejectedWhenSessionExists(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)

	reply := f.engine.BeginLogin(context.Background(), chat)
	assert.Contains(t, reply.Text, "already logged in")
	assert.False(t, f.engine.States().InProgress(chat))
}

func TestOTPWhitespaceStrippedBeforeSubmit(t *testing.T) {
	f := newFixture(t)
	f.gw.sid = "sid-1"
	ctx := context.Background()

	f.engine.BeginLogin(ctx, chat)
	f.engine.SubmitEmail(ctx, chat, "a@b.com")
	f.engine.SubmitOTP(ctx, chat, "12 34 56")

	require.Len(t, f.gw.otpAuths, 1)
	assert.Equal(t, "123456", f.gw.otpAuths[0].OTP)
	assert.Equal(t, "a@b.com", f.gw.otpAuths[0].Email)
	assert.Equal(t, "sid-1", f.gw.otpAuths[0].Sid)
}

func TestLoginPersistsSessionAndSubscribes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.BeginLogin(ctx, chat)
	f.engine.SubmitEmail(ctx, chat, "a@b.com")
	reply := f.engine.SubmitOTP(ctx, chat, "123456")

	assert.Contains(t, reply.Text, "logged in")
	sess, err := f.sessions.Get(ctx, chat)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "tok", sess.Token)
	assert.Equal(t, "org-1", sess.OrganizationID)
	assert.Equal(t, []int64{chat}, f.notify.subscribed)
	assert.Equal(t, state.StateIdle, f.engine.States().Get(chat))
}

func TestLoginRecoversOrgIDFromProfile(t *testing.T) {
	f := newFixture(t)
	f.gw.authResult = api.AuthResult{Token: "tok"}
	f.gw.profile = api.Profile{OrganizationID: "org-from-me"}
	ctx := context.Background()

	f.engine.BeginLogin(ctx, chat)
	f.engine.SubmitEmail(ctx, chat, "a@b.com")
	f.engine.SubmitOTP(ctx, chat, "123456")

	sess, err := f.sessions.Get(ctx, chat)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "org-from-me", sess.OrganizationID)
}

func TestAuthFailureTerminatesFlow(t *testing.T) {
	f := newFixture(t)
	f.gw.authErr = &api.Error{Status: 401, Kind: api.KindAuth, Message: "invalid code"}
	ctx := context.Background()

	f.engine.BeginLogin(ctx, chat)
	f.engine.SubmitEmail(ctx, chat, "a@b.com")
	reply := f.engine.SubmitOTP(ctx, chat, "123456")

	assert.Equal(t, "invalid code", reply.Text)
	assert.Equal(t, state.StateIdle, f.engine.States().Get(chat))
	sess, _ := f.sessions.Get(ctx, chat)
	assert.Nil(t, sess)
}

func TestSendRequiresLogin(t *testing.T) {
	f := newFixture(t)
	reply := f.engine.BeginSend(context.Background(), chat)
	assert.Contains(t, reply.Text, "/login")
	assert.False(t, f.engine.States().InProgress(chat))
}

func TestAmountValidationTable(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)
	ctx := context.Background()

	f.engine.BeginSend(ctx, chat)
	f.engine.SubmitRecipient(ctx, chat, "a@b.com")
	require.Equal(t, StateAwaitingAmount, f.engine.States().Get(chat))

	for _, bad := range []string{"0", "-1", "abc", "1.1234567"} {
		reply := f.engine.SubmitAmount(ctx, chat, bad)
		assert.Contains(t, reply.Text, "amount", "input %q", bad)
		assert.Equal(t, StateAwaitingAmount, f.engine.States().Get(chat), "input %q", bad)
	}

	f.engine.SubmitAmount(ctx, chat, "10.5")
	assert.Equal(t, StateAwaitingDescription, f.engine.States().Get(chat))
}

func TestSendDraftRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)
	ctx := context.Background()

	f.engine.BeginSend(ctx, chat)
	f.engine.SubmitRecipient(ctx, chat, "a@b.com")
	f.engine.SubmitAmount(ctx, chat, "10.5")
	summary := f.engine.SubmitDescription(ctx, chat, "skip")

	// "skip" normalizes to empty, so the summary carries no description
	assert.Equal(t, "Send *10.5* to a@b.com?", summary.Text)
	require.NotNil(t, summary.Markup)

	reply := f.engine.ConfirmSend(ctx, chat)
	assert.Contains(t, reply.Text, "tr-1")
	require.Len(t, f.gw.sends, 1)
	assert.Equal(t, api.SendRequest{
		Email:    "a@b.com",
		Amount:   "10.5",
		WalletID: "w-1",
	}, f.gw.sends[0])
}

func TestDoubleConfirmReportsNoPendingRequest(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)
	ctx := context.Background()

	f.engine.BeginSend(ctx, chat)
	f.engine.SubmitRecipient(ctx, chat, "a@b.com")
	f.engine.SubmitAmount(ctx, chat, "10.5")
	f.engine.SubmitDescription(ctx, chat, "lunch")

	first := f.engine.ConfirmSend(ctx, chat)
	second := f.engine.ConfirmSend(ctx, chat)

	assert.Contains(t, first.Text, "tr-1")
	assert.Equal(t, "No pending request.", second.Text)
	assert.Len(t, f.gw.sends, 1)
}

func TestDefaultWalletFailureAbortsSend(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)
	f.gw.defaultErr = &api.Error{Status: 404, Kind: api.KindValidation, Message: "no default wallet"}
	ctx := context.Background()

	f.engine.BeginSend(ctx, chat)
	f.engine.SubmitRecipient(ctx, chat, "a@b.com")
	f.engine.SubmitAmount(ctx, chat, "10.5")
	f.engine.SubmitDescription(ctx, chat, "skip")
	reply := f.engine.ConfirmSend(ctx, chat)

	assert.Equal(t, "no default wallet", reply.Text)
	assert.Empty(t, f.gw.sends)
}

func TestCancelSendDiscardsDraft(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)
	ctx := context.Background()

	f.engine.BeginSend(ctx, chat)
	f.engine.SubmitRecipient(ctx, chat, "a@b.com")
	f.engine.CancelSend(ctx, chat)

	reply := f.engine.ConfirmSend(ctx, chat)
	assert.Equal(t, "No pending request.", reply.Text)
	assert.False(t, f.engine.States().InProgress(chat))
}

func TestWalletWithdrawFlow(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)
	ctx := context.Background()
	address := "0x1234567890abcdef1234567890abcdef12345678"

	f.engine.ChooseWalletWithdraw(ctx, chat)
	require.Equal(t, StateAwaitingWalletAddress, f.engine.States().Get(chat))

	short := f.engine.SubmitAddress(ctx, chat, "0xshort")
	assert.Contains(t, short.Text, "address")
	assert.Equal(t, StateAwaitingWalletAddress, f.engine.States().Get(chat))

	f.engine.SubmitAddress(ctx, chat, address)
	f.engine.SubmitAmount(ctx, chat, "25")
	require.Equal(t, StateAwaitingNetwork, f.engine.States().Get(chat))

	gate := f.engine.SelectNetwork(ctx, chat, "polygon")
	require.NotNil(t, gate.Markup)

	reply := f.engine.ConfirmWalletWithdraw(ctx, chat)
	assert.Contains(t, reply.Text, "wd-1")
	require.Len(t, f.gw.walletWds, 1)
	assert.Equal(t, api.WalletWithdrawRequest{
		Address: address,
		Amount:  "25",
		Network: "polygon",
	}, f.gw.walletWds[0])
}

func TestSelectNetworkRejectsFreeText(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)
	ctx := context.Background()

	f.engine.ChooseWalletWithdraw(ctx, chat)
	f.engine.SubmitAddress(ctx, chat, "0x1234567890abcdef1234567890abcdef12345678")
	f.engine.SubmitAmount(ctx, chat, "25")

	reply := f.engine.SelectNetwork(ctx, chat, "dogechain")
	assert.Contains(t, reply.Text, "buttons")
	assert.Equal(t, StateAwaitingNetwork, f.engine.States().Get(chat))
}

func TestBankWithdrawFlow(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)
	ctx := context.Background()

	f.engine.ChooseBankWithdraw(ctx, chat)
	gate := f.engine.SubmitAmount(ctx, chat, "50")
	require.Equal(t, StateAwaitingBankConfirmation, f.engine.States().Get(chat))
	require.NotNil(t, gate.Markup)

	reply := f.engine.ConfirmBankWithdraw(ctx, chat)
	assert.Contains(t, reply.Text, "bd-1")
	require.Len(t, f.gw.bankWds, 1)
	assert.Equal(t, "50", f.gw.bankWds[0].Amount)
}

func TestCancelWithdrawDiscardsDraft(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)
	ctx := context.Background()

	f.engine.ChooseBankWithdraw(ctx, chat)
	f.engine.SubmitAmount(ctx, chat, "50")
	cancelled := f.engine.CancelWithdraw(ctx, chat)
	assert.Equal(t, "Withdrawal cancelled.", cancelled.Text)

	reply := f.engine.ConfirmBankWithdraw(ctx, chat)
	assert.Equal(t, "No pending request.", reply.Text)
}

func TestStaleCancelTapReportsNoPendingRequest(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)
	ctx := context.Background()

	assert.Equal(t, "No pending request.", f.engine.CancelSend(ctx, chat).Text)
	assert.Equal(t, "No pending request.", f.engine.CancelWithdraw(ctx, chat).Text)
}

func TestLogoutUnsubscribesBeforeDeletingSession(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)
	ctx := context.Background()

	reply := f.engine.Logout(ctx, chat)
	assert.Contains(t, reply.Text, "logged out")
	assert.Equal(t, []int64{chat}, f.notify.unsubscribed)

	sess, err := f.sessions.Get(ctx, chat)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestLogoutWithoutSession(t *testing.T) {
	f := newFixture(t)
	reply := f.engine.Logout(context.Background(), chat)
	assert.Contains(t, reply.Text, "not logged in")
	assert.Empty(t, f.notify.unsubscribed)
}

func TestStaleConfirmTapMidCollectionDoesNotSubmit(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)
	ctx := context.Background()

	f.engine.BeginSend(ctx, chat)
	f.engine.SubmitRecipient(ctx, chat, "a@b.com")
	require.Equal(t, StateAwaitingAmount, f.engine.States().Get(chat))

	// a confirm button from an earlier message, tapped before the draft is
	// complete, must not consume it
	reply := f.engine.ConfirmSend(ctx, chat)
	assert.Equal(t, "No pending request.", reply.Text)
	assert.Empty(t, f.gw.sends)
	assert.Equal(t, StateAwaitingAmount, f.engine.States().Get(chat))

	// the interrupted flow still completes normally
	f.engine.SubmitAmount(ctx, chat, "10.5")
	f.engine.SubmitDescription(ctx, chat, "skip")
	done := f.engine.ConfirmSend(ctx, chat)
	assert.Contains(t, done.Text, "tr-1")
	require.Len(t, f.gw.sends, 1)
	assert.Equal(t, "10.5", f.gw.sends[0].Amount)
}

func TestStaleWithdrawConfirmTapsDoNotSubmit(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)
	ctx := context.Background()

	f.engine.ChooseWalletWithdraw(ctx, chat)
	f.engine.SubmitAddress(ctx, chat, "0x1234567890abcdef1234567890abcdef12345678")
	require.Equal(t, StateAwaitingAmount, f.engine.States().Get(chat))

	reply := f.engine.ConfirmWalletWithdraw(ctx, chat)
	assert.Equal(t, "No pending request.", reply.Text)
	assert.Empty(t, f.gw.walletWds)
	assert.Equal(t, StateAwaitingAmount, f.engine.States().Get(chat))

	f.engine.Abort(chat)
	f.engine.ChooseBankWithdraw(ctx, chat)
	reply = f.engine.ConfirmBankWithdraw(ctx, chat)
	assert.Equal(t, "No pending request.", reply.Text)
	assert.Empty(t, f.gw.bankWds)
	assert.Equal(t, StateAwaitingAmount, f.engine.States().Get(chat))
}

func TestSelectNetworkRequiresNetworkState(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)
	ctx := context.Background()

	f.engine.ChooseWalletWithdraw(ctx, chat)
	f.engine.SubmitAddress(ctx, chat, "0x1234567890abcdef1234567890abcdef12345678")
	require.Equal(t, StateAwaitingAmount, f.engine.States().Get(chat))

	// network button tapped before the amount was entered
	reply := f.engine.SelectNetwork(ctx, chat, "polygon")
	assert.Equal(t, "No pending request.", reply.Text)
	assert.Equal(t, StateAwaitingAmount, f.engine.States().Get(chat))

	draft, ok := f.engine.Drafts().Wallet(chat)
	require.True(t, ok)
	assert.Empty(t, draft.Network)
}

func TestSessionRenewedNearExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sessions.Put(ctx, &session.ChatSession{
		ChatID:       chat,
		Token:        "old-tok",
		RefreshToken: "r-1",
		ExpiresAt:    time.Now().Unix() + 30,
	}))
	f.gw.refreshResult = api.AuthResult{Token: "new-tok", RefreshToken: "r-2", ExpiresIn: 900}

	reply := f.engine.BeginSend(ctx, chat)
	assert.Contains(t, reply.Text, "recipient")
	assert.Equal(t, []string{"r-1"}, f.gw.refreshes)

	sess, err := f.sessions.Get(ctx, chat)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "new-tok", sess.Token)
	assert.Equal(t, "r-2", sess.RefreshToken)
	assert.InDelta(t, time.Now().Unix()+900, sess.ExpiresAt, 5)
}

func TestSessionRenewAuthFailureDeletesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sessions.Put(ctx, &session.ChatSession{
		ChatID:       chat,
		Token:        "old-tok",
		RefreshToken: "r-1",
		ExpiresAt:    time.Now().Unix() - 10,
	}))
	f.gw.refreshErr = &api.Error{Status: 401, Kind: api.KindAuth, Message: "refresh token expired"}

	reply := f.engine.BeginSend(ctx, chat)
	assert.Contains(t, reply.Text, "/login")

	sess, err := f.sessions.Get(ctx, chat)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestExpiredSessionWithoutRefreshTokenDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sessions.Put(ctx, &session.ChatSession{
		ChatID:    chat,
		Token:     "old-tok",
		ExpiresAt: time.Now().Unix() - 10,
	}))

	reply := f.engine.BeginSend(ctx, chat)
	assert.Contains(t, reply.Text, "/login")
	assert.Empty(t, f.gw.refreshes)

	sess, err := f.sessions.Get(ctx, chat)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestActivityRearmsSessionTTL(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)
	ctx := context.Background()

	f.engine.BeginSend(ctx, chat)
	assert.Equal(t, 1, f.sessions.refreshed)
	assert.Empty(t, f.gw.refreshes)
}

func TestStartFlowClearsPreviousDrafts(t *testing.T) {
	f := newFixture(t)
	f.login(t, chat)
	ctx := context.Background()

	f.engine.BeginSend(ctx, chat)
	f.engine.SubmitRecipient(ctx, chat, "a@b.com")
	f.engine.ChooseBankWithdraw(ctx, chat)

	_, hasSend := f.engine.Drafts().Send(chat)
	assert.False(t, hasSend)
	_, hasBank := f.engine.Drafts().Bank(chat)
	assert.True(t, hasBank)
}
