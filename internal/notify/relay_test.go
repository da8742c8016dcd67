package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/veltapay/paybot/core/config"
	"github.com/veltapay/paybot/internal/session"
)

type memSessions struct {
	mu    sync.Mutex
	items map[int64]*session.ChatSession
}

func (m *memSessions) Get(_ context.Context, chatID int64) (*session.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[chatID], nil
}

func (m *memSessions) set(sess *session.ChatSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[sess.ChatID] = sess
}

type fakeAuthorizer struct {
	mu    sync.Mutex
	calls []struct{ Token, SocketID, Channel string }
}

func (f *fakeAuthorizer) AuthorizeChannel(_ context.Context, token, socketID, channel string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, struct{ Token, SocketID, Channel string }{token, socketID, channel})
	return "signed:" + channel, nil
}

// pushServer is a minimal in-process stand-in for the push service: it
// completes the handshake and exposes the connection for scripted frames.
type pushServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
	subs  []subscribeData
}

func (p *pushServer) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	require.NoError(p.t, err)

	data, _ := json.Marshal(`{"socket_id":"123.456"}`)
	require.NoError(p.t, conn.WriteJSON(frame{Event: evConnEstablished, Data: data}))

	p.mu.Lock()
	p.conns = append(p.conns, conn)
	p.mu.Unlock()

	go func() {
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Event == evSubscribe {
				var sd subscribeData
				_ = json.Unmarshal(f.Data, &sd)
				p.mu.Lock()
				p.subs = append(p.subs, sd)
				p.mu.Unlock()
			}
		}
	}()
}

func (p *pushServer) push(t *testing.T, f frame) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.conns)
	require.NoError(t, p.conns[len(p.conns)-1].WriteJSON(f))
}

func (p *pushServer) subscriptions() []subscribeData {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]subscribeData(nil), p.subs...)
}

func newRelayFixture(t *testing.T) (*Relay, *pushServer, *memSessions, *fakeAuthorizer, func() []string) {
	t.Helper()
	srv := &pushServer{t: t}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(ts.Close)

	sessions := &memSessions{items: make(map[int64]*session.ChatSession)}
	auth := &fakeAuthorizer{}

	var sentMu sync.Mutex
	var sent []string
	relay := NewRelay(coreconfig.PusherConfig{Key: "k", Cluster: "mt1"}, auth, sessions, func(chatID int64, text string) error {
		sentMu.Lock()
		defer sentMu.Unlock()
		sent = append(sent, text)
		return nil
	})
	relay.SetEndpoint("ws" + strings.TrimPrefix(ts.URL, "http"))
	t.Cleanup(relay.Close)
	snapshot := func() []string {
		sentMu.Lock()
		defer sentMu.Unlock()
		return append([]string(nil), sent...)
	}
	return relay, srv, sessions, auth, snapshot
}

func TestSubscribeAuthorizesOrgChannel(t *testing.T) {
	relay, srv, sessions, auth, _ := newRelayFixture(t)
	sessions.set(&session.ChatSession{ChatID: 1, Token: "tok-current", OrganizationID: "org-1"})

	require.NoError(t, relay.Subscribe(context.Background(), 1))
	assert.True(t, relay.Subscribed(1))

	require.Len(t, auth.calls, 1)
	assert.Equal(t, "tok-current", auth.calls[0].Token)
	assert.Equal(t, "123.456", auth.calls[0].SocketID)
	assert.Equal(t, "private-org-org-1", auth.calls[0].Channel)

	assert.Eventually(t, func() bool {
		subs := srv.subscriptions()
		return len(subs) == 1 && subs[0].Channel == "private-org-org-1" && subs[0].Auth == "signed:private-org-org-1"
	}, time.Second, 10*time.Millisecond)
}

func TestSubscribeTwiceIsNoOp(t *testing.T) {
	relay, _, sessions, auth, _ := newRelayFixture(t)
	sessions.set(&session.ChatSession{ChatID: 1, Token: "tok", OrganizationID: "org-1"})

	require.NoError(t, relay.Subscribe(context.Background(), 1))
	require.NoError(t, relay.Subscribe(context.Background(), 1))
	assert.Len(t, auth.calls, 1)
}

func TestSubscribeWithoutSessionFails(t *testing.T) {
	relay, _, _, _, _ := newRelayFixture(t)
	assert.Error(t, relay.Subscribe(context.Background(), 404))
}

func TestDepositForwardedToChat(t *testing.T) {
	relay, srv, sessions, _, sent := newRelayFixture(t)
	sessions.set(&session.ChatSession{ChatID: 1, Token: "tok", OrganizationID: "org-1"})
	require.NoError(t, relay.Subscribe(context.Background(), 1))

	data, _ := json.Marshal(`{"amount":"25.5","currency":"USDC","network":"polygon"}`)
	srv.push(t, frame{Event: evDeposit, Channel: "private-org-org-1", Data: data})

	assert.Eventually(t, func() bool {
		got := sent()
		return len(got) == 1 && got[0] == "Deposit received: 25.5 USDC on polygon"
	}, time.Second, 10*time.Millisecond)
}

func TestUnsubscribeTwiceDoesNotError(t *testing.T) {
	relay, _, sessions, _, _ := newRelayFixture(t)
	sessions.set(&session.ChatSession{ChatID: 1, Token: "tok", OrganizationID: "org-1"})
	require.NoError(t, relay.Subscribe(context.Background(), 1))

	require.NoError(t, relay.Unsubscribe(context.Background(), 1))
	require.NoError(t, relay.Unsubscribe(context.Background(), 1))
	assert.False(t, relay.Subscribed(1))
}

func TestUnsubscribeWithClearedSessionNoOps(t *testing.T) {
	relay, _, _, _, _ := newRelayFixture(t)
	require.NoError(t, relay.Unsubscribe(context.Background(), 9))
}

func TestDecodeEventDataHandlesBothEncodings(t *testing.T) {
	var dep depositEvent
	require.NoError(t, decodeEventData(json.RawMessage(`"{\"amount\":\"1\",\"currency\":\"USDC\"}"`), &dep))
	assert.Equal(t, "1", dep.Amount)

	dep = depositEvent{}
	require.NoError(t, decodeEventData(json.RawMessage(`{"amount":"2","currency":"USDT"}`), &dep))
	assert.Equal(t, "2", dep.Amount)
}
