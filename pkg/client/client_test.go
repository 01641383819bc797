package client

import (
	"context"
	"io"
	"net"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketpulse/presence-backend/internal/hub"
	"github.com/marketpulse/presence-backend/internal/identity"
	"github.com/marketpulse/presence-backend/internal/ws"
)

func startServer(t *testing.T) (*hub.Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.NewHub(ctx, hub.Options{
		ReapTimeout:   500 * time.Millisecond,
		SweepInterval: 50 * time.Millisecond,
	})
	ts := httptest.NewServer(ws.Handler(h, zap.NewNop()))
	t.Cleanup(ts.Close)
	return h, ts
}

// severableProxy forwards TCP to a backend and can cut every live
// connection while staying up for new ones, simulating a network
// drop without a clean websocket close.
type severableProxy struct {
	ln     net.Listener
	target string

	mu    sync.Mutex
	conns []net.Conn
}

func startProxy(t *testing.T, target string) *severableProxy {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	p := &severableProxy{ln: ln, target: target}
	go p.acceptLoop()
	t.Cleanup(func() { _ = ln.Close() })
	return p
}

func (p *severableProxy) url() string { return "http://" + p.ln.Addr().String() }

func (p *severableProxy) acceptLoop() {
	for {
		client, err := p.ln.Accept()
		if err != nil {
			return
		}
		upstream, err := net.Dial("tcp", p.target)
		if err != nil {
			_ = client.Close()
			continue
		}
		p.mu.Lock()
		p.conns = append(p.conns, client, upstream)
		p.mu.Unlock()
		go proxyPipe(client, upstream)
		go proxyPipe(upstream, client)
	}
}

func proxyPipe(dst, src net.Conn) {
	_, _ = io.Copy(dst, src)
	_ = dst.Close()
	_ = src.Close()
}

func (p *severableProxy) sever() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		_ = c.Close()
	}
	p.conns = nil
}

func newTestClient(t *testing.T, url, userID string) *Client {
	t.Helper()
	c, err := New(Options{
		URL: url,
		Identity: identity.Identity{
			UserID:    userID,
			UserName:  "Editor " + userID,
			UserColor: identity.ColorFor(userID),
		},
		ContentType:       "stock",
		ContentID:         "TSLA",
		HeartbeatInterval: 100 * time.Millisecond,
		ReconnectDelay:    100 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestClient_TwoEditorsSeeEachOther(t *testing.T) {
	_, ts := startServer(t)

	a := newTestClient(t, ts.URL, "u1")
	a.Start(context.Background())
	defer a.Close()

	b := newTestClient(t, ts.URL, "u2")
	b.Start(context.Background())
	defer b.Close()

	require.Eventually(t, func() bool {
		others := a.Others()
		return len(others) == 1 && others[0].UserID == "u2"
	}, 3*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		others := b.Others()
		return len(others) == 1 && others[0].UserID == "u1"
	}, 3*time.Second, 20*time.Millisecond)

	// Neither roster ever contains the local user.
	for _, p := range a.Others() {
		require.NotEqual(t, "u1", p.UserID)
	}
}

func TestClient_FieldFocusPropagates(t *testing.T) {
	_, ts := startServer(t)

	a := newTestClient(t, ts.URL, "u1")
	a.Start(context.Background())
	defer a.Close()

	b := newTestClient(t, ts.URL, "u2")
	b.Start(context.Background())
	defer b.Close()

	require.Eventually(t, func() bool {
		return len(a.Others()) == 1 && a.SelfSessionID() != ""
	}, 3*time.Second, 20*time.Millisecond)

	pos := 7
	b.SetField("overview", &pos)

	require.Eventually(t, func() bool {
		others := a.Others()
		return len(others) == 1 && others[0].Field == "overview"
	}, 3*time.Second, 20*time.Millisecond)
	// Still exactly one entry for B after the update.
	require.Len(t, a.Others(), 1)
}

func TestClient_CloseSendsLeave(t *testing.T) {
	_, ts := startServer(t)

	a := newTestClient(t, ts.URL, "u1")
	a.Start(context.Background())
	defer a.Close()

	b := newTestClient(t, ts.URL, "u2")
	b.Start(context.Background())

	require.Eventually(t, func() bool {
		return len(a.Others()) == 1
	}, 3*time.Second, 20*time.Millisecond)

	b.Close()

	// The leave lands well before any reap timeout could.
	require.Eventually(t, func() bool {
		return len(a.Others()) == 0
	}, time.Second, 20*time.Millisecond)
	require.False(t, b.Connected())
}

func TestClient_ReconnectsWithFreshSession(t *testing.T) {
	h, ts := startServer(t)
	proxy := startProxy(t, ts.Listener.Addr().String())

	a := newTestClient(t, proxy.url(), "u1")
	a.Start(context.Background())
	defer a.Close()

	require.Eventually(t, func() bool {
		return a.Connected() && a.SelfSessionID() != ""
	}, 3*time.Second, 20*time.Millisecond)
	oldID := a.SelfSessionID()

	// Cut the wire mid-session; no leave is ever sent.
	proxy.sever()

	// The client notices, drops its cached id, and rejoins after the
	// fixed delay with a fresh server-assigned session.
	require.Eventually(t, func() bool {
		id := a.SelfSessionID()
		return a.Connected() && id != "" && id != oldID
	}, 3*time.Second, 20*time.Millisecond)

	// The dead session is fully evicted server-side.
	require.Eventually(t, func() bool {
		_, found := h.Registry().Get(oldID)
		return !found
	}, 2*time.Second, 20*time.Millisecond)
}

func TestClient_HeartbeatOutlivesReapWindow(t *testing.T) {
	_, ts := startServer(t) // 500ms reap, client beats every 100ms

	a := newTestClient(t, ts.URL, "u1")
	a.Start(context.Background())
	defer a.Close()

	require.Eventually(t, func() bool {
		return a.SelfSessionID() != ""
	}, 3*time.Second, 20*time.Millisecond)
	id := a.SelfSessionID()

	// Several reap windows later the session id is unchanged: no
	// eviction, no forced reconnect.
	time.Sleep(1500 * time.Millisecond)
	require.True(t, a.Connected())
	require.Equal(t, id, a.SelfSessionID())
}
