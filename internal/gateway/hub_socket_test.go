package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/quarrel-chat/quarrel-server/internal/presence"
	"github.com/quarrel-chat/quarrel-server/internal/snowflake"
	"github.com/quarrel-chat/quarrel-server/internal/user"
)

// dialSession starts a WebSocket server whose every connection is handed to
// serve, dials it, and returns the client side of the socket.
func dialSession(t *testing.T, serve func(*websocket.Conn)) *websocket.Conn {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	upgrader := websocket.FastHTTPUpgrader{}
	srv := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			_ = upgrader.Upgrade(ctx, serve)
		},
	}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// dialPair returns both ends of a live WebSocket connection. The server side
// stays open until the test finishes.
func dialPair(t *testing.T) (client, server *websocket.Conn) {
	t.Helper()

	serverCh := make(chan *websocket.Conn, 1)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	client = dialSession(t, func(conn *websocket.Conn) {
		serverCh <- conn
		<-release
	})

	select {
	case server = <-serverCh:
		return client, server
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server connection")
		return nil, nil
	}
}

// readEvent reads one data frame and returns its envelope event name.
func readEvent(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal frame %s: %v", raw, err)
	}
	return env.Event
}

// expectClose reads frames until the peer closes, then checks the close code.
// Data frames still in flight ahead of the close are skipped.
func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		ce, ok := err.(*websocket.CloseError)
		if !ok {
			t.Fatalf("read error = %v, want close code %d", err, code)
		}
		if ce.Code != code {
			t.Errorf("close code = %d (%q), want %d", ce.Code, ce.Text, code)
		}
		return
	}
}

type failingUserStore struct{ err error }

func (f failingUserStore) GetByID(context.Context, snowflake.UserID) (*user.User, error) {
	return nil, f.err
}

// newHandshakeHub wires a hub whose validator accepts exactly one token.
func newHandshakeHub(registry *Registry, token string, userID snowflake.UserID, users UserStore) *Hub {
	validate := func(got string) (snowflake.UserID, error) {
		if got != token {
			return 0, errInvalidTestToken
		}
		return userID, nil
	}
	return NewHub(registry, testGatewayConfig(), validate,
		users,
		&fakeGuildStore{},
		&fakeChannelStore{},
		&fakeMemberStore{},
		&fakePresenceStore{},
		zerolog.Nop(),
	)
}

var errInvalidTestToken = errors.New("invalid token")

func identifyFrame(token string) []byte {
	frame, _ := json.Marshal(map[string]any{
		"event": MessageIdentify,
		"data":  map[string]string{"token": token},
	})
	return frame
}

func TestHandshakeBinaryFirstFrame(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()
	hub := newHandshakeHub(registry, "tok", 1, &fakeUserStore{})
	client := dialSession(t, func(conn *websocket.Conn) { hub.ServeConn(conn) })

	if got := readEvent(t, client); got != EventHello {
		t.Fatalf("first frame = %q, want %q", got, EventHello)
	}
	if err := client.WriteMessage(websocket.BinaryMessage, []byte{0x01}); err != nil {
		t.Fatalf("write: %v", err)
	}

	expectClose(t, client, CloseUnsupportedData)
	if n := registry.Count(); n != 0 {
		t.Errorf("registry count = %d, want 0", n)
	}
}

func TestHandshakeMalformedPayload(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()
	hub := newHandshakeHub(registry, "tok", 1, &fakeUserStore{})
	client := dialSession(t, func(conn *websocket.Conn) { hub.ServeConn(conn) })

	readEvent(t, client) // HELLO
	if err := client.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	expectClose(t, client, CloseInvalidPayload)
	if n := registry.Count(); n != 0 {
		t.Errorf("registry count = %d, want 0", n)
	}
}

func TestHandshakeRequiresIdentifyFirst(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()
	hub := newHandshakeHub(registry, "tok", 1, &fakeUserStore{})
	client := dialSession(t, func(conn *websocket.Conn) { hub.ServeConn(conn) })

	readEvent(t, client) // HELLO
	frame, _ := json.Marshal(map[string]any{"event": MessageHeartbeat, "data": map[string]any{}})
	if err := client.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	expectClose(t, client, CloseInvalidPayload)
	if n := registry.Count(); n != 0 {
		t.Errorf("registry count = %d, want 0", n)
	}
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()
	hub := newHandshakeHub(registry, "tok", 1, &fakeUserStore{})
	client := dialSession(t, func(conn *websocket.Conn) { hub.ServeConn(conn) })

	readEvent(t, client) // HELLO
	if err := client.WriteMessage(websocket.TextMessage, identifyFrame("forged")); err != nil {
		t.Fatalf("write: %v", err)
	}

	expectClose(t, client, ClosePolicyViolation)
	if n := registry.Count(); n != 0 {
		t.Errorf("registry count = %d, want 0", n)
	}
}

// An unknown subject closes with the same code and reason as a bad signature.
func TestHandshakeRejectsUnknownUser(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()
	hub := newHandshakeHub(registry, "tok", 1, &fakeUserStore{}) // empty store
	client := dialSession(t, func(conn *websocket.Conn) { hub.ServeConn(conn) })

	readEvent(t, client) // HELLO
	if err := client.WriteMessage(websocket.TextMessage, identifyFrame("tok")); err != nil {
		t.Fatalf("write: %v", err)
	}

	expectClose(t, client, ClosePolicyViolation)
	if n := registry.Count(); n != 0 {
		t.Errorf("registry count = %d, want 0", n)
	}
}

func TestHandshakeStoreFailure(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()
	hub := newHandshakeHub(registry, "tok", 1, failingUserStore{err: context.DeadlineExceeded})
	client := dialSession(t, func(conn *websocket.Conn) { hub.ServeConn(conn) })

	readEvent(t, client) // HELLO
	if err := client.WriteMessage(websocket.TextMessage, identifyFrame("tok")); err != nil {
		t.Fatalf("write: %v", err)
	}

	expectClose(t, client, CloseServerError)
	if n := registry.Count(); n != 0 {
		t.Errorf("registry count = %d, want 0", n)
	}
}

func TestHandshakeSuccessSeedsSession(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry()
	users := &fakeUserStore{users: map[snowflake.UserID]*user.User{
		1: {ID: 1, Username: "alice", LastPresence: presence.StatusOnline},
	}}
	hub := newHandshakeHub(registry, "tok", 1, users)
	client := dialSession(t, func(conn *websocket.Conn) { hub.ServeConn(conn) })

	if got := readEvent(t, client); got != EventHello {
		t.Fatalf("first frame = %q, want %q", got, EventHello)
	}
	if err := client.WriteMessage(websocket.TextMessage, identifyFrame("tok")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readEvent(t, client); got != EventReady {
		t.Fatalf("post-IDENTIFY frame = %q, want %q", got, EventReady)
	}
	if n := registry.Count(); n != 1 {
		t.Fatalf("registry count = %d, want 1", n)
	}

	_ = client.Close()
	deadline := time.Now().Add(2 * time.Second)
	for registry.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("registry entry not removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// A protocol violation enqueues its close and then cancels the session, so a
// writer that observes the cancellation first must still flush the close
// frame instead of leaving the peer with an abnormal closure.
func TestWriterFlushesQueuedCloseAfterCancel(t *testing.T) {
	t.Parallel()

	client, server := dialPair(t)

	hub := NewHub(newTestRegistry(), testGatewayConfig(), nil, nil, nil, nil, nil, &fakePresenceStore{}, zerolog.Nop())
	handle := NewHandle(1, nil, 16)
	if err := handle.Enqueue(Outbound{Frame: []byte(`{"event":"HEARTBEAT_ACK","data":{}}`)}); err != nil {
		t.Fatalf("enqueue frame: %v", err)
	}
	handle.EnqueueClose(CloseInvalidPayload, "invalid payload")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		hub.writer(ctx, server, handle, zerolog.Nop())
		close(done)
	}()

	expectClose(t, client, CloseInvalidPayload)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer did not exit")
	}
}
