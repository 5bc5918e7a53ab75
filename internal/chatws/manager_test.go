package chatws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/bazaar/internal/bus"
	"github.com/matheus3301/bazaar/internal/status"
)

var upgrader = websocket.Upgrader{}

func newServer(t *testing.T, h http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
}

// readUntilClosed keeps the server side reading so control frames are
// answered, and returns the close code the client sent (or -1).
func readUntilClosed(conn *websocket.Conn) int {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return ce.Code
			}
			return -1
		}
	}
}

func closeWith(conn *websocket.Conn, code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

func recordEvents(m *Manager) <-chan Event {
	ch := make(chan Event, 128)
	m.RegisterEventHandler(func(ev Event) {
		select {
		case ch <- ev:
		default:
		}
	})
	return ch
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnectAndSendFrame(t *testing.T) {
	frames := make(chan []byte, 4)
	var token atomic.Value
	wsURL := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		token.Store(r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- data
		}
	})

	b := bus.New()
	stateCh, unsub := b.Subscribe("connection.", 16)
	defer unsub()

	m := NewManager(wsURL, Options{}, b, nil)
	defer m.Disconnect()

	if err := m.Connect(context.Background(), "abc"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if m.State() != status.Open || !m.IsConnected() {
		t.Fatalf("state = %s, want OPEN", m.State())
	}
	if got := token.Load(); got != "abc" {
		t.Errorf("token query = %v, want abc", got)
	}

	if err := m.Send(7, "hi", 3); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case data := <-frames:
		var got map[string]any
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("frame is not JSON: %v", err)
		}
		if len(got) != 3 {
			t.Errorf("frame has %d keys, want 3: %s", len(got), data)
		}
		if got["roomId"] != float64(7) || got["message"] != "hi" || got["userId"] != float64(3) {
			t.Errorf("frame = %s, want {roomId:7, message:hi, userId:3}", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server received no frame")
	}

	select {
	case extra := <-frames:
		t.Errorf("unexpected second frame %s", extra)
	case <-time.After(100 * time.Millisecond):
	}

	var seen []status.State
	for len(stateCh) > 0 {
		evt := <-stateCh
		if c, ok := evt.Payload.(status.Change); ok {
			seen = append(seen, c.To)
		}
	}
	if len(seen) != 2 || seen[0] != status.Connecting || seen[1] != status.Open {
		t.Errorf("bus states = %v, want [CONNECTING OPEN]", seen)
	}
}

func TestConnectWhileConnectingOpensOneTransport(t *testing.T) {
	release := make(chan struct{})
	var requests atomic.Int32
	wsURL := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		<-release
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		readUntilClosed(conn)
		conn.Close()
	})

	m := NewManager(wsURL, Options{}, nil, nil)
	defer m.Disconnect()

	errc := make(chan error, 1)
	go func() { errc <- m.Connect(context.Background(), "abc") }()

	waitFor(t, "first handshake", func() bool { return requests.Load() == 1 })

	if err := m.Connect(context.Background(), "abc"); err != nil {
		t.Errorf("second Connect() error = %v", err)
	}
	if m.State() != status.Connecting {
		t.Errorf("state after second Connect = %s, want CONNECTING", m.State())
	}
	close(release)

	if err := <-errc; err != nil {
		t.Fatalf("first Connect() error = %v", err)
	}
	if err := m.Connect(context.Background(), "abc"); err != nil {
		t.Errorf("Connect() while open error = %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("server saw %d handshakes, want 1", got)
	}
}

func TestCleanCloseDoesNotReconnect(t *testing.T) {
	var requests atomic.Int32
	wsURL := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		closeWith(conn, websocket.CloseNormalClosure)
	})

	interval := 50 * time.Millisecond
	m := NewManager(wsURL, Options{ReconnectInterval: interval}, nil, nil)
	defer m.Disconnect()
	events := recordEvents(m)

	if err := m.Connect(context.Background(), "abc"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, "closed state", func() bool { return m.State() == status.Closed })

	time.Sleep(interval + 150*time.Millisecond)

	if got := requests.Load(); got != 1 {
		t.Errorf("server saw %d handshakes, want 1", got)
	}
	if m.State() != status.Closed {
		t.Errorf("state = %s, want CLOSED", m.State())
	}
	for len(events) > 0 {
		if ev, ok := (<-events).(ReconnectScheduled); ok {
			t.Errorf("unexpected %+v", ev)
		}
	}
}

func TestAbnormalCloseReconnects(t *testing.T) {
	var requests atomic.Int32
	wsURL := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			closeWith(conn, websocket.CloseInternalServerErr)
			return
		}
		readUntilClosed(conn)
		conn.Close()
	})

	m := NewManager(wsURL, Options{ReconnectInterval: 30 * time.Millisecond}, nil, nil)
	defer m.Disconnect()
	events := recordEvents(m)

	if err := m.Connect(context.Background(), "abc"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, "reconnected socket", func() bool {
		return requests.Load() == 2 && m.State() == status.Open
	})

	if got := m.ReconnectAttempts(); got != 0 {
		t.Errorf("ReconnectAttempts() = %d after reopen, want 0", got)
	}

	var scheduled []ReconnectScheduled
	for len(events) > 0 {
		if ev, ok := (<-events).(ReconnectScheduled); ok {
			scheduled = append(scheduled, ev)
		}
	}
	if len(scheduled) != 1 || scheduled[0].Attempt != 1 {
		t.Errorf("scheduled = %+v, want one attempt #1", scheduled)
	}
}

func TestReconnectAttemptsSaturate(t *testing.T) {
	var requests atomic.Int32
	wsURL := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) > 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		closeWith(conn, websocket.CloseInternalServerErr)
	})

	interval := 20 * time.Millisecond
	m := NewManager(wsURL, Options{ReconnectInterval: interval}, nil, nil)
	defer m.Disconnect()
	events := recordEvents(m)

	if err := m.Connect(context.Background(), "abc"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// One initial dial plus five reconnect dials.
	waitFor(t, "reconnects to run out", func() bool {
		return requests.Load() == 6 && m.State() == status.Closed
	})
	time.Sleep(5 * interval)

	if got := requests.Load(); got != 6 {
		t.Errorf("server saw %d handshakes, want 6", got)
	}
	if got := m.ReconnectAttempts(); got != DefaultMaxReconnectAttempts {
		t.Errorf("ReconnectAttempts() = %d, want %d", got, DefaultMaxReconnectAttempts)
	}

	var attempts []int
	for len(events) > 0 {
		if ev, ok := (<-events).(ReconnectScheduled); ok {
			attempts = append(attempts, ev.Attempt)
		}
	}
	if len(attempts) != DefaultMaxReconnectAttempts {
		t.Fatalf("scheduled attempts = %v, want 5", attempts)
	}
	for i, a := range attempts {
		if a != i+1 {
			t.Errorf("attempts = %v, want 1..5", attempts)
			break
		}
	}
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	var requests atomic.Int32
	wsURL := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		closeWith(conn, websocket.CloseGoingAway)
	})

	interval := 200 * time.Millisecond
	m := NewManager(wsURL, Options{ReconnectInterval: interval}, nil, nil)
	events := recordEvents(m)

	if err := m.Connect(context.Background(), "abc"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for scheduled := false; !scheduled; {
		select {
		case ev := <-events:
			_, scheduled = ev.(ReconnectScheduled)
		case <-deadline:
			t.Fatal("no reconnect scheduled")
		}
	}

	m.Disconnect()
	time.Sleep(interval + 100*time.Millisecond)

	if got := requests.Load(); got != 1 {
		t.Errorf("server saw %d handshakes, want 1", got)
	}
	if m.State() != status.Closed {
		t.Errorf("state = %s, want CLOSED", m.State())
	}
	if got := m.ReconnectAttempts(); got != DefaultMaxReconnectAttempts {
		t.Errorf("ReconnectAttempts() = %d, want %d", got, DefaultMaxReconnectAttempts)
	}
}

func TestConnectFailureIsNotRetried(t *testing.T) {
	var requests atomic.Int32
	wsURL := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	m := NewManager(wsURL, Options{ReconnectInterval: 20 * time.Millisecond}, nil, nil)
	err := m.Connect(context.Background(), "abc")

	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("Connect() error = %v, want *ConnectionError", err)
	}
	if ce.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", ce.Status)
	}
	if strings.Contains(ce.Error(), "abc") {
		t.Errorf("error leaks token: %v", ce)
	}
	if m.State() != status.Idle {
		t.Errorf("state = %s, want IDLE", m.State())
	}

	time.Sleep(100 * time.Millisecond)
	if got := requests.Load(); got != 1 {
		t.Errorf("server saw %d handshakes, want 1", got)
	}
}

func TestConnectRequiresToken(t *testing.T) {
	m := NewManager("ws://127.0.0.1:1/ws/chat", Options{}, nil, nil)
	if err := m.Connect(context.Background(), ""); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("Connect(\"\") error = %v, want ErrEmptyToken", err)
	}
	if m.State() != status.Idle {
		t.Errorf("state = %s, want IDLE", m.State())
	}
}

func TestSendWhenNotConnected(t *testing.T) {
	m := NewManager("ws://127.0.0.1:1/ws/chat", Options{}, nil, nil)
	if err := m.Send(7, "hi", 3); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
}

func TestMalformedFrameIsSwallowed(t *testing.T) {
	wsURL := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"id":1,"roomId":7,"senderId":3,"userId":null,"message":"hello","date":"2025-01-15T12:00:00"}`))
		readUntilClosed(conn)
		conn.Close()
	})

	m := NewManager(wsURL, Options{}, nil, nil)
	defer m.Disconnect()
	events := recordEvents(m)

	if err := m.Connect(context.Background(), "abc"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			fr, ok := ev.(FrameReceived)
			if !ok {
				continue
			}
			if fr.Frame.RoomID != 7 || fr.Frame.Body != "hello" || fr.Frame.ID != 1 {
				t.Errorf("frame = %+v", fr.Frame)
			}
			if !m.IsConnected() {
				t.Errorf("state = %s after malformed frame, want OPEN", m.State())
			}
			return
		case <-deadline:
			t.Fatal("valid frame never delivered")
		}
	}
}

func TestDisconnectSendsNormalClosure(t *testing.T) {
	codes := make(chan int, 2)
	wsURL := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		codes <- readUntilClosed(conn)
		conn.Close()
	})

	m := NewManager(wsURL, Options{}, nil, nil)

	// Disconnecting an idle manager is harmless.
	m.Disconnect()
	if m.State() != status.Idle {
		t.Errorf("state = %s, want IDLE", m.State())
	}

	if err := m.Connect(context.Background(), "abc"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	m.Disconnect()
	m.Disconnect()

	select {
	case code := <-codes:
		if code != websocket.CloseNormalClosure {
			t.Errorf("close code = %d, want 1000", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the close")
	}
	if m.State() != status.Closed {
		t.Errorf("state = %s, want CLOSED", m.State())
	}
	if err := m.Send(1, "x", 1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() after Disconnect error = %v, want ErrNotConnected", err)
	}

	// A manual connect after Disconnect starts a fresh reconnect budget.
	if err := m.Connect(context.Background(), "abc"); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	if got := m.ReconnectAttempts(); got != 0 {
		t.Errorf("ReconnectAttempts() = %d, want 0", got)
	}
	m.Disconnect()
}

func TestChatURL(t *testing.T) {
	tests := []struct {
		base, token, want string
		wantErr           bool
	}{
		{"ws://localhost:8080/ws/chat", "abc", "ws://localhost:8080/ws/chat?token=abc", false},
		{"http://localhost:8080/ws/chat", "a b+c", "ws://localhost:8080/ws/chat?token=a+b%2Bc", false},
		{"https://example.com/ws/chat", "t", "wss://example.com/ws/chat?token=t", false},
		{"ftp://example.com/ws/chat", "t", "", true},
	}
	for _, tt := range tests {
		got, err := chatURL(tt.base, tt.token)
		if (err != nil) != tt.wantErr {
			t.Errorf("chatURL(%q) error = %v, wantErr %v", tt.base, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("chatURL(%q, %q) = %q, want %q", tt.base, tt.token, got, tt.want)
		}
	}
}
