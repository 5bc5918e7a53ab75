// Package chatws maintains the single chat WebSocket of a session and
// restores it after unexpected loss.
package chatws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/bazaar/internal/bus"
	"github.com/matheus3301/bazaar/internal/chat"
	"github.com/matheus3301/bazaar/internal/status"
	"go.uber.org/zap"
)

const closeWait = time.Second

// Manager owns at most one live chat socket. A socket that drops with any
// code other than normal closure is re-dialed after a fixed interval, up to
// MaxReconnectAttempts consecutive times.
type Manager struct {
	url     string
	opts    Options
	dialer  *websocket.Dialer
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	done     chan struct{} // closed when conn is detached
	token    string
	attempts int
	timer    *time.Timer
	epoch    uint64 // bumped by Connect, Disconnect and each scheduled reconnect

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   []func(Event)
}

// NewManager creates an idle manager for the chat endpoint at wsURL.
// b and logger may be nil.
func NewManager(wsURL string, opts Options, b *bus.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Manager{
		url:  wsURL,
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		machine: status.NewMachine(b),
		bus:     b,
		logger:  logger.With(zap.String("component", "chatws")),
	}
}

// RegisterEventHandler adds a handler for connection events.
// Handlers must not block.
func (m *Manager) RegisterEventHandler(h func(Event)) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers = append(m.handlers, h)
}

// State returns the current connection state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// IsConnected reports whether the socket is open.
func (m *Manager) IsConnected() bool {
	return m.machine.Current() == status.Open
}

// ReconnectAttempts returns the number of reconnects scheduled since the
// socket was last open.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Connect opens the socket with the given token and blocks until the
// handshake completes. It is a no-op while the socket is open or another
// connect is in flight. A failed connect returns a *ConnectionError and
// leaves the manager Idle; it is not retried.
func (m *Manager) Connect(ctx context.Context, token string) error {
	if token == "" {
		return &ConnectionError{URL: m.url, Err: ErrEmptyToken}
	}

	m.mu.Lock()
	if m.machine.In(status.Open, status.Connecting, status.Closing) {
		m.mu.Unlock()
		return nil
	}
	m.token = token
	m.stopTimerLocked()
	m.epoch++
	epoch := m.epoch
	evs := m.setStateLocked(nil, status.Connecting)
	m.mu.Unlock()
	m.emit(evs)

	m.logger.Info("connecting to chat", zap.String("url", m.url))
	conn, err := m.dial(ctx, token)

	m.mu.Lock()
	if epoch != m.epoch || m.machine.Current() != status.Connecting {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		if err == nil {
			err = &ConnectionError{URL: m.url, Err: errDisconnected}
		}
		return err
	}
	if err != nil {
		evs = m.setStateLocked(nil, status.Idle)
		m.mu.Unlock()
		m.emit(evs)
		m.logger.Warn("chat connect failed", zap.Error(err))
		return err
	}
	evs, done := m.attachLocked(conn)
	m.mu.Unlock()
	m.emit(evs)
	m.start(conn, done)
	return nil
}

// Send writes one frame to the open socket. It does not queue: when the
// socket is not open it returns ErrNotConnected.
func (m *Manager) Send(roomID int64, body string, senderID int64) error {
	m.mu.Lock()
	conn := m.conn
	open := m.machine.Current() == status.Open
	m.mu.Unlock()
	if !open || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(chat.OutboundFrame{RoomID: roomID, Body: body, UserID: senderID})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Disconnect closes the socket with a normal closure and suppresses any
// pending or future automatic reconnect. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.attempts = m.opts.MaxReconnectAttempts
	m.epoch++
	m.stopTimerLocked()

	var evs []Event
	switch m.machine.Current() {
	case status.Open:
		conn := m.conn
		m.detachLocked()
		evs = m.setStateLocked(evs, status.Closing)
		m.closeConn(conn)
		evs = m.setStateLocked(evs, status.Closed)
	case status.Connecting:
		evs = m.setStateLocked(evs, status.Closing)
		evs = m.setStateLocked(evs, status.Closed)
	}
	m.mu.Unlock()

	if len(evs) > 0 {
		m.logger.Info("chat disconnected")
	}
	m.emit(evs)
}

func (m *Manager) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	target, err := chatURL(m.url, token)
	if err != nil {
		return nil, &ConnectionError{URL: m.url, Err: err}
	}
	conn, resp, err := m.dialer.DialContext(ctx, target, nil)
	if err != nil {
		ce := &ConnectionError{URL: m.url, Err: err}
		if resp != nil {
			ce.Status = resp.StatusCode
		}
		return nil, ce
	}
	return conn, nil
}

// attachLocked installs conn as the live socket. The caller starts its
// goroutines with start once the lock is released.
func (m *Manager) attachLocked(conn *websocket.Conn) ([]Event, chan struct{}) {
	m.conn = conn
	m.done = make(chan struct{})
	m.attempts = 0
	evs := m.setStateLocked(nil, status.Open)
	m.logger.Info("chat socket open")
	return evs, m.done
}

func (m *Manager) start(conn *websocket.Conn, done chan struct{}) {
	go m.readLoop(conn)
	go m.pingLoop(conn, done)
}

func (m *Manager) detachLocked() {
	if m.done != nil {
		close(m.done)
	}
	m.conn = nil
	m.done = nil
}

func (m *Manager) closeConn(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait)); err != nil {
		m.logger.Debug("write close frame", zap.Error(err))
	}
	_ = conn.Close()
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(m.opts.MaxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(m.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.opts.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(conn, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(m.opts.PongWait))

		frame, err := decodeFrame(data)
		if err != nil {
			m.logger.Warn("dropping inbound frame", zap.Error(err))
			continue
		}
		m.emit([]Event{FrameReceived{Frame: frame}})
	}
}

func (m *Manager) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.opts.WriteWait)); err != nil {
				m.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// handleClose runs on the read goroutine when the socket stops. A socket
// already detached by Disconnect is ignored.
func (m *Manager) handleClose(conn *websocket.Conn, err error) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.detachLocked()
	_ = conn.Close()

	evs := m.setStateLocked(nil, status.Closed)
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		m.logger.Info("chat socket closed by server")
	} else {
		m.logger.Warn("chat socket dropped", zap.Error(err))
		evs = m.scheduleReconnectLocked(evs)
	}
	m.mu.Unlock()
	m.emit(evs)
}

func (m *Manager) scheduleReconnectLocked(evs []Event) []Event {
	if m.attempts >= m.opts.MaxReconnectAttempts {
		m.logger.Warn("reconnect attempts exhausted", zap.Int("attempts", m.attempts))
		return evs
	}
	m.attempts++
	m.epoch++
	epoch := m.epoch
	delay := m.opts.ReconnectInterval
	m.timer = time.AfterFunc(delay, func() { m.reconnect(epoch) })

	m.logger.Info("reconnect scheduled", zap.Int("attempt", m.attempts), zap.Duration("delay", delay))
	ev := ReconnectScheduled{Attempt: m.attempts, Delay: delay}
	m.bus.Publish(bus.NewEvent(bus.KindReconnectScheduled, 0, ev))
	return append(evs, ev)
}

func (m *Manager) reconnect(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.machine.Current() != status.Closed {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	token := m.token
	evs := m.setStateLocked(nil, status.Connecting)
	m.mu.Unlock()
	m.emit(evs)

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.HandshakeTimeout)
	conn, err := m.dial(ctx, token)
	cancel()

	m.mu.Lock()
	if epoch != m.epoch || m.machine.Current() != status.Connecting {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		// A failed re-dial is another unexpected close.
		m.logger.Warn("reconnect failed", zap.Int("attempt", m.attempts), zap.Error(err))
		evs = m.setStateLocked(nil, status.Closed)
		evs = m.scheduleReconnectLocked(evs)
		m.mu.Unlock()
		m.emit(evs)
		return
	}
	evs, done := m.attachLocked(conn)
	m.mu.Unlock()
	m.emit(evs)
	m.start(conn, done)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) setStateLocked(evs []Event, to status.State) []Event {
	from := m.machine.Current()
	if from == to {
		return evs
	}
	if err := m.machine.Transition(to); err != nil {
		m.logger.Error("connection state", zap.Error(err))
		return evs
	}
	m.logger.Debug("connection state changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return append(evs, StateChanged{From: from, To: to})
}

func (m *Manager) emit(evs []Event) {
	if len(evs) == 0 {
		return
	}
	m.handlersMu.RLock()
	handlers := m.handlers
	m.handlersMu.RUnlock()
	for _, ev := range evs {
		for _, h := range handlers {
			h(ev)
		}
	}
}

func decodeFrame(data []byte) (chat.Frame, error) {
	var f chat.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return chat.Frame{}, &MalformedFrameError{Data: data, Err: err}
	}
	return f, nil
}

// chatURL appends the token to the endpoint. http(s) schemes are mapped to
// their WebSocket equivalents.
func chatURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse chat url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported chat url scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
