// Package dispatch routes chat traffic between the socket, the REST API and
// the message store. It is the only writer of the store.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/bazaar/internal/bus"
	"github.com/matheus3301/bazaar/internal/chat"
	"github.com/matheus3301/bazaar/internal/chatws"
	"github.com/matheus3301/bazaar/internal/messages"
	"go.uber.org/zap"
)

const refreshTimeout = 15 * time.Second

// Conn is the live socket.
type Conn interface {
	Send(roomID int64, body string, senderID int64) error
}

// API is the REST side used for history and durable sends.
type API interface {
	RoomHistory(ctx context.Context, roomID int64) ([]chat.Message, error)
	SendMessage(ctx context.Context, roomID int64, body string, userID int64) (chat.Message, error)
}

// Rooms is the room directory.
type Rooms interface {
	ListRooms(ctx context.Context) ([]chat.Room, error)
	Touch(roomID int64, body string, unread bool) bool
	MarkRead(roomID int64)
}

// Bridge is the single subscriber of socket events and the send path for
// UI callers.
type Bridge struct {
	store  *messages.Store
	conn   Conn
	api    API
	rooms  Rooms
	bus    *bus.Bus
	logger *zap.Logger

	mu      sync.Mutex
	userID  int64
	active  int64
	loaded  map[int64]bool
	loading map[int64]chan struct{}
	gen     uint64 // bumped by Reset

	refreshing atomic.Bool
}

// New creates a bridge over store. b and logger may be nil.
func New(store *messages.Store, conn Conn, api API, rooms Rooms, b *bus.Bus, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		store:   store,
		conn:    conn,
		api:     api,
		rooms:   rooms,
		bus:     b,
		logger:  logger.With(zap.String("component", "dispatch")),
		loaded:  make(map[int64]bool),
		loading: make(map[int64]chan struct{}),
	}
}

// SetUser sets the id of the signed-in user, used as sender of outgoing
// messages. Zero clears it.
func (b *Bridge) SetUser(id int64) {
	b.mu.Lock()
	b.userID = id
	b.mu.Unlock()
}

// Reset drops every held message and forgets which rooms were loaded and
// which one is active. Fetches and sends in flight are not recorded when
// they complete.
func (b *Bridge) Reset() {
	b.mu.Lock()
	b.active = 0
	b.loaded = make(map[int64]bool)
	b.loading = make(map[int64]chan struct{})
	b.gen++
	b.store.Reset()
	b.mu.Unlock()
	b.logger.Debug("message store reset")
}

// SeedRoom records the messages returned with a newly created room and
// refreshes its preview.
func (b *Bridge) SeedRoom(room chat.Room, history []chat.Message) {
	b.store.LoadHistory(room.ID, history)
	if last, ok := b.store.Last(room.ID); ok {
		b.rooms.Touch(room.ID, last.Body, false)
	}
}

// Held reports how many rooms have messages in memory and how many
// messages they hold in total.
func (b *Bridge) Held() (rooms, msgs int) {
	ids := b.store.Rooms()
	for _, id := range ids {
		msgs += b.store.Len(id)
	}
	return len(ids), msgs
}

// Handle consumes connection events. Register it with the connection
// manager.
func (b *Bridge) Handle(ev chatws.Event) {
	if fr, ok := ev.(chatws.FrameReceived); ok {
		if err := b.HandleFrame(fr.Frame); err != nil {
			b.logger.Warn("rejecting inbound frame", zap.Error(err))
		}
	}
}

// HandleFrame validates an inbound frame and records it.
func (b *Bridge) HandleFrame(f chat.Frame) error {
	if f.RoomID == 0 {
		return &InvalidFrameError{Frame: f, Reason: "missing roomId"}
	}
	if !b.store.Append(f) {
		return nil
	}

	b.mu.Lock()
	unread := f.RoomID != b.active && f.Author() != b.userID
	b.mu.Unlock()

	if !b.rooms.Touch(f.RoomID, f.Body, unread) {
		b.refreshRooms()
	}
	b.bus.Publish(bus.NewEvent(bus.KindMessageUpserted, f.RoomID, f))
	return nil
}

// refreshRooms re-lists rooms in the background after a frame for an
// unknown room. Only one refresh runs at a time.
func (b *Bridge) refreshRooms() {
	if !b.refreshing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer b.refreshing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if _, err := b.rooms.ListRooms(ctx); err != nil {
			b.logger.Warn("refresh rooms after unknown room", zap.Error(err))
		}
	}()
}

// OpenRoom marks a room as the one being read and returns its messages.
// History is fetched at most once per room per session; a failed fetch
// returns *HistoryFetchError and is retried on the next open. A fetch whose
// caller gives up is still merged when it completes.
func (b *Bridge) OpenRoom(ctx context.Context, roomID int64) ([]chat.Message, error) {
	b.mu.Lock()
	b.active = roomID
	b.mu.Unlock()
	b.rooms.MarkRead(roomID)

	if err := b.loadHistory(ctx, roomID); err != nil {
		return nil, err
	}
	return b.store.MessagesFor(roomID), nil
}

// CloseRoom clears the active room if it is roomID.
func (b *Bridge) CloseRoom(roomID int64) {
	b.mu.Lock()
	if b.active == roomID {
		b.active = 0
	}
	b.mu.Unlock()
}

// ActiveRoom returns the room being read, or 0.
func (b *Bridge) ActiveRoom() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *Bridge) loadHistory(ctx context.Context, roomID int64) error {
	b.mu.Lock()
	if b.loaded[roomID] {
		b.mu.Unlock()
		return nil
	}
	wait, inflight := b.loading[roomID]
	if !inflight {
		wait = make(chan struct{})
		b.loading[roomID] = wait
	}
	gen := b.gen
	b.mu.Unlock()

	errc := make(chan error, 1)
	if !inflight {
		go func() {
			errc <- b.fetch(context.WithoutCancel(ctx), roomID, gen, wait)
			close(wait)
		}()
	}

	select {
	case <-wait:
	case <-ctx.Done():
		return ctx.Err()
	}
	if inflight {
		b.mu.Lock()
		ok := b.loaded[roomID]
		b.mu.Unlock()
		if !ok {
			return &HistoryFetchError{RoomID: roomID, Err: errors.New("concurrent fetch failed")}
		}
		return nil
	}
	return <-errc
}

func (b *Bridge) fetch(ctx context.Context, roomID int64, gen uint64, wait chan struct{}) error {
	msgs, err := b.api.RoomHistory(ctx, roomID)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen {
		return &HistoryFetchError{RoomID: roomID, Err: errStaleSession}
	}
	if b.loading[roomID] == wait {
		delete(b.loading, roomID)
	}
	if err != nil {
		b.logger.Warn("history fetch failed", zap.Int64("room", roomID), zap.Error(err))
		return &HistoryFetchError{RoomID: roomID, Err: err}
	}
	b.store.LoadHistory(roomID, msgs)
	b.loaded[roomID] = true
	b.logger.Debug("history loaded", zap.Int64("room", roomID), zap.Int("count", len(msgs)))
	return nil
}

// Send writes body to the socket when it is open and persists it over REST
// either way. The stored copy returned by REST is recorded; the socket echo
// of the same message collapses onto it.
func (b *Bridge) Send(ctx context.Context, roomID int64, body string) (chat.Message, error) {
	if strings.TrimSpace(body) == "" {
		return chat.Message{}, ErrEmptyMessage
	}
	b.mu.Lock()
	userID, gen := b.userID, b.gen
	b.mu.Unlock()
	if userID == 0 {
		return chat.Message{}, ErrNoUser
	}

	if err := b.conn.Send(roomID, body, userID); err != nil {
		if errors.Is(err, chatws.ErrNotConnected) {
			b.logger.Info("socket closed, sending over REST only", zap.Int64("room", roomID))
		} else {
			b.logger.Warn("socket send failed", zap.Int64("room", roomID), zap.Error(err))
		}
	}

	m, err := b.api.SendMessage(ctx, roomID, body, userID)
	if err != nil {
		b.bus.Publish(bus.NewEvent(bus.KindMessageSendFailed, roomID, err.Error()))
		return chat.Message{}, fmt.Errorf("send message to room %d: %w", roomID, err)
	}
	if m.RoomID == 0 {
		m.RoomID = roomID
	}
	b.mu.Lock()
	stale := b.gen != gen
	b.mu.Unlock()
	if stale {
		return m, nil
	}
	if b.store.Append(m) {
		b.rooms.Touch(roomID, m.Body, false)
		b.bus.Publish(bus.NewEvent(bus.KindMessageUpserted, roomID, m))
	}
	return m, nil
}

// Messages returns the ordered messages held for a room.
func (b *Bridge) Messages(roomID int64) []chat.Message {
	return b.store.MessagesFor(roomID)
}
