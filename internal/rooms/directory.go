// Package rooms keeps the session's list of conversations and resolves
// peers to rooms, creating rooms on demand.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/bazaar/internal/backend"
	"github.com/matheus3301/bazaar/internal/bus"
	"github.com/matheus3301/bazaar/internal/chat"
	"go.uber.org/zap"
)

const previewRunes = 80

// API is the part of the backend the directory needs.
type API interface {
	ListRooms(ctx context.Context) ([]backend.RoomSummary, error)
	CreateRoom(ctx context.Context, peerUserID int64) (backend.CreatedRoom, error)
}

// Peer identifies the other party of a room to resolve.
type Peer struct {
	UserID int64
	Name   string
	Email  string
}

// RoomCreateError reports a failed create-room request. Nothing is added
// to the directory when it is returned.
type RoomCreateError struct {
	PeerUserID int64
	Err        error
}

func (e *RoomCreateError) Error() string {
	return fmt.Sprintf("create room with user %d: %v", e.PeerUserID, e.Err)
}

func (e *RoomCreateError) Unwrap() error { return e.Err }

// ErrStaleSession is returned for a response that arrived after Reset.
var ErrStaleSession = errors.New("session changed while the request was in flight")

type createCall struct {
	done chan struct{}
	room chat.Room
	err  error
}

// Directory caches the last fetched room list for the signed-in user.
// Between lists only rooms created locally are added; a list drops every
// room the server no longer returns except those still pending.
type Directory struct {
	api    API
	bus    *bus.Bus
	logger *zap.Logger

	mu        sync.RWMutex
	rooms     []chat.Room // most recent first
	loaded    bool
	pending   map[int64]bool // created locally, not yet listed by the server
	creating  map[int64]*createCall
	gen       uint64 // bumped by Reset; stale responses are discarded
	onCreated func(chat.Room, []chat.Message)
}

// NewDirectory creates an empty directory. b and logger may be nil.
func NewDirectory(api API, b *bus.Bus, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		api:      api,
		bus:      b,
		logger:   logger.With(zap.String("component", "rooms")),
		pending:  make(map[int64]bool),
		creating: make(map[int64]*createCall),
	}
}

// OnRoomCreated registers fn to receive each newly created room with the
// messages the server returned for it. It must be called before use.
func (d *Directory) OnRoomCreated(fn func(room chat.Room, history []chat.Message)) {
	d.onCreated = fn
}

// Reset forgets every room. It is called when the signed-in user changes;
// list and create calls still in flight are discarded when they return.
func (d *Directory) Reset() {
	d.mu.Lock()
	d.rooms = nil
	d.loaded = false
	d.pending = make(map[int64]bool)
	d.creating = make(map[int64]*createCall)
	d.gen++
	d.mu.Unlock()
	d.logger.Debug("rooms reset")
}

// ListRooms fetches the room list and replaces the cache. Local unread
// counters survive the refresh.
func (d *Directory) ListRooms(ctx context.Context) ([]chat.Room, error) {
	d.mu.RLock()
	gen := d.gen
	d.mu.RUnlock()

	summaries, err := d.api.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return nil, ErrStaleSession
	}
	prev := make(map[int64]chat.Room, len(d.rooms))
	for _, r := range d.rooms {
		prev[r.ID] = r
	}
	fetched := make([]chat.Room, 0, len(summaries))
	for _, s := range summaries {
		r := fromSummary(s)
		if old, ok := prev[r.ID]; ok {
			r.Unread = old.Unread
			if r.LastMessagePreview == "" {
				r.LastMessagePreview = old.LastMessagePreview
			}
		}
		fetched = append(fetched, r)
		delete(d.pending, r.ID)
	}
	for _, r := range d.rooms {
		if d.pending[r.ID] {
			fetched = append(fetched, r)
		}
	}
	d.rooms = fetched
	d.loaded = true
	out := slices.Clone(d.rooms)
	d.mu.Unlock()

	d.logger.Debug("rooms listed", zap.Int("count", len(out)))
	return out, nil
}

// Loaded reports whether the room list was fetched at least once.
func (d *Directory) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// Rooms returns the cached list, most recent first.
func (d *Directory) Rooms() []chat.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.rooms)
}

// Room returns a cached room by id.
func (d *Directory) Room(id int64) (chat.Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i := d.indexLocked(id); i >= 0 {
		return d.rooms[i], true
	}
	return chat.Room{}, false
}

// ResolveOrCreateRoom returns the cached room with peer, or asks the
// backend to create one and prepends it to the cache. Concurrent calls for
// the same peer share a single create request.
func (d *Directory) ResolveOrCreateRoom(ctx context.Context, peer Peer) (chat.Room, error) {
	d.mu.Lock()
	if r, ok := d.byPeerLocked(peer.UserID); ok {
		d.mu.Unlock()
		return r, nil
	}
	if c, ok := d.creating[peer.UserID]; ok {
		d.mu.Unlock()
		select {
		case <-c.done:
			return c.room, c.err
		case <-ctx.Done():
			return chat.Room{}, ctx.Err()
		}
	}
	c := &createCall{done: make(chan struct{})}
	d.creating[peer.UserID] = c
	gen := d.gen
	d.mu.Unlock()

	created, err := d.api.CreateRoom(ctx, peer.UserID)

	d.mu.Lock()
	if d.creating[peer.UserID] == c {
		delete(d.creating, peer.UserID)
	}
	if err == nil && d.gen != gen {
		err = ErrStaleSession
	}
	if err != nil {
		c.err = &RoomCreateError{PeerUserID: peer.UserID, Err: err}
		d.mu.Unlock()
		close(c.done)
		d.logger.Warn("create room failed", zap.Int64("peer", peer.UserID), zap.Error(err))
		return chat.Room{}, c.err
	}

	room := chat.Room{
		ID:              created.ID,
		PeerUserID:      peer.UserID,
		PeerDisplayName: firstNonEmpty(peer.Name, created.PeerUserName),
		PeerEmail:       peer.Email,
	}
	isNew := true
	if i := d.indexLocked(room.ID); i >= 0 {
		// The server answered with a room that is already cached.
		room = d.rooms[i]
		isNew = false
	} else {
		d.rooms = slices.Insert(d.rooms, 0, room)
		d.pending[room.ID] = true
	}
	c.room = room
	d.mu.Unlock()
	close(c.done)

	if isNew {
		d.logger.Info("room created", zap.Int64("room", room.ID), zap.Int64("peer", peer.UserID))
		d.bus.Publish(bus.NewEvent(bus.KindRoomCreated, room.ID, room))
	}
	if d.onCreated != nil && len(created.Messages) > 0 {
		d.onCreated(room, created.Messages)
	}
	return room, nil
}

// Touch records a message that flowed through a room: it refreshes the
// preview, moves the room to the front and, if unread is set, bumps the
// unread counter. It reports false for rooms not in the cache.
func (d *Directory) Touch(roomID int64, body string, unread bool) bool {
	d.mu.Lock()
	i := d.indexLocked(roomID)
	if i < 0 {
		d.mu.Unlock()
		return false
	}
	r := d.rooms[i]
	r.LastMessagePreview = chat.Preview(body, previewRunes)
	if unread {
		r.Unread++
	}
	d.rooms = slices.Delete(d.rooms, i, i+1)
	d.rooms = slices.Insert(d.rooms, 0, r)
	d.mu.Unlock()

	d.bus.Publish(bus.NewEvent(bus.KindRoomUpdated, roomID, r))
	return true
}

// MarkRead clears the unread counter of a room.
func (d *Directory) MarkRead(roomID int64) {
	d.mu.Lock()
	i := d.indexLocked(roomID)
	if i < 0 || d.rooms[i].Unread == 0 {
		d.mu.Unlock()
		return
	}
	d.rooms[i].Unread = 0
	r := d.rooms[i]
	d.mu.Unlock()

	d.bus.Publish(bus.NewEvent(bus.KindRoomUpdated, roomID, r))
}

func (d *Directory) indexLocked(id int64) int {
	return slices.IndexFunc(d.rooms, func(r chat.Room) bool { return r.ID == id })
}

func (d *Directory) byPeerLocked(peerID int64) (chat.Room, bool) {
	for _, r := range d.rooms {
		if r.PeerUserID == peerID {
			return r, true
		}
	}
	return chat.Room{}, false
}

func fromSummary(s backend.RoomSummary) chat.Room {
	r := chat.Room{
		ID:              s.ID,
		PeerUserID:      s.OtherUserID,
		PeerDisplayName: s.OtherUserName,
		PeerEmail:       s.OtherUserEmail,
	}
	if s.LastMessage != nil {
		r.LastMessagePreview = chat.Preview(s.LastMessage.Content, previewRunes)
	}
	return r
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
