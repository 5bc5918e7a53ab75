// Package model holds the TUI's client-side state, fed by daemon calls
// and the daemon's event stream.
package model

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/bazaar/internal/bus"
	"github.com/matheus3301/bazaar/internal/chat"
	"github.com/matheus3301/bazaar/internal/rpc"
	"github.com/matheus3301/bazaar/internal/tui/client"
	"github.com/matheus3301/bazaar/internal/tui/ui"
)

// Change tells the UI which parts of the model moved.
type Change uint8

const (
	ChangeStatus Change = 1 << iota
	ChangeRooms
	ChangeMessages
)

// Has reports whether c includes part.
func (c Change) Has(part Change) bool { return c&part != 0 }

const watchRetry = time.Second

// ViewModel caches daemon state for rendering.
type ViewModel struct {
	mu sync.RWMutex

	client       *client.Client
	status       *rpc.StatusResponse
	rooms        []chat.Room
	messages     []chat.Message
	activeRoomID int64
	users        []chat.User

	Flash *ui.FlashModel
}

// NewViewModel creates a new view model connected to the daemon client.
// c may be nil when only ApplyEvent is used.
func NewViewModel(c *client.Client) *ViewModel {
	return &ViewModel{client: c, Flash: ui.NewFlashModel()}
}

// LoadStatus fetches current session status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.client.Session.GetStatus(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	vm.mu.Unlock()
	return nil
}

// LoadRooms fetches the room list, asking the daemon to re-list from the
// backend when refresh is set.
func (vm *ViewModel) LoadRooms(ctx context.Context, refresh bool) error {
	resp, err := vm.client.Room.ListRooms(ctx, &rpc.ListRoomsRequest{Refresh: refresh})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.rooms = resp.Rooms
	vm.mu.Unlock()
	return nil
}

// OpenRoom makes roomID the active room and loads its messages.
func (vm *ViewModel) OpenRoom(ctx context.Context, roomID int64) error {
	vm.mu.Lock()
	vm.activeRoomID = roomID
	vm.messages = nil
	vm.mu.Unlock()

	resp, err := vm.client.Message.OpenRoom(ctx, roomID)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.activeRoomID == roomID {
		vm.messages = mergeMessages(resp.Messages, vm.messages)
	}
	if i := vm.roomIndexLocked(roomID); i >= 0 {
		vm.rooms[i].Unread = 0
	}
	vm.mu.Unlock()
	return nil
}

// CloseRoom leaves the active room.
func (vm *ViewModel) CloseRoom(ctx context.Context) error {
	vm.mu.Lock()
	id := vm.activeRoomID
	vm.activeRoomID = 0
	vm.messages = nil
	vm.mu.Unlock()
	if id == 0 {
		return nil
	}
	return vm.client.Message.CloseRoom(ctx, id)
}

// SendText sends a message to the active room.
func (vm *ViewModel) SendText(ctx context.Context, text string) error {
	roomID := vm.ActiveRoomID()
	if roomID == 0 {
		return fmt.Errorf("no room open")
	}
	resp, err := vm.client.Message.SendText(ctx, &rpc.SendTextRequest{RoomID: roomID, Text: text})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.activeRoomID == roomID {
		vm.messages = mergeMessages(vm.messages, []chat.Message{resp.Message})
	}
	vm.mu.Unlock()
	return nil
}

// SearchUsers runs a user search and keeps the results. cached reports
// that the daemon answered from its local peer cache.
func (vm *ViewModel) SearchUsers(ctx context.Context, query string) (users []chat.User, cached bool, err error) {
	resp, err := vm.client.Room.SearchUsers(ctx, &rpc.SearchUsersRequest{Query: query})
	if err != nil {
		return nil, false, err
	}
	if resp.Cached {
		vm.Flash.Warn("Backend unreachable, showing known users")
	}
	vm.mu.Lock()
	vm.users = resp.Users
	vm.mu.Unlock()
	return resp.Users, resp.Cached, nil
}

// ResolveRoom returns the room with u, creating it if needed.
func (vm *ViewModel) ResolveRoom(ctx context.Context, u chat.User) (chat.Room, error) {
	resp, err := vm.client.Room.ResolveRoom(ctx, &rpc.ResolveRoomRequest{
		PeerUserID: u.ID,
		PeerName:   u.DisplayName(),
		PeerEmail:  u.Email,
	})
	if err != nil {
		return chat.Room{}, err
	}
	vm.mu.Lock()
	vm.upsertRoomLocked(resp.Room, true)
	vm.mu.Unlock()
	return resp.Room, nil
}

// Login signs in through the daemon.
func (vm *ViewModel) Login(ctx context.Context, username, password string) error {
	if _, err := vm.client.Session.Login(ctx, &rpc.LoginRequest{Username: username, Password: password}); err != nil {
		return err
	}
	if err := vm.LoadStatus(ctx); err != nil {
		return err
	}
	return vm.LoadRooms(ctx, false)
}

// Logout signs out and forgets cached rooms.
func (vm *ViewModel) Logout(ctx context.Context) error {
	if err := vm.client.Session.Logout(ctx); err != nil {
		return err
	}
	vm.reset()
	return vm.LoadStatus(ctx)
}

// Connect asks the daemon to open the chat socket.
func (vm *ViewModel) Connect(ctx context.Context) error {
	if _, err := vm.client.Session.Connect(ctx); err != nil {
		return err
	}
	return vm.LoadStatus(ctx)
}

// Disconnect asks the daemon to close the chat socket.
func (vm *ViewModel) Disconnect(ctx context.Context) error {
	if _, err := vm.client.Session.Disconnect(ctx); err != nil {
		return err
	}
	return vm.LoadStatus(ctx)
}

// Watch applies daemon events until ctx ends, reopening the stream when it
// breaks. onChange runs on the watching goroutine.
func (vm *ViewModel) Watch(ctx context.Context, onChange func(Change)) {
	for ctx.Err() == nil {
		rx, err := vm.client.Message.WatchEvents(ctx, &rpc.WatchEventsRequest{})
		if err == nil {
			for {
				env, err := rx.Recv()
				if err != nil {
					break
				}
				if ch := vm.ApplyEvent(env); ch != 0 {
					onChange(ch)
				}
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(watchRetry):
		}
		// Events may have been missed while the stream was down.
		_ = vm.LoadStatus(ctx)
		_ = vm.LoadRooms(ctx, false)
		onChange(ChangeStatus | ChangeRooms)
	}
}

// ApplyEvent folds one daemon event into the model.
func (vm *ViewModel) ApplyEvent(env *rpc.EventEnvelope) Change {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	switch env.Kind {
	case bus.KindStateChanged:
		var sc rpc.StateChange
		if env.Decode(&sc) != nil {
			return 0
		}
		st := vm.statusLocked()
		st.State = sc.To
		if sc.To == "OPEN" {
			st.ReconnectAttempts = 0
		}
		return ChangeStatus

	case bus.KindReconnectScheduled:
		var rs rpc.ReconnectScheduled
		if env.Decode(&rs) != nil {
			return 0
		}
		vm.statusLocked().ReconnectAttempts = rs.Attempt
		vm.Flash.Warn(fmt.Sprintf("Connection lost, retry %d in %s", rs.Attempt, time.Duration(rs.DelayMs)*time.Millisecond))
		return ChangeStatus

	case bus.KindMessageUpserted:
		var m chat.Message
		if env.Decode(&m) != nil || m.RoomID != vm.activeRoomID || vm.activeRoomID == 0 {
			return 0
		}
		before := len(vm.messages)
		vm.messages = mergeMessages(vm.messages, []chat.Message{m})
		if len(vm.messages) == before {
			return 0
		}
		return ChangeMessages

	case bus.KindMessageSendFailed:
		var reason string
		_ = env.Decode(&reason)
		vm.Flash.Err(fmt.Errorf("send to room %d failed: %s", env.RoomID, reason))
		return 0

	case bus.KindRoomCreated, bus.KindRoomUpdated:
		var r chat.Room
		if env.Decode(&r) != nil || r.ID == 0 {
			return 0
		}
		if r.ID == vm.activeRoomID {
			r.Unread = 0
		}
		vm.upsertRoomLocked(r, env.Kind == bus.KindRoomCreated)
		return ChangeRooms

	case bus.KindSessionLoggedIn:
		var lr rpc.LoginResponse
		if env.Decode(&lr) != nil {
			return 0
		}
		st := vm.statusLocked()
		switched := st.UserID != lr.UserID
		st.LoggedIn = true
		st.UserID = lr.UserID
		st.Username = lr.Username
		if !switched {
			return ChangeStatus
		}
		vm.rooms = nil
		vm.messages = nil
		vm.activeRoomID = 0
		return ChangeStatus | ChangeRooms | ChangeMessages

	case bus.KindSessionLoggedOut:
		st := vm.statusLocked()
		st.LoggedIn = false
		st.UserID = 0
		st.Username = ""
		vm.rooms = nil
		vm.messages = nil
		vm.activeRoomID = 0
		return ChangeStatus | ChangeRooms | ChangeMessages
	}
	return 0
}

// Status returns a copy of the session status, or nil before the first load.
func (vm *ViewModel) Status() *rpc.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.status == nil {
		return nil
	}
	s := *vm.status
	return &s
}

// Rooms returns a snapshot of the room list.
func (vm *ViewModel) Rooms() []chat.Room {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.rooms)
}

// Room returns a cached room.
func (vm *ViewModel) Room(id int64) (chat.Room, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if i := vm.roomIndexLocked(id); i >= 0 {
		return vm.rooms[i], true
	}
	return chat.Room{}, false
}

// Messages returns a snapshot of the active room's messages.
func (vm *ViewModel) Messages() []chat.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.messages)
}

// Users returns the last search results.
func (vm *ViewModel) Users() []chat.User {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return slices.Clone(vm.users)
}

// ActiveRoomID returns the open room, or 0.
func (vm *ViewModel) ActiveRoomID() int64 {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.activeRoomID
}

// SetActiveRoom marks a room as open without loading it. Used by tests and
// when the thread view is restored.
func (vm *ViewModel) SetActiveRoom(id int64) {
	vm.mu.Lock()
	vm.activeRoomID = id
	vm.mu.Unlock()
}

// SetRooms replaces the cached room list.
func (vm *ViewModel) SetRooms(rooms []chat.Room) {
	vm.mu.Lock()
	vm.rooms = slices.Clone(rooms)
	vm.mu.Unlock()
}

func (vm *ViewModel) reset() {
	vm.mu.Lock()
	vm.rooms = nil
	vm.messages = nil
	vm.users = nil
	vm.activeRoomID = 0
	vm.mu.Unlock()
}

func (vm *ViewModel) statusLocked() *rpc.StatusResponse {
	if vm.status == nil {
		vm.status = &rpc.StatusResponse{}
	}
	return vm.status
}

func (vm *ViewModel) roomIndexLocked(id int64) int {
	return slices.IndexFunc(vm.rooms, func(r chat.Room) bool { return r.ID == id })
}

// upsertRoomLocked stores r. New rooms, and rooms whose preview changed,
// move to the front like the daemon's directory does.
func (vm *ViewModel) upsertRoomLocked(r chat.Room, front bool) {
	i := vm.roomIndexLocked(r.ID)
	if i >= 0 {
		if !front && vm.rooms[i].LastMessagePreview == r.LastMessagePreview {
			vm.rooms[i] = r
			return
		}
		vm.rooms = slices.Delete(vm.rooms, i, i+1)
	}
	vm.rooms = slices.Insert(vm.rooms, 0, r)
}

// mergeMessages adds extra to base, dropping ids already present, and keeps
// the (date, id) order.
func mergeMessages(base, extra []chat.Message) []chat.Message {
	out := slices.Clone(base)
	for _, m := range extra {
		if m.ID != 0 && slices.ContainsFunc(out, func(o chat.Message) bool { return o.ID == m.ID }) {
			continue
		}
		out = append(out, m)
	}
	chat.SortMessages(out)
	return out
}
