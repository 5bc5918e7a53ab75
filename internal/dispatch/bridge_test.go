package dispatch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/bazaar/internal/backend"
	"github.com/matheus3301/bazaar/internal/backend/backendtest"
	"github.com/matheus3301/bazaar/internal/bus"
	"github.com/matheus3301/bazaar/internal/chat"
	"github.com/matheus3301/bazaar/internal/chatws"
	"github.com/matheus3301/bazaar/internal/messages"
	"github.com/matheus3301/bazaar/internal/rooms"
)

type fakeConn struct {
	mu     sync.Mutex
	open   bool
	frames []chat.OutboundFrame
}

func (c *fakeConn) Send(roomID int64, body string, senderID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return chatws.ErrNotConnected
	}
	c.frames = append(c.frames, chat.OutboundFrame{RoomID: roomID, Body: body, UserID: senderID})
	return nil
}

func (c *fakeConn) sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

type harness struct {
	bridge *Bridge
	fake   *backendtest.Server
	conn   *fakeConn
	dir    *rooms.Directory
	bus    *bus.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := backendtest.New(t)
	api := backend.New(fake.APIURL(), 5*time.Second, nil)
	b := bus.New()
	dir := rooms.NewDirectory(api, b, nil)
	conn := &fakeConn{open: true}
	br := New(messages.NewStore(), conn, api, dir, b, nil)
	br.SetUser(3)
	return &harness{bridge: br, fake: fake, conn: conn, dir: dir, bus: b}
}

func msg(room, id, sender int64, date string) chat.Message {
	return chat.Message{ID: id, RoomID: room, SenderID: sender, Body: "m", Date: date}
}

func TestOpenRoomThenDuplicateFrame(t *testing.T) {
	h := newHarness(t)
	h.fake.AddMessages(7,
		msg(7, 1, 9, "2025-01-15T12:00:00"),
		msg(7, 2, 3, "2025-01-15T12:00:01"),
	)

	got, err := h.bridge.OpenRoom(context.Background(), 7)
	if err != nil {
		t.Fatalf("OpenRoom() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("OpenRoom() returned %d messages, want 2", len(got))
	}

	if err := h.bridge.HandleFrame(msg(7, 2, 3, "2025-01-15T12:00:01")); err != nil {
		t.Fatalf("HandleFrame() error = %v", err)
	}
	if n := len(h.bridge.Messages(7)); n != 2 {
		t.Errorf("Messages(7) has %d entries, want 2", n)
	}
}

func TestHistoryFetchedOncePerRoom(t *testing.T) {
	h := newHarness(t)
	h.fake.AddMessages(7, msg(7, 1, 9, "2025-01-15T12:00:00"))
	ctx := context.Background()

	for range 3 {
		if _, err := h.bridge.OpenRoom(ctx, 7); err != nil {
			t.Fatalf("OpenRoom() error = %v", err)
		}
	}
	if got := h.fake.Calls("GET /message/room"); got != 1 {
		t.Errorf("history calls = %d, want 1", got)
	}
}

func TestLiveFrameBeforeOpenKeepsHistory(t *testing.T) {
	h := newHarness(t)
	h.fake.AddMessages(7,
		msg(7, 1, 9, "2025-01-15T12:00:00"),
		msg(7, 2, 9, "2025-01-15T12:00:01"),
	)

	if err := h.bridge.HandleFrame(msg(7, 3, 9, "2025-01-15T12:00:02")); err != nil {
		t.Fatal(err)
	}
	got, err := h.bridge.OpenRoom(context.Background(), 7)
	if err != nil {
		t.Fatalf("OpenRoom() error = %v", err)
	}
	if len(got) != 3 || got[0].ID != 1 || got[2].ID != 3 {
		t.Errorf("OpenRoom() = %v, want ids [1 2 3]", ids(got))
	}
}

func TestHistoryFetchErrorAllowsRetry(t *testing.T) {
	h := newHarness(t)
	h.fake.AddMessages(7, msg(7, 1, 9, "2025-01-15T12:00:00"))
	h.fake.Fail("GET /message/room", http.StatusInternalServerError, 1)
	ctx := context.Background()

	_, err := h.bridge.OpenRoom(ctx, 7)
	var hfe *HistoryFetchError
	if !errors.As(err, &hfe) || hfe.RoomID != 7 {
		t.Fatalf("OpenRoom() error = %v, want *HistoryFetchError for room 7", err)
	}
	if n := len(h.bridge.Messages(7)); n != 0 {
		t.Errorf("room has %d messages after failure, want 0", n)
	}

	got, err := h.bridge.OpenRoom(ctx, 7)
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("retry returned %d messages, want 1", len(got))
	}
}

// blockingAPI holds RoomHistory until released.
type blockingAPI struct {
	release chan struct{}
}

func (a *blockingAPI) RoomHistory(context.Context, int64) ([]chat.Message, error) {
	<-a.release
	return []chat.Message{msg(7, 1, 9, "2025-01-15T12:00:00")}, nil
}

func (a *blockingAPI) SendMessage(context.Context, int64, string, int64) (chat.Message, error) {
	return chat.Message{}, errors.New("unused")
}

func TestAbandonedFetchIsStillMerged(t *testing.T) {
	api := &blockingAPI{release: make(chan struct{})}
	dir := rooms.NewDirectory(nil, nil, nil)
	br := New(messages.NewStore(), &fakeConn{}, api, dir, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := br.OpenRoom(ctx, 7)
		errc <- err
	}()

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("OpenRoom() error = %v, want context.Canceled", err)
	}
	close(api.release)

	deadline := time.Now().Add(2 * time.Second)
	for len(br.Messages(7)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("abandoned history was never merged")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSendWritesSocketAndREST(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m, err := h.bridge.Send(ctx, 7, "hi")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if h.conn.sent() != 1 {
		t.Errorf("socket frames = %d, want 1", h.conn.sent())
	}
	if h.conn.frames[0] != (chat.OutboundFrame{RoomID: 7, Body: "hi", UserID: 3}) {
		t.Errorf("frame = %+v", h.conn.frames[0])
	}
	if got := h.fake.Calls("POST /message"); got != 1 {
		t.Errorf("POST /message calls = %d, want 1", got)
	}

	// The socket echo of the persisted message collapses.
	if err := h.bridge.HandleFrame(m); err != nil {
		t.Fatal(err)
	}
	if n := len(h.bridge.Messages(7)); n != 1 {
		t.Errorf("Messages(7) has %d entries, want 1", n)
	}
}

func TestSendFallsBackToRESTWhenDisconnected(t *testing.T) {
	h := newHarness(t)
	h.conn.open = false

	m, err := h.bridge.Send(context.Background(), 7, "hi")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if m.ID == 0 || m.Body != "hi" {
		t.Errorf("Send() = %+v", m)
	}
	if n := len(h.bridge.Messages(7)); n != 1 {
		t.Errorf("Messages(7) has %d entries, want 1", n)
	}
}

func TestSendRESTFailure(t *testing.T) {
	h := newHarness(t)
	h.fake.Fail("POST /message", http.StatusServiceUnavailable, 1)
	ch, unsub := h.bus.Subscribe(bus.KindMessageSendFailed, 4)
	defer unsub()

	_, err := h.bridge.Send(context.Background(), 7, "hi")
	var se *backend.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusServiceUnavailable {
		t.Fatalf("Send() error = %v, want 503 StatusError", err)
	}
	if n := len(h.bridge.Messages(7)); n != 0 {
		t.Errorf("Messages(7) has %d entries, want 0", n)
	}
	if len(ch) != 1 {
		t.Errorf("send_failed events = %d, want 1", len(ch))
	}
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t)
	if _, err := h.bridge.Send(context.Background(), 7, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Send(blank) error = %v, want ErrEmptyMessage", err)
	}
	h.bridge.SetUser(0)
	if _, err := h.bridge.Send(context.Background(), 7, "hi"); !errors.Is(err, ErrNoUser) {
		t.Errorf("Send() without user error = %v, want ErrNoUser", err)
	}
}

func TestFrameWithoutRoomIsRejected(t *testing.T) {
	h := newHarness(t)

	err := h.bridge.HandleFrame(chat.Frame{ID: 5, Body: "lost"})
	var ife *InvalidFrameError
	if !errors.As(err, &ife) {
		t.Fatalf("HandleFrame() error = %v, want *InvalidFrameError", err)
	}
	if rooms := h.bridge.store.Rooms(); len(rooms) != 0 {
		t.Errorf("store rooms = %v, want none", rooms)
	}

	// Through the event handler the rejection is only logged.
	h.bridge.Handle(chatws.FrameReceived{Frame: chat.Frame{ID: 6}})
}

func TestUnreadTracking(t *testing.T) {
	h := newHarness(t)
	h.fake.AddRoom(backend.RoomSummary{ID: 5, OtherUserID: 9})
	h.fake.AddRoom(backend.RoomSummary{ID: 7, OtherUserID: 8})
	ctx := context.Background()
	if _, err := h.dir.ListRooms(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.bridge.OpenRoom(ctx, 7); err != nil {
		t.Fatal(err)
	}

	ch, unsub := h.bus.Subscribe(bus.KindMessageUpserted, 8)
	defer unsub()

	_ = h.bridge.HandleFrame(msg(5, 100, 9, "2025-01-15T12:00:00"))
	_ = h.bridge.HandleFrame(msg(5, 101, 3, "2025-01-15T12:00:01"))
	_ = h.bridge.HandleFrame(msg(7, 102, 8, "2025-01-15T12:00:02"))

	if r, _ := h.dir.Room(5); r.Unread != 1 {
		t.Errorf("room 5 unread = %d, want 1 (own message not counted)", r.Unread)
	}
	if r, _ := h.dir.Room(7); r.Unread != 0 {
		t.Errorf("active room unread = %d, want 0", r.Unread)
	}
	if len(ch) != 3 {
		t.Errorf("message.upserted events = %d, want 3", len(ch))
	}

	h.bridge.CloseRoom(7)
	_ = h.bridge.HandleFrame(msg(7, 103, 8, "2025-01-15T12:00:03"))
	if r, _ := h.dir.Room(7); r.Unread != 1 {
		t.Errorf("closed room unread = %d, want 1", r.Unread)
	}
}

func TestFrameForUnknownRoomRefreshesDirectory(t *testing.T) {
	h := newHarness(t)
	h.fake.AddRoom(backend.RoomSummary{ID: 77, OtherUserID: 12, OtherUserName: "dora"})

	if err := h.bridge.HandleFrame(msg(77, 1, 12, "2025-01-15T12:00:00")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if r, ok := h.dir.Room(77); ok {
			if r.PeerDisplayName != "dora" {
				t.Errorf("room 77 = %+v", r)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("directory never learned room 77")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestResetForgetsMessagesAndLoadedRooms(t *testing.T) {
	h := newHarness(t)
	h.fake.AddMessages(7, msg(7, 1, 9, "2025-01-15T12:00:00"))
	ctx := context.Background()

	if _, err := h.bridge.OpenRoom(ctx, 7); err != nil {
		t.Fatal(err)
	}
	_ = h.bridge.HandleFrame(msg(7, 2, 9, "2025-01-15T12:00:01"))

	h.bridge.Reset()

	if got := h.bridge.ActiveRoom(); got != 0 {
		t.Errorf("ActiveRoom() after Reset = %d, want 0", got)
	}
	if rooms, n := h.bridge.Held(); rooms != 0 || n != 0 {
		t.Errorf("Held() after Reset = %d rooms, %d messages", rooms, n)
	}

	got, err := h.bridge.OpenRoom(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if calls := h.fake.Calls("GET /message/room"); calls != 2 {
		t.Errorf("history calls = %d, want 2 (refetch after Reset)", calls)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("OpenRoom() after Reset = %v, want [1]", ids(got))
	}
}

func TestCreatedRoomIsSeeded(t *testing.T) {
	h := newHarness(t)
	h.dir.OnRoomCreated(h.bridge.SeedRoom)
	h.fake.AddUser(chat.User{ID: 9, Username: "bob"})
	h.fake.SetNextRoomID(42)
	h.fake.AddMessages(42,
		chat.Message{ID: 1, SenderID: 9, Body: "still for sale?", Date: "2025-01-15T12:00:00"},
		chat.Message{ID: 2, SenderID: 3, Body: "yes", Date: "2025-01-15T12:00:01"},
	)

	room, err := h.dir.ResolveOrCreateRoom(context.Background(), rooms.Peer{UserID: 9})
	if err != nil {
		t.Fatal(err)
	}
	if got := h.bridge.Messages(room.ID); len(got) != 2 || got[1].Body != "yes" {
		t.Errorf("Messages(%d) = %+v", room.ID, got)
	}
	if r, _ := h.dir.Room(room.ID); r.LastMessagePreview != "yes" {
		t.Errorf("preview = %q, want %q", r.LastMessagePreview, "yes")
	}
	if rooms, n := h.bridge.Held(); rooms != 1 || n != 2 {
		t.Errorf("Held() = %d rooms, %d messages, want 1, 2", rooms, n)
	}
}

func ids(msgs []chat.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
