package bus

import "time"

// Event kinds published by the daemon. Subscribers filter by prefix, so
// "message." receives every message event.
const (
	KindStateChanged       = "connection.state_changed"
	KindReconnectScheduled = "connection.reconnect_scheduled"
	KindMessageUpserted    = "message.upserted"
	KindMessageSendFailed  = "message.send_failed"
	KindRoomUpdated        = "room.updated"
	KindRoomCreated        = "room.created"
	KindSessionLoggedIn    = "session.logged_in"
	KindSessionLoggedOut   = "session.logged_out"
)

// Event is a notification published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	RoomID    int64
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, roomID int64, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), RoomID: roomID, Payload: payload}
}
