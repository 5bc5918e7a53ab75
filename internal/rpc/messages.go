package rpc

import (
	"encoding/json"

	"github.com/matheus3301/bazaar/internal/chat"
)

// Empty is used where a call carries no data.
type Empty struct{}

type StatusResponse struct {
	Session           string   `json:"session"`
	State             string   `json:"state"`
	LoggedIn          bool     `json:"loggedIn"`
	UserID            int64    `json:"userId,omitempty"`
	Username          string   `json:"username,omitempty"`
	Roles             []string `json:"roles,omitempty"`
	TokenExpiresAt    int64    `json:"tokenExpiresAt,omitempty"`
	ReconnectAttempts int      `json:"reconnectAttempts"`
	ActiveRoomID      int64    `json:"activeRoomId,omitempty"`
	ActiveRoomPeer    string   `json:"activeRoomPeer,omitempty"`
	RoomCount         int      `json:"roomCount"`
	HeldRooms         int      `json:"heldRooms"`
	HeldMessages      int      `json:"heldMessages"`
	UptimeMs          int64    `json:"uptimeMs"`
	DroppedEvents     uint64   `json:"droppedEvents"`
	APIURL            string   `json:"apiUrl"`
}

// LoginRequest signs in with a username and password, or adopts an existing
// token when Token is set.
type LoginRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
	UserID   int64  `json:"userId,omitempty"`
}

type LoginResponse struct {
	UserID    int64  `json:"userId"`
	Username  string `json:"username"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
	State     string `json:"state"`
}

type ConnectResponse struct {
	State string `json:"state"`
}

type ListRoomsRequest struct {
	Refresh bool `json:"refresh,omitempty"`
}

type ListRoomsResponse struct {
	Rooms []chat.Room `json:"rooms"`
}

type ResolveRoomRequest struct {
	PeerUserID int64  `json:"peerUserId"`
	PeerName   string `json:"peerName,omitempty"`
	PeerEmail  string `json:"peerEmail,omitempty"`
}

type ResolveRoomResponse struct {
	Room chat.Room `json:"room"`
}

type SearchUsersRequest struct {
	Query string `json:"query"`
}

type SearchUsersResponse struct {
	Users []chat.User `json:"users"`
	// Cached is set when the backend was unreachable and the answer came
	// from peers seen earlier.
	Cached bool `json:"cached,omitempty"`
}

type RoomRequest struct {
	RoomID int64 `json:"roomId"`
}

type MessagesResponse struct {
	Messages []chat.Message `json:"messages"`
}

type SendTextRequest struct {
	RoomID int64  `json:"roomId"`
	Text   string `json:"text"`
}

type SendTextResponse struct {
	Message chat.Message `json:"message"`
}

// WatchEventsRequest selects events by kind prefix. Empty means all.
type WatchEventsRequest struct {
	Prefix string `json:"prefix,omitempty"`
}

// EventEnvelope is one bus event as streamed to clients.
type EventEnvelope struct {
	EventID          string          `json:"eventId"`
	Kind             string          `json:"kind"`
	OccurredAtUnixMs int64           `json:"occurredAtUnixMs"`
	RoomID           int64           `json:"roomId,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v.
func (e *EventEnvelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// StateChange is the payload of connection.state_changed events.
type StateChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ReconnectScheduled is the payload of connection.reconnect_scheduled events.
type ReconnectScheduled struct {
	Attempt int   `json:"attempt"`
	DelayMs int64 `json:"delayMs"`
}
