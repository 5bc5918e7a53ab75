package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/matheus3301/bazaar/internal/chat"
)

// RoomSummary is an entry of GET /room.
type RoomSummary struct {
	ID             int64        `json:"id"`
	OtherUserID    int64        `json:"otherUserId"`
	OtherUserName  string       `json:"otherUserName"`
	OtherUserEmail string       `json:"otherUserEmail"`
	LastMessage    *LastMessage `json:"lastMessage,omitempty"`
}

// LastMessage is the preview attached to a room summary.
type LastMessage struct {
	Content string `json:"content"`
}

// CreatedRoom is the response of POST /room.
type CreatedRoom struct {
	ID           int64          `json:"id"`
	UserID       int64          `json:"userId"`
	PeerUserID   int64          `json:"peerUserId"`
	PeerUserName string         `json:"peerUserName"`
	Messages     []chat.Message `json:"messages"`
}

// LoginResponse is the response of POST /auth/login.
type LoginResponse struct {
	ID        *int64 `json:"id"`
	UserID    *int64 `json:"userId"`
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
	ExpiresIn int64  `json:"expiresIn"`
}

// User returns the authenticated user's id, preferring userId over id.
func (r *LoginResponse) User() int64 {
	switch {
	case r.UserID != nil:
		return *r.UserID
	case r.ID != nil:
		return *r.ID
	default:
		return 0
	}
}

// RoomHistory fetches every message of a room.
func (c *Client) RoomHistory(ctx context.Context, roomID int64) ([]chat.Message, error) {
	var msgs []chat.Message
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/message/room/%d", roomID), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendMessage persists a message and returns the stored copy.
func (c *Client) SendMessage(ctx context.Context, roomID int64, body string, userID int64) (chat.Message, error) {
	in := chat.OutboundFrame{RoomID: roomID, Body: body, UserID: userID}
	var out chat.Message
	if err := c.do(ctx, http.MethodPost, "/message", in, &out); err != nil {
		return chat.Message{}, err
	}
	return out, nil
}

// ListRooms returns the rooms of the authenticated user.
func (c *Client) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	var rooms []RoomSummary
	if err := c.do(ctx, http.MethodGet, "/room", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// CreateRoom creates, or lets the server return, the room with a peer.
func (c *Client) CreateRoom(ctx context.Context, peerUserID int64) (CreatedRoom, error) {
	in := struct {
		PeerUserID int64 `json:"peerUserId"`
	}{peerUserID}
	var out CreatedRoom
	if err := c.do(ctx, http.MethodPost, "/room", in, &out); err != nil {
		return CreatedRoom{}, err
	}
	return out, nil
}

// SearchUsers finds users whose name, username or email matches q.
func (c *Client) SearchUsers(ctx context.Context, q string) ([]chat.User, error) {
	var users []chat.User
	path := "/users/search?q=" + url.QueryEscape(q)
	if err := c.do(ctx, http.MethodGet, path, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Login exchanges username and password for a token.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	in := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{username, password}
	var out LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", in, &out); err != nil {
		return LoginResponse{}, err
	}
	return out, nil
}
