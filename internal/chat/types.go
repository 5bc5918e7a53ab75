package chat

// Message is a single chat message as exchanged with the backend.
// Body is carried on the wire as "message" and Date as "date".
type Message struct {
	ID       int64  `json:"id"`
	RoomID   int64  `json:"roomId"`
	SenderID int64  `json:"senderId"`
	UserID   *int64 `json:"userId"`
	Body     string `json:"message"`
	Date     string `json:"date"`
}

// Author returns the id of the user who wrote the message. The backend fills
// senderId on persisted messages; echoes of client frames may only carry userId.
func (m *Message) Author() int64 {
	if m.SenderID != 0 {
		return m.SenderID
	}
	if m.UserID != nil {
		return *m.UserID
	}
	return 0
}

// Room is a two-party conversation.
type Room struct {
	ID                 int64  `json:"id"`
	PeerUserID         int64  `json:"peerUserId"`
	PeerDisplayName    string `json:"peerDisplayName"`
	PeerEmail          string `json:"peerEmail,omitempty"`
	LastMessagePreview string `json:"lastMessagePreview,omitempty"`
	Unread             int    `json:"unread"`
}

// User is a marketplace user as returned by user search.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// DisplayName returns the best human label for the user.
func (u *User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return u.Username
	default:
		return u.Email
	}
}

// Frame is an inbound WebSocket payload. It has the same shape as Message.
type Frame = Message

// OutboundFrame is what the client writes to the chat socket.
type OutboundFrame struct {
	RoomID int64  `json:"roomId"`
	Body   string `json:"message"`
	UserID int64  `json:"userId"`
}
