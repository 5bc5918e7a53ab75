// Package backendtest runs an in-process fake of the marketplace API and
// chat endpoint for tests.
package backendtest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/bazaar/internal/backend"
	"github.com/matheus3301/bazaar/internal/chat"
)

var signingKey = []byte("backendtest")

// Account is a user that can log in to the fake.
type Account struct {
	User     chat.User
	Password string
}

// Server is a fake marketplace backend. Routes live under /api; the chat
// socket is served at /ws/chat.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu         sync.Mutex
	accounts   map[string]Account
	requireTok bool
	tokens     map[string]int64 // issued token -> user id
	rooms      []backend.RoomSummary
	owners     map[int64]int64 // room id -> user id; absent rooms are listed to everyone
	messages   map[int64][]chat.Message
	users      []chat.User
	nextRoomID int64
	nextMsgID  int64
	calls      map[string]int
	failures   map[string]int
	conns      []*websocket.Conn
	frames     chan chat.OutboundFrame
}

// New starts a fake backend that is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		accounts:   make(map[string]Account),
		tokens:     make(map[string]int64),
		messages:   make(map[int64][]chat.Message),
		owners:     make(map[int64]int64),
		nextRoomID: 1,
		nextMsgID:  1,
		calls:      make(map[string]int),
		failures:   make(map[string]int),
		frames:     make(chan chat.OutboundFrame, 64),
	}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.login)
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Get("/room", s.listRooms)
			r.Post("/room", s.createRoom)
			r.Get("/message/room/{roomID}", s.history)
			r.Post("/message", s.postMessage)
			r.Get("/users/search", s.searchUsers)
		})
	})
	r.Get("/ws/chat", s.chat)

	s.srv = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// APIURL returns the REST base URL.
func (s *Server) APIURL() string { return s.srv.URL + "/api" }

// ChatURL returns the chat socket URL.
func (s *Server) ChatURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws/chat"
}

// Close drops chat sockets and stops the server.
func (s *Server) Close() {
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
	s.mu.Unlock()
	s.srv.Close()
}

// AddAccount registers a login. It also becomes searchable.
func (s *Server) AddAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.User.Username] = a
	s.users = append(s.users, a.User)
}

// AddUser makes a user searchable without a login.
func (s *Server) AddUser(u chat.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, u)
}

// RequireToken makes every /api route except login demand a token issued
// by this server.
func (s *Server) RequireToken() {
	s.mu.Lock()
	s.requireTok = true
	s.mu.Unlock()
}

// IssueToken returns a signed token for the user, as login would.
func (s *Server) IssueToken(u chat.User, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"sub":    u.Username,
		"userId": u.ID,
		"roles":  []string{"USER"},
		"iat":    time.Now().Unix(),
		"exp":    time.Now().Add(ttl).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	s.tokens[tok] = u.ID
	s.mu.Unlock()
	return tok
}

// AddRoom seeds a room summary.
func (s *Server) AddRoom(r backend.RoomSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = append(s.rooms, r)
	if r.ID >= s.nextRoomID {
		s.nextRoomID = r.ID + 1
	}
}

// AddRoomFor seeds a room listed only to userID.
func (s *Server) AddRoomFor(userID int64, r backend.RoomSummary) {
	s.AddRoom(r)
	s.mu.Lock()
	s.owners[r.ID] = userID
	s.mu.Unlock()
}

// SetNextRoomID fixes the id of the next created room.
func (s *Server) SetNextRoomID(id int64) {
	s.mu.Lock()
	s.nextRoomID = id
	s.mu.Unlock()
}

// AddMessages seeds a room's history.
func (s *Server) AddMessages(roomID int64, msgs ...chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		m.RoomID = roomID
		s.messages[roomID] = append(s.messages[roomID], m)
		if m.ID >= s.nextMsgID {
			s.nextMsgID = m.ID + 1
		}
	}
}

// Fail makes the next n calls of route (for example "POST /room") answer
// with status.
func (s *Server) Fail(route string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route+"#status"] = status
	s.failures[route] = n
}

// Calls returns how many times route was hit.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Frames returns frames received on chat sockets.
func (s *Server) Frames() <-chan chat.OutboundFrame { return s.frames }

// Connections returns the number of live chat sockets.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Push sends a frame to every connected chat socket.
func (s *Server) Push(m chat.Message) {
	data, _ := json.Marshal(m)
	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns...)
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.WriteMessage(websocket.TextMessage, data)
	}
}

// PushRaw writes raw bytes to every connected chat socket.
func (s *Server) PushRaw(data []byte) {
	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns...)
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.WriteMessage(websocket.TextMessage, data)
	}
}

// DropConnections closes every chat socket with the given close code.
func (s *Server) DropConnections(code int) {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, "")
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.Close()
	}
}

// hit counts a call and reports a forced failure status, if any.
func (s *Server) hit(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[route]++
	if s.failures[route] > 0 {
		s.failures[route]--
		return s.failures[route+"#status"]
	}
	return 0
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		uid, ok := s.userFor(tok)
		if !ok {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, uid)))
	})
}

func (s *Server) userFor(tok string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.requireTok {
		return s.tokens[tok], true
	}
	id, ok := s.tokens[tok]
	return id, ok
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if status := s.hit("POST /auth/login"); status != 0 {
		http.Error(w, "login failed", status)
		return
	}
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	acct, ok := s.accounts[in.Username]
	s.mu.Unlock()
	if !ok || acct.Password != in.Password {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
		return
	}
	uid := acct.User.ID
	writeJSON(w, http.StatusOK, backend.LoginResponse{
		UserID:    &uid,
		Token:     s.IssueToken(acct.User, time.Hour),
		TokenType: "Bearer",
		ExpiresIn: int64(time.Hour / time.Millisecond),
	})
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	if status := s.hit("GET /room"); status != 0 {
		http.Error(w, "list failed", status)
		return
	}
	caller := callerOf(r)
	s.mu.Lock()
	rooms := []backend.RoomSummary{}
	for _, room := range s.rooms {
		if owner, ok := s.owners[room.ID]; !ok || caller == 0 || owner == caller {
			rooms = append(rooms, room)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	if status := s.hit("POST /room"); status != 0 {
		http.Error(w, "create failed", status)
		return
	}
	var in struct {
		PeerUserID int64 `json:"peerUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.PeerUserID == 0 {
		http.Error(w, "peerUserId required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var peer chat.User
	for _, u := range s.users {
		if u.ID == in.PeerUserID {
			peer = u
		}
	}
	id := s.nextRoomID
	s.nextRoomID++
	if caller := callerOf(r); caller != 0 {
		s.owners[id] = caller
	}
	s.rooms = append([]backend.RoomSummary{{
		ID:             id,
		OtherUserID:    in.PeerUserID,
		OtherUserName:  peer.Username,
		OtherUserEmail: peer.Email,
	}}, s.rooms...)
	writeJSON(w, http.StatusCreated, backend.CreatedRoom{
		ID:           id,
		PeerUserID:   in.PeerUserID,
		PeerUserName: peer.Username,
		Messages:     append([]chat.Message{}, s.messages[id]...),
	})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	if status := s.hit("GET /message/room"); status != 0 {
		http.Error(w, "history failed", status)
		return
	}
	roomID, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil {
		http.Error(w, "bad room id", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	msgs := append([]chat.Message{}, s.messages[roomID]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	if status := s.hit("POST /message"); status != 0 {
		http.Error(w, "send failed", status)
		return
	}
	var in chat.OutboundFrame
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.RoomID == 0 {
		http.Error(w, "roomId required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	uid := in.UserID
	m := chat.Message{
		ID:       s.nextMsgID,
		RoomID:   in.RoomID,
		SenderID: in.UserID,
		UserID:   &uid,
		Body:     in.Body,
		Date:     time.Now().UTC().Format("2006-01-02T15:04:05.000"),
	}
	s.nextMsgID++
	s.messages[in.RoomID] = append(s.messages[in.RoomID], m)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) searchUsers(w http.ResponseWriter, r *http.Request) {
	if status := s.hit("GET /users/search"); status != 0 {
		http.Error(w, "search failed", status)
		return
	}
	q := strings.ToLower(r.URL.Query().Get("q"))
	s.mu.Lock()
	out := []chat.User{}
	for _, u := range s.users {
		if q == "" ||
			strings.Contains(strings.ToLower(u.Username), q) ||
			strings.Contains(strings.ToLower(u.Name), q) ||
			strings.Contains(strings.ToLower(u.Email), q) {
			out = append(out, u)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	s.hit("GET /ws/chat")
	tok := r.URL.Query().Get("token")
	if _, ok := s.userFor(tok); !ok || tok == "" {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		for i, c := range s.conns {
			if c == conn {
				s.conns = append(s.conns[:i], s.conns[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f chat.OutboundFrame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		select {
		case s.frames <- f:
		default:
		}
	}
}

type callerKey struct{}

// callerOf returns the user id behind the request's token, or 0 for
// tokens this server did not issue.
func callerOf(r *http.Request) int64 {
	id, _ := r.Context().Value(callerKey{}).(int64)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
