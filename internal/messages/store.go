package messages

import (
	"slices"
	"sync"

	"github.com/matheus3301/bazaar/internal/chat"
)

// Store holds the in-memory message log of every room opened by the
// signed-in user. It never evicts; Reset empties it when the user changes. Writes are expected to come from a single owner;
// the mutex only guards readers running on other goroutines.
type Store struct {
	mu    sync.RWMutex
	rooms map[int64]*roomLog
}

type roomLog struct {
	msgs []chat.Message
	seen map[int64]struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{rooms: make(map[int64]*roomLog)}
}

// LoadHistory seeds a room with a fetched history. Messages already present
// (for example live messages received while the fetch was in flight) are kept
// and duplicates collapse exactly as with Append.
func (s *Store) LoadHistory(roomID int64, msgs []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.room(roomID)
	for _, m := range msgs {
		m.RoomID = roomID
		log.add(m)
	}
}

// Append records a single message. Appending a message whose id is already
// stored for that room is a no-op; the first stored copy wins.
// Returns whether the message was added.
func (s *Store) Append(m chat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room(m.RoomID).add(m)
}

// MessagesFor returns a copy of the room's messages ordered by (date, id).
func (s *Store) MessagesFor(roomID int64) []chat.Message {
	s.mu.RLock()
	log, ok := s.rooms[roomID]
	var out []chat.Message
	if ok {
		out = slices.Clone(log.msgs)
	}
	s.mu.RUnlock()

	chat.SortMessages(out)
	return out
}

// Len returns the number of messages held for the room.
func (s *Store) Len(roomID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if log, ok := s.rooms[roomID]; ok {
		return len(log.msgs)
	}
	return 0
}

// Last returns the latest message of a room by (date, id).
func (s *Store) Last(roomID int64) (chat.Message, bool) {
	msgs := s.MessagesFor(roomID)
	if len(msgs) == 0 {
		return chat.Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// Rooms returns the ids of rooms with at least one message.
func (s *Store) Rooms() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.rooms))
	for id, log := range s.rooms {
		if len(log.msgs) > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Reset drops every room.
func (s *Store) Reset() {
	s.mu.Lock()
	s.rooms = make(map[int64]*roomLog)
	s.mu.Unlock()
}

func (s *Store) room(id int64) *roomLog {
	log, ok := s.rooms[id]
	if !ok {
		log = &roomLog{seen: make(map[int64]struct{})}
		s.rooms[id] = log
	}
	return log
}

// add appends m unless its id was seen. Messages without a server id cannot
// be deduplicated and are always kept.
func (l *roomLog) add(m chat.Message) bool {
	if m.ID != 0 {
		if _, dup := l.seen[m.ID]; dup {
			return false
		}
		l.seen[m.ID] = struct{}{}
	}
	l.msgs = append(l.msgs, m)
	return true
}
