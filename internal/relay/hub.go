package relay

import (
	"sync"

	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/logger"
)

const (
	RoomAdmin    = "admin-channel"
	RoomAllUsers = "all-users"
)

func ClientRoom(clientID string) string {
	return "client-" + clientID
}

func ConversationRoom(conversationID string) string {
	return "conversation-" + conversationID
}

// Hub tracks which sessions are in which room. A session may be in any
// number of rooms and leaves all of them when it disconnects.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Session]struct{})}
}

func (h *Hub) Join(room string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Session]struct{})
		h.rooms[room] = members
	}
	members[s] = struct{}{}
	s.rooms[room] = struct{}{}
}

func (h *Hub) Leave(room string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, s)
}

func (h *Hub) leaveLocked(room string, s *Session) {
	delete(s.rooms, room)
	if members := h.rooms[room]; members != nil {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Remove takes the session out of every room it joined.
func (h *Hub) Remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range s.rooms {
		h.leaveLocked(room, s)
	}
}

func (h *Hub) inRoom(room string, s *Session) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][s]
	return ok
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Emit sends the event to every session in room and returns how many
// sessions accepted it.
func (h *Hub) Emit(room, event string, data any) int {
	return h.EmitExcept(room, nil, event, data)
}

// EmitExcept is Emit without the except session.
func (h *Hub) EmitExcept(room string, except *Session, event string, data any) int {
	frame, err := model.NewEnvelope(event, data)
	if err != nil {
		logger.Error("failed to encode relay event", "event", event, "error", err)
		return 0
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.rooms[room]))
	for s := range h.rooms[room] {
		if s != except {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.enqueue(frame) {
			delivered++
		}
	}
	return delivered
}

// CloseAll disconnects every session. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.rooms[RoomAllUsers]))
	for s := range h.rooms[RoomAllUsers] {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()
	for _, s := range sessions {
		s.Close()
	}
}
