package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/suPer8Hu/presence-hub/internal/realtime"
)

// Backplane carries room broadcasts between server instances. Every instance, including the
// publisher, receives each payload through the handler given to Subscribe. Subscribe returns once
// the subscription is live and keeps delivering until ctx is done.
type Backplane interface {
	Publish(ctx context.Context, room string, payload []byte) error
	Subscribe(ctx context.Context, handler func(room string, payload []byte)) error
}

// Hub owns the live clients of this process and their room memberships.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client            // session id -> client
	rooms   map[string]map[string]*Client // room -> session id -> client

	backplane Backplane
	log       *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: map[string]*Client{},
		rooms:   map[string]map[string]*Client{},
		log:     logger,
	}
}

// UseBackplane routes every Emit through bp and delivers what bp receives to local members.
func (h *Hub) UseBackplane(ctx context.Context, bp Backplane) error {
	if err := bp.Subscribe(ctx, h.deliverLocal); err != nil {
		return err
	}
	h.mu.Lock()
	h.backplane = bp
	h.mu.Unlock()
	return nil
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.session.ID] = c
}

// Unregister drops the client from every room and closes its send queue. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.session.ID)
	for room, members := range h.rooms {
		if _, ok := members[c.session.ID]; ok {
			delete(members, c.session.ID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()

	c.closeSend()
}

func (h *Hub) JoinRoom(sessionID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[sessionID]
	if !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = map[string]*Client{}
		h.rooms[room] = members
	}
	members[sessionID] = c
}

func (h *Hub) LeaveRoom(sessionID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Emit serialises ev once and fans it out to room.
func (h *Hub) Emit(room string, ev realtime.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event failed", "type", ev.Type, "err", err)
		return
	}

	h.mu.RLock()
	bp := h.backplane
	h.mu.RUnlock()

	if bp != nil {
		err := bp.Publish(context.Background(), room, b)
		if err == nil {
			return
		}
		h.log.Warn("backplane publish failed, delivering locally", "room", room, "err", err)
	}
	h.deliverLocal(room, b)
}

func (h *Hub) deliverLocal(room string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sid, c := range h.rooms[room] {
		if !c.trySend(payload) {
			h.log.Warn("client send queue full, dropping event", "room", room, "session_id", sid)
		}
	}
}

func (h *Hub) isMember(sessionID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][sessionID]
	return ok
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every connection so that the read loops exit and run their cleanup.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
}
