package realtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/suPer8Hu/presence-hub/internal/chat"
	"github.com/suPer8Hu/presence-hub/internal/models"
	"github.com/suPer8Hu/presence-hub/internal/presence"
	"github.com/suPer8Hu/presence-hub/internal/typing"
	"gorm.io/gorm"
)

type presenceWrite struct {
	userID uint64
	online bool
}

type fakeStore struct {
	mu       sync.Mutex
	users    map[uint64]*models.User
	friends  map[uint64][]uint64
	partners map[uint64][]uint64
	messages map[uint64]*chat.Message
	nextID   uint64
	writes   []presenceWrite

	saveErr     error
	presenceErr error
	friendsErr  error
	panicOnRead bool
}

func newFakeStore(userIDs ...uint64) *fakeStore {
	s := &fakeStore{
		users:    map[uint64]*models.User{},
		friends:  map[uint64][]uint64{},
		partners: map[uint64][]uint64{},
		messages: map[uint64]*chat.Message{},
	}
	for _, id := range userIDs {
		s.users[id] = &models.User{ID: id}
	}
	return s
}

func (s *fakeStore) befriend(a, b uint64) {
	s.friends[a] = append(s.friends[a], b)
	s.friends[b] = append(s.friends[b], a)
}

func (s *fakeStore) GetUser(ctx context.Context, id uint64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) FriendIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.friendsErr != nil {
		return nil, s.friendsErr
	}
	return append([]uint64(nil), s.friends[userID]...), nil
}

func (s *fakeStore) RecentPartners(ctx context.Context, userID uint64, limit int) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.partners[userID]...), nil
}

func (s *fakeStore) GetMessage(ctx context.Context, id uint64) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOnRead {
		panic("boom")
	}
	m, ok := s.messages[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) SaveMessage(ctx context.Context, m *chat.Message, deliveredAt *time.Time) (*chat.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return nil, false, s.saveErr
	}
	if m.ClientMessageID != nil {
		for _, prev := range s.messages {
			if prev.SenderID == m.SenderID && prev.RecipientID == m.RecipientID &&
				prev.ClientMessageID != nil && *prev.ClientMessageID == *m.ClientMessageID {
				if prev.Content != m.Content {
					return nil, false, chat.ErrClientIDConflict
				}
				cp := *prev
				return &cp, false, nil
			}
		}
	}

	s.nextID++
	m.ID = s.nextID
	m.CreatedAt = time.Now().UTC()
	m.UpdatedAt = m.CreatedAt

	stored := *m
	if deliveredAt != nil {
		at := *deliveredAt
		stored.Delivered = true
		stored.DeliveredAt = &at
	}
	s.messages[m.ID] = &stored
	return m, true, nil
}

func (s *fakeStore) MarkRead(ctx context.Context, id uint64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.Read {
		return false, nil
	}
	m.Read = true
	m.ReadAt = &at
	return true, nil
}

func (s *fakeStore) SetPresence(ctx context.Context, userID uint64, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presenceErr != nil {
		return s.presenceErr
	}
	s.writes = append(s.writes, presenceWrite{userID: userID, online: online})
	if u, ok := s.users[userID]; ok {
		u.IsOnline = online
		u.LastSeen = &at
	}
	return nil
}

func (s *fakeStore) stored(id uint64) chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.messages[id]
}

type emitted struct {
	room string
	ev   Event
}

// fakeHub records emits and memberships.
type fakeHub struct {
	mu      sync.Mutex
	events  []emitted
	members map[string]map[string]bool
}

func newFakeHub() *fakeHub {
	return &fakeHub{members: map[string]map[string]bool{}}
}

func (h *fakeHub) Emit(room string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, emitted{room: room, ev: ev})
}

func (h *fakeHub) JoinRoom(sid, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.members[room] == nil {
		h.members[room] = map[string]bool{}
	}
	h.members[room][sid] = true
}

func (h *fakeHub) LeaveRoom(sid, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members[room], sid)
}

func (h *fakeHub) isMember(sid, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.members[room][sid]
}

func (h *fakeHub) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = nil
}

// find returns the events of the given type sent to room.
func (h *fakeHub) find(room, typ string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, e := range h.events {
		if e.room == room && e.ev.Type == typ {
			out = append(out, e.ev)
		}
	}
	return out
}

func (h *fakeHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []uint64
	err  error
}

func (n *fakeNotifier) NotifyOffline(ctx context.Context, m *chat.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, m.ID)
	return n.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store    *fakeStore
	hub      *fakeHub
	registry *presence.Registry
	tracker  *typing.Tracker
	notifier *fakeNotifier
	d        *Dispatcher
}

func newFixture(userIDs ...uint64) *fixture {
	f := &fixture{
		store:    newFakeStore(userIDs...),
		hub:      newFakeHub(),
		registry: presence.NewRegistry(),
		tracker:  typing.NewTracker(),
		notifier: &fakeNotifier{},
	}
	f.d = NewDispatcher(f.store, f.hub, f.hub, f.registry, f.tracker, Options{
		Notifier: f.notifier,
		Logger:   quietLogger(),
	})
	return f
}

func session(id string, userID uint64) Session {
	return Session{ID: id, UserID: userID, ConnectedAt: time.Now()}
}
