// Package realtime turns connection lifecycle and client events into presence changes, storage
// writes and room broadcasts.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/suPer8Hu/presence-hub/internal/chat"
	"github.com/suPer8Hu/presence-hub/internal/models"
	"github.com/suPer8Hu/presence-hub/internal/presence"
	"github.com/suPer8Hu/presence-hub/internal/rooms"
	"github.com/suPer8Hu/presence-hub/internal/typing"
	"gorm.io/gorm"
)

const maxClientMessageIDLen = 100

// Store is the storage collaborator. Missing rows are reported as gorm.ErrRecordNotFound.
type Store interface {
	GetUser(ctx context.Context, id uint64) (*models.User, error)
	FriendIDs(ctx context.Context, userID uint64) ([]uint64, error)
	RecentPartners(ctx context.Context, userID uint64, limit int) ([]uint64, error)
	GetMessage(ctx context.Context, id uint64) (*chat.Message, error)
	SaveMessage(ctx context.Context, m *chat.Message, deliveredAt *time.Time) (*chat.Message, bool, error)
	MarkRead(ctx context.Context, id uint64, at time.Time) (bool, error)
	SetPresence(ctx context.Context, userID uint64, online bool, at time.Time) error
}

// Emitter fans an event out to every member of a room.
type Emitter interface {
	Emit(room string, ev Event)
}

// Notifier is told about messages whose recipient had no live connection.
type Notifier interface {
	NotifyOffline(ctx context.Context, m *chat.Message) error
}

type Options struct {
	RecentConversations int
	Notifier            Notifier
	Logger              *slog.Logger
	Now                 func() time.Time
}

type Dispatcher struct {
	store    Store
	emitter  Emitter
	router   *rooms.Router
	presence *presence.Registry
	typing   *typing.Tracker
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
	recent   int
}

func NewDispatcher(store Store, emitter Emitter, groups rooms.Groups, reg *presence.Registry, tr *typing.Tracker, opts Options) *Dispatcher {
	if opts.RecentConversations <= 0 {
		opts.RecentConversations = 20
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		store:    store,
		emitter:  emitter,
		router:   rooms.NewRouter(groups),
		presence: reg,
		typing:   tr,
		notifier: opts.Notifier,
		log:      opts.Logger,
		now:      func() time.Time { return opts.Now().UTC() },
		recent:   opts.RecentConversations,
	}
}

func (d *Dispatcher) Presence() *presence.Registry { return d.presence }

// ActiveTyping is the number of live typing indicators.
func (d *Dispatcher) ActiveTyping() int { return d.typing.Len() }

func (d *Dispatcher) emitTo(userID uint64, ev Event) {
	d.emitter.Emit(rooms.PersonalRoom(userID), ev)
}

// Connect registers a new session. Storage failures are logged and do not reject the connection.
func (d *Dispatcher) Connect(ctx context.Context, s Session) error {
	if s.UserID == 0 {
		return ErrUnauthenticated
	}

	first := d.presence.RegisterSession(s.UserID, s.ID)
	d.router.JoinPersonal(s.ID, s.UserID)

	if first {
		now := d.now()
		if err := d.store.SetPresence(ctx, s.UserID, true, now); err != nil {
			d.log.Error("set presence failed", "user_id", s.UserID, "online", true, "err", err)
		}
		d.broadcastToFriends(ctx, s.UserID, userStatusEvent(s.UserID, StatusOnline, now))
	}

	partners, err := d.store.RecentPartners(ctx, s.UserID, d.recent)
	if err != nil {
		d.log.Error("load active conversations failed", "user_id", s.UserID, "err", err)
		return nil
	}
	for _, p := range partners {
		_ = d.router.JoinConversation(s.ID, s.UserID, p)
	}

	d.log.Info("session connected", "user_id", s.UserID, "session_id", s.ID, "first", first, "conversations", len(partners))
	return nil
}

// Disconnect removes the session. When it was the user's last one the user goes offline and every
// typing indicator they held is cleared. Indicators set after the disconnect, by a session that
// reconnected meanwhile, are kept.
func (d *Dispatcher) Disconnect(ctx context.Context, s Session) {
	if !d.presence.UnregisterSession(s.UserID, s.ID) {
		d.log.Info("session disconnected", "user_id", s.UserID, "session_id", s.ID, "last", false)
		return
	}

	now := d.now()
	stale := d.typing.ClearBefore(s.UserID, now)

	if err := d.store.SetPresence(ctx, s.UserID, false, now); err != nil {
		d.log.Error("set presence failed", "user_id", s.UserID, "online", false, "err", err)
	}
	d.broadcastToFriends(ctx, s.UserID, userStatusEvent(s.UserID, StatusOffline, now))

	for _, rcpt := range stale {
		d.emitTo(rcpt, typingEvent(s.UserID, false))
	}
	d.log.Info("session disconnected", "user_id", s.UserID, "session_id", s.ID, "last", true)
}

func (d *Dispatcher) broadcastToFriends(ctx context.Context, userID uint64, ev Event) {
	friends, err := d.store.FriendIDs(ctx, userID)
	if err != nil {
		d.log.Error("load friends failed", "user_id", userID, "err", err)
		return
	}
	for _, f := range friends {
		d.emitTo(f, ev)
	}
}

func checkPeer(self, other uint64, field string) error {
	if other == 0 {
		return validation("missing " + field)
	}
	if other == self {
		return validation(field + " must be another user")
	}
	return nil
}

func (d *Dispatcher) JoinConversation(ctx context.Context, s Session, other uint64) error {
	if err := checkPeer(s.UserID, other, "user_id"); err != nil {
		return err
	}
	if err := d.router.JoinConversation(s.ID, s.UserID, other); err != nil {
		return validation(err.Error())
	}
	d.emitTo(other, Event{Type: EventConversationStatus, Data: ConversationStatus{UserID: s.UserID, Status: StatusJoined}})
	return nil
}

func (d *Dispatcher) LeaveConversation(ctx context.Context, s Session, other uint64) error {
	if err := checkPeer(s.UserID, other, "user_id"); err != nil {
		return err
	}
	if err := d.router.LeaveConversation(s.ID, s.UserID, other); err != nil {
		return validation(err.Error())
	}
	if d.typing.Clear(s.UserID, other) {
		d.emitTo(other, typingEvent(s.UserID, false))
	}
	return nil
}

type SendMessageInput struct {
	RecipientID     uint64
	Content         string
	ClientMessageID string
}

// SendMessage persists a message and fans it out. A retry with the same client_message_id,
// recipient and content returns the stored message without a second broadcast.
func (d *Dispatcher) SendMessage(ctx context.Context, s Session, in SendMessageInput) (*MessagePayload, error) {
	if err := checkPeer(s.UserID, in.RecipientID, "recipient_id"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, validation("missing content")
	}
	if len(in.ClientMessageID) > maxClientMessageIDLen {
		return nil, validation("client_message_id too long")
	}

	if d.typing.Clear(s.UserID, in.RecipientID) {
		d.emitTo(in.RecipientID, typingEvent(s.UserID, false))
	}

	if _, err := d.store.GetUser(ctx, in.RecipientID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, internal("get recipient", err)
	}

	var deliveredAt *time.Time
	if d.presence.IsOnline(in.RecipientID) {
		now := d.now()
		deliveredAt = &now
	}

	m := &chat.Message{
		SenderID:    s.UserID,
		RecipientID: in.RecipientID,
		Content:     in.Content,
	}
	if in.ClientMessageID != "" {
		cid := in.ClientMessageID
		m.ClientMessageID = &cid
	}

	saved, created, err := d.store.SaveMessage(ctx, m, deliveredAt)
	if err != nil {
		if errors.Is(err, chat.ErrClientIDConflict) {
			return nil, validation(err.Error())
		}
		return nil, internal("save message", err)
	}
	payload := NewMessagePayload(saved)
	if !created {
		return payload, nil
	}

	room, _ := rooms.ConversationRoom(s.UserID, in.RecipientID)
	ev := Event{Type: EventNewMessage, Data: payload}
	d.emitter.Emit(room, ev)
	d.emitTo(in.RecipientID, ev)

	if deliveredAt != nil {
		d.emitTo(s.UserID, Event{Type: EventMessageDelivered, Data: MessageDelivered{MessageID: saved.ID, DeliveredAt: *deliveredAt}})
	} else if d.notifier != nil {
		if err := d.notifier.NotifyOffline(ctx, saved); err != nil {
			d.log.Warn("offline notice failed", "message_id", saved.ID, "recipient_id", in.RecipientID, "err", err)
		}
	}
	return payload, nil
}

// Typing records or clears the indicator. The recipient is told on every call, even when the
// state did not change.
func (d *Dispatcher) Typing(ctx context.Context, s Session, recipient uint64, isTyping bool) error {
	if err := checkPeer(s.UserID, recipient, "recipient_id"); err != nil {
		return err
	}
	if isTyping {
		d.typing.Set(s.UserID, recipient, d.now())
	} else {
		d.typing.Clear(s.UserID, recipient)
	}
	d.emitTo(recipient, typingEvent(s.UserID, isTyping))
	return nil
}

// ReadMessage marks a received message read and tells the sender. Reading an already read message
// succeeds without a broadcast.
func (d *Dispatcher) ReadMessage(ctx context.Context, s Session, messageID uint64) error {
	if messageID == 0 {
		return validation("missing message_id")
	}
	m, err := d.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return internal("get message", err)
	}
	if m.RecipientID != s.UserID {
		return ErrUnauthorized
	}
	if m.Read {
		return nil
	}

	now := d.now()
	changed, err := d.store.MarkRead(ctx, messageID, now)
	if err != nil {
		return internal("mark read", err)
	}
	if changed {
		d.emitTo(m.SenderID, Event{Type: EventMessageRead, Data: MessageRead{MessageID: messageID, ReadAt: now}})
	}
	return nil
}

func (d *Dispatcher) OnlineStatus(ctx context.Context, s Session, userIDs []uint64) (map[uint64]bool, error) {
	if len(userIDs) == 0 {
		return nil, validation("missing user_ids")
	}
	return d.presence.Statuses(userIDs), nil
}
