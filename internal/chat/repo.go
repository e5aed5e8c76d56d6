package chat

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/suPer8Hu/presence-hub/internal/models"
	"gorm.io/gorm"
)

// ErrClientIDConflict is returned when a sender reuses a client_message_id for the same recipient
// with different content.
var ErrClientIDConflict = errors.New("client_message_id already used for another message")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// AutoMigrate creates the tables the real-time layer reads and writes.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{}, &models.Friendship{}, &Message{}, &Notification{})
}

// Users

func (r *Repo) CreateUser(ctx context.Context, u *models.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repo) GetUser(ctx context.Context, id uint64) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByLogin matches either the username or the email.
func (r *Repo) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).
		Where("username = ? OR email = ?", login, login).
		First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) CountUsername(ctx context.Context, username string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&cnt).Error
	return cnt, err
}

// SetPresence writes is_online/last_seen. A write older than the stored last_seen is ignored so
// that a late offline cannot overwrite a newer online.
func (r *Repo) SetPresence(ctx context.Context, userID uint64, online bool, at time.Time) error {
	at = at.UTC()
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND (last_seen IS NULL OR last_seen <= ?)", userID, at).
		Updates(map[string]any{
			"is_online": online,
			"last_seen": at,
		}).Error
}

// Friends

func (r *Repo) AddFriendship(ctx context.Context, a, b uint64) error {
	if a > b {
		a, b = b, a
	}
	return r.db.WithContext(ctx).Create(&models.Friendship{UserID: a, FriendID: b}).Error
}

// FriendIDs returns the ids of everyone userID is friends with, in either direction, ascending.
func (r *Repo) FriendIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	var fwd, back []uint64
	if err := r.db.WithContext(ctx).Model(&models.Friendship{}).
		Where("user_id = ?", userID).
		Pluck("friend_id", &fwd).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&models.Friendship{}).
		Where("friend_id = ?", userID).
		Pluck("user_id", &back).Error; err != nil {
		return nil, err
	}

	seen := make(map[uint64]struct{}, len(fwd)+len(back))
	out := make([]uint64, 0, len(fwd)+len(back))
	for _, id := range append(fwd, back...) {
		if id == userID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Messages

func (r *Repo) GetMessage(ctx context.Context, id uint64) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) GetMessageByClientID(ctx context.Context, senderID, recipientID uint64, clientID string) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).
		Where("sender_id = ? AND recipient_id = ? AND client_message_id = ?", senderID, recipientID, clientID).
		First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// RecentSent returns the newest messages sent by userID (newest -> oldest).
func (r *Repo) RecentSent(ctx context.Context, userID uint64, limit int) ([]Message, error) {
	return r.recent(ctx, "sender_id = ?", userID, limit)
}

// RecentReceived returns the newest messages received by userID (newest -> oldest).
func (r *Repo) RecentReceived(ctx context.Context, userID uint64, limit int) ([]Message, error) {
	return r.recent(ctx, "recipient_id = ?", userID, limit)
}

func (r *Repo) recent(ctx context.Context, cond string, userID uint64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where(cond, userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// SaveMessage inserts m and, when deliveredAt is set, commits the delivered transition in the same
// transaction. m itself keeps delivered=false so it describes the row as first written.
//
// If m carries a client_message_id the sender already used for the same recipient and content, the
// stored message is returned with created=false and nothing is written. The same token with other
// content is ErrClientIDConflict.
func (r *Repo) SaveMessage(ctx context.Context, m *Message, deliveredAt *time.Time) (*Message, bool, error) {
	if m.ClientMessageID != nil && *m.ClientMessageID == "" {
		m.ClientMessageID = nil
	}

	var existing *Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if m.ClientMessageID != nil {
			var prev Message
			err := tx.Where("sender_id = ? AND recipient_id = ? AND client_message_id = ?",
				m.SenderID, m.RecipientID, *m.ClientMessageID).
				First(&prev).Error
			if err == nil {
				if prev.Content != m.Content {
					return ErrClientIDConflict
				}
				existing = &prev
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		if err := tx.Create(m).Error; err != nil {
			return err
		}
		if deliveredAt != nil {
			return tx.Model(&Message{}).
				Where("id = ?", m.ID).
				Updates(map[string]any{
					"is_delivered": true,
					"delivered_at": deliveredAt.UTC(),
				}).Error
		}
		return nil
	})
	if err == nil {
		if existing != nil {
			return existing, false, nil
		}
		return m, true, nil
	}

	// lost a race on the unique (sender_id, recipient_id, client_message_id) index
	if m.ClientMessageID == nil || errors.Is(err, ErrClientIDConflict) {
		return nil, false, err
	}
	prev, getErr := r.GetMessageByClientID(ctx, m.SenderID, m.RecipientID, *m.ClientMessageID)
	if getErr == nil {
		if prev.Content != m.Content {
			return nil, false, ErrClientIDConflict
		}
		return prev, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

// MarkRead flips read=false -> true. It reports whether this call made the transition.
func (r *Repo) MarkRead(ctx context.Context, id uint64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ? AND is_read = ?", id, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Notifications

// CreateNotificationOrGetExisting creates n unless a notice for the same message already exists,
// in which case the existing one is returned.
func (r *Repo) CreateNotificationOrGetExisting(ctx context.Context, n *Notification) (*Notification, bool, error) {
	err := r.db.WithContext(ctx).Create(n).Error
	if err == nil {
		return n, true, nil
	}

	var existing Notification
	getErr := r.db.WithContext(ctx).Where("message_id = ?", n.MessageID).First(&existing).Error
	if getErr == nil {
		return &existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

func (r *Repo) GetNotification(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	if err := r.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// ResolveNotification moves a queued notice to its final status. It reports false when the notice
// was already resolved, which happens on queue redelivery.
func (r *Repo) ResolveNotification(ctx context.Context, id string, status NoticeStatus, errMsg *string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND status = ?", id, NoticeQueued).
		Updates(map[string]any{
			"status": status,
			"error":  errMsg,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
