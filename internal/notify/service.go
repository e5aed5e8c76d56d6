// Package notify queues and resolves notices for messages sent to offline users.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/suPer8Hu/presence-hub/internal/chat"
	"github.com/suPer8Hu/presence-hub/internal/common"
	"gorm.io/gorm"
)

// Publisher puts a notice id on the queue.
type Publisher interface {
	PublishNotice(ctx context.Context, noticeID string) error
}

// Deliverer hands a resolved notice to the outside world (push, mail, ...).
type Deliverer interface {
	Deliver(ctx context.Context, n *chat.Notification, m *chat.Message) error
}

// LogDeliverer only records the notice.
type LogDeliverer struct {
	Log *slog.Logger
}

func (d LogDeliverer) Deliver(ctx context.Context, n *chat.Notification, m *chat.Message) error {
	d.Log.Info("offline notice", "notice_id", n.ID, "user_id", n.UserID, "sender_id", n.SenderID, "message_id", m.ID)
	return nil
}

type Service struct {
	repo      *chat.Repo
	publisher Publisher
	deliverer Deliverer
	log       *slog.Logger
}

func NewService(repo *chat.Repo, pub Publisher, deliverer Deliverer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if deliverer == nil {
		deliverer = LogDeliverer{Log: logger}
	}
	return &Service{repo: repo, publisher: pub, deliverer: deliverer, log: logger}
}

// NotifyOffline records a queued notice for m and publishes it. A message gets at most one
// notice; repeated calls do not publish again.
func (s *Service) NotifyOffline(ctx context.Context, m *chat.Message) error {
	id, err := common.NewULID()
	if err != nil {
		return err
	}

	n, created, err := s.repo.CreateNotificationOrGetExisting(ctx, &chat.Notification{
		ID:        id,
		UserID:    m.RecipientID,
		SenderID:  m.SenderID,
		MessageID: m.ID,
		Status:    chat.NoticeQueued,
	})
	if err != nil {
		return fmt.Errorf("create notice: %w", err)
	}
	if !created {
		return nil
	}

	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.PublishNotice(ctx, n.ID); err != nil {
		msg := "enqueue failed: " + err.Error()
		_, _ = s.repo.ResolveNotification(ctx, n.ID, chat.NoticeFailed, &msg)
		return fmt.Errorf("publish notice %s: %w", n.ID, err)
	}
	return nil
}

// Process resolves one queued notice. Redelivered or unknown notices are acknowledged without
// doing anything.
func (s *Service) Process(ctx context.Context, noticeID string) (chat.NoticeStatus, error) {
	n, err := s.repo.GetNotification(ctx, noticeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("notice not found", "notice_id", noticeID)
			return "", nil
		}
		return "", err
	}
	if n.Status != chat.NoticeQueued {
		return n.Status, nil
	}

	m, err := s.repo.GetMessage(ctx, n.MessageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			msg := "message gone"
			_, err := s.repo.ResolveNotification(ctx, n.ID, chat.NoticeSkipped, &msg)
			return chat.NoticeSkipped, err
		}
		return "", err
	}

	if m.Read {
		_, err := s.repo.ResolveNotification(ctx, n.ID, chat.NoticeSkipped, nil)
		return chat.NoticeSkipped, err
	}

	if err := s.deliverer.Deliver(ctx, n, m); err != nil {
		msg := err.Error()
		_, _ = s.repo.ResolveNotification(ctx, n.ID, chat.NoticeFailed, &msg)
		return chat.NoticeFailed, err
	}
	_, err = s.repo.ResolveNotification(ctx, n.ID, chat.NoticeNotified, nil)
	return chat.NoticeNotified, err
}
