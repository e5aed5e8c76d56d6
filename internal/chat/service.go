package chat

import (
	"context"
	"sort"
	"time"

	"github.com/suPer8Hu/presence-hub/internal/models"
)

// Service is the storage collaborator of the real-time layer.
type Service struct {
	repo *Repo
}

func NewService(repo *Repo) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetUser(ctx context.Context, id uint64) (*models.User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *Service) FriendIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	return s.repo.FriendIDs(ctx, userID)
}

func (s *Service) SetPresence(ctx context.Context, userID uint64, online bool, at time.Time) error {
	return s.repo.SetPresence(ctx, userID, online, at)
}

// RecentPartners returns the users userID most recently exchanged messages with. It looks at the
// newest `limit` sent and newest `limit` received messages, merges them newest first and keeps the
// first occurrence of each partner.
func (s *Service) RecentPartners(ctx context.Context, userID uint64, limit int) ([]uint64, error) {
	sent, err := s.repo.RecentSent(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	received, err := s.repo.RecentReceived(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	all := append(sent, received...)
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	seen := make(map[uint64]struct{}, len(all))
	partners := make([]uint64, 0, len(all))
	for i := range all {
		p := all[i].Partner(userID)
		if p == userID {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		partners = append(partners, p)
	}
	return partners, nil
}

func (s *Service) GetMessage(ctx context.Context, id uint64) (*Message, error) {
	return s.repo.GetMessage(ctx, id)
}

func (s *Service) SaveMessage(ctx context.Context, m *Message, deliveredAt *time.Time) (*Message, bool, error) {
	return s.repo.SaveMessage(ctx, m, deliveredAt)
}

func (s *Service) MarkRead(ctx context.Context, id uint64, at time.Time) (bool, error) {
	return s.repo.MarkRead(ctx, id, at)
}
