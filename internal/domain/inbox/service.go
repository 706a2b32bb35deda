package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/ws"
)

type Service struct {
	repo      Repository
	publisher ws.Publisher
	logger    zerolog.Logger

	now func() time.Time
}

func NewService(repo Repository, publisher ws.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With().Str("component", "inbox").Logger(),
		now:       time.Now,
	}
}

// Push records an in-app notification and announces it on the user's
// websocket topic. Domain services call this through their notifier
// interfaces.
func (s *Service) Push(ctx context.Context, userID uuid.UUID, kind, title, body string) error {
	if userID == uuid.Nil {
		return fmt.Errorf("user_id is required")
	}
	if kind == "" || title == "" {
		return fmt.Errorf("kind and title are required")
	}
	n := &Notification{UserID: userID, Kind: kind, Title: title, Body: body}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, ws.NewEvent("inbox.new", ws.UserTopic(userID), map[string]string{
			"notification_id": n.ID.String(),
			"kind":            kind,
			"title":           title,
		}))
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByUser(ctx, userID, unreadOnly, limit, offset)
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkRead marks one notification read. Only the owner may touch it.
func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) (*Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("notification not found")
	}
	if n.UserID != userID {
		return nil, fmt.Errorf("notification not found")
	}
	if n.Read {
		return n, nil
	}
	now := s.now().UTC()
	n.Read = true
	n.ReadAt = &now
	if err := s.repo.Update(ctx, n); err != nil {
		return nil, fmt.Errorf("update notification: %w", err)
	}
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("notification not found")
	}
	if n.UserID != userID {
		return fmt.Errorf("notification not found")
	}
	return s.repo.Delete(ctx, id)
}
