package service

import (
	"context"
	"fmt"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/domain/entity"
)

// InboxService reads and acknowledges a user's notifications
type InboxService interface {
	ListNotifications(ctx context.Context, userID string, isRead *bool, page, limit int) (*entity.NotificationPage, error)
	MarkAsRead(ctx context.Context, userID, notificationID string) error
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
}

type inboxServiceImpl struct {
	notificationRepo port.NotificationRepository
	logger           Logger
}

// NewInboxService creates a new InboxService
func NewInboxService(notificationRepo port.NotificationRepository, logger Logger) InboxService {
	return &inboxServiceImpl{notificationRepo: notificationRepo, logger: logger}
}

func (s *inboxServiceImpl) ListNotifications(ctx context.Context, userID string, isRead *bool, page, limit int) (*entity.NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	items, total, err := s.notificationRepo.ListByUser(ctx, userID, isRead, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	if items == nil {
		items = []*entity.Notification{}
	}

	return &entity.NotificationPage{Total: total, Notifications: items, Page: page, Limit: limit}, nil
}

// MarkAsRead returns ErrNotFound when the notification does not belong to the user
func (s *inboxServiceImpl) MarkAsRead(ctx context.Context, userID, notificationID string) error {
	ok, err := s.notificationRepo.MarkAsRead(ctx, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: notification %s", entity.ErrNotFound, notificationID)
	}
	return nil
}

func (s *inboxServiceImpl) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.notificationRepo.MarkAllAsRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	s.logger.Info("Notifications marked as read", "user_id", userID, "count", n)
	return n, nil
}
