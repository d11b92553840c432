package repository

import (
	"context"

	"marketplace-service/internal/domain"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	FindByID(ctx context.Context, id uint64) (*domain.Notification, error)
	ListByUser(ctx context.Context, userID uint64, offset, limit int) ([]domain.Notification, int64, error)
	CountUnread(ctx context.Context, userID uint64) (int64, error)
	MarkRead(ctx context.Context, id uint64) error
	MarkAllRead(ctx context.Context, userID uint64) (int64, error)
	Delete(ctx context.Context, id uint64) error
}
