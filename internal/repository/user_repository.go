package repository

import (
	"context"

	"marketplace-service/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	FindByID(ctx context.Context, id uint64) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByStatus(ctx context.Context, status domain.UserStatus) ([]domain.User, error)
	UpdateStatusGuard(ctx context.Context, id uint64, from, to domain.UserStatus) (bool, error)
}
