package repository

import (
	"context"
	"errors"

	"marketplace-service/internal/domain"
)

var (
	ErrStockConflict = errors.New("insufficient stock")
	ErrOrderMissing  = errors.New("order referenced by payment does not exist")
)

// Finders return (nil, nil) when the row does not exist.
type OrderRepository interface {
	Place(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uint64) (*domain.Order, error)
	FindByUser(ctx context.Context, userID uint64) ([]domain.Order, error)
	FindBySeller(ctx context.Context, sellerID uint64) ([]domain.Order, error)
	SetTransactionID(ctx context.Context, orderID uint64, transactionID string) error
	UpdateStatusGuard(ctx context.Context, orderID uint64, from, to domain.OrderStatus) (bool, error)
	Cancel(ctx context.Context, order *domain.Order) (bool, error)
}

type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	FindByID(ctx context.Context, id uint64) (*domain.Product, error)
	FindByIDs(ctx context.Context, ids []uint64) ([]domain.Product, error)
	FindBySeller(ctx context.Context, sellerID uint64) ([]domain.Product, error)
	Update(ctx context.Context, p *domain.Product) error
	Delete(ctx context.Context, id uint64) error
}
