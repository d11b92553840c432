package repository

import (
	"context"

	"marketplace-service/internal/domain"
)

type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	FindByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error)
	// FindForUser lists payments of orders owned by userID; userID 0 lists every payment.
	FindForUser(ctx context.Context, userID uint64, orderID *uint64) ([]domain.Payment, error)
	// UpdateCheckout stores the checkout of a payment that is still PENDING and reports
	// whether it was.
	UpdateCheckout(ctx context.Context, id uint64, paymentURL, token string) (bool, error)
	// Settle moves a PENDING payment to the outcome's terminal status. On success the owning
	// order becomes PAID in the same transaction, and PROCESSING if it was still PENDING.
	// It reports false when the payment was no longer PENDING.
	Settle(ctx context.Context, transactionID string, outcome domain.Outcome, metadata string) (bool, error)
}
