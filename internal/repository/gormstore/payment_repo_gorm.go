package gormstore

import (
	"context"
	"errors"
	"log"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/repository"

	"gorm.io/gorm"
)

type paymentRepo struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) repository.PaymentRepository {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		log.Printf("Payment save error: %v", err)
		return err
	}
	return nil
}

func (r *paymentRepo) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	var p domain.Payment
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		log.Printf("FindByTransactionID error: %v", err)
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) FindForUser(ctx context.Context, userID uint64, orderID *uint64) ([]domain.Payment, error) {
	q := r.db.WithContext(ctx).Model(&domain.Payment{})
	if userID != 0 {
		q = q.Where("order_id IN (?)", r.db.Model(&domain.Order{}).Select("id").Where("user_id = ?", userID))
	}
	if orderID != nil {
		q = q.Where("order_id = ?", *orderID)
	}

	var out []domain.Payment
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		log.Printf("FindForUser error: %v", err)
		return nil, err
	}
	return out, nil
}

func (r *paymentRepo) UpdateCheckout(ctx context.Context, id uint64, paymentURL, token string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Payment{}).
		Where("id = ? AND status = ?", id, domain.PaymentPending).
		Updates(map[string]any{"payment_url": paymentURL, "payment_token": token})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Settle is the compare-and-swap behind webhook idempotence: only the caller whose
// conditional update hits a PENDING row proceeds, every concurrent duplicate sees zero
// affected rows.
func (r *paymentRepo) Settle(ctx context.Context, transactionID string, outcome domain.Outcome, metadata string) (bool, error) {
	settled := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"status": outcome.PaymentStatus()}
		if metadata != "" {
			updates["metadata"] = metadata
		}
		res := tx.Model(&domain.Payment{}).
			Where("transaction_id = ? AND status = ?", transactionID, domain.PaymentPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if outcome == domain.OutcomeSuccess {
			var p domain.Payment
			if err := tx.Select("id", "order_id").Where("transaction_id = ?", transactionID).First(&p).Error; err != nil {
				return err
			}
			var o domain.Order
			if err := tx.Select("id").First(&o, p.OrderID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return repository.ErrOrderMissing
				}
				return err
			}

			if err := tx.Model(&domain.Order{}).Where("id = ?", o.ID).
				Update("payment_status", domain.OrderPaymentPaid).Error; err != nil {
				return err
			}
			// A CANCELLED order keeps its status; the caller handles the refund.
			if err := tx.Model(&domain.Order{}).
				Where("id = ? AND status = ?", o.ID, domain.StatusPending).
				Update("status", domain.StatusProcessing).Error; err != nil {
				return err
			}
		}

		settled = true
		return nil
	})
	if err != nil {
		log.Printf("Settle %s error: %v", transactionID, err)
		return false, err
	}
	return settled, nil
}
