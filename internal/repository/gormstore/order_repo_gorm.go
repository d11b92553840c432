package gormstore

import (
	"context"
	"errors"
	"log"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/repository"

	"gorm.io/gorm"
)

type orderRepo struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) repository.OrderRepository {
	return &orderRepo{db: db}
}

// Place decrements stock for every line and inserts the order with its items in one
// transaction. A line whose product lacks stock aborts the whole order.
func (r *orderRepo) Place(ctx context.Context, order *domain.Order) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, it := range order.Items {
			res := tx.Model(&domain.Product{}).
				Where("id = ? AND stock >= ?", it.ProductID, it.Quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", it.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return repository.ErrStockConflict
			}
		}
		return tx.Create(order).Error
	})
	if err != nil {
		if !errors.Is(err, repository.ErrStockConflict) {
			log.Printf("Place order error: %v", err)
		}
		return err
	}

	if order.ID == 0 {
		return errors.New("failed to assign order ID")
	}
	log.Printf("Order %s saved with ID: %d", order.OrderNumber, order.ID)
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, id uint64) (*domain.Order, error) {
	var o domain.Order
	if err := r.db.WithContext(ctx).Preload("Items").First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		log.Printf("FindByID error: %v", err)
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) FindByUser(ctx context.Context, userID uint64) ([]domain.Order, error) {
	var out []domain.Order
	if err := r.db.WithContext(ctx).Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		log.Printf("FindByUser error: %v", err)
		return nil, err
	}
	return out, nil
}

// FindBySeller returns orders holding at least one item of the seller, with only that
// seller's items loaded.
func (r *orderRepo) FindBySeller(ctx context.Context, sellerID uint64) ([]domain.Order, error) {
	var out []domain.Order
	err := r.db.WithContext(ctx).
		Preload("Items", "seller_id = ?", sellerID).
		Where("id IN (?)", r.db.Model(&domain.OrderItem{}).Select("order_id").Where("seller_id = ?", sellerID)).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		log.Printf("FindBySeller error: %v", err)
		return nil, err
	}
	return out, nil
}

func (r *orderRepo) SetTransactionID(ctx context.Context, orderID uint64, transactionID string) error {
	return r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ?", orderID).
		Update("transaction_id", transactionID).Error
}

func (r *orderRepo) UpdateStatusGuard(ctx context.Context, orderID uint64, from, to domain.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Cancel flips a PENDING, unpaid order to CANCELLED and puts its stock back.
func (r *orderRepo) Cancel(ctx context.Context, order *domain.Order) (bool, error) {
	cancelled := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Order{}).
			Where("id = ? AND status = ? AND payment_status <> ?", order.ID, domain.StatusPending, domain.OrderPaymentPaid).
			Update("status", domain.StatusCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		for _, it := range order.Items {
			if err := tx.Model(&domain.Product{}).
				Where("id = ?", it.ProductID).
				UpdateColumn("stock", gorm.Expr("stock + ?", it.Quantity)).Error; err != nil {
				return err
			}
		}
		cancelled = true
		return nil
	})
	if err != nil {
		log.Printf("Cancel order %d error: %v", order.ID, err)
		return false, err
	}
	return cancelled, nil
}

type productRepo struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) repository.ProductRepository {
	return &productRepo{db: db}
}

func (r *productRepo) Create(ctx context.Context, p *domain.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *productRepo) FindByID(ctx context.Context, id uint64) (*domain.Product, error) {
	var p domain.Product
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *productRepo) FindByIDs(ctx context.Context, ids []uint64) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []domain.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		log.Printf("FindByIDs error: %v", err)
		return nil, err
	}
	return out, nil
}

func (r *productRepo) FindBySeller(ctx context.Context, sellerID uint64) ([]domain.Product, error) {
	var out []domain.Product
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	if err != nil {
		log.Printf("FindBySeller products error: %v", err)
		return nil, err
	}
	return out, nil
}

// Update writes the editable columns only; seller and timestamps of creation are kept.
func (r *productRepo) Update(ctx context.Context, p *domain.Product) error {
	return r.db.WithContext(ctx).Model(p).
		Select("name", "description", "category", "price", "stock").
		Updates(p).Error
}

func (r *productRepo) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&domain.Product{}, id).Error
}
