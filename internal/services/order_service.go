package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"marketplace-service/internal/domain"
	rabbit "marketplace-service/internal/infra/rabbitmq"
	"marketplace-service/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// maxLineQuantity caps one product's quantity in an order, after merging repeated lines.
const maxLineQuantity = 10000

type OrderService struct {
	orders      repository.OrderRepository
	products    repository.ProductRepository
	notifier    *NotificationService
	publisher   rabbit.PublisherInterface
	shippingFee int64
	redisClient *redis.Client
}

func NewOrderService(
	orders repository.OrderRepository,
	products repository.ProductRepository,
	notifier *NotificationService,
	publisher rabbit.PublisherInterface,
	shippingFee int64,
) *OrderService {
	if publisher == nil {
		publisher = rabbit.Discard{}
	}
	return &OrderService{
		orders:      orders,
		products:    products,
		notifier:    notifier,
		publisher:   publisher,
		shippingFee: shippingFee,
	}
}

func (u *OrderService) SetRedisClient(client *redis.Client) {
	u.redisClient = client
}

type OrderLine struct {
	ProductID uint64 `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1,max=10000"`
}

type PlaceOrderInput struct {
	Items           []OrderLine `json:"items" binding:"required,min=1,dive"`
	ShippingAddress string      `json:"shippingAddress"`
	PaymentMethod   string      `json:"paymentMethod"`
}

// PlaceOrder prices the lines from the catalog, reserves stock and stores the order in one
// transaction.
func (u *OrderService) PlaceOrder(ctx context.Context, userID uint64, in PlaceOrderInput) (*domain.Order, error) {
	lines, err := mergeLines(in.Items)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	found, err := u.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]domain.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	order := &domain.Order{
		OrderNumber:     newOrderNumber(),
		UserID:          userID,
		ShippingFee:     u.shippingFee,
		Status:          domain.StatusPending,
		PaymentStatus:   domain.OrderPaymentPending,
		PaymentMethod:   in.PaymentMethod,
		ShippingAddress: in.ShippingAddress,
	}
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrProductNotFound, l.ProductID)
		}
		if p.Stock < int64(l.Quantity) {
			return nil, fmt.Errorf("%w: %s has %d left", ErrInsufficientStock, p.Name, p.Stock)
		}
		item := domain.OrderItem{
			ProductID: p.ID,
			SellerID:  p.SellerID,
			Name:      p.Name,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
		}
		order.Items = append(order.Items, item)
		order.Subtotal += item.LineTotal()
	}
	order.Total = order.Subtotal + order.ShippingFee

	if err := u.orders.Place(ctx, order); err != nil {
		if errors.Is(err, repository.ErrStockConflict) {
			return nil, ErrInsufficientStock
		}
		return nil, err
	}
	u.invalidateProducts(ctx, ids)

	u.notifyPlaced(context.WithoutCancel(ctx), order)
	u.publishOrderCreatedEvent(context.WithoutCancel(ctx), order)

	return order, nil
}

func mergeLines(in []OrderLine) ([]OrderLine, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrInvalidOrder)
	}
	index := make(map[uint64]int, len(in))
	out := make([]OrderLine, 0, len(in))
	for _, l := range in {
		if l.ProductID == 0 || l.Quantity < 1 || l.Quantity > maxLineQuantity {
			return nil, fmt.Errorf("%w: each item needs a product and a quantity between 1 and %d", ErrInvalidOrder, maxLineQuantity)
		}
		if i, ok := index[l.ProductID]; ok {
			// both operands are bounded, the sum cannot overflow
			if out[i].Quantity+l.Quantity > maxLineQuantity {
				return nil, fmt.Errorf("%w: product %d exceeds %d units", ErrInvalidOrder, l.ProductID, maxLineQuantity)
			}
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out, nil
}

func newOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), suffix)
}

func (u *OrderService) notifyPlaced(ctx context.Context, order *domain.Order) {
	related := order.ID
	if _, err := u.notifier.Notify(ctx, order.UserID, domain.NotificationOrderCreated,
		"Order placed",
		fmt.Sprintf("Your order %s for %d has been placed.", order.OrderNumber, order.Total),
		&related); err != nil {
		log.Printf("order %s: buyer notification failed: %v", order.OrderNumber, err)
	}

	drafts := make([]domain.Notification, 0, len(order.Items))
	for _, sellerID := range order.SellerIDs() {
		drafts = append(drafts, domain.Notification{
			UserID:    sellerID,
			Type:      domain.NotificationOrderCreated,
			Title:     "New order received",
			Message:   fmt.Sprintf("Order %s includes your products for %d.", order.OrderNumber, order.SellerSubtotal(sellerID)),
			RelatedID: &related,
		})
	}
	if _, err := u.notifier.NotifyMany(ctx, drafts); err != nil {
		log.Printf("order %s: seller notifications failed: %v", order.OrderNumber, err)
	}
}

func (u *OrderService) publishOrderCreatedEvent(ctx context.Context, order *domain.Order) {
	evt := domain.OrderCreatedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Total:       order.Total,
		CreatedAt:   order.CreatedAt,
	}

	if err := u.publisher.Publish(ctx, rabbit.KeyOrderCreated, evt); err != nil {
		log.Printf("Failed to publish event: %v", err)
	}
}

func (u *OrderService) ListForUser(ctx context.Context, userID uint64) ([]domain.Order, error) {
	out, err := u.orders.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Order{}
	}
	return out, nil
}

// ListForSeller returns orders holding the seller's products, each with only that seller's
// lines.
func (u *OrderService) ListForSeller(ctx context.Context, sellerID uint64) ([]domain.Order, error) {
	out, err := u.orders.FindBySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Order{}
	}
	return out, nil
}

func (u *OrderService) GetForUser(ctx context.Context, userID, orderID uint64) (*domain.Order, error) {
	o, err := u.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil || o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// Cancel is allowed while the order is PENDING and unpaid. Reserved stock is released.
func (u *OrderService) Cancel(ctx context.Context, userID, orderID uint64) (*domain.Order, error) {
	o, err := u.GetForUser(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.StatusPending || o.PaymentStatus == domain.OrderPaymentPaid {
		return nil, ErrInvalidTransition
	}

	ok, err := u.orders.Cancel(ctx, o)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	o.Status = domain.StatusCancelled

	ids := make([]uint64, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ProductID)
	}
	u.invalidateProducts(ctx, ids)

	related := o.ID
	drafts := make([]domain.Notification, 0, len(o.Items))
	for _, sellerID := range o.SellerIDs() {
		drafts = append(drafts, domain.Notification{
			UserID:    sellerID,
			Type:      domain.NotificationOrderUpdate,
			Title:     "Order cancelled",
			Message:   fmt.Sprintf("Order %s was cancelled by the buyer.", o.OrderNumber),
			RelatedID: &related,
		})
	}
	if _, err := u.notifier.NotifyMany(context.WithoutCancel(ctx), drafts); err != nil {
		log.Printf("order %s: cancel notifications failed: %v", o.OrderNumber, err)
	}
	return o, nil
}

// UpdateStatus lets a seller of the order move it forward along
// PROCESSING -> SHIPPED -> DELIVERED.
func (u *OrderService) UpdateStatus(ctx context.Context, sellerID, orderID uint64, next domain.OrderStatus) (*domain.Order, error) {
	o, err := u.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}

	sells := false
	for _, id := range o.SellerIDs() {
		if id == sellerID {
			sells = true
			break
		}
	}
	if !sells {
		return nil, ErrForbidden
	}
	if !o.Status.CanAdvance(next) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, o.Status, next)
	}

	ok, err := u.orders.UpdateStatusGuard(ctx, o.ID, o.Status, next)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	o.Status = next

	related := o.ID
	bg := context.WithoutCancel(ctx)
	if _, err := u.notifier.Notify(bg, o.UserID, domain.NotificationOrderUpdate,
		"Order update",
		fmt.Sprintf("Your order %s is now %s.", o.OrderNumber, strings.ToLower(string(next))),
		&related); err != nil {
		log.Printf("order %s: status notification failed: %v", o.OrderNumber, err)
	}
	u.notifier.Push(o.UserID, EventOrderStatusUpdate, map[string]any{
		"orderId":     o.ID,
		"orderNumber": o.OrderNumber,
		"status":      o.Status,
	})
	return o, nil
}

func (u *OrderService) invalidateProducts(ctx context.Context, ids []uint64) {
	invalidateProductCache(ctx, u.redisClient, ids)
}
