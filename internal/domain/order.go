package domain

import "time"

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

type OrderPaymentStatus string

const (
	OrderPaymentPending OrderPaymentStatus = "PENDING"
	OrderPaymentPaid    OrderPaymentStatus = "PAID"
	OrderPaymentFailed  OrderPaymentStatus = "FAILED"
)

// Order amounts are in the smallest currency unit. Total is always Subtotal + ShippingFee.
type Order struct {
	ID              uint64             `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderNumber     string             `json:"orderNumber" gorm:"size:64;not null;uniqueIndex"`
	UserID          uint64             `json:"userId" gorm:"not null;index"`
	Items           []OrderItem        `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Subtotal        int64              `json:"subtotal" gorm:"not null"`
	ShippingFee     int64              `json:"shippingFee" gorm:"not null;default:0"`
	Total           int64              `json:"total" gorm:"not null"`
	Status          OrderStatus        `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index"`
	PaymentStatus   OrderPaymentStatus `json:"paymentStatus" gorm:"type:varchar(20);not null;default:'PENDING'"`
	PaymentMethod   string             `json:"paymentMethod" gorm:"size:32"`
	ShippingAddress string             `json:"shippingAddress" gorm:"type:text"`
	TransactionID   *string            `json:"transactionId,omitempty" gorm:"size:64;index"`
	CreatedAt       time.Time          `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt       time.Time          `json:"updatedAt" gorm:"autoUpdateTime"`
}

type OrderItem struct {
	ID        uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID   uint64 `json:"orderId" gorm:"not null;index"`
	ProductID uint64 `json:"productId" gorm:"not null;index"`
	SellerID  uint64 `json:"sellerId" gorm:"not null;index"`
	Name      string `json:"name" gorm:"size:255"`
	Quantity  int    `json:"quantity" gorm:"not null"`
	UnitPrice int64  `json:"unitPrice" gorm:"not null"`
}

func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// SellerIDs returns the distinct sellers represented in the order, in item order.
func (o *Order) SellerIDs() []uint64 {
	seen := make(map[uint64]struct{}, len(o.Items))
	out := make([]uint64, 0, len(o.Items))
	for _, it := range o.Items {
		if _, ok := seen[it.SellerID]; ok {
			continue
		}
		seen[it.SellerID] = struct{}{}
		out = append(out, it.SellerID)
	}
	return out
}

// SellerSubtotal sums the lines belonging to one seller.
func (o *Order) SellerSubtotal(sellerID uint64) int64 {
	var sum int64
	for _, it := range o.Items {
		if it.SellerID == sellerID {
			sum += it.LineTotal()
		}
	}
	return sum
}

// CanAdvance reports whether a seller may move the order from s to next.
func (s OrderStatus) CanAdvance(next OrderStatus) bool {
	switch s {
	case StatusProcessing:
		return next == StatusShipped
	case StatusShipped:
		return next == StatusDelivered
	}
	return false
}
