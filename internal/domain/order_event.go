package domain

import "time"

type OrderCreatedEvent struct {
	OrderID     uint64    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      uint64    `json:"userId"`
	Total       int64     `json:"total"`
	CreatedAt   time.Time `json:"createdAt"`
}

type PaymentSettledEvent struct {
	OrderID       uint64        `json:"orderId"`
	OrderNumber   string        `json:"orderNumber,omitempty"`
	TransactionID string        `json:"transactionId"`
	Amount        int64         `json:"amount"`
	Currency      string        `json:"currency"`
	Status        PaymentStatus `json:"status"`
	SettledAt     time.Time     `json:"settledAt"`
}
