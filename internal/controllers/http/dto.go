package http

import "marketplace-service/internal/domain"

type InitializePaymentRequest struct {
	OrderID uint64 `json:"orderId" binding:"required"`
}

type UpdateOrderStatusRequest struct {
	Status domain.OrderStatus `json:"status" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ApprovalRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

type CreateOrderResponse struct {
	ID          uint64 `json:"id"`
	OrderNumber string `json:"orderNumber"`
	Total       int64  `json:"total"`
}
