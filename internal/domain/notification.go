package domain

import "time"

type NotificationType string

const (
	NotificationOrderCreated   NotificationType = "ORDER_CREATED"
	NotificationOrderUpdate    NotificationType = "ORDER_UPDATE"
	NotificationPaymentSuccess NotificationType = "PAYMENT_SUCCESS"
	NotificationPaymentFailed  NotificationType = "PAYMENT_FAILED"
	NotificationProductSold    NotificationType = "PRODUCT_SOLD"
	NotificationAccountUpdate  NotificationType = "ACCOUNT_UPDATE"
	NotificationSystem         NotificationType = "SYSTEM"
	NotificationInfo           NotificationType = "INFO"
	NotificationWarning        NotificationType = "WARNING"
)

type Notification struct {
	ID        uint64           `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    uint64           `json:"userId" gorm:"not null;index:idx_notifications_user_read"`
	Type      NotificationType `json:"type" gorm:"type:varchar(32);not null"`
	Title     string           `json:"title" gorm:"size:255;not null"`
	Message   string           `json:"message" gorm:"type:text;not null"`
	RelatedID *uint64          `json:"relatedId,omitempty"`
	IsRead    bool             `json:"isRead" gorm:"not null;default:false;index:idx_notifications_user_read"`
	CreatedAt time.Time        `json:"createdAt" gorm:"autoCreateTime;index"`
}
