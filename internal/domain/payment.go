package domain

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

type Payment struct {
	ID            uint64        `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID       uint64        `json:"orderId" gorm:"not null;index"`
	TransactionID string        `json:"transactionId" gorm:"size:64;not null;uniqueIndex"`
	Amount        int64         `json:"amount" gorm:"not null"`
	Currency      string        `json:"currency" gorm:"size:8;not null"`
	Provider      string        `json:"provider" gorm:"size:32;not null"`
	Status        PaymentStatus `json:"status" gorm:"type:varchar(20);not null;default:'PENDING'"`
	PaymentURL    string        `json:"paymentUrl,omitempty" gorm:"size:512"`
	PaymentToken  string        `json:"-" gorm:"size:512"`
	Metadata      string        `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt     time.Time     `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt     time.Time     `json:"updatedAt" gorm:"autoUpdateTime"`
}

// Outcome is the result the reconciler applies to a pending payment.
type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeFailure
)

func (o Outcome) PaymentStatus() PaymentStatus {
	if o == OutcomeSuccess {
		return PaymentCompleted
	}
	return PaymentFailed
}
