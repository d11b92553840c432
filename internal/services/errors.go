package services

import "errors"

// Webhook outcomes. ErrUnknownTransaction and ErrAlreadyTerminal are acknowledged to the
// gateway with 200 so it stops retrying.
var (
	ErrMalformedPayload   = errors.New("malformed payment notification")
	ErrSignatureInvalid   = errors.New("invalid payment notification signature")
	ErrUnknownTransaction = errors.New("unknown transaction")
	ErrAlreadyTerminal    = errors.New("payment already settled")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderNotPayable      = errors.New("order is not awaiting payment")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrInvalidOrder         = errors.New("invalid order")
	ErrInvalidProduct       = errors.New("invalid product")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrNotApproved          = errors.New("account not approved")
)
