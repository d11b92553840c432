package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/infra/gateway"
	rabbit "marketplace-service/internal/infra/rabbitmq"
	"marketplace-service/internal/repository"

	"github.com/shopspring/decimal"
)

const providerCinetPay = "cinetpay"

// PaymentService reconciles payments with the gateway. Settlement goes through a single
// conditional update so that concurrent deliveries for one transaction apply exactly once.
type PaymentService struct {
	payments  repository.PaymentRepository
	orders    repository.OrderRepository
	users     repository.UserRepository
	gw        gateway.Gateway
	notifier  *NotificationService
	publisher rabbit.PublisherInterface
	currency  string

	newTransactionID func() string
}

func NewPaymentService(
	payments repository.PaymentRepository,
	orders repository.OrderRepository,
	users repository.UserRepository,
	gw gateway.Gateway,
	notifier *NotificationService,
	publisher rabbit.PublisherInterface,
	currency string,
) *PaymentService {
	if publisher == nil {
		publisher = rabbit.Discard{}
	}
	return &PaymentService{
		payments:         payments,
		orders:           orders,
		users:            users,
		gw:               gw,
		notifier:         notifier,
		publisher:        publisher,
		currency:         currency,
		newTransactionID: gateway.NewTransactionID,
	}
}

type WebhookResult struct {
	TransactionID string               `json:"transactionId"`
	Status        domain.PaymentStatus `json:"status"`
}

type PaymentStatusView struct {
	Payment       *domain.Payment `json:"payment"`
	GatewayStatus gateway.Status  `json:"gatewayStatus,omitempty"`
}

type CheckoutView struct {
	PaymentID     uint64 `json:"paymentId"`
	TransactionID string `json:"transactionId"`
	PaymentURL    string `json:"paymentUrl"`
	PaymentToken  string `json:"paymentToken"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

// HandleWebhook applies a gateway notification. The payload is only trusted once its
// signature and site id check out.
func (s *PaymentService) HandleWebhook(ctx context.Context, p gateway.WebhookPayload) (*WebhookResult, error) {
	if strings.TrimSpace(p.TransID) == "" || p.SiteID == "" || p.Result == "" {
		return nil, ErrMalformedPayload
	}

	if !s.gw.VerifySignature(p) || p.SiteID != s.gw.SiteID() {
		log.Printf("webhook: rejected notification for %s: signature or site id mismatch", p.TransID)
		return nil, ErrSignatureInvalid
	}

	payment, err := s.payments.FindByTransactionID(ctx, p.TransID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if payment == nil {
		log.Printf("webhook: orphan notification for unknown transaction %s", p.TransID)
		return nil, ErrUnknownTransaction
	}
	if payment.Status.Terminal() {
		log.Printf("webhook: duplicate notification for %s, payment already %s", p.TransID, payment.Status)
		return nil, ErrAlreadyTerminal
	}

	outcome := domain.OutcomeFailure
	if p.Result == gateway.ResultSuccess {
		if amountMatches(p.Amount, payment.Amount) {
			outcome = domain.OutcomeSuccess
		} else {
			log.Printf("webhook: amount mismatch for %s: notified %q, expected %d", p.TransID, p.Amount, payment.Amount)
		}
	}

	if err := s.settle(ctx, payment, outcome, webhookMetadata(p)); err != nil {
		return nil, err
	}
	return &WebhookResult{TransactionID: payment.TransactionID, Status: outcome.PaymentStatus()}, nil
}

// CheckStatus asks the gateway for the state of a transaction and applies an ACCEPTED or
// REFUSED answer through the same transition as the webhook.
func (s *PaymentService) CheckStatus(ctx context.Context, userID uint64, role domain.Role, transactionID string) (*PaymentStatusView, error) {
	payment, err := s.payments.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}

	if role != domain.RoleAdmin {
		order, err := s.orders.FindByID(ctx, payment.OrderID)
		if err != nil {
			return nil, err
		}
		if order == nil || order.UserID != userID {
			return nil, ErrForbidden
		}
	}

	if payment.Status.Terminal() {
		return &PaymentStatusView{Payment: payment}, nil
	}

	res, err := s.gw.CheckStatus(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	var outcome domain.Outcome
	switch res.Status {
	case gateway.StatusAccepted:
		outcome = domain.OutcomeSuccess
		if !res.Amount.IsZero() && !res.Amount.Equal(decimal.NewFromInt(payment.Amount)) {
			log.Printf("payment %s: gateway amount %s differs from %d", transactionID, res.Amount, payment.Amount)
			outcome = domain.OutcomeFailure
		}
	case gateway.StatusRefused:
		outcome = domain.OutcomeFailure
	default:
		return &PaymentStatusView{Payment: payment, GatewayStatus: res.Status}, nil
	}

	meta, _ := json.Marshal(map[string]any{
		"source":         "status-check",
		"gateway_status": res.Status,
		"payment_method": res.PaymentMethod,
		"payment_date":   res.PaymentDate,
	})
	if err := s.settle(ctx, payment, outcome, string(meta)); err != nil && !errors.Is(err, ErrAlreadyTerminal) {
		return nil, err
	}

	fresh, err := s.payments.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if fresh != nil {
		payment = fresh
	}
	return &PaymentStatusView{Payment: payment, GatewayStatus: res.Status}, nil
}

// Initiate opens a checkout for a pending order. The payment row exists before the gateway
// is called, so a notification can never arrive for a transaction the store does not know.
func (s *PaymentService) Initiate(ctx context.Context, userID, orderID uint64) (*CheckoutView, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != userID {
		return nil, ErrForbidden
	}
	if order.Status != domain.StatusPending || order.PaymentStatus != domain.OrderPaymentPending {
		return nil, ErrOrderNotPayable
	}
	if order.TransactionID != nil {
		view, err := s.reuseCheckout(ctx, order)
		if err != nil || view != nil {
			return view, err
		}
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	payment := &domain.Payment{
		OrderID:       order.ID,
		TransactionID: s.newTransactionID(),
		Amount:        order.Total,
		Currency:      s.currency,
		Provider:      providerCinetPay,
		Status:        domain.PaymentPending,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	if err := s.orders.SetTransactionID(ctx, order.ID, payment.TransactionID); err != nil {
		return nil, err
	}

	res, err := s.gw.Initiate(ctx, gateway.InitiateRequest{
		TransactionID: payment.TransactionID,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Description:   "Order " + order.OrderNumber,
		Customer: gateway.Customer{
			ID:      fmt.Sprint(user.ID),
			Name:    user.FirstName,
			Surname: user.LastName,
			Email:   user.Email,
			Phone:   user.Phone,
			Address: order.ShippingAddress,
		},
		Metadata: map[string]any{"orderId": order.ID, "orderNumber": order.OrderNumber},
	})
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayRejected) {
			// The gateway will never notify a transaction it refused to open.
			if _, serr := s.payments.Settle(ctx, payment.TransactionID, domain.OutcomeFailure, ""); serr != nil {
				log.Printf("payment %s: could not mark rejected checkout failed: %v", payment.TransactionID, serr)
			}
		}
		log.Printf("payment %s: initiate failed: %v", payment.TransactionID, err)
		return nil, err
	}

	opened, err := s.payments.UpdateCheckout(ctx, payment.ID, res.PaymentURL, res.PaymentToken)
	if err != nil {
		return nil, err
	}
	if !opened {
		// settled or superseded while the gateway call was in flight
		log.Printf("payment %s: no longer pending, checkout not handed out", payment.TransactionID)
		return nil, ErrOrderNotPayable
	}

	return &CheckoutView{
		PaymentID:     payment.ID,
		TransactionID: payment.TransactionID,
		PaymentURL:    res.PaymentURL,
		PaymentToken:  res.PaymentToken,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
	}, nil
}

// reuseCheckout hands back the checkout already open for the order, so an order never has
// two payable transactions. A pending payment whose checkout never reached the buyer is
// failed instead, and the caller opens a new one.
func (s *PaymentService) reuseCheckout(ctx context.Context, order *domain.Order) (*CheckoutView, error) {
	prev, err := s.payments.FindByTransactionID(ctx, *order.TransactionID)
	if err != nil {
		return nil, err
	}
	if prev == nil || prev.Status != domain.PaymentPending {
		return nil, nil
	}
	if prev.PaymentURL != "" && prev.Amount == order.Total {
		return &CheckoutView{
			PaymentID:     prev.ID,
			TransactionID: prev.TransactionID,
			PaymentURL:    prev.PaymentURL,
			PaymentToken:  prev.PaymentToken,
			Amount:        prev.Amount,
			Currency:      prev.Currency,
		}, nil
	}

	ok, err := s.payments.Settle(ctx, prev.TransactionID, domain.OutcomeFailure, `{"source":"superseded"}`)
	if err != nil {
		return nil, err
	}
	if !ok {
		// a notification settled it meanwhile; the order state has to be read again
		return nil, ErrOrderNotPayable
	}
	log.Printf("payment %s: superseded by a new checkout for order %s", prev.TransactionID, order.OrderNumber)
	return nil, nil
}

// ListPayments returns the caller's payments, or every payment for an admin.
func (s *PaymentService) ListPayments(ctx context.Context, userID uint64, role domain.Role, orderID *uint64) ([]domain.Payment, error) {
	scope := userID
	if role == domain.RoleAdmin {
		scope = 0
	}
	out, err := s.payments.FindForUser(ctx, scope, orderID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Payment{}
	}
	return out, nil
}

// settle runs the compare-and-swap and, only when this caller won it, dispatches the
// side effects.
func (s *PaymentService) settle(ctx context.Context, payment *domain.Payment, outcome domain.Outcome, metadata string) error {
	ok, err := s.payments.Settle(ctx, payment.TransactionID, outcome, metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		log.Printf("payment %s: lost settlement race, already terminal", payment.TransactionID)
		return ErrAlreadyTerminal
	}

	payment.Status = outcome.PaymentStatus()
	log.Printf("payment %s settled as %s", payment.TransactionID, payment.Status)

	s.dispatchSettled(context.WithoutCancel(ctx), payment, outcome)
	return nil
}

func (s *PaymentService) dispatchSettled(ctx context.Context, payment *domain.Payment, outcome domain.Outcome) {
	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil || order == nil {
		log.Printf("payment %s: settled but order %d could not be loaded for notifications: %v", payment.TransactionID, payment.OrderID, err)
		return
	}
	related := order.ID

	evt := domain.PaymentSettledEvent{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		TransactionID: payment.TransactionID,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Status:        payment.Status,
		SettledAt:     time.Now(),
	}

	if outcome == domain.OutcomeSuccess && order.Status == domain.StatusCancelled {
		s.flagRefund(ctx, order, payment, evt)
		return
	}

	if outcome == domain.OutcomeSuccess {
		if _, err := s.notifier.Notify(ctx, order.UserID, domain.NotificationPaymentSuccess,
			"Payment confirmed",
			fmt.Sprintf("Your payment of %d %s for order %s has been received.", payment.Amount, payment.Currency, order.OrderNumber),
			&related); err != nil {
			log.Printf("payment %s: buyer notification failed: %v", payment.TransactionID, err)
		}
		s.notifier.Push(order.UserID, EventPaymentSuccess, evt)

		drafts := make([]domain.Notification, 0, len(order.Items))
		for _, sellerID := range order.SellerIDs() {
			drafts = append(drafts, domain.Notification{
				UserID:    sellerID,
				Type:      domain.NotificationProductSold,
				Title:     "Order paid",
				Message:   fmt.Sprintf("Order %s has been paid. Your share is %d %s.", order.OrderNumber, order.SellerSubtotal(sellerID), payment.Currency),
				RelatedID: &related,
			})
		}
		if _, err := s.notifier.NotifyMany(ctx, drafts); err != nil {
			log.Printf("payment %s: seller notifications failed: %v", payment.TransactionID, err)
		}
		s.publish(ctx, rabbit.KeyPaymentCompleted, evt)
		return
	}

	if _, err := s.notifier.Notify(ctx, order.UserID, domain.NotificationPaymentFailed,
		"Payment failed",
		fmt.Sprintf("The payment for order %s did not go through. You can try again.", order.OrderNumber),
		&related); err != nil {
		log.Printf("payment %s: buyer notification failed: %v", payment.TransactionID, err)
	}
	s.publish(ctx, rabbit.KeyPaymentFailed, evt)
}

// flagRefund handles money received for an order the buyer already cancelled. The stock
// went back on sale, so sellers are not told about a sale.
func (s *PaymentService) flagRefund(ctx context.Context, order *domain.Order, payment *domain.Payment, evt domain.PaymentSettledEvent) {
	log.Printf("payment %s: completed for cancelled order %s, refund of %d %s required",
		payment.TransactionID, order.OrderNumber, payment.Amount, payment.Currency)

	related := order.ID
	if _, err := s.notifier.Notify(ctx, order.UserID, domain.NotificationWarning,
		"Payment received for a cancelled order",
		fmt.Sprintf("We received %d %s for order %s, which was cancelled. The amount will be refunded.", payment.Amount, payment.Currency, order.OrderNumber),
		&related); err != nil {
		log.Printf("payment %s: buyer notification failed: %v", payment.TransactionID, err)
	}
	s.publish(ctx, rabbit.KeyPaymentRefund, evt)
}

func (s *PaymentService) publish(ctx context.Context, key string, evt any) {
	if err := s.publisher.Publish(ctx, key, evt); err != nil {
		log.Printf("Failed to publish %s event: %v", key, err)
	}
}

func amountMatches(notified string, expected int64) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(notified))
	if err != nil {
		return false
	}
	return d.Equal(decimal.NewFromInt(expected))
}

func webhookMetadata(p gateway.WebhookPayload) string {
	b, err := json.Marshal(map[string]string{
		"source":         "webhook",
		"payid":          p.PayID,
		"payment_method": p.PaymentMethod,
		"payment_date":   p.PaymentDate,
		"payment_time":   p.PaymentTime,
		"error_message":  p.ErrorMessage,
		"phone":          p.PhonePrefix + p.PhoneNumber,
		"result":         p.Result,
	})
	if err != nil {
		return ""
	}
	return string(b)
}
