package services

import (
	"context"
	"errors"
	"testing"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/infra/gateway"
	"marketplace-service/internal/mocks"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type paymentMocks struct {
	payments *mocks.MockPaymentRepository
	orders   *mocks.MockOrderRepository
	users    *mocks.MockUserRepository
	notes    *mocks.MockNotificationRepository
	gw       *mocks.MockGateway
	pub      *mocks.MockPublisher
	registry *mocks.MockRegistry
}

func newPaymentMocks() *paymentMocks {
	return &paymentMocks{
		payments: new(mocks.MockPaymentRepository),
		orders:   new(mocks.MockOrderRepository),
		users:    new(mocks.MockUserRepository),
		notes:    new(mocks.MockNotificationRepository),
		gw:       new(mocks.MockGateway),
		pub:      new(mocks.MockPublisher),
		registry: new(mocks.MockRegistry),
	}
}

func (m *paymentMocks) service() *PaymentService {
	notifier := NewNotificationService(m.notes, m.registry)
	s := NewPaymentService(m.payments, m.orders, m.users, m.gw, notifier, m.pub, TestCurrency)
	s.newTransactionID = func() string { return "TXN-FIXED" }
	return s
}

func (m *paymentMocks) assertAll(t *testing.T) {
	m.payments.AssertExpectations(t)
	m.orders.AssertExpectations(t)
	m.users.AssertExpectations(t)
	m.notes.AssertExpectations(t)
	m.gw.AssertExpectations(t)
	m.pub.AssertExpectations(t)
	m.registry.AssertExpectations(t)
}

func sampleOrder() *domain.Order {
	return CreateMockOrder(10, 7, domain.StatusPending, domain.OrderPaymentPending,
		domain.OrderItem{ProductID: 1, SellerID: 20, Quantity: 2, UnitPrice: 5000},
		domain.OrderItem{ProductID: 2, SellerID: 21, Quantity: 1, UnitPrice: 5000},
	)
}

func expectNotification(m *paymentMocks, userID uint64, typ domain.NotificationType) {
	m.notes.On("Create", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.UserID == userID && n.Type == typ
	})).Return(nil).Once().Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Notification).ID = userID * 100
	})
	m.registry.On("Send", userID, EventNotification, mock.Anything).Return(false).Once()
}

func TestPaymentService_HandleWebhook(t *testing.T) {
	const txn = "TXN-1001"

	tests := []struct {
		name        string
		payload     gateway.WebhookPayload
		setupMocks  func(m *paymentMocks)
		expectedErr error
		wantStatus  domain.PaymentStatus
	}{
		{
			name:        "missing transaction id is malformed",
			payload:     gateway.WebhookPayload{SiteID: TestSiteID, Result: "00"},
			setupMocks:  func(m *paymentMocks) {},
			expectedErr: ErrMalformedPayload,
		},
		{
			name:    "bad signature is rejected before any lookup",
			payload: SignedPayload(txn, "15000", "00"),
			setupMocks: func(m *paymentMocks) {
				m.gw.On("VerifySignature", mock.Anything).Return(false)
			},
			expectedErr: ErrSignatureInvalid,
		},
		{
			name:    "foreign site id is rejected",
			payload: SignedPayload(txn, "15000", "00"),
			setupMocks: func(m *paymentMocks) {
				m.gw.On("VerifySignature", mock.Anything).Return(true)
				m.gw.On("SiteID").Return("999999")
			},
			expectedErr: ErrSignatureInvalid,
		},
		{
			name:    "unknown transaction is acknowledged without changes",
			payload: SignedPayload(txn, "15000", "00"),
			setupMocks: func(m *paymentMocks) {
				m.gw.On("VerifySignature", mock.Anything).Return(true)
				m.gw.On("SiteID").Return(TestSiteID)
				m.payments.On("FindByTransactionID", mock.Anything, txn).Return(nil, nil)
			},
			expectedErr: ErrUnknownTransaction,
		},
		{
			name:    "terminal payment is a duplicate",
			payload: SignedPayload(txn, "15000", "00"),
			setupMocks: func(m *paymentMocks) {
				m.gw.On("VerifySignature", mock.Anything).Return(true)
				m.gw.On("SiteID").Return(TestSiteID)
				m.payments.On("FindByTransactionID", mock.Anything, txn).
					Return(CreateMockPayment(txn, 10, 15000, domain.PaymentCompleted), nil)
			},
			expectedErr: ErrAlreadyTerminal,
		},
		{
			name:    "store failure on lookup",
			payload: SignedPayload(txn, "15000", "00"),
			setupMocks: func(m *paymentMocks) {
				m.gw.On("VerifySignature", mock.Anything).Return(true)
				m.gw.On("SiteID").Return(TestSiteID)
				m.payments.On("FindByTransactionID", mock.Anything, txn).Return(nil, errors.New("connection refused"))
			},
			expectedErr: ErrStoreUnavailable,
		},
		{
			name:    "success settles and notifies buyer and every seller",
			payload: SignedPayload(txn, "15000", "00"),
			setupMocks: func(m *paymentMocks) {
				m.gw.On("VerifySignature", mock.Anything).Return(true)
				m.gw.On("SiteID").Return(TestSiteID)
				m.payments.On("FindByTransactionID", mock.Anything, txn).
					Return(CreateMockPayment(txn, 10, 15000, domain.PaymentPending), nil)
				m.payments.On("Settle", mock.Anything, txn, domain.OutcomeSuccess, mock.AnythingOfType("string")).Return(true, nil)
				m.orders.On("FindByID", mock.Anything, uint64(10)).Return(sampleOrder(), nil)
				expectNotification(m, 7, domain.NotificationPaymentSuccess)
				m.registry.On("Send", uint64(7), EventPaymentSuccess, mock.Anything).Return(false).Once()
				expectNotification(m, 20, domain.NotificationProductSold)
				expectNotification(m, 21, domain.NotificationProductSold)
				m.pub.On("Publish", mock.Anything, "payment.completed", mock.AnythingOfType("domain.PaymentSettledEvent")).Return(nil)
			},
			wantStatus: domain.PaymentCompleted,
		},
		{
			name:    "non-success result code fails the payment",
			payload: SignedPayload(txn, "15000", "627"),
			setupMocks: func(m *paymentMocks) {
				m.gw.On("VerifySignature", mock.Anything).Return(true)
				m.gw.On("SiteID").Return(TestSiteID)
				m.payments.On("FindByTransactionID", mock.Anything, txn).
					Return(CreateMockPayment(txn, 10, 15000, domain.PaymentPending), nil)
				m.payments.On("Settle", mock.Anything, txn, domain.OutcomeFailure, mock.AnythingOfType("string")).Return(true, nil)
				m.orders.On("FindByID", mock.Anything, uint64(10)).Return(sampleOrder(), nil)
				expectNotification(m, 7, domain.NotificationPaymentFailed)
				m.pub.On("Publish", mock.Anything, "payment.failed", mock.Anything).Return(nil)
			},
			wantStatus: domain.PaymentFailed,
		},
		{
			name:    "success code with a different amount fails the payment",
			payload: SignedPayload(txn, "100", "00"),
			setupMocks: func(m *paymentMocks) {
				m.gw.On("VerifySignature", mock.Anything).Return(true)
				m.gw.On("SiteID").Return(TestSiteID)
				m.payments.On("FindByTransactionID", mock.Anything, txn).
					Return(CreateMockPayment(txn, 10, 15000, domain.PaymentPending), nil)
				m.payments.On("Settle", mock.Anything, txn, domain.OutcomeFailure, mock.AnythingOfType("string")).Return(true, nil)
				m.orders.On("FindByID", mock.Anything, uint64(10)).Return(sampleOrder(), nil)
				expectNotification(m, 7, domain.NotificationPaymentFailed)
				m.pub.On("Publish", mock.Anything, "payment.failed", mock.Anything).Return(nil)
			},
			wantStatus: domain.PaymentFailed,
		},
		{
			name:    "lost race dispatches nothing",
			payload: SignedPayload(txn, "15000", "00"),
			setupMocks: func(m *paymentMocks) {
				m.gw.On("VerifySignature", mock.Anything).Return(true)
				m.gw.On("SiteID").Return(TestSiteID)
				m.payments.On("FindByTransactionID", mock.Anything, txn).
					Return(CreateMockPayment(txn, 10, 15000, domain.PaymentPending), nil)
				m.payments.On("Settle", mock.Anything, txn, domain.OutcomeSuccess, mock.Anything).Return(false, nil)
			},
			expectedErr: ErrAlreadyTerminal,
		},
		{
			name:    "settle failure is a store error",
			payload: SignedPayload(txn, "15000", "00"),
			setupMocks: func(m *paymentMocks) {
				m.gw.On("VerifySignature", mock.Anything).Return(true)
				m.gw.On("SiteID").Return(TestSiteID)
				m.payments.On("FindByTransactionID", mock.Anything, txn).
					Return(CreateMockPayment(txn, 10, 15000, domain.PaymentPending), nil)
				m.payments.On("Settle", mock.Anything, txn, domain.OutcomeSuccess, mock.Anything).Return(false, errors.New("deadlock"))
			},
			expectedErr: ErrStoreUnavailable,
		},
		{
			name:    "notification failures do not undo settlement",
			payload: SignedPayload(txn, "15000", "00"),
			setupMocks: func(m *paymentMocks) {
				m.gw.On("VerifySignature", mock.Anything).Return(true)
				m.gw.On("SiteID").Return(TestSiteID)
				m.payments.On("FindByTransactionID", mock.Anything, txn).
					Return(CreateMockPayment(txn, 10, 15000, domain.PaymentPending), nil)
				m.payments.On("Settle", mock.Anything, txn, domain.OutcomeSuccess, mock.Anything).Return(true, nil)
				m.orders.On("FindByID", mock.Anything, uint64(10)).Return(sampleOrder(), nil)
				m.notes.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))
				m.registry.On("Send", uint64(7), EventPaymentSuccess, mock.Anything).Return(true)
				m.pub.On("Publish", mock.Anything, "payment.completed", mock.Anything).Return(errors.New("broker down"))
			},
			wantStatus: domain.PaymentCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newPaymentMocks()
			tt.setupMocks(m)

			res, err := m.service().HandleWebhook(context.Background(), tt.payload)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, res)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantStatus, res.Status)
				assert.Equal(t, txn, res.TransactionID)
			}
			m.assertAll(t)
		})
	}
}

func TestPaymentService_HandleWebhookLostRaceSkipsSideEffects(t *testing.T) {
	m := newPaymentMocks()
	m.gw.On("VerifySignature", mock.Anything).Return(true)
	m.gw.On("SiteID").Return(TestSiteID)
	m.payments.On("FindByTransactionID", mock.Anything, "TXN-1").
		Return(CreateMockPayment("TXN-1", 10, 500, domain.PaymentPending), nil)
	m.payments.On("Settle", mock.Anything, "TXN-1", domain.OutcomeSuccess, mock.Anything).Return(false, nil)

	_, err := m.service().HandleWebhook(context.Background(), SignedPayload("TXN-1", "500", "00"))

	assert.ErrorIs(t, err, ErrAlreadyTerminal)
	m.orders.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	m.notes.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_HandleWebhookPaidAfterCancel(t *testing.T) {
	m := newPaymentMocks()
	m.gw.On("VerifySignature", mock.Anything).Return(true)
	m.gw.On("SiteID").Return(TestSiteID)
	m.payments.On("FindByTransactionID", mock.Anything, "TXN-1").
		Return(CreateMockPayment("TXN-1", 10, 15000, domain.PaymentPending), nil)
	m.payments.On("Settle", mock.Anything, "TXN-1", domain.OutcomeSuccess, mock.Anything).Return(true, nil)

	cancelled := sampleOrder()
	cancelled.Status = domain.StatusCancelled
	cancelled.PaymentStatus = domain.OrderPaymentPaid
	m.orders.On("FindByID", mock.Anything, uint64(10)).Return(cancelled, nil)
	expectNotification(m, 7, domain.NotificationWarning)
	m.pub.On("Publish", mock.Anything, "payment.refund_required", mock.AnythingOfType("domain.PaymentSettledEvent")).Return(nil)

	res, err := m.service().HandleWebhook(context.Background(), SignedPayload("TXN-1", "15000", "00"))

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCompleted, res.Status)
	m.assertAll(t)
	m.registry.AssertNotCalled(t, "Send", uint64(7), EventPaymentSuccess, mock.Anything)
	m.pub.AssertNotCalled(t, "Publish", mock.Anything, "payment.completed", mock.Anything)
}

func TestPaymentService_CheckStatus(t *testing.T) {
	const txn = "TXN-2002"

	tests := []struct {
		name        string
		userID      uint64
		role        domain.Role
		setupMocks  func(m *paymentMocks)
		expectedErr error
		wantStatus  domain.PaymentStatus
		wantGateway gateway.Status
	}{
		{
			name:   "unknown transaction",
			userID: 7,
			role:   domain.RoleBuyer,
			setupMocks: func(m *paymentMocks) {
				m.payments.On("FindByTransactionID", mock.Anything, txn).Return(nil, nil)
			},
			expectedErr: ErrPaymentNotFound,
		},
		{
			name:   "someone else's payment",
			userID: 99,
			role:   domain.RoleBuyer,
			setupMocks: func(m *paymentMocks) {
				m.payments.On("FindByTransactionID", mock.Anything, txn).Return(CreateMockPayment(txn, 10, 15000, domain.PaymentPending), nil)
				m.orders.On("FindByID", mock.Anything, uint64(10)).Return(sampleOrder(), nil)
			},
			expectedErr: ErrForbidden,
		},
		{
			name:   "terminal payment skips the gateway",
			userID: 7,
			role:   domain.RoleBuyer,
			setupMocks: func(m *paymentMocks) {
				m.payments.On("FindByTransactionID", mock.Anything, txn).Return(CreateMockPayment(txn, 10, 15000, domain.PaymentFailed), nil)
				m.orders.On("FindByID", mock.Anything, uint64(10)).Return(sampleOrder(), nil)
			},
			wantStatus: domain.PaymentFailed,
		},
		{
			name:   "pending at the gateway leaves the payment alone",
			userID: 7,
			role:   domain.RoleBuyer,
			setupMocks: func(m *paymentMocks) {
				m.payments.On("FindByTransactionID", mock.Anything, txn).Return(CreateMockPayment(txn, 10, 15000, domain.PaymentPending), nil)
				m.orders.On("FindByID", mock.Anything, uint64(10)).Return(sampleOrder(), nil)
				m.gw.On("CheckStatus", mock.Anything, txn).Return(&gateway.StatusResult{Status: gateway.StatusPending}, nil)
			},
			wantStatus:  domain.PaymentPending,
			wantGateway: gateway.StatusPending,
		},
		{
			name:   "gateway down",
			userID: 7,
			role:   domain.RoleBuyer,
			setupMocks: func(m *paymentMocks) {
				m.payments.On("FindByTransactionID", mock.Anything, txn).Return(CreateMockPayment(txn, 10, 15000, domain.PaymentPending), nil)
				m.orders.On("FindByID", mock.Anything, uint64(10)).Return(sampleOrder(), nil)
				m.gw.On("CheckStatus", mock.Anything, txn).Return(nil, gateway.ErrGatewayUnavailable)
			},
			expectedErr: gateway.ErrGatewayUnavailable,
		},
		{
			name:   "refused applies the failure transition for an admin",
			userID: 0,
			role:   domain.RoleAdmin,
			setupMocks: func(m *paymentMocks) {
				m.payments.On("FindByTransactionID", mock.Anything, txn).Return(CreateMockPayment(txn, 10, 15000, domain.PaymentPending), nil).Once()
				m.gw.On("CheckStatus", mock.Anything, txn).Return(&gateway.StatusResult{Status: gateway.StatusRefused}, nil)
				m.payments.On("Settle", mock.Anything, txn, domain.OutcomeFailure, mock.Anything).Return(true, nil)
				m.orders.On("FindByID", mock.Anything, uint64(10)).Return(sampleOrder(), nil)
				expectNotification(m, 7, domain.NotificationPaymentFailed)
				m.pub.On("Publish", mock.Anything, "payment.failed", mock.Anything).Return(nil)
				m.payments.On("FindByTransactionID", mock.Anything, txn).Return(CreateMockPayment(txn, 10, 15000, domain.PaymentFailed), nil).Once()
			},
			wantStatus:  domain.PaymentFailed,
			wantGateway: gateway.StatusRefused,
		},
		{
			name:   "accepted with matching amount completes the payment",
			userID: 7,
			role:   domain.RoleBuyer,
			setupMocks: func(m *paymentMocks) {
				m.payments.On("FindByTransactionID", mock.Anything, txn).Return(CreateMockPayment(txn, 10, 15000, domain.PaymentPending), nil).Once()
				m.orders.On("FindByID", mock.Anything, uint64(10)).Return(sampleOrder(), nil)
				m.gw.On("CheckStatus", mock.Anything, txn).Return(&gateway.StatusResult{Status: gateway.StatusAccepted, Amount: decimal.NewFromInt(15000)}, nil)
				m.payments.On("Settle", mock.Anything, txn, domain.OutcomeSuccess, mock.Anything).Return(true, nil)
				m.notes.On("Create", mock.Anything, mock.Anything).Return(nil)
				m.registry.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(false)
				m.pub.On("Publish", mock.Anything, "payment.completed", mock.Anything).Return(nil)
				m.payments.On("FindByTransactionID", mock.Anything, txn).Return(CreateMockPayment(txn, 10, 15000, domain.PaymentCompleted), nil).Once()
			},
			wantStatus:  domain.PaymentCompleted,
			wantGateway: gateway.StatusAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newPaymentMocks()
			tt.setupMocks(m)

			view, err := m.service().CheckStatus(context.Background(), tt.userID, tt.role, txn)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, view)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, view.Payment.Status)
			assert.Equal(t, tt.wantGateway, view.GatewayStatus)
			m.assertAll(t)
		})
	}
}

func TestPaymentService_Initiate(t *testing.T) {
	buyer := &domain.User{ID: 7, Email: "buyer@shop.test", FirstName: "Awa", LastName: "Kone", Phone: "0700000000"}

	tests := []struct {
		name        string
		userID      uint64
		setupMocks  func(m *paymentMocks)
		expectedErr error
	}{
		{
			name:   "order not found",
			userID: 7,
			setupMocks: func(m *paymentMocks) {
				m.orders.On("FindByID", mock.Anything, uint64(10)).Return(nil, nil)
			},
			expectedErr: ErrOrderNotFound,
		},
		{
			name:   "order of another buyer",
			userID: 8,
			setupMocks: func(m *paymentMocks) {
				m.orders.On("FindByID", mock.Anything, uint64(10)).Return(sampleOrder(), nil)
			},
			expectedErr: ErrForbidden,
		},
		{
			name:   "order already paid",
			userID: 7,
			setupMocks: func(m *paymentMocks) {
				o := sampleOrder()
				o.PaymentStatus = domain.OrderPaymentPaid
				m.orders.On("FindByID", mock.Anything, uint64(10)).Return(o, nil)
			},
			expectedErr: ErrOrderNotPayable,
		},
		{
			name:   "gateway rejection fails the fresh payment",
			userID: 7,
			setupMocks: func(m *paymentMocks) {
				m.orders.On("FindByID", mock.Anything, uint64(10)).Return(sampleOrder(), nil)
				m.users.On("FindByID", mock.Anything, uint64(7)).Return(buyer, nil)
				m.payments.On("Create", mock.Anything, mock.AnythingOfType("*domain.Payment")).Return(nil)
				m.orders.On("SetTransactionID", mock.Anything, uint64(10), "TXN-FIXED").Return(nil)
				m.gw.On("Initiate", mock.Anything, mock.Anything).Return(nil, gateway.ErrGatewayRejected)
				m.payments.On("Settle", mock.Anything, "TXN-FIXED", domain.OutcomeFailure, "").Return(true, nil)
			},
			expectedErr: gateway.ErrGatewayRejected,
		},
		{
			name:   "gateway unavailable keeps the payment pending",
			userID: 7,
			setupMocks: func(m *paymentMocks) {
				m.orders.On("FindByID", mock.Anything, uint64(10)).Return(sampleOrder(), nil)
				m.users.On("FindByID", mock.Anything, uint64(7)).Return(buyer, nil)
				m.payments.On("Create", mock.Anything, mock.AnythingOfType("*domain.Payment")).Return(nil)
				m.orders.On("SetTransactionID", mock.Anything, uint64(10), "TXN-FIXED").Return(nil)
				m.gw.On("Initiate", mock.Anything, mock.Anything).Return(nil, gateway.ErrGatewayUnavailable)
			},
			expectedErr: gateway.ErrGatewayUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newPaymentMocks()
			tt.setupMocks(m)

			view, err := m.service().Initiate(context.Background(), tt.userID, 10)

			assert.ErrorIs(t, err, tt.expectedErr)
			assert.Nil(t, view)
			m.assertAll(t)
			if tt.expectedErr == gateway.ErrGatewayUnavailable {
				m.payments.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestPaymentService_InitiateSuccess(t *testing.T) {
	m := newPaymentMocks()
	m.orders.On("FindByID", mock.Anything, uint64(10)).Return(sampleOrder(), nil)
	m.users.On("FindByID", mock.Anything, uint64(7)).Return(&domain.User{ID: 7, Email: "buyer@shop.test"}, nil)
	m.payments.On("Create", mock.Anything, mock.MatchedBy(func(p *domain.Payment) bool {
		return p.Status == domain.PaymentPending && p.Amount == 15000 && p.TransactionID == "TXN-FIXED" && p.Currency == TestCurrency
	})).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Payment).ID = 55
	})
	m.orders.On("SetTransactionID", mock.Anything, uint64(10), "TXN-FIXED").Return(nil)
	m.gw.On("Initiate", mock.Anything, mock.MatchedBy(func(r gateway.InitiateRequest) bool {
		return r.TransactionID == "TXN-FIXED" && r.Amount == 15000 && r.Customer.Email == "buyer@shop.test"
	})).Return(&gateway.InitiateResult{PaymentURL: "https://checkout.test/p/1", PaymentToken: "tok"}, nil)
	m.payments.On("UpdateCheckout", mock.Anything, uint64(55), "https://checkout.test/p/1", "tok").Return(true, nil)

	view, err := m.service().Initiate(context.Background(), 7, 10)

	require.NoError(t, err)
	assert.Equal(t, "TXN-FIXED", view.TransactionID)
	assert.Equal(t, "https://checkout.test/p/1", view.PaymentURL)
	assert.Equal(t, int64(15000), view.Amount)
	m.assertAll(t)
}

func TestPaymentService_InitiateWithExistingPayment(t *testing.T) {
	withTxn := func() *domain.Order {
		o := sampleOrder()
		txn := "TXN-OLD"
		o.TransactionID = &txn
		return o
	}
	buyer := &domain.User{ID: 7, Email: "buyer@shop.test"}

	tests := []struct {
		name        string
		previous    *domain.Payment
		setupMocks  func(m *paymentMocks)
		expectedErr error
		wantTxn     string
	}{
		{
			name: "open checkout is handed back",
			previous: &domain.Payment{
				ID: 40, OrderID: 10, TransactionID: "TXN-OLD", Amount: 15000, Currency: TestCurrency,
				Status: domain.PaymentPending, PaymentURL: "https://checkout.test/p/old", PaymentToken: "old",
			},
			setupMocks: func(m *paymentMocks) {},
			wantTxn:    "TXN-OLD",
		},
		{
			name:     "checkout that never opened is superseded",
			previous: CreateMockPayment("TXN-OLD", 10, 15000, domain.PaymentPending),
			setupMocks: func(m *paymentMocks) {
				m.payments.On("Settle", mock.Anything, "TXN-OLD", domain.OutcomeFailure, `{"source":"superseded"}`).Return(true, nil)
				m.users.On("FindByID", mock.Anything, uint64(7)).Return(buyer, nil)
				m.payments.On("Create", mock.Anything, mock.AnythingOfType("*domain.Payment")).Return(nil).Run(func(args mock.Arguments) {
					args.Get(1).(*domain.Payment).ID = 56
				})
				m.orders.On("SetTransactionID", mock.Anything, uint64(10), "TXN-FIXED").Return(nil)
				m.gw.On("Initiate", mock.Anything, mock.Anything).Return(&gateway.InitiateResult{PaymentURL: "https://checkout.test/p/2", PaymentToken: "tok"}, nil)
				m.payments.On("UpdateCheckout", mock.Anything, uint64(56), "https://checkout.test/p/2", "tok").Return(true, nil)
			},
			wantTxn: "TXN-FIXED",
		},
		{
			name:     "previous payment settled while superseding",
			previous: CreateMockPayment("TXN-OLD", 10, 15000, domain.PaymentPending),
			setupMocks: func(m *paymentMocks) {
				m.payments.On("Settle", mock.Anything, "TXN-OLD", domain.OutcomeFailure, mock.Anything).Return(false, nil)
			},
			expectedErr: ErrOrderNotPayable,
		},
		{
			name:     "failed previous payment allows a new checkout",
			previous: CreateMockPayment("TXN-OLD", 10, 15000, domain.PaymentFailed),
			setupMocks: func(m *paymentMocks) {
				m.users.On("FindByID", mock.Anything, uint64(7)).Return(buyer, nil)
				m.payments.On("Create", mock.Anything, mock.AnythingOfType("*domain.Payment")).Return(nil).Run(func(args mock.Arguments) {
					args.Get(1).(*domain.Payment).ID = 57
				})
				m.orders.On("SetTransactionID", mock.Anything, uint64(10), "TXN-FIXED").Return(nil)
				m.gw.On("Initiate", mock.Anything, mock.Anything).Return(&gateway.InitiateResult{PaymentURL: "https://checkout.test/p/3", PaymentToken: "tok"}, nil)
				m.payments.On("UpdateCheckout", mock.Anything, uint64(57), "https://checkout.test/p/3", "tok").Return(true, nil)
			},
			wantTxn: "TXN-FIXED",
		},
		{
			name:     "payment settled during the gateway call",
			previous: CreateMockPayment("TXN-OLD", 10, 15000, domain.PaymentFailed),
			setupMocks: func(m *paymentMocks) {
				m.users.On("FindByID", mock.Anything, uint64(7)).Return(buyer, nil)
				m.payments.On("Create", mock.Anything, mock.AnythingOfType("*domain.Payment")).Return(nil).Run(func(args mock.Arguments) {
					args.Get(1).(*domain.Payment).ID = 58
				})
				m.orders.On("SetTransactionID", mock.Anything, uint64(10), "TXN-FIXED").Return(nil)
				m.gw.On("Initiate", mock.Anything, mock.Anything).Return(&gateway.InitiateResult{PaymentURL: "https://checkout.test/p/4", PaymentToken: "tok"}, nil)
				m.payments.On("UpdateCheckout", mock.Anything, uint64(58), "https://checkout.test/p/4", "tok").Return(false, nil)
			},
			expectedErr: ErrOrderNotPayable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newPaymentMocks()
			m.orders.On("FindByID", mock.Anything, uint64(10)).Return(withTxn(), nil)
			m.payments.On("FindByTransactionID", mock.Anything, "TXN-OLD").Return(tt.previous, nil)
			tt.setupMocks(m)

			view, err := m.service().Initiate(context.Background(), 7, 10)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, view)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantTxn, view.TransactionID)
				assert.Equal(t, int64(15000), view.Amount)
			}
			m.assertAll(t)
			if tt.wantTxn == "TXN-OLD" {
				m.payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
				m.gw.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestPaymentService_ListPayments(t *testing.T) {
	m := newPaymentMocks()
	orderID := uint64(10)
	m.payments.On("FindForUser", mock.Anything, uint64(7), &orderID).Return([]domain.Payment{*CreateMockPayment("TXN-1", 10, 100, domain.PaymentPending)}, nil)
	m.payments.On("FindForUser", mock.Anything, uint64(0), (*uint64)(nil)).Return(nil, nil)

	s := m.service()

	mine, err := s.ListPayments(context.Background(), 7, domain.RoleBuyer, &orderID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := s.ListPayments(context.Background(), 1, domain.RoleAdmin, nil)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestAmountMatches(t *testing.T) {
	assert.True(t, amountMatches("15000", 15000))
	assert.True(t, amountMatches(" 15000.00 ", 15000))
	assert.False(t, amountMatches("14999", 15000))
	assert.False(t, amountMatches("", 15000))
	assert.False(t, amountMatches("abc", 15000))
}
