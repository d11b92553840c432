package services

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"marketplace-service/internal/config"
	"marketplace-service/internal/domain"
	"marketplace-service/internal/infra/database"
	"marketplace-service/internal/infra/gateway"
	"marketplace-service/internal/realtime"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	TestSiteID   = "445160"
	TestSecret   = "webhook-secret"
	TestCurrency = "XOF"
)

func CreateMockOrder(id, userID uint64, status domain.OrderStatus, payment domain.OrderPaymentStatus, items ...domain.OrderItem) *domain.Order {
	o := &domain.Order{
		ID:            id,
		OrderNumber:   "ORD-1-TEST",
		UserID:        userID,
		Items:         items,
		Status:        status,
		PaymentStatus: payment,
		CreatedAt:     time.Now(),
	}
	for _, it := range items {
		o.Subtotal += it.LineTotal()
	}
	o.Total = o.Subtotal
	return o
}

func CreateMockPayment(txn string, orderID uint64, amount int64, status domain.PaymentStatus) *domain.Payment {
	return &domain.Payment{
		ID:            1,
		OrderID:       orderID,
		TransactionID: txn,
		Amount:        amount,
		Currency:      TestCurrency,
		Provider:      providerCinetPay,
		Status:        status,
	}
}

// SignedPayload builds a notification signed with TestSecret.
func SignedPayload(txn, amount, result string) gateway.WebhookPayload {
	p := gateway.WebhookPayload{
		TransID:       txn,
		SiteID:        TestSiteID,
		TransDate:     "2025-10-01 10:00:00",
		Amount:        amount,
		Currency:      TestCurrency,
		PayID:         "PAY-" + txn,
		PaymentDate:   "2025-10-01",
		PaymentTime:   "10:01:12",
		ErrorMessage:  "SUCCES",
		PaymentMethod: "OM",
		PhonePrefix:   "225",
		PhoneNumber:   "0700000000",
		IPNAck:        "Y",
		CreatedAt:     "2025-10-01 10:00:00",
		UpdatedAt:     "2025-10-01 10:01:12",
		Result:        result,
		Designation:   "Order",
	}
	p.Signature = gateway.Sign(p, TestSecret)
	return p
}

func testGatewayClient(baseURL string) *gateway.Client {
	return gateway.NewClient(config.CinetPay{
		APIKey:    "key",
		SiteID:    TestSiteID,
		SecretKey: TestSecret,
		BaseURL:   baseURL,
		Currency:  TestCurrency,
		Timeout:   2 * time.Second,
	})
}

// newTestDB opens a migrated SQLite database in a temp dir. A single connection serialises
// concurrent transactions the way row locks would on a server database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &config.Config{
		DBDriver:    "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "marketplace.db") + "?_busy_timeout=5000",
	}
	db, err := database.Open(cfg)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

type fixture struct {
	buyer   domain.User
	sellerA domain.User
	sellerB domain.User
	order   domain.Order
	payment domain.Payment
}

// seedPendingPayment stores a buyer, two sellers, a 15000 order spread over both sellers and
// a pending payment for it under txn.
func seedPendingPayment(t *testing.T, db *gorm.DB, txn string) fixture {
	t.Helper()
	f := fixture{
		buyer:   domain.User{Email: "buyer@shop.test", PasswordHash: "x", Role: domain.RoleBuyer, Status: domain.UserApproved},
		sellerA: domain.User{Email: "a@shop.test", PasswordHash: "x", Role: domain.RoleSeller, Status: domain.UserApproved},
		sellerB: domain.User{Email: "b@shop.test", PasswordHash: "x", Role: domain.RoleSeller, Status: domain.UserApproved},
	}
	require.NoError(t, db.Create(&f.buyer).Error)
	require.NoError(t, db.Create(&f.sellerA).Error)
	require.NoError(t, db.Create(&f.sellerB).Error)

	f.order = domain.Order{
		OrderNumber:   "ORD-1001",
		UserID:        f.buyer.ID,
		Subtotal:      15000,
		Total:         15000,
		Status:        domain.StatusPending,
		PaymentStatus: domain.OrderPaymentPending,
		TransactionID: &txn,
		Items: []domain.OrderItem{
			{ProductID: 1, SellerID: f.sellerA.ID, Name: "Wax fabric", Quantity: 2, UnitPrice: 5000},
			{ProductID: 2, SellerID: f.sellerB.ID, Name: "Shea butter", Quantity: 1, UnitPrice: 5000},
		},
	}
	require.NoError(t, db.Create(&f.order).Error)

	f.payment = domain.Payment{
		OrderID:       f.order.ID,
		TransactionID: txn,
		Amount:        15000,
		Currency:      TestCurrency,
		Provider:      providerCinetPay,
		Status:        domain.PaymentPending,
	}
	require.NoError(t, db.Create(&f.payment).Error)
	return f
}

// recordingRegistry is a realtime.Registry that remembers every push.
type recordingRegistry struct {
	mu     sync.Mutex
	online map[uint64]bool
	sent   []sentEvent
}

type sentEvent struct {
	UserID uint64
	Event  string
}

func newRecordingRegistry(online ...uint64) *recordingRegistry {
	r := &recordingRegistry{online: make(map[uint64]bool)}
	for _, id := range online {
		r.online[id] = true
	}
	return r
}

func (r *recordingRegistry) Register(userID uint64, c realtime.Conn)   {}
func (r *recordingRegistry) Unregister(userID uint64, c realtime.Conn) {}

func (r *recordingRegistry) Send(userID uint64, event string, payload any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEvent{UserID: userID, Event: event})
	return r.online[userID]
}

func (r *recordingRegistry) events(userID uint64, event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.sent {
		if e.UserID == userID && e.Event == event {
			n++
		}
	}
	return n
}
