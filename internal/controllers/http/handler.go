package http

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"marketplace-service/internal/auth"
	"marketplace-service/internal/domain"
	"marketplace-service/internal/infra/gateway"
	"marketplace-service/internal/realtime"
	"marketplace-service/internal/services"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type Handler struct {
	payments      *services.PaymentService
	orders        *services.OrderService
	products      *services.ProductService
	notifications *services.NotificationService
	users         *services.UserService
	tokens        *auth.Tokens
	registry      realtime.Registry
}

func NewHandler(
	payments *services.PaymentService,
	orders *services.OrderService,
	products *services.ProductService,
	notifications *services.NotificationService,
	users *services.UserService,
	tokens *auth.Tokens,
	registry realtime.Registry,
) *Handler {
	return &Handler{
		payments:      payments,
		orders:        orders,
		products:      products,
		notifications: notifications,
		users:         users,
		tokens:        tokens,
		registry:      registry,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ws", realtime.ServeWS(h.registry, h.tokens))

	api := r.Group("/api")
	api.POST("/payments/cinetpay/notify", h.PaymentNotify)

	authLimit := RateLimit(rate.Every(2*time.Second), 5)
	api.POST("/auth/register", authLimit, h.Register)
	api.POST("/auth/login", authLimit, h.Login)
	api.GET("/products/:id", h.GetProduct)

	authed := api.Group("", RequireAuth(h.tokens, h.users))

	authed.POST("/payments/initialize", h.InitializePayment)
	authed.GET("/payments/status/:transactionId", h.PaymentStatus)
	authed.GET("/payments", h.ListPayments)

	authed.POST("/orders", h.CreateOrder)
	authed.GET("/orders", h.ListOrders)
	authed.GET("/orders/seller", RequireRole(domain.RoleSeller), h.ListSellerOrders)
	authed.GET("/orders/:id", h.GetOrder)
	authed.PATCH("/orders/:id/cancel", h.CancelOrder)
	authed.PATCH("/orders/:id/status", RequireRole(domain.RoleSeller), h.UpdateOrderStatus)

	authed.POST("/products", RequireRole(domain.RoleSeller), h.CreateProduct)
	authed.GET("/products/seller", RequireRole(domain.RoleSeller), h.ListSellerProducts)
	authed.PUT("/products/:id", RequireRole(domain.RoleSeller, domain.RoleAdmin), h.UpdateProduct)
	authed.DELETE("/products/:id", RequireRole(domain.RoleSeller, domain.RoleAdmin), h.DeleteProduct)

	authed.GET("/notifications", h.ListNotifications)
	authed.GET("/notifications/unread-count", h.UnreadCount)
	authed.PATCH("/notifications/mark-all-read", h.MarkAllRead)
	authed.PATCH("/notifications/:id/read", h.MarkRead)
	authed.DELETE("/notifications/:id", h.DeleteNotification)

	admin := authed.Group("/admin", RequireRole(domain.RoleAdmin))
	admin.GET("/users/pending", h.ListPendingUsers)
	admin.PATCH("/users/:id/approval", h.ApproveUser)
}

// PaymentNotify is the gateway callback. Orphan and duplicate notifications are
// acknowledged with 200 so the gateway stops retrying them; store failures answer 500 so
// it retries.
func (h *Handler) PaymentNotify(c *gin.Context) {
	var payload gateway.WebhookPayload
	if err := c.ShouldBind(&payload); err != nil {
		log.Printf("webhook: malformed notification: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": services.ErrMalformedPayload.Error()})
		return
	}

	res, err := h.payments.HandleWebhook(c.Request.Context(), payload)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "processed", "transactionId": res.TransactionID, "status": res.Status})
	case errors.Is(err, services.ErrUnknownTransaction):
		c.JSON(http.StatusOK, gin.H{"message": "unknown transaction"})
	case errors.Is(err, services.ErrAlreadyTerminal):
		c.JSON(http.StatusOK, gin.H{"message": "already processed"})
	default:
		respondError(c, err)
	}
}

func (h *Handler) InitializePayment(c *gin.Context) {
	var req InitializePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.payments.Initiate(c.Request.Context(), currentUserID(c), req.OrderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) PaymentStatus(c *gin.Context) {
	view, err := h.payments.CheckStatus(c.Request.Context(), currentUserID(c), currentRole(c), c.Param("transactionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) ListPayments(c *gin.Context) {
	var orderID *uint64
	if v := c.Query("orderId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid orderId"})
			return
		}
		orderID = &id
	}

	out, err := h.payments.ListPayments(c.Request.Context(), currentUserID(c), currentRole(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": out})
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req services.PlaceOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.PlaceOrder(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateOrderResponse{ID: order.ID, OrderNumber: order.OrderNumber, Total: order.Total})
}

func (h *Handler) ListOrders(c *gin.Context) {
	out, err := h.orders.ListForUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

func (h *Handler) ListSellerOrders(c *gin.Context) {
	out, err := h.orders.ListForSeller(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.GetForUser(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) CancelOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.Cancel(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), currentUserID(c), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	prod, err := h.products.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prod)
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var req services.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	prod, err := h.products.Create(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, prod)
}

func (h *Handler) UpdateProduct(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req services.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	prod, err := h.products.Update(c.Request.Context(), currentUserID(c), currentRole(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prod)
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.products.Delete(c.Request.Context(), currentUserID(c), currentRole(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *Handler) ListSellerProducts(c *gin.Context) {
	out, err := h.products.ListForSeller(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": out})
}

func (h *Handler) ListNotifications(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	out, err := h.notifications.List(c.Request.Context(), currentUserID(c), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) UnreadCount(c *gin.Context) {
	n, err := h.notifications.UnreadCount(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	n, err := h.notifications.MarkRead(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	n, err := h.notifications.MarkAllRead(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *Handler) DeleteNotification(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.Delete(c.Request.Context(), currentUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *Handler) Register(c *gin.Context) {
	var req services.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.users.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListPendingUsers(c *gin.Context) {
	out, err := h.users.ListPending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

func (h *Handler) ApproveUser(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.users.Approve(c.Request.Context(), id, *req.Approve)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}
