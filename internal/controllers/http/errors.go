package http

import (
	"errors"
	"log"
	"net/http"

	"marketplace-service/internal/infra/gateway"
	"marketplace-service/internal/services"

	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrMalformedPayload),
		errors.Is(err, services.ErrInvalidOrder),
		errors.Is(err, services.ErrInvalidProduct):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrSignatureInvalid),
		errors.Is(err, services.ErrForbidden),
		errors.Is(err, services.ErrNotApproved):
		return http.StatusForbidden
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrPaymentNotFound),
		errors.Is(err, services.ErrNotificationNotFound),
		errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrOrderNotPayable),
		errors.Is(err, services.ErrInsufficientStock),
		errors.Is(err, services.ErrEmailTaken),
		errors.Is(err, services.ErrAlreadyTerminal):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrGatewayRejected):
		return http.StatusBadGateway
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
