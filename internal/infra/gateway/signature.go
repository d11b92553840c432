package gateway

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// ResultSuccess is the cpm_result value the gateway sends for an accepted payment.
const ResultSuccess = "00"

// WebhookPayload is the typed form of a payment notification. Nothing in it may be trusted
// before VerifySignature succeeds.
type WebhookPayload struct {
	TransID       string `form:"cpm_trans_id" json:"cpm_trans_id" binding:"required"`
	SiteID        string `form:"cpm_site_id" json:"cpm_site_id" binding:"required"`
	TransDate     string `form:"cpm_trans_date" json:"cpm_trans_date"`
	Amount        string `form:"cpm_amount" json:"cpm_amount"`
	Currency      string `form:"cpm_currency" json:"cpm_currency"`
	PayID         string `form:"cpm_payid" json:"cpm_payid"`
	PaymentDate   string `form:"cpm_payment_date" json:"cpm_payment_date"`
	PaymentTime   string `form:"cpm_payment_time" json:"cpm_payment_time"`
	ErrorMessage  string `form:"cpm_error_message" json:"cpm_error_message"`
	PaymentMethod string `form:"payment_method" json:"payment_method"`
	PhonePrefix   string `form:"cpm_phone_prefixe" json:"cpm_phone_prefixe"`
	PhoneNumber   string `form:"cel_phone_num" json:"cel_phone_num"`
	IPNAck        string `form:"cpm_ipn_ack" json:"cpm_ipn_ack"`
	CreatedAt     string `form:"created_at" json:"created_at"`
	UpdatedAt     string `form:"updated_at" json:"updated_at"`
	Result        string `form:"cpm_result" json:"cpm_result" binding:"required"`
	Designation   string `form:"cpm_designation" json:"cpm_designation"`
	Signature     string `form:"signature" json:"signature"`
}

// signedFields lists the values covered by the signature. The order is part of the wire
// contract with the gateway.
func (p WebhookPayload) signedFields() []string {
	return []string{
		p.TransID,
		p.SiteID,
		p.TransDate,
		p.Amount,
		p.Currency,
		p.PayID,
		p.PaymentDate,
		p.PaymentTime,
		p.ErrorMessage,
		p.PaymentMethod,
		p.PhonePrefix,
		p.PhoneNumber,
		p.IPNAck,
		p.CreatedAt,
		p.UpdatedAt,
		p.Result,
		p.Designation,
	}
}

// Sign computes the hex SHA-256 of the signed fields followed by the secret.
func Sign(p WebhookPayload, secret string) string {
	var b strings.Builder
	for _, f := range p.signedFields() {
		b.WriteString(f)
	}
	b.WriteString(secret)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify fails closed: a missing secret or signature never verifies.
func Verify(p WebhookPayload, secret string) bool {
	if secret == "" || p.Signature == "" {
		return false
	}
	expected := Sign(p, secret)
	provided := strings.ToLower(strings.TrimSpace(p.Signature))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

func (c *Client) VerifySignature(p WebhookPayload) bool {
	return Verify(p, c.cfg.SecretKey)
}
