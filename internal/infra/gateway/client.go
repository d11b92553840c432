package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"marketplace-service/internal/config"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	codeCreated = "201"
	codeSuccess = "00"
)

type Status string

const (
	StatusAccepted Status = "ACCEPTED"
	StatusRefused  Status = "REFUSED"
	StatusPending  Status = "PENDING"
	StatusUnknown  Status = "UNKNOWN"
)

type Customer struct {
	ID      string
	Name    string
	Surname string
	Email   string
	Phone   string
	Address string
	City    string
	Country string
	State   string
	ZipCode string
}

type InitiateRequest struct {
	TransactionID string
	Amount        int64
	Currency      string
	Description   string
	Customer      Customer
	Metadata      map[string]any
}

type InitiateResult struct {
	PaymentURL   string `json:"payment_url"`
	PaymentToken string `json:"payment_token"`
}

type StatusResult struct {
	Status        Status          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	PaymentDate   string          `json:"payment_date"`
}

type apiResponse struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to a CinetPay-compatible checkout API.
type Client struct {
	cfg        config.CinetPay
	httpClient *http.Client
}

func NewClient(cfg config.CinetPay) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) SiteID() string {
	return c.cfg.SiteID
}

// NewTransactionID returns a fresh id of the form TXN-<unix ms>-<random>.
func NewTransactionID() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:10]
	return fmt.Sprintf("TXN-%d-%s", time.Now().UnixMilli(), suffix)
}

func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	currency := req.Currency
	if currency == "" {
		currency = c.cfg.Currency
	}
	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode metadata: %w", err)
	}

	body := map[string]any{
		"apikey":                c.cfg.APIKey,
		"site_id":               c.cfg.SiteID,
		"transaction_id":        req.TransactionID,
		"amount":                req.Amount,
		"currency":              currency,
		"description":           req.Description,
		"notify_url":            c.cfg.NotifyURL,
		"return_url":            c.cfg.ReturnURL + "?transaction_id=" + req.TransactionID,
		"channels":              c.cfg.Channels,
		"lang":                  c.cfg.Lang,
		"metadata":              string(metadata),
		"customer_id":           req.Customer.ID,
		"customer_name":         req.Customer.Name,
		"customer_surname":      req.Customer.Surname,
		"customer_email":        req.Customer.Email,
		"customer_phone_number": req.Customer.Phone,
		"customer_address":      req.Customer.Address,
		"customer_city":         req.Customer.City,
		"customer_country":      req.Customer.Country,
		"customer_state":        req.Customer.State,
		"customer_zip_code":     req.Customer.ZipCode,
	}

	resp, err := c.post(ctx, "/payment", body)
	if err != nil {
		return nil, err
	}
	if resp.Code != codeCreated {
		return nil, fmt.Errorf("%w: code %s: %s", ErrGatewayRejected, resp.Code, resp.Message)
	}

	var out InitiateResult
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, fmt.Errorf("%w: decode payment data: %v", ErrGatewayRejected, err)
	}
	if out.PaymentURL == "" {
		return nil, fmt.Errorf("%w: empty payment url", ErrGatewayRejected)
	}
	return &out, nil
}

func (c *Client) CheckStatus(ctx context.Context, transactionID string) (*StatusResult, error) {
	body := map[string]any{
		"apikey":         c.cfg.APIKey,
		"site_id":        c.cfg.SiteID,
		"transaction_id": transactionID,
	}

	resp, err := c.post(ctx, "/payment/check", body)
	if err != nil {
		return nil, err
	}

	var out StatusResult
	if len(resp.Data) > 0 && string(resp.Data) != "null" {
		if err := json.Unmarshal(resp.Data, &out); err != nil {
			return nil, fmt.Errorf("%w: decode status data: %v", ErrGatewayRejected, err)
		}
	}

	switch resp.Code {
	case codeSuccess:
		out.Status = normalizeStatus(out.Status)
	case "662", "623":
		out.Status = StatusPending
	case "600", "627":
		out.Status = StatusRefused
	default:
		if out.Status == "" {
			return nil, fmt.Errorf("%w: code %s: %s", ErrGatewayRejected, resp.Code, resp.Message)
		}
		out.Status = normalizeStatus(out.Status)
	}
	return &out, nil
}

func normalizeStatus(s Status) Status {
	switch strings.ToUpper(string(s)) {
	case "ACCEPTED":
		return StatusAccepted
	case "REFUSED", "CANCELED", "CANCELLED", "FAILED":
		return StatusRefused
	case "PENDING", "WAITING_FOR_CUSTOMER", "WAITING_CUSTOMER_PAYMENT":
		return StatusPending
	}
	return StatusUnknown
}

// post returns ErrGatewayUnavailable for transport failures and 5xx answers, and
// ErrGatewayRejected for any other non-2xx answer or an unreadable body.
func (c *Client) post(ctx context.Context, path string, body any) (*apiResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "marketplace-service/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: gateway returned status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%w: gateway returned status %d", ErrGatewayRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: decode response: %v", ErrGatewayRejected, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d code %s: %s", ErrGatewayRejected, resp.StatusCode, out.Code, out.Message)
	}
	return &out, nil
}
