package gateway

import (
	"context"
	"errors"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected the request")
)

type Gateway interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	CheckStatus(ctx context.Context, transactionID string) (*StatusResult, error)
	VerifySignature(p WebhookPayload) bool
	SiteID() string
}

var _ Gateway = (*Client)(nil)
