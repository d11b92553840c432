package rabbitmq

import "context"

// Routing keys of the domain events published on the topic exchange.
const (
	KeyOrderCreated     = "order.created"
	KeyPaymentCompleted = "payment.completed"
	KeyPaymentFailed    = "payment.failed"
	// KeyPaymentRefund is published when money arrives for an order that was cancelled.
	KeyPaymentRefund = "payment.refund_required"
)

type PublisherInterface interface {
	Publish(ctx context.Context, routingKey string, data any) error
}

var (
	_ PublisherInterface = (*Publisher)(nil)
	_ PublisherInterface = Discard{}
)

// Discard drops every event. It stands in when no broker is configured.
type Discard struct{}

func (Discard) Publish(ctx context.Context, routingKey string, data any) error {
	return nil
}
