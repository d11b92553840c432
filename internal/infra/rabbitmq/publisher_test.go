package rabbitmq

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	body, err := encode(KeyPaymentCompleted, map[string]any{"orderId": 7, "transactionId": "TXN-1001"})
	require.NoError(t, err)

	var msg struct {
		Pattern string         `json:"pattern"`
		Data    map[string]any `json:"data"`
		ID      string         `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "payment.completed", msg.Pattern)
	assert.Equal(t, float64(7), msg.Data["orderId"])
	assert.Equal(t, "TXN-1001", msg.Data["transactionId"])
	assert.Len(t, msg.ID, 36)
}

func TestEncode_Unmarshalable(t *testing.T) {
	_, err := encode(KeyOrderCreated, make(chan int))
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard{}.Publish(context.Background(), KeyOrderCreated, nil))
}
