package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type relayMessage struct {
	Origin  string          `json:"origin"`
	UserID  uint64          `json:"userId"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// RedisRelay lets several instances share pushes. Events for users not connected to this
// instance are published on a Redis channel; Run delivers events from other instances to
// local connections.
type RedisRelay struct {
	local   *Hub
	rdb     *redis.Client
	channel string
	origin  string
}

var _ Registry = (*RedisRelay)(nil)

func NewRedisRelay(local *Hub, rdb *redis.Client, channel string) *RedisRelay {
	return &RedisRelay{
		local:   local,
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
	}
}

func (r *RedisRelay) Register(userID uint64, c Conn)   { r.local.Register(userID, c) }
func (r *RedisRelay) Unregister(userID uint64, c Conn) { r.local.Unregister(userID, c) }

// Send reports true when the event was written locally or handed to the relay channel.
func (r *RedisRelay) Send(userID uint64, event string, payload any) bool {
	if r.local.Send(userID, event, payload) {
		return true
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("relay: encode payload for user %d: %v", userID, err)
		return false
	}
	msg, err := json.Marshal(relayMessage{Origin: r.origin, UserID: userID, Event: event, Payload: raw})
	if err != nil {
		log.Printf("relay: encode message: %v", err)
		return false
	}
	if err := r.rdb.Publish(context.Background(), r.channel, msg).Err(); err != nil {
		log.Printf("relay: publish to %s: %v", r.channel, err)
		return false
	}
	return true
}

// Run subscribes to the relay channel until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	log.Printf("relay: subscribed to %s", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(m.Payload)
		}
	}
}

func (r *RedisRelay) deliver(raw string) bool {
	var msg relayMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		log.Printf("relay: bad message: %v", err)
		return false
	}
	if msg.Origin == r.origin || msg.UserID == 0 {
		return false
	}
	return r.local.Send(msg.UserID, msg.Event, msg.Payload)
}
