package remoteconfig

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// relayMessage is the wire shape published onto the Redis channel by a
// configuration service fronting push notifications with a message broker
// instead of direct webhook delivery.
type relayMessage struct {
	SyncToken   string `json:"sync_token"`
	EventType   string `json:"event_type"`
	ResourceURI string `json:"resource_uri"`
	MaxDelayMs  int64  `json:"max_delay_ms,omitempty"`
}

// RedisPushRelay subscribes to a Redis Pub/Sub channel and forwards each
// message into PushIntake.Process, for deployments where push notifications
// arrive via a broker rather than a direct HTTP webhook.
type RedisPushRelay struct {
	client  *redis.Client
	channel string
	intake  *PushIntake
	logger  *slog.Logger
}

// NewRedisPushRelay builds a relay bound to one Redis channel.
func NewRedisPushRelay(client *redis.Client, channel string, intake *PushIntake, logger *slog.Logger) *RedisPushRelay {
	return &RedisPushRelay{client: client, channel: channel, intake: intake, logger: logger}
}

// Run subscribes and blocks, forwarding messages until ctx is cancelled.
func (r *RedisPushRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *RedisPushRelay) handle(payload string) {
	var m relayMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		if r.logger != nil {
			r.logger.Warn("discarding malformed push relay message", "error", err)
		}
		return
	}

	n := PushNotification{
		SyncToken:   m.SyncToken,
		EventType:   m.EventType,
		ResourceURI: m.ResourceURI,
	}
	if m.MaxDelayMs > 0 {
		d := time.Duration(m.MaxDelayMs) * time.Millisecond
		n.MaxDelay = &d
	}

	if err := r.intake.Process(n, time.Now()); err != nil && r.logger != nil {
		r.logger.Warn("push relay message rejected", "error", err)
	}
}
