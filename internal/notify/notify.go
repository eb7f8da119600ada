package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gerrot/api/internal/apperr"
	"github.com/gerrot/api/internal/model"
)

const channelPrefix = "notifications:"

func channelName(userID string) string {
	return channelPrefix + userID
}

// Channel delivers job outcomes to the requesting user. Delivery is best
// effort; callers log and drop errors.
type Channel interface {
	Publish(ctx context.Context, userID string, n model.Notification) error
}

// RedisChannel publishes notifications on a per-user pub/sub channel so any
// API instance holding the user's socket can forward them.
type RedisChannel struct {
	redis *redis.Client
}

func NewRedisChannel(redisClient *redis.Client) *RedisChannel {
	return &RedisChannel{redis: redisClient}
}

func (c *RedisChannel) Publish(ctx context.Context, userID string, n model.Notification) error {
	if userID == "" {
		return apperr.New(apperr.CodeNotificationFailure, "notify.publish", "no recipient")
	}
	data, err := json.Marshal(n)
	if err != nil {
		return apperr.WrapWithCode(err, apperr.CodeNotificationFailure, "notify.publish", "could not encode notification")
	}
	if err := c.redis.Publish(ctx, channelName(userID), data).Err(); err != nil {
		return apperr.WrapWithCode(err, apperr.CodeNotificationFailure, "notify.publish", "could not publish notification")
	}
	return nil
}

// Sink receives relayed notifications.
type Sink interface {
	Deliver(userID string, n model.Notification)
}

// Relay forwards every published notification to a local Sink.
type Relay struct {
	redis *redis.Client
	sink  Sink
	log   zerolog.Logger
}

func NewRelay(redisClient *redis.Client, sink Sink, log zerolog.Logger) *Relay {
	return &Relay{
		redis: redisClient,
		sink:  sink,
		log:   log.With().Str("component", "notify_relay").Logger(),
	}
}

// Run blocks until ctx is cancelled. The subscription reconnects on its own
// when Redis goes away.
func (r *Relay) Run(ctx context.Context) {
	sub := r.redis.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.forward(msg)
		}
	}
}

func (r *Relay) forward(msg *redis.Message) {
	userID := strings.TrimPrefix(msg.Channel, channelPrefix)
	var n model.Notification
	if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
		r.log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed notification")
		return
	}
	r.sink.Deliver(userID, n)
}
