package broker

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const redisChannel = "campus-chat:feed"

// Redis fans envelopes out over a Redis pub/sub channel.
type Redis struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedis(client *redis.Client, log zerolog.Logger) *Redis {
	return &Redis{client: client, log: log.With().Str("broker", "redis").Logger()}
}

func (r *Redis) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, redisChannel, data).Err()
}

func (r *Redis) Subscribe(ctx context.Context, h Handler) error {
	sub := r.client.Subscribe(ctx, redisChannel)
	// Receive waits for the subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}

	go func() {
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
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.log.Warn().Err(err).Msg("dropping malformed envelope")
					continue
				}
				h(env)
			}
		}
	}()
	return nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (r *Redis) Close() error { return nil }
