package feed

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"promptroom/promptroom/utils/logging"
)

const relayChannel = "feed:events"

// RedisBridge fans feed events out across service instances over redis
// pub/sub. Locally published events also go to the channel; remote events
// are folded into the local bus. Cross-instance delivery keeps the feed's
// at-least-once, per-row-ordered-only contract.
type RedisBridge struct {
	bus    *Bus
	rdb    *redis.Client
	origin string
	cancel context.CancelFunc
}

type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

func NewRedisBridge(ctx context.Context, bus *Bus, redisURL string) (*RedisBridge, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b := &RedisBridge{
		bus:    bus,
		rdb:    rdb,
		origin: uuid.NewString(),
		cancel: cancel,
	}
	go b.consume(runCtx)
	return b, nil
}

// Publish delivers locally and relays to the other instances.
func (b *RedisBridge) Publish(ev Event) {
	b.bus.Publish(ev)

	data, err := json.Marshal(envelope{Origin: b.origin, Event: ev})
	if err != nil {
		logging.ErrorLogger.Error("feed relay marshal error", zap.Error(err))
		return
	}
	if err := b.rdb.Publish(context.Background(), relayChannel, data).Err(); err != nil {
		logging.ErrorLogger.Error("feed relay publish error", zap.Error(err))
	}
}

func (b *RedisBridge) consume(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, relayChannel)
	defer sub.Close()

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.ErrorLogger.Error("feed relay receive error", zap.Error(err))
			return
		}
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			logging.ErrorLogger.Error("feed relay decode error", zap.Error(err))
			continue
		}
		if env.Origin == b.origin {
			continue
		}
		b.bus.Publish(env.Event)
	}
}

func (b *RedisBridge) Close() {
	b.cancel()
	b.rdb.Close()
}
