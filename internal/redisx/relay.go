package redisx

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"junqo-chat/internal/ws"
)

const DefaultRelayChannel = "chat:relay"

// Deliverer replays relayed frames to local sockets.
type Deliverer interface {
	DeliverRemote(env ws.RelayEnvelope) int
}

// Relay fans hub broadcasts out over Redis pub/sub.
type Relay struct {
	rdb     *redis.Client
	channel string
}

func NewRelay(rdb *redis.Client, channel string) *Relay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &Relay{rdb: rdb, channel: channel}
}

func (r *Relay) Publish(ctx context.Context, env ws.RelayEnvelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, body).Err()
}

// Run subscribes to the relay channel and delivers envelopes until ctx is done.
// ready, if non-nil, is closed once the subscription is confirmed.
func (r *Relay) Run(ctx context.Context, hub Deliverer, ready chan<- struct{}) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env ws.RelayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("relay decode failed: channel=%s err=%v", msg.Channel, err)
				continue
			}
			hub.DeliverRemote(env)
		}
	}
}

var _ ws.Relay = (*Relay)(nil)
var _ ws.Presence = (*Presence)(nil)
