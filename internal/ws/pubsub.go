package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"booklend-chat-service/internal/models"
)

const roomEventsChannel = "chat:room-events"

// RedisRelay bridges room events between service instances over a Redis
// pub/sub channel.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	cancel context.CancelFunc
}

// NewRedisRelay starts the subscription loop and attaches the relay to the
// hub. Events published by any instance, this one included, are delivered to
// local subscribers when they arrive on the channel.
func NewRedisRelay(client *redis.Client, hub *Hub) *RedisRelay {
	ctx, cancel := context.WithCancel(context.Background())
	relay := &RedisRelay{client: client, hub: hub, cancel: cancel}
	hub.SetRelay(relay)

	sub := client.Subscribe(ctx, roomEventsChannel)
	go relay.listen(ctx, sub)
	return relay
}

func (r *RedisRelay) Publish(ctx context.Context, event models.RoomEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, roomEventsChannel, payload).Err()
}

func (r *RedisRelay) Close() {
	r.cancel()
}

func (r *RedisRelay) listen(ctx context.Context, sub *redis.PubSub) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var event models.RoomEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("redis relay: bad event payload: %v", err)
				continue
			}
			r.hub.DeliverLocal(event)
		}
	}
}
