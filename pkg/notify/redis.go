package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "negotiations:"

// RedisPublisher publishes events on a per-room channel so that every API
// instance can relay them to its own websocket clients
type RedisPublisher struct {
	Client *redis.Client
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.Client.Publish(ctx, channelPrefix+ev.RoomID, data).Err()
}

// Relay forwards every room channel into the local hub until ctx is done
func Relay(ctx context.Context, client *redis.Client, hub *Hub, logger *slog.Logger) error {
	sub := client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	// wait for the subscription confirmation so no early event is lost
	if _, err := sub.Receive(ctx); err != nil {
		return err
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
			roomID := strings.TrimPrefix(msg.Channel, channelPrefix)
			if logger != nil {
				logger.Debug("relaying negotiation event", "room", roomID)
			}
			hub.Broadcast(roomID, []byte(msg.Payload))
		}
	}
}
