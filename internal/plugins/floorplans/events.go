package floorplans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/sitewalk/sitewalk/internal/annotation"
)

// eventChannelPrefix is the Redis Pub/Sub channel prefix for floorplan
// change events.
const eventChannelPrefix = "floorplan-events:"

// EventBus fans floorplan change events out to every server instance.
type EventBus interface {
	Publish(ctx context.Context, ev annotation.ChangeEvent)
	Subscribe(ctx context.Context, floorplanID string) (<-chan annotation.ChangeEvent, error)
}

// redisEventBus publishes events as JSON on one channel per floorplan.
type redisEventBus struct {
	redis *redis.Client
}

// NewEventBus creates a Redis Pub/Sub event bus. A nil client yields a bus
// that drops events and refuses subscriptions.
func NewEventBus(rdb *redis.Client) EventBus {
	if rdb == nil {
		return noBus{}
	}
	return &redisEventBus{redis: rdb}
}

func eventChannel(floorplanID string) string {
	return eventChannelPrefix + floorplanID
}

// Publish sends ev. Failures are logged; viewers fall back to refetching on
// their next navigation.
func (b *redisEventBus) Publish(ctx context.Context, ev annotation.ChangeEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := b.redis.Publish(ctx, eventChannel(ev.FloorplanID), data).Err(); err != nil {
		slog.Warn("publishing floorplan event failed",
			slog.String("floorplan_id", ev.FloorplanID),
			slog.String("kind", string(ev.Kind)),
			slog.Any("error", err),
		)
	}
}

// Subscribe streams events of one floorplan until ctx is done. The
// subscription is confirmed before returning, so events published after
// Subscribe returns are delivered.
func (b *redisEventBus) Subscribe(ctx context.Context, floorplanID string) (<-chan annotation.ChangeEvent, error) {
	ps := b.redis.Subscribe(ctx, eventChannel(floorplanID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", floorplanID, err)
	}

	out := make(chan annotation.ChangeEvent, 16)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev annotation.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					slog.Warn("dropping malformed floorplan event", slog.Any("error", err))
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// ErrStreamUnavailable is returned by Subscribe when no broker is
// configured.
var ErrStreamUnavailable = errors.New("event stream unavailable")

type noBus struct{}

func (noBus) Publish(context.Context, annotation.ChangeEvent) {}

func (noBus) Subscribe(context.Context, string) (<-chan annotation.ChangeEvent, error) {
	return nil, ErrStreamUnavailable
}
