package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// BusChannel carries queue mutation events between API instances, so a
// mutation handled anywhere reaches every connected hub.
const BusChannel = "clinicq:queue:events"

type RedisPublisher struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRedisPublisher(rdb *redis.Client, log zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{
		rdb: rdb,
		log: log.With().Str("comp", "bus").Logger(),
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev QueueEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.rdb.Publish(ctx, BusChannel, payload).Err()
}
