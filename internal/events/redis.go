// internal/events/redis.go
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/eloledger/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list that rating events are pushed to.
const DefaultQueueName = "rating_events"

const pingTimeout = 5 * time.Second

// ConnectRedis opens a client and pings it. The caller closes the client.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Queue pushes rating events onto a Redis list for downstream consumers.
type Queue struct {
	rdb  *redis.Client
	name string
}

func NewQueue(rdb *redis.Client, name string) *Queue {
	if name == "" {
		name = DefaultQueueName
	}
	return &Queue{rdb: rdb, name: name}
}

func (q *Queue) Name() string { return q.name }

// Publish serializes ev to JSON and RPUSHes it.
func (q *Queue) Publish(ctx context.Context, ev models.RatingEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal rating event: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.name, err)
	}
	return nil
}

// ErrQueueEmpty is returned by Pop when no event arrived within the timeout.
var ErrQueueEmpty = errors.New("rating event queue empty")

// Pop blocks up to timeout for the oldest event on the queue.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (models.RatingEvent, error) {
	var ev models.RatingEvent
	res, err := q.rdb.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return ev, ErrQueueEmpty
	}
	if err != nil {
		return ev, fmt.Errorf("failed to BLPop from '%s': %w", q.name, err)
	}
	// res is [key, value]
	if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
		return ev, fmt.Errorf("malformed rating event: %w", err)
	}
	return ev, nil
}
