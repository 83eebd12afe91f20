package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cuemby/scaled/pkg/types"
)

// Well-known keys shared with the worker fleet
const (
	TimeoutQueueName = "scaler_timeout_queue"
	StatusTableName  = "service_state"

	serviceQueuePrefix = "service-queue-"

	// StatusTableTTL bounds how long the status table outlives its last write
	StatusTableTTL = 30 * time.Minute
)

// TimeoutMessage asks the scaler to kill one timed-out container
type TimeoutMessage struct {
	Service   string `json:"service"`
	Container string `json:"container"`
}

// StatusEntry is one host's most recent self-report
type StatusEntry struct {
	Service string          `json:"service"`
	State   types.HostState `json:"state"`
	Expiry  float64         `json:"expiry"`
}

// NewClient opens a redis client for one of the KV backends
func NewClient(addr string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, DB: db})
}

// NamedQueue is a FIFO queue of JSON messages backed by a redis list
type NamedQueue struct {
	rdb  *redis.Client
	name string
}

// NewNamedQueue returns a handle on the named queue
func NewNamedQueue(rdb *redis.Client, name string) *NamedQueue {
	return &NamedQueue{rdb: rdb, name: name}
}

// Push appends a message to the queue
func (q *NamedQueue) Push(ctx context.Context, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode queue message: %w", err)
	}
	return q.rdb.RPush(ctx, q.name, data).Err()
}

// Pop removes the oldest message, blocking up to timeout. A nil result
// with nil error means the wait timed out with nothing available.
func (q *NamedQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from %s: %w", q.name, err)
	}
	// BLPOP returns [key, value]
	return []byte(res[1]), nil
}

// Length returns the number of queued messages
func (q *NamedQueue) Length(ctx context.Context) (int, error) {
	n, err := q.rdb.LLen(ctx, q.name).Result()
	return int(n), err
}

// PriorityQueue is a service work queue backed by a redis sorted set
type PriorityQueue struct {
	rdb  *redis.Client
	name string
}

// ServiceQueue returns the work queue handle for a service
func ServiceQueue(rdb *redis.Client, service string) *PriorityQueue {
	return &PriorityQueue{rdb: rdb, name: serviceQueuePrefix + service}
}

// Push adds an item with the given priority
func (q *PriorityQueue) Push(ctx context.Context, priority float64, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode queue message: %w", err)
	}
	return q.rdb.ZAdd(ctx, q.name, redis.Z{Score: priority, Member: data}).Err()
}

// Length returns the backlog depth of the queue
func (q *PriorityQueue) Length(ctx context.Context) (int, error) {
	n, err := q.rdb.ZCard(ctx, q.name).Result()
	return int(n), err
}

// ExpiringHash is a redis hash whose key expires a fixed time after the
// last write. Entry-level deadlines live inside the stored records.
type ExpiringHash struct {
	rdb  *redis.Client
	name string
	ttl  time.Duration
}

// NewStatusTable returns the shared host status table
func NewStatusTable(rdb *redis.Client) *ExpiringHash {
	return &ExpiringHash{rdb: rdb, name: StatusTableName, ttl: StatusTableTTL}
}

// Set stores one host entry and refreshes the table TTL
func (h *ExpiringHash) Set(ctx context.Context, host string, entry StatusEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode status entry: %w", err)
	}
	pipe := h.rdb.TxPipeline()
	pipe.HSet(ctx, h.name, host, data)
	pipe.Expire(ctx, h.name, h.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Items returns a snapshot of every host entry
func (h *ExpiringHash) Items(ctx context.Context) (map[string]StatusEntry, error) {
	raw, err := h.rdb.HGetAll(ctx, h.name).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", h.name, err)
	}
	items := make(map[string]StatusEntry, len(raw))
	for host, data := range raw {
		var entry StatusEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			// Skip records we can't decode, they will age out with the key
			continue
		}
		items[host] = entry
	}
	return items, nil
}

// Keys lists the hosts present in the table
func (h *ExpiringHash) Keys(ctx context.Context) ([]string, error) {
	return h.rdb.HKeys(ctx, h.name).Result()
}

// Pop removes one host entry
func (h *ExpiringHash) Pop(ctx context.Context, host string) error {
	return h.rdb.HDel(ctx, h.name, host).Err()
}
