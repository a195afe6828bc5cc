package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	redisKeyPrefix     = "bubbletactics:"
	redisChangeChannel = "bubbletactics:changes"
	redisScanBatch     = 200
	redisTxMaxRetries  = 16
)

// Redis is a Store backed by a shared Redis instance. Every leaf of the
// document tree lives at its full path key; change notifications travel
// over a single pub/sub channel carrying the mutated path, and each
// subscriber re-reads its own snapshot. This is what lets independent
// client processes coordinate with no server of their own.
type Redis struct {
	rdb *redis.Client
	log *zap.SugaredLogger
}

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client, log *zap.SugaredLogger) *Redis {
	return &Redis{rdb: rdb, log: log}
}

func redisKey(path string) string { return redisKeyPrefix + path }

func encodeLeaf(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// flattenValue turns a possibly nested map into leaf writes relative to path.
func flattenValue(path string, value interface{}, out map[string]string) {
	if fields, ok := value.(map[string]interface{}); ok {
		for key, v := range fields {
			flattenValue(path+"/"+key, v, out)
		}
		return
	}
	out[path] = encodeLeaf(value)
}

func (r *Redis) scanSubtree(ctx context.Context, path string) ([]string, error) {
	var keys []string
	var cursor uint64
	match := redisKey(path) + "/*"
	for {
		batch, next, err := r.rdb.Scan(ctx, cursor, match, redisScanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", ErrUnavailable, path, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Get reads the leaf at path, or reconstructs the subtree below it.
func (r *Redis) Get(ctx context.Context, path string) (Snapshot, error) {
	value, err := r.rdb.Get(ctx, redisKey(path)).Result()
	if err == nil {
		return Snapshot{Exists: true, Value: value}, nil
	}
	if err != redis.Nil {
		return Snapshot{}, fmt.Errorf("%w: get %s: %v", ErrUnavailable, path, err)
	}

	keys, err := r.scanSubtree(ctx, path)
	if err != nil {
		return Snapshot{}, err
	}
	if len(keys) == 0 {
		return Snapshot{}, nil
	}

	root := Snapshot{Exists: true, Children: make(map[string]Snapshot)}
	prefixLen := len(redisKey(path)) + 1
	for _, key := range keys {
		leaf, err := r.rdb.Get(ctx, key).Result()
		if err == redis.Nil {
			continue // deleted between scan and read
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
		}
		insertLeaf(&root, splitPath(key[prefixLen:]), leaf)
	}
	return root, nil
}

func insertLeaf(node *Snapshot, segments []string, value string) {
	if len(segments) == 0 {
		node.Value = value
		return
	}
	if node.Children == nil {
		node.Children = make(map[string]Snapshot)
	}
	child, ok := node.Children[segments[0]]
	if !ok {
		child = Snapshot{Exists: true}
	}
	insertLeaf(&child, segments[1:], value)
	node.Children[segments[0]] = child
}

// Set replaces the subtree at path, then announces the change.
func (r *Redis) Set(ctx context.Context, path string, value interface{}) error {
	stale, err := r.scanSubtree(ctx, path)
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(stale) > 0 {
			pipe.Del(ctx, stale...)
		}
		pipe.Del(ctx, redisKey(path))
		if value != nil {
			leaves := make(map[string]string)
			flattenValue(path, value, leaves)
			for leafPath, leafValue := range leaves {
				pipe.Set(ctx, redisKey(leafPath), leafValue, 0)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, path, err)
	}
	return r.announce(ctx, path)
}

// Update merge-writes fields under path without touching siblings.
func (r *Redis) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range fields {
			fieldPath := path + "/" + key
			if value == nil {
				pipe.Del(ctx, redisKey(fieldPath))
				continue
			}
			leaves := make(map[string]string)
			flattenValue(fieldPath, value, leaves)
			for leafPath, leafValue := range leaves {
				pipe.Set(ctx, redisKey(leafPath), leafValue, 0)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: update %s: %v", ErrUnavailable, path, err)
	}
	return r.announce(ctx, path)
}

// Push returns a fresh globally-unique child key without writing.
func (r *Redis) Push(_ context.Context, _ string) (string, error) {
	return uuid.NewString(), nil
}

// Transaction runs fn against the leaf at path under optimistic locking
// and retries until the write commits without a conflicting writer.
func (r *Redis) Transaction(ctx context.Context, path string, fn TransactionFunc) error {
	key := redisKey(path)
	for attempt := 0; attempt < redisTxMaxRetries; attempt++ {
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			var current interface{}
			value, err := tx.Get(ctx, key).Result()
			switch {
			case err == redis.Nil:
				current = nil
			case err != nil:
				return err
			default:
				current = value
			}

			next, err := fn(current)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if next == nil {
					pipe.Del(ctx, key)
					return nil
				}
				pipe.Set(ctx, key, encodeLeaf(next), 0)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue // concurrent writer, take another pass
		}
		if err != nil {
			return fmt.Errorf("%w: transaction %s: %v", ErrUnavailable, path, err)
		}
		return r.announce(ctx, path)
	}
	return fmt.Errorf("%w: transaction %s: retries exhausted", ErrUnavailable, path)
}

// Subscribe listens for overlapping changes announced by any client.
func (r *Redis) Subscribe(path string, fn ChangeFunc) (*Subscription, error) {
	pubsub := r.rdb.Subscribe(context.Background(), redisChangeChannel)
	if _, err := pubsub.Receive(context.Background()); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %v", ErrUnavailable, path, err)
	}

	sub := newSubscription(path, fn, r.log, func() { pubsub.Close() })

	go func() {
		for msg := range pubsub.Channel() {
			if !pathsOverlap(path, msg.Payload) {
				continue
			}
			snap, err := r.Get(context.Background(), path)
			if err != nil {
				r.log.Warnw("failed to read changed path", "path", path, "error", err)
				continue
			}
			sub.deliver(snap)
		}
	}()

	snap, err := r.Get(context.Background(), path)
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	sub.deliver(snap)
	return sub, nil
}

func (r *Redis) announce(ctx context.Context, path string) error {
	if err := r.rdb.Publish(ctx, redisChangeChannel, path).Err(); err != nil {
		return fmt.Errorf("%w: announce %s: %v", ErrUnavailable, path, err)
	}
	return nil
}
