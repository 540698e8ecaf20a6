// Package cache keeps the listTree payload in Redis between writes.
//
// Every write bumps a generation counter. A snapshot read from the database is
// only stored if the generation is still the one observed before the read, so a
// slow reader cannot put back a tree that predates a committed write.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"arborescence/internal/model"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 10 * time.Minute

type SnapshotCache struct {
	client *redis.Client
	key    string
	genKey string
	ttl    time.Duration
}

// New connects to redisURL (redis://host:port/db) and checks the connection.
func New(redisURL string) (*SnapshotCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewWithClient(client), nil
}

func NewWithClient(client *redis.Client) *SnapshotCache {
	return &SnapshotCache{client: client, key: "arbo:tree", genKey: "arbo:tree:gen", ttl: DefaultTTL}
}

// WithNamespace scopes the cache key (one store per namespace).
func (c *SnapshotCache) WithNamespace(ns string) *SnapshotCache {
	if ns != "" {
		c.key = "arbo:" + ns + ":tree"
		c.genKey = c.key + ":gen"
	}
	return c
}

func (c *SnapshotCache) WithTTL(ttl time.Duration) *SnapshotCache {
	if ttl > 0 {
		c.ttl = ttl
	}
	return c
}

// Get returns the cached snapshot; ok is false on a miss.
func (c *SnapshotCache) Get(ctx context.Context) (nodes []model.Node, ok bool, err error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read tree cache: %w", err)
	}
	if err := json.Unmarshal(raw, &nodes); err != nil {
		// A corrupt entry is a miss; drop it.
		_ = c.client.Del(ctx, c.key).Err()
		return nil, false, nil
	}
	return nodes, true, nil
}

// Generation is the write counter to pass to Set after reading the database.
func (c *SnapshotCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read tree generation: %w", err)
	}
	return gen, nil
}

// Set stores nodes if no write happened since gen was read. stored is false
// when the snapshot was stale and dropped.
func (c *SnapshotCache) Set(ctx context.Context, gen int64, nodes []model.Node) (stored bool, err error) {
	if nodes == nil {
		nodes = []model.Node{}
	}
	b, err := json.Marshal(nodes)
	if err != nil {
		return false, fmt.Errorf("marshal tree: %w", err)
	}
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, c.genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key, b, c.ttl)
			return nil
		})
		return err
	}, c.genKey)
	if errors.Is(err, errStale) || errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("write tree cache: %w", err)
	}
	return true, nil
}

var errStale = errors.New("tree changed since read")

// Invalidate bumps the generation and drops the snapshot.
func (c *SnapshotCache) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey)
		pipe.Del(ctx, c.key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate tree cache: %w", err)
	}
	return nil
}

func (c *SnapshotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *SnapshotCache) Close() error {
	return c.client.Close()
}
