// Package redis stores each record as a hash under "<namespace>:<name>:<uuid>".
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"github.com/google/uuid"

	"workloadgen/internal/workload"
)

type Config struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

type Backend struct {
	client *redis.Client
}

func New(cfg Config) *Backend {
	return &Backend{client: redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})}
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *Backend {
	return &Backend{client: client}
}

// KeyPrefix returns the key prefix for target, e.g. "db1:users:".
func KeyPrefix(t workload.Target) string {
	if t.Namespace == "" {
		return t.Name + ":"
	}
	return t.Namespace + ":" + t.Name + ":"
}

func (b *Backend) Insert(ctx context.Context, target workload.Target, rec workload.Record) (workload.ID, error) {
	id := uuid.NewString()
	fields, err := encodeFields(rec.Fields)
	if err != nil {
		return "", err
	}
	fields["_created_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if err := b.client.WithContext(ctx).HMSet(KeyPrefix(target)+id, fields).Err(); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateByID writes patch into an existing hash. A missing key is reported
// as zero modified records, never created.
func (b *Backend) UpdateByID(ctx context.Context, target workload.Target, id workload.ID, patch workload.Patch) (int64, error) {
	c := b.client.WithContext(ctx)
	key := KeyPrefix(target) + id
	n, err := c.Exists(key).Result()
	if err != nil {
		return 0, err
	}
	if n == 0 || len(patch) == 0 {
		return 0, nil
	}
	fields, err := encodeFields(patch)
	if err != nil {
		return 0, err
	}
	if err := c.HMSet(key, fields).Err(); err != nil {
		return 0, err
	}
	return 1, nil
}

func (b *Backend) DeleteByID(ctx context.Context, target workload.Target, id workload.ID) (int64, error) {
	return b.client.WithContext(ctx).Del(KeyPrefix(target) + id).Result()
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.client.WithContext(ctx).Ping().Err()
}

func (b *Backend) Close(context.Context) error {
	return b.client.Close()
}

// encodeFields stores strings as-is and everything else as JSON.
func encodeFields(in map[string]any) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(in)+1)
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("redis encode field %q: %w", k, err)
		}
		out[k] = string(b)
	}
	return out, nil
}

