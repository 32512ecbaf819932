package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedup remembers processed deliveries of one service for TTLDedup.
type Dedup struct {
	rdb     redis.Cmdable
	service string
	ttl     time.Duration
}

func NewDedup(rdb redis.Cmdable, service string) *Dedup {
	return &Dedup{rdb: rdb, service: service, ttl: TTLDedup}
}

func (d *Dedup) key(id string) string { return fmt.Sprintf(KeyDedup, d.service, id) }

func (d *Dedup) Seen(ctx context.Context, id string) (bool, error) {
	return Exists(ctx, d.rdb, d.key(id))
}

func (d *Dedup) Remember(ctx context.Context, id string) error {
	return d.rdb.Set(ctx, d.key(id), "1", d.ttl).Err()
}
