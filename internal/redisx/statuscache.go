package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStatus is the read model kept per order. Version is the occurred_at of
// the event that produced it, in unix milliseconds.
type CachedStatus struct {
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	UpdatedAt     time.Time `json:"updated_at"`
	Version       int64     `json:"version"`
}

// setIfNewer refuses to replace a document written by a later event.
var setIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, doc = pcall(cjson.decode, cur)
  if ok and doc.version and tonumber(doc.version) > tonumber(ARGV[2]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

type StatusCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStatusCache(rdb redis.Cmdable) *StatusCache {
	return &StatusCache{rdb: rdb, ttl: TTLStatusCache}
}

func statusKey(orderID string) string { return fmt.Sprintf(KeyOrderStatus, orderID) }

// Put stores s unless a newer version is already cached. It reports whether s
// was written.
func (c *StatusCache) Put(ctx context.Context, s CachedStatus) (bool, error) {
	if s.Version == 0 {
		s.Version = s.UpdatedAt.UnixMilli()
	}
	b, err := json.Marshal(s)
	if err != nil {
		return false, err
	}
	n, err := setIfNewer.Run(ctx, c.rdb, []string{statusKey(s.OrderID)}, b, s.Version, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *StatusCache) Get(ctx context.Context, orderID string) (CachedStatus, bool, error) {
	raw, err := c.rdb.Get(ctx, statusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedStatus{}, false, nil
	}
	if err != nil {
		return CachedStatus{}, false, err
	}
	var s CachedStatus
	if err := json.Unmarshal(raw, &s); err != nil {
		return CachedStatus{}, false, err
	}
	return s, true, nil
}

func (c *StatusCache) Invalidate(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, statusKey(orderID)).Err()
}
