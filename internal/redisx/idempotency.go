package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrInFlight means another request with the same key has not finished yet.
var ErrInFlight = errors.New("request with this idempotency key is in flight")

// StoredResponse is the answer replayed for a repeated key. Status 0 marks a
// claim whose request is still running.
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body,omitempty"`
}

type Idempotency struct {
	rdb redis.Cmdable
}

func NewIdempotency(rdb redis.Cmdable) *Idempotency {
	return &Idempotency{rdb: rdb}
}

func checkoutKey(userID, key string) string {
	return fmt.Sprintf(KeyIdemCheckout, userID, key)
}

// Begin claims key for userID. A nil response means the caller owns the claim
// and must Complete or Abandon it.
func (s *Idempotency) Begin(ctx context.Context, userID, key string) (*StoredResponse, error) {
	k := checkoutKey(userID, key)
	ok, err := s.rdb.SetNX(ctx, k, `{"status":0}`, TTLInFlight).Result()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}
	raw, err := s.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// The claim expired between SETNX and GET; try once more.
		return s.Begin(ctx, userID, key)
	}
	if err != nil {
		return nil, err
	}
	var resp StoredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("stored response for %s: %w", k, err)
	}
	if resp.Status == 0 {
		return nil, ErrInFlight
	}
	return &resp, nil
}

func (s *Idempotency) Complete(ctx context.Context, userID, key string, resp StoredResponse) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, checkoutKey(userID, key), b, TTLIdempotency).Err()
}

// Abandon drops the claim so the client may retry with the same key.
func (s *Idempotency) Abandon(ctx context.Context, userID, key string) error {
	return s.rdb.Del(ctx, checkoutKey(userID, key)).Err()
}
