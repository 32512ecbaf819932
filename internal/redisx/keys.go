package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{user_id}:{Idempotency-Key} -> stored response
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Order status cache: order_status:{order_id} -> {"status": "...", "version": ...}
	KeyOrderStatus = "order_status:%s"

	// Dedup of processed deliveries: dedup:{service}:{id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLInFlight    = 30 * time.Second
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
