package upstream

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

// Pricing prices the user's current cart.
type Pricing struct{ c client }

func NewPricing(log *zap.Logger, baseURL string, timeout time.Duration) *Pricing {
	return &Pricing{c: newClient(log, baseURL, timeout)}
}

type quoteRequest struct {
	UserID     string `json:"userId"`
	Currency   string `json:"currency"`
	CouponCode string `json:"couponCode,omitempty"`
}

func (p *Pricing) Quote(ctx context.Context, userID, currency, couponCode string) (orders.Quote, error) {
	var q orders.Quote
	err := p.c.postJSON(ctx, "/quotes", quoteRequest{UserID: userID, Currency: currency, CouponCode: couponCode}, &q)
	if err != nil {
		return orders.Quote{}, err
	}
	if q.Currency == "" {
		q.Currency = currency
	}
	return q, nil
}
