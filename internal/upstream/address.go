package upstream

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

// Addresses resolves a user's saved address. The service marks the address used
// as a side effect.
type Addresses struct{ c client }

func NewAddresses(log *zap.Logger, baseURL string, timeout time.Duration) *Addresses {
	return &Addresses{c: newClient(log, baseURL, timeout)}
}

func (a *Addresses) Resolve(ctx context.Context, userID, addressID string) (orders.Address, error) {
	var addr orders.Address
	err := a.c.postJSON(ctx, "/addresses/"+url.PathEscape(addressID)+"/resolve", map[string]string{"userId": userID}, &addr)
	if err != nil {
		return orders.Address{}, err
	}
	if addr.ID == "" {
		addr.ID = addressID
	}
	return addr, nil
}
