package reservation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type stubPricer struct {
	quote orders.Quote
	err   error
	calls int
}

func (p *stubPricer) Quote(context.Context, string, string, string) (orders.Quote, error) {
	p.calls++
	return p.quote, p.err
}

type stubAddresses struct {
	err error
}

func (a stubAddresses) Resolve(_ context.Context, userID, addressID string) (orders.Address, error) {
	if a.err != nil {
		return orders.Address{}, a.err
	}
	return orders.Address{ID: addressID, Recipient: userID, City: "Springfield"}, nil
}

func TestConfirmUsesQuoteAndResolvedAddress(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "A", 5)
	pricer := &stubPricer{quote: quote(line("A", 2, "4.50"))}
	co := NewCheckout(f.coord, pricer, stubAddresses{})

	placed, err := co.Confirm(context.Background(), ConfirmRequest{
		UserID: "user-1", AddressID: "addr-9", Currency: "USD", PaymentMethod: orders.PaymentCOD,
	})
	require.NoError(t, err)
	assert.Equal(t, "addr-9", placed.Order.ShippingAddress.ID)
	assert.Equal(t, "9.00", placed.Order.Total.StringFixed(2))
	assert.Equal(t, 1, pricer.calls)
}

func TestConfirmUpstreamFailureTouchesNothing(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "A", 5)
	upstream := fmt.Errorf("address service: %w", orders.ErrUpstream)
	co := NewCheckout(f.coord, &stubPricer{quote: quote(line("A", 1, "1"))}, stubAddresses{err: upstream})

	_, err := co.Confirm(context.Background(), ConfirmRequest{UserID: "u", AddressID: "a", PaymentMethod: orders.PaymentOnline})
	assert.True(t, errors.Is(err, orders.ErrUpstream))
	assert.Equal(t, 0, f.store.OrderCount())
	assert.Equal(t, int64(0), f.counter(t, "A").Reserved)
}

func TestConfirmValidatesBeforeCallingUpstream(t *testing.T) {
	f := newFixture(t)
	pricer := &stubPricer{}
	co := NewCheckout(f.coord, pricer, stubAddresses{})

	_, err := co.Confirm(context.Background(), ConfirmRequest{UserID: "u", PaymentMethod: orders.PaymentCOD})
	assert.ErrorIs(t, err, orders.ErrInvalidArgument)
	_, err = co.Confirm(context.Background(), ConfirmRequest{UserID: "u", AddressID: "a", PaymentMethod: "BARTER"})
	assert.ErrorIs(t, err, orders.ErrInvalidArgument)
	assert.Equal(t, 0, pricer.calls)
}

func TestPreviewPricesQuote(t *testing.T) {
	f := newFixture(t)
	co := NewCheckout(f.coord, &stubPricer{quote: quote(line("A", 3, "2.00"))}, stubAddresses{})

	p, err := co.Preview(context.Background(), "u", "USD", "")
	require.NoError(t, err)
	assert.Equal(t, "6.00", p.Total.StringFixed(2))
	assert.Len(t, p.Items, 1)
}
