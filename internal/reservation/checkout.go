package reservation

import (
	"context"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

// Pricer prices the caller's cart.
type Pricer interface {
	Quote(ctx context.Context, userID, currency, couponCode string) (orders.Quote, error)
}

// AddressBook resolves an address the user owns and marks it used.
type AddressBook interface {
	Resolve(ctx context.Context, userID, addressID string) (orders.Address, error)
}

// Checkout talks to the pricing and address collaborators before any transaction
// opens, then hands the priced cart to the coordinator.
type Checkout struct {
	coord     *Coordinator
	pricer    Pricer
	addresses AddressBook
}

func NewCheckout(coord *Coordinator, pricer Pricer, addresses AddressBook) *Checkout {
	return &Checkout{coord: coord, pricer: pricer, addresses: addresses}
}

type ConfirmRequest struct {
	UserID          string
	AddressID       string
	Currency        string
	PaymentMethod   orders.PaymentMethod
	PaymentProvider string
	CouponCode      string
}

func (s *Checkout) Preview(ctx context.Context, userID, currency, couponCode string) (orders.Priced, error) {
	if userID == "" {
		return orders.Priced{}, orders.InvalidArgument("user id is required")
	}
	q, err := s.pricer.Quote(ctx, userID, currency, couponCode)
	if err != nil {
		return orders.Priced{}, err
	}
	return orders.Price(q)
}

func (s *Checkout) Confirm(ctx context.Context, req ConfirmRequest) (*Placed, error) {
	if req.UserID == "" {
		return nil, orders.InvalidArgument("user id is required")
	}
	if req.AddressID == "" {
		return nil, orders.InvalidArgument("address id is required")
	}
	if !req.PaymentMethod.Valid() {
		return nil, orders.InvalidArgument("payment method %q", req.PaymentMethod)
	}
	q, err := s.pricer.Quote(ctx, req.UserID, req.Currency, req.CouponCode)
	if err != nil {
		return nil, err
	}
	addr, err := s.addresses.Resolve(ctx, req.UserID, req.AddressID)
	if err != nil {
		return nil, err
	}
	return s.coord.ReserveAndCreateOrder(ctx, PlaceRequest{
		UserID:          req.UserID,
		Quote:           q,
		PaymentMethod:   req.PaymentMethod,
		PaymentProvider: req.PaymentProvider,
		Address:         addr,
	})
}
