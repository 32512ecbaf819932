package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Counter is the mutable stock state of one sellable unit.
type Counter struct {
	UnitID      string    `json:"unit_id"`
	OnHand      int64     `json:"on_hand"`
	Reserved    int64     `json:"reserved"`
	SafetyStock int64     `json:"safety_stock"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Available is derived on read and never stored.
func (c Counter) Available() int64 {
	return c.OnHand - c.Reserved - c.SafetyStock
}

type Reservation struct {
	ID        string            `json:"id"`
	UnitID    string            `json:"unit_id"`
	OrderID   string            `json:"order_id"`
	Qty       int64             `json:"qty"`
	Status    ReservationStatus `json:"status"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (r Reservation) Expired(now time.Time) bool {
	return r.Status == ReservationActive && r.ExpiresAt.Before(now)
}

type LedgerEntry struct {
	ID        int64        `json:"id"`
	UnitID    string       `json:"unit_id"`
	Change    int64        `json:"change"`
	Reason    LedgerReason `json:"reason"`
	RefID     string       `json:"ref_id"`
	CreatedAt time.Time    `json:"created_at"`
}

type Item struct {
	UnitID    string          `json:"unit_id"`
	Qty       int64           `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	BasePrice decimal.Decimal `json:"base_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	Snapshot  json.RawMessage `json:"snapshot,omitempty"`
}

type HistoryEntry struct {
	Status    Status    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
	ChangedBy string    `json:"changed_by"`
	Role      Role      `json:"role"`
	Notes     string    `json:"notes,omitempty"`
}

type Address struct {
	ID         string `json:"id"`
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Rating struct {
	Score   int       `json:"score"`
	Comment string    `json:"comment,omitempty"`
	RatedAt time.Time `json:"rated_at"`
}

type Order struct {
	ID              string           `json:"id"`
	Number          string           `json:"order_number"`
	UserID          string           `json:"user_id"`
	Status          Status           `json:"status"`
	PaymentStatus   PaymentStatus    `json:"payment_status"`
	PaymentMethod   PaymentMethod    `json:"payment_method"`
	PaymentProvider string           `json:"payment_provider,omitempty"`
	Currency        string           `json:"currency"`
	ShippingAddress Address          `json:"shipping_address"`
	Items           []Item           `json:"items"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	Discount        decimal.Decimal  `json:"discount"`
	Total           decimal.Decimal  `json:"total"`
	PaymentIntentID string           `json:"payment_intent_id,omitempty"`
	TrackingNumber  string           `json:"tracking_number,omitempty"`
	ShippingCompany string           `json:"shipping_company,omitempty"`
	RefundAmount    *decimal.Decimal `json:"refund_amount,omitempty"`
	RefundReason    string           `json:"refund_reason,omitempty"`
	RefundPending   bool             `json:"refund_pending"`
	CancelReason    string           `json:"cancel_reason,omitempty"`
	Rating          *Rating          `json:"rating,omitempty"`
	StatusHistory   []HistoryEntry   `json:"status_history"`
	PaidAt          *time.Time       `json:"paid_at,omitempty"`
	CancelledAt     *time.Time       `json:"cancelled_at,omitempty"`
	ShippedAt       *time.Time       `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time       `json:"delivered_at,omitempty"`
	RefundedAt      *time.Time       `json:"refunded_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Record moves the order to status and appends the matching history entry. Edge
// validation belongs to the caller.
func (o *Order) Record(status Status, at time.Time, by string, role Role, notes string) {
	o.Status = status
	o.UpdatedAt = at
	o.StatusHistory = append(o.StatusHistory, HistoryEntry{
		Status:    status,
		ChangedAt: at,
		ChangedBy: by,
		Role:      role,
		Notes:     notes,
	})
}

// UnitQuantities aggregates line quantities per unit.
func (o *Order) UnitQuantities() map[string]int64 {
	out := make(map[string]int64, len(o.Items))
	for _, it := range o.Items {
		out[it.UnitID] += it.Qty
	}
	return out
}

// Clone returns a deep copy so stores can hand out orders without sharing slices.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = make([]Item, len(o.Items))
	for i, it := range o.Items {
		c.Items[i] = it
		if it.Snapshot != nil {
			c.Items[i].Snapshot = append(json.RawMessage(nil), it.Snapshot...)
		}
	}
	c.StatusHistory = append([]HistoryEntry(nil), o.StatusHistory...)
	if o.RefundAmount != nil {
		v := *o.RefundAmount
		c.RefundAmount = &v
	}
	if o.Rating != nil {
		r := *o.Rating
		c.Rating = &r
	}
	c.PaidAt = cloneTime(o.PaidAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	c.ShippedAt = cloneTime(o.ShippedAt)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.RefundedAt = cloneTime(o.RefundedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ListFilter narrows order listings. Zero values mean "any".
type ListFilter struct {
	UserID string
	Status Status
	Limit  int
	Offset int
}

func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
