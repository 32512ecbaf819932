package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type orderStore struct{ q pgx.Tx }

const orderColumns = `id, order_number, user_id, status, payment_status, payment_method, payment_provider,
	currency, shipping_address, subtotal, discount, total, COALESCE(payment_intent_id, ''),
	tracking_number, shipping_company, refund_amount, refund_reason, refund_pending, cancel_reason,
	rating, paid_at, cancelled_at, shipped_at, delivered_at, refunded_at, created_at, updated_at`

func (s orderStore) NextOrderNumber(ctx context.Context, year int) (int64, error) {
	var seq int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO order_sequences (year, last_value) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = order_sequences.last_value + 1
		RETURNING last_value`, year).Scan(&seq)
	return seq, err
}

func (s orderStore) Insert(ctx context.Context, o *orders.Order) error {
	addr, rating, err := encodeOrderJSON(o)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO orders (id, order_number, user_id, status, payment_status, payment_method, payment_provider,
			currency, shipping_address, subtotal, discount, total, payment_intent_id, tracking_number,
			shipping_company, refund_amount, refund_reason, refund_pending, cancel_reason, rating,
			paid_at, cancelled_at, shipped_at, delivered_at, refunded_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27)`,
		o.ID, o.Number, o.UserID, string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod), o.PaymentProvider,
		o.Currency, addr, o.Subtotal, o.Discount, o.Total, nullIfEmpty(o.PaymentIntentID), o.TrackingNumber,
		o.ShippingCompany, nullDecimal(o.RefundAmount), o.RefundReason, o.RefundPending, o.CancelReason, rating,
		o.PaidAt, o.CancelledAt, o.ShippedAt, o.DeliveredAt, o.RefundedAt, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		var snapshot any
		if len(it.Snapshot) > 0 {
			snapshot = []byte(it.Snapshot)
		}
		batch.Queue(`
			INSERT INTO order_items (order_id, line_no, unit_id, qty, unit_price, base_price, line_total, snapshot)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			o.ID, i+1, it.UnitID, it.Qty, it.UnitPrice, it.BasePrice, it.LineTotal, snapshot)
	}
	queueHistory(batch, o)
	return s.q.SendBatch(ctx, batch).Close()
}

// queueHistory appends every history entry; entries already stored are skipped by
// their (order_id, seq) key.
func queueHistory(batch *pgx.Batch, o *orders.Order) {
	for i, h := range o.StatusHistory {
		batch.Queue(`
			INSERT INTO order_status_history (order_id, seq, status, changed_at, changed_by, role, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (order_id, seq) DO NOTHING`,
			o.ID, i+1, string(h.Status), h.ChangedAt, h.ChangedBy, string(h.Role), h.Notes)
	}
}

func (s orderStore) Get(ctx context.Context, id string) (*orders.Order, error) {
	return s.getOne(ctx, `id = $1`, id)
}

func (s orderStore) GetByPaymentIntent(ctx context.Context, intentID string) (*orders.Order, error) {
	if intentID == "" {
		return nil, fmt.Errorf("intent is empty: %w", orders.ErrOrderNotFound)
	}
	return s.getOne(ctx, `payment_intent_id = $1`, intentID)
}

func (s orderStore) getOne(ctx context.Context, where string, arg string) (*orders.Order, error) {
	o, err := scanOrder(s.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where+` FOR UPDATE`, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", arg, orders.ErrOrderNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, []*orders.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s orderStore) Save(ctx context.Context, o *orders.Order) error {
	addr, rating, err := encodeOrderJSON(o)
	if err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE orders SET status = $2, payment_status = $3, payment_provider = $4, shipping_address = $5,
			payment_intent_id = $6, tracking_number = $7, shipping_company = $8, refund_amount = $9,
			refund_reason = $10, refund_pending = $11, cancel_reason = $12, rating = $13, paid_at = $14,
			cancelled_at = $15, shipped_at = $16, delivered_at = $17, refunded_at = $18, updated_at = $19
		WHERE id = $1`,
		o.ID, string(o.Status), string(o.PaymentStatus), o.PaymentProvider, addr,
		nullIfEmpty(o.PaymentIntentID), o.TrackingNumber, o.ShippingCompany, nullDecimal(o.RefundAmount),
		o.RefundReason, o.RefundPending, o.CancelReason, rating, o.PaidAt,
		o.CancelledAt, o.ShippedAt, o.DeliveredAt, o.RefundedAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", o.ID, orders.ErrOrderNotFound)
	}
	batch := &pgx.Batch{}
	queueHistory(batch, o)
	return s.q.SendBatch(ctx, batch).Close()
}

func (s orderStore) List(ctx context.Context, f orders.ListFilter) ([]*orders.Order, error) {
	f = f.Normalize()
	var (
		conds []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, "user_id = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	sql := `SELECT ` + orderColumns + ` FROM orders` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, order_number DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out := []*orders.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadChildren fills items and history for a page of orders with one query each.
func (s orderStore) loadChildren(ctx context.Context, page []*orders.Order) error {
	if len(page) == 0 {
		return nil
	}
	byID := make(map[string]*orders.Order, len(page))
	ids := make([]string, 0, len(page))
	for _, o := range page {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := s.q.Query(ctx, `
		SELECT order_id, unit_id, qty, unit_price, base_price, line_total, snapshot
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var orderID string
		var it orders.Item
		var snapshot []byte
		if err := rows.Scan(&orderID, &it.UnitID, &it.Qty, &it.UnitPrice, &it.BasePrice, &it.LineTotal, &snapshot); err != nil {
			rows.Close()
			return err
		}
		if len(snapshot) > 0 {
			it.Snapshot = snapshot
		}
		byID[orderID].Items = append(byID[orderID].Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.q.Query(ctx, `
		SELECT order_id, status, changed_at, changed_by, role, notes
		FROM order_status_history WHERE order_id = ANY($1) ORDER BY order_id, seq`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var orderID, status, role string
		var h orders.HistoryEntry
		if err := rows.Scan(&orderID, &status, &h.ChangedAt, &h.ChangedBy, &role, &h.Notes); err != nil {
			return err
		}
		h.Status = orders.Status(status)
		h.Role = orders.Role(role)
		byID[orderID].StatusHistory = append(byID[orderID].StatusHistory, h)
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*orders.Order, error) {
	var (
		o                            orders.Order
		status, payStatus, payMethod string
		addr, rating                 []byte
		refund                       decimal.NullDecimal
	)
	err := row.Scan(&o.ID, &o.Number, &o.UserID, &status, &payStatus, &payMethod, &o.PaymentProvider,
		&o.Currency, &addr, &o.Subtotal, &o.Discount, &o.Total, &o.PaymentIntentID,
		&o.TrackingNumber, &o.ShippingCompany, &refund, &o.RefundReason, &o.RefundPending, &o.CancelReason,
		&rating, &o.PaidAt, &o.CancelledAt, &o.ShippedAt, &o.DeliveredAt, &o.RefundedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = orders.Status(status)
	o.PaymentStatus = orders.PaymentStatus(payStatus)
	o.PaymentMethod = orders.PaymentMethod(payMethod)
	if refund.Valid {
		v := refund.Decimal
		o.RefundAmount = &v
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping address of %s: %w", o.ID, err)
	}
	if len(rating) > 0 {
		o.Rating = &orders.Rating{}
		if err := json.Unmarshal(rating, o.Rating); err != nil {
			return nil, fmt.Errorf("decode rating of %s: %w", o.ID, err)
		}
	}
	return &o, nil
}

func encodeOrderJSON(o *orders.Order) (addr []byte, rating any, err error) {
	addr, err = json.Marshal(o.ShippingAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("encode shipping address: %w", err)
	}
	if o.Rating != nil {
		b, err := json.Marshal(o.Rating)
		if err != nil {
			return nil, nil, fmt.Errorf("encode rating: %w", err)
		}
		rating = b
	}
	return addr, rating, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}
