package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/payment"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
	"github.com/ariefcatur/go-order-fulfillment/internal/reservation"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Idempotency interface {
	Begin(ctx context.Context, userID, key string) (*redisx.StoredResponse, error)
	Complete(ctx context.Context, userID, key string, resp redisx.StoredResponse) error
	Abandon(ctx context.Context, userID, key string) error
}

type CheckoutHandler struct {
	Log      *zap.Logger
	Checkout *reservation.Checkout
	// Idempotency is optional; without it Idempotency-Key is ignored.
	Idempotency Idempotency
}

type previewReq struct {
	Currency   string `json:"currency"`
	CouponCode string `json:"couponCode"`
}

type confirmReq struct {
	AddressID       string `json:"addressId"`
	Currency        string `json:"currency"`
	PaymentMethod   string `json:"paymentMethod"`
	PaymentProvider string `json:"paymentProvider"`
	CouponCode      string `json:"couponCode"`
}

type confirmResp struct {
	OrderID       string          `json:"orderId"`
	OrderNumber   string          `json:"orderNumber"`
	Order         *orders.Order   `json:"order"`
	PaymentIntent *payment.Intent `json:"paymentIntent,omitempty"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(identify, requireUser)
		r.Post("/checkout/preview", h.preview)
		r.Post("/checkout/confirm", h.confirm)
	})
}

func (h *CheckoutHandler) preview(w http.ResponseWriter, r *http.Request) {
	var req previewReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	priced, err := h.Checkout.Preview(r.Context(), identityFrom(r.Context()).UserID, req.Currency, req.CouponCode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, priced)
}

func (h *CheckoutHandler) confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	userID := identityFrom(ctx).UserID

	key := r.Header.Get(HeaderIdempotencyKey)
	claimed := false
	if key != "" && h.Idempotency != nil {
		stored, err := h.Idempotency.Begin(ctx, userID, key)
		switch {
		case errors.Is(err, redisx.ErrInFlight):
			writeError(w, err)
			return
		case err != nil:
			// Redis trouble degrades to a plain, non-idempotent checkout.
			h.Log.Warn("idempotency lookup failed", zap.String("user_id", userID), zap.Error(err))
		case stored != nil:
			w.Header().Set("Idempotent-Replayed", "true")
			writeRaw(w, stored.Status, stored.Body)
			return
		default:
			claimed = true
		}
	}

	code, body := h.place(ctx, userID, req)
	raw, err := json.Marshal(body)
	if err != nil {
		raw = []byte(`{"success":false,"error":{"code":"INTERNAL","message":"internal error"}}`)
		code = http.StatusInternalServerError
	}

	if claimed {
		var idemErr error
		if code >= http.StatusInternalServerError {
			idemErr = h.Idempotency.Abandon(ctx, userID, key)
		} else {
			idemErr = h.Idempotency.Complete(ctx, userID, key, redisx.StoredResponse{Status: code, Body: raw})
		}
		if idemErr != nil {
			h.Log.Warn("idempotency store failed", zap.String("user_id", userID), zap.Error(idemErr))
		}
	}
	writeRaw(w, code, append(raw, '\n'))
}

func (h *CheckoutHandler) place(ctx context.Context, userID string, req confirmReq) (int, envelope) {
	placed, err := h.Checkout.Confirm(ctx, reservation.ConfirmRequest{
		UserID:          userID,
		AddressID:       req.AddressID,
		Currency:        req.Currency,
		PaymentMethod:   orders.PaymentMethod(req.PaymentMethod),
		PaymentProvider: req.PaymentProvider,
		CouponCode:      req.CouponCode,
	})
	if err != nil {
		code, body := errorBody(err)
		if code == http.StatusInternalServerError {
			h.Log.Error("checkout failed", zap.String("user_id", userID), zap.Error(err))
		}
		return code, body
	}
	return http.StatusCreated, envelope{Success: true, Data: confirmResp{
		OrderID:       placed.Order.ID,
		OrderNumber:   placed.Order.Number,
		Order:         placed.Order,
		PaymentIntent: placed.Intent,
	}}
}
