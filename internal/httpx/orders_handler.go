package httpx

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/lifecycle"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
)

type StatusReader interface {
	Get(ctx context.Context, orderID string) (redisx.CachedStatus, bool, error)
}

// OrdersHandler serves the customer's own orders.
type OrdersHandler struct {
	Log     *zap.Logger
	Machine *lifecycle.Machine
	// Status is an optional read-through cache for the status endpoint.
	Status StatusReader
}

type cancelReq struct {
	Reason string `json:"reason"`
}

type rateReq struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

type statusResp struct {
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	Cached        bool   `json:"cached"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(identify, requireUser)
		r.Get("/orders", h.list)
		r.Get("/orders/{id}", h.get)
		r.Get("/orders/{id}/status", h.status)
		r.Post("/orders/{id}/cancel", h.cancel)
		r.Post("/orders/{id}/rate", h.rate)
	})
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	f, err := listFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	f.UserID = identityFrom(r.Context()).UserID
	list, err := h.Machine.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Machine.GetForUser(r.Context(), chi.URLParam(r, "id"), identityFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (h *OrdersHandler) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := chi.URLParam(r, "id")
	userID := identityFrom(ctx).UserID

	if h.Status != nil {
		s, ok, err := h.Status.Get(ctx, orderID)
		if err != nil {
			h.Log.Warn("status cache read failed", zap.String("order_id", orderID), zap.Error(err))
		} else if ok && s.UserID == userID {
			writeData(w, http.StatusOK, statusResp{OrderID: orderID, Status: s.Status, PaymentStatus: s.PaymentStatus, Cached: true})
			return
		}
	}

	o, err := h.Machine.GetForUser(ctx, orderID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, statusResp{OrderID: o.ID, Status: string(o.Status), PaymentStatus: string(o.PaymentStatus)})
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.Machine.UserCancel(r.Context(), chi.URLParam(r, "id"), identityFrom(r.Context()).UserID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (h *OrdersHandler) rate(w http.ResponseWriter, r *http.Request) {
	var req rateReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.Machine.Rate(r.Context(), chi.URLParam(r, "id"), identityFrom(r.Context()).UserID, req.Score, req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func listFilter(r *http.Request) (orders.ListFilter, error) {
	q := r.URL.Query()
	f := orders.ListFilter{Status: orders.Status(q.Get("status"))}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, orders.InvalidArgument("%q is not a number", v)
	}
	return n, nil
}
