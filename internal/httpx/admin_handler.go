package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/lifecycle"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/reservation"
)

// AdminHandler serves back-office order and inventory operations.
type AdminHandler struct {
	Log     *zap.Logger
	Machine *lifecycle.Machine
	Coord   *reservation.Coordinator
}

type statusReq struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type shipReq struct {
	TrackingNumber  string `json:"trackingNumber"`
	ShippingCompany string `json:"shippingCompany"`
	Notes           string `json:"notes"`
}

type refundItem struct {
	UnitID string `json:"unitId"`
	Qty    int64  `json:"qty"`
}

type refundReq struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
	Items  []refundItem    `json:"items"`
}

type receiveReq struct {
	Qty       int64  `json:"qty"`
	Reference string `json:"reference"`
}

type safetyReq struct {
	Qty int64 `json:"qty"`
}

type inventoryResp struct {
	Counter   orders.Counter       `json:"counter"`
	Available int64                `json:"available"`
	Ledger    []orders.LedgerEntry `json:"ledger"`
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(identify, requireUser, requireAdmin)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Patch("/orders/{id}/status", h.updateStatus)
		r.Post("/orders/{id}/ship", h.ship)
		r.Post("/orders/{id}/refund", h.refund)
		r.Get("/inventory/{unitId}", h.inventory)
		r.Post("/inventory/{unitId}/receive", h.receive)
		r.Put("/inventory/{unitId}/safety-stock", h.safetyStock)
	})
}

func actor(r *http.Request) lifecycle.Actor {
	id := identityFrom(r.Context())
	return lifecycle.Actor{ID: id.UserID, Role: id.Role}
}

func (h *AdminHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	f, err := listFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	f.UserID = r.URL.Query().Get("userId")
	list, err := h.Machine.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (h *AdminHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Machine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (h *AdminHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.Machine.UpdateStatus(r.Context(), chi.URLParam(r, "id"), orders.Status(req.Status), actor(r), req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (h *AdminHandler) ship(w http.ResponseWriter, r *http.Request) {
	var req shipReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.Machine.Ship(r.Context(), chi.URLParam(r, "id"), lifecycle.ShipRequest{
		TrackingNumber:  req.TrackingNumber,
		ShippingCompany: req.ShippingCompany,
		Notes:           req.Notes,
	}, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (h *AdminHandler) refund(w http.ResponseWriter, r *http.Request) {
	var req refundReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	items := make([]orders.ItemQty, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orders.ItemQty{UnitID: it.UnitID, Qty: it.Qty})
	}
	o, err := h.Machine.Refund(r.Context(), chi.URLParam(r, "id"), lifecycle.RefundRequest{
		Amount: req.Amount,
		Reason: req.Reason,
		Items:  items,
	}, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (h *AdminHandler) inventory(w http.ResponseWriter, r *http.Request) {
	c, ledger, err := h.Coord.Inventory(r.Context(), chi.URLParam(r, "unitId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, inventoryResp{Counter: c, Available: c.Available(), Ledger: ledger})
}

func (h *AdminHandler) receive(w http.ResponseWriter, r *http.Request) {
	var req receiveReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.Coord.ReceiveStock(r.Context(), chi.URLParam(r, "unitId"), req.Qty, req.Reference)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Log.Info("stock received", zap.String("unit_id", c.UnitID), zap.Int64("qty", req.Qty), zap.String("by", actor(r).ID))
	writeData(w, http.StatusOK, c)
}

func (h *AdminHandler) safetyStock(w http.ResponseWriter, r *http.Request) {
	var req safetyReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.Coord.SetSafetyStock(r.Context(), chi.URLParam(r, "unitId"), req.Qty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, c)
}
