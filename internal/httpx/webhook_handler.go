package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/settlement"
)

// WebhookHandler answers the payment provider. Anything the provider should not
// resend gets the same bare 200; only internal failures get 500 so the delivery
// is retried. The settlement result is logged, never returned.
type WebhookHandler struct {
	Log        *zap.Logger
	Settlement *settlement.Handler
}

type webhookResp struct {
	OK bool `json:"ok"`
}

func (h *WebhookHandler) Register(r chi.Router) {
	r.Post("/payments/webhook", h.handle)
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	var in settlement.Webhook
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&in); err != nil {
		h.Log.Warn("webhook body unreadable", zap.Error(err))
		writeJSON(w, http.StatusOK, webhookResp{OK: true})
		return
	}
	res, err := h.Settlement.HandleWebhook(r.Context(), in)
	if err != nil && res != settlement.ResultRejected {
		writeJSON(w, http.StatusInternalServerError, webhookResp{OK: false})
		return
	}
	h.Log.Debug("webhook acknowledged", zap.String("intent_id", in.IntentID), zap.String("result", string(res)))
	writeJSON(w, http.StatusOK, webhookResp{OK: true})
}
