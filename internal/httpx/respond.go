package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
)

const maxBody = 1 << 20

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	code, body := errorBody(err)
	writeJSON(w, code, body)
}

func errorBody(err error) (int, envelope) {
	code, e := classify(err)
	return code, envelope{Success: false, Error: &e}
}

func classify(err error) (int, apiError) {
	var shortage *orders.ShortageError
	switch {
	case errors.As(err, &shortage):
		return http.StatusConflict, apiError{Code: "INSUFFICIENT_STOCK", Message: err.Error(), Details: map[string]any{
			"unitId": shortage.UnitID, "requested": shortage.Requested, "available": shortage.Available,
		}}
	case errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict, apiError{Code: "INVALID_TRANSITION", Message: err.Error()}
	case errors.Is(err, orders.ErrRatingNotAllowed):
		return http.StatusConflict, apiError{Code: "RATING_NOT_ALLOWED", Message: err.Error()}
	case errors.Is(err, redisx.ErrInFlight):
		return http.StatusConflict, apiError{Code: "REQUEST_IN_FLIGHT", Message: err.Error()}
	case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, orders.ErrCounterNotFound):
		return http.StatusNotFound, apiError{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, orders.ErrRefundAmountInvalid):
		return http.StatusUnprocessableEntity, apiError{Code: "REFUND_AMOUNT_INVALID", Message: err.Error()}
	case errors.Is(err, orders.ErrInvalidArgument):
		return http.StatusBadRequest, apiError{Code: "INVALID_ARGUMENT", Message: err.Error()}
	case errors.Is(err, orders.ErrUpstream):
		return http.StatusBadGateway, apiError{Code: "UPSTREAM_UNAVAILABLE", Message: err.Error()}
	case errors.Is(err, orders.ErrTxConflict):
		return http.StatusServiceUnavailable, apiError{Code: "CONFLICT_RETRY", Message: "concurrent update, retry the request"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, apiError{Code: "TIMEOUT", Message: "request timed out"}
	default:
		return http.StatusInternalServerError, apiError{Code: "INTERNAL", Message: "internal error"}
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return orders.InvalidArgument("invalid json: %v", err)
	}
	return nil
}
