package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

// Identity headers are set by the gateway after authentication.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type Identity struct {
	UserID string
	Role   orders.Role
}

type identityKey struct{}

func identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{UserID: r.Header.Get(HeaderUserID), Role: orders.Role(r.Header.Get(HeaderUserRole))}
		if id.Role == "" {
			id.Role = orders.RoleCustomer
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func identityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identityFrom(r.Context()).UserID == "" {
			writeJSON(w, http.StatusUnauthorized, envelope{Error: &apiError{Code: "UNAUTHENTICATED", Message: "missing " + HeaderUserID}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identityFrom(r.Context()).Role != orders.RoleAdmin {
			writeJSON(w, http.StatusForbidden, envelope{Error: &apiError{Code: "FORBIDDEN", Message: "admin role required"}})
			return
		}
		next.ServeHTTP(w, r)
	})
}
