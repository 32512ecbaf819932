// Package upstream calls the pricing engine and the address service. Both are
// consulted before any transaction opens; transport failures and 5xx answers
// map to orders.ErrUpstream.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

const maxErrorBody = 4 << 10

type client struct {
	log     *zap.Logger
	baseURL string
	http    *http.Client
}

func newClient(log *zap.Logger, baseURL string, timeout time.Duration) client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return client{
		log:     log,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("upstream request failed", zap.String("url", req.URL.String()), zap.Error(err))
		return fmt.Errorf("%s: %w: %v", path, orders.ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return orders.InvalidArgument("%s: %s", path, readMessage(resp.Body))
	default:
		c.log.Warn("upstream error status", zap.String("url", req.URL.String()), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%s answered %d: %w", path, resp.StatusCode, orders.ErrUpstream)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w: %v", path, orders.ErrUpstream, err)
	}
	return nil
}

// readMessage pulls a human message out of an error body, falling back to the raw
// text.
func readMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var env struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &env) == nil {
		if env.Error.Message != "" {
			return env.Error.Message
		}
		if env.Message != "" {
			return env.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
