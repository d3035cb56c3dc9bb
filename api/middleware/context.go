package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/multivendhq/multivend-backend/api/responses"
	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
	"github.com/multivendhq/multivend-backend/pkg/logger"
)

type contextKey string

const ctxBuyerKey contextKey = "buyer_key"

const buyerKeyHeader = "X-Buyer-Key"

// BuyerKeyFromContext returns the buyer key the request authenticated with,
// or empty when none was provided.
func BuyerKeyFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxBuyerKey).(string); ok {
		return v
	}
	return ""
}

// WithBuyerKey injects the buyer key into the context for downstream handlers.
func WithBuyerKey(ctx context.Context, buyerKey string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxBuyerKey, buyerKey)
}

// BuyerKey requires the buyer identity header on every request in the group.
// Carts and checkout sessions are keyed by it; identity management itself
// lives outside this service.
func BuyerKey(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buyerKey := strings.TrimSpace(r.Header.Get(buyerKeyHeader))
			if buyerKey == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "X-Buyer-Key header required"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithBuyerKey(r.Context(), buyerKey)))
		})
	}
}
