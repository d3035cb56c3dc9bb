package controllers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/multivendhq/multivend-backend/api/responses"
	webhooksvc "github.com/multivendhq/multivend-backend/internal/webhooks"
	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
	"github.com/multivendhq/multivend-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// GatewayWebhook receives asynchronous payment callbacks. Anything the
// pipeline accepts (including replays and unmatched events) answers 200 so
// the gateway stops retrying; only rejections surface an error status.
func GatewayWebhook(svc webhooksvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		gatewayID := chi.URLParam(r, "gateway")
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable webhook body"))
			return
		}

		result, err := svc.HandleWebhook(r.Context(), gatewayID, body, r.Header)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{
			"outcome":  string(result.Outcome),
			"event_id": result.EventID,
		})
	}
}
