package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/yogaflow-backend/api/responses"
	"github.com/angelmondragon/yogaflow-backend/internal/webhooks/polar"
	pkgerrors "github.com/angelmondragon/yogaflow-backend/pkg/errors"
	"github.com/angelmondragon/yogaflow-backend/pkg/logger"
	"github.com/angelmondragon/yogaflow-backend/pkg/metrics"
)

const (
	deliveryIDHeader = "webhook-id"
	maxBodyBytes     = 1 << 20
)

type PolarWebhookService interface {
	HandleDelivery(ctx context.Context, deliveryID string, body []byte) (polar.Outcome, error)
}

// PolarWebhook verifies and reconciles billing provider deliveries. Any
// non-2xx status makes the provider retry.
func PolarWebhook(svc PolarWebhookService, secret string, m *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.LogError(ctx, logg, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			responses.WriteText(w, http.StatusInternalServerError, "Webhook handler unavailable")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			responses.LogError(ctx, logg, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			responses.WriteText(w, http.StatusInternalServerError, "Webhook handler failed")
			return
		}

		if !polar.VerifySignature(ctx, logg, body, polar.SignatureFromHeaders(r.Header), secret) {
			if logg != nil {
				logg.Warn(ctx, "webhook signature rejected")
			}
			m.IncEvent("unknown", metrics.OutcomeUnauthorized)
			responses.WriteText(w, http.StatusUnauthorized, "Invalid signature")
			return
		}

		outcome, err := svc.HandleDelivery(ctx, r.Header.Get(deliveryIDHeader), body)
		if err != nil {
			responses.LogError(ctx, logg, err)
			responses.WriteText(w, http.StatusInternalServerError, "Webhook handler failed")
			return
		}

		if outcome == polar.OutcomeDuplicate {
			responses.WriteText(w, http.StatusOK, "Already processed")
			return
		}
		responses.WriteText(w, http.StatusOK, "OK")
	}
}
