package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/yogaflow-backend/api/responses"
	"github.com/angelmondragon/yogaflow-backend/pkg/logger"
)

const maxRequestIDLen = 128

// RequestID tags the request with a correlation id. An inbound X-Request-Id
// wins; billing deliveries fall back to their webhook-id so provider retries
// share one id in the logs.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := inboundRequestID(r)
			if reqID == "" {
				reqID = uuid.NewString()
			}

			w.Header().Set(responses.RequestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func inboundRequestID(r *http.Request) string {
	for _, header := range []string{responses.RequestIDHeader, "webhook-id"} {
		value := strings.TrimSpace(r.Header.Get(header))
		if value != "" && len(value) <= maxRequestIDLen {
			return value
		}
	}
	return ""
}
