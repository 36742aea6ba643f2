package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"casegov/pkg/requestcontext"
)

// RequestID assigns each request a correlation id (honoring an inbound
// X-Request-ID header) and pins the request time so every read of "now"
// within one request agrees.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now())

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
