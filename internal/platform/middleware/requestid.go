package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"curio/pkg/requestcontext"
)

// RequestID assigns every request a unique id for log correlation. An
// incoming X-Request-ID is honored so upstream proxies can trace calls
// end to end.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
