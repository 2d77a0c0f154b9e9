package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"creaturegrc/pkg/requestcontext"
)

// RequestMeta pins the request time and assigns a request ID so every
// timestamp derived during one request agrees and log lines are correlatable.
func RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())

		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx = requestcontext.WithRequestID(ctx, reqID)
		w.Header().Set("X-Request-ID", reqID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
