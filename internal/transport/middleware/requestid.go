package middleware

import (
	"context"
	"net/http"

	"github.com/sigefi/budget-approval/pkg/logger"

	"github.com/google/uuid"
)

type traceIDKey struct{}

// TraceID returns the request's trace identifier, or "" outside a request.
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return id
	}
	return ""
}

// RequestID assigns each request a trace identifier, honoring one supplied
// by the caller. It is the single source of request identity: the logging
// middleware and the context logger both read it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), traceIDKey{}, traceID)
		ctx = logger.With(ctx, "traceID", traceID)

		// propagate back to response
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
