package middleware

import (
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/Ghost521/docusynth-ai-sub003/pkg/contextkeys"
)

// RequestContext populates the request context with a request ID, the acting
// user and the client address so downstream handlers and the audit trail can
// attribute the request without re-parsing headers.
//
// The request ID is taken from X-Request-ID when a proxy already assigned
// one, otherwise generated. The assigned ID is echoed back on the response.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		if actorID := r.Header.Get("X-Actor-ID"); actorID != "" {
			ctx = contextkeys.WithActorID(ctx, actorID)
		}
		ctx = contextkeys.WithClientIP(ctx, ClientIP(r))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP returns the originating client address, honoring X-Forwarded-For
// set by the load balancer.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
