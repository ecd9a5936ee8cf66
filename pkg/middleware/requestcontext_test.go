package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ghost521/docusynth-ai-sub003/pkg/contextkeys"
)

func TestRequestContextGeneratesRequestID(t *testing.T) {
	var captured string
	handler := RequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = contextkeys.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/sso/check", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.NotEmpty(t, captured)
	assert.Equal(t, captured, rec.Header().Get("X-Request-ID"))
}

func TestRequestContextHonorsUpstreamHeaders(t *testing.T) {
	var meta struct{ requestID, actorID, ip string }
	handler := RequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta.requestID = contextkeys.GetRequestID(r.Context())
		meta.actorID = contextkeys.GetActorID(r.Context())
		meta.ip = contextkeys.GetClientIP(r.Context())
	}))

	req := httptest.NewRequest("GET", "/sso/check", nil)
	req.Header.Set("X-Request-ID", "req-123")
	req.Header.Set("X-Actor-ID", "user-7")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", meta.requestID)
	assert.Equal(t, "user-7", meta.actorID)
	assert.Equal(t, "203.0.113.9", meta.ip)
}

func TestClientIPFromRemoteAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:4242"
	assert.Equal(t, "192.0.2.1", ClientIP(req))
}
