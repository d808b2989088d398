package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
	_, _ = w.Write([]byte(RequestIDFromContext(r.Context())))
}

func TestRequestID(t *testing.T) {
	h := RequestID(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	id := rec.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)
	assert.Equal(t, id, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Len(t, rec.Body.String(), 36, "oversized ids are replaced")
}

func TestLogging_LevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := Logging(zap.New(core))(http.HandlerFunc(okHandler))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "http request", entries[0].Message)
		assert.Equal(t, zap.WarnLevel, entries[0].Level)
		assert.EqualValues(t, http.StatusTeapot, entries[0].ContextMap()["status"])
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	h := rl.Middleware(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", "10.0.0.1")
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusTeapot, http.StatusTeapot, http.StatusTooManyRequests}, codes)

	assert.Equal(t, 0, rl.Cleanup(time.Hour))
	assert.Equal(t, 1, rl.Cleanup(0))
}

func TestRateLimiter_StopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(10, 10)
	rl.Start(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	rl.Stop()
	rl.Stop()
}
