package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrEthical07/passgate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeValidator struct{}

func (fakeValidator) ValidateAccessToken(token string) (*passgate.Identity, error) {
	if token != "access-ok" {
		return nil, passgate.ErrTokenInvalidOrExpired
	}
	return &passgate.Identity{AccountID: "acc-1", Email: "ada@example.com", Role: "admin"}, nil
}

func (fakeValidator) ValidateVerifyToken(token string) (string, error) {
	if token != "verify-ok" {
		return "", errors.New("bad token")
	}
	return "ada@example.com", nil
}

func serve(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequireAccess(t *testing.T) {
	r := gin.New()
	r.GET("/", RequireAccess(fakeValidator{}), func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, id.AccountID)
	})

	rec := serve(r, "Bearer access-ok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acc-1", rec.Body.String())

	assert.Equal(t, http.StatusOK, serve(r, "bearer access-ok").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Bearer ").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Basic access-ok").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Bearer forged").Code)
}

func TestRequireVerifyScope(t *testing.T) {
	r := gin.New()
	r.GET("/", RequireVerifyScope(fakeValidator{}), func(c *gin.Context) {
		email, ok := VerifiedEmail(c)
		require.True(t, ok)
		assert.Equal(t, "verify-ok", VerifyToken(c))
		c.String(http.StatusOK, email)
	})

	rec := serve(r, "Bearer verify-ok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada@example.com", rec.Body.String())
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Bearer access-ok").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(10)
	require.NotNil(t, rl)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"), "burst of one must be spent")
	assert.True(t, rl.allow("10.0.0.2"), "clients are independent")

	now = now.Add(6 * time.Second)
	assert.True(t, rl.allow("10.0.0.1"), "bucket refills at 10 per minute")

	now = now.Add(10 * time.Minute)
	rl.allow("10.0.0.3")
	rl.mu.Lock()
	_, stale := rl.clients["10.0.0.2"]
	rl.mu.Unlock()
	assert.False(t, stale, "idle clients are evicted")
}

func TestRateLimiterHandler(t *testing.T) {
	r := gin.New()
	r.GET("/", NewRateLimiter(1).Handler(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "").Code)

	var disabled *RateLimiter
	r2 := gin.New()
	r2.GET("/", disabled.Handler(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, serve(r2, "").Code)
	}
}

func TestRequestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) {
		assert.NotEmpty(t, RequestID(c))
		c.Status(http.StatusOK)
	})
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/ok", "/bad", "/boom"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}

func TestRequestLoggerKeepsIncomingID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(nil))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

type countingAllower struct {
	limit int
	hits  map[string]int
	err   error
}

func (a *countingAllower) Allow(_ context.Context, key string) (bool, error) {
	if a.err != nil {
		return false, a.err
	}
	a.hits[key]++
	return a.hits[key] <= a.limit, nil
}

func TestThrottle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	allower := &countingAllower{limit: 1, hits: map[string]int{}}
	r := gin.New()
	r.Use(Throttle(allower, nil))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func() int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.7:4000"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNoContent, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
	assert.Equal(t, 2, allower.hits["192.0.2.7"])
}

func TestThrottleFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.WarnLevel)
	allower := &countingAllower{err: errors.New("connection refused")}
	r := gin.New()
	r.Use(Throttle(allower, zap.New(core)))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("middleware: rate counter unavailable").Len())
}
