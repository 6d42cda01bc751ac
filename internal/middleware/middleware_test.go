package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/gym-class-booking/internal/config"
	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/utils"
)

const secret = "test-secret"

func protected(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"user_id": c.Get("user_id"), "role": c.Get("role")})
	}, mw...)
	return e
}

func TestJWTAuthAndRequireRole(t *testing.T) {
	t.Parallel()

	member, err := utils.NewAccessToken(secret, 7, model.RoleMember, 5)
	require.NoError(t, err)
	trainer, err := utils.NewAccessToken(secret, 8, model.RoleTrainer, 5)
	require.NoError(t, err)
	forged, err := utils.NewAccessToken("other", 7, model.RoleAdmin, 5)
	require.NoError(t, err)

	e := protected(JWTAuth(secret), RequireRole(model.RoleMember, model.RoleAdmin))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "member allowed", header: "Bearer " + member.Token, want: http.StatusOK},
		{name: "trainer forbidden", header: "Bearer " + trainer.Token, want: http.StatusForbidden},
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + forged.Token, want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer not.a.jwt", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+member.Token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.JSONEq(t, `{"user_id":7,"role":"MEMBER"}`, rec.Body.String())
}

func TestDisabledRedisMiddlewarePassThrough(t *testing.T) {
	t.Parallel()

	e := protected(
		NewRedisCache(config.CacheConfig{Enabled: true}, nil, zap.NewNop()),
		NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil, zap.NewNop()),
	)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestCachePayloadRoundTrip(t *testing.T) {
	t.Parallel()

	hdr := http.Header{echo.HeaderContentType: {echo.MIMEApplicationJSON}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"data":[]}`))
	require.NoError(t, err)

	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, gotHdr)
	assert.Equal(t, `{"data":[]}`, string(body))

	_, _, _, ok = decodePayload(bs[:5])
	assert.False(t, ok)
	_, _, _, ok = decodePayload(nil)
	assert.False(t, ok)
}

func TestCaptureWriterLimit(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	assert.False(t, cw.truncated())
	_, _ = cw.Write([]byte("def"))
	assert.True(t, cw.truncated())
	assert.Equal(t, "abcd", cw.buf.String())
	assert.Equal(t, "abcdef", rec.Body.String())
}

func TestCacheKeyDependsOnQuery(t *testing.T) {
	t.Parallel()

	e := echo.New()
	cfg := config.CacheConfig{Prefix: "gym:cache"}
	key := func(target string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/v1/sessions")
		return cacheKey(cfg, c)
	}
	assert.Equal(t, key("/v1/sessions?q=yoga"), key("/v1/sessions?q=yoga"))
	assert.NotEqual(t, key("/v1/sessions?q=yoga"), key("/v1/sessions?q=spin"))
	assert.Regexp(t, `^gym:cache:[0-9a-f]{40}$`, key("/v1/sessions"))
}

func TestRateKey(t *testing.T) {
	t.Parallel()

	e := echo.New()
	cfg := config.RateLimitConfig{Prefix: "gym:rl"}
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/3/book", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/sessions/:id/book")

	assert.Equal(t, "gym:rl:ip:10.0.0.9:route:POST /v1/sessions/:id/book", rateKey(cfg, c))
	c.Set("user_id", uint64(42))
	assert.Equal(t, "gym:rl:user:42:route:POST /v1/sessions/:id/book", rateKey(cfg, c))

	assert.Equal(t, 2, retryAfterSeconds(1500))
	assert.Zero(t, retryAfterSeconds(-10))
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	e := echo.New()
	e.Use(RequestLogger(zap.New(core)))
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/missing", func(c echo.Context) error { return c.String(http.StatusNotFound, "no") })

	for _, path := range []string{"/ok", "/missing"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.FilterMessage("request").AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, int64(http.StatusNotFound), entries[1].ContextMap()["status"])
	assert.IsType(t, time.Duration(0), entries[0].ContextMap()["latency"])
}
