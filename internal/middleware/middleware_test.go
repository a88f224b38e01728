package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/raffle-ledger/internal/config"
	"github.com/iliyamo/raffle-ledger/internal/logging"
)

func rateCfg() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: 6 * time.Second,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip",
		Prefix:         "test:rl",
	}
}

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := nowFunc
	nowFunc = func() time.Time { return now }
	t.Cleanup(func() { nowFunc = prev })
	return now
}

func serve(mw echo.MiddlewareFunc, method, path string) *httptest.ResponseRecorder {
	e := echo.New()
	e.Use(mw)
	h := func(c echo.Context) error { return c.JSON(http.StatusOK, echo.Map{"ok": true}) }
	e.GET("/api/tickets", h)
	e.POST("/api/reserve", h)
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestTokenBucketAllowsAndBlocks(t *testing.T) {
	now := fixedNow(t)
	cfg := rateCfg()
	rdb, mock := redismock.NewClientMock()
	args := []interface{}{now.UnixMilli(), cfg.Capacity, cfg.RefillTokens, cfg.RefillInterval.Milliseconds(), int64(600)}
	key := "test:rl:ip:10.0.0.1"

	mock.ExpectEvalSha(limiterScript.Hash(), []string{key}, args...).SetVal([]interface{}{int64(1), int64(1), int64(0)})
	mock.ExpectEvalSha(limiterScript.Hash(), []string{key}, args...).SetVal([]interface{}{int64(0), int64(0), int64(4500)})

	mw := NewTokenBucket(cfg, rdb, logging.Discard())

	rec := serve(mw, http.MethodPost, "/api/reserve")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	rec = serve(mw, http.MethodPost, "/api/reserve")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenBucketFailsOpen(t *testing.T) {
	now := fixedNow(t)
	cfg := rateCfg()
	rdb, mock := redismock.NewClientMock()
	args := []interface{}{now.UnixMilli(), cfg.Capacity, cfg.RefillTokens, cfg.RefillInterval.Milliseconds(), int64(600)}
	mock.ExpectEvalSha(limiterScript.Hash(), []string{"test:rl:ip:10.0.0.1"}, args...).SetErr(assert.AnError)

	rec := serve(NewTokenBucket(cfg, rdb, logging.Discard()), http.MethodPost, "/api/reserve")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDisabledMiddlewaresPassThrough(t *testing.T) {
	cfg := rateCfg()
	cfg.Enabled = false
	assert.Equal(t, http.StatusOK, serve(NewTokenBucket(cfg, nil, logging.Discard()), http.MethodPost, "/api/reserve").Code)
	assert.Equal(t, http.StatusOK, serve(NewRedisCache(config.CacheConfig{}, nil, logging.Discard()), http.MethodGet, "/api/tickets").Code)
}

func cacheCfg() config.CacheConfig {
	return config.CacheConfig{
		Enabled:     true,
		Methods:     map[string]bool{http.MethodGet: true},
		TTL:         3 * time.Second,
		KeyStrategy: "route_query",
		Prefix:      "test:cache",
	}
}

func TestRedisCacheHit(t *testing.T) {
	cfg := cacheCfg()
	rdb, mock := redismock.NewClientMock()
	key := cacheKey(cfg, http.MethodGet, "/api/tickets", "")

	hdr := http.Header{}
	hdr.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	payload, err := encodePayload(http.StatusOK, hdr, []byte(`[{"number":1,"status":"available"}]`))
	require.NoError(t, err)
	mock.ExpectGet(key).SetVal(string(payload))

	rec := serve(NewRedisCache(cfg, rdb, logging.Discard()), http.MethodGet, "/api/tickets")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, `[{"number":1,"status":"available"}]`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheMissSkipsUncachedMethods(t *testing.T) {
	cfg := cacheCfg()
	rdb, mock := redismock.NewClientMock()
	key := cacheKey(cfg, http.MethodGet, "/api/tickets", "")
	mock.ExpectGet(key).RedisNil()
	mock.Regexp().ExpectSetEx(key, `.*`, cfg.TTL).SetVal("OK")

	mw := NewRedisCache(cfg, rdb, logging.Discard())
	rec := serve(mw, http.MethodGet, "/api/tickets")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	// POST never touches redis
	rec = serve(mw, http.MethodPost, "/api/reserve")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheInvalidatorDropsKeysAfterSuccess(t *testing.T) {
	cfg := cacheCfg()
	rdb, mock := redismock.NewClientMock()
	mock.ExpectDel(cacheKey(cfg, http.MethodGet, "/api/tickets", "")).SetVal(1)

	rec := serve(NewCacheInvalidator(cfg, rdb, logging.Discard(), "/api/tickets"), http.MethodPost, "/api/reserve")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPayloadRoundTripRejectsShortInput(t *testing.T) {
	_, _, _, ok := decodePayload([]byte{0, 1})
	assert.False(t, ok)
}

func TestRequestLoggerWritesLine(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, "info", true)
	rec := serve(RequestLogger(logger), http.MethodGet, "/api/tickets")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), `"uri":"/api/tickets"`)
	assert.Contains(t, buf.String(), `"status":200`)
}
