package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/richxcame/trust-ring-detector/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixed = time.Date(2025, 6, 15, 12, 0, 30, 0, time.UTC)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:     true,
		Limit:       2,
		Window:      time.Minute,
		RedisPrefix: "rl",
	}
}

func expectedKey(identity string) string {
	return "rl:" + identity + ":" + strconv.FormatInt(fixed.UnixNano()/int64(time.Minute), 10)
}

func TestAllow_Disabled(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cfg := testConfig()
	cfg.Enabled = false

	res, err := NewLimiter(client, cfg).Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllow_Window(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := NewLimiter(client, testConfig()).WithNow(func() time.Time { return fixed })
	sha := limiter.script.Hash()
	key := expectedKey("1.2.3.4")

	tests := []struct {
		count     int64
		allowed   bool
		remaining int
	}{
		{1, true, 1},
		{2, true, 0},
		{3, false, 0},
	}

	for _, tt := range tests {
		mock.ExpectEvalSha(sha, []string{key}, int64(60000)).SetVal([]interface{}{tt.count, int64(30000)})

		res, err := limiter.Allow(context.Background(), "1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, tt.allowed, res.Allowed)
		assert.Equal(t, tt.remaining, res.Remaining)
		if !tt.allowed {
			assert.Equal(t, 30*time.Second, res.RetryAfter)
		}
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllow_RedisError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	limiter := NewLimiter(client, testConfig()).WithNow(func() time.Time { return fixed })
	mock.ExpectEvalSha(limiter.script.Hash(), []string{expectedKey("x")}, int64(60000)).SetErr(errors.New("connection refused"))

	_, err := limiter.Allow(context.Background(), "x")
	assert.ErrorContains(t, err, "rate limit check failed")
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	client, mock := redismock.NewClientMock()
	limiter := NewLimiter(client, testConfig()).WithNow(func() time.Time { return fixed })
	sha := limiter.script.Hash()

	r := gin.New()
	r.Use(limiter.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		return w
	}

	key := expectedKey("10.0.0.1")
	mock.ExpectEvalSha(sha, []string{key}, int64(60000)).SetVal([]interface{}{int64(1), int64(30000)})
	w := do()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	mock.ExpectEvalSha(sha, []string{key}, int64(60000)).SetVal([]interface{}{int64(3), int64(30000)})
	w = do()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	// Redis down fails open
	mock.ExpectEvalSha(sha, []string{key}, int64(60000)).SetErr(errors.New("connection refused"))
	w = do()
	assert.Equal(t, http.StatusOK, w.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}
