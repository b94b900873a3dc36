package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evault/evault/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func hit(r *gin.Engine, path string) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w.Code
}

func TestRateLimitMiddleware_AllowsUnderLimit(t *testing.T) {
	before := testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory"))
	r := gin.New()
	r.Use(RateLimitMiddleware(10, 2))
	r.GET("/ok", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, hit(r, "/ok"))
	require.Equal(t, http.StatusOK, hit(r, "/ok"))
	require.Equal(t, before+2, testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory")))
}

func TestRateLimitMiddleware_BlocksWhenExceeded(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(2, 1))
	r.GET("/limited", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, hit(r, "/limited"))
	require.Equal(t, http.StatusTooManyRequests, hit(r, "/limited"))

	// 2 rps refills one token within 600ms
	time.Sleep(600 * time.Millisecond)
	require.Equal(t, http.StatusOK, hit(r, "/limited"))
}

func TestRateLimitMiddleware_UsesPrincipalWhenPresent(t *testing.T) {
	r := gin.New()
	user := "user-123"
	r.Use(func(c *gin.Context) {
		c.Set(identityKey, &Identity{UserID: user})
		c.Next()
	})
	r.Use(RateLimitMiddleware(0.5, 1))
	r.GET("/u", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, hit(r, "/u"))
	require.Equal(t, http.StatusTooManyRequests, hit(r, "/u"))

	// a different account from the same address has its own bucket
	user = "user-456"
	require.Equal(t, http.StatusOK, hit(r, "/u"))
}

func TestLimiterStoreEvictsIdleBuckets(t *testing.T) {
	s := newLimiterStore(1, 5)
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	a := s.get("ip:1.1.1.1")
	s.get("ip:2.2.2.2")
	require.Equal(t, 2, s.size())
	require.Same(t, a, s.get("ip:1.1.1.1"))

	// still inside the idle window: nothing is dropped
	now = now.Add(30 * time.Second)
	s.get("ip:1.1.1.1")
	require.Equal(t, 2, s.size())

	// 2.2.2.2 has now been idle for a full window, 1.1.1.1 has not
	now = now.Add(45 * time.Second)
	s.get("ip:3.3.3.3")
	require.Equal(t, 2, s.size())
	require.Same(t, a, s.get("ip:1.1.1.1"))
}

func TestLimiterStoreIdleCoversRefill(t *testing.T) {
	require.Equal(t, minIdle, newLimiterStore(10, 20).idle)
	require.Equal(t, 200*time.Second, newLimiterStore(0.5, 100).idle)
}
