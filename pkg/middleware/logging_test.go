package middleware

import (
	"bytes"
	"net/http"
	"os"
	"testing"

	"github.com/evault/evault/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRequestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stdout)
	logger.Init("info")

	r := gin.New()
	r.Use(RequestLogger(logger.Named("http")))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(os.ErrClosed)
		c.Status(http.StatusInternalServerError)
	})

	require.Equal(t, http.StatusOK, hit(r, "/ok"))
	require.NotContains(t, buf.String(), "/ok")

	require.Equal(t, http.StatusInternalServerError, hit(r, "/boom"))
	require.Contains(t, buf.String(), "[ERROR] http: GET /boom 500")
	require.Contains(t, buf.String(), "file already closed")
}
