package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func TestWithErrorKeepsService(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("quiz-contest", "info", &buf)

	log.WithError(errors.New("db down")).Error("Startup failed")

	line := lastLine(t, &buf)
	assert.Equal(t, "quiz-contest", line["service"])
	assert.Equal(t, "db down", line["error"])
	assert.Equal(t, "Startup failed", line["message"])
	assert.Equal(t, "error", line["level"])
}

func TestGinMiddlewareLogsUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log := NewWithOutput("quiz-contest", "debug", &buf)

	r := gin.New()
	r.Use(GinMiddleware(log))
	r.GET("/ping", func(c *gin.Context) {
		c.Set(UserIDKey, int64(7))
		c.Status(http.StatusNoContent)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	line := lastLine(t, &buf)
	assert.Equal(t, "quiz-contest", line["service"])
	assert.Equal(t, float64(7), line["user_id"])
	assert.Equal(t, "/ping", line["path"])
}
