package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/preorder-backend/pkg/logger"
)

func TestLoggingTagsRoutePatternAndLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.DebugLevel, Output: buf})

	r := chi.NewRouter()
	r.Use(Logging(logg))
	r.Get("/api/v1/orders/{orderId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders/abc", nil))

	out := buf.String()
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, out, `"route":"/api/v1/orders/{orderId}"`)
	require.Contains(t, out, `"level":"warn"`)
	require.Contains(t, out, `"status":404`)
}

func TestLoggingKeepsFlusher(t *testing.T) {
	var flushed bool
	h := Logging(logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, flushed = w.(http.Flusher)
		}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/realtime/me", nil))
	require.True(t, flushed)
}
