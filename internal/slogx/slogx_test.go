package slogx

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	base := Discard()
	ctx := WithContext(context.Background(), base)
	require.Same(t, base, FromContext(ctx))

	// A bare context falls back to the default logger instead of nil.
	require.NotNil(t, FromContext(context.Background()))
}

func TestHTTPMiddlewareInjectsLogger(t *testing.T) {
	t.Parallel()

	var seen *slog.Logger
	handler := HTTPMiddleware(Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/brews", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.NotNil(t, seen)
	// The handler saw the request-scoped logger, not the global default.
	require.NotSame(t, slog.Default(), seen)
}
