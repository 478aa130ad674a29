package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		ping       error
		wantStatus int
		wantBody   string
	}{
		{name: "up", wantStatus: http.StatusOK, wantBody: `"database":"up"`},
		{name: "down", ping: errors.New("refused"), wantStatus: http.StatusServiceUnavailable, wantBody: "database unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(log, pingerFunc(func(ctx context.Context) error {
				_, ok := ctx.Deadline()
				assert.True(t, ok)
				return tt.ping
			}))

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantBody)
		})
	}
}
