package logging

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestLoggingMiddleware(t *testing.T) {
	var out strings.Builder
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/datasets/MISSING" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("ok"))
	}))

	tests := []struct {
		name      string
		target    string
		requestID any
		contains  []string
		excludes  []string
	}{
		{
			name:      "health is not logged",
			target:    "/health",
			requestID: "req-1",
		},
		{
			name:      "metrics is not logged",
			target:    "/metrics",
			requestID: "req-2",
		},
		{
			name:      "dataset path is logged",
			target:    "/v1/datasets/DEMO",
			requestID: "req-3",
			contains:  []string{"HTTP request", "path=/v1/datasets/DEMO", "request_id=req-3", "status_code=200", "bytes_written=2"},
			excludes:  []string{"query="},
		},
		{
			name:      "status code is captured",
			target:    "/v1/datasets/MISSING",
			requestID: "req-4",
			contains:  []string{"status_code=404"},
		},
		{
			name:      "non-string request id",
			target:    "/v1/datasets",
			requestID: 12345,
			contains:  []string{"request_id=unknown"},
		},
		{
			name:      "query is logged when present",
			target:    "/v1/datasets/DEMO?page=2&pageSize=10",
			requestID: "req-5",
			contains:  []string{"query=", "page=2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, tt.requestID))
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			logs := out.String()
			if len(tt.contains) == 0 && logs != "" {
				t.Errorf("expected no logs for %s, got: %s", tt.target, logs)
			}
			for _, want := range tt.contains {
				if !strings.Contains(logs, want) {
					t.Errorf("log should contain %q, got: %s", want, logs)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(logs, unwanted) {
					t.Errorf("log should not contain %q, got: %s", unwanted, logs)
				}
			}
		})
	}
}
