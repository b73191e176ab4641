package middlewares_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/teammeng/foscion/internal/http/middlewares"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, ctx.GetString(middlewares.CtxRequestID))
	})
	r.POST("/ping", func(ctx *gin.Context) {
		ctx.Status(http.StatusNoContent)
	})
	return r
}

func TestRequestID(t *testing.T) {
	r := newEngine(middlewares.RequestID())

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		id := w.Header().Get("X-Request-Id")
		if id == "" {
			t.Fatalf("expected a generated request id")
		}
		if w.Body.String() != id {
			t.Fatalf("context id %q does not match header %q", w.Body.String(), id)
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Request-Id", "req-42")

		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if got := w.Header().Get("X-Request-Id"); got != "req-42" {
			t.Fatalf("got request id %q, want req-42", got)
		}
	})
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	r := newEngine(middlewares.RequestID(), middlewares.RequestLogger(log))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "req-7")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}

	if line["msg"] != "http_request" || line["route"] != "/ping" || line["request_id"] != "req-7" {
		t.Fatalf("unexpected log line: %v", line)
	}
	if line["status"] != float64(http.StatusOK) {
		t.Fatalf("unexpected status in log: %v", line["status"])
	}
}

func TestRequireJSON(t *testing.T) {
	r := newEngine(middlewares.RequireJSON())

	tests := []struct {
		name        string
		method      string
		contentType string
		wantStatus  int
	}{
		{"json", http.MethodPost, "application/json", http.StatusNoContent},
		{"json with charset", http.MethodPost, "Application/JSON; charset=utf-8", http.StatusNoContent},
		{"form", http.MethodPost, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"missing", http.MethodPost, "", http.StatusUnsupportedMediaType},
		{"get is exempt", http.MethodGet, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/ping", strings.NewReader(`{}`))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		wantOrigin string
	}{
		{"listed origin", []string{"https://app.example.com"}, "https://app.example.com", "https://app.example.com"},
		{"unlisted origin", []string{"https://app.example.com"}, "https://evil.example.com", ""},
		{"wildcard", []string{"*"}, "https://anything.example.com", "*"},
		{"no origin", []string{"*"}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(middlewares.CORSMiddleware(tt.allowed))

			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Fatalf("got allow-origin %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.CORSMiddleware([]string{"*"}))
	r.OPTIONS("/signup", func(ctx *gin.Context) {
		t.Fatalf("preflight should not reach the handler")
	})

	req := httptest.NewRequest(http.MethodOptions, "/signup", nil)
	req.Header.Set("Origin", "https://app.example.com")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := newEngine(middlewares.SecurityHeaders())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Cache-Control":           "no-store",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Fatalf("header %s = %q, want %q", k, got, v)
		}
	}
}
