package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sydlexius/camwatch/internal/metrics"
)

func TestLogging_RecordsAndScrubs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rec := metrics.NewRecorder()

	handler := Logging(logger, rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
		}
		w.Write([]byte("hello")) //nolint:errcheck
	}))

	for _, target := range []string{"/ok?token=abc&code=001000", "/fail"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	s := rec.Summary()
	if s.RequestCount != 2 || s.ErrorsCount != 1 {
		t.Errorf("summary = %+v", s)
	}
	out := buf.String()
	if strings.Contains(out, "abc") || !strings.Contains(out, "token=REDACTED") {
		t.Errorf("token not scrubbed: %s", out)
	}
	if !strings.Contains(out, "status=502") || !strings.Contains(out, "bytes=5") {
		t.Errorf("missing status/bytes: %s", out)
	}
}

func TestStatusWriter_Unwrap(t *testing.T) {
	inner := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: inner, status: http.StatusOK}
	if err := http.NewResponseController(sw).Flush(); err != nil {
		t.Errorf("Flush through statusWriter: %v", err)
	}
	if !inner.Flushed {
		t.Error("inner recorder not flushed")
	}
}

func TestScrubQuery(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"code=001000", "code=001000"},
		{"apikey=x&code=1", "apikey=REDACTED&code=1"},
		{"Authorization=y", "Authorization=REDACTED"},
	}
	for _, tt := range tests {
		if got := scrubQuery(tt.in); got != tt.want {
			t.Errorf("scrubQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
