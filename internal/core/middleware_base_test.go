package core

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecoverer_WritesErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(`boom "quoted"`)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithID(http.MethodGet, "/", ""))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body is not valid JSON: %v (%s)", err, rec.Body.String())
	}
	if resp.Error.RequestID != "req-1" {
		t.Errorf("request_id = %q", resp.Error.RequestID)
	}
}

func TestRequestLogger_RedactsSensitiveHeaders(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(logger, defaultRedactedHeaders)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/cloudpayments/webhook", nil)
	req.Header.Set("Authorization", "Bearer sess_secret")
	req.Header.Set("X-CP-Signature", "c2lnbmF0dXJl")
	req.Header.Set("User-Agent", "cp-agent")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, secret := range []string{"sess_secret", "c2lnbmF0dXJl"} {
		if strings.Contains(out, secret) {
			t.Errorf("log leaked %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, "cp-agent") {
		t.Error("non-sensitive headers should be logged")
	}
	if !strings.Contains(out, `"status":418`) || !strings.Contains(out, `"level":"WARN"`) {
		t.Errorf("expected WARN line with status 418: %s", out)
	}
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	restricted := NewCORSMiddleware([]string{"https://scira.app"})(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://scira.app")
	rec := httptest.NewRecorder()
	restricted.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://scira.app" || rec.Header().Get("Vary") != "Origin" {
		t.Errorf("allowed origin headers = %v", rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	restricted.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unknown origin should not be allowed")
	}

	rec = httptest.NewRecorder()
	NewCORSMiddleware([]string{"*"})(next).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", rec.Code, rec.Header())
	}
}

func TestEscapeJSON(t *testing.T) {
	got := escapeJSON("a\"b\\c\nd")
	if got != `a\"b\\c\nd` {
		t.Errorf("escapeJSON = %q", got)
	}
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := extractClientIP(req); got != "192.0.2.1" {
		t.Errorf("extractClientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", " 198.51.100.2 ,10.0.0.1")
	if got := extractClientIP(req); got != "198.51.100.2" {
		t.Errorf("extractClientIP with XFF = %q", got)
	}
}
