package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/campus-loyalty/pkg/config"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

func TestRequestIDGeneratesAndEchoes(t *testing.T) {
	var seen string
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Header().Get("X-Request-Id") == "" || resp.Header().Get("X-Request-Id") != seen {
		t.Fatalf("expected generated id on header and context, header %q ctx %q", resp.Header().Get("X-Request-Id"), seen)
	}

	cases := map[string]bool{
		"given":                 true,
		"abc-123_def.ghi":       true,
		"has space":             false,
		"line\nbreak":           false,
		strings.Repeat("x", 65): false,
	}
	for in, kept := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", in)
		resp = httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		got := resp.Header().Get("X-Request-Id")
		if kept && got != in {
			t.Fatalf("expected %q echoed, got %q", in, got)
		}
		if !kept && (got == in || got == "") {
			t.Fatalf("expected %q replaced, got %q", in, got)
		}
	}
}

func TestRecovererReturnsInternalError(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	handler := Recoverer(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
	out := buf.String()
	if !strings.Contains(out, "panic.recovered") || !strings.Contains(out, `"panic":"boom"`) {
		t.Fatalf("expected panic to be logged, got %s", out)
	}
	if strings.Contains(resp.Body.String(), "boom") {
		t.Fatalf("panic value leaked to client: %s", resp.Body.String())
	}
}

func TestRecovererKeepsCommittedResponse(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	handler := Recoverer(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusAccepted || resp.Body.Len() != 0 {
		t.Fatalf("expected untouched 202, got %d %q", resp.Code, resp.Body.String())
	}
}

func TestRecovererRethrowsAbort(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestLoggingRecordsStatusAndRoute(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})

	r := chi.NewRouter()
	r.Use(Logging(logg))
	r.Get("/promotions/{promotionId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("tea"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/promotions/7", nil))
	out := buf.String()
	for _, want := range []string{"request.complete", `"status":418`, `"bytes":3`, `"route":"/promotions/{promotionId}"`, `"path":"/promotions/7"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	handler := CORS(config.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/transactions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("expected origin allowed, headers %v", resp.Header())
	}

	req = httptest.NewRequest(http.MethodOptions, "/transactions", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected foreign origin rejected")
	}
}
