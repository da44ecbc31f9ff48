package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) Failure {
	t.Helper()
	var body Failure
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestWriteSuccessStatusWrapsData(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccessStatus(rec, http.StatusCreated, map[string]int{"points": 40})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"data":{"points":40}}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		status      int
		code        pkgerrors.Code
		message     string
		wantDetails bool
	}{
		{
			name:        "validation keeps details",
			err:         pkgerrors.New(pkgerrors.CodeValidation, "bad input").WithDetails(map[string]string{"amount": "is required"}),
			status:      http.StatusBadRequest,
			code:        pkgerrors.CodeValidation,
			message:     "bad input",
			wantDetails: true,
		},
		{
			name:    "wrapped typed error",
			err:     fmt.Errorf("transfer: %w", pkgerrors.New(pkgerrors.CodeConflict, "insufficient points")),
			status:  http.StatusConflict,
			code:    pkgerrors.CodeConflict,
			message: "insufficient points",
		},
		{name: "gone", err: pkgerrors.New(pkgerrors.CodeGone, "event ended"), status: http.StatusGone, code: pkgerrors.CodeGone, message: "event ended"},
		{name: "rate limited", err: pkgerrors.New(pkgerrors.CodeRateLimit, "slow down"), status: http.StatusTooManyRequests, code: pkgerrors.CodeRateLimit, message: "slow down"},
		{name: "forbidden", err: pkgerrors.New(pkgerrors.CodeForbidden, "managers only"), status: http.StatusForbidden, code: pkgerrors.CodeForbidden, message: "managers only"},
		{name: "untyped", err: errors.New("pq: connection reset"), status: http.StatusInternalServerError, code: pkgerrors.CodeInternal},
		{name: "nil", err: nil, status: http.StatusInternalServerError, code: pkgerrors.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(context.Background(), nil, rec, tc.err)

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			body := decodeFailure(t, rec)
			if body.Error.Code != string(tc.code) {
				t.Fatalf("expected code %s, got %s", tc.code, body.Error.Code)
			}
			if tc.message != "" && body.Error.Message != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, body.Error.Message)
			}
			if (body.Error.Details != nil) != tc.wantDetails {
				t.Fatalf("details present=%v, want %v", body.Error.Details != nil, tc.wantDetails)
			}
		})
	}
}

func TestWriteErrorNeverLeaksInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, errors.New("dial tcp 10.0.0.3:5432: refused"))
	if strings.Contains(rec.Body.String(), "10.0.0.3") {
		t.Fatalf("internal cause leaked: %s", rec.Body.String())
	}
}

func TestWriteErrorLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})

	WriteError(context.Background(), logg, httptest.NewRecorder(), pkgerrors.New(pkgerrors.CodeNotFound, "no such user"))
	if !strings.Contains(buf.String(), `"level":"warn"`) || !strings.Contains(buf.String(), "request.rejected") {
		t.Fatalf("expected client error at warn, got %s", buf.String())
	}

	buf.Reset()
	WriteError(context.Background(), logg, httptest.NewRecorder(), errors.New("boom"))
	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), "request.error") {
		t.Fatalf("expected server error at error, got %s", buf.String())
	}
}

func TestWriteNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteNoContent(rec)
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Fatalf("expected empty 204, got %d %q", rec.Code, rec.Body.String())
	}
}
