package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/api/middleware"
	"github.com/angelmondragon/campus-loyalty/api/responses"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "controllers-test", Output: io.Discard})
}

func identityFor(role enums.Role) *middleware.Identity {
	return &middleware.Identity{UserID: uuid.New(), Utorid: "caller01", Role: role, AccessID: "access-1"}
}

type testRequest struct {
	method   string
	target   string
	body     string
	identity *middleware.Identity
	params   map[string]string
}

func newRequest(in testRequest) *http.Request {
	var body io.Reader
	if in.body != "" {
		body = strings.NewReader(in.body)
	}
	req := httptest.NewRequest(in.method, in.target, body)
	ctx := req.Context()
	if in.identity != nil {
		ctx = middleware.WithIdentity(ctx, *in.identity)
	}
	if len(in.params) > 0 {
		rctx := chi.NewRouteContext()
		for key, value := range in.params {
			rctx.URLParams.Add(key, value)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func serve(handler http.HandlerFunc, in testRequest) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	handler(resp, newRequest(in))
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, target any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, resp.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, target); err != nil {
		t.Fatalf("decode data: %v (%s)", err, envelope.Data)
	}
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope responses.Failure
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, resp.Body.String())
	}
	return envelope.Error.Code
}
