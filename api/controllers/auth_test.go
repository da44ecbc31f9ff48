package controllers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/angelmondragon/campus-loyalty/internal/auth"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
)

type fakeAuth struct {
	loginFn        func(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error)
	logoutFn       func(ctx context.Context, accessID string) error
	requestResetFn func(ctx context.Context, req auth.ResetRequest) (*auth.ResetTicket, error)
	performResetFn func(ctx context.Context, token string, req auth.PerformResetRequest) error
}

func (f fakeAuth) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	return f.loginFn(ctx, req)
}

func (f fakeAuth) Logout(ctx context.Context, accessID string) error {
	return f.logoutFn(ctx, accessID)
}

func (f fakeAuth) RequestReset(ctx context.Context, req auth.ResetRequest) (*auth.ResetTicket, error) {
	return f.requestResetFn(ctx, req)
}

func (f fakeAuth) PerformReset(ctx context.Context, token string, req auth.PerformResetRequest) error {
	return f.performResetFn(ctx, token, req)
}

func TestAuthLoginReturnsToken(t *testing.T) {
	expires := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	svc := fakeAuth{loginFn: func(_ context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
		if req.Utorid != "johndoe1" || req.Password != "Secret123!" {
			t.Fatalf("unexpected credentials %+v", req)
		}
		return &auth.LoginResponse{Token: "jwt", ExpiresAt: expires}, nil
	}}

	resp := serve(AuthLogin(svc, testLogger()), testRequest{
		method: http.MethodPost,
		target: "/auth/tokens",
		body:   `{"utorid":"johndoe1","password":"Secret123!"}`,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var out auth.LoginResponse
	decodeData(t, resp, &out)
	if out.Token != "jwt" || !out.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected login payload %+v", out)
	}
}

func TestAuthLoginWrongPassword(t *testing.T) {
	svc := fakeAuth{loginFn: func(context.Context, auth.LoginRequest) (*auth.LoginResponse, error) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}}
	resp := serve(AuthLogin(svc, testLogger()), testRequest{
		method: http.MethodPost,
		target: "/auth/tokens",
		body:   `{"utorid":"johndoe1","password":"nope"}`,
	})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthLoginMissingPassword(t *testing.T) {
	resp := serve(AuthLogin(fakeAuth{}, testLogger()), testRequest{
		method: http.MethodPost,
		target: "/auth/tokens",
		body:   `{"utorid":"johndoe1"}`,
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAuthLogoutRevokesAccessID(t *testing.T) {
	var revoked string
	svc := fakeAuth{logoutFn: func(_ context.Context, accessID string) error {
		revoked = accessID
		return nil
	}}
	resp := serve(AuthLogout(svc, testLogger()), testRequest{
		method:   http.MethodDelete,
		target:   "/auth/tokens",
		identity: identityFor(enums.RoleRegular),
	})
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", resp.Code)
	}
	if revoked != "access-1" {
		t.Fatalf("expected access-1 revoked got %q", revoked)
	}
}

func TestAuthRequestResetAccepted(t *testing.T) {
	svc := fakeAuth{requestResetFn: func(context.Context, auth.ResetRequest) (*auth.ResetTicket, error) {
		return &auth.ResetTicket{ResetToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}}
	resp := serve(AuthRequestReset(svc, testLogger()), testRequest{
		method: http.MethodPost,
		target: "/auth/resets",
		body:   `{"utorid":"johndoe1"}`,
	})
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", resp.Code)
	}
	var ticket auth.ResetTicket
	decodeData(t, resp, &ticket)
	if ticket.ResetToken != "tok" {
		t.Fatalf("expected reset token in body got %+v", ticket)
	}
}

func TestAuthPerformResetStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"success", nil, http.StatusOK},
		{"unknown token", pkgerrors.New(pkgerrors.CodeNotFound, "reset token not found"), http.StatusNotFound},
		{"expired token", pkgerrors.New(pkgerrors.CodeGone, "reset token expired"), http.StatusGone},
		{"utorid mismatch", pkgerrors.New(pkgerrors.CodeUnauthorized, "utorid does not match"), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := fakeAuth{performResetFn: func(_ context.Context, token string, _ auth.PerformResetRequest) error {
				if token != "abc" {
					t.Fatalf("expected token from path got %q", token)
				}
				return tc.err
			}}
			resp := serve(AuthPerformReset(svc, testLogger()), testRequest{
				method: http.MethodPost,
				target: "/auth/resets/abc",
				body:   `{"utorid":"johndoe1","password":"NewPass12!"}`,
				params: map[string]string{"resetToken": "abc"},
			})
			if resp.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, resp.Code)
			}
		})
	}
}
