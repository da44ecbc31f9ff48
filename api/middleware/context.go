package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxUtorid   contextKey = "utorid"
	ctxRole     contextKey = "actor_role"
	ctxAccessID contextKey = "access_id"
	ctxRequest  contextKey = "request_id"
)

// Identity is the authenticated caller carried on the request context.
type Identity struct {
	UserID   uuid.UUID
	Utorid   string
	Role     enums.Role
	AccessID string
}

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func UtoridFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUtorid).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// AccessIDFromContext returns the token id (jti) of the current session.
func AccessIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAccessID).(string); ok {
		return v
	}
	return ""
}

// IdentityFromContext assembles the caller. ok is false when the request was
// not authenticated or the stored id is malformed.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return Identity{}, false
	}
	role := enums.Role(RoleFromContext(ctx))
	if !role.IsValid() {
		return Identity{}, false
	}
	return Identity{
		UserID:   id,
		Utorid:   UtoridFromContext(ctx),
		Role:     role,
		AccessID: AccessIDFromContext(ctx),
	}, true
}

// WithIdentity injects the caller into the context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, identity.UserID.String())
	ctx = context.WithValue(ctx, ctxUtorid, identity.Utorid)
	ctx = context.WithValue(ctx, ctxRole, string(identity.Role))
	return context.WithValue(ctx, ctxAccessID, identity.AccessID)
}

// RequestIDFromContext returns the id assigned by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(ctxRequest).(string)
	return v
}
