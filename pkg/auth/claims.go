package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

// Grant is what a login hands out: who the caller is and which session the
// token is bound to.
type Grant struct {
	UserID    uuid.UUID
	Utorid    string
	Role      enums.Role
	SessionID string
}

// Claims is the access token body.
type Claims struct {
	UserID uuid.UUID  `json:"user_id"`
	Utorid string     `json:"utorid"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Validate is called by the jwt parser after the registered claims pass.
func (c Claims) Validate() error {
	switch {
	case c.UserID == uuid.Nil:
		return errors.New("token has no user")
	case c.Subject != c.UserID.String():
		return errors.New("token subject does not match user")
	case !c.Role.IsValid():
		return fmt.Errorf("token carries invalid role %q", c.Role)
	case c.ID == "":
		return errors.New("token is not bound to a session")
	}
	return nil
}

// Grant returns the identity the token was minted for.
func (c Claims) Grant() Grant {
	return Grant{UserID: c.UserID, Utorid: c.Utorid, Role: c.Role, SessionID: c.ID}
}
