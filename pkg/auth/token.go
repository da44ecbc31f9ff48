package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/pkg/config"
)

const clockSkew = 30 * time.Second

var (
	signingMethod = jwt.SigningMethodHS256

	errNoSecret = errors.New("jwt secret is required")
)

// Mint signs an access token for g valid from now for the configured TTL.
// An empty SessionID gets a fresh random one.
func Mint(cfg config.JWTConfig, now time.Time, g Grant) (string, time.Time, error) {
	switch {
	case cfg.Secret == "":
		return "", time.Time{}, errNoSecret
	case cfg.Issuer == "":
		return "", time.Time{}, errors.New("jwt issuer is required")
	case strings.TrimSpace(g.Utorid) == "":
		return "", time.Time{}, errors.New("utorid is required")
	}
	if g.SessionID = strings.TrimSpace(g.SessionID); g.SessionID == "" {
		g.SessionID = uuid.NewString()
	}

	expiresAt := now.Add(cfg.TokenTTL())
	claims := Claims{
		UserID: g.UserID,
		Utorid: g.Utorid,
		Role:   g.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   g.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        g.SessionID,
		},
	}
	if err := claims.Validate(); err != nil {
		return "", time.Time{}, err
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign jwt: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies the signature, issuer and expiry of raw and returns its claims.
func Parse(cfg config.JWTConfig, raw string) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, errNoSecret
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
