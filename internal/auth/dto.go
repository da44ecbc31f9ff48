package auth

import "time"

// LoginRequest captures the credentials sent to the token endpoint.
type LoginRequest struct {
	Utorid   string `json:"utorid" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the bearer token and when it stops being accepted.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ResetRequest struct {
	Utorid string `json:"utorid" validate:"required"`
}

// ResetTicket is returned in place of an email carrying the token.
type ResetTicket struct {
	ExpiresAt  time.Time `json:"expiresAt"`
	ResetToken string    `json:"resetToken"`
}

type PerformResetRequest struct {
	Utorid   string `json:"utorid" validate:"required"`
	Password string `json:"password" validate:"required"`
}
