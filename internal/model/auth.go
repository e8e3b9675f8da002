package model

import "github.com/golang-jwt/jwt/v5"

// RegisterRequest is the sign-up payload.
type RegisterRequest struct {
	NewUser
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type VerifyRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,len=8,numeric"`
}

// TokenResponse is returned on successful login or registration.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	User        *User  `json:"user"`
}

// TokenClaims represents JWT claims
type TokenClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

// RegisterResponse tells the client whether it still has to confirm the
// emailed code before a session exists.
type RegisterResponse struct {
	User                 *User          `json:"user"`
	VerificationRequired bool           `json:"verification_required"`
	Token                *TokenResponse `json:"token,omitempty"`
}
