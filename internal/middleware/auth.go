package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lifedrop/lifedrop-api/internal/handler"
	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/pkg/errors"
	"github.com/lifedrop/lifedrop-api/pkg/httputil"
)

// TokenValidator turns a bearer token into the caller's claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Authenticate verifies the JWT and stores the claims on the context.
// Browsers cannot set headers on websocket upgrades, so the token may also
// arrive in the "token" query parameter.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearer(c)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		claims, err := m.validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			httputil.RespondWithError(c, errors.Unauthorized(err))
			return
		}

		handler.SetClaims(c, claims)
		c.Next()
	}
}

// RequireRole rejects callers whose token carries a different role.
func (m *AuthMiddleware) RequireRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := handler.Claims(c)
		if claims == nil {
			httputil.RespondWithError(c, errors.Unauthorized(nil))
			return
		}
		if claims.Role != role {
			httputil.RespondWithError(c, errors.Forbidden("only "+string(role)+" accounts can do this", nil))
			return
		}
		c.Next()
	}
}

func bearer(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", errors.Unauthorized(nil)
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.BadRequest("invalid authorization format", nil)
	}
	return parts[1], nil
}
