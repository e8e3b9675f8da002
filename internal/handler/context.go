package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/lifedrop/lifedrop-api/internal/model"
)

const (
	ContextClaims = "claims"
	ContextUserID = "userID"
)

// SetClaims stores the authenticated caller on the request context.
func SetClaims(c *gin.Context, claims *model.TokenClaims) {
	c.Set(ContextClaims, claims)
	c.Set(ContextUserID, claims.UserID)
}

func Claims(c *gin.Context) *model.TokenClaims {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*model.TokenClaims)
	return claims
}

// ActorID is the id of the authenticated caller, or "" on public routes.
func ActorID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
