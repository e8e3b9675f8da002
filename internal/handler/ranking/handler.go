package ranking

import (
	"github.com/gin-gonic/gin"

	"github.com/lifedrop/lifedrop-api/internal/handler"
	"github.com/lifedrop/lifedrop-api/internal/service/ranking"
	"github.com/lifedrop/lifedrop-api/pkg/httputil"
)

type Handler struct {
	svc *ranking.Service
}

func NewHandler(svc *ranking.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ranking", h.Leaderboard)
}

func (h *Handler) Leaderboard(c *gin.Context) {
	httputil.RespondWithSuccess(c, h.svc.Board(c.Request.Context(), handler.ActorID(c)))
}
