package donor

import (
	"github.com/gin-gonic/gin"

	"github.com/lifedrop/lifedrop-api/internal/handler"
	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/service/donor"
	"github.com/lifedrop/lifedrop-api/pkg/httputil"
)

type Handler struct {
	svc *donor.Service
}

func NewHandler(svc *donor.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/donors", h.Directory)

	me := r.Group("/me")
	{
		me.POST("/availability", h.ToggleAvailability)
		me.GET("/emergencies", h.NearbyEmergencies)
		me.GET("/donations", h.History)
	}
}

func (h *Handler) Directory(c *gin.Context) {
	var filter model.DirectoryFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	donors, err := h.svc.Directory(c.Request.Context(), handler.ActorID(c), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, donors)
}

func (h *Handler) ToggleAvailability(c *gin.Context) {
	user, err := h.svc.ToggleAvailability(c.Request.Context(), handler.ActorID(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, user)
}

func (h *Handler) NearbyEmergencies(c *gin.Context) {
	emergencies, err := h.svc.NearbyEmergencies(c.Request.Context(), handler.ActorID(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, emergencies)
}

func (h *Handler) History(c *gin.Context) {
	httputil.RespondWithSuccess(c, h.svc.History(c.Request.Context(), handler.ActorID(c)))
}
