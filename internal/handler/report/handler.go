package report

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lifedrop/lifedrop-api/internal/handler"
	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/service/report"
	"github.com/lifedrop/lifedrop-api/pkg/httputil"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *report.Service
}

func NewHandler(svc *report.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes expects r to be restricted to hospital accounts.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	history := r.Group("/history")
	{
		history.GET("", h.History)
		history.GET("/export", h.Export)
	}
}

func (h *Handler) History(c *gin.Context) {
	var filter model.EmergencyFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	httputil.RespondWithSuccess(c, h.svc.History(c.Request.Context(), handler.ActorID(c), filter))
}

func (h *Handler) Export(c *gin.Context) {
	var filter model.EmergencyFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	data, err := h.svc.ExportXLSX(c.Request.Context(), handler.ActorID(c), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	name := fmt.Sprintf("lifedrop-history-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, data)
}
