package emergency

import (
	"github.com/gin-gonic/gin"

	"github.com/lifedrop/lifedrop-api/internal/handler"
	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/service/emergency"
	"github.com/lifedrop/lifedrop-api/pkg/httputil"
)

type Handler struct {
	svc emergency.EmergencyServicer
}

func NewHandler(svc emergency.EmergencyServicer) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the read endpoints every signed-in user may call.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	emergencies := r.Group("/emergencies")
	{
		emergencies.GET("", h.ListEmergencies)
		emergencies.GET("/:id", h.GetEmergency)
	}
}

// RegisterHospitalRoutes mounts the lifecycle endpoints. r must already
// restrict callers to hospital accounts.
func (h *Handler) RegisterHospitalRoutes(r *gin.RouterGroup) {
	emergencies := r.Group("/emergencies")
	{
		emergencies.POST("", h.CreateEmergency)
		emergencies.GET("/:id/donors", h.EligibleDonors)
		emergencies.GET("/:id/donations", h.ListDonations)
		emergencies.POST("/:id/contact", h.ContactDonor)
		emergencies.POST("/:id/complete", h.CompleteEmergency)
		emergencies.PATCH("/:id/status", h.UpdateStatus)
	}
}

// Result pairs an emergency with the number of notifications its last
// transition produced.
type Result struct {
	Emergency *model.EmergencyRequest `json:"emergency"`
	Notified  int                     `json:"notified"`
}

type contactRequest struct {
	DonorID string `json:"donor_id" binding:"required"`
}

type statusRequest struct {
	Status model.EmergencyStatus `json:"status" binding:"required,oneof=open in_progress completed"`
}

func (h *Handler) CreateEmergency(c *gin.Context) {
	var req model.NewEmergency
	if !handler.BindJSON(c, &req) {
		return
	}

	e, notified, err := h.svc.Create(c.Request.Context(), handler.ActorID(c), req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithCreated(c, Result{Emergency: e, Notified: notified})
}

func (h *Handler) ListEmergencies(c *gin.Context) {
	var filter model.EmergencyFilter
	if !handler.BindQuery(c, &filter) {
		return
	}

	httputil.RespondWithSuccess(c, h.svc.List(c.Request.Context(), filter))
}

func (h *Handler) GetEmergency(c *gin.Context) {
	e, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, e)
}

func (h *Handler) EligibleDonors(c *gin.Context) {
	donors, err := h.svc.EligibleDonors(c.Request.Context(), handler.ActorID(c), c.Param("id"))
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, donors)
}

func (h *Handler) ListDonations(c *gin.Context) {
	donations, err := h.svc.Donations(c.Request.Context(), handler.ActorID(c), c.Param("id"))
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, donations)
}

func (h *Handler) ContactDonor(c *gin.Context) {
	var req contactRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	donation, err := h.svc.Contact(c.Request.Context(), handler.ActorID(c), c.Param("id"), req.DonorID)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithCreated(c, donation)
}

func (h *Handler) CompleteEmergency(c *gin.Context) {
	e, notified, err := h.svc.Complete(c.Request.Context(), handler.ActorID(c), c.Param("id"))
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, Result{Emergency: e, Notified: notified})
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	e, notified, err := h.svc.UpdateStatus(c.Request.Context(), handler.ActorID(c), c.Param("id"), req.Status)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, Result{Emergency: e, Notified: notified})
}
