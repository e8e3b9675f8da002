package reference

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lifedrop/lifedrop-api/internal/bloodtype"
	"github.com/lifedrop/lifedrop-api/internal/geocode"
	"github.com/lifedrop/lifedrop-api/internal/handler"
	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/pkg/errors"
	"github.com/lifedrop/lifedrop-api/pkg/httputil"
)

// Searcher looks up places for the address picker.
type Searcher interface {
	Search(ctx context.Context, query string) ([]geocode.Place, error)
}

// Handler serves static lookup data: the compatibility chart and address
// search.
type Handler struct {
	searcher Searcher
}

// NewHandler accepts a nil searcher, in which case address search answers 404.
func NewHandler(searcher Searcher) *Handler {
	return &Handler{searcher: searcher}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/compatibility", h.Compatibility)
}

func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/geocode/search", h.Search)
}

type compatibility struct {
	BloodType      model.BloodType   `json:"blood_type"`
	CanReceiveFrom []model.BloodType `json:"can_receive_from"`
	CanDonateTo    []model.BloodType `json:"can_donate_to"`
}

func (h *Handler) Compatibility(c *gin.Context) {
	bt := model.BloodType(strings.TrimSpace(c.Query("blood_type")))
	if bt == "" {
		httputil.RespondWithSuccess(c, bloodtype.Chart())
		return
	}
	if !bt.Valid() {
		httputil.RespondWithError(c, errors.BadRequest("unknown blood type "+string(bt), nil))
		return
	}

	httputil.RespondWithSuccess(c, compatibility{
		BloodType:      bt,
		CanReceiveFrom: bloodtype.DonorsCompatibleWith(bt),
		CanDonateTo:    bloodtype.RecipientsFor(bt),
	})
}

func (h *Handler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if len(q) < 3 {
		httputil.RespondWithError(c, errors.BadRequest("q must be at least 3 characters", nil))
		return
	}
	if h.searcher == nil {
		httputil.RespondWithError(c, errors.NotFound("address search", nil))
		return
	}

	places, err := h.searcher.Search(c.Request.Context(), q)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, places)
}
