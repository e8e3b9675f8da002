package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lifedrop/lifedrop-api/internal/handler"
	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/pkg/httputil"
)

// Servicer is the part of the auth service the handler drives.
type Servicer interface {
	Register(ctx context.Context, req model.RegisterRequest) (*model.RegisterResponse, error)
	Login(ctx context.Context, email, password string) (*model.TokenResponse, error)
	Verify(ctx context.Context, email, code string) (*model.TokenResponse, error)
	Logout(ctx context.Context, claims *model.TokenClaims) error
	Me(ctx context.Context, userID string) (*model.User, error)
}

type Handler struct {
	svc Servicer
}

func NewHandler(svc Servicer) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/verify", h.Verify)
	}
}

// RegisterProtectedRoutes mounts the endpoints that need a session.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/auth/logout", h.Logout)
	r.GET("/me", h.Me)
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	status := http.StatusCreated
	if resp.VerificationRequired {
		status = http.StatusAccepted
	}
	c.JSON(status, httputil.NewSuccessResponse(resp))
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	tokens, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, tokens)
}

func (h *Handler) Verify(c *gin.Context) {
	var req model.VerifyRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	tokens, err := h.svc.Verify(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, tokens)
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), handler.Claims(c)); err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, "logged out successfully")
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.svc.Me(c.Request.Context(), handler.ActorID(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}

	httputil.RespondWithSuccess(c, user)
}
