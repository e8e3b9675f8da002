package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lifedrop/lifedrop-api/internal/middleware"
	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/pkg/logger"
	"github.com/lifedrop/lifedrop-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// ProtectedHandler also exposes routes that need a session.
type ProtectedHandler interface {
	Handler
	RegisterProtectedRoutes(*gin.RouterGroup)
}

// HospitalHandler also exposes routes reserved to hospital accounts.
type HospitalHandler interface {
	Handler
	RegisterHospitalRoutes(*gin.RouterGroup)
}

// Handlers groups everything the API serves.
type Handlers struct {
	Health       Handler
	Auth         ProtectedHandler
	Reference    ProtectedHandler
	Emergency    HospitalHandler
	Donor        Handler
	Notification Handler
	Ranking      Handler
	Report       Handler
	Realtime     Handler
}

type RouterConfig struct {
	RateLimit   float64
	RateBurst   int
	MaxBodySize int64
	CORSConfig  middleware.CORSConfig
	Security    middleware.SecurityConfig
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	h       Handlers
	metrics *metrics.Metrics
}

func NewRouter(auth *middleware.AuthMiddleware, h Handlers, m *metrics.Metrics, log *logger.Logger, config RouterConfig) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &Router{
		engine:  engine,
		auth:    auth,
		h:       h,
		metrics: m,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		r.metricsMiddleware(),
		middleware.CORS(config.CORSConfig),
		middleware.SecurityHeaders(config.Security),
		middleware.SizeLimit(config.MaxBodySize),
	)

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RPS:   config.RateLimit,
		Burst: config.RateBurst,
	})
	engine.Use(rateLimiter.RateLimit())

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.h.Health.RegisterRoutes(api)

	// Public routes
	r.h.Auth.RegisterRoutes(api)
	r.h.Reference.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.h.Auth.RegisterProtectedRoutes(protected)
	r.h.Reference.RegisterProtectedRoutes(protected)
	r.h.Emergency.RegisterRoutes(protected)
	r.h.Donor.RegisterRoutes(protected)
	r.h.Notification.RegisterRoutes(protected)
	r.h.Ranking.RegisterRoutes(protected)
	r.h.Realtime.RegisterRoutes(protected)

	hospital := protected.Group("")
	hospital.Use(r.auth.RequireRole(model.RoleHospital))
	r.h.Emergency.RegisterHospitalRoutes(hospital)
	r.h.Report.RegisterRoutes(hospital)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		r.metrics.RequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		r.metrics.RequestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
