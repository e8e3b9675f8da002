package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lifedrop/lifedrop-api/config"
	"github.com/lifedrop/lifedrop-api/internal/email"
	"github.com/lifedrop/lifedrop-api/internal/geocode"
	"github.com/lifedrop/lifedrop-api/internal/handler"
	authHandler "github.com/lifedrop/lifedrop-api/internal/handler/auth"
	donorHandler "github.com/lifedrop/lifedrop-api/internal/handler/donor"
	emergencyHandler "github.com/lifedrop/lifedrop-api/internal/handler/emergency"
	"github.com/lifedrop/lifedrop-api/internal/handler/health"
	notificationHandler "github.com/lifedrop/lifedrop-api/internal/handler/notification"
	rankingHandler "github.com/lifedrop/lifedrop-api/internal/handler/ranking"
	"github.com/lifedrop/lifedrop-api/internal/handler/realtime"
	"github.com/lifedrop/lifedrop-api/internal/handler/reference"
	reportHandler "github.com/lifedrop/lifedrop-api/internal/handler/report"
	"github.com/lifedrop/lifedrop-api/internal/middleware"
	"github.com/lifedrop/lifedrop-api/internal/router"
	authService "github.com/lifedrop/lifedrop-api/internal/service/auth"
	donorService "github.com/lifedrop/lifedrop-api/internal/service/donor"
	emergencyService "github.com/lifedrop/lifedrop-api/internal/service/emergency"
	notificationService "github.com/lifedrop/lifedrop-api/internal/service/notification"
	rankingService "github.com/lifedrop/lifedrop-api/internal/service/ranking"
	reportService "github.com/lifedrop/lifedrop-api/internal/service/report"
	"github.com/lifedrop/lifedrop-api/internal/store"
	"github.com/lifedrop/lifedrop-api/internal/store/local"
	"github.com/lifedrop/lifedrop-api/internal/store/remote"
	"github.com/lifedrop/lifedrop-api/pkg/auth"
	"github.com/lifedrop/lifedrop-api/pkg/logger"
	"github.com/lifedrop/lifedrop-api/pkg/metrics"
)

// logSender stands in for SMTP during development so sign-up codes can
// still be read from the logs.
type logSender struct {
	log *logger.Logger
}

func (s logSender) SendOTP(_ context.Context, to, code string) error {
	s.log.Warn("mail is not configured; logging verification code", "to", to, "code", code)
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to config.yml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level: logger.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})
	m := metrics.NewMetrics("lifedrop", nil)

	ctx := context.Background()

	// Mail is optional; without it codes go to the log.
	var sender remote.CodeSender = logSender{log: log.Named("mail")}
	if mailer, err := email.NewService(cfg.ToMailConfig()); err == nil {
		sender = mailer
	} else if !errors.Is(err, email.ErrNotConfigured) {
		log.Fatal(err, "failed to configure mail")
	}

	var remoteOpener store.Opener
	if cfg.RemoteEnabled() {
		remoteOpener = remote.Opener(cfg.ToRemoteConfig(), sender, log)
	}
	st, err := store.Open(ctx, remoteOpener, local.Opener(cfg.Backend.LocalPath, log), log, m)
	if err != nil {
		log.Fatal(err, "failed to open store")
	}
	defer st.Close()
	log.Info("store ready", "mode", st.Mode())

	var (
		geocoder emergencyService.Geocoder
		searcher reference.Searcher
	)
	if cfg.Geocode.Enabled {
		client := geocode.NewClient(cfg.ToGeocodeConfig(), log)
		geocoder, searcher = client, client
	}

	var db health.Pinger
	if rb, ok := st.Backend().(*remote.Backend); ok {
		db = rb.DB()
	}

	jwtSvc, err := auth.NewJWTService(cfg.ToJWTConfig())
	if err != nil {
		log.Fatal(err, "failed to configure tokens")
	}

	// Initialize services
	authSvc := authService.NewService(st, jwtSvc, log)
	emergencySvc := emergencyService.NewService(st, cfg.ToNotificationConfig(), geocoder, log, m)
	donorSvc := donorService.NewService(st, log)
	notificationSvc := notificationService.NewService(st)
	rankingSvc := rankingService.NewService(st)
	reportSvc := reportService.NewService(st)

	hub := realtime.NewHub(st, log)
	defer hub.Close()

	if err := handler.RegisterValidators(); err != nil {
		log.Fatal(err, "failed to register validators")
	}

	// Setup router
	r := router.NewRouter(
		middleware.NewAuthMiddleware(authSvc),
		router.Handlers{
			Health:       health.NewHandler(st.Mode(), db, nil),
			Auth:         authHandler.NewHandler(authSvc),
			Reference:    reference.NewHandler(searcher),
			Emergency:    emergencyHandler.NewHandler(emergencySvc),
			Donor:        donorHandler.NewHandler(donorSvc),
			Notification: notificationHandler.NewHandler(notificationSvc),
			Ranking:      rankingHandler.NewHandler(rankingSvc),
			Report:       reportHandler.NewHandler(reportSvc),
			Realtime:     realtime.NewHandler(hub, cfg.CORS.AllowedOrigins, log),
		},
		m,
		log,
		cfg.ToRouterConfig(),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}

	log.Info("server exited properly")
}
