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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lifedrop/lifedrop-api/config"
	"github.com/lifedrop/lifedrop-api/internal/email"
	"github.com/lifedrop/lifedrop-api/internal/store/remote"
	"github.com/lifedrop/lifedrop-api/pkg/logger"
	redisbroker "github.com/lifedrop/lifedrop-api/pkg/messaging/redis"
	"github.com/lifedrop/lifedrop-api/pkg/metrics"
	"github.com/lifedrop/lifedrop-api/pkg/worker"
)

func newLogger(level string, json bool) (*zap.Logger, error) {
	var cfg zap.Config
	if json {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("service_name", "lifedrop-worker")), nil
}

func healthServer(port int, reg *prometheus.Registry, ready func() error) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := ready(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func main() {
	configPath := flag.String("config", "", "path to config.yml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Notification events only flow through redis, so there is nothing to do
	// against the local store.
	if !cfg.RemoteEnabled() {
		log.Fatal("Worker requires a remote backend; set database.host")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := remote.NewDB(ctx, cfg.ToRemoteConfig().Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	brokerLog := logger.NewLogger(&logger.Config{Level: logger.ParseLevel(cfg.Log.Level), JSON: true})
	broker, err := redisbroker.NewRedisBroker(ctx, cfg.ToBrokerConfig(), brokerLog.Named("broker").Zerolog())
	if err != nil {
		log.Fatal("Failed to create Redis broker", zap.Error(err))
	}
	defer broker.Close()

	mailer, err := email.NewService(cfg.ToMailConfig())
	if err != nil {
		log.Fatal("Failed to configure mail", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("lifedrop_worker", reg)

	processor := worker.NewNotificationMailer(
		broker,
		remote.NewDirectory(db),
		mailer,
		worker.MailerConfig{
			Concurrency: cfg.Worker.Concurrency,
			SendTimeout: cfg.Worker.SendTimeout,
		},
		log.Named("mailer"),
		m,
	)

	health := healthServer(cfg.Worker.HealthPort, reg, func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return err
		}
		return broker.Client().Ping(pingCtx).Err()
	})
	go func() {
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Health check server failed", zap.Error(err))
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutting down...")
		cancel()
	}()

	if err := processor.Start(ctx); err != nil {
		log.Error("Notification mailer failed", zap.Error(err))
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	_ = health.Shutdown(shutdownCtx)
}
