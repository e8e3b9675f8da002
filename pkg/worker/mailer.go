package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/store"
	"github.com/lifedrop/lifedrop-api/pkg/messaging"
	"github.com/lifedrop/lifedrop-api/pkg/metrics"
)

// Profiles resolves a notification's recipient.
type Profiles interface {
	Profile(ctx context.Context, userID string) (*model.User, error)
}

// Mailer delivers one notification email.
type Mailer interface {
	SendNotification(ctx context.Context, to, name, message string) error
}

type MailerConfig struct {
	Concurrency   int
	SendTimeout   time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// NotificationMailer emails every newly inserted notification published on
// the notifications channel. Updates, such as marking one read, are ignored.
type NotificationMailer struct {
	broker   messaging.Broker
	profiles Profiles
	mailer   Mailer
	config   MailerConfig
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewNotificationMailer(
	broker messaging.Broker,
	profiles Profiles,
	mailer Mailer,
	config MailerConfig,
	logger *zap.Logger,
	m *metrics.Metrics,
) *NotificationMailer {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 30 * time.Second
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &NotificationMailer{
		broker:   broker,
		profiles: profiles,
		mailer:   mailer,
		config:   config,
		logger:   logger,
		metrics:  m,
	}
}

// Start consumes until ctx is cancelled and waits for its workers to drain.
func (w *NotificationMailer) Start(ctx context.Context) error {
	msgs, err := w.broker.Subscribe(ctx, string(store.CollectionNotifications))
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	w.logger.Info("Notification mailer started", zap.Int("concurrency", w.config.Concurrency))

	jobs := make(chan model.Notification)
	var wg sync.WaitGroup
	for i := 0; i < w.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				w.deliver(ctx, n)
			}
		}()
	}

	defer func() {
		close(jobs)
		wg.Wait()
		w.logger.Info("Notification mailer stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			n, ok := w.decode(msg)
			if !ok {
				continue
			}
			select {
			case jobs <- n:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (w *NotificationMailer) decode(msg messaging.Message) (model.Notification, bool) {
	var ev store.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		w.metrics.MailDeliveries.WithLabelValues("invalid").Inc()
		w.logger.Warn("Skipping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
		return model.Notification{}, false
	}
	if ev.Type != store.OpInsert {
		return model.Notification{}, false
	}
	if ev.Table == "" {
		ev.Table = store.Collection(msg.Channel)
	}

	m, err := ev.Mutation()
	if err != nil {
		w.metrics.MailDeliveries.WithLabelValues("invalid").Inc()
		w.logger.Warn("Skipping undecodable event", zap.Error(err))
		return model.Notification{}, false
	}
	n, ok := m.Record.(model.Notification)
	if !ok || n.UserID == "" {
		return model.Notification{}, false
	}
	return n, true
}

func (w *NotificationMailer) deliver(ctx context.Context, n model.Notification) {
	timer := prometheus.NewTimer(w.metrics.MailLatency)
	defer timer.ObserveDuration()

	log := w.logger.With(zap.String("notification_id", n.ID), zap.String("user_id", n.UserID))

	ctx, cancel := context.WithTimeout(ctx, w.config.SendTimeout)
	defer cancel()

	user, err := w.profiles.Profile(ctx, n.UserID)
	if errors.Is(err, store.ErrNotFound) {
		w.metrics.MailDeliveries.WithLabelValues("unknown_user").Inc()
		log.Warn("Recipient not found")
		return
	}
	if err != nil {
		w.metrics.MailDeliveries.WithLabelValues("failed").Inc()
		log.Error("Failed to resolve recipient", zap.Error(err))
		return
	}
	if user.Email == "" {
		w.metrics.MailDeliveries.WithLabelValues("no_email").Inc()
		return
	}

	err = retry(ctx, w.config.RetryAttempts, w.config.RetryDelay, func() error {
		return w.mailer.SendNotification(ctx, user.Email, user.FullName, n.Message)
	})
	if err != nil {
		w.metrics.MailDeliveries.WithLabelValues("failed").Inc()
		log.Error("Failed to send notification email", zap.Error(err))
		return
	}

	w.metrics.MailDeliveries.WithLabelValues("sent").Inc()
	log.Debug("Notification email sent")
}

// retry makes up to attempts calls, backing off exponentially from delay,
// and stops early when ctx ends.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = delay
	eb.MaxElapsedTime = 0
	return backoff.Retry(fn, backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx))
}
