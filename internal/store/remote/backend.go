// Package remote is the networked backend: PostgreSQL tables as the source
// of truth and redis pub/sub channels, one per table, for change events.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sony/gobreaker"

	"github.com/lifedrop/lifedrop-api/internal/store"
	"github.com/lifedrop/lifedrop-api/pkg/logger"
	"github.com/lifedrop/lifedrop-api/pkg/messaging"
	redisbroker "github.com/lifedrop/lifedrop-api/pkg/messaging/redis"
)

// BreakerConfig trips the write breaker after ConsecutiveFailures failed
// batches and probes again after Timeout.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// Config holds everything the remote backend needs.
type Config struct {
	Database DatabaseConfig
	Redis    redisbroker.Config
	Breaker  BreakerConfig
	OTPTTL   time.Duration
}

// Backend implements store.Backend against PostgreSQL and redis.
type Backend struct {
	db      *sqlx.DB
	broker  messaging.Broker
	breaker *gobreaker.CircuitBreaker
	log     *logger.Logger
	auth    *authenticator
	origin  string

	wg sync.WaitGroup
}

// New assembles a backend from open connections.
func New(db *sqlx.DB, broker messaging.Broker, cfg Config, sender CodeSender, log *logger.Logger) *Backend {
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("remote")

	trip := cfg.Breaker.ConsecutiveFailures
	if trip == 0 {
		trip = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote-writes",
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	b := &Backend{
		db:      db,
		broker:  broker,
		breaker: breaker,
		log:     log,
		origin:  uuid.NewString(),
	}
	b.auth = newAuthenticator(db, sender, cfg.OTPTTL, log)
	return b
}

// Opener connects to PostgreSQL and redis, applies the schema and returns
// the backend. Any failure is reported so store.Open can fall back.
func Opener(cfg Config, sender CodeSender, log *logger.Logger) store.Opener {
	return func(ctx context.Context) (store.Backend, error) {
		if log == nil {
			log = logger.Nop()
		}
		db, err := NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		broker, err := redisbroker.NewRedisBroker(ctx, cfg.Redis, log.Named("redis").Zerolog())
		if err != nil {
			db.Close()
			return nil, err
		}
		return New(db, broker, cfg, sender, log), nil
	}
}

func (b *Backend) Mode() store.Mode {
	return store.ModeRemote
}

func (b *Backend) NewID() string {
	return uuid.NewString()
}

func (b *Backend) Hydrate(ctx context.Context) (*store.Snapshot, error) {
	return loadSnapshot(ctx, b.db)
}

// Apply writes the batch in one transaction behind the breaker, then
// publishes each change on its table's channel tagged with this backend's
// origin. Publish failures are logged only; the rows are already committed.
func (b *Backend) Apply(ctx context.Context, batch []store.Mutation, _ *store.Snapshot) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, withTx(ctx, b.db, func(tx *sqlx.Tx) error {
			for _, m := range batch {
				if err := upsert(ctx, tx, m); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	for _, m := range batch {
		ev, err := store.NewEvent(m)
		if err != nil {
			b.log.Error(err, "failed to encode change event", "table", m.Collection)
			continue
		}
		ev.Origin = b.origin
		if err := b.broker.Publish(ctx, string(m.Collection), ev); err != nil {
			b.log.Error(err, "failed to publish change event", "table", m.Collection)
		}
	}
	return nil
}

// Subscribe listens on the realtime tables and hands decoded events to
// handler on a single goroutine. Events this backend published itself are
// skipped; the store already committed them.
func (b *Backend) Subscribe(ctx context.Context, handler func(store.Event)) error {
	channels := make([]string, 0, len(store.RealtimeCollections))
	for _, c := range store.RealtimeCollections {
		channels = append(channels, string(c))
	}
	msgs, err := b.broker.Subscribe(ctx, channels...)
	if err != nil {
		return fmt.Errorf("realtime subscribe: %w", err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range msgs {
			var ev store.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.log.Warn("dropping undecodable realtime message", "channel", msg.Channel, "error", err.Error())
				continue
			}
			if ev.Origin == b.origin {
				continue
			}
			if ev.Table == "" {
				ev.Table = store.Collection(msg.Channel)
			}
			handler(ev)
		}
	}()
	return nil
}

func (b *Backend) Auth() store.Authenticator {
	return b.auth
}

// DB exposes the connection pool for readiness checks.
func (b *Backend) DB() *sqlx.DB {
	return b.db
}

// Close waits for the realtime consumer, so the Subscribe context must be
// cancelled first.
func (b *Backend) Close() error {
	b.wg.Wait()
	brokerErr := b.broker.Close()
	if err := b.db.Close(); err != nil {
		return err
	}
	return brokerErr
}
