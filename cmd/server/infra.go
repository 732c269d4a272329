package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	caService "issuance/internal/corporateaction/service"
	caStore "issuance/internal/corporateaction/store"
	derivService "issuance/internal/derivatives/service"
	derivStore "issuance/internal/derivatives/store"
	ledgerService "issuance/internal/ledger/service"
	ledgerStore "issuance/internal/ledger/store"
	offeringService "issuance/internal/offering/service"
	offeringStore "issuance/internal/offering/store"
	"issuance/internal/platform/config"
	"issuance/internal/platform/kafka"
	"issuance/internal/platform/metrics"
	"issuance/internal/platform/postgres"
	"issuance/internal/platform/redis"
	rlmiddleware "issuance/internal/ratelimit/middleware"
	rlmodels "issuance/internal/ratelimit/models"
	"issuance/internal/ratelimit/store/bucket"
	reconStore "issuance/internal/reconciliation/store"
	registryService "issuance/internal/registry/service"
	registryStore "issuance/internal/registry/store"
	settlementService "issuance/internal/settlement/service"
	httptransport "issuance/internal/transport/http"
	"issuance/pkg/platform/circuit"
)

// infra holds the optional backends. A nil field means the in-memory
// implementation is used for that concern.
type infra struct {
	db       *sql.DB
	redis    *redis.Client
	producer *kgo.Client
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		in.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			in.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info("postgres connected")
	}
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		in.Close()
		return nil, err
	}
	if client != nil {
		in.redis = client
		log.Info("redis connected")
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewClient(cfg.Kafka.Brokers)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.producer = producer
		log.Info("kafka producer ready", "brokers", cfg.Kafka.Brokers)
	}
	return in, nil
}

func (in *infra) Close() {
	if in.producer != nil {
		in.producer.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}

func (in *infra) healthChecks() map[string]httptransport.HealthCheck {
	checks := map[string]httptransport.HealthCheck{}
	if in.db != nil {
		checks["postgres"] = in.db.PingContext
	}
	if in.redis != nil {
		checks["redis"] = in.redis.Health
	}
	if in.producer != nil {
		checks["kafka"] = in.producer.Ping
	}
	return checks
}

type stores struct {
	securities  registryService.Store
	positions   ledgerService.Store
	offerings   offeringService.Store
	markers     settlementService.Markers
	actions     caService.Store
	derivatives derivService.Store
}

// newStores picks Postgres for durable state when configured. Idempotency
// markers prefer Redis, then Postgres.
func newStores(in *infra) stores {
	st := stores{
		securities:  registryStore.NewInMemory(),
		positions:   ledgerStore.NewInMemory(),
		offerings:   offeringStore.NewInMemory(),
		markers:     reconStore.NewInMemory(),
		actions:     caStore.NewInMemory(),
		derivatives: derivStore.NewInMemory(),
	}
	if in.db != nil {
		st.securities = registryStore.NewPostgres(in.db)
		st.positions = ledgerStore.NewPostgres(in.db)
		st.offerings = offeringStore.NewPostgres(in.db)
		st.markers = reconStore.NewPostgres(in.db)
		st.actions = caStore.NewPostgres(in.db)
		st.derivatives = derivStore.NewPostgres(in.db)
	}
	if in.redis != nil {
		st.markers = reconStore.NewRedis(in.redis.Client)
	}
	return st
}

// newRateLimiter counts in Redis when it is configured, falling back to a
// local window while Redis is failing.
func newRateLimiter(in *infra, cfg config.RateLimitConfig, m *metrics.Metrics, log *slog.Logger) *rlmiddleware.Middleware {
	opts := []rlmiddleware.Option{
		rlmiddleware.WithDisabled(cfg.Disabled),
		rlmiddleware.WithMetrics(m),
		rlmiddleware.WithLimit(rlmodels.ClassRead, rlmodels.Limit{RequestsPerWindow: cfg.ReadsPerMinute, Window: time.Minute}),
		rlmiddleware.WithLimit(rlmodels.ClassWrite, rlmodels.Limit{RequestsPerWindow: cfg.WritesPerMinute, Window: time.Minute}),
	}
	var store rlmiddleware.Store = bucket.NewInMemoryBucketStore()
	if in.redis != nil {
		failover := bucket.NewFailoverStore(
			bucket.NewRedisBucketStore(in.redis.Client),
			bucket.NewInMemoryBucketStore(),
			circuit.New("ratelimit"),
			log,
		)
		store = failover
		opts = append(opts, rlmiddleware.WithDegraded(failover.Degraded))
	}
	return rlmiddleware.New(store, log, opts...)
}
