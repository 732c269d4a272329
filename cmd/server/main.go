package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"issuance/internal/compliance"
	caHandler "issuance/internal/corporateaction/handler"
	camodels "issuance/internal/corporateaction/models"
	caService "issuance/internal/corporateaction/service"
	"issuance/internal/correlator"
	correlatorHandler "issuance/internal/correlator/handler"
	derivHandler "issuance/internal/derivatives/handler"
	"issuance/internal/derivatives/repository"
	derivService "issuance/internal/derivatives/service"
	"issuance/internal/ingest"
	"issuance/internal/issuer"
	jwttoken "issuance/internal/jwt_token"
	ledgerHandler "issuance/internal/ledger/handler"
	ledgerService "issuance/internal/ledger/service"
	offeringHandler "issuance/internal/offering/handler"
	offeringService "issuance/internal/offering/service"
	"issuance/internal/platform/config"
	"issuance/internal/platform/httpserver"
	"issuance/internal/platform/kafka"
	"issuance/internal/platform/logger"
	"issuance/internal/platform/metrics"
	"issuance/internal/platform/scheduler"
	"issuance/internal/rbac"
	registryHandler "issuance/internal/registry/handler"
	registryService "issuance/internal/registry/service"
	"issuance/internal/settlement/csd"
	settlementHandler "issuance/internal/settlement/handler"
	settlementService "issuance/internal/settlement/service"
	httptransport "issuance/internal/transport/http"
	"issuance/pkg/platform/events"
	"issuance/pkg/platform/events/memory"
	"issuance/pkg/platform/events/postgres"
)

const outboxRelayBatch = 500

// unitIssuer is the token gateway as seen by both the offering and the
// settlement engine.
type unitIssuer interface {
	offeringService.UnitIssuer
	settlementService.UnitIssuer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := metrics.New()

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()
	st := newStores(infra)

	// Events go to the outbox when Postgres is configured and are relayed to
	// Kafka by a scheduled job; without Postgres they go to Kafka directly.
	var sink events.Sink = memory.NewSink()
	var kafkaSink *kafka.Sink
	if infra.producer != nil {
		kafkaSink = kafka.NewSink(infra.producer, cfg.Kafka.EventsTopicPrefix)
		if err := kafka.EnsureTopics(ctx, infra.producer, 3, 1, append(kafkaSink.Topics(), cfg.Kafka.IngestTopic)...); err != nil {
			return err
		}
		sink = kafkaSink
	}
	var outbox *postgres.Outbox
	if infra.db != nil {
		outbox = postgres.New(infra.db)
		sink = outbox
	}
	publisher := events.NewPublisher(sink, events.WithLogger(log), events.WithMetrics(events.NewMetrics()))
	defer publisher.Close()

	bindings, err := rbac.ParseBindings(cfg.Server.RoleBindings)
	if err != nil {
		return fmt.Errorf("ROLE_BINDINGS: %w", err)
	}
	gate := rbac.New(bindings, rbac.WithLogger(log), rbac.WithMetrics(m))

	requests := correlator.New(gate,
		correlator.WithTTL(cfg.Lifecycle.RequestTTL),
		correlator.WithLogger(log),
		correlator.WithEvents(publisher),
		correlator.WithMetrics(m),
		correlator.WithWorkers(cfg.Lifecycle.ExecutorWorkers),
	)
	defer requests.Close()

	var units unitIssuer = issuer.Logging{Logger: log}
	if cfg.Issuer.Endpoint != "" {
		units = issuer.NewClient(cfg.Issuer.Endpoint, cfg.Issuer.APIKey, cfg.Issuer.Timeout, log)
	}
	var tradeRepository derivService.Repository = repository.Logging{Logger: log}
	if cfg.TradeRepository.Endpoint != "" {
		tradeRepository = repository.NewClient(cfg.TradeRepository.Endpoint, cfg.TradeRepository.APIKey, cfg.TradeRepository.Timeout, log)
	}

	registry := registryService.New(st.securities, gate,
		registryService.WithLogger(log),
		registryService.WithEvents(publisher),
		registryService.WithRequestIssuer(requests),
	)
	ledger := ledgerService.New(st.positions, gate,
		ledgerService.WithLogger(log),
		ledgerService.WithEvents(publisher),
		ledgerService.WithRequestIssuer(requests),
	)
	offerings := offeringService.New(st.offerings, registry, ledger, compliance.NewJurisdictionOracle(cfg.BlockedJurisdictions), gate,
		offeringService.WithLogger(log),
		offeringService.WithEvents(publisher),
		offeringService.WithMetrics(m),
		offeringService.WithUnitIssuer(units),
	)
	settlements := settlementService.New(st.markers, registry, units, gate,
		settlementService.WithLogger(log),
		settlementService.WithEvents(publisher),
		settlementService.WithMetrics(m),
		settlementService.WithRollbackOnFailure(cfg.Lifecycle.MarkerRollbackOnFailure),
		settlementService.WithVerifier(csd.NewRegistry(cfg.CSD, csd.WithLogger(log))),
		settlementService.WithMaxConcurrent(cfg.Lifecycle.ReconcileBatchSize),
	)
	actions := caService.New(st.actions, st.markers, registry, gate,
		caService.WithLogger(log),
		caService.WithEvents(publisher),
		caService.WithMetrics(m),
		caService.WithHandler(camodels.KindSplit, caService.SplitSupplyHandler(registry)),
		caService.WithMarkBeforeValidate(cfg.Lifecycle.MarkBeforeValidate),
	)
	derivatives := derivService.New(st.derivatives, registry, gate, requests,
		derivService.WithLogger(log),
		derivService.WithEvents(publisher),
	)
	derivatives.RegisterExecutors(requests, tradeRepository)

	dispatcher := ingest.NewDispatcher(ingest.Services{
		Offerings:        offerings,
		Investors:        ledger,
		Settlements:      settlements,
		CorporateActions: actions,
		Derivatives:      derivatives,
		Requests:         requests,
	}, ingest.WithLogger(log), ingest.WithMetrics(m))

	sched := scheduler.New(log, scheduler.WithJobTimeout(5*time.Minute))
	type scheduled struct {
		schedule string
		job      scheduler.Job
	}
	jobs := []scheduled{
		{cfg.Schedules.Reconcile, scheduler.FuncJob{JobName: "csd_reconcile", Fn: settlements.ReconcilePending}},
		{cfg.Schedules.RequestSweep, scheduler.FuncJob{JobName: "request_sweep", Fn: func(ctx context.Context) error {
			if n := requests.SweepExpired(ctx); n > 0 {
				log.InfoContext(ctx, "expired external requests", "count", n)
			}
			return nil
		}}},
	}
	if outbox != nil && kafkaSink != nil {
		jobs = append(jobs, scheduled{cfg.Schedules.OutboxRelay, scheduler.FuncJob{JobName: "outbox_relay", Fn: func(ctx context.Context) error {
			_, err := outbox.Relay(ctx, kafkaSink, outboxRelayBatch)
			return err
		}}})
	}
	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			return fmt.Errorf("schedule %s: %w", j.job.Name(), err)
		}
	}
	sched.Start()
	defer sched.Stop()

	if len(cfg.Kafka.Brokers) > 0 {
		consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.IngestTopic, ingest.RecordHandler(dispatcher), log)
		if err != nil {
			return err
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error("ingest consumer stopped", "error", err)
			}
		}()
	}

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, "issuance", "issuance-api")
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:    log,
		Validator: jwttoken.NewJWTServiceAdapter(jwtService),
		Metrics:   m,
		Health:    infra.healthChecks(),
		RateLimit: newRateLimiter(infra, cfg.RateLimit, m, log).RateLimitAuthenticated,
		Modules: []httptransport.Registrar{
			registryHandler.New(registry, log),
			ledgerHandler.New(ledger, log),
			offeringHandler.New(offerings, log),
			settlementHandler.New(settlements, log),
			caHandler.New(actions, log),
			derivHandler.New(derivatives, log),
			correlatorHandler.New(requests, log),
			ingest.NewHandler(dispatcher, log),
		},
		RequestTimeout: 30 * time.Second,
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting issuance engine", "addr", cfg.Server.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
