package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"claimreg/internal/claims/events"
	"claimreg/internal/claims/handler"
	claimsmetrics "claimreg/internal/claims/metrics"
	"claimreg/internal/claims/registry"
	"claimreg/internal/claims/sequence"
	"claimreg/internal/claims/service"
	"claimreg/internal/claims/store"
	jwttoken "claimreg/internal/jwt_token"
	"claimreg/internal/platform/config"
	"claimreg/internal/platform/kafka"
	"claimreg/internal/platform/metrics"
	"claimreg/internal/platform/postgres"
	platformredis "claimreg/internal/platform/redis"
	ratelimitmetrics "claimreg/internal/ratelimit/metrics"
	ratelimitmw "claimreg/internal/ratelimit/middleware"
	ratelimitmodels "claimreg/internal/ratelimit/models"
	"claimreg/internal/ratelimit/store/bucket"
	httptransport "claimreg/internal/transport/http"
	"claimreg/pkg/platform/circuit"
	txcontext "claimreg/pkg/platform/tx"
)

type app struct {
	router    http.Handler
	service   *service.Service
	storeKind string
	workers   []func(ctx context.Context) error
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg config.Server, log *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	policy, err := registry.ParseTransferSequencePolicy(cfg.TransferSequencePolicy)
	if err != nil {
		return nil, err
	}

	checks := map[string]httptransport.HealthCheck{}
	claimMetrics := claimsmetrics.New()

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		checks["redis"] = redisClient.Health
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(claimMetrics),
		service.WithTransferSequencePolicy(policy),
	}

	var (
		claimStore interface {
			service.Store
			sequence.HighWater
		}
		sink events.Sink
	)
	if cfg.UsesPostgres() {
		db, err := postgres.Open(ctx, postgres.Config{URL: cfg.DatabaseURL, MaxOpenConns: 25, MaxIdleConns: 5})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		checks["postgres"] = db.PingContext

		claimStore = store.NewPostgres(db)
		sink = events.NewOutboxSink(db)
		opts = append(opts, service.WithTx(service.NewPostgresTx(txcontext.NewPostgres(db, cfg.TxTimeout))))
		a.storeKind = "postgres"

		if err := a.buildRelay(ctx, cfg, log, db, claimMetrics, checks); err != nil {
			return nil, err
		}
	} else {
		claimStore = store.NewInMemory()
		sink = events.NewMemorySink()
		opts = append(opts, service.WithTx(service.NewShardedTx(cfg.TxTimeout)))
		a.storeKind = "memory"
	}

	seq, err := a.buildSequence(ctx, cfg, log, redisClient, claimStore)
	if err != nil {
		return nil, err
	}

	svc, err := service.New(claimStore, seq, sink, opts...)
	if err != nil {
		return nil, err
	}
	a.service = svc

	jwt := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	limiter := buildRateLimiter(cfg, log, redisClient)
	claimHandler := handler.New(svc, log, jwttoken.NewJWTServiceAdapter(jwt),
		handler.WithMutationMiddleware(limiter.LimitMutations))

	a.router = httptransport.NewRouter(httptransport.RouterConfig{
		Logger:       log,
		Metrics:      metrics.New(),
		HealthChecks: checks,
	}, claimHandler)
	return a, nil
}

// buildSequence relies on config validation: the redis source implies a
// configured client. Either source resumes from the highest stored sequence.
func (a *app) buildSequence(
	ctx context.Context,
	cfg config.Server,
	log *slog.Logger,
	client *platformredis.Client,
	hw sequence.HighWater,
) (registry.SequenceSource, error) {
	if cfg.SequenceSource == config.SequenceSourceRedis && client != nil {
		src := sequence.NewRedis(client, cfg.SequenceKey)
		if err := sequence.ResumeRedis(ctx, src, hw); err != nil {
			return nil, err
		}
		return src, nil
	}
	ticker, err := sequence.ResumeTicker(ctx, hw, cfg.BlockInterval)
	if err != nil {
		return nil, err
	}
	start, _ := ticker.Current(ctx)
	a.workers = append(a.workers, func(ctx context.Context) error {
		log.Info("sequence ticker started", "interval", cfg.BlockInterval, "start", start)
		return ticker.Run(ctx)
	})
	return ticker, nil
}

// buildRateLimiter uses Redis when configured, falling back to a per-process
// window while the Redis circuit is open.
func buildRateLimiter(cfg config.Server, log *slog.Logger, client *platformredis.Client) *ratelimitmw.Middleware {
	limit := ratelimitmodels.Limit{
		RequestsPerWindow: cfg.RateLimit.MutationsPerWindow,
		Window:            cfg.RateLimit.Window,
	}
	m := ratelimitmetrics.New()
	if client == nil {
		return ratelimitmw.New(bucket.NewInMemoryBucketStore(), limit, log, ratelimitmw.WithMetrics(m))
	}
	return ratelimitmw.New(bucket.NewRedis(client), limit, log,
		ratelimitmw.WithMetrics(m),
		ratelimitmw.WithFallback(bucket.NewInMemoryBucketStore(), circuit.New("redis-ratelimit")),
	)
}

func (a *app) buildRelay(
	ctx context.Context,
	cfg config.Server,
	log *slog.Logger,
	db *sql.DB,
	m *claimsmetrics.Metrics,
	checks map[string]httptransport.HealthCheck,
) error {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warn("KAFKA_BROKERS not set, claim events stay in the outbox")
		return nil
	}

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, producer.Close)
	if err := producer.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
		return err
	}
	checks["kafka"] = producer.Health

	relayOpts := []events.RelayOption{
		events.WithPollInterval(cfg.RelayPollInterval),
		events.WithRelayLogger(log),
		events.WithRelayMetrics(m),
	}
	listener, err := events.ListenPgx(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Warn("outbox listener unavailable, relay will poll", "error", err)
	} else {
		a.closers = append(a.closers, func() { _ = listener.Close(context.Background()) })
		relayOpts = append(relayOpts, events.WithListener(listener))
	}

	relay, err := events.NewRelay(events.NewPostgresOutbox(db), producer, relayOpts...)
	if err != nil {
		return fmt.Errorf("build relay: %w", err)
	}
	a.workers = append(a.workers, func(ctx context.Context) error {
		log.Info("outbox relay started", "topic", producer.Topic())
		return relay.Run(ctx)
	})
	return nil
}
