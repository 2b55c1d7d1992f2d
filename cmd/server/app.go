package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	custodyhandler "aidchain/internal/custody/handler"
	custodymetrics "aidchain/internal/custody/metrics"
	custodyservice "aidchain/internal/custody/service"
	"aidchain/internal/events"
	jwttoken "aidchain/internal/jwt_token"
	ledgerhandler "aidchain/internal/ledger/handler"
	ledgermetrics "aidchain/internal/ledger/metrics"
	ledgermodels "aidchain/internal/ledger/models"
	ledgerservice "aidchain/internal/ledger/service"
	"aidchain/internal/platform/config"
	"aidchain/internal/platform/idempotency"
	"aidchain/internal/platform/metrics"
	"aidchain/internal/platform/middleware"
	aidredis "aidchain/internal/platform/redis"
	ratelimitmetrics "aidchain/internal/ratelimit/metrics"
	ratelimit "aidchain/internal/ratelimit/middleware"
	ratelimitmodels "aidchain/internal/ratelimit/models"
	"aidchain/internal/ratelimit/store/bucket"
	registryhandler "aidchain/internal/registry/handler"
	registrymetrics "aidchain/internal/registry/metrics"
	registryservice "aidchain/internal/registry/service"
	httptransport "aidchain/internal/transport/http"
	audit "aidchain/pkg/platform/audit"
	"aidchain/pkg/platform/audit/kafka"
	"aidchain/pkg/platform/audit/relay"
)

const serviceName = "aidchain"

// app is the fully wired process minus its listeners.
type app struct {
	handler   http.Handler
	relay     *relay.Relay
	tokens    *jwttoken.JWTService
	authority common.Address
	closers   []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp builds stores, services, handlers and the outbox relay from cfg.
// Metrics are registered on reg.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, func() { _ = be.close() })

	publisher := audit.NewPublisher(be.events, audit.WithPublisherLogger(log))

	registry, err := registryservice.New(be.registry, be.tx,
		registryservice.WithLogger(log),
		registryservice.WithAuditPublisher(publisher),
		registryservice.WithMetrics(registrymetrics.New(reg)),
	)
	if err != nil {
		return nil, err
	}
	if a.authority, err = registry.EnsureAuthority(ctx, cfg.Ledger.Authority); err != nil {
		return nil, fmt.Errorf("seed authority: %w", err)
	}

	ledger, err := ledgerservice.New(be.ledger, registry, be.tx, ledgermodels.Params{
		Threshold:       cfg.Ledger.Threshold,
		MinDonation:     cfg.Ledger.MinDonation,
		MaxUnitsPerCall: cfg.Ledger.MaxUnitsPerCall,
	},
		ledgerservice.WithLogger(log),
		ledgerservice.WithAuditPublisher(publisher),
		ledgerservice.WithMetrics(ledgermetrics.New(reg)),
	)
	if err != nil {
		return nil, err
	}

	custody, err := custodyservice.New(be.custody, ledger, be.tx,
		custodyservice.WithLogger(log),
		custodyservice.WithAuditPublisher(publisher),
		custodyservice.WithMetrics(custodymetrics.New(reg)),
	)
	if err != nil {
		return nil, err
	}

	a.tokens = jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	validator := jwttoken.NewJWTServiceAdapter(a.tokens)
	requireAuth := middleware.RequireAuth(validator, log)
	optionalAuth := middleware.OptionalAuth(validator, log)

	health := []httptransport.HealthCheck{{Name: "store", Check: be.health}}

	var (
		idemStore   idempotency.Store = idempotency.NewMemoryStore()
		bucketStore ratelimit.Store   = bucket.NewInMemoryStore()
		limiterOpts []ratelimit.Option
	)
	redisClient, err := aidredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		idemStore = idempotency.NewRedisStore(redisClient.Client)
		bucketStore = bucket.NewRedisStore(redisClient.Client)
		limiterOpts = append(limiterOpts, ratelimit.WithFallback(bucket.NewInMemoryStore()))
		health = append(health, httptransport.HealthCheck{Name: "redis", Check: redisClient.Health})
	}

	sink, closeSink, err := openSink(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeSink)
	a.relay = relay.New(be.events, sink,
		relay.WithInterval(cfg.RelayInterval),
		relay.WithMetrics(relay.NewMetrics(reg)),
		relay.WithLogger(log),
	)

	limiter := ratelimit.New(bucketStore, map[ratelimitmodels.Class]ratelimitmodels.Limit{
		ratelimitmodels.ClassRead:  {Requests: cfg.RateLimit.ReadsPerWindow, Window: cfg.RateLimit.Window},
		ratelimitmodels.ClassWrite: {Requests: cfg.RateLimit.WritesPerWindow, Window: cfg.RateLimit.Window},
	}, log, append(limiterOpts, ratelimit.WithMetrics(ratelimitmetrics.New(reg)))...)

	a.handler = httptransport.NewRouter(httptransport.Config{
		ServiceName: serviceName,
		Logger:      log,
		Metrics:     metrics.New(reg),
		Gatherer:    reg,
		Health:      health,
		RateLimit:   limiter.Handler,
		Handlers: []httptransport.Routes{
			registryhandler.New(registry, log, requireAuth),
			ledgerhandler.New(ledger, log, requireAuth, idempotency.Middleware(idemStore, cfg.Idempotency.TTL, log)),
			custodyhandler.New(custody, log, requireAuth, optionalAuth),
			events.New(publisher, log),
		},
	})
	return a, nil
}

// openSink picks the Kafka sink when brokers are configured and the log sink otherwise.
func openSink(ctx context.Context, cfg *config.Config, log *slog.Logger) (relay.Sink, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("no kafka brokers configured; events are relayed to the log")
		return relay.NewLogSink(log), func() {}, nil
	}
	sink, err := kafka.NewSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka sink: %w", err)
	}
	if err := sink.EnsureTopic(ctx, 1, 1); err != nil {
		log.Warn("could not ensure kafka topic", "topic", cfg.Kafka.Topic, "error", err)
	}
	return sink, sink.Close, nil
}
