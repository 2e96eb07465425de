package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"vega/internal/api/handlers"
	"vega/internal/auth"
	"vega/internal/billing"
	"vega/internal/cache"
	"vega/internal/config"
	"vega/internal/core"
	"vega/internal/db"
	"vega/internal/external"
	"vega/internal/models"
	"vega/internal/queue"
	"vega/internal/telemetry"
)

const metricsFlushInterval = time.Minute

// appStore is the non-transactional data access the API needs. *db.Store
// satisfies it.
type appStore interface {
	billing.ManagedSubscriptionStore
	billing.UserReader
	auth.SessionRepo
}

// dependencies holds the connected infrastructure. buildServer only reads
// it, so tests can hand in fakes.
type dependencies struct {
	Store          appStore
	Tx             billing.TxRunner
	Usage          billing.UsageStore
	Cache          billing.EntitlementCache
	RateLimit      core.RateLimitStore
	Provider       external.PaymentProvider
	Publisher      billing.EventPublisher
	Metrics        telemetry.Recorder
	MetricsHandler http.Handler
	Probes         []core.HealthProbe

	closers []core.ShutdownHook
}

func (d *dependencies) onClose(hook core.ShutdownHook) {
	d.closers = append(d.closers, hook)
}

// close releases resources in reverse order. Used when startup fails after
// some connections were opened.
func (d *dependencies) close(ctx context.Context) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i](ctx)
	}
}

// txRunner adapts db.TxManager to billing.TxRunner by binding a Store to
// each transaction.
type txRunner struct {
	tm *db.TxManager
}

func (r txRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, store billing.ReconcileStore) error) error {
	return r.tm.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, db.NewStore(tx))
	})
}

// connectDependencies opens every external connection named by cfg.
func connectDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *dependencies, err error) {
	d := &dependencies{}
	defer func() {
		if err != nil {
			d.close(context.Background())
		}
	}()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting database: %w", err)
	}
	d.onClose(func(context.Context) error {
		pool.Close()
		return nil
	})
	tm := db.NewTxManager(pool)
	d.Store = db.NewStore(pool)
	d.Tx = txRunner{tm: tm}
	d.Usage = db.NewUsageCounter(pool, tm)
	d.Probes = append(d.Probes, core.HealthProbeFunc{ProbeName: "database", Fn: pool.Ping})

	if cfg.Redis.Enabled() {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.URL.Unmask())
		if err != nil {
			return nil, fmt.Errorf("connecting redis: %w", err)
		}
		d.onClose(func(context.Context) error { return client.Close() })
		d.Cache = cache.NewRedisEntitlementCache(client, cfg.Redis.EntitlementTTL, logger)
		d.RateLimit = core.NewRedisRateLimitStore(client)
		d.Probes = append(d.Probes, core.HealthProbeFunc{
			ProbeName: "redis",
			Fn:        func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
		logger.Info("using redis for entitlement cache and rate limits")
	} else {
		d.Cache = cache.NewMemoryEntitlementCache(cfg.Redis.EntitlementTTL)
		d.RateLimit = core.NewMemoryRateLimitStore()
	}

	if cfg.CloudPayments.UseStub {
		logger.Warn("using stub payment provider")
		d.Provider = external.NewStubPaymentProvider(logger)
	} else {
		d.Provider = external.NewDefaultCloudPaymentsClient(external.CloudPaymentsConfig{
			PublicID:  cfg.CloudPayments.PublicID,
			APISecret: cfg.CloudPayments.APISecret,
			BaseURL:   cfg.CloudPayments.BaseURL,
			Logger:    logger,
		})
	}

	useCloudWatch := cfg.Observability.MetricsBackend == "cloudwatch"
	var awsCfg aws.Config
	if useCloudWatch || cfg.AWS.LifecycleQueue != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, fmt.Errorf("loading aws config: %w", err)
		}
	}
	endpoint := cfg.AWS.EndpointURL

	if cfg.AWS.LifecycleQueue != "" {
		client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		d.Publisher = queue.NewLifecyclePublisher(client, cfg.AWS.LifecycleQueue, logger)
	} else {
		d.Publisher = queue.NopPublisher{}
	}

	if useCloudWatch {
		client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		recorder := telemetry.NewCloudWatchRecorder(client, cfg.Observability.MetricNamespace, logger)
		d.Metrics = recorder

		runCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			recorder.Run(runCtx, metricsFlushInterval)
		}()
		d.onClose(func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return fmt.Errorf("flushing metrics: %w", ctx.Err())
			}
		})
	} else {
		recorder := telemetry.NewPrometheusRecorder(strings.ToLower(cfg.Observability.MetricNamespace))
		d.Metrics = recorder
		d.MetricsHandler = recorder.Handler()
	}

	return d, nil
}

// buildServer wires the billing services into the handlers and returns a
// server whose routes are not mounted yet.
func buildServer(cfg *config.Config, d *dependencies, logger *slog.Logger) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}
	srv.Authenticator = auth.NewSessionAuthenticator(d.Store, nil, logger)
	srv.RateLimitStore = d.RateLimit
	srv.Metrics = d.Metrics
	srv.MetricsHandler = d.MetricsHandler
	srv.HealthProbes = d.Probes
	for _, hook := range d.closers {
		srv.OnShutdown(hook)
	}

	plans := billing.NewStaticPlanRegistry()

	entitlements := billing.NewEntitlementService(billing.EntitlementServiceConfig{
		Subscriptions: d.Store,
		Users:         d.Store,
		Cache:         d.Cache,
		Metrics:       d.Metrics,
		Logger:        logger,
	})

	reconciler := billing.NewReconciler(billing.ReconcilerConfig{
		Tx:           d.Tx,
		Plans:        plans,
		Entitlements: entitlements,
		Publisher:    d.Publisher,
		Metrics:      d.Metrics,
		Logger:       logger,
	})

	manager := billing.NewSubscriptionManager(billing.SubscriptionManagerConfig{
		Store:        d.Store,
		Provider:     d.Provider,
		Entitlements: entitlements,
		Publisher:    d.Publisher,
		Metrics:      d.Metrics,
		Logger:       logger,
	})

	checkout := billing.NewCheckout(billing.CheckoutConfig{
		Provider:  d.Provider,
		APISecret: cfg.CloudPayments.APISecret,
		Plans:     plans,
		Metrics:   d.Metrics,
		Logger:    logger,
	})

	usage := billing.NewUsageGate(billing.UsageGateConfig{
		Store:  d.Usage,
		Limit:  cfg.Usage.DailyMessageLimit,
		Logger: logger,
	})

	webhookHandler := handlers.NewCloudPaymentsWebhookHandler(
		external.NewHMACWebhookVerifier(cfg.CloudPayments.WebhookSecret),
		reconciler,
		d.Metrics,
		logger,
	)
	subscriptionHandler := handlers.NewSubscriptionHandler(checkout, manager, d.Store, entitlements, srv.Validator, logger)
	modelHandler := handlers.NewModelHandler(models.Default(), entitlements, logger)
	usageHandler := handlers.NewUsageHandler(usage, entitlements, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		webhookHandler.RegisterRoutes,
		subscriptionHandler.RegisterRoutes,
		modelHandler.RegisterRoutes,
		usageHandler.RegisterRoutes,
	)

	return srv, nil
}

// Compile-time checks that the concrete implementations fit.
var (
	_ appStore           = (*db.Store)(nil)
	_ billing.TxRunner   = txRunner{}
	_ billing.UsageStore = (*db.UsageCounter)(nil)
)
