// Package main is the entrypoint for the maintenance Lambda function.
//
// EventBridge rules send a JSON payload naming the task; the handler routes
// it to the matching billing job:
//
//	{"task": "expire_subscriptions"}  marks lapsed subscriptions expired
//	{"task": "sync_provider"}         refreshes charge dates from CloudPayments
//
// Buffered CloudWatch metrics are flushed before every invocation returns,
// since the runtime may freeze the process right after.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"vega/internal/billing"
	"vega/internal/cache"
	"vega/internal/config"
	"vega/internal/db"
	"vega/internal/external"
	"vega/internal/queue"
	"vega/internal/telemetry"
)

// flushTimeout bounds the metric flush at the end of an invocation.
const flushTimeout = 5 * time.Second

// MaintenancePayload is the EventBridge input.
type MaintenancePayload struct {
	Task string `json:"task"`
}

// TaskRunner runs one maintenance job and returns the rows it touched.
type TaskRunner interface {
	Run(ctx context.Context) (int, error)
}

// MetricsFlusher pushes buffered metrics.
type MetricsFlusher interface {
	Flush(ctx context.Context) error
}

// Handler holds the dependencies of the maintenance Lambda. Tasks are
// built once per cold start and reused across invocations.
type Handler struct {
	Tasks   map[string]TaskRunner
	Flusher MetricsFlusher
	Logger  *slog.Logger
}

// Handle routes payload.Task to its runner.
func (h *Handler) Handle(ctx context.Context, payload MaintenancePayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if h.Flusher != nil {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			defer cancel()
			if err := h.Flusher.Flush(flushCtx); err != nil {
				logger.WarnContext(ctx, "metrics flush failed", "error", err)
			}
		}()
	}

	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in maintenance payload")
	}
	runner, ok := h.Tasks[payload.Task]
	if !ok {
		return "", fmt.Errorf("unknown task type: %q", payload.Task)
	}

	logger.InfoContext(ctx, "maintenance task started", "task", payload.Task)
	start := time.Now()

	rows, err := runner.Run(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "maintenance task failed",
			"task", payload.Task,
			"error", err,
			"rows_before_error", rows,
		)
		return "", fmt.Errorf("task %s failed: %w", payload.Task, err)
	}

	result := fmt.Sprintf("task %s complete: %d rows", payload.Task, rows)
	logger.InfoContext(ctx, "maintenance task complete",
		"task", payload.Task,
		"rows", rows,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("maintenance Lambda initializing (cold start)")

	handler, err := newHandler(context.Background(), logger)
	if err != nil {
		logger.Error("maintenance Lambda init failed", "error", err)
		os.Exit(1)
	}

	lambda.Start(handler.Handle)
}

// newHandler connects the database, cache, provider, queue and metrics
// backend and builds the task table.
func newHandler(ctx context.Context, logger *slog.Logger) (*Handler, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	logger.Info("maintenance configuration loaded", "environment", cfg.Environment, "build", cfg.Build.String())

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting database: %w", err)
	}
	store := db.NewStore(pool)

	var entitlementCache billing.EntitlementCache
	if cfg.Redis.Enabled() {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.URL.Unmask())
		if err != nil {
			return nil, fmt.Errorf("connecting redis: %w", err)
		}
		entitlementCache = cache.NewRedisEntitlementCache(client, cfg.Redis.EntitlementTTL, logger)
	} else {
		// Nothing outside this process can observe the invalidations.
		logger.Warn("REDIS_URL not set; API entitlement caches expire by TTL only")
		entitlementCache = cache.NewMemoryEntitlementCache(cfg.Redis.EntitlementTTL)
	}

	var provider external.PaymentProvider
	if cfg.CloudPayments.UseStub {
		provider = external.NewStubPaymentProvider(logger)
	} else {
		provider = external.NewDefaultCloudPaymentsClient(external.CloudPaymentsConfig{
			PublicID:  cfg.CloudPayments.PublicID,
			APISecret: cfg.CloudPayments.APISecret,
			BaseURL:   cfg.CloudPayments.BaseURL,
			Logger:    logger,
		})
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	endpoint := cfg.AWS.EndpointURL

	var publisher billing.EventPublisher = queue.NopPublisher{}
	if cfg.AWS.LifecycleQueue != "" {
		client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		publisher = queue.NewLifecyclePublisher(client, cfg.AWS.LifecycleQueue, logger)
	}

	// A Lambda cannot be scraped, so Prometheus degrades to no metrics.
	var metrics telemetry.Recorder = telemetry.Nop{}
	var flusher MetricsFlusher
	if cfg.Observability.MetricsBackend == "cloudwatch" {
		client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		recorder := telemetry.NewCloudWatchRecorder(client, cfg.Observability.MetricNamespace, logger)
		metrics = recorder
		flusher = recorder
	}

	entitlements := billing.NewEntitlementService(billing.EntitlementServiceConfig{
		Subscriptions: store,
		Users:         store,
		Cache:         entitlementCache,
		Metrics:       metrics,
		Logger:        logger,
	})

	mcfg := billing.MaintenanceConfig{
		Store:        store,
		Provider:     provider,
		Entitlements: entitlements,
		Publisher:    publisher,
		Metrics:      metrics,
		Logger:       logger,
	}

	return &Handler{
		Tasks: map[string]TaskRunner{
			billing.TaskExpireSubscriptions: billing.NewExpirer(mcfg),
			billing.TaskSyncProvider:        billing.NewProviderSync(mcfg),
		},
		Flusher: flusher,
		Logger:  logger,
	}, nil
}
