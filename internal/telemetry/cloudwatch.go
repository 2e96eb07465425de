package telemetry

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// maxDatumsPerPut is the PutMetricData limit per request.
const maxDatumsPerPut = 1000

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRecorder buffers datums in memory and pushes them on Flush.
// The API flushes on an interval via Run; the maintenance Lambda flushes
// once per invocation.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending []cwtypes.MetricDatum
}

// NewCloudWatchRecorder creates a recorder publishing under namespace.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{
		client:    client,
		namespace: namespace,
		logger:    logger,
		now:       time.Now,
	}
}

func (c *CloudWatchRecorder) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := dimensions(DimMethod, method, DimEndpoint, endpoint, DimStatus, status)
	c.add(MetricAPIRequest, 1, cwtypes.StandardUnitCount, dims)
	c.add(MetricAPILatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds,
		dimensions(DimMethod, method, DimEndpoint, endpoint))
}

func (c *CloudWatchRecorder) RecordWebhook(status, outcome string) {
	c.add(MetricWebhookEvent, 1, cwtypes.StandardUnitCount, dimensions(DimStatus, status, DimOutcome, outcome))
}

func (c *CloudWatchRecorder) RecordSubscriptionAction(action, result string) {
	c.add(MetricSubscriptionAction, 1, cwtypes.StandardUnitCount, dimensions(DimAction, action, DimResult, result))
}

func (c *CloudWatchRecorder) RecordCacheLookup(hit bool) {
	c.add(MetricEntitlementCache, 1, cwtypes.StandardUnitCount, dimensions(DimResult, cacheLabel(hit)))
}

func (c *CloudWatchRecorder) RecordMaintenance(task string, rows int) {
	c.add(MetricMaintenanceRows, float64(rows), cwtypes.StandardUnitCount, dimensions(DimTask, task))
}

func (c *CloudWatchRecorder) add(name string, value float64, unit cwtypes.StandardUnit, dims []cwtypes.Dimension) {
	datum := cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(c.now()),
		Dimensions: dims,
	}
	c.mu.Lock()
	c.pending = append(c.pending, datum)
	c.mu.Unlock()
}

// Pending returns the number of buffered datums.
func (c *CloudWatchRecorder) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Flush sends every buffered datum. Datums of a failed batch are dropped
// and the last error is returned.
func (c *CloudWatchRecorder) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	var lastErr error
	for start := 0; start < len(batch); start += maxDatumsPerPut {
		end := min(start+maxDatumsPerPut, len(batch))
		_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: batch[start:end],
		})
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to publish metrics",
				"error", err.Error(),
				"datums", strconv.Itoa(end-start),
			)
			lastErr = err
		}
	}
	return lastErr
}

// Run flushes every interval until ctx is done, then flushes one last time
// with a short detached deadline.
func (c *CloudWatchRecorder) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.Flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			_ = c.Flush(flushCtx)
			cancel()
			return
		}
	}
}

// dimensions builds dimensions from name/value pairs, skipping empty values.
func dimensions(kv ...string) []cwtypes.Dimension {
	dims := make([]cwtypes.Dimension, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		dims = append(dims, cwtypes.Dimension{Name: aws.String(kv[i]), Value: aws.String(kv[i+1])})
	}
	return dims
}
