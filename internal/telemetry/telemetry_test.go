package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloudWatch struct {
	mu     sync.Mutex
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestPrometheusRecorder_Counts(t *testing.T) {
	p := NewPrometheusRecorder("vega")

	p.RecordRequest("GET", "/v1/models", "200", 15*time.Millisecond)
	p.RecordRequest("GET", "/v1/models", "200", 5*time.Millisecond)
	p.RecordWebhook("Completed", OutcomeApplied)
	p.RecordWebhook("Completed", OutcomeDuplicate)
	p.RecordSubscriptionAction("cancel", ResultSuccess)
	p.RecordCacheLookup(true)
	p.RecordCacheLookup(false)
	p.RecordCacheLookup(false)
	p.RecordMaintenance("expire_subscriptions", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.requests.WithLabelValues("GET", "/v1/models", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.webhooks.WithLabelValues("Completed", OutcomeApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.actions.WithLabelValues("cancel", ResultSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.cacheLookups.WithLabelValues(CacheMiss)))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.maintenance.WithLabelValues("expire_subscriptions")))
}

func TestPrometheusRecorder_Handler(t *testing.T) {
	p := NewPrometheusRecorder("vega")
	p.RecordWebhook("Declined", OutcomeApplied)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `vega_webhook_events_total{outcome="applied",status="Declined"} 1`))
}

func TestPrometheusRecorder_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusRecorder("vega")
		NewPrometheusRecorder("vega")
	})
}

func TestCloudWatchRecorder_FlushBatches(t *testing.T) {
	fake := &fakeCloudWatch{}
	c := NewCloudWatchRecorder(fake, "Vega", nil)

	for i := 0; i < maxDatumsPerPut+1; i++ {
		c.RecordWebhook("Completed", OutcomeApplied)
	}
	require.Equal(t, maxDatumsPerPut+1, c.Pending())

	require.NoError(t, c.Flush(context.Background()))
	require.Len(t, fake.inputs, 2)
	assert.Len(t, fake.inputs[0].MetricData, maxDatumsPerPut)
	assert.Len(t, fake.inputs[1].MetricData, 1)
	assert.Equal(t, "Vega", aws.ToString(fake.inputs[0].Namespace))
	assert.Zero(t, c.Pending())
}

func TestCloudWatchRecorder_RequestEmitsCountAndLatency(t *testing.T) {
	fake := &fakeCloudWatch{}
	c := NewCloudWatchRecorder(fake, "Vega", nil)

	c.RecordRequest("POST", "/v1/subscriptions", "201", 120*time.Millisecond)
	require.NoError(t, c.Flush(context.Background()))

	data := fake.inputs[0].MetricData
	require.Len(t, data, 2)
	assert.Equal(t, MetricAPIRequest, aws.ToString(data[0].MetricName))
	assert.Len(t, data[0].Dimensions, 3)
	assert.Equal(t, MetricAPILatency, aws.ToString(data[1].MetricName))
	assert.Equal(t, 120.0, aws.ToFloat64(data[1].Value))
}

func TestCloudWatchRecorder_FlushErrorDropsBatch(t *testing.T) {
	fake := &fakeCloudWatch{err: errors.New("throttled")}
	c := NewCloudWatchRecorder(fake, "Vega", nil)
	c.RecordCacheLookup(true)

	assert.Error(t, c.Flush(context.Background()))
	assert.Zero(t, c.Pending())
}

func TestCloudWatchRecorder_EmptyFlushIsNoop(t *testing.T) {
	fake := &fakeCloudWatch{}
	c := NewCloudWatchRecorder(fake, "Vega", nil)

	require.NoError(t, c.Flush(context.Background()))
	assert.Empty(t, fake.inputs)
}

func TestDimensionsSkipsEmptyValues(t *testing.T) {
	dims := dimensions(DimAction, "cancel", DimResult, "")
	require.Len(t, dims, 1)
	assert.Equal(t, DimAction, aws.ToString(dims[0].Name))
}
