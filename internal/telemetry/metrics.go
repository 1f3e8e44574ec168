package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"restaurantOrdering/internal/pipeline"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names published to CloudWatch.
const (
	MetricOrdersSubmitted            = "OrdersSubmitted"
	MetricSubmissionFailed           = "SubmissionFailed"
	MetricConfirmationDeliveryFailed = "ConfirmationDeliveryFailed"
	MetricOrderNumberCollisions      = "OrderNumberCollisions"
)

// CloudWatchAPI is the subset of the CloudWatch client used here.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsObserver counts pipeline events and publishes them in batches.
// Observe only touches memory; Flush does the network call.
type MetricsObserver struct {
	cw        CloudWatchAPI
	namespace string
	service   string
	log       *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	counts map[string]float64
}

var _ pipeline.Observer = (*MetricsObserver)(nil)

// NewMetricsObserver constructs a MetricsObserver.
func NewMetricsObserver(cw CloudWatchAPI, namespace, service string, log *slog.Logger) *MetricsObserver {
	return &MetricsObserver{
		cw:        cw,
		namespace: namespace,
		service:   service,
		log:       log,
		now:       time.Now,
		counts:    make(map[string]float64),
	}
}

func (m *MetricsObserver) Observe(_ context.Context, ev pipeline.Event) {
	var name string
	switch ev.Type {
	case pipeline.EventOrderSubmitted:
		name = MetricOrdersSubmitted
	case pipeline.EventSubmissionFailed:
		name = MetricSubmissionFailed
	case pipeline.EventDeliveryFailed:
		name = MetricConfirmationDeliveryFailed
	case pipeline.EventNumberCollision:
		name = MetricOrderNumberCollisions
	default:
		return
	}
	m.mu.Lock()
	m.counts[name]++
	m.mu.Unlock()
}

// Flush publishes and resets the accumulated counters.
func (m *MetricsObserver) Flush(ctx context.Context) error {
	m.mu.Lock()
	counts := m.counts
	m.counts = make(map[string]float64)
	m.mu.Unlock()
	if len(counts) == 0 {
		return nil
	}

	ts := m.now().UTC()
	data := make([]cwtypes.MetricDatum, 0, len(counts))
	for _, name := range []string{MetricOrdersSubmitted, MetricSubmissionFailed, MetricConfirmationDeliveryFailed, MetricOrderNumberCollisions} {
		v, ok := counts[name]
		if !ok {
			continue
		}
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(v),
			Timestamp:  aws.Time(ts),
			Dimensions: []cwtypes.Dimension{{Name: aws.String("Service"), Value: aws.String(m.service)}},
		})
	}
	_, err := m.cw.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		// put the counts back so the next flush retries them
		m.mu.Lock()
		for k, v := range counts {
			m.counts[k] += v
		}
		m.mu.Unlock()
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

// Run flushes every interval until ctx is done, then flushes once more.
func (m *MetricsObserver) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := m.Flush(flushCtx); err != nil && m.log != nil {
				m.log.Warn("metrics_flush_failed", "error", err)
			}
			cancel()
			return
		case <-t.C:
			if err := m.Flush(ctx); err != nil && m.log != nil {
				m.log.WarnContext(ctx, "metrics_flush_failed", "error", err)
			}
		}
	}
}
