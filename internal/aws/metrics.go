package aws

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names emitted by the checkout service.
const (
	MetricOrdersCreated      = "OrdersCreated"
	MetricProofsSubmitted    = "ProofsSubmitted"
	MetricNotificationsSent  = "NotificationsSent"
	MetricNotificationErrors = "NotificationErrors"
	MetricEnqueueErrors      = "EnqueueErrors"
)

// MetricsRecorder publishes counters to CloudWatch. Failures are logged and
// swallowed; metrics never affect the request outcome.
type MetricsRecorder struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewMetricsRecorder returns a recorder bound to a namespace, e.g. "BakeryCheckout".
func NewMetricsRecorder(client CloudWatchAPI, namespace string) *MetricsRecorder {
	return &MetricsRecorder{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// Count emits a count metric with an optional payment_method dimension.
func (m *MetricsRecorder) Count(ctx context.Context, name string, value float64, paymentMethod string) {
	if m == nil || m.client == nil {
		return
	}
	now := m.nowFunc()
	datum := cwtypes.MetricDatum{
		MetricName: &name,
		Value:      &value,
		Timestamp:  &now,
		Unit:       cwtypes.StandardUnitCount,
	}
	if paymentMethod != "" {
		dimName := "payment_method"
		datum.Dimensions = []cwtypes.Dimension{
			{Name: &dimName, Value: &paymentMethod},
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  &m.namespace,
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		log.Printf("put metric %s failed: %v", name, err)
	}
}
