package reconcile

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"geocdn/internal/clock"
	"geocdn/internal/service/common"
)

// MetricsPublisher はスキャン結果をメトリクスとして送信します
type MetricsPublisher interface {
	Publish(ctx context.Context, report *ScanReport) error
}

// CloudWatchAPI は cloudwatch.Client のうちメトリクス送信で使う操作
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics はCloudWatchへスキャン件数を送信します
type CloudWatchMetrics struct {
	client    CloudWatchAPI
	namespace string
	clock     clock.Clock
}

// NewCloudWatchMetrics は CloudWatchMetrics を作成します
func NewCloudWatchMetrics(client CloudWatchAPI, namespace string, c clock.Clock) *CloudWatchMetrics {
	if c == nil {
		c = clock.Real()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, clock: c}
}

// Publish は PendingDistributions / ReconcileSucceeded / ReconcileFailed を送信します
func (m *CloudWatchMetrics) Publish(ctx context.Context, report *ScanReport) error {
	now := m.clock.Now()
	datum := func(name string, value int) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Timestamp:  aws.Time(now.Truncate(time.Second)),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(value)),
		}
	}
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			datum("PendingDistributions", report.TotalFound),
			datum("ReconcileSucceeded", report.Succeeded),
			datum("ReconcileFailed", report.Failed),
		},
	})
	if err != nil {
		return common.NewProviderError("メトリクスの送信に失敗", err)
	}
	return nil
}
