package logger

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

var cwClient *cloudwatch.Client
var cwNamespace = "Web3Script"
var cwDashboard = "web3-script"

// CloudWatchOptions configures the metric mirror. Static keys are used when
// both are set, otherwise the default credential chain applies.
type CloudWatchOptions struct {
	Region          string
	Namespace       string
	Dashboard       string
	AccessKeyID     string
	SecretAccessKey string
}

// InitCloudWatch initialises the CloudWatch client. If the region is empty it
// falls back to AWS_REGION. When the client cannot be created a warning is
// logged and metrics publishing remains disabled.
func InitCloudWatch(ctx context.Context, opts CloudWatchOptions) {
	log := GetLogger().WithComponent("cloudwatch")

	region := opts.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	loadOpts := []func(*config.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	cwClient = cloudwatch.NewFromConfig(cfg)

	if opts.Namespace != "" {
		cwNamespace = opts.Namespace
	}
	if opts.Dashboard != "" {
		cwDashboard = opts.Dashboard
	}

	log.WithFields(Fields{"region": region, "namespace": cwNamespace}).Info("initialized CloudWatch client")

	CreateDefaultDashboard(ctx)
}

// publishMetrics sends the provided metric data to CloudWatch when the client
// has been initialised.
func publishMetrics(ctx context.Context, data []cwtypes.MetricDatum) {
	log := GetLogger().WithComponent("cloudwatch")
	if cwClient == nil {
		return
	}

	if len(data) == 0 {
		log.Debug("no metric data to publish")
		return
	}

	if _, err := cwClient.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(cwNamespace),
		MetricData: data,
	}); err != nil {
		log.WithError(err).Warn("failed to publish CloudWatch metrics")
		return
	}

	names := make([]string, 0, len(data))
	for _, datum := range data {
		if datum.MetricName != nil {
			names = append(names, *datum.MetricName)
		}
	}

	log.WithField("metrics", strings.Join(names, ",")).Debug("published metrics to CloudWatch")
}

// dashboardBody lays out the round, alert and request weight metrics that
// monitors publish through LogMetric.
func dashboardBody(namespace string) string {
	return fmt.Sprintf(`{
"widgets": [{
"type": "metric",
"width": 12,
"height": 6,
"properties": {
"metrics": [
    [{"expression": "SEARCH('{%[1]s,component,monitor} MetricName=\"round_duration_ms\"', 'Average', 60)"}]
],
"period": 60,
"title": "Round duration"
}
}, {
"type": "metric",
"width": 12,
"height": 6,
"properties": {
"metrics": [
    [{"expression": "SEARCH('{%[1]s,component,monitor} MetricName=\"alert_blocks\"', 'Sum', 300)"}]
],
"period": 300,
"title": "Alert blocks"
}
}, {
"type": "metric",
"width": 24,
"height": 6,
"properties": {
"metrics": [
    [{"expression": "SEARCH('{%[1]s,component,limit} MetricName=\"used_weight\"', 'Maximum', 60)"}]
],
"period": 60,
"title": "Binance used weight (1m)"
}
}]
}`, namespace)
}

// CreateDefaultDashboard ensures a basic dashboard exists when the CloudWatch
// client has been configured. Failures are logged but do not stop execution.
func CreateDefaultDashboard(ctx context.Context) {
	if cwClient == nil {
		return
	}

	if _, err := cwClient.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(cwDashboard),
		DashboardBody: aws.String(dashboardBody(cwNamespace)),
	}); err != nil {
		GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to create CloudWatch dashboard")
	}
}
