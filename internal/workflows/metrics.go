package workflows

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/remindd/internal/workflows"

// Metrics for reminder notification workflows
var (
	deliveredCounter     metric.Int64Counter
	deliveryErrorCounter metric.Int64Counter
	activityDuration     metric.Float64Histogram
)

// initMetrics initializes OpenTelemetry metrics for workflows.
// This is called once during package initialization.
func initMetrics() {
	meter := otel.Meter(instrumentationName)

	var err error

	deliveredCounter, err = meter.Int64Counter(
		"remindd.workflows.notification.deliveries",
		metric.WithDescription("Reminder notification deliveries by outcome"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create delivery counter: %v", err))
	}

	deliveryErrorCounter, err = meter.Int64Counter(
		"remindd.workflows.notification.errors",
		metric.WithDescription("Reminder notification delivery errors by reason"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create delivery error counter: %v", err))
	}

	activityDuration, err = meter.Float64Histogram(
		"remindd.workflows.activity.duration",
		metric.WithDescription("Duration of workflow activity executions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity duration: %v", err))
	}
}

func init() {
	initMetrics()
}
