package metrics

import (
	"sync"

	"github.com/warehouselabs/replica-gateway/utils/buildversion"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type RgMetrics struct {
	DatasetReconciles metric.Int64Counter
	ReplicaOperations metric.Int64Counter
	DatasetsCreated   metric.Int64Counter
	OptionUpdates     metric.Int64Counter
}

var (
	rgMetrics     *RgMetrics
	rgMetricsLock sync.Mutex
)

func GetRgMetrics() *RgMetrics {
	rgMetricsLock.Lock()

	if rgMetrics != nil {
		rgMetricsLock.Unlock()
		return rgMetrics
	}

	rgMetrics = newRgMetrics()

	rgMetricsLock.Unlock()
	return rgMetrics
}

var buildVersion string = buildversion.GetVersion("github.com/warehouselabs/replica-gateway")

func newRgMetrics() *RgMetrics {
	meter := otel.Meter(
		"com.warehouselabs.replica-gateway",
		metric.WithInstrumentationVersion(buildVersion))

	datasetReconciles, _ := meter.Int64Counter("dataset_reconciles_total")
	replicaOperations, _ := meter.Int64Counter("replica_operations_total")
	datasetsCreated, _ := meter.Int64Counter("datasets_created_total")
	optionUpdates, _ := meter.Int64Counter("dataset_option_updates_total")

	return &RgMetrics{
		DatasetReconciles: datasetReconciles,
		ReplicaOperations: replicaOperations,
		DatasetsCreated:   datasetsCreated,
		OptionUpdates:     optionUpdates,
	}
}
