package rolling

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

// Stage labels.
const (
	stageCoordinators = "coordinators"
	stageData         = "data"
	stageDependents   = "dependents"
)

var (
	rollingRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stream",
			Name:      "rolling_restarts_total",
			Help:      "Total number of restarts issued by the rolling-update orchestrator",
		},
		[]string{"namespace", "name", "stage"},
	)

	rollingFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stream",
			Name:      "rolling_failures_total",
			Help:      "Total number of restarts that failed or never became healthy",
		},
		[]string{"namespace", "name", "stage"},
	)

	rollingRestartDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stream",
			Name:      "rolling_restart_duration_seconds",
			Help:      "Time from issuing a restart until the component reported healthy",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"namespace", "name", "stage"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		rollingRestartsTotal,
		rollingFailuresTotal,
		rollingRestartDuration,
	)
}

type rollMetrics struct {
	namespace string
	name      string
}

func (m rollMetrics) restarted(stage string, seconds float64) {
	rollingRestartsTotal.WithLabelValues(m.namespace, m.name, stage).Inc()
	rollingRestartDuration.WithLabelValues(m.namespace, m.name, stage).Observe(seconds)
}

func (m rollMetrics) failed(stage string) {
	rollingFailuresTotal.WithLabelValues(m.namespace, m.name, stage).Inc()
}

// ClearMetrics removes the series of a deleted cluster.
func ClearMetrics(namespace, name string) {
	labels := prometheus.Labels{"namespace": namespace, "name": name}
	rollingRestartsTotal.DeletePartialMatch(labels)
	rollingFailuresTotal.DeletePartialMatch(labels)
	rollingRestartDuration.DeletePartialMatch(labels)
}
