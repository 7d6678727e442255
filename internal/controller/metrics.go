package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	streamsv1alpha1 "github.com/dc-tec/stream-operator/api/v1alpha1"
)

var (
	reconcileDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stream",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of reconciliation cycles in seconds",
			// Rolling updates push the tail well past a minute.
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 300, 900},
		},
		[]string{"namespace", "name", "controller"},
	)

	reconcileErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stream",
			Name:      "reconcile_errors_total",
			Help:      "Total number of failed reconciliation cycles",
		},
		[]string{"namespace", "name", "controller", "reason"},
	)

	clusterNodesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stream",
			Name:      "cluster_nodes",
			Help:      "Number of instances observed for a StreamCluster",
		},
		[]string{"namespace", "name"},
	)

	metadataStateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stream",
			Name:      "cluster_metadata_state",
			Help:      "Current metadata migration phase of a StreamCluster (1 = active phase)",
		},
		[]string{"namespace", "name", "state"},
	)
)

var metadataStates = []streamsv1alpha1.MetadataState{
	streamsv1alpha1.MetadataStateEnsemble,
	streamsv1alpha1.MetadataStateMigrating,
	streamsv1alpha1.MetadataStateDualWrite,
	streamsv1alpha1.MetadataStatePostMigration,
	streamsv1alpha1.MetadataStatePreQuorum,
	streamsv1alpha1.MetadataStateQuorum,
}

func init() {
	metrics.Registry.MustRegister(
		reconcileDurationHistogram,
		reconcileErrorsTotal,
		clusterNodesGauge,
		metadataStateGauge,
	)
}

// ReconcileMetrics provides helpers to record reconcile-level metrics for a
// specific controller and StreamCluster.
type ReconcileMetrics struct {
	namespace  string
	name       string
	controller string
}

// NewReconcileMetrics creates a new ReconcileMetrics instance.
func NewReconcileMetrics(namespace, name, controller string) *ReconcileMetrics {
	return &ReconcileMetrics{
		namespace:  namespace,
		name:       name,
		controller: controller,
	}
}

// ObserveDuration records the duration of a reconcile cycle in seconds.
func (m *ReconcileMetrics) ObserveDuration(durationSeconds float64) {
	reconcileDurationHistogram.
		WithLabelValues(m.namespace, m.name, m.controller).
		Observe(durationSeconds)
}

// IncrementError increments the reconcile error counter with the given reason.
// Reason values are condition reasons such as "GatewayError".
func (m *ReconcileMetrics) IncrementError(reason string) {
	reconcileErrorsTotal.
		WithLabelValues(m.namespace, m.name, m.controller, reason).
		Inc()
}

// ClusterMetrics records per-cluster state.
type ClusterMetrics struct {
	namespace string
	name      string
}

// NewClusterMetrics creates a new ClusterMetrics instance.
func NewClusterMetrics(namespace, name string) *ClusterMetrics {
	return &ClusterMetrics{
		namespace: namespace,
		name:      name,
	}
}

// SetNodes records the number of observed instances.
func (m *ClusterMetrics) SetNodes(count int) {
	clusterNodesGauge.
		WithLabelValues(m.namespace, m.name).
		Set(float64(count))
}

// SetMetadataState sets the gauge of the given phase to 1 and every other phase to 0.
func (m *ClusterMetrics) SetMetadataState(state streamsv1alpha1.MetadataState) {
	for _, s := range metadataStates {
		value := 0.0
		if s == state {
			value = 1
		}
		metadataStateGauge.
			WithLabelValues(m.namespace, m.name, string(s)).
			Set(value)
	}
}

// Clear removes all per-cluster series. Called once the cluster is gone.
func (m *ClusterMetrics) Clear() {
	clusterNodesGauge.
		DeleteLabelValues(m.namespace, m.name)
	for _, s := range metadataStates {
		metadataStateGauge.
			DeleteLabelValues(m.namespace, m.name, string(s))
	}
	reconcileDurationHistogram.DeletePartialMatch(prometheus.Labels{"namespace": m.namespace, "name": m.name})
	reconcileErrorsTotal.DeletePartialMatch(prometheus.Labels{"namespace": m.namespace, "name": m.name})
}
