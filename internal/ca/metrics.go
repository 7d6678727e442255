package ca

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	renewalKindCreated     = "created"
	renewalKindRenewed     = "renewed"
	renewalKindKeyReplaced = "key-replaced"
	renewalKindDeferred    = "deferred"
	renewalKindRetired     = "retired"
)

var (
	caCertExpiryTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stream",
			Name:      "ca_cert_expiry_timestamp",
			Help:      "Unix timestamp when the current CA certificate expires",
		},
		[]string{"namespace", "name", "scope"},
	)

	caGeneration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stream",
			Name:      "ca_generation",
			Help:      "Current certificate generation of the CA",
		},
		[]string{"namespace", "name", "scope"},
	)

	caRenewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stream",
			Name:      "ca_renewals_total",
			Help:      "Total number of CA lifecycle changes by kind",
		},
		[]string{"namespace", "name", "scope", "kind"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		caCertExpiryTimestamp,
		caGeneration,
		caRenewalsTotal,
	)
}

// caMetrics records CA metrics for one cluster and scope.
type caMetrics struct {
	namespace string
	name      string
	scope     string
}

func newCAMetrics(namespace, name string, scope TrustScope) *caMetrics {
	return &caMetrics{namespace: namespace, name: name, scope: string(scope)}
}

func (m *caMetrics) observe(ca *CertificateAuthority) {
	if na := ca.NotAfter(); !na.IsZero() {
		caCertExpiryTimestamp.WithLabelValues(m.namespace, m.name, m.scope).Set(float64(na.Unix()))
	}
	caGeneration.WithLabelValues(m.namespace, m.name, m.scope).Set(float64(ca.Generation))
}

func (m *caMetrics) recordChange(kind string) {
	caRenewalsTotal.WithLabelValues(m.namespace, m.name, m.scope, kind).Inc()
}

// ClearMetrics removes the series of a deleted cluster.
func ClearMetrics(namespace, name string) {
	for _, scope := range Scopes {
		caCertExpiryTimestamp.DeleteLabelValues(namespace, name, string(scope))
		caGeneration.DeleteLabelValues(namespace, name, string(scope))
	}
	caRenewalsTotal.DeletePartialMatch(prometheus.Labels{"namespace": namespace, "name": name})
}
