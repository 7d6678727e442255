package constants

// Resource name suffixes used by the operator when creating per-cluster resources.
const (
	SuffixClusterCACert = "-cluster-ca-cert"
	SuffixClusterCAKey  = "-cluster-ca"
	SuffixClientsCACert = "-clients-ca-cert"
	SuffixClientsCAKey  = "-clients-ca"

	SuffixOperatorIdentity = "-operator-identity"
)

// Data keys inside CA and identity Secrets.
const (
	SecretKeyCACert = "ca.crt"
	SecretKeyCAKey  = "ca.key"
	SecretKeyTLSCrt = "tls.crt"
	SecretKeyTLSKey = "tls.key"

	// SecretKeyPriorCACertFormat names a retained prior-generation CA certificate.
	SecretKeyPriorCACertFormat = "ca-%d.crt"
)

// Controller and field owner names.
const (
	ControllerNameStreamCluster = "streamcluster"
	FieldOwnerOperator          = "stream-operator"
)
