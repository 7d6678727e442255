package constants

// Common Kubernetes label keys used by the operator.
const (
	LabelAppName      = "app.kubernetes.io/name"
	LabelAppInstance  = "app.kubernetes.io/instance"
	LabelAppManagedBy = "app.kubernetes.io/managed-by"
	LabelAppComponent = "app.kubernetes.io/component"

	LabelStreamCluster = "streams.dc-tec.io/cluster"
	// LabelStreamRoles holds a comma separated list of instance roles (coordinator, data).
	LabelStreamRoles = "streams.dc-tec.io/roles"
	// LabelStreamPool identifies the coordinator pool an instance belongs to (ensemble, quorum).
	LabelStreamPool = "streams.dc-tec.io/pool"
	// LabelStreamLeader is "true" on the instance currently leading its coordinator pool.
	LabelStreamLeader = "streams.dc-tec.io/leader"
	// LabelStreamTrustsClusterCA marks dependent Deployments that must restart when the
	// cluster CA key changes.
	LabelStreamTrustsClusterCA = "streams.dc-tec.io/trusts-cluster-ca"
	// LabelStreamTrustsClientsCA marks dependent Deployments trusting the clients CA.
	LabelStreamTrustsClientsCA = "streams.dc-tec.io/trusts-clients-ca"
)

// Common label values used by the operator.
const (
	LabelValueAppNameStream     = "stream"
	LabelValueManagedByOperator = "stream-operator"
	LabelValueComponentCA       = "certificate-authority"
	LabelValueComponentIdentity = "operator-identity"
	LabelValuePoolEnsemble      = "ensemble"
	LabelValuePoolQuorum        = "quorum"
	LabelValueRoleCoordinator   = "coordinator"
	LabelValueRoleData          = "data"
)
