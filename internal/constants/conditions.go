package constants

// Common condition reasons used by the operator for various Status conditions.
const (
	// Ready indicates a resource is fully prepared and functional.
	ReasonReady = "Ready"
	// Error indicates a generic failure state.
	ReasonError = "Error"
	// Paused indicates reconciliation is disabled for the resource.
	ReasonPaused = "Paused"

	// ReasonConfigurationError indicates the cluster spec cannot be reconciled as written.
	ReasonConfigurationError = "ConfigurationError"
	// ReasonGatewayError indicates a transient failure talking to the Kubernetes API.
	ReasonGatewayError = "GatewayError"
	// ReasonHealthTimeout indicates a restarted instance never became healthy.
	ReasonHealthTimeout = "HealthTimeout"
	// ReasonPartialRollout indicates some dependent deployments failed to restart.
	ReasonPartialRollout = "PartialRollout"

	// ReasonRolled indicates the last cycle restarted components.
	ReasonRolled = "Rolled"
	// ReasonIdle indicates nothing had to be restarted.
	ReasonIdle = "Idle"
	// ReasonPending indicates a restart sequence did not finish and will be resumed.
	ReasonPending = "Pending"
)
