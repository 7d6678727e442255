package constants

// Environment variable keys read by the operator.
const (
	EnvOperationTimeoutMS     = "STREAM_OPERATION_TIMEOUT_MS"
	EnvRollerBackoffBaseMS    = "STREAM_ROLLER_BACKOFF_BASE_MS"
	EnvRollerBackoffFactor    = "STREAM_ROLLER_BACKOFF_FACTOR"
	EnvRollerMaxAttempts      = "STREAM_ROLLER_MAX_ATTEMPTS"
	EnvRestartsPerMinute      = "STREAM_RESTARTS_PER_MINUTE"
	EnvWorkerPoolSize         = "STREAM_WORKER_POOL_SIZE"
	EnvMaxConcurrentReconcile = "STREAM_MAX_CONCURRENT_RECONCILES"
	EnvPodNamespace           = "POD_NAMESPACE"
)
