package constants

import "time"

// Requeue intervals used by controllers.
const (
	RequeueShort    = 5 * time.Second
	RequeueStandard = 2 * time.Minute
)

// Defaults for rolling restarts. Overridable through operator configuration.
const (
	DefaultOperationTimeout   = 5 * time.Minute
	DefaultRollerBackoffBase  = 250 * time.Millisecond
	DefaultRollerBackoffScale = 2.0
	DefaultRollerMaxAttempts  = 10
	DefaultWorkerPoolSize     = 4
)

// Operator identity certificate lifetime. It is reissued once it is inside the
// cluster CA's renewal window or was signed by an older CA generation.
const (
	IdentityValidityDays = 90
)
