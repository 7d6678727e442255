package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/dc-tec/stream-operator/internal/constants"
	operatorerrors "github.com/dc-tec/stream-operator/internal/errors"
)

// Operator holds the tunables of the reconciliation core.
// Flags set the baseline; environment variables override them.
type Operator struct {
	MetricsAddr          string
	ProbeAddr            string
	EnableLeaderElection bool
	SecureMetrics        bool
	EnableHTTP2          bool

	MaxConcurrentReconciles int
	OperationTimeout        time.Duration
	RollerBackoffBase       time.Duration
	RollerBackoffFactor     float64
	RollerMaxAttempts       int
	RestartsPerMinute       int
	WorkerPoolSize          int
	OperatorNamespace       string
}

// Default returns the configuration used when nothing is overridden.
func Default() Operator {
	return Operator{
		MetricsAddr:             ":8443",
		ProbeAddr:               ":8081",
		SecureMetrics:           true,
		MaxConcurrentReconciles: 1,
		OperationTimeout:        constants.DefaultOperationTimeout,
		RollerBackoffBase:       constants.DefaultRollerBackoffBase,
		RollerBackoffFactor:     constants.DefaultRollerBackoffScale,
		RollerMaxAttempts:       constants.DefaultRollerMaxAttempts,
		WorkerPoolSize:          constants.DefaultWorkerPoolSize,
		OperatorNamespace:       "stream-operator-system",
	}
}

// BindFlags registers the operator flags on fs, using the current values as defaults.
func (o *Operator) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&o.MetricsAddr, "metrics-bind-address", o.MetricsAddr, "The address the metrics endpoint binds to.")
	fs.StringVar(&o.ProbeAddr, "health-probe-bind-address", o.ProbeAddr, "The address the probe endpoint binds to.")
	fs.BoolVar(&o.EnableLeaderElection, "leader-elect", o.EnableLeaderElection,
		"Enable leader election for controller manager. "+
			"Enabling this will ensure there is only one active controller manager.")
	fs.BoolVar(&o.SecureMetrics, "metrics-secure", o.SecureMetrics,
		"If set, the metrics endpoint is served securely via HTTPS. Use --metrics-secure=false to use HTTP instead.")
	fs.BoolVar(&o.EnableHTTP2, "enable-http2", o.EnableHTTP2, "If set, HTTP/2 will be enabled for the metrics server")

	fs.IntVar(&o.MaxConcurrentReconciles, "max-concurrent-reconciles", o.MaxConcurrentReconciles,
		"Number of StreamClusters reconciled in parallel.")
	fs.DurationVar(&o.OperationTimeout, "operation-timeout", o.OperationTimeout,
		"Upper bound for every wait-for-health operation.")
	fs.DurationVar(&o.RollerBackoffBase, "roller-backoff-base", o.RollerBackoffBase,
		"Initial delay between health checks after an instance restart.")
	fs.Float64Var(&o.RollerBackoffFactor, "roller-backoff-factor", o.RollerBackoffFactor,
		"Multiplier applied to the health check delay after each failed attempt.")
	fs.IntVar(&o.RollerMaxAttempts, "roller-max-attempts", o.RollerMaxAttempts,
		"Health check attempts before a restarted instance is declared unhealthy.")
	fs.IntVar(&o.RestartsPerMinute, "restarts-per-minute", o.RestartsPerMinute,
		"Upper bound on instance restarts per minute per cluster. 0 disables throttling.")
	fs.IntVar(&o.WorkerPoolSize, "worker-pool-size", o.WorkerPoolSize,
		"Concurrent slots for blocking work such as key generation.")
}

// ApplyEnv overrides fields from environment variables read through lookup.
// lookup is usually os.LookupEnv.
func (o *Operator) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if err := envMillis(lookup, constants.EnvOperationTimeoutMS, &o.OperationTimeout); err != nil {
		return err
	}
	if err := envMillis(lookup, constants.EnvRollerBackoffBaseMS, &o.RollerBackoffBase); err != nil {
		return err
	}
	if v, ok := lookup(constants.EnvRollerBackoffFactor); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return operatorerrors.Configurationf("%s=%q is not a number", constants.EnvRollerBackoffFactor, v)
		}
		o.RollerBackoffFactor = f
	}
	for _, e := range []struct {
		name   string
		target *int
	}{
		{constants.EnvRollerMaxAttempts, &o.RollerMaxAttempts},
		{constants.EnvRestartsPerMinute, &o.RestartsPerMinute},
		{constants.EnvWorkerPoolSize, &o.WorkerPoolSize},
		{constants.EnvMaxConcurrentReconcile, &o.MaxConcurrentReconciles},
	} {
		if err := envInt(lookup, e.name, e.target); err != nil {
			return err
		}
	}
	if v, ok := lookup(constants.EnvPodNamespace); ok && v != "" {
		o.OperatorNamespace = v
	}
	return nil
}

// Validate rejects values the orchestrator cannot work with.
func (o *Operator) Validate() error {
	switch {
	case o.OperationTimeout <= 0:
		return operatorerrors.Configurationf("operation timeout must be positive, got %s", o.OperationTimeout)
	case o.RollerBackoffBase <= 0:
		return operatorerrors.Configurationf("roller backoff base must be positive, got %s", o.RollerBackoffBase)
	case o.RollerBackoffFactor < 1:
		return operatorerrors.Configurationf("roller backoff factor must be at least 1, got %v", o.RollerBackoffFactor)
	case o.RollerMaxAttempts < 1:
		return operatorerrors.Configurationf("roller max attempts must be at least 1, got %d", o.RollerMaxAttempts)
	case o.RestartsPerMinute < 0:
		return operatorerrors.Configurationf("restarts per minute must not be negative, got %d", o.RestartsPerMinute)
	case o.WorkerPoolSize < 1:
		return operatorerrors.Configurationf("worker pool size must be at least 1, got %d", o.WorkerPoolSize)
	case o.MaxConcurrentReconciles < 1:
		return operatorerrors.Configurationf("max concurrent reconciles must be at least 1, got %d", o.MaxConcurrentReconciles)
	}
	return nil
}

func envMillis(lookup func(string) (string, bool), name string, target *time.Duration) error {
	v, ok := lookup(name)
	if !ok || v == "" {
		return nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return operatorerrors.Configurationf("%s=%q is not a number of milliseconds", name, v)
	}
	*target = time.Duration(ms) * time.Millisecond
	return nil
}

func envInt(lookup func(string) (string, bool), name string, target *int) error {
	v, ok := lookup(name)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return operatorerrors.Configurationf("%s=%q is not an integer", name, v)
	}
	*target = n
	return nil
}
