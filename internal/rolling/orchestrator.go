// Package rolling sequences the restarts required after a CA key replacement:
// coordinators first with the leader last, then data instances one at a time
// behind a health gate, then dependent Deployments concurrently.
package rolling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/controller-runtime/pkg/client"

	streamsv1alpha1 "github.com/dc-tec/stream-operator/api/v1alpha1"
	"github.com/dc-tec/stream-operator/internal/constants"
	operatorerrors "github.com/dc-tec/stream-operator/internal/errors"
	"github.com/dc-tec/stream-operator/internal/kube"
	"github.com/dc-tec/stream-operator/internal/logging"
)

// Config tunes restart pacing and health gating.
type Config struct {
	// OperationTimeout bounds each wait for a restarted component.
	OperationTimeout time.Duration
	BackoffBase      time.Duration
	BackoffFactor    float64
	MaxAttempts      int
	// RestartsPerMinute caps restarts per cluster. Zero disables the cap.
	RestartsPerMinute int
}

// DefaultConfig returns the built-in pacing.
func DefaultConfig() Config {
	return Config{
		OperationTimeout: constants.DefaultOperationTimeout,
		BackoffBase:      constants.DefaultRollerBackoffBase,
		BackoffFactor:    constants.DefaultRollerBackoffScale,
		MaxAttempts:      constants.DefaultRollerMaxAttempts,
	}
}

func (c Config) backoff() wait.Backoff {
	return wait.Backoff{
		Duration: c.BackoffBase,
		Factor:   c.BackoffFactor,
		Steps:    max(c.MaxAttempts, 1),
	}
}

// Trigger carries one CA's contribution to the rolling decision.
type Trigger struct {
	KeyReplaced bool
	Reasons     []string
}

// Inputs is everything one rolling-update run depends on.
type Inputs struct {
	Cluster   client.ObjectKey
	ClusterCA Trigger
	ClientsCA Trigger
	// PriorIdentity is the operator identity Secret as it was before the CA
	// stage. Health checks against instances that have not restarted yet still
	// trust only the previous roots, so they must present this identity.
	PriorIdentity *corev1.Secret
	Policy        streamsv1alpha1.DependentRolloutPolicy
}

// Result summarises a run.
type Result struct {
	Reasons      Reasons
	Coordinators []string
	Data         []string
	Dependents   []string
}

// Rolled reports whether anything was restarted.
func (r Result) Rolled() bool {
	return len(r.Coordinators)+len(r.Data)+len(r.Dependents) > 0
}

// TopologyResolver returns the live data instances of a cluster in restart order.
type TopologyResolver interface {
	Resolve(ctx context.Context, cluster client.ObjectKey) ([]kube.NodeRef, error)
}

// InstanceTopology resolves topology by listing data instances.
type InstanceTopology struct {
	Instances kube.InstanceGateway
}

func (t InstanceTopology) Resolve(ctx context.Context, cluster client.ObjectKey) ([]kube.NodeRef, error) {
	return t.Instances.ListInstances(ctx, cluster, kube.RoleData)
}

// HealthCheck describes one probe of a restarted instance.
type HealthCheck struct {
	Instance client.ObjectKey
	Previous types.UID
	Identity *corev1.Secret
}

// HealthChecker decides whether a restarted instance is serving again.
type HealthChecker interface {
	Healthy(ctx context.Context, check HealthCheck) (bool, error)
}

// ReadinessHealth treats a new, Ready incarnation as healthy.
type ReadinessHealth struct {
	Instances kube.InstanceGateway
}

func (h ReadinessHealth) Healthy(ctx context.Context, check HealthCheck) (bool, error) {
	return h.Instances.Ready(ctx, check.Instance, check.Previous)
}

// Orchestrator runs rolling updates. One Orchestrator serves every cluster;
// restart pacing is tracked per cluster.
type Orchestrator struct {
	instances   kube.InstanceGateway
	deployments kube.DeploymentGateway
	topology    TopologyResolver
	health      HealthChecker
	cfg         Config

	mu       sync.Mutex
	limiters map[client.ObjectKey]*rate.Limiter
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithTopology replaces the default instance-listing topology resolver.
func WithTopology(t TopologyResolver) Option {
	return func(o *Orchestrator) { o.topology = t }
}

// WithHealthChecker replaces the default readiness health check.
func WithHealthChecker(h HealthChecker) Option {
	return func(o *Orchestrator) { o.health = h }
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(instances kube.InstanceGateway, deployments kube.DeploymentGateway, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		instances:   instances,
		deployments: deployments,
		topology:    InstanceTopology{Instances: instances},
		health:      ReadinessHealth{Instances: instances},
		cfg:         cfg,
		limiters:    map[client.ObjectKey]*rate.Limiter{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// dependentsRequired decides stage (d). The cluster CA key always triggers it;
// a clients CA key only under the AnyKeyReplaced policy.
func dependentsRequired(in Inputs) (clusterTrust, clientsTrust bool) {
	clusterTrust = in.ClusterCA.KeyReplaced
	clientsTrust = in.ClientsCA.KeyReplaced && in.Policy == streamsv1alpha1.DependentRolloutAnyKeyReplaced
	return clusterTrust, clientsTrust
}

// Run executes stages (a) to (d). Without a replaced key it does nothing.
// Failures in (a) or (c) abort the run; failures in (d) are collected after
// every dependent was attempted.
func (o *Orchestrator) Run(ctx context.Context, logger logr.Logger, in Inputs) (Result, error) {
	result := Result{
		Reasons: NewReasons(in.ClusterCA.Reasons...).Union(NewReasons(in.ClientsCA.Reasons...)),
	}
	if !in.ClusterCA.KeyReplaced && !in.ClientsCA.KeyReplaced {
		return Result{}, nil
	}

	logger = logger.WithValues("rolling_reasons", result.Reasons.String())
	m := rollMetrics{namespace: in.Cluster.Namespace, name: in.Cluster.Name}
	rolled := sets.New[string]()

	// (a) coordinators, leader last.
	if in.ClusterCA.KeyReplaced {
		names, err := o.rollCoordinators(ctx, logger, in, m)
		result.Coordinators = names
		rolled.Insert(names...)
		if err != nil {
			return result, err
		}
	}

	// (b) topology.
	nodes, err := o.topology.Resolve(ctx, in.Cluster)
	if err != nil {
		return result, err
	}

	// (c) data instances, strictly one at a time.
	for _, node := range nodes {
		if rolled.Has(node.Name) {
			continue
		}
		if err := o.restartInstance(ctx, logger, in, node, stageData, result.Reasons, m); err != nil {
			return result, err
		}
		rolled.Insert(node.Name)
		result.Data = append(result.Data, node.Name)
	}

	// (d) dependents, concurrently.
	clusterTrust, clientsTrust := dependentsRequired(in)
	if clusterTrust || clientsTrust {
		names, err := o.rollDependents(ctx, logger, in, clusterTrust, clientsTrust, result.Reasons, m)
		result.Dependents = names
		if err != nil {
			return result, err
		}
	}

	if result.Rolled() {
		logger.Info("Rolling update complete",
			"coordinators", len(result.Coordinators), "data", len(result.Data), "dependents", len(result.Dependents))
	}
	return result, nil
}

// rollCoordinators restarts every coordinator. Before each restart the current
// leader is looked up again, and it is only restarted once it is the last one left.
func (o *Orchestrator) rollCoordinators(ctx context.Context, logger logr.Logger, in Inputs, m rollMetrics) ([]string, error) {
	refs, err := o.instances.ListInstances(ctx, in.Cluster, kube.RoleCoordinator)
	if err != nil {
		return nil, err
	}

	var done []string
	remaining := refs
	for len(remaining) > 0 {
		leader, err := o.instances.Leader(ctx, in.Cluster)
		if err != nil {
			return done, err
		}

		next := pickNonLeader(remaining, leader)
		if remaining[next].Name == leader {
			logger.Info("Restarting coordinator leader last", "pod", leader)
		}
		if err := o.restartInstance(ctx, logger, in, remaining[next], stageCoordinators, NewReasons(in.ClusterCA.Reasons...), m); err != nil {
			return done, err
		}
		done = append(done, remaining[next].Name)
		remaining = append(remaining[:next:next], remaining[next+1:]...)
	}
	return done, nil
}

// pickNonLeader returns the index of the first instance that is not the leader,
// or 0 when the leader is the only one left.
func pickNonLeader(refs []kube.NodeRef, leader string) int {
	for i, r := range refs {
		if r.Name != leader {
			return i
		}
	}
	return 0
}

func (o *Orchestrator) limiter(cluster client.ObjectKey) *rate.Limiter {
	if o.cfg.RestartsPerMinute <= 0 {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.limiters[cluster]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(o.cfg.RestartsPerMinute)), 1)
		o.limiters[cluster] = l
	}
	return l
}

func (o *Orchestrator) throttle(ctx context.Context, cluster client.ObjectKey) error {
	if l := o.limiter(cluster); l != nil {
		if err := l.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for restart budget: %w", err)
		}
	}
	return nil
}

// restartInstance restarts one instance and blocks until it is healthy, the
// attempts run out, or the operation timeout expires.
func (o *Orchestrator) restartInstance(
	ctx context.Context,
	logger logr.Logger,
	in Inputs,
	node kube.NodeRef,
	stage string,
	reasons Reasons,
	m rollMetrics,
) error {
	if err := o.throttle(ctx, in.Cluster); err != nil {
		return err
	}

	key := client.ObjectKey{Namespace: in.Cluster.Namespace, Name: node.Name}
	start := time.Now()
	logger.Info("Restarting instance", "pod", node.Name, "stage", stage, "roles", node.Roles.String())

	previous, err := o.instances.Restart(ctx, key)
	if err != nil {
		m.failed(stage)
		return err
	}
	logging.LogAuditEvent(logger, logging.EventInstanceRestarted, map[string]string{
		"cluster_namespace": in.Cluster.Namespace,
		"cluster_name":      in.Cluster.Name,
		"pod":               node.Name,
		"stage":             stage,
		"reasons":           reasons.String(),
	})

	check := HealthCheck{Instance: key, Previous: previous, Identity: in.PriorIdentity}
	if err := o.awaitHealthy(ctx, check); err != nil {
		m.failed(stage)
		return err
	}
	m.restarted(stage, time.Since(start).Seconds())
	return nil
}

func (o *Orchestrator) awaitHealthy(ctx context.Context, check HealthCheck) error {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.OperationTimeout)
	defer cancel()

	attempts := 0
	var lastErr error
	err := wait.ExponentialBackoffWithContext(ctx, o.cfg.backoff(), func(ctx context.Context) (bool, error) {
		attempts++
		ok, err := o.health.Healthy(ctx, check)
		if err != nil {
			// Failed health checks count as unhealthy attempts.
			lastErr = err
			return false, nil
		}
		return ok, nil
	})
	if err == nil {
		return nil
	}
	if lastErr == nil {
		lastErr = err
	}
	return &operatorerrors.HealthTimeoutError{Instance: check.Instance.Name, Attempts: attempts, Err: lastErr}
}

func (o *Orchestrator) rollDependents(
	ctx context.Context,
	logger logr.Logger,
	in Inputs,
	clusterTrust, clientsTrust bool,
	reasons Reasons,
	m rollMetrics,
) ([]string, error) {
	names := sets.New[string]()
	if clusterTrust {
		found, err := o.deployments.ListDependents(ctx, in.Cluster, constants.LabelStreamTrustsClusterCA)
		if err != nil {
			return nil, err
		}
		names.Insert(found...)
	}
	if clientsTrust {
		found, err := o.deployments.ListDependents(ctx, in.Cluster, constants.LabelStreamTrustsClientsCA)
		if err != nil {
			return nil, err
		}
		names.Insert(found...)
	}
	ordered := sets.List(names)
	if len(ordered) == 0 {
		return nil, nil
	}

	errs := make([]error, len(ordered))
	var g errgroup.Group
	for i, name := range ordered {
		g.Go(func() error {
			errs[i] = o.restartDependent(ctx, logger, in, name, reasons, m)
			// Every dependent is attempted; failures are joined below.
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	var first error
	var done []string
	for i, err := range errs {
		if err != nil {
			failed = append(failed, ordered[i])
			if first == nil {
				first = err
			}
			continue
		}
		done = append(done, ordered[i])
	}
	if len(failed) > 0 {
		return done, &operatorerrors.PartialRolloutError{Failed: failed, Attempted: len(ordered), First: first}
	}
	return done, nil
}

func (o *Orchestrator) restartDependent(
	ctx context.Context,
	logger logr.Logger,
	in Inputs,
	name string,
	reasons Reasons,
	m rollMetrics,
) error {
	key := client.ObjectKey{Namespace: in.Cluster.Namespace, Name: name}
	start := time.Now()
	if err := o.deployments.RollingRestart(ctx, key, reasons.String()); err != nil {
		m.failed(stageDependents)
		return err
	}
	logging.LogAuditEvent(logger, logging.EventDependentRestarted, map[string]string{
		"cluster_namespace": in.Cluster.Namespace,
		"cluster_name":      in.Cluster.Name,
		"deployment":        name,
		"reasons":           reasons.String(),
	})

	waitCtx, cancel := context.WithTimeout(ctx, o.cfg.OperationTimeout)
	defer cancel()
	attempts := 0
	var lastErr error
	err := wait.ExponentialBackoffWithContext(waitCtx, o.cfg.backoff(), func(ctx context.Context) (bool, error) {
		attempts++
		done, err := o.deployments.RolledOut(ctx, key)
		if err != nil {
			lastErr = err
			return false, nil
		}
		return done, nil
	})
	if err != nil {
		m.failed(stageDependents)
		if lastErr == nil {
			lastErr = err
		}
		return &operatorerrors.HealthTimeoutError{Instance: name, Attempts: attempts, Err: lastErr}
	}
	m.restarted(stageDependents, time.Since(start).Seconds())
	return nil
}

// IsAbort reports whether err came from a stage that stops the sequence.
func IsAbort(err error) bool {
	return err != nil && !errors.Is(err, operatorerrors.ErrPartialRollout)
}
