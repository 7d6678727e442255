/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package streamcluster

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	streamsv1alpha1 "github.com/dc-tec/stream-operator/api/v1alpha1"
	"github.com/dc-tec/stream-operator/internal/ca"
	"github.com/dc-tec/stream-operator/internal/constants"
	controllermetrics "github.com/dc-tec/stream-operator/internal/controller"
	operatorerrors "github.com/dc-tec/stream-operator/internal/errors"
	"github.com/dc-tec/stream-operator/internal/maintenance"
	"github.com/dc-tec/stream-operator/internal/migration"
	recon "github.com/dc-tec/stream-operator/internal/reconcile"
	"github.com/dc-tec/stream-operator/internal/rolling"
)

// +kubebuilder:rbac:groups=streams.dc-tec.io,resources=streamclusters,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=streams.dc-tec.io,resources=streamclusters/status,verbs=get;update;patch
// +kubebuilder:rbac:groups="",resources=secrets,verbs=get;list;watch;create;update;patch
// +kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch;delete
// +kubebuilder:rbac:groups=apps,resources=deployments,verbs=get;list;watch;patch

// stage is one step of a cycle. On error it returns the state it reached so
// that status still reflects work that was persisted.
type stage struct {
	name string
	run  func(ctx context.Context, logger logr.Logger, s cycleState) (cycleState, error)
}

func (r *StreamClusterReconciler) stages() []stage {
	return []stage{
		{name: "identity-snapshot", run: r.snapshotIdentity},
		{name: "certificate-authorities", run: r.reconcileCAs},
		{name: "operator-identity", run: r.reconcileIdentity},
		{name: "topology", run: r.resolveNodes},
		{name: "metadata-migration", run: r.reconcileMigration},
		{name: "operands", run: r.reconcileOperands},
		{name: "rolling-update", run: r.rollingUpdate},
		{name: "trust-retirement", run: r.sweep},
	}
}

// Reconcile runs one cycle for a StreamCluster. Cycles for the same cluster
// never overlap because the workqueue serialises them by key.
func (r *StreamClusterReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	reconcileMetrics := controllermetrics.NewReconcileMetrics(req.Namespace, req.Name, constants.ControllerNameStreamCluster)
	startTime := time.Now()
	var reconcileErr error
	defer func() {
		reconcileMetrics.ObserveDuration(time.Since(startTime).Seconds())
		if reconcileErr != nil {
			reason, ok := operatorerrors.Reason(reconcileErr)
			if !ok {
				reason = constants.ReasonError
			}
			reconcileMetrics.IncrementError(reason)
		}
	}()

	logger := log.FromContext(ctx).WithValues(
		"cluster_namespace", req.Namespace,
		"cluster_name", req.Name,
		"controller", constants.ControllerNameStreamCluster,
		"reconcile_id", time.Now().UnixNano(),
	)

	cluster := &streamsv1alpha1.StreamCluster{}
	if err := r.Get(ctx, req.NamespacedName, cluster); err != nil {
		if apierrors.IsNotFound(err) {
			logger.Info("StreamCluster resource not found; assuming it was deleted")
			clearMetrics(req.Namespace, req.Name)
			return ctrl.Result{}, nil
		}
		reconcileErr = operatorerrors.WrapGateway(fmt.Errorf("failed to get StreamCluster %s: %w", req.NamespacedName, err))
		return ctrl.Result{}, reconcileErr
	}

	if !cluster.DeletionTimestamp.IsZero() {
		// CA Secrets are garbage collected through owner references.
		return ctrl.Result{}, nil
	}

	if cluster.Spec.Paused {
		logger.Info("Reconciliation is paused for StreamCluster")
		if err := r.updateStatusForPaused(ctx, logger, cluster); err != nil {
			reconcileErr = err
			return ctrl.Result{}, reconcileErr
		}
		return ctrl.Result{}, nil
	}

	logger.Info("Reconciling StreamCluster")
	state, cycleErr := r.runCycle(ctx, logger, cluster)
	if err := r.publishStatus(ctx, logger, cluster, state, cycleErr); err != nil {
		if cycleErr == nil {
			cycleErr = err
		} else {
			logger.Error(err, "Failed to publish status after a failed cycle")
		}
	}

	if cycleErr != nil {
		reconcileErr = cycleErr
		requeue, after := operatorerrors.ShouldRequeue(cycleErr)
		switch {
		case !requeue:
			logger.Error(cycleErr, "Cycle failed; waiting for the next periodic cycle")
			return ctrl.Result{RequeueAfter: constants.RequeueStandard}, nil
		case after > 0:
			logger.Info("Cycle hit a transient API error; requeueing", "error", cycleErr.Error(), "requeue_after", after)
			return ctrl.Result{RequeueAfter: after}, nil
		default:
			return ctrl.Result{}, cycleErr
		}
	}

	requeueAfter := constants.RequeueStandard
	if after := state.requeue.RequeueAfter; after > 0 && after < requeueAfter {
		requeueAfter = after
	}
	return ctrl.Result{RequeueAfter: requeueAfter}, nil
}

// runCycle threads a fresh cycleState through every stage and stops at the
// first failure.
func (r *StreamClusterReconciler) runCycle(ctx context.Context, logger logr.Logger, cluster *streamsv1alpha1.StreamCluster) (cycleState, error) {
	state := newCycleState(cluster.DeepCopy())
	for _, st := range r.stages() {
		next, err := st.run(ctx, logger.WithValues("stage", st.name), state)
		state = next
		if err != nil {
			return state, fmt.Errorf("%s: %w", st.name, err)
		}
	}
	return state, nil
}

func clusterKey(cluster *streamsv1alpha1.StreamCluster) client.ObjectKey {
	return client.ObjectKeyFromObject(cluster)
}

func (r *StreamClusterReconciler) snapshotIdentity(ctx context.Context, _ logr.Logger, s cycleState) (cycleState, error) {
	secret, err := r.Secrets.Get(ctx, identityKey(s.cluster))
	if err != nil {
		return s, err
	}
	return s.withIdentity(secret), nil
}

// reconcileCAs reconciles both CAs concurrently and joins them.
func (r *StreamClusterReconciler) reconcileCAs(ctx context.Context, logger logr.Logger, s cycleState) (cycleState, error) {
	cluster := s.cluster
	windows, err := maintenance.Parse(cluster.Spec.MaintenanceTimeWindows)
	if err != nil {
		return s, err
	}

	var clusterCA, clientsCA *ca.CertificateAuthority
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		clusterCA, err = r.CAs.Reconcile(gctx, logger, ca.Request{
			Cluster:  cluster,
			Scope:    ca.ScopeCluster,
			Policy:   ca.PolicyFromSpec(cluster.Spec.ClusterCA),
			Windows:  windows,
			Observed: cluster.Status.ClusterCA,
		})
		return err
	})
	g.Go(func() error {
		var err error
		clientsCA, err = r.CAs.Reconcile(gctx, logger, ca.Request{
			Cluster:  cluster,
			Scope:    ca.ScopeClients,
			Policy:   ca.PolicyFromSpec(cluster.Spec.ClientsCA),
			Windows:  windows,
			Observed: cluster.Status.ClientsCA,
		})
		return err
	})
	// A CA that persisted new material must reach the status even when the
	// other one failed, or its key replacement would never be rolled.
	err = g.Wait()
	s = s.withCAs(clusterCA, clientsCA)
	if err != nil {
		return s, err
	}
	return s.withRequeue(deferredRequeue(windows, r.now(), clusterCA, clientsCA)), nil
}

// deferredRequeue schedules the next cycle at the start of the next maintenance
// window when a renewal was deferred. Windows only match during the minute
// their expression fires, so the periodic cycle alone could miss them.
func deferredRequeue(windows maintenance.Windows, now time.Time, authorities ...*ca.CertificateAuthority) recon.Result {
	for _, authority := range authorities {
		if authority == nil || !authority.Deferred {
			continue
		}
		next := windows.Next(now)
		if next.IsZero() {
			return recon.Result{}
		}
		return recon.Result{RequeueAfter: max(next.Sub(now), time.Second)}
	}
	return recon.Result{}
}

func (r *StreamClusterReconciler) resolveNodes(ctx context.Context, _ logr.Logger, s cycleState) (cycleState, error) {
	nodes, err := r.Instances.ListInstances(ctx, clusterKey(s.cluster), "")
	if err != nil {
		return s, err
	}
	return s.withNodes(nodes), nil
}

func (r *StreamClusterReconciler) reconcileMigration(ctx context.Context, logger logr.Logger, s cycleState) (cycleState, error) {
	cluster := s.cluster
	decision, err := migration.Step(ctx, logger, migration.Prober{Instances: r.Instances},
		clusterKey(cluster), cluster.Status.MetadataState, cluster.Annotations)
	if err != nil {
		return s, err
	}
	s = s.withMigration(decision)

	result, err := r.Ensemble.Reconcile(ctx, logger, cluster, decision.Gate)
	if err != nil {
		return s, fmt.Errorf("ensemble (%s): %w", decision.Gate, err)
	}
	return s.withRequeue(result), nil
}

func (r *StreamClusterReconciler) reconcileOperands(ctx context.Context, logger logr.Logger, s cycleState) (cycleState, error) {
	for _, operand := range r.Operands {
		result, err := operand.Reconcile(ctx, logger, s.cluster, s.nodes)
		if err != nil {
			return s, err
		}
		s = s.withRequeue(result)
	}
	return s, nil
}

func (r *StreamClusterReconciler) rollingUpdate(ctx context.Context, logger logr.Logger, s cycleState) (cycleState, error) {
	if s.pendingRoll == nil {
		return s, nil
	}
	result, err := r.Rolling.Run(ctx, logger, s.rollingInputs())
	if err != nil {
		return s, err
	}
	return s.withRolled(result), nil
}

// sweep retires superseded trust material of both CAs.
func (r *StreamClusterReconciler) sweep(ctx context.Context, logger logr.Logger, s cycleState) (cycleState, error) {
	for _, authority := range []*ca.CertificateAuthority{s.clusterCA, s.clientsCA} {
		next, result, err := r.CAs.Sweep(ctx, logger, s.cluster, authority, r.Instances)
		if err != nil {
			return s, err
		}
		if result.Retired {
			logger.Info("Retired superseded trust material", "scope", string(authority.Scope), "instances", result.Instances)
		}
		s = s.withCA(next)
	}
	return s, nil
}

func clearMetrics(namespace, name string) {
	controllermetrics.NewClusterMetrics(namespace, name).Clear()
	ca.ClearMetrics(namespace, name)
	rolling.ClearMetrics(namespace, name)
}
