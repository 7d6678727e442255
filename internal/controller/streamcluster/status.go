package streamcluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	streamsv1alpha1 "github.com/dc-tec/stream-operator/api/v1alpha1"
	"github.com/dc-tec/stream-operator/internal/constants"
	controllermetrics "github.com/dc-tec/stream-operator/internal/controller"
	operatorerrors "github.com/dc-tec/stream-operator/internal/errors"
	"github.com/dc-tec/stream-operator/internal/kube"
	"github.com/dc-tec/stream-operator/internal/migration"
	"github.com/dc-tec/stream-operator/internal/status"
)

func (r *StreamClusterReconciler) updateStatusForPaused(ctx context.Context, logger logr.Logger, cluster *streamsv1alpha1.StreamCluster) error {
	// Capture original state for status patching to avoid optimistic locking conflicts
	original := cluster.DeepCopy()

	gen := cluster.Generation
	conditions := &cluster.Status.Conditions
	status.Unknown(conditions, gen, string(streamsv1alpha1.ConditionReady), constants.ReasonPaused, "Reconciliation is paused")

	if err := r.Status().Patch(ctx, cluster, client.MergeFrom(original)); err != nil {
		return operatorerrors.WrapGateway(fmt.Errorf("failed to update status for paused StreamCluster %s/%s: %w", cluster.Namespace, cluster.Name, err))
	}

	logger.Info("Updated status for paused StreamCluster")
	return nil
}

// applyStatus projects a cycle onto the status. Fields owned by stages that did
// not run keep their previous values.
func applyStatus(cluster *streamsv1alpha1.StreamCluster, s cycleState, cycleErr error, now metav1.Time) {
	st := &cluster.Status
	previous := st.DeepCopy()
	st.ObservedGeneration = cluster.Generation

	if s.clusterCA != nil {
		st.ClusterCA = s.clusterCA.Status(previous.ClusterCA, now.Time)
	}
	if s.clientsCA != nil {
		st.ClientsCA = s.clientsCA.Status(previous.ClientsCA, now.Time)
	}

	if s.nodesResolved {
		st.Nodes = nodeStatuses(s.nodes)
	}

	switch {
	case s.migrationDecided:
		st.MetadataState = s.migration.To
	default:
		st.MetadataState = migration.ParsePhase(st.MetadataState)
	}

	gen := cluster.Generation
	conditions := &st.Conditions
	switch {
	case s.pendingRoll != nil:
		st.LastRollingUpdate = s.pendingRoll.DeepCopy()
		msg := "Restart pending: " + strings.Join(s.pendingRoll.Reasons, "; ")
		reason := constants.ReasonPending
		if cycleErr != nil {
			if classified, ok := operatorerrors.Reason(cycleErr); ok {
				reason = classified
			}
			msg = fmt.Sprintf("%s: %v", msg, cycleErr)
		}
		status.True(conditions, gen, string(streamsv1alpha1.ConditionRollingUpdate), reason, msg)
	case s.rolled != nil:
		st.LastRollingUpdate = &streamsv1alpha1.RollingUpdateStatus{
			Reasons:     s.rolled.Reasons.List(),
			CompletedAt: ptr.To(now),
		}
		if s.rolled.Rolled() {
			status.True(conditions, gen, string(streamsv1alpha1.ConditionRollingUpdate), constants.ReasonRolled,
				"Restarted components: "+s.rolled.Reasons.String())
		} else {
			status.False(conditions, gen, string(streamsv1alpha1.ConditionRollingUpdate), constants.ReasonIdle,
				"Trust changed but no component was running: "+s.rolled.Reasons.String())
		}
	case s.clusterCA != nil:
		status.False(conditions, gen, string(streamsv1alpha1.ConditionRollingUpdate), constants.ReasonIdle, "No restart required")
	}

	if cycleErr != nil {
		status.FromError(conditions, gen, string(streamsv1alpha1.ConditionReady), cycleErr, operatorerrors.Reason)
		return
	}
	status.Ready(conditions, gen, string(streamsv1alpha1.ConditionReady), "Cluster trust and lifecycle are reconciled")
}

func nodeStatuses(nodes []kube.NodeRef) []streamsv1alpha1.NodeStatus {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]streamsv1alpha1.NodeStatus, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, streamsv1alpha1.NodeStatus{
			ID:    int32(n.ID),
			Name:  n.Name,
			Roles: n.Roles.Roles(),
		})
	}
	return out
}

// publishStatus writes the outcome of a cycle with a single status patch.
func (r *StreamClusterReconciler) publishStatus(
	ctx context.Context,
	logger logr.Logger,
	cluster *streamsv1alpha1.StreamCluster,
	s cycleState,
	cycleErr error,
) error {
	original := cluster.DeepCopy()
	applyStatus(cluster, s, cycleErr, metav1.NewTime(r.now()))

	clusterMetrics := controllermetrics.NewClusterMetrics(cluster.Namespace, cluster.Name)
	clusterMetrics.SetNodes(len(cluster.Status.Nodes))
	clusterMetrics.SetMetadataState(cluster.Status.MetadataState)

	if err := r.Status().Patch(ctx, cluster, client.MergeFrom(original)); err != nil {
		return operatorerrors.WrapGateway(fmt.Errorf("failed to update status for StreamCluster %s/%s: %w", cluster.Namespace, cluster.Name, err))
	}

	logger.Info("Updated status for StreamCluster",
		"metadata_state", cluster.Status.MetadataState,
		"nodes", len(cluster.Status.Nodes),
		"ready", cycleErr == nil)
	return nil
}
