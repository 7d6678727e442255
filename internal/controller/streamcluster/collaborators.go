package streamcluster

import (
	"context"

	"github.com/go-logr/logr"

	streamsv1alpha1 "github.com/dc-tec/stream-operator/api/v1alpha1"
	"github.com/dc-tec/stream-operator/internal/kube"
	"github.com/dc-tec/stream-operator/internal/migration"
	recon "github.com/dc-tec/stream-operator/internal/reconcile"
)

// OperandReconciler builds the runtime configuration of one component type.
// Implementations return a Result that indicates whether (and when) the cycle
// should be requeued.
type OperandReconciler interface {
	Reconcile(ctx context.Context, logger logr.Logger, cluster *streamsv1alpha1.StreamCluster, nodes []kube.NodeRef) (recon.Result, error)
}

// EnsembleReconciler manages the coordination ensemble. gate says whether it
// should be kept running, torn down, or left alone.
type EnsembleReconciler interface {
	Reconcile(ctx context.Context, logger logr.Logger, cluster *streamsv1alpha1.StreamCluster, gate migration.Gate) (recon.Result, error)
}

type noopEnsemble struct{}

func (noopEnsemble) Reconcile(context.Context, logr.Logger, *streamsv1alpha1.StreamCluster, migration.Gate) (recon.Result, error) {
	return recon.Result{}, nil
}
