package ca

import (
	"context"
	"strconv"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	streamsv1alpha1 "github.com/dc-tec/stream-operator/api/v1alpha1"
	"github.com/dc-tec/stream-operator/internal/kube"
	"github.com/dc-tec/stream-operator/internal/logging"
)

// Retire drops every retained certificate older than the current generation
// and persists the result. Externally supplied CAs are returned unchanged.
func (m *Manager) Retire(ctx context.Context, logger logr.Logger, cluster *streamsv1alpha1.StreamCluster, ca *CertificateAuthority) (*CertificateAuthority, error) {
	if !ca.Generated() || len(ca.Prior) == 0 {
		return ca, nil
	}

	retired := ca.PriorGenerations()
	next := ca.withoutPriorBelow(ca.Generation)
	if len(next.Prior) == len(ca.Prior) {
		return ca, nil
	}
	if err := m.persist(ctx, cluster, next); err != nil {
		return nil, err
	}

	newCAMetrics(cluster.Namespace, cluster.Name, ca.Scope).recordChange(renewalKindRetired)
	logger.Info("Retired superseded CA certificates", "scope", string(ca.Scope), "generation", ca.Generation)
	for _, g := range retired {
		if g >= ca.Generation {
			continue
		}
		logging.LogAuditEvent(logger, logging.EventCAMaterialRetired, map[string]string{
			"cluster_namespace":  cluster.Namespace,
			"cluster_name":       cluster.Name,
			"scope":              string(ca.Scope),
			"retired_generation": strconv.Itoa(g),
			"generation":         strconv.Itoa(ca.Generation),
		})
	}
	return next, nil
}

// SweepResult explains what a sweep decided.
type SweepResult struct {
	// Instances is the number of data instances inspected.
	Instances int
	// Lagging lists instances that have not adopted the current generation.
	Lagging []string
	// Retired is true when superseded material was removed.
	Retired bool
}

// Sweep retires superseded certificates of ca once every live data instance
// reports the current generation through its adopted-generation annotation.
// An empty instance list or any lagging instance makes it a no-op.
func (m *Manager) Sweep(
	ctx context.Context,
	logger logr.Logger,
	cluster *streamsv1alpha1.StreamCluster,
	ca *CertificateAuthority,
	instances kube.InstanceGateway,
) (*CertificateAuthority, SweepResult, error) {
	var result SweepResult
	if !ca.Generated() || len(ca.Prior) == 0 {
		return ca, result, nil
	}

	key := client.ObjectKeyFromObject(cluster)
	refs, err := instances.ListInstances(ctx, key, kube.RoleData)
	if err != nil {
		return nil, result, err
	}
	result.Instances = len(refs)
	if len(refs) == 0 {
		logger.V(1).Info("No data instances yet; skipping CA retirement", "scope", string(ca.Scope))
		return ca, result, nil
	}

	for _, ref := range refs {
		annotations, err := instances.Annotations(ctx, client.ObjectKey{Namespace: cluster.Namespace, Name: ref.Name})
		if err != nil {
			return nil, result, err
		}
		adopted, err := strconv.Atoi(annotations[ca.Scope.AdoptedAnnotation()])
		if err != nil || adopted < ca.Generation {
			result.Lagging = append(result.Lagging, ref.Name)
		}
	}
	if len(result.Lagging) > 0 {
		logger.V(1).Info("Instances still on older CA generations; keeping retained certificates",
			"scope", string(ca.Scope), "lagging", result.Lagging)
		return ca, result, nil
	}

	next, err := m.Retire(ctx, logger, cluster, ca)
	if err != nil {
		return nil, result, err
	}
	result.Retired = next != ca
	return next, result, nil
}
