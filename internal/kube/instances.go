package kube

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/dc-tec/stream-operator/internal/constants"
	operatorerrors "github.com/dc-tec/stream-operator/internal/errors"
)

// InstanceGateway enumerates and restarts the live instances of a cluster.
// Errors are classified as gateway errors.
type InstanceGateway interface {
	// ListInstances returns the instances of cluster carrying role, ordered by ID.
	// An empty role returns every instance.
	ListInstances(ctx context.Context, cluster client.ObjectKey, role Role) ([]NodeRef, error)
	// ListPool returns the coordinator instances labeled with the given pool.
	ListPool(ctx context.Context, cluster client.ObjectKey, pool string) ([]NodeRef, error)
	// Annotations returns the annotations of one instance, or nil if it is gone.
	Annotations(ctx context.Context, instance client.ObjectKey) (map[string]string, error)
	// Restart replaces an instance and returns the UID of the replaced incarnation.
	Restart(ctx context.Context, instance client.ObjectKey) (types.UID, error)
	// Ready reports whether a new incarnation (UID different from previous) is
	// up and ready. It checks once; callers own the retry policy.
	Ready(ctx context.Context, instance client.ObjectKey, previous types.UID) (bool, error)
	// Leader returns the name of the current coordinator leader, or "" if none
	// is labeled.
	Leader(ctx context.Context, cluster client.ObjectKey) (string, error)
}

// PodInstances is an InstanceGateway over Pods managed by a StatefulSet.
// Restarting deletes the Pod and lets its controller recreate it.
type PodInstances struct {
	Client client.Client
}

var _ InstanceGateway = (*PodInstances)(nil)

// NewPodInstances returns an InstanceGateway using c.
func NewPodInstances(c client.Client) *PodInstances {
	return &PodInstances{Client: c}
}

func (g *PodInstances) listPods(ctx context.Context, cluster client.ObjectKey, extra client.MatchingLabels) ([]corev1.Pod, error) {
	selector := ClusterSelector(cluster.Name)
	for k, v := range extra {
		selector[k] = v
	}
	list := &corev1.PodList{}
	if err := g.Client.List(ctx, list, client.InNamespace(cluster.Namespace), selector); err != nil {
		return nil, operatorerrors.WrapGateway(fmt.Errorf("failed to list pods for %s: %w", cluster, err))
	}
	return list.Items, nil
}

func toNodeRefs(pods []corev1.Pod, role Role) []NodeRef {
	refs := make([]NodeRef, 0, len(pods))
	for i := range pods {
		pod := &pods[i]
		id := extractOrdinal(pod.Name)
		if id < 0 {
			continue
		}
		roles := ParseRoles(pod.Labels[constants.LabelStreamRoles])
		if !roles.Has(role) {
			continue
		}
		refs = append(refs, NodeRef{ID: id, Name: pod.Name, Roles: roles})
	}
	SortNodes(refs)
	return refs
}

func (g *PodInstances) ListInstances(ctx context.Context, cluster client.ObjectKey, role Role) ([]NodeRef, error) {
	pods, err := g.listPods(ctx, cluster, nil)
	if err != nil {
		return nil, err
	}
	return toNodeRefs(pods, role), nil
}

func (g *PodInstances) ListPool(ctx context.Context, cluster client.ObjectKey, pool string) ([]NodeRef, error) {
	pods, err := g.listPods(ctx, cluster, client.MatchingLabels{constants.LabelStreamPool: pool})
	if err != nil {
		return nil, err
	}
	return toNodeRefs(pods, RoleCoordinator), nil
}

func (g *PodInstances) Annotations(ctx context.Context, instance client.ObjectKey) (map[string]string, error) {
	pod := &corev1.Pod{}
	if err := g.Client.Get(ctx, instance, pod); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, operatorerrors.WrapGateway(fmt.Errorf("failed to get pod %s: %w", instance, err))
	}
	return pod.Annotations, nil
}

func (g *PodInstances) Restart(ctx context.Context, instance client.ObjectKey) (types.UID, error) {
	pod := &corev1.Pod{}
	if err := g.Client.Get(ctx, instance, pod); err != nil {
		if apierrors.IsNotFound(err) {
			// Already being replaced; the readiness check waits for the new one.
			return "", nil
		}
		return "", operatorerrors.WrapGateway(fmt.Errorf("failed to get pod %s: %w", instance, err))
	}

	uid := pod.UID
	if err := g.Client.Delete(ctx, pod); err != nil && !apierrors.IsNotFound(err) {
		return "", operatorerrors.WrapGateway(fmt.Errorf("failed to delete pod %s: %w", instance, err))
	}
	return uid, nil
}

func (g *PodInstances) Ready(ctx context.Context, instance client.ObjectKey, previous types.UID) (bool, error) {
	pod := &corev1.Pod{}
	if err := g.Client.Get(ctx, instance, pod); err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, operatorerrors.WrapGateway(fmt.Errorf("failed to get pod %s: %w", instance, err))
	}
	if previous != "" && pod.UID == previous {
		return false, nil
	}
	return PodReady(pod), nil
}

func (g *PodInstances) Leader(ctx context.Context, cluster client.ObjectKey) (string, error) {
	pods, err := g.listPods(ctx, cluster, client.MatchingLabels{constants.LabelStreamLeader: "true"})
	if err != nil {
		return "", err
	}

	switch len(pods) {
	case 0:
		return "", nil
	case 1:
		return pods[0].Name, nil
	default:
		return "", operatorerrors.WrapGateway(fmt.Errorf("multiple leaders detected via pod labels (%d)", len(pods)))
	}
}
