package kube

import (
	"context"
	"fmt"
	"sort"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/dc-tec/stream-operator/internal/constants"
	operatorerrors "github.com/dc-tec/stream-operator/internal/errors"
)

// DeploymentGateway restarts the independent Deployments that trust a cluster's CAs.
type DeploymentGateway interface {
	// ListDependents returns the names of Deployments of cluster carrying trustLabel=true.
	ListDependents(ctx context.Context, cluster client.ObjectKey, trustLabel string) ([]string, error)
	// RollingRestart asks the Deployment controller to replace every pod.
	RollingRestart(ctx context.Context, deployment client.ObjectKey, reason string) error
	// RolledOut reports whether the Deployment finished its rollout. It checks once.
	RolledOut(ctx context.Context, deployment client.ObjectKey) (bool, error)
}

// ClientDeployments is a DeploymentGateway backed by a controller-runtime client.
// A restart stamps the pod template the same way kubectl rollout restart does.
type ClientDeployments struct {
	Client client.Client
	Now    func() time.Time
}

var _ DeploymentGateway = (*ClientDeployments)(nil)

// NewClientDeployments returns a DeploymentGateway using c.
func NewClientDeployments(c client.Client) *ClientDeployments {
	return &ClientDeployments{Client: c, Now: time.Now}
}

func (g *ClientDeployments) ListDependents(ctx context.Context, cluster client.ObjectKey, trustLabel string) ([]string, error) {
	selector := ClusterSelector(cluster.Name)
	selector[trustLabel] = "true"

	list := &appsv1.DeploymentList{}
	if err := g.Client.List(ctx, list, client.InNamespace(cluster.Namespace), selector); err != nil {
		return nil, operatorerrors.WrapGateway(fmt.Errorf("failed to list deployments for %s: %w", cluster, err))
	}

	names := make([]string, 0, len(list.Items))
	for _, d := range list.Items {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (g *ClientDeployments) RollingRestart(ctx context.Context, deployment client.ObjectKey, reason string) error {
	dep := &appsv1.Deployment{}
	if err := g.Client.Get(ctx, deployment, dep); err != nil {
		return operatorerrors.WrapGateway(fmt.Errorf("failed to get deployment %s: %w", deployment, err))
	}

	patch := client.MergeFrom(dep.DeepCopy())
	if dep.Spec.Template.Annotations == nil {
		dep.Spec.Template.Annotations = map[string]string{}
	}
	dep.Spec.Template.Annotations[constants.AnnotationRestartedAt] = g.Now().UTC().Format(time.RFC3339)
	dep.Spec.Template.Annotations[constants.AnnotationRestartReason] = reason

	if err := g.Client.Patch(ctx, dep, patch); err != nil {
		return operatorerrors.WrapGateway(fmt.Errorf("failed to restart deployment %s: %w", deployment, err))
	}
	return nil
}

func (g *ClientDeployments) RolledOut(ctx context.Context, deployment client.ObjectKey) (bool, error) {
	dep := &appsv1.Deployment{}
	if err := g.Client.Get(ctx, deployment, dep); err != nil {
		if apierrors.IsNotFound(err) {
			return false, operatorerrors.WrapGateway(fmt.Errorf("deployment %s disappeared during rollout", deployment))
		}
		return false, operatorerrors.WrapGateway(fmt.Errorf("failed to get deployment %s: %w", deployment, err))
	}
	return DeploymentRolledOut(dep), nil
}
