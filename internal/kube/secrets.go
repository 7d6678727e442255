package kube

import (
	"context"
	"fmt"
	"maps"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	operatorerrors "github.com/dc-tec/stream-operator/internal/errors"
)

// SecretGateway reads and writes opaque key-value records.
// Every error it returns is classified as a gateway error.
type SecretGateway interface {
	// Get returns the Secret, or nil without error when it does not exist.
	Get(ctx context.Context, key client.ObjectKey) (*corev1.Secret, error)
	// List returns the Secrets in namespace matching labels.
	List(ctx context.Context, namespace string, labels client.MatchingLabels) ([]corev1.Secret, error)
	// CreateOrUpdate makes the stored Secret equal to desired. Data is replaced,
	// labels and annotations are merged. When owner is non-nil it becomes the
	// controller owner of the Secret.
	CreateOrUpdate(ctx context.Context, desired *corev1.Secret, owner metav1.Object) error
}

// ClientSecrets is a SecretGateway backed by a controller-runtime client.
type ClientSecrets struct {
	Client client.Client
	Scheme *runtime.Scheme
}

var _ SecretGateway = (*ClientSecrets)(nil)

// NewClientSecrets returns a SecretGateway using c.
func NewClientSecrets(c client.Client, scheme *runtime.Scheme) *ClientSecrets {
	return &ClientSecrets{Client: c, Scheme: scheme}
}

func (g *ClientSecrets) Get(ctx context.Context, key client.ObjectKey) (*corev1.Secret, error) {
	secret := &corev1.Secret{}
	if err := g.Client.Get(ctx, key, secret); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, operatorerrors.WrapGateway(fmt.Errorf("failed to get Secret %s: %w", key, err))
	}
	return secret, nil
}

func (g *ClientSecrets) List(ctx context.Context, namespace string, labels client.MatchingLabels) ([]corev1.Secret, error) {
	list := &corev1.SecretList{}
	if err := g.Client.List(ctx, list, client.InNamespace(namespace), labels); err != nil {
		return nil, operatorerrors.WrapGateway(fmt.Errorf("failed to list Secrets in %s: %w", namespace, err))
	}
	return list.Items, nil
}

func (g *ClientSecrets) CreateOrUpdate(ctx context.Context, desired *corev1.Secret, owner metav1.Object) error {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      desired.Name,
			Namespace: desired.Namespace,
		},
	}

	_, err := controllerutil.CreateOrUpdate(ctx, g.Client, secret, func() error {
		if secret.Labels == nil {
			secret.Labels = map[string]string{}
		}
		maps.Copy(secret.Labels, desired.Labels)
		if secret.Annotations == nil {
			secret.Annotations = map[string]string{}
		}
		maps.Copy(secret.Annotations, desired.Annotations)

		if desired.Type != "" && secret.CreationTimestamp.IsZero() {
			secret.Type = desired.Type
		}
		secret.Data = maps.Clone(desired.Data)

		if owner != nil {
			return controllerutil.SetControllerReference(owner, secret, g.Scheme)
		}
		return nil
	})
	if err != nil {
		return operatorerrors.WrapGateway(fmt.Errorf("failed to write Secret %s/%s: %w", desired.Namespace, desired.Name, err))
	}
	return nil
}
