package streamcluster

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	streamsv1alpha1 "github.com/dc-tec/stream-operator/api/v1alpha1"
	"github.com/dc-tec/stream-operator/internal/ca"
	"github.com/dc-tec/stream-operator/internal/certs"
	"github.com/dc-tec/stream-operator/internal/constants"
)

func identitySecretName(cluster string) string {
	return cluster + constants.SuffixOperatorIdentity
}

func identityKey(cluster *streamsv1alpha1.StreamCluster) client.ObjectKey {
	return client.ObjectKey{Namespace: cluster.Namespace, Name: identitySecretName(cluster.Name)}
}

// identityCurrent reports whether the stored identity was issued by the given
// cluster CA generation and still has enough validity left.
func identityCurrent(secret *corev1.Secret, authority *ca.CertificateAuthority, now time.Time) bool {
	if secret == nil {
		return false
	}
	if secret.Annotations[constants.AnnotationCACertGeneration] != strconv.Itoa(authority.Generation) {
		return false
	}
	leaf, err := certs.Load(secret.Data[constants.SecretKeyTLSCrt], secret.Data[constants.SecretKeyTLSKey])
	if err != nil {
		return false
	}
	if err := certs.VerifyIssuedBy(leaf.Certificate, authority.Current.Certificate, now); err != nil {
		return false
	}
	// A leaf capped at the CA's own expiry cannot be improved by reissuing.
	return certs.DaysUntilExpiry(leaf.Certificate, now) > authority.Policy.RenewalDays ||
		!leaf.Certificate.NotAfter.Before(authority.NotAfter())
}

// bundleCurrent reports whether the stored trust bundle matches the CA's
// published certificates, retired generations included.
func bundleCurrent(secret *corev1.Secret, authority *ca.CertificateAuthority) bool {
	return bytes.Equal(secret.Data[constants.SecretKeyCACert], authority.TrustBundle())
}

// reconcileIdentity reissues the operator's client certificate when the
// cluster CA moved on or the certificate is close to expiry, and refreshes its
// trust bundle when retired roots were dropped. The previous Secret is kept in
// the cycle state for health checks against instances that still trust only
// the old root.
func (r *StreamClusterReconciler) reconcileIdentity(ctx context.Context, logger logr.Logger, s cycleState) (cycleState, error) {
	authority := s.clusterCA
	if authority == nil || authority.Current == nil || authority.Current.Key == nil {
		logger.V(1).Info("Cluster CA has no private key; operator identity is not managed")
		return s, nil
	}

	now := r.now()
	cluster := s.cluster
	var certPEM, keyPEM []byte
	if identityCurrent(s.priorIdentity, authority, now) {
		if bundleCurrent(s.priorIdentity, authority) {
			return s, nil
		}
		certPEM = s.priorIdentity.Data[constants.SecretKeyTLSCrt]
		keyPEM = s.priorIdentity.Data[constants.SecretKeyTLSKey]
		logger.Info("Refreshing operator identity trust bundle", "ca_generation", authority.Generation)
	} else {
		leaf, err := certs.SignLeaf(authority.Current, certs.LeafRequest{
			CommonName:   fmt.Sprintf("%s-operator", cluster.Name),
			ValidityDays: constants.IdentityValidityDays,
			Client:       true,
		}, now)
		if err != nil {
			return s, fmt.Errorf("signing operator identity: %w", err)
		}
		certPEM, keyPEM = leaf.CertPEM, leaf.KeyPEM
		logger.Info("Issuing operator identity certificate",
			"ca_generation", authority.Generation, "not_after", leaf.Certificate.NotAfter)
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      identitySecretName(cluster.Name),
			Namespace: cluster.Namespace,
			Labels: map[string]string{
				constants.LabelAppName:       constants.LabelValueAppNameStream,
				constants.LabelAppInstance:   cluster.Name,
				constants.LabelAppManagedBy:  constants.LabelValueManagedByOperator,
				constants.LabelAppComponent:  constants.LabelValueComponentIdentity,
				constants.LabelStreamCluster: cluster.Name,
			},
			Annotations: map[string]string{
				constants.AnnotationCACertGeneration: strconv.Itoa(authority.Generation),
			},
		},
		Type: corev1.SecretTypeTLS,
		Data: map[string][]byte{
			constants.SecretKeyTLSCrt: certPEM,
			constants.SecretKeyTLSKey: keyPEM,
			constants.SecretKeyCACert: authority.TrustBundle(),
		},
	}

	// Same ownership policy as the CA Secrets the identity is derived from.
	var owner metav1.Object
	if authority.Policy.GenerateOwnerReference {
		owner = cluster
	}
	if err := r.Secrets.CreateOrUpdate(ctx, secret, owner); err != nil {
		return s, err
	}
	return s, nil
}
