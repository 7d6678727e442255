// Package ca owns the lifecycle of the two certificate authorities of a stream
// cluster: bootstrap, renewal under the maintenance-window gate, persistence,
// and retirement of superseded certificate generations.
package ca

import (
	"fmt"
	"maps"
	"slices"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	streamsv1alpha1 "github.com/dc-tec/stream-operator/api/v1alpha1"
	"github.com/dc-tec/stream-operator/internal/certs"
	"github.com/dc-tec/stream-operator/internal/constants"
)

// TrustScope names one of the two trust anchors of a cluster.
type TrustScope string

const (
	// ScopeCluster signs certificates for internal and control-plane traffic.
	ScopeCluster TrustScope = "cluster"
	// ScopeClients signs certificates presented to data-plane clients.
	ScopeClients TrustScope = "clients"
)

// Scopes lists every trust scope in reconcile order.
var Scopes = []TrustScope{ScopeCluster, ScopeClients}

func (s TrustScope) String() string {
	return string(s) + " CA"
}

// CertSecretName is the Secret holding the public certificates of the scope.
func (s TrustScope) CertSecretName(cluster string) string {
	if s == ScopeClients {
		return cluster + constants.SuffixClientsCACert
	}
	return cluster + constants.SuffixClusterCACert
}

// KeySecretName is the Secret holding the private key of the scope.
func (s TrustScope) KeySecretName(cluster string) string {
	if s == ScopeClients {
		return cluster + constants.SuffixClientsCAKey
	}
	return cluster + constants.SuffixClusterCAKey
}

// AdoptedAnnotation is the instance annotation reporting the adopted certificate generation.
func (s TrustScope) AdoptedAnnotation() string {
	if s == ScopeClients {
		return constants.AnnotationClientsCACertGeneration
	}
	return constants.AnnotationClusterCACertGeneration
}

// DependentLabel marks Deployments that trust this scope.
func (s TrustScope) DependentLabel() string {
	if s == ScopeClients {
		return constants.LabelStreamTrustsClientsCA
	}
	return constants.LabelStreamTrustsClusterCA
}

// Policy is the resolved lifecycle policy of one CA.
type Policy struct {
	Generate               bool
	GenerateOwnerReference bool
	ValidityDays           int
	RenewalDays            int
	ExpirationPolicy       streamsv1alpha1.CertificateExpirationPolicy
}

// PolicyFromSpec applies defaults to a CertificateAuthoritySpec.
func PolicyFromSpec(spec streamsv1alpha1.CertificateAuthoritySpec) Policy {
	p := Policy{
		Generate:               ptr.Deref(spec.GenerateCertificateAuthority, true),
		GenerateOwnerReference: ptr.Deref(spec.GenerateSecretOwnerReference, true),
		ValidityDays:           int(spec.ValidityDays),
		RenewalDays:            int(spec.RenewalDays),
		ExpirationPolicy:       spec.CertificateExpirationPolicy,
	}
	if p.ValidityDays <= 0 {
		p.ValidityDays = 365
	}
	if p.RenewalDays <= 0 {
		p.RenewalDays = 30
	}
	if p.ExpirationPolicy == "" {
		p.ExpirationPolicy = streamsv1alpha1.ExpirationPolicyRenewCertificate
	}
	return p
}

// CertificateAuthority is the operative state of one CA after a reconcile.
// Values are not mutated once returned; operations return a new value.
type CertificateAuthority struct {
	Scope  TrustScope
	Policy Policy

	// Current is the current certificate and, for generated CAs and external
	// CAs that ship it, the private key.
	Current *certs.KeyPair
	// Prior holds retained certificates of earlier generations, by generation.
	Prior map[int][]byte

	Generation    int
	KeyGeneration int

	// Created is set when the CA was bootstrapped in this cycle.
	Created bool
	// Renewed is set when the certificate was re-signed under the existing key.
	Renewed bool
	// KeyReplaced is set when trust stores holding the previous root must be rebuilt.
	KeyReplaced bool
	// Deferred is set when a due renewal waits for a maintenance window.
	Deferred bool

	// Reasons explain why a rolling update is required. Empty when KeyReplaced is false.
	Reasons []string
}

// Generated reports whether the operator owns this CA's material.
func (ca *CertificateAuthority) Generated() bool {
	return ca != nil && ca.Policy.Generate
}

// NotAfter returns the expiry of the current certificate.
func (ca *CertificateAuthority) NotAfter() time.Time {
	if ca == nil || ca.Current == nil || ca.Current.Certificate == nil {
		return time.Time{}
	}
	return ca.Current.Certificate.NotAfter
}

// PriorGenerations returns the retained generations in ascending order.
func (ca *CertificateAuthority) PriorGenerations() []int {
	return slices.Sorted(maps.Keys(ca.Prior))
}

// TrustBundle returns the current certificate followed by retained ones, newest first.
func (ca *CertificateAuthority) TrustBundle() []byte {
	var out []byte
	if ca.Current != nil {
		out = append(out, ca.Current.CertPEM...)
	}
	gens := ca.PriorGenerations()
	for i := len(gens) - 1; i >= 0; i-- {
		out = append(out, ca.Prior[gens[i]]...)
	}
	return out
}

// withoutPriorBelow returns a copy dropping retained certificates older than gen.
func (ca *CertificateAuthority) withoutPriorBelow(gen int) *CertificateAuthority {
	next := *ca
	next.Prior = make(map[int][]byte, len(ca.Prior))
	for g, pem := range ca.Prior {
		if g >= gen {
			next.Prior[g] = pem
		}
	}
	next.Reasons = slices.Clone(ca.Reasons)
	return &next
}

// Status projects the CA into the API status. lastRenewal is kept from prev
// unless the CA changed in this cycle.
func (ca *CertificateAuthority) Status(prev *streamsv1alpha1.CAStatus, now time.Time) *streamsv1alpha1.CAStatus {
	out := &streamsv1alpha1.CAStatus{
		CertGeneration: int32(ca.Generation),
		KeyGeneration:  int32(ca.KeyGeneration),
	}
	if na := ca.NotAfter(); !na.IsZero() {
		out.NotAfter = ptr.To(metav1.NewTime(na))
	}
	for _, g := range ca.PriorGenerations() {
		out.RetainedGenerations = append(out.RetainedGenerations, int32(g))
	}
	switch {
	case ca.Created || ca.Renewed || (ca.KeyReplaced && ca.Generated()):
		out.LastRenewal = ptr.To(metav1.NewTime(now))
	case prev != nil:
		out.LastRenewal = prev.LastRenewal
	}
	return out
}

func priorDataKey(gen int) string {
	return fmt.Sprintf(constants.SecretKeyPriorCACertFormat, gen)
}
