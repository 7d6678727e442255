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

package v1alpha1

import (
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// CertificateExpirationPolicy selects what happens when a generated CA enters its renewal window.
// +kubebuilder:validation:Enum=renew-certificate;replace-key
type CertificateExpirationPolicy string

const (
	// ExpirationPolicyRenewCertificate re-signs the CA certificate under the existing key.
	// Trust stores holding the previous certificate keep working, so no restart is needed.
	ExpirationPolicyRenewCertificate CertificateExpirationPolicy = "renew-certificate"
	// ExpirationPolicyReplaceKey generates a new key pair and self-signed certificate.
	// Every component trusting the CA must be restarted to pick up the new root.
	ExpirationPolicyReplaceKey CertificateExpirationPolicy = "replace-key"
)

// MetadataState is the persisted phase of the metadata backend migration.
// +kubebuilder:validation:Enum=Ensemble;Migrating;DualWrite;PostMigration;PreQuorum;Quorum
type MetadataState string

const (
	// MetadataStateEnsemble means metadata lives in the external coordination ensemble.
	MetadataStateEnsemble MetadataState = "Ensemble"
	// MetadataStateMigrating means metadata is being copied into the quorum.
	MetadataStateMigrating MetadataState = "Migrating"
	// MetadataStateDualWrite means the quorum owns metadata and mirrors writes to the ensemble.
	MetadataStateDualWrite MetadataState = "DualWrite"
	// MetadataStatePostMigration means brokers no longer use the ensemble; rollback is still possible.
	MetadataStatePostMigration MetadataState = "PostMigration"
	// MetadataStatePreQuorum means cutover finished and the ensemble is being torn down.
	MetadataStatePreQuorum MetadataState = "PreQuorum"
	// MetadataStateQuorum means metadata lives only in the quorum. This state is terminal.
	MetadataStateQuorum MetadataState = "Quorum"
)

// DependentRolloutPolicy decides which CA key replacements restart dependent deployments.
// +kubebuilder:validation:Enum=InternalKeyOnly;AnyKeyReplaced
type DependentRolloutPolicy string

const (
	// DependentRolloutInternalKeyOnly restarts dependents only when the cluster CA key is replaced.
	DependentRolloutInternalKeyOnly DependentRolloutPolicy = "InternalKeyOnly"
	// DependentRolloutAnyKeyReplaced also restarts dependents when only the clients CA key is replaced.
	DependentRolloutAnyKeyReplaced DependentRolloutPolicy = "AnyKeyReplaced"
)

// ConditionType identifies a specific aspect of cluster health or lifecycle.
type ConditionType string

const (
	// ConditionReady summarises the outcome of the last reconciliation cycle.
	ConditionReady ConditionType = "Ready"
	// ConditionRollingUpdate indicates whether the last cycle restarted any component.
	ConditionRollingUpdate ConditionType = "RollingUpdate"
)

const (
	// StreamClusterFinalizer is reserved for cleanup logic; CA secrets are garbage
	// collected through owner references instead.
	StreamClusterFinalizer = "streams.dc-tec.io/streamcluster-finalizer"
)

// CertificateAuthoritySpec configures one of the two trust anchors of a cluster.
type CertificateAuthoritySpec struct {
	// GenerateCertificateAuthority controls whether the operator creates and renews the CA.
	// When false, the CA secrets must be supplied by the user and are treated as read-only.
	// +kubebuilder:default=true
	// +optional
	GenerateCertificateAuthority *bool `json:"generateCertificateAuthority,omitempty"`
	// GenerateSecretOwnerReference sets the StreamCluster as owner of generated CA secrets,
	// so they are deleted together with the cluster.
	// +kubebuilder:default=true
	// +optional
	GenerateSecretOwnerReference *bool `json:"generateSecretOwnerReference,omitempty"`
	// ValidityDays is the validity period of generated CA certificates.
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:default=365
	// +optional
	ValidityDays int32 `json:"validityDays,omitempty"`
	// RenewalDays is the number of days before expiry when renewal starts.
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:default=30
	// +optional
	RenewalDays int32 `json:"renewalDays,omitempty"`
	// CertificateExpirationPolicy selects between re-signing and replacing the key on renewal.
	// +kubebuilder:default=renew-certificate
	// +optional
	CertificateExpirationPolicy CertificateExpirationPolicy `json:"certificateExpirationPolicy,omitempty"`
}

// RolloutSpec configures restarts triggered by trust changes.
type RolloutSpec struct {
	// DependentRolloutPolicy decides whether a clients CA key replacement also restarts
	// dependent deployments.
	// +kubebuilder:default=InternalKeyOnly
	// +optional
	DependentRolloutPolicy DependentRolloutPolicy `json:"dependentRolloutPolicy,omitempty"`
}

// StreamClusterSpec defines the desired state of StreamCluster.
type StreamClusterSpec struct {
	// ClusterCA configures the CA used for internal and control-plane traffic.
	// +optional
	ClusterCA CertificateAuthoritySpec `json:"clusterCa,omitempty"`
	// ClientsCA configures the CA trusted by clients of the data plane.
	// +optional
	ClientsCA CertificateAuthoritySpec `json:"clientsCa,omitempty"`
	// MaintenanceTimeWindows lists cron expressions (minute hour dom month dow).
	// Disruptive renewals only happen while one of them matches. Empty means always.
	// +optional
	MaintenanceTimeWindows []string `json:"maintenanceTimeWindows,omitempty"`
	// Rollout configures restarts triggered by trust changes.
	// +optional
	Rollout RolloutSpec `json:"rollout,omitempty"`
	// Paused stops reconciliation of this cluster.
	// +optional
	Paused bool `json:"paused,omitempty"`
	// Config is opaque operand configuration handed to operand reconcilers.
	// +kubebuilder:pruning:PreserveUnknownFields
	// +optional
	Config *apiextensionsv1.JSON `json:"config,omitempty"`
}

// CAStatus reports the observed state of one certificate authority.
type CAStatus struct {
	// CertGeneration is the generation of the current CA certificate.
	CertGeneration int32 `json:"certGeneration"`
	// KeyGeneration is the generation of the current CA private key.
	KeyGeneration int32 `json:"keyGeneration"`
	// NotAfter is the expiry of the current CA certificate.
	// +optional
	NotAfter *metav1.Time `json:"notAfter,omitempty"`
	// RetainedGenerations lists prior certificate generations still published.
	// +optional
	RetainedGenerations []int32 `json:"retainedGenerations,omitempty"`
	// LastRenewal is when the operator last renewed or replaced the CA.
	// +optional
	LastRenewal *metav1.Time `json:"lastRenewal,omitempty"`
}

// NodeStatus is the observed projection of one cluster instance.
type NodeStatus struct {
	ID    int32    `json:"id"`
	Name  string   `json:"name"`
	Roles []string `json:"roles,omitempty"`
}

// RollingUpdateStatus records the last restart sequence. A sequence without
// CompletedAt did not finish and is resumed by the next cycle.
type RollingUpdateStatus struct {
	// Reasons lists why the restart was required.
	Reasons []string `json:"reasons,omitempty"`
	// ClusterCAKeyReplaced is set when the sequence was triggered by a cluster CA key replacement.
	// +optional
	ClusterCAKeyReplaced bool `json:"clusterCaKeyReplaced,omitempty"`
	// ClientsCAKeyReplaced is set when the sequence was triggered by a clients CA key replacement.
	// +optional
	ClientsCAKeyReplaced bool `json:"clientsCaKeyReplaced,omitempty"`
	// CompletedAt is when the sequence finished successfully.
	// +optional
	CompletedAt *metav1.Time `json:"completedAt,omitempty"`
}

// StreamClusterStatus defines the observed state of StreamCluster.
type StreamClusterStatus struct {
	// ObservedGeneration is the spec generation handled by the last cycle.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
	// Conditions represent the latest available observations.
	// +listType=map
	// +listMapKey=type
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
	// MetadataState is the current phase of the metadata backend migration.
	// +optional
	MetadataState MetadataState `json:"metadataState,omitempty"`
	// ClusterCA reports the cluster CA.
	// +optional
	ClusterCA *CAStatus `json:"clusterCa,omitempty"`
	// ClientsCA reports the clients CA.
	// +optional
	ClientsCA *CAStatus `json:"clientsCa,omitempty"`
	// Nodes lists the instances observed in the last cycle.
	// +optional
	Nodes []NodeStatus `json:"nodes,omitempty"`
	// LastRollingUpdate records the last restart sequence.
	// +optional
	LastRollingUpdate *RollingUpdateStatus `json:"lastRollingUpdate,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:path=streamclusters,scope=Namespaced,shortName=sc
// +kubebuilder:printcolumn:name="Metadata",type=string,JSONPath=`.status.metadataState`
// +kubebuilder:printcolumn:name="Ready",type=string,JSONPath=`.status.conditions[?(@.type=="Ready")].status`

// StreamCluster is the Schema for the streamclusters API.
type StreamCluster struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   StreamClusterSpec   `json:"spec,omitempty"`
	Status StreamClusterStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// StreamClusterList contains a list of StreamCluster.
type StreamClusterList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata"`
	Items           []StreamCluster `json:"items"`
}

func init() {
	SchemeBuilder.Register(&StreamCluster{}, &StreamClusterList{})
}
