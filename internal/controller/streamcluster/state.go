package streamcluster

import (
	"slices"

	corev1 "k8s.io/api/core/v1"

	streamsv1alpha1 "github.com/dc-tec/stream-operator/api/v1alpha1"
	"github.com/dc-tec/stream-operator/internal/ca"
	"github.com/dc-tec/stream-operator/internal/kube"
	"github.com/dc-tec/stream-operator/internal/migration"
	recon "github.com/dc-tec/stream-operator/internal/reconcile"
	"github.com/dc-tec/stream-operator/internal/rolling"
)

// cycleState is everything one cycle has learned so far. Stages receive it by
// value and return an extended copy; nothing in it is shared with other cycles.
type cycleState struct {
	cluster *streamsv1alpha1.StreamCluster

	// priorIdentity is the operator identity Secret before the CA stage.
	priorIdentity *corev1.Secret

	clusterCA *ca.CertificateAuthority
	clientsCA *ca.CertificateAuthority

	nodes         []kube.NodeRef
	nodesResolved bool

	migration        migration.Decision
	migrationDecided bool

	// pendingRoll is a restart sequence that has been triggered but not yet
	// completed, including one left unfinished by an earlier cycle.
	pendingRoll *streamsv1alpha1.RollingUpdateStatus
	rolled      *rolling.Result

	requeue recon.Result
}

func newCycleState(cluster *streamsv1alpha1.StreamCluster) cycleState {
	s := cycleState{cluster: cluster}
	if last := cluster.Status.LastRollingUpdate; last != nil && last.CompletedAt == nil {
		s.pendingRoll = last.DeepCopy()
	}
	return s
}

func (s cycleState) withIdentity(secret *corev1.Secret) cycleState {
	s.priorIdentity = secret
	return s
}

// withCAs records the CAs that reconciled and folds their key replacements
// into the pending restart sequence. Either may be nil when its reconcile failed.
func (s cycleState) withCAs(clusterCA, clientsCA *ca.CertificateAuthority) cycleState {
	if clusterCA != nil {
		s.clusterCA = clusterCA
	}
	if clientsCA != nil {
		s.clientsCA = clientsCA
	}
	clusterReplaced := clusterCA != nil && clusterCA.KeyReplaced
	clientsReplaced := clientsCA != nil && clientsCA.KeyReplaced
	if !clusterReplaced && !clientsReplaced {
		return s
	}

	pending := &streamsv1alpha1.RollingUpdateStatus{}
	if s.pendingRoll != nil {
		pending = s.pendingRoll.DeepCopy()
	}
	pending.ClusterCAKeyReplaced = pending.ClusterCAKeyReplaced || clusterReplaced
	pending.ClientsCAKeyReplaced = pending.ClientsCAKeyReplaced || clientsReplaced
	reasons := rolling.NewReasons(pending.Reasons...)
	if clusterReplaced {
		reasons = reasons.With(clusterCA.Reasons...)
	}
	if clientsReplaced {
		reasons = reasons.With(clientsCA.Reasons...)
	}
	pending.Reasons = reasons.List()
	pending.CompletedAt = nil
	s.pendingRoll = pending
	return s
}

func (s cycleState) withCA(updated *ca.CertificateAuthority) cycleState {
	switch updated.Scope {
	case ca.ScopeCluster:
		s.clusterCA = updated
	case ca.ScopeClients:
		s.clientsCA = updated
	}
	return s
}

func (s cycleState) withNodes(nodes []kube.NodeRef) cycleState {
	s.nodes = slices.Clone(nodes)
	s.nodesResolved = true
	return s
}

func (s cycleState) withMigration(d migration.Decision) cycleState {
	s.migration = d
	s.migrationDecided = true
	return s
}

func (s cycleState) withRequeue(r recon.Result) cycleState {
	s.requeue = recon.Sooner(s.requeue, r)
	return s
}

func (s cycleState) withRolled(result rolling.Result) cycleState {
	s.rolled = &result
	s.pendingRoll = nil
	return s
}

// rollingInputs turns the pending sequence into orchestrator inputs.
func (s cycleState) rollingInputs() rolling.Inputs {
	in := rolling.Inputs{
		Cluster:       clusterKey(s.cluster),
		PriorIdentity: s.priorIdentity,
		Policy:        dependentPolicy(s.cluster),
	}
	if s.pendingRoll == nil {
		return in
	}
	in.ClusterCA.KeyReplaced = s.pendingRoll.ClusterCAKeyReplaced
	in.ClientsCA.KeyReplaced = s.pendingRoll.ClientsCAKeyReplaced
	// Reasons are attributed to the cluster CA trigger; the orchestrator
	// only uses them as a combined set.
	in.ClusterCA.Reasons = slices.Clone(s.pendingRoll.Reasons)
	return in
}

func dependentPolicy(cluster *streamsv1alpha1.StreamCluster) streamsv1alpha1.DependentRolloutPolicy {
	if p := cluster.Spec.Rollout.DependentRolloutPolicy; p != "" {
		return p
	}
	return streamsv1alpha1.DependentRolloutInternalKeyOnly
}
