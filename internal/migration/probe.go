package migration

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/dc-tec/stream-operator/internal/constants"
	"github.com/dc-tec/stream-operator/internal/kube"
	"github.com/dc-tec/stream-operator/internal/logging"
)

// Prober gathers Facts from live instances.
type Prober struct {
	Instances kube.InstanceGateway
}

// Probe lists the quorum and ensemble pools and reads the migration progress
// published by the current leader.
func (p Prober) Probe(ctx context.Context, cluster client.ObjectKey) (Facts, error) {
	var facts Facts

	quorum, err := p.Instances.ListPool(ctx, cluster, constants.LabelValuePoolQuorum)
	if err != nil {
		return Facts{}, err
	}
	for _, n := range quorum {
		if n.Roles.Has(kube.RoleCoordinator) {
			facts.CoordinatorPoolExists = true
			break
		}
	}

	ensemble, err := p.Instances.ListPool(ctx, cluster, constants.LabelValuePoolEnsemble)
	if err != nil {
		return Facts{}, err
	}
	facts.EnsemblePresent = len(ensemble) > 0

	if !facts.CoordinatorPoolExists {
		return facts, nil
	}

	leader, err := p.Instances.Leader(ctx, cluster)
	if err != nil {
		return Facts{}, err
	}
	if leader == "" {
		return facts, nil
	}
	annotations, err := p.Instances.Annotations(ctx, client.ObjectKey{Namespace: cluster.Namespace, Name: leader})
	if err != nil {
		return Facts{}, err
	}
	switch annotations[constants.AnnotationMetadataMigration] {
	case constants.MetadataMigrationCutover:
		facts.CutoverComplete = true
		facts.MigrationComplete = true
	case constants.MetadataMigrationComplete:
		facts.MigrationComplete = true
	}
	return facts, nil
}

// Decision is the outcome of one migration step.
type Decision struct {
	From   Phase
	To     Phase
	Intent Intent
	Facts  Facts
	Gate   Gate
}

// Changed reports whether the phase moved.
func (d Decision) Changed() bool {
	return d.From != d.To
}

// Step takes at most one transition for a cluster. Quorum is terminal, so no
// facts are gathered for it.
func Step(
	ctx context.Context,
	logger logr.Logger,
	prober Prober,
	cluster client.ObjectKey,
	persisted Phase,
	annotations map[string]string,
) (Decision, error) {
	from := ParsePhase(persisted)
	d := Decision{From: from, To: from, Intent: IntentFrom(annotations)}

	if from != PhaseQuorum {
		facts, err := prober.Probe(ctx, cluster)
		if err != nil {
			return Decision{}, fmt.Errorf("probing metadata migration facts: %w", err)
		}
		d.Facts = facts
		d.To = Next(from, d.Intent, facts)
	}
	d.Gate = GateFor(d.To)

	if d.Changed() {
		logging.LogAuditEvent(logger, logging.EventMetadataTransition, map[string]string{
			"cluster_namespace": cluster.Namespace,
			"cluster_name":      cluster.Name,
			"from":              string(d.From),
			"to":                string(d.To),
			"intent":            string(d.Intent),
		})
	}
	return d, nil
}
