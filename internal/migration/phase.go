// Package migration tracks a cluster's move from the coordination ensemble to the
// built-in metadata quorum. Next is a pure, total transition function; Probe
// gathers the operational facts it consumes.
package migration

import (
	"strings"

	streamsv1alpha1 "github.com/dc-tec/stream-operator/api/v1alpha1"
	"github.com/dc-tec/stream-operator/internal/constants"
)

// Phase is a metadata backend migration phase.
type Phase = streamsv1alpha1.MetadataState

const (
	PhaseEnsemble      = streamsv1alpha1.MetadataStateEnsemble
	PhaseMigrating     = streamsv1alpha1.MetadataStateMigrating
	PhaseDualWrite     = streamsv1alpha1.MetadataStateDualWrite
	PhasePostMigration = streamsv1alpha1.MetadataStatePostMigration
	PhasePreQuorum     = streamsv1alpha1.MetadataStatePreQuorum
	PhaseQuorum        = streamsv1alpha1.MetadataStateQuorum
)

// Phases lists every phase in migration order.
var Phases = []Phase{
	PhaseEnsemble,
	PhaseMigrating,
	PhaseDualWrite,
	PhasePostMigration,
	PhasePreQuorum,
	PhaseQuorum,
}

// ParsePhase normalises a persisted phase. Empty or unknown values mean Ensemble.
func ParsePhase(s streamsv1alpha1.MetadataState) Phase {
	for _, p := range Phases {
		if s == p {
			return p
		}
	}
	return PhaseEnsemble
}

// Intent is the user's requested migration direction.
type Intent string

const (
	IntentNone      Intent = ""
	IntentDisabled  Intent = "disabled"
	IntentMigration Intent = "migration"
	IntentEnabled   Intent = "enabled"
	IntentRollback  Intent = "rollback"
)

// IntentFrom reads the intent annotation. Values outside the accepted set are
// treated as if the annotation were absent.
func IntentFrom(annotations map[string]string) Intent {
	switch v := Intent(strings.TrimSpace(annotations[constants.AnnotationMetadataBackend])); v {
	case IntentDisabled, IntentMigration, IntentEnabled, IntentRollback:
		return v
	default:
		return IntentNone
	}
}

// Facts are the operational observations that can advance a phase.
type Facts struct {
	// CoordinatorPoolExists is true once quorum coordinators are running.
	CoordinatorPoolExists bool
	// MigrationComplete is true once metadata was copied into the quorum.
	MigrationComplete bool
	// CutoverComplete is true once no broker talks to the ensemble any more.
	CutoverComplete bool
	// EnsemblePresent is true while ensemble instances still exist.
	EnsemblePresent bool
}

// Next returns the phase that follows phase for the given intent and facts.
// It is defined for every input and Quorum is terminal.
func Next(phase Phase, intent Intent, facts Facts) Phase {
	switch ParsePhase(phase) {
	case PhaseEnsemble:
		if intent == IntentMigration && facts.CoordinatorPoolExists {
			return PhaseMigrating
		}
		return PhaseEnsemble

	case PhaseMigrating:
		switch {
		case intent == IntentDisabled:
			return PhaseEnsemble
		case facts.MigrationComplete:
			return PhaseDualWrite
		}
		return PhaseMigrating

	case PhaseDualWrite:
		switch intent {
		case IntentEnabled:
			return PhasePostMigration
		case IntentDisabled:
			return PhaseEnsemble
		}
		return PhaseDualWrite

	case PhasePostMigration:
		switch {
		case intent == IntentRollback:
			return PhaseDualWrite
		case facts.CutoverComplete && facts.EnsemblePresent:
			return PhasePreQuorum
		}
		return PhasePostMigration

	case PhasePreQuorum:
		if !facts.EnsemblePresent {
			return PhaseQuorum
		}
		return PhasePreQuorum

	default:
		return PhaseQuorum
	}
}

// Gate says what the ensemble collaborator should do this cycle.
type Gate string

const (
	// GateReconcile keeps the ensemble running and reconciled.
	GateReconcile Gate = "Reconcile"
	// GateTeardown removes the ensemble.
	GateTeardown Gate = "Teardown"
	// GateSkip leaves the ensemble alone; it no longer exists.
	GateSkip Gate = "Skip"
)

// GateFor maps a phase to the ensemble collaborator's action.
func GateFor(phase Phase) Gate {
	switch ParsePhase(phase) {
	case PhasePreQuorum:
		return GateTeardown
	case PhaseQuorum:
		return GateSkip
	default:
		return GateReconcile
	}
}
