package streamcluster

import (
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/dc-tec/stream-operator/internal/ca"
	"github.com/dc-tec/stream-operator/internal/config"
	"github.com/dc-tec/stream-operator/internal/kube"
	"github.com/dc-tec/stream-operator/internal/rolling"
	"github.com/dc-tec/stream-operator/internal/workerpool"
)

// StreamClusterReconciler reconciles a StreamCluster object.
type StreamClusterReconciler struct {
	client.Client
	Scheme *runtime.Scheme
	Config config.Operator

	Secrets     kube.SecretGateway
	Instances   kube.InstanceGateway
	Deployments kube.DeploymentGateway

	CAs     *ca.Manager
	Rolling *rolling.Orchestrator
	// Ensemble runs the coordination ensemble according to the migration gate.
	Ensemble EnsembleReconciler
	// Operands build the runtime configuration of each component.
	Operands []OperandReconciler

	Now func() time.Time
}

// NewStreamClusterReconciler wires the default gateways and managers over c.
func NewStreamClusterReconciler(c client.Client, scheme *runtime.Scheme, cfg config.Operator) *StreamClusterReconciler {
	secrets := kube.NewClientSecrets(c, scheme)
	instances := kube.NewPodInstances(c)
	deployments := kube.NewClientDeployments(c)

	return &StreamClusterReconciler{
		Client:      c,
		Scheme:      scheme,
		Config:      cfg,
		Secrets:     secrets,
		Instances:   instances,
		Deployments: deployments,
		CAs:         ca.NewManager(secrets, workerpool.New(cfg.WorkerPoolSize)),
		Rolling: rolling.NewOrchestrator(instances, deployments, rolling.Config{
			OperationTimeout:  cfg.OperationTimeout,
			BackoffBase:       cfg.RollerBackoffBase,
			BackoffFactor:     cfg.RollerBackoffFactor,
			MaxAttempts:       cfg.RollerMaxAttempts,
			RestartsPerMinute: cfg.RestartsPerMinute,
		}),
		Ensemble: noopEnsemble{},
		Now:      time.Now,
	}
}

func (r *StreamClusterReconciler) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}
