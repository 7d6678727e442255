package streamcluster

import (
	"time"

	"golang.org/x/time/rate"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/util/workqueue"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/controller"

	streamsv1alpha1 "github.com/dc-tec/stream-operator/api/v1alpha1"
	"github.com/dc-tec/stream-operator/internal/constants"
	controllerutil "github.com/dc-tec/stream-operator/internal/controller"
)

// SetupWithManager registers the StreamCluster controller. The workqueue keys
// by cluster, so MaxConcurrentReconciles bounds how many different clusters
// run a cycle at the same time.
func (r *StreamClusterReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&streamsv1alpha1.StreamCluster{}, builder.WithPredicates(controllerutil.StreamClusterPredicate())).
		Owns(&corev1.Secret{}, builder.WithPredicates(controllerutil.SecretContentPredicate())).
		WithOptions(controller.Options{
			MaxConcurrentReconciles: max(r.Config.MaxConcurrentReconciles, 1),
			RateLimiter: workqueue.NewTypedMaxOfRateLimiter(
				workqueue.NewTypedItemExponentialFailureRateLimiter[ctrl.Request](1*time.Second, 60*time.Second),
				&workqueue.TypedBucketRateLimiter[ctrl.Request]{Limiter: rate.NewLimiter(rate.Limit(10), 100)},
			),
		}).
		Named(constants.ControllerNameStreamCluster).
		Complete(r)
}
