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

package controller

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	streamsv1alpha1 "github.com/dc-tec/stream-operator/api/v1alpha1"
)

// StreamClusterPredicate filters StreamCluster events to meaningful changes.
//
// The predicate allows reconciliation when:
//   - The resource is created or deleted
//   - The Spec changes (detected via Generation change)
//   - DeletionTimestamp or finalizers change
//   - Labels or annotations change (the migration intent is an annotation)
//
// Status-only updates are filtered out; the controller writes status itself
// at the end of every cycle.
func StreamClusterPredicate() predicate.Predicate {
	return predicate.Funcs{
		CreateFunc: func(e event.CreateEvent) bool {
			return true
		},
		DeleteFunc: func(e event.DeleteEvent) bool {
			return true
		},
		UpdateFunc: func(e event.UpdateEvent) bool {
			oldCluster, ok := e.ObjectOld.(*streamsv1alpha1.StreamCluster)
			if !ok {
				return true
			}
			newCluster, ok := e.ObjectNew.(*streamsv1alpha1.StreamCluster)
			if !ok {
				return true
			}

			if oldCluster.Generation != newCluster.Generation {
				return true
			}
			if !oldCluster.DeletionTimestamp.Equal(newCluster.DeletionTimestamp) {
				return true
			}
			if !equality.Semantic.DeepEqual(oldCluster.Finalizers, newCluster.Finalizers) {
				return true
			}
			if !equality.Semantic.DeepEqual(oldCluster.Labels, newCluster.Labels) {
				return true
			}
			if !equality.Semantic.DeepEqual(oldCluster.Annotations, newCluster.Annotations) {
				return true
			}

			// Filter out status-only updates
			return false
		},
		GenericFunc: func(e event.GenericEvent) bool {
			return true
		},
	}
}

// SecretContentPredicate reacts to owned Secrets only when their data or
// annotations change, so that a user editing or deleting a CA Secret is
// repaired without waiting for the periodic cycle.
func SecretContentPredicate() predicate.Predicate {
	return predicate.Funcs{
		CreateFunc: func(e event.CreateEvent) bool {
			return false
		},
		DeleteFunc: func(e event.DeleteEvent) bool {
			return true
		},
		UpdateFunc: func(e event.UpdateEvent) bool {
			oldSecret, ok := e.ObjectOld.(*corev1.Secret)
			if !ok {
				return true
			}
			newSecret, ok := e.ObjectNew.(*corev1.Secret)
			if !ok {
				return true
			}
			return !equality.Semantic.DeepEqual(oldSecret.Data, newSecret.Data) ||
				!equality.Semantic.DeepEqual(oldSecret.Annotations, newSecret.Annotations)
		},
		GenericFunc: func(e event.GenericEvent) bool {
			return false
		},
	}
}
