package controller

import (
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/event"

	streamsv1alpha1 "github.com/dc-tec/stream-operator/api/v1alpha1"
	"github.com/dc-tec/stream-operator/internal/constants"
)

func TestStreamClusterPredicate_Update(t *testing.T) {
	base := &streamsv1alpha1.StreamCluster{
		ObjectMeta: metav1.ObjectMeta{Name: "demo", Namespace: "streams", Generation: 1},
	}

	statusOnly := base.DeepCopy()
	statusOnly.Status.MetadataState = streamsv1alpha1.MetadataStateMigrating

	specChange := base.DeepCopy()
	specChange.Generation = 2

	intent := base.DeepCopy()
	intent.Annotations = map[string]string{constants.AnnotationMetadataBackend: "migration"}

	tests := []struct {
		name string
		new  *streamsv1alpha1.StreamCluster
		want bool
	}{
		{name: "status only", new: statusOnly, want: false},
		{name: "generation", new: specChange, want: true},
		{name: "annotation", new: intent, want: true},
	}

	p := StreamClusterPredicate()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Update(event.UpdateEvent{ObjectOld: base, ObjectNew: tt.new}); got != tt.want {
				t.Errorf("Update() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSecretContentPredicate(t *testing.T) {
	old := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "demo-cluster-ca", ResourceVersion: "1"},
		Data:       map[string][]byte{constants.SecretKeyCAKey: []byte("a")},
	}
	touched := old.DeepCopy()
	touched.ResourceVersion = "2"
	changed := old.DeepCopy()
	changed.Data[constants.SecretKeyCAKey] = []byte("b")

	p := SecretContentPredicate()
	if p.Update(event.UpdateEvent{ObjectOld: old, ObjectNew: touched}) {
		t.Errorf("Update() fired for a metadata-only change")
	}
	if !p.Update(event.UpdateEvent{ObjectOld: old, ObjectNew: changed}) {
		t.Errorf("Update() ignored a data change")
	}
	if !p.Delete(event.DeleteEvent{Object: old}) {
		t.Errorf("Delete() must trigger repair")
	}
}
