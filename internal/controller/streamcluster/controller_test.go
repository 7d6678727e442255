package streamcluster

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	streamsv1alpha1 "github.com/dc-tec/stream-operator/api/v1alpha1"
	"github.com/dc-tec/stream-operator/internal/ca"
	"github.com/dc-tec/stream-operator/internal/certs"
	"github.com/dc-tec/stream-operator/internal/config"
	"github.com/dc-tec/stream-operator/internal/constants"
	"github.com/dc-tec/stream-operator/internal/maintenance"
	"github.com/dc-tec/stream-operator/internal/migration"
	recon "github.com/dc-tec/stream-operator/internal/reconcile"
	"github.com/dc-tec/stream-operator/internal/rolling"
)

type alwaysHealthy struct{}

func (alwaysHealthy) Healthy(context.Context, rolling.HealthCheck) (bool, error) { return true, nil }

type recordingEnsemble struct {
	gates []migration.Gate
}

func (e *recordingEnsemble) Reconcile(_ context.Context, _ logr.Logger, _ *streamsv1alpha1.StreamCluster, gate migration.Gate) (recon.Result, error) {
	e.gates = append(e.gates, gate)
	return recon.Result{RequeueAfter: 30 * time.Second}, nil
}

func testConfig() config.Operator {
	cfg := config.Default()
	cfg.OperationTimeout = time.Second
	cfg.RollerBackoffBase = time.Millisecond
	cfg.RollerBackoffFactor = 1
	cfg.RollerMaxAttempts = 2
	return cfg
}

func demoPod(name, roles string, annotations map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   "default",
			UID:         types.UID(name + "-uid"),
			Annotations: annotations,
			Labels: map[string]string{
				constants.LabelStreamCluster: "demo",
				constants.LabelStreamRoles:   roles,
			},
		},
		Status: corev1.PodStatus{
			Conditions: []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}},
		},
	}
}

var _ = Describe("StreamCluster Controller", func() {
	var (
		ctx          context.Context
		k8sClient    client.Client
		reconciler   *StreamClusterReconciler
		secretWrites atomic.Int32
		podDeletes   atomic.Int32
		// failClientsCA fails reads of the clients CA certificate once the
		// cluster CA key Secret reaches key generation 1.
		failClientsCA atomic.Bool
		request       ctrl.Request
	)

	newCluster := func(mutate func(*streamsv1alpha1.StreamCluster)) *streamsv1alpha1.StreamCluster {
		cluster := &streamsv1alpha1.StreamCluster{
			ObjectMeta: metav1.ObjectMeta{Name: "demo", Namespace: "default", Generation: 1},
		}
		if mutate != nil {
			mutate(cluster)
		}
		return cluster
	}

	// awaitClusterKeyGeneration blocks until the cluster CA key Secret carries gen.
	awaitClusterKeyGeneration := func(ctx context.Context, c client.WithWatch, gen string) error {
		key := types.NamespacedName{Namespace: "default", Name: "demo-cluster-ca"}
		return wait.PollUntilContextTimeout(ctx, 5*time.Millisecond, 5*time.Second, true, func(ctx context.Context) (bool, error) {
			s := &corev1.Secret{}
			if err := c.Get(ctx, key, s); err != nil {
				if apierrors.IsNotFound(err) {
					return false, nil
				}
				return false, err
			}
			return s.Annotations[constants.AnnotationCAKeyGeneration] == gen, nil
		})
	}

	build := func(objs ...client.Object) {
		secretWrites.Store(0)
		podDeletes.Store(0)
		failClientsCA.Store(false)
		countSecrets := func(obj client.Object) {
			if _, ok := obj.(*corev1.Secret); ok {
				secretWrites.Add(1)
			}
		}
		k8sClient = fake.NewClientBuilder().
			WithScheme(testScheme).
			WithStatusSubresource(&streamsv1alpha1.StreamCluster{}).
			WithObjects(objs...).
			WithInterceptorFuncs(interceptor.Funcs{
				Get: func(ctx context.Context, c client.WithWatch, key client.ObjectKey, obj client.Object, opts ...client.GetOption) error {
					if key.Name == "demo-clients-ca-cert" && failClientsCA.Load() {
						if err := awaitClusterKeyGeneration(ctx, c, "1"); err != nil {
							return err
						}
						return errors.New("connection reset by peer")
					}
					return c.Get(ctx, key, obj, opts...)
				},
				Delete: func(ctx context.Context, c client.WithWatch, obj client.Object, opts ...client.DeleteOption) error {
					if _, ok := obj.(*corev1.Pod); ok {
						podDeletes.Add(1)
					}
					return c.Delete(ctx, obj, opts...)
				},
				Create: func(ctx context.Context, c client.WithWatch, obj client.Object, opts ...client.CreateOption) error {
					countSecrets(obj)
					return c.Create(ctx, obj, opts...)
				},
				Update: func(ctx context.Context, c client.WithWatch, obj client.Object, opts ...client.UpdateOption) error {
					countSecrets(obj)
					return c.Update(ctx, obj, opts...)
				},
			}).
			Build()
		reconciler = NewStreamClusterReconciler(k8sClient, testScheme, testConfig())
		reconciler.Rolling = rolling.NewOrchestrator(reconciler.Instances, reconciler.Deployments, rolling.Config{
			OperationTimeout: time.Second,
			BackoffBase:      time.Millisecond,
			BackoffFactor:    1,
			MaxAttempts:      2,
		}, rolling.WithHealthChecker(alwaysHealthy{}))
	}

	fetch := func() *streamsv1alpha1.StreamCluster {
		cluster := &streamsv1alpha1.StreamCluster{}
		Expect(k8sClient.Get(ctx, request.NamespacedName, cluster)).To(Succeed())
		return cluster
	}

	secret := func(name string) *corev1.Secret {
		s := &corev1.Secret{}
		Expect(k8sClient.Get(ctx, types.NamespacedName{Namespace: "default", Name: name}, s)).To(Succeed())
		return s
	}

	BeforeEach(func() {
		ctx = context.Background()
		request = ctrl.Request{NamespacedName: types.NamespacedName{Namespace: "default", Name: "demo"}}
	})

	Context("with a fresh cluster", func() {
		BeforeEach(func() {
			build(newCluster(nil))
		})

		It("bootstraps both CAs at generation 0 and reports Ready", func() {
			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RequeueAfter).To(Equal(constants.RequeueStandard))

			for _, name := range []string{"demo-cluster-ca-cert", "demo-cluster-ca", "demo-clients-ca-cert", "demo-clients-ca"} {
				s := secret(name)
				Expect(s.Annotations).To(HaveKeyWithValue(constants.AnnotationCACertGeneration, "0"))
				Expect(s.OwnerReferences).To(HaveLen(1))
			}

			cluster := fetch()
			Expect(meta.IsStatusConditionTrue(cluster.Status.Conditions, string(streamsv1alpha1.ConditionReady))).To(BeTrue())
			Expect(cluster.Status.ClusterCA).NotTo(BeNil())
			Expect(cluster.Status.ClusterCA.CertGeneration).To(BeZero())
			Expect(cluster.Status.ClientsCA.CertGeneration).To(BeZero())
			Expect(cluster.Status.MetadataState).To(Equal(streamsv1alpha1.MetadataStateEnsemble))

			By("completing an empty rolling update")
			Expect(cluster.Status.LastRollingUpdate).NotTo(BeNil())
			Expect(cluster.Status.LastRollingUpdate.CompletedAt).NotTo(BeNil())
			Expect(cluster.Status.LastRollingUpdate.Reasons).To(ConsistOf("cluster CA created", "clients CA created"))
			rollingCond := meta.FindStatusCondition(cluster.Status.Conditions, string(streamsv1alpha1.ConditionRollingUpdate))
			Expect(rollingCond).NotTo(BeNil())
			Expect(rollingCond.Reason).To(Equal(constants.ReasonIdle))
		})

		It("issues an operator identity signed by the cluster CA", func() {
			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())

			identity := secret("demo-operator-identity")
			Expect(identity.Type).To(Equal(corev1.SecretTypeTLS))
			leaf, err := certs.Load(identity.Data[constants.SecretKeyTLSCrt], identity.Data[constants.SecretKeyTLSKey])
			Expect(err).NotTo(HaveOccurred())
			root, err := certs.ParseCertificate(secret("demo-cluster-ca-cert").Data[constants.SecretKeyCACert])
			Expect(err).NotTo(HaveOccurred())
			Expect(certs.VerifyIssuedBy(leaf.Certificate, root, time.Now())).To(Succeed())
			Expect(identity.OwnerReferences).To(HaveLen(1))
		})

		It("refreshes a stale identity trust bundle without reissuing the certificate", func() {
			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())

			identity := secret("demo-operator-identity")
			leaf := identity.Data[constants.SecretKeyTLSCrt]
			identity.Data[constants.SecretKeyCACert] = []byte("stale bundle")
			Expect(k8sClient.Update(ctx, identity)).To(Succeed())

			_, err = reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())

			refreshed := secret("demo-operator-identity")
			Expect(refreshed.Data[constants.SecretKeyCACert]).To(Equal(secret("demo-cluster-ca-cert").Data[constants.SecretKeyCACert]))
			Expect(refreshed.Data[constants.SecretKeyTLSCrt]).To(Equal(leaf))
		})

		It("performs no Secret writes on a stable second cycle", func() {
			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			first := fetch().Status

			secretWrites.Store(0)
			_, err = reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(secretWrites.Load()).To(BeZero())

			second := fetch().Status
			Expect(second.ClusterCA.CertGeneration).To(Equal(first.ClusterCA.CertGeneration))
			Expect(second.ClusterCA.KeyGeneration).To(Equal(first.ClusterCA.KeyGeneration))
			Expect(second.LastRollingUpdate).To(Equal(first.LastRollingUpdate))
		})
	})

	Context("with live instances", func() {
		BeforeEach(func() {
			build(
				newCluster(nil),
				demoPod("demo-0", "coordinator,data", nil),
				demoPod("demo-1", "data", nil),
			)
		})

		It("projects the topology into status", func() {
			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())

			want := []streamsv1alpha1.NodeStatus{
				{ID: 0, Name: "demo-0", Roles: []string{"coordinator", "data"}},
				{ID: 1, Name: "demo-1", Roles: []string{"data"}},
			}
			Expect(cmp.Diff(want, fetch().Status.Nodes)).To(BeEmpty())
		})
	})

	Context("with an unfinished rolling update", func() {
		BeforeEach(func() {
			cluster := newCluster(nil)
			cluster.Status.LastRollingUpdate = &streamsv1alpha1.RollingUpdateStatus{
				Reasons:              []string{"cluster CA key replaced"},
				ClusterCAKeyReplaced: true,
			}
			build(cluster, demoPod("demo-0", "data", nil))
		})

		It("keeps the sequence pending while an instance is unhealthy", func() {
			reconciler.Rolling = rolling.NewOrchestrator(reconciler.Instances, reconciler.Deployments, rolling.Config{
				OperationTimeout: time.Second,
				BackoffBase:      time.Millisecond,
				BackoffFactor:    1,
				MaxAttempts:      2,
			})

			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).To(HaveOccurred())

			cluster := fetch()
			Expect(cluster.Status.LastRollingUpdate.CompletedAt).To(BeNil())
			Expect(cluster.Status.LastRollingUpdate.ClusterCAKeyReplaced).To(BeTrue())
			ready := meta.FindStatusCondition(cluster.Status.Conditions, string(streamsv1alpha1.ConditionReady))
			Expect(ready.Status).To(Equal(metav1.ConditionFalse))
			Expect(ready.Reason).To(Equal(constants.ReasonHealthTimeout))
		})

		It("resumes and completes the sequence", func() {
			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())

			last := fetch().Status.LastRollingUpdate
			Expect(last.CompletedAt).NotTo(BeNil())
			Expect(last.Reasons).To(ContainElement("cluster CA key replaced"))
		})
	})

	Context("without owner references on cluster CA Secrets", func() {
		BeforeEach(func() {
			build(newCluster(func(c *streamsv1alpha1.StreamCluster) {
				c.Spec.ClusterCA.GenerateSecretOwnerReference = ptr.To(false)
			}))
		})

		It("leaves the operator identity unowned as well", func() {
			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())

			Expect(secret("demo-cluster-ca-cert").OwnerReferences).To(BeEmpty())
			Expect(secret("demo-cluster-ca").OwnerReferences).To(BeEmpty())
			Expect(secret("demo-operator-identity").OwnerReferences).To(BeEmpty())
			Expect(secret("demo-clients-ca-cert").OwnerReferences).To(HaveLen(1))
		})
	})

	Context("when the clients CA fails during a cluster CA key replacement", func() {
		BeforeEach(func() {
			build(newCluster(func(c *streamsv1alpha1.StreamCluster) {
				c.Spec.ClusterCA.CertificateExpirationPolicy = streamsv1alpha1.ExpirationPolicyReplaceKey
			}))
		})

		It("still restarts the coordinators on the next cycle", func() {
			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(k8sClient.Create(ctx, demoPod("demo-0", "coordinator", nil))).To(Succeed())

			later := time.Now().AddDate(0, 0, 340)
			reconciler.Now = func() time.Time { return later }
			reconciler.CAs.WithClock(reconciler.Now)

			By("failing the clients CA after the new cluster CA key was stored")
			failClientsCA.Store(true)
			_, err = reconciler.Reconcile(ctx, request)
			Expect(err).To(HaveOccurred())
			Expect(podDeletes.Load()).To(BeZero())
			Expect(secret("demo-cluster-ca").Annotations).To(HaveKeyWithValue(constants.AnnotationCAKeyGeneration, "1"))

			cluster := fetch()
			Expect(cluster.Status.ClusterCA.KeyGeneration).To(BeEquivalentTo(1))
			Expect(cluster.Status.LastRollingUpdate).NotTo(BeNil())
			Expect(cluster.Status.LastRollingUpdate.CompletedAt).To(BeNil())
			Expect(cluster.Status.LastRollingUpdate.ClusterCAKeyReplaced).To(BeTrue())

			By("reconciling cleanly")
			failClientsCA.Store(false)
			_, err = reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(podDeletes.Load()).To(BeNumerically(">=", 1))

			last := fetch().Status.LastRollingUpdate
			Expect(last.CompletedAt).NotTo(BeNil())
			Expect(last.Reasons).To(ContainElement("cluster CA key replaced"))
		})
	})

	Context("with a renewal due outside the maintenance window", func() {
		BeforeEach(func() {
			build(newCluster(func(c *streamsv1alpha1.StreamCluster) {
				c.Spec.MaintenanceTimeWindows = []string{"12 * * * *"}
			}))
		})

		It("requeues for the start of the next window", func() {
			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())

			later := time.Now().UTC().AddDate(0, 0, 340).Truncate(time.Hour).Add(10*time.Minute + 30*time.Second)
			reconciler.Now = func() time.Time { return later }
			reconciler.CAs.WithClock(reconciler.Now)

			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RequeueAfter).To(Equal(90 * time.Second))

			cluster := fetch()
			Expect(cluster.Status.ClusterCA.CertGeneration).To(BeZero())
			Expect(cluster.Status.ClientsCA.CertGeneration).To(BeZero())
		})
	})

	Context("with an externally supplied CA that does not exist", func() {
		BeforeEach(func() {
			build(newCluster(func(c *streamsv1alpha1.StreamCluster) {
				c.Spec.ClientsCA.GenerateCertificateAuthority = ptr.To(false)
			}))
		})

		It("reports a configuration error and waits for the periodic cycle", func() {
			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RequeueAfter).To(Equal(constants.RequeueStandard))

			ready := meta.FindStatusCondition(fetch().Status.Conditions, string(streamsv1alpha1.ConditionReady))
			Expect(ready).NotTo(BeNil())
			Expect(ready.Status).To(Equal(metav1.ConditionFalse))
			Expect(ready.Reason).To(Equal(constants.ReasonConfigurationError))
		})
	})

	Context("with an invalid maintenance window", func() {
		BeforeEach(func() {
			build(newCluster(func(c *streamsv1alpha1.StreamCluster) {
				c.Spec.MaintenanceTimeWindows = []string{"not a cron"}
			}))
		})

		It("reports a configuration error", func() {
			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			ready := meta.FindStatusCondition(fetch().Status.Conditions, string(streamsv1alpha1.ConditionReady))
			Expect(ready.Reason).To(Equal(constants.ReasonConfigurationError))
			Expect(secretWrites.Load()).To(BeZero())
		})
	})

	Context("with a metadata migration requested", func() {
		var ensemble *recordingEnsemble

		BeforeEach(func() {
			quorum := demoPod("demo-quorum-0", "coordinator", nil)
			quorum.Labels[constants.LabelStreamPool] = constants.LabelValuePoolQuorum
			build(newCluster(func(c *streamsv1alpha1.StreamCluster) {
				c.Annotations = map[string]string{constants.AnnotationMetadataBackend: "migration"}
			}), quorum)
			ensemble = &recordingEnsemble{}
			reconciler.Ensemble = ensemble
		})

		It("moves to Migrating and keeps the ensemble reconciled", func() {
			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RequeueAfter).To(Equal(30 * time.Second))
			Expect(fetch().Status.MetadataState).To(Equal(streamsv1alpha1.MetadataStateMigrating))
			Expect(ensemble.gates).To(Equal([]migration.Gate{migration.GateReconcile}))
		})
	})

	Context("when paused", func() {
		BeforeEach(func() {
			build(newCluster(func(c *streamsv1alpha1.StreamCluster) { c.Spec.Paused = true }))
		})

		It("does not touch any Secret", func() {
			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(ctrl.Result{}))
			Expect(secretWrites.Load()).To(BeZero())

			ready := meta.FindStatusCondition(fetch().Status.Conditions, string(streamsv1alpha1.ConditionReady))
			Expect(ready.Status).To(Equal(metav1.ConditionUnknown))
			Expect(ready.Reason).To(Equal(constants.ReasonPaused))
		})
	})

	Context("when the cluster is gone", func() {
		BeforeEach(func() {
			build()
		})

		It("returns without error", func() {
			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(ctrl.Result{}))
		})
	})
})

var _ = Describe("deferredRequeue", func() {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	windows := func(exprs ...string) maintenance.Windows {
		w, err := maintenance.Parse(exprs)
		Expect(err).NotTo(HaveOccurred())
		return w
	}

	It("waits for the next window when a renewal was deferred", func() {
		deferred := &ca.CertificateAuthority{Scope: ca.ScopeClients, Deferred: true}
		result := deferredRequeue(windows("0 2 * * *"), now, &ca.CertificateAuthority{Scope: ca.ScopeCluster}, deferred)
		Expect(result.RequeueAfter).To(Equal(16 * time.Hour))
	})

	It("leaves the periodic cycle alone otherwise", func() {
		Expect(deferredRequeue(windows("0 2 * * *"), now, &ca.CertificateAuthority{Scope: ca.ScopeCluster}, nil)).To(BeZero())
		Expect(deferredRequeue(windows(), now, &ca.CertificateAuthority{Deferred: true})).To(BeZero())
	})
})
