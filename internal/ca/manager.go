package ca

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	streamsv1alpha1 "github.com/dc-tec/stream-operator/api/v1alpha1"
	"github.com/dc-tec/stream-operator/internal/certs"
	"github.com/dc-tec/stream-operator/internal/constants"
	operatorerrors "github.com/dc-tec/stream-operator/internal/errors"
	"github.com/dc-tec/stream-operator/internal/kube"
	"github.com/dc-tec/stream-operator/internal/logging"
	"github.com/dc-tec/stream-operator/internal/maintenance"
	"github.com/dc-tec/stream-operator/internal/workerpool"
)

// Manager reconciles CA Secrets. It holds no per-cluster state.
type Manager struct {
	secrets kube.SecretGateway
	pool    *workerpool.Pool
	now     func() time.Time
}

// NewManager constructs a Manager. A nil pool runs blocking work with a single slot.
func NewManager(secrets kube.SecretGateway, pool *workerpool.Pool) *Manager {
	if pool == nil {
		pool = workerpool.New(1)
	}
	return &Manager{secrets: secrets, pool: pool, now: time.Now}
}

// WithClock overrides the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Request is the input of one CA reconcile.
type Request struct {
	Cluster *streamsv1alpha1.StreamCluster
	Scope   TrustScope
	Policy  Policy
	Windows maintenance.Windows
	// Observed is the CA status published by the previous cycle, if any.
	Observed *streamsv1alpha1.CAStatus
}

// stored is the parsed content of a CA Secret pair.
type stored struct {
	certSecret *corev1.Secret
	keySecret  *corev1.Secret

	generation    int
	keyGeneration int
	// keyCertGeneration is the certificate generation recorded on the key Secret.
	keyCertGeneration int
	annotated         bool
}

// Reconcile loads the CA of req.Scope, bootstraps or renews it as the policy
// requires, and persists generated material. It never retries internally.
func (m *Manager) Reconcile(ctx context.Context, logger logr.Logger, req Request) (*CertificateAuthority, error) {
	logger = logger.WithValues("scope", string(req.Scope))
	cluster := req.Cluster
	now := m.now()
	metrics := newCAMetrics(cluster.Namespace, cluster.Name, req.Scope)

	st, err := m.load(ctx, cluster, req.Scope)
	if err != nil {
		return nil, err
	}

	if !req.Policy.Generate {
		ca, err := m.external(logger, req, st)
		if err != nil {
			return nil, err
		}
		metrics.observe(ca)
		return ca, nil
	}

	var ca *CertificateAuthority
	switch {
	case st.certSecret == nil && st.keySecret == nil:
		ca, err = m.bootstrap(ctx, logger, req, st, now)
		if err == nil {
			metrics.recordChange(renewalKindCreated)
		}
	case st.certSecret == nil || st.keySecret == nil:
		var previous []byte
		if st.certSecret != nil {
			previous = st.certSecret.Data[constants.SecretKeyCACert]
		}
		ca, err = m.replaceKey(ctx, req, previous, st, now,
			fmt.Sprintf("%s secret pair incomplete", req.Scope))
		if err == nil {
			metrics.recordChange(renewalKindKeyReplaced)
		}
	default:
		ca, err = m.maintain(ctx, logger, req, st, now, metrics)
	}
	if err != nil {
		return nil, err
	}
	metrics.observe(ca)
	return ca, nil
}

func (m *Manager) load(ctx context.Context, cluster *streamsv1alpha1.StreamCluster, scope TrustScope) (stored, error) {
	var st stored
	var err error

	st.certSecret, err = m.secrets.Get(ctx, client.ObjectKey{Namespace: cluster.Namespace, Name: scope.CertSecretName(cluster.Name)})
	if err != nil {
		return st, err
	}
	st.keySecret, err = m.secrets.Get(ctx, client.ObjectKey{Namespace: cluster.Namespace, Name: scope.KeySecretName(cluster.Name)})
	if err != nil {
		return st, err
	}

	st.generation = -1
	st.keyCertGeneration = -1
	st.annotated = true
	if st.certSecret != nil {
		g, ok := generationAnnotation(st.certSecret, constants.AnnotationCACertGeneration)
		st.generation = g
		st.annotated = st.annotated && ok
	}
	if st.keySecret != nil {
		g, ok := generationAnnotation(st.keySecret, constants.AnnotationCACertGeneration)
		st.keyCertGeneration = g
		st.annotated = st.annotated && ok
		kg, ok := generationAnnotation(st.keySecret, constants.AnnotationCAKeyGeneration)
		st.keyGeneration = kg
		st.annotated = st.annotated && ok
	}
	return st, nil
}

// nextGeneration is one past the largest certificate generation recorded in the
// pair or in the last published status, so a generation is never reused even
// after the Secrets were deleted. A fresh cluster starts at zero.
func nextGeneration(st stored, observed *streamsv1alpha1.CAStatus) int {
	highest := max(st.generation, st.keyCertGeneration)
	if observed != nil {
		highest = max(highest, int(observed.CertGeneration))
	}
	return highest + 1
}

func (m *Manager) external(logger logr.Logger, req Request, st stored) (*CertificateAuthority, error) {
	if st.certSecret == nil {
		return nil, operatorerrors.Configurationf(
			"%s secret %s/%s does not exist and generateCertificateAuthority is false",
			req.Scope, req.Cluster.Namespace, req.Scope.CertSecretName(req.Cluster.Name))
	}

	cert, err := certs.ParseCertificate(st.certSecret.Data[constants.SecretKeyCACert])
	if err != nil {
		return nil, operatorerrors.Configurationf("%s secret %s: %v", req.Scope, st.certSecret.Name, err)
	}
	pair := &certs.KeyPair{Certificate: cert, CertPEM: st.certSecret.Data[constants.SecretKeyCACert]}
	if st.keySecret != nil {
		if keyPEM := st.keySecret.Data[constants.SecretKeyCAKey]; len(keyPEM) > 0 {
			key, err := certs.ParsePrivateKey(keyPEM)
			if err != nil {
				return nil, operatorerrors.Configurationf("%s secret %s: %v", req.Scope, st.keySecret.Name, err)
			}
			pair.Key = key
			pair.KeyPEM = keyPEM
		}
	}

	ca := &CertificateAuthority{
		Scope:         req.Scope,
		Policy:        req.Policy,
		Current:       pair,
		Prior:         priorCerts(st.certSecret),
		Generation:    max(st.generation, 0),
		KeyGeneration: st.keyGeneration,
	}

	// A user-driven key swap must roll the cluster like an operator one.
	if req.Observed != nil && ca.KeyGeneration > int(req.Observed.KeyGeneration) {
		ca.KeyReplaced = true
		ca.Reasons = []string{fmt.Sprintf("%s key replaced externally", req.Scope)}
		logger.Info("Externally supplied CA key generation advanced",
			"previous_key_generation", req.Observed.KeyGeneration, "key_generation", ca.KeyGeneration)
	}
	return ca, nil
}

func (m *Manager) bootstrap(ctx context.Context, logger logr.Logger, req Request, st stored, now time.Time) (*CertificateAuthority, error) {
	pair, err := m.generateRoot(ctx, req, now)
	if err != nil {
		return nil, err
	}
	ca := &CertificateAuthority{
		Scope:       req.Scope,
		Policy:      req.Policy,
		Current:     pair,
		Prior:       map[int][]byte{},
		Generation:  nextGeneration(st, req.Observed),
		Created:     true,
		KeyReplaced: true,
		Reasons:     []string{fmt.Sprintf("%s created", req.Scope)},
	}
	if req.Observed != nil {
		ca.KeyGeneration = nextKeyGeneration(st, req.Observed)
	}
	if err := m.persist(ctx, req.Cluster, ca); err != nil {
		return nil, err
	}

	logger.Info("Generated certificate authority", "generation", ca.Generation, "not_after", ca.NotAfter())
	logging.LogAuditEvent(logger, logging.EventCACreated, map[string]string{
		"cluster_namespace": req.Cluster.Namespace,
		"cluster_name":      req.Cluster.Name,
		"scope":             string(req.Scope),
		"generation":        strconv.Itoa(ca.Generation),
	})
	return ca, nil
}

// maintain handles a complete stored pair of a generated CA.
func (m *Manager) maintain(
	ctx context.Context,
	logger logr.Logger,
	req Request,
	st stored,
	now time.Time,
	metrics *caMetrics,
) (*CertificateAuthority, error) {
	certPEM := st.certSecret.Data[constants.SecretKeyCACert]
	keyPEM := st.keySecret.Data[constants.SecretKeyCAKey]

	cert, err := certs.ParseCertificate(certPEM)
	if err != nil {
		return nil, operatorerrors.Configurationf("%s secret %s: %v", req.Scope, st.certSecret.Name, err)
	}
	key, err := certs.ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, operatorerrors.Configurationf("%s secret %s: %v", req.Scope, st.keySecret.Name, err)
	}

	if !certs.MatchesKey(cert, key) || st.keyCertGeneration > st.generation {
		// An interrupted write left a certificate without its key. The material
		// cannot be used, so it is replaced regardless of maintenance windows.
		ca, err := m.replaceKey(ctx, req, certPEM, st, now,
			fmt.Sprintf("%s key does not match its certificate", req.Scope))
		if err == nil {
			metrics.recordChange(renewalKindKeyReplaced)
		}
		return ca, err
	}

	current := &CertificateAuthority{
		Scope:         req.Scope,
		Policy:        req.Policy,
		Current:       &certs.KeyPair{Certificate: cert, Key: key, CertPEM: certPEM, KeyPEM: keyPEM},
		Prior:         priorCerts(st.certSecret),
		Generation:    max(st.generation, 0),
		KeyGeneration: st.keyGeneration,
	}

	// A key persisted by a cycle that failed before publishing status has not
	// been rolled yet.
	if req.Observed != nil && current.KeyGeneration > int(req.Observed.KeyGeneration) {
		current.KeyReplaced = true
		current.Reasons = []string{fmt.Sprintf("%s key replaced", req.Scope)}
		logger.Info("Stored CA key generation is ahead of the published status",
			"published_key_generation", req.Observed.KeyGeneration, "key_generation", current.KeyGeneration)
	}

	days := certs.DaysUntilExpiry(cert, now)
	if days > req.Policy.RenewalDays {
		if !st.annotated {
			if err := m.persist(ctx, req.Cluster, current); err != nil {
				return nil, err
			}
		}
		return current, nil
	}

	if !req.Windows.Contains(now) {
		logger.Info("CA renewal due but outside maintenance windows; deferring",
			"days_until_expiry", days, "windows", req.Windows.String(), "next_window", req.Windows.Next(now))
		logging.LogAuditEvent(logger, logging.EventCARenewalDeferred, map[string]string{
			"cluster_namespace": req.Cluster.Namespace,
			"cluster_name":      req.Cluster.Name,
			"scope":             string(req.Scope),
			"days_until_expiry": strconv.Itoa(days),
		})
		metrics.recordChange(renewalKindDeferred)
		deferred := *current
		deferred.Deferred = true
		return &deferred, nil
	}

	switch req.Policy.ExpirationPolicy {
	case streamsv1alpha1.ExpirationPolicyReplaceKey:
		ca, err := m.replaceKey(ctx, req, certPEM, st, now,
			fmt.Sprintf("%s key replaced", req.Scope))
		if err != nil {
			return nil, err
		}
		metrics.recordChange(renewalKindKeyReplaced)
		logger.Info("Replaced CA key", "generation", ca.Generation, "key_generation", ca.KeyGeneration)
		logging.LogAuditEvent(logger, logging.EventCAKeyReplaced, map[string]string{
			"cluster_namespace": req.Cluster.Namespace,
			"cluster_name":      req.Cluster.Name,
			"scope":             string(req.Scope),
			"generation":        strconv.Itoa(ca.Generation),
			"key_generation":    strconv.Itoa(ca.KeyGeneration),
		})
		return ca, nil

	case streamsv1alpha1.ExpirationPolicyRenewCertificate:
		pair, err := workerpool.Do(ctx, m.pool, func() (*certs.KeyPair, error) {
			return certs.RenewRoot(cert, key, req.Policy.ValidityDays, now)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to renew %s: %w", req.Scope, err)
		}
		renewed := *current
		renewed.Current = pair
		renewed.Generation = nextGeneration(st, req.Observed)
		renewed.Renewed = true
		if err := m.persist(ctx, req.Cluster, &renewed); err != nil {
			return nil, err
		}
		metrics.recordChange(renewalKindRenewed)
		logger.Info("Renewed CA certificate under existing key", "generation", renewed.Generation, "not_after", renewed.NotAfter())
		logging.LogAuditEvent(logger, logging.EventCACertRenewed, map[string]string{
			"cluster_namespace": req.Cluster.Namespace,
			"cluster_name":      req.Cluster.Name,
			"scope":             string(req.Scope),
			"generation":        strconv.Itoa(renewed.Generation),
		})
		return &renewed, nil

	default:
		return nil, operatorerrors.Configurationf("unsupported certificateExpirationPolicy %q", req.Policy.ExpirationPolicy)
	}
}

// replaceKey generates a new root at the next generation. previousCertPEM, when
// set, is retained under its generation so instances that have not restarted
// keep trusting peers that still present it.
func (m *Manager) replaceKey(
	ctx context.Context,
	req Request,
	previousCertPEM []byte,
	st stored,
	now time.Time,
	reason string,
) (*CertificateAuthority, error) {
	pair, err := m.generateRoot(ctx, req, now)
	if err != nil {
		return nil, err
	}

	prior := priorCerts(st.certSecret)
	if len(previousCertPEM) > 0 && st.generation >= 0 {
		prior[st.generation] = previousCertPEM
	}

	ca := &CertificateAuthority{
		Scope:         req.Scope,
		Policy:        req.Policy,
		Current:       pair,
		Prior:         prior,
		Generation:    nextGeneration(st, req.Observed),
		KeyGeneration: nextKeyGeneration(st, req.Observed),
		KeyReplaced:   true,
		Reasons:       []string{reason},
	}
	if err := m.persist(ctx, req.Cluster, ca); err != nil {
		return nil, err
	}
	return ca, nil
}

func (m *Manager) generateRoot(ctx context.Context, req Request, now time.Time) (*certs.KeyPair, error) {
	key := fmt.Sprintf("%s/%s/%s", req.Cluster.Namespace, req.Cluster.Name, req.Scope)
	pair, err := workerpool.DoShared(ctx, m.pool, key, func() (*certs.KeyPair, error) {
		return certs.GenerateRoot(fmt.Sprintf("%s %s", req.Cluster.Name, req.Scope), req.Policy.ValidityDays, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s: %w", req.Scope, err)
	}
	return pair, nil
}

// persist writes the certificate Secret before the key Secret. A crash in
// between leaves a certificate newer than the key annotation, which the next
// cycle detects and repairs at a fresh generation.
func (m *Manager) persist(ctx context.Context, cluster *streamsv1alpha1.StreamCluster, ca *CertificateAuthority) error {
	if !ca.Generated() {
		return nil
	}

	var owner metav1.Object
	if ca.Policy.GenerateOwnerReference {
		owner = cluster
	}

	certSecret, keySecret := ca.secrets(cluster)
	if err := m.secrets.CreateOrUpdate(ctx, certSecret, owner); err != nil {
		return err
	}
	return m.secrets.CreateOrUpdate(ctx, keySecret, owner)
}

func (ca *CertificateAuthority) secrets(cluster *streamsv1alpha1.StreamCluster) (*corev1.Secret, *corev1.Secret) {
	labels := map[string]string{
		constants.LabelAppName:       constants.LabelValueAppNameStream,
		constants.LabelAppInstance:   cluster.Name,
		constants.LabelAppManagedBy:  constants.LabelValueManagedByOperator,
		constants.LabelAppComponent:  constants.LabelValueComponentCA,
		constants.LabelStreamCluster: cluster.Name,
	}
	gen := strconv.Itoa(ca.Generation)

	certData := map[string][]byte{constants.SecretKeyCACert: ca.Current.CertPEM}
	for g, pem := range ca.Prior {
		certData[priorDataKey(g)] = pem
	}

	certSecret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:        ca.Scope.CertSecretName(cluster.Name),
			Namespace:   cluster.Namespace,
			Labels:      labels,
			Annotations: map[string]string{constants.AnnotationCACertGeneration: gen},
		},
		Type: corev1.SecretTypeOpaque,
		Data: certData,
	}
	keySecret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ca.Scope.KeySecretName(cluster.Name),
			Namespace: cluster.Namespace,
			Labels:    labels,
			Annotations: map[string]string{
				constants.AnnotationCACertGeneration: gen,
				constants.AnnotationCAKeyGeneration:  strconv.Itoa(ca.KeyGeneration),
			},
		},
		Type: corev1.SecretTypeOpaque,
		Data: map[string][]byte{constants.SecretKeyCAKey: ca.Current.KeyPEM},
	}
	return certSecret, keySecret
}

// nextKeyGeneration never goes backwards, even when the key Secret was lost.
func nextKeyGeneration(st stored, observed *streamsv1alpha1.CAStatus) int {
	next := st.keyGeneration
	if observed != nil {
		next = max(next, int(observed.KeyGeneration))
	}
	return next + 1
}

func generationAnnotation(secret *corev1.Secret, key string) (int, bool) {
	v, ok := secret.Annotations[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func priorCerts(secret *corev1.Secret) map[int][]byte {
	out := map[int][]byte{}
	if secret == nil {
		return out
	}
	for k, v := range secret.Data {
		if !strings.HasPrefix(k, "ca-") || !strings.HasSuffix(k, ".crt") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(k, "ca-"), ".crt"))
		if err != nil || n < 0 {
			continue
		}
		out[n] = v
	}
	return out
}
