package constants

// Annotation keys used by the operator and by operand startup logic.
const (
	// AnnotationCACertGeneration records the generation of the CA certificate held
	// in a CA Secret.
	AnnotationCACertGeneration = "streams.dc-tec.io/ca-cert-generation"
	// AnnotationCAKeyGeneration records the generation of the CA private key held
	// in a CA Secret.
	AnnotationCAKeyGeneration = "streams.dc-tec.io/ca-key-generation"

	// AnnotationClusterCACertGeneration is set by each instance once it has adopted
	// the given cluster CA certificate generation.
	AnnotationClusterCACertGeneration = "streams.dc-tec.io/cluster-ca-cert-generation"
	// AnnotationClientsCACertGeneration is set by each instance once it has adopted
	// the given clients CA certificate generation.
	AnnotationClientsCACertGeneration = "streams.dc-tec.io/clients-ca-cert-generation"

	// AnnotationMetadataBackend is the user intent for the metadata backend migration.
	// Accepted values are disabled, migration, enabled and rollback.
	AnnotationMetadataBackend = "streams.dc-tec.io/metadata-backend"
	// AnnotationMetadataMigration is reported by the quorum leader while migrating
	// (values: complete, cutover).
	AnnotationMetadataMigration = "streams.dc-tec.io/metadata-migration"

	// AnnotationRestartedAt is stamped on dependent pod templates to force a rollout.
	AnnotationRestartedAt = "streams.dc-tec.io/restarted-at"
	// AnnotationRestartReason records why the last forced rollout happened.
	AnnotationRestartReason = "streams.dc-tec.io/restart-reason"
)

// Values reported through AnnotationMetadataMigration.
const (
	MetadataMigrationComplete = "complete"
	MetadataMigrationCutover  = "cutover"
)
