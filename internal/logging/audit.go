package logging

import (
	"sort"

	"github.com/go-logr/logr"
)

// Audit event types emitted by the trust and lifecycle core.
const (
	EventCACreated          = "CACreated"
	EventCACertRenewed      = "CACertRenewed"
	EventCAKeyReplaced      = "CAKeyReplaced"
	EventCARenewalDeferred  = "CARenewalDeferred"
	EventCAMaterialRetired  = "CAMaterialRetired"
	EventInstanceRestarted  = "InstanceRestarted"
	EventDependentRestarted = "DependentRestarted"
	EventMetadataTransition = "MetadataStateTransition"
)

// LogAuditEvent logs a structured audit event for operator actions.
// Audit events are distinct from regular debug/info logs and are tagged
// with "audit=true" for easy filtering in log aggregation systems.
// Fields are emitted in key order so identical events render identically.
func LogAuditEvent(logger logr.Logger, eventType string, fields map[string]string) {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	kvs := make([]any, 0, 4+2*len(keys))
	kvs = append(kvs, "audit", "true", "event_type", eventType)
	for _, key := range keys {
		kvs = append(kvs, key, fields[key])
	}
	logger.WithValues(kvs...).Info("Operator audit event")
}
