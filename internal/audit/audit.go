// Package audit records who changed which short link.
package audit

import (
	"context"

	"shorturl/pkg/logger"
)

// Actions recorded by the link service
const (
	ActionCreate         = "create"
	ActionReplaceTargets = "replace_destinations"
	ActionReplaceMeta    = "replace_metadata"
	ActionRename         = "rename"
	ActionDelete         = "delete"
)

// EntityShortLink is the entity type of short link audit records
const EntityShortLink = "ShortLink"

// Auditor persists audit records. Failures must not fail the audited operation.
type Auditor interface {
	Log(ctx context.Context, userID, action, entityType, details string)
}

// LogAuditor writes audit records to the structured application log
type LogAuditor struct {
	logger *logger.Logger
}

// NewLogAuditor creates an auditor on a named child logger
func NewLogAuditor(log *logger.Logger) *LogAuditor {
	return &LogAuditor{logger: log.WithFields(map[string]interface{}{"component": "audit"})}
}

// Log implements Auditor
func (a *LogAuditor) Log(ctx context.Context, userID, action, entityType, details string) {
	a.logger.Infow("Audit",
		"user_id", userID,
		"action", action,
		"entity_type", entityType,
		"details", details,
	)
}
