package audit

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/opsboard/opsboard/internal/authz"
)

// ErrWriteFailed marks a durable audit append that did not happen. The
// surrounding mutation must not be reported as successful.
var ErrWriteFailed = errors.New("audit write failed")

// Event represents a single auditable action in the system.
type Event struct {
	CompanyID    uuid.UUID
	DepartmentID *uuid.UUID
	ActorID      *uuid.UUID // nil for system events
	Action       string     // e.g. "task.created", "access.denied"
	ResourceKind string     // e.g. "task", "user", "audit_log"
	ResourceID   string     // "*" for list reads
	Metadata     map[string]any
	Source       string // "api", "system"
}

const (
	ActionTaskCreated       = "task.created"
	ActionTaskRead          = "task.read"
	ActionTaskListed        = "task.listed"
	ActionTaskUpdated       = "task.updated"
	ActionTaskStatusChanged = "task.status_changed"
	ActionTaskDeleted       = "task.deleted"

	ActionUserCreated = "user.created"
	ActionUserRead    = "user.read"
	ActionUserListed  = "user.listed"
	ActionUserUpdated = "user.updated"

	ActionDepartmentRead   = "department.read"
	ActionDepartmentListed = "department.listed"

	ActionCompanyRead = "company.read"

	ActionAuditListed = "audit_log.listed"

	ActionAccessDenied = "access.denied"
)

const (
	MetadataPermissions = "permissions"
	MetadataReason      = "reason"
	MetadataRequestID   = "request_id"
	MetadataChanges     = "changes"
)

// ResourceAll is the resource id recorded for list reads.
const ResourceAll = "*"

// Logger is the best-effort audit interface. Log is fire-and-forget.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// NopLogger is a no-op audit logger for testing and when audit is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}
func (NopLogger) Close() error               { return nil }

// ActorEvent builds an event attributed to actor. Ids that are not UUIDs
// are left empty rather than failing the caller.
func ActorEvent(actor *authz.Actor, action string, kind authz.ResourceKind, resourceID string) Event {
	e := Event{
		Action:       action,
		ResourceKind: string(kind),
		ResourceID:   resourceID,
		Source:       "api",
	}
	if actor == nil {
		return e
	}
	if cid, err := uuid.Parse(actor.CompanyID); err == nil {
		e.CompanyID = cid
	}
	if did, err := uuid.Parse(actor.DepartmentID); err == nil {
		e.DepartmentID = &did
	}
	if uid, err := uuid.Parse(actor.ID); err == nil {
		e.ActorID = &uid
	}
	return e
}

// WithMetadata returns a copy of e carrying key=value in its metadata.
func (e Event) WithMetadata(key string, value any) Event {
	meta := make(map[string]any, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta[key] = value
	e.Metadata = meta
	return e
}
