package port

import (
	"context"

	"github.com/arklim/payroll-access/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishSecurityEvent(ctx context.Context, event domain.SecurityEvent) error
	PublishRolesChanged(ctx context.Context, event domain.RolesChangedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
}

// SecurityLogRepository persists security events for audit.
type SecurityLogRepository interface {
	InsertSecurityEvent(ctx context.Context, event domain.SecurityEvent) error
}

// SecurityEventSink receives decision records. Record never fails the caller.
type SecurityEventSink interface {
	Record(ctx context.Context, event domain.SecurityEvent)
}
