package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Debug("Stub event published", append([]zap.Field{
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
	}, fields...)...)
}

// PublishSecurityEvent logs security.event records.
func (p *StubPublisher) PublishSecurityEvent(_ context.Context, event domain.SecurityEvent) error {
	userID := ""
	if event.UserID != nil {
		userID = *event.UserID
	}
	p.logEvent(EventTypeSecurityEvent, userID, event.OccurredAt,
		zap.String("security_event", event.Type),
		zap.String("severity", string(event.Severity)),
	)
	return nil
}

// PublishRolesChanged logs user.roles.changed events.
func (p *StubPublisher) PublishRolesChanged(_ context.Context, event domain.RolesChangedEvent) error {
	p.logEvent(EventTypeRolesChanged, event.UserID, event.ChangedAt,
		zap.String("action", event.Action),
		zap.Strings("role_ids", event.RoleIDs),
		zap.String("actor_id", event.ActorID),
	)
	return nil
}

// PublishPasswordChanged logs user.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent(EventTypePasswordChanged, event.UserID, event.ChangedAt, zap.String("changed_by", event.ChangedBy))
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
