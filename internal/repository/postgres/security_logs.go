package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
)

// SecurityLogRepository appends security events to security_logs.
type SecurityLogRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSecurityLogRepository constructs a PostgreSQL-backed audit log.
func NewSecurityLogRepository(exec pgExecutor) *SecurityLogRepository {
	return &SecurityLogRepository{exec: exec, builder: newBuilder()}
}

// InsertSecurityEvent persists one event. Details are stored as JSON.
func (r *SecurityLogRepository) InsertSecurityEvent(ctx context.Context, event domain.SecurityEvent) error {
	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	var details any
	if len(event.Details) > 0 {
		raw, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshal security event details: %w", err)
		}
		details = raw
	}

	stmt, args, err := r.builder.Insert("payroll.security_logs").
		Columns("id", "event_type", "user_id", "user_email", "severity", "details", "ip_address", "user_agent", "resource", "created_at").
		Values(
			id,
			event.Type,
			optionalString(event.UserID),
			optionalString(&event.UserEmail),
			string(event.Severity),
			details,
			optionalString(&event.IPAddress),
			optionalString(&event.UserAgent),
			optionalString(&event.Resource),
			occurredAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert security log sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert security log: %w", err)
	}
	return nil
}

var _ port.SecurityLogRepository = (*SecurityLogRepository)(nil)
