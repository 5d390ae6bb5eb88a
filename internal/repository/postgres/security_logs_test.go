package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/payroll-access/internal/core/domain"
)

func TestSecurityLogRepository_InsertSecurityEvent(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSecurityLogRepository(mock)

	userID := "user-1"
	occurred := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO payroll\.security_logs \(id,event_type,user_id,user_email,severity,details,ip_address,user_agent,resource,created_at\)`).
		WithArgs("ev-1", domain.EventAccountLocked, "user-1", nil, "HIGH", pgxmock.AnyArg(), "203.0.113.7", nil, nil, occurred).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.InsertSecurityEvent(context.Background(), domain.SecurityEvent{
		ID:         "ev-1",
		Type:       domain.EventAccountLocked,
		UserID:     &userID,
		IPAddress:  "203.0.113.7",
		Severity:   domain.SeverityHigh,
		Details:    map[string]any{"failed_attempts": 5},
		OccurredAt: occurred,
	})
	if err != nil {
		t.Fatalf("InsertSecurityEvent returned error: %v", err)
	}
}

func TestSecurityLogRepository_InsertFailure(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSecurityLogRepository(mock)

	mock.ExpectExec(`INSERT INTO payroll\.security_logs`).
		WithArgs(pgxmock.AnyArg(), domain.EventLoginFailed, nil, nil, "MEDIUM", nil, nil, nil, nil, pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err := repo.InsertSecurityEvent(context.Background(), domain.SecurityEvent{
		Type:     domain.EventLoginFailed,
		Severity: domain.SeverityMedium,
	})
	if err == nil {
		t.Fatalf("expected insert error")
	}
}
