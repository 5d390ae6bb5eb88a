package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
	"github.com/arklim/payroll-access/internal/infra/logger"
)

const auditWriteTimeout = 3 * time.Second

// SecurityAuditor fans a security event out to the log, the security_logs
// table and the message bus. It never reports a failure to the caller.
type SecurityAuditor struct {
	logs      port.SecurityLogRepository
	publisher port.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewSecurityAuditor wires the sinks; logs and publisher may be nil.
func NewSecurityAuditor(logs port.SecurityLogRepository, publisher port.EventPublisher, log *zap.Logger) *SecurityAuditor {
	if log == nil {
		log = zap.NewNop()
	}
	return &SecurityAuditor{
		logs:      logs,
		publisher: publisher,
		logger:    log.Named("security"),
		now:       time.Now,
	}
}

// WithClock overrides the event timestamp source.
func (a *SecurityAuditor) WithClock(now func() time.Time) *SecurityAuditor {
	if now != nil {
		a.now = now
	}
	return a
}

// Record stamps and emits event.
func (a *SecurityAuditor) Record(ctx context.Context, event domain.SecurityEvent) {
	if a == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = a.now().UTC()
	}
	if event.Severity == "" {
		event.Severity = domain.SeverityLow
	}

	log := logger.Scoped(a.logger, ctx)
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("severity", string(event.Severity)),
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("subject_id", *event.UserID))
	}
	if event.UserEmail != "" {
		fields = append(fields, zap.String("email", logger.MaskEmail(event.UserEmail)))
	}
	if event.IPAddress != "" {
		fields = append(fields, zap.String("ip", logger.MaskIP(event.IPAddress)))
	}
	if event.Resource != "" {
		fields = append(fields, zap.String("resource", event.Resource))
	}
	if len(event.Details) > 0 {
		fields = append(fields, zap.Any("details", event.Details))
	}
	if ce := log.Check(severityLevel(event.Severity), "security event"); ce != nil {
		ce.Write(fields...)
	}

	// Sinks outlive a cancelled request.
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if a.logs != nil {
		if err := a.logs.InsertSecurityEvent(sinkCtx, event); err != nil {
			log.Warn("persist security event failed", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.PublishSecurityEvent(sinkCtx, event); err != nil {
			log.Warn("publish security event failed", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
}

func severityLevel(severity domain.Severity) zapcore.Level {
	switch severity {
	case domain.SeverityCritical:
		return zapcore.ErrorLevel
	case domain.SeverityHigh:
		return zapcore.WarnLevel
	case domain.SeverityMedium:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

var _ port.SecurityEventSink = (*SecurityAuditor)(nil)
