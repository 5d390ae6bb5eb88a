package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
	"github.com/arklim/payroll-access/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types, prefixed with the configured topic prefix to form topic names.
const (
	EventTypeSecurityEvent   = "security.event"
	EventTypeRolesChanged    = "user.roles.changed"
	EventTypePasswordChanged = "user.password.changed"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishSecurityEvent publishes security.event records for downstream audit consumers.
func (p *EventPublisher) PublishSecurityEvent(ctx context.Context, event domain.SecurityEvent) error {
	userID := ""
	if event.UserID != nil {
		userID = *event.UserID
	}

	payload := struct {
		EventType  string         `json:"event_type"`
		Severity   string         `json:"severity"`
		UserID     *string        `json:"user_id,omitempty"`
		UserEmail  string         `json:"user_email,omitempty"`
		IPAddress  string         `json:"ip_address,omitempty"`
		UserAgent  string         `json:"user_agent,omitempty"`
		Resource   string         `json:"resource,omitempty"`
		Details    map[string]any `json:"details,omitempty"`
		OccurredAt time.Time      `json:"occurred_at"`
	}{
		EventType:  event.Type,
		Severity:   string(event.Severity),
		UserID:     event.UserID,
		UserEmail:  event.UserEmail,
		IPAddress:  event.IPAddress,
		UserAgent:  event.UserAgent,
		Resource:   event.Resource,
		Details:    event.Details,
		OccurredAt: event.OccurredAt.UTC(),
	}

	return p.publish(ctx, event.ID, EventTypeSecurityEvent, userID, event.OccurredAt, payload)
}

// PublishRolesChanged publishes user.roles.changed events consumed for cache invalidation.
func (p *EventPublisher) PublishRolesChanged(ctx context.Context, event domain.RolesChangedEvent) error {
	event.ChangedAt = event.ChangedAt.UTC()
	return p.publish(ctx, event.EventID, EventTypeRolesChanged, event.UserID, event.ChangedAt, event)
}

// PublishPasswordChanged publishes user.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		ChangedAt time.Time `json:"changed_at"`
		ChangedBy string    `json:"changed_by"`
	}{
		UserID:    event.UserID,
		ChangedAt: event.ChangedAt.UTC(),
		ChangedBy: event.ChangedBy,
	}

	return p.publish(ctx, event.EventID, EventTypePasswordChanged, event.UserID, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
