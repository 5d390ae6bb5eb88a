package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
	"github.com/arklim/payroll-access/internal/infra/config"
)

// RoleChangeConsumer drops permission cache entries when another process
// reports a role change. Local writes already invalidate synchronously.
type RoleChangeConsumer struct {
	cache  port.PermissionCache
	logger *zap.Logger
	now    func() time.Time
	maxLag time.Duration
}

// NewRoleChangeConsumer constructs a consumer bound to cache.
func NewRoleChangeConsumer(cache port.PermissionCache, logger *zap.Logger) *RoleChangeConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleChangeConsumer{
		cache:  cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		maxLag: 30 * time.Second,
	}
}

// WithClock overrides the consumer clock for deterministic testing.
func (c *RoleChangeConsumer) WithClock(clock func() time.Time) *RoleChangeConsumer {
	if clock != nil {
		c.now = clock
	}
	return c
}

type inboundEnvelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	UserID    string          `json:"user_id"`
	Payload   json.RawMessage `json:"payload"`
}

// HandleMessage decodes an enveloped roles-changed message.
func (c *RoleChangeConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	var envelope inboundEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("decode event envelope: %w", err)
	}
	if envelope.EventType != "" && !strings.HasSuffix(envelope.EventType, EventTypeRolesChanged) {
		return nil
	}

	var event domain.RolesChangedEvent
	if len(envelope.Payload) > 0 {
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return fmt.Errorf("decode roles changed event: %w", err)
		}
	}
	if event.UserID == "" {
		event.UserID = envelope.UserID
	}
	if event.EventID == "" {
		event.EventID = envelope.EventID
	}

	return c.HandleEvent(ctx, event)
}

// HandleEvent invalidates the affected user's cached permission set.
func (c *RoleChangeConsumer) HandleEvent(_ context.Context, event domain.RolesChangedEvent) error {
	if c.cache == nil {
		return nil
	}

	if event.UserID == "" {
		// Unknown scope: stale grants are worse than a cold cache.
		c.cache.InvalidateAll()
		c.logger.Warn("roles changed event without user id, flushed permission cache", zap.String("event_id", event.EventID))
		return nil
	}

	if !event.ChangedAt.IsZero() {
		lag := c.now().Sub(event.ChangedAt)
		if c.maxLag > 0 && lag > c.maxLag {
			c.logger.Warn("roles changed event lag exceeds threshold",
				zap.Duration("lag", lag),
				zap.Duration("threshold", c.maxLag),
				zap.String("user_id", event.UserID),
			)
		}
	}

	c.cache.Invalidate(event.UserID)
	c.logger.Debug("permission cache invalidated from event",
		zap.String("user_id", event.UserID),
		zap.String("action", event.Action),
	)
	return nil
}

// Setup is run at the beginning of a new session.
func (c *RoleChangeConsumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup is run at the end of a session.
func (c *RoleChangeConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim processes messages from one partition claim.
func (c *RoleChangeConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.HandleMessage(session.Context(), msg); err != nil {
				c.logger.Warn("skip undecodable roles changed message",
					zap.Error(err),
					zap.String("topic", msg.Topic),
					zap.Int64("offset", msg.Offset),
				)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// RunRoleChangeConsumer joins the consumer group and blocks until ctx is done.
func RunRoleChangeConsumer(ctx context.Context, cfg config.KafkaSettings, clientID string, handler *RoleChangeConsumer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	saramaConfig := newSaramaConfig(clientID)
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer group.Close()

	go func() {
		for err := range group.Errors() {
			logger.Warn("Kafka consumer error", zap.Error(err))
		}
	}()

	topics := []string{topicName(cfg.TopicPrefix, EventTypeRolesChanged)}
	logger.Info("Role change consumer started", zap.Strings("topics", topics), zap.String("group", cfg.ConsumerGroup))

	for {
		if err := group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			logger.Warn("consumer group session ended", zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

var _ sarama.ConsumerGroupHandler = (*RoleChangeConsumer)(nil)
