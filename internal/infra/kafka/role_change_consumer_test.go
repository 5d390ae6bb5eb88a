package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/payroll-access/internal/core/domain"
)

type recordingCache struct {
	mu            sync.Mutex
	invalidated   []string
	invalidateAll int
}

func (c *recordingCache) Get(string) (domain.PermissionSet, bool) { return nil, false }

func (c *recordingCache) Generation(string) uint64 { return 0 }

func (c *recordingCache) SetIfGeneration(string, domain.PermissionSet, uint64) bool { return true }

func (c *recordingCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, userID)
}

func (c *recordingCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateAll++
}

func TestRoleChangeConsumerInvalidatesUser(t *testing.T) {
	cache := &recordingCache{}
	consumer := NewRoleChangeConsumer(cache, zaptest.NewLogger(t))

	envelope := map[string]any{
		"event_id":   "evt-1",
		"event_type": EventTypeRolesChanged,
		"user_id":    "user-1",
		"payload": domain.RolesChangedEvent{
			EventID:   "evt-1",
			UserID:    "user-1",
			ActorID:   "admin-1",
			Action:    domain.RoleActionAssigned,
			RoleIDs:   []string{"role-1"},
			ChangedAt: time.Now().UTC(),
		},
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if err := consumer.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: raw}); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	if len(cache.invalidated) != 1 || cache.invalidated[0] != "user-1" {
		t.Fatalf("expected user-1 to be invalidated, got %v", cache.invalidated)
	}
}

func TestRoleChangeConsumerFlushesWithoutUser(t *testing.T) {
	cache := &recordingCache{}
	consumer := NewRoleChangeConsumer(cache, zaptest.NewLogger(t))

	if err := consumer.HandleEvent(context.Background(), domain.RolesChangedEvent{EventID: "evt-2"}); err != nil {
		t.Fatalf("HandleEvent returned error: %v", err)
	}
	if cache.invalidateAll != 1 {
		t.Fatalf("expected full flush, got %d", cache.invalidateAll)
	}
}

func TestRoleChangeConsumerIgnoresOtherEventTypes(t *testing.T) {
	cache := &recordingCache{}
	consumer := NewRoleChangeConsumer(cache, zaptest.NewLogger(t))

	raw := []byte(`{"event_id":"e","event_type":"security.event","user_id":"user-1","payload":{}}`)
	if err := consumer.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: raw}); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if len(cache.invalidated) != 0 || cache.invalidateAll != 0 {
		t.Fatalf("expected no invalidation for unrelated event")
	}
}

func TestRoleChangeConsumerRejectsGarbage(t *testing.T) {
	consumer := NewRoleChangeConsumer(&recordingCache{}, zaptest.NewLogger(t))

	if err := consumer.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: []byte("{")}); err == nil {
		t.Fatalf("expected decode error")
	}
	if err := consumer.HandleMessage(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil message")
	}
}
