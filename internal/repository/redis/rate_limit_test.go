package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestRateLimitRepository_SlidingWindow(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl", TTL: time.Hour})

	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute
	at := []time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute), base.Add(2 * time.Minute)}

	// the last two share an instant and must still count twice
	for i, ts := range at {
		state, err := repo.Admit(ctx, "login:10.0.0.1", 5, window, ts)
		if err != nil {
			t.Fatalf("Admit returned error: %v", err)
		}
		if !state.Admitted || state.Count != i+1 {
			t.Fatalf("attempt %d: expected admitted with count %d, got %+v", i+1, i+1, state)
		}
		if !state.HasOldest || !state.Oldest.Equal(base) {
			t.Fatalf("attempt %d: expected oldest %s, got %+v", i+1, base, state)
		}
	}

	if !server.Exists("rl:login:10.0.0.1") {
		t.Fatalf("expected prefixed key to exist")
	}
	if ttl := server.TTL("rl:login:10.0.0.1"); ttl != time.Hour {
		t.Fatalf("expected ttl of 1h, got %s", ttl)
	}

	state, err := repo.Admit(ctx, "login:10.0.0.1", 5, window, base.Add(5*time.Minute))
	if err != nil || !state.Admitted || state.Count != 5 {
		t.Fatalf("expected fifth attempt admitted, got %+v %v", state, err)
	}

	state, err = repo.Admit(ctx, "login:10.0.0.1", 5, window, base.Add(6*time.Minute))
	if err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if state.Admitted || state.Count != 5 {
		t.Fatalf("expected sixth attempt denied with count 5, got %+v", state)
	}
	if members, _ := server.ZMembers("rl:login:10.0.0.1"); len(members) != 5 {
		t.Fatalf("denied attempt must not be recorded, got %d members", len(members))
	}

	// 15m after base the first attempt leaves the window
	state, err = repo.Admit(ctx, "login:10.0.0.1", 5, window, base.Add(window))
	if err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if !state.Admitted || state.Count != 5 {
		t.Fatalf("expected slot freed by the slide, got %+v", state)
	}
	if !state.Oldest.Equal(base.Add(time.Minute)) {
		t.Fatalf("expected oldest to move to %s, got %s", base.Add(time.Minute), state.Oldest)
	}
}

func TestRateLimitRepository_ConcurrentAdmitHonoursLimit(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl", TTL: time.Hour})

	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		start    = make(chan struct{})
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			state, err := repo.Admit(ctx, "auth_login_ip:203.0.113.7", 5, 15*time.Minute, now)
			if err != nil {
				t.Errorf("Admit returned error: %v", err)
				return
			}
			if state.Admitted {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := admitted.Load(); got != 5 {
		t.Fatalf("expected exactly 5 of 20 concurrent attempts admitted, got %d", got)
	}
}

func TestRateLimitRepository_RejectsInvalidRule(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	if _, err := repo.Admit(context.Background(), "x", 5, 0, time.Now()); err == nil {
		t.Fatalf("expected error for zero window")
	}
	if _, err := repo.Admit(context.Background(), "x", 0, time.Minute, time.Now()); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
