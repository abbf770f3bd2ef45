package avatar

import (
	"context"
	"testing"
	"time"
)

func TestCleanupEndsOnlyStaleActiveSessions(t *testing.T) {
	now := time.Now().UTC()
	api := &fakeConversationAPI{
		sessions: []fakeRemote{
			{id: "old-active", active: true, createdAt: now.Add(-40 * time.Minute)},
			{id: "young-active", active: true, createdAt: now.Add(-10 * time.Minute)},
			{id: "old-ended", active: false, createdAt: now.Add(-2 * time.Hour)},
		},
	}
	broker := NewBroker(api, "replica-1", WithDelays(0, 0))

	resolved, err := broker.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if !resolved {
		t.Fatal("expected cleanup to report capacity resolved")
	}
	if len(api.ended) != 1 || api.ended[0] != "old-active" {
		t.Fatalf("expected only the stale active session to be ended, got %v", api.ended)
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	api := &fakeConversationAPI{
		sessions: []fakeRemote{
			{id: "old-active", active: true, createdAt: now.Add(-40 * time.Minute)},
		},
	}
	broker := NewBroker(api, "replica-1", WithDelays(0, 0))

	if _, err := broker.Cleanup(context.Background()); err != nil {
		t.Fatalf("first cleanup failed: %v", err)
	}
	endedAfterFirst := len(api.ended)

	if _, err := broker.Cleanup(context.Background()); err != nil {
		t.Fatalf("second cleanup failed: %v", err)
	}
	if len(api.ended) != endedAfterFirst {
		t.Fatalf("second cleanup ended more sessions: before=%d after=%d",
			endedAfterFirst, len(api.ended))
	}
}

func TestCleanupEscalatesToAggressiveThreshold(t *testing.T) {
	now := time.Now().UTC()
	api := &fakeConversationAPI{
		sessions: []fakeRemote{
			{id: "old-active", active: true, createdAt: now.Add(-40 * time.Minute)},
			{id: "young-active", active: true, createdAt: now.Add(-10 * time.Minute)},
		},
	}
	// Cap of one: ending only the old session still leaves the provider full,
	// forcing the aggressive pass.
	broker := NewBroker(api, "replica-1", WithDelays(0, 0), WithMaxSessions(1))

	resolved, err := broker.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if !resolved {
		t.Fatal("expected the aggressive pass to free capacity")
	}
	if len(api.ended) != 2 {
		t.Fatalf("expected both sessions ended across the two passes, got %v", api.ended)
	}
}

func TestCleanupLeavesVeryFreshSessionsAlone(t *testing.T) {
	now := time.Now().UTC()
	api := &fakeConversationAPI{
		sessions: []fakeRemote{
			{id: "brand-new", active: true, createdAt: now.Add(-time.Minute)},
		},
	}
	broker := NewBroker(api, "replica-1", WithDelays(0, 0), WithMaxSessions(1))

	resolved, err := broker.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if resolved {
		t.Fatal("expected cleanup to report capacity still exhausted")
	}
	if len(api.ended) != 0 {
		t.Fatalf("a minute-old session must survive even the aggressive pass, got %v", api.ended)
	}
}

func TestEndAllIgnoresAge(t *testing.T) {
	now := time.Now().UTC()
	api := &fakeConversationAPI{
		sessions: []fakeRemote{
			{id: "old", active: true, createdAt: now.Add(-time.Hour)},
			{id: "new", active: true, createdAt: now.Add(-time.Second)},
			{id: "done", active: false, createdAt: now.Add(-time.Hour)},
		},
	}
	broker := NewBroker(api, "replica-1", WithDelays(0, 0))

	ended, err := broker.EndAll(context.Background())
	if err != nil {
		t.Fatalf("end all failed: %v", err)
	}
	if ended != 2 {
		t.Fatalf("expected 2 sessions ended, got %d", ended)
	}
}
