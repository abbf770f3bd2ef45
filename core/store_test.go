package companion

import (
	"errors"
	"testing"

	"github.com/mindwell-ai/companion-core/core/emotion"
	"github.com/mindwell-ai/companion-core/core/texttospeech"
	"github.com/mindwell-ai/companion-core/core/wellbeing"
)

func TestStoreSnapshotIsDeepCopy(t *testing.T) {
	s := newStore()
	session := s.create("user-1", wellbeing.Context{})
	if _, err := s.append(session.ID, newMessage(RoleCompanion, "hello", emotion.Warm)); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	snapshot, err := s.snapshot(session.ID)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	snapshot.Messages[0].Content = "mutated"

	fresh, err := s.snapshot(session.ID)
	if err != nil {
		t.Fatalf("second snapshot failed: %v", err)
	}
	if fresh.Messages[0].Content != "hello" {
		t.Fatal("mutating a snapshot must not affect stored state")
	}
}

func TestStoreAppendAfterEnd(t *testing.T) {
	s := newStore()
	session := s.create("user-1", wellbeing.Context{})

	if _, err := s.end(session.ID); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if _, err := s.append(session.ID, newMessage(RoleUser, "late", "")); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestStoreEndDestroysSession(t *testing.T) {
	s := newStore()
	session := s.create("user-1", wellbeing.Context{})
	if _, err := s.append(session.ID, newMessage(RoleUser, "hello", "")); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	final, err := s.end(session.ID)
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if final.EndedAt == nil || len(final.Messages) != 1 {
		t.Fatalf("expected the final state back for teardown, got %+v", final)
	}

	if _, err := s.snapshot(session.ID); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded from snapshot, got %v", err)
	}
	if _, err := s.get(session.ID); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded from get, got %v", err)
	}
	if _, err := s.snapshot("never-existed"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for unknown ids, got %v", err)
	}
}

func TestStoreAttachAudioDropsLateArrivals(t *testing.T) {
	s := newStore()
	session := s.create("user-1", wellbeing.Context{})
	message, err := s.append(session.ID, newMessage(RoleCompanion, "hello", emotion.Warm))
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	if _, err := s.end(session.ID); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	audio := &texttospeech.Audio{Data: []byte{1}}
	if s.attachAudio(session.ID, message.ID, audio) {
		t.Fatal("audio arriving after session end must be dropped")
	}
	if s.attachAudio("unknown", message.ID, audio) {
		t.Fatal("audio for an unknown session must be dropped")
	}
}
