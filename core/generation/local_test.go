package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/mindwell-ai/companion-core/core/emotion"
)

func TestLocalStrategyAnswersAnxietyCalmly(t *testing.T) {
	strategy := NewLocalStrategy()

	reply, err := strategy.Attempt(context.Background(), Request{Message: "I've been really anxious all week"})
	if err != nil {
		t.Fatalf("expected a template reply, got error: %v", err)
	}
	if reply.Content == "" {
		t.Fatal("expected non-empty template text")
	}
	switch reply.Emotion {
	case emotion.Calming, emotion.Supportive, emotion.Warm:
	default:
		t.Fatalf("unexpected emotion %q for an anxiety message", reply.Emotion)
	}
}

func TestLocalStrategyReturnsNoMatchForUnknownTopics(t *testing.T) {
	strategy := NewLocalStrategy()

	_, err := strategy.Attempt(context.Background(), Request{Message: "the weather forecast mentioned rain"})
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestLocalStrategyMatchingIsCaseInsensitive(t *testing.T) {
	strategy := NewLocalStrategy()

	if _, err := strategy.Attempt(context.Background(), Request{Message: "I am SO STRESSED right now"}); err != nil {
		t.Fatalf("expected a match regardless of case, got %v", err)
	}
}

func TestLocalStrategyVariesPhrasingWhenContinuing(t *testing.T) {
	strategy := NewLocalStrategy()
	strategy.pick = func(int) int { return 0 }

	opening, err := strategy.Attempt(context.Background(), Request{Message: "feeling anxious"})
	if err != nil {
		t.Fatalf("opening attempt failed: %v", err)
	}

	continuing, err := strategy.Attempt(context.Background(), Request{
		Message: "still feeling anxious",
		History: []Exchange{
			{Role: "assistant", Content: "welcome"},
			{Role: "user", Content: "feeling anxious"},
			{Role: "assistant", Content: opening.Content},
		},
	})
	if err != nil {
		t.Fatalf("continuing attempt failed: %v", err)
	}

	if opening.Content == continuing.Content {
		t.Fatal("expected different phrasing once the conversation is underway")
	}
}

func TestLocalStrategyTopicClassification(t *testing.T) {
	strategy := NewLocalStrategy()

	for message, want := range map[string]string{
		"my boss moved the deadline again": "work",
		"I can't sleep at all lately":      "sleep",
		"we had a huge argument":           "relationships",
		"thank you, that helped":           "gratitude",
		"I got some great news today":      "positive",
	} {
		topics := strategy.Topics(message)
		found := false
		for _, topic := range topics {
			if topic == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected %q to classify as %q, got %v", message, want, topics)
		}
	}
}
