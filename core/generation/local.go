package generation

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/mindwell-ai/companion-core/core/emotion"
)

// template is one hand-authored empathetic reply with its fixed tag.
type template struct {
	text string
	tag  emotion.Tag
}

// topic groups keywords with the templates used when the latest user message
// matches one of them.
type topic struct {
	name     string
	keywords []string
	// opening templates are used on the first exchange of a conversation.
	opening []template
	// continuing templates are used once the conversation is underway. An
	// empty set falls back to opening.
	continuing []template
}

// LocalStrategy classifies the latest user message against topic categories
// by keyword containment and answers from hand-authored templates. It is
// deterministic in availability (no I/O) and returns ErrNoMatch when no topic
// applies, letting the remote strategy take the message.
type LocalStrategy struct {
	topics []topic
	pick   func(n int) int
}

// NewLocalStrategy builds the local pattern strategy with the built-in topic
// table.
func NewLocalStrategy() *LocalStrategy {
	return &LocalStrategy{topics: builtinTopics(), pick: rand.IntN}
}

func (s *LocalStrategy) Name() string { return "local-patterns" }

// Attempt matches the message against topics in table order and picks a
// template uniformly at random from the matched topic's family.
func (s *LocalStrategy) Attempt(_ context.Context, req Request) (*Reply, error) {
	normalized := strings.ToLower(req.Message)

	for _, topic := range s.topics {
		if !matchesAny(normalized, topic.keywords) {
			continue
		}

		templates := topic.opening
		if req.Continuing() && len(topic.continuing) > 0 {
			templates = topic.continuing
		}

		chosen := templates[s.pick(len(templates))]
		return &Reply{Content: chosen.text, Emotion: chosen.tag}, nil
	}

	return nil, ErrNoMatch
}

// Topics exposes the matched category for a message, used by tests and by
// callers that want to know which family a reply came from.
func (s *LocalStrategy) Topics(message string) []string {
	normalized := strings.ToLower(message)
	var matched []string
	for _, topic := range s.topics {
		if matchesAny(normalized, topic.keywords) {
			matched = append(matched, topic.name)
		}
	}
	return matched
}

func matchesAny(normalized string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(normalized, keyword) {
			return true
		}
	}
	return false
}

func builtinTopics() []topic {
	return []topic{
		{
			name:     "anxiety",
			keywords: []string{"anxious", "anxiety", "panic", "worried", "worry", "nervous", "on edge"},
			opening: []template{
				{"Feeling anxious is exhausting, and it makes sense that you'd want relief. Would it help to try a slow breath together - in for four, hold for four, out for four?", emotion.Calming},
				{"Anxiety has a way of making everything feel urgent at once. You're safe right now, in this moment. What's the loudest worry in your mind?", emotion.Calming},
				{"That sounds really uncomfortable. Anxiety is your mind trying to protect you, even when it overshoots. I'm here - tell me what's weighing on you.", emotion.Supportive},
			},
			continuing: []template{
				{"I hear the anxiety is still with you. That's okay - it doesn't have to vanish for this conversation to help. What feels most manageable to look at right now?", emotion.Calming},
				{"Thanks for staying with this. Let's keep it small: what's one thing within your control today?", emotion.Supportive},
			},
		},
		{
			name:     "sadness",
			keywords: []string{"sad", "down", "depressed", "lonely", "crying", "cried", "miserable", "hopeless"},
			opening: []template{
				{"I'm sorry you're feeling this way. Sadness is heavy, and you don't have to carry it alone - I'm here for you.", emotion.Warm},
				{"That sounds painful. It takes courage to say it out loud, and I'm glad you did. Do you want to tell me more about what's behind it?", emotion.Supportive},
				{"It's okay to feel sad. You don't need to fix it right now; sitting with it together is enough to start.", emotion.Warm},
			},
			continuing: []template{
				{"I'm still here with you. Heavy feelings shift slowly, and that's normal. Is there anything that has brought you even a little comfort before?", emotion.Warm},
			},
		},
		{
			name:     "stress",
			keywords: []string{"stressed", "stress", "overwhelmed", "too much", "burned out", "burnout", "pressure"},
			opening: []template{
				{"That's a lot to hold at once. When everything piles up, even small tasks grow teeth. What's the single heaviest thing on the pile?", emotion.Supportive},
				{"Feeling overwhelmed usually means you've been carrying too much for too long - not that you're failing. Let's slow down and take it one piece at a time.", emotion.Calming},
				{"Stress like that deserves a pause. Even two minutes of doing nothing counts as a real break. What would taking one small thing off your plate look like?", emotion.Calming},
			},
		},
		{
			name:     "greeting",
			keywords: []string{"hello", "hi there", "hey", "good morning", "good evening", "good afternoon"},
			opening: []template{
				{"Hello! It's good to see you. How are you feeling today?", emotion.Warm},
				{"Hi! I'm glad you stopped by. What's on your mind?", emotion.Warm},
			},
			continuing: []template{
				{"Hello again! How have things been since we last talked?", emotion.Warm},
			},
		},
		{
			name:     "gratitude",
			keywords: []string{"thank you", "thanks", "grateful", "appreciate"},
			opening: []template{
				{"You're very welcome. Showing up for yourself like this is something to be proud of.", emotion.Celebratory},
				{"I'm glad it helped. Noticing what you're grateful for is a real skill, and you're practicing it.", emotion.Warm},
			},
		},
		{
			name:     "work",
			keywords: []string{"work", "job", "boss", "deadline", "coworker", "colleague", "meeting"},
			opening: []template{
				{"Work stress can follow you home and color everything else. What part of it is affecting you the most right now?", emotion.Supportive},
				{"That sounds frustrating. A difficult work situation doesn't say anything about your worth. Want to unpack what happened?", emotion.Supportive},
			},
		},
		{
			name:     "relationships",
			keywords: []string{"relationship", "partner", "friend", "family", "argument", "fight with", "breakup", "divorce"},
			opening: []template{
				{"Relationships touch the deepest parts of us, so when they hurt, they really hurt. I'm listening - what happened?", emotion.Warm},
				{"That sounds hard. Conflict with someone you care about is one of the most draining things there is. How are you holding up?", emotion.Supportive},
			},
		},
		{
			name:     "sleep",
			keywords: []string{"sleep", "insomnia", "can't sleep", "tired", "exhausted", "awake all night"},
			opening: []template{
				{"Poor sleep makes everything else harder - it's not a small thing. Has your mind been racing at night, or is it more restlessness?", emotion.Calming},
				{"Being exhausted wears down your patience with yourself. Be gentle tonight: dim the lights early and let your body know it's allowed to rest.", emotion.Calming},
			},
		},
		{
			name:     "positive",
			keywords: []string{"happy", "excited", "great day", "proud", "accomplished", "good news", "wonderful"},
			opening: []template{
				{"That's wonderful to hear! Moments like this are worth savoring - congratulations!", emotion.Celebratory},
				{"I love that! What made it feel so good?", emotion.Celebratory},
				{"That's genuinely great news. You deserve to enjoy it fully.", emotion.Celebratory},
			},
		},
	}
}
