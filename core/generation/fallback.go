package generation

import (
	"context"
	"math/rand/v2"

	"github.com/mindwell-ai/companion-core/core/emotion"
)

// fallbackStrategy is the chain's deterministic terminal stage. It answers
// with a generic empathetic template when nothing matched, and with an honest
// degraded-service template when a provider actually failed. It never errors.
type fallbackStrategy struct {
	pick func(n int) int
}

func newFallbackStrategy() *fallbackStrategy {
	return &fallbackStrategy{pick: rand.IntN}
}

func (s *fallbackStrategy) Name() string { return "static-fallback" }

var defaultTemplates = []template{
	{"Thank you for sharing that with me. I'm listening - can you tell me a bit more about how that's been for you?", emotion.Supportive},
	{"I hear you. Whatever you're carrying right now, you don't have to sort it out alone. What feels most important to talk about?", emotion.Warm},
	{"That matters, and so do you. Take your time - what's been on your mind the most lately?", emotion.Supportive},
}

var degradedTemplates = []template{
	{"I'm having some technical difficulty on my end right now, but I'm still here with you. Please keep talking - I'm listening.", emotion.Supportive},
	{"Part of my connection is acting up, so my replies may be simpler for a bit. What you're saying still matters to me - go on.", emotion.Supportive},
	{"I'm running into a technical hiccup, but it doesn't change anything between us. I'm here, and I want to hear the rest.", emotion.Supportive},
}

func (s *fallbackStrategy) Attempt(_ context.Context, req Request) (*Reply, error) {
	templates := defaultTemplates
	if req.remoteFailed {
		templates = degradedTemplates
	}

	chosen := templates[s.pick(len(templates))]
	return &Reply{Content: chosen.text, Emotion: chosen.tag}, nil
}
