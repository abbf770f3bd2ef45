// Package safety screens every inbound user message for crisis indicators
// before any generated content can reach the user. The screening is
// deterministic, synchronous, and free of side effects: no network, no model
// call. False negatives are expected; false positives degrade to a supportive
// safety message, never to harm.
package safety

import "strings"

// Assessment is the result of screening a single message. It is computed per
// message and never stored beyond the triggering exchange.
type Assessment struct {
	IsEmergency       bool
	Confidence        float64
	MatchedSignals    []string
	RecommendedAction string
}

// Classifier matches inbound messages against a fixed crisis phrase list.
type Classifier struct {
	phrases    []string
	message    string
	confidence float64
}

// NewClassifier builds a classifier from config, normalizing phrases for
// case-insensitive matching.
func NewClassifier(cfg Config) *Classifier {
	phrases := make([]string, 0, len(cfg.Phrases))
	for _, phrase := range cfg.Phrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase != "" {
			phrases = append(phrases, phrase)
		}
	}

	return &Classifier{
		phrases:    phrases,
		message:    cfg.Message,
		confidence: cfg.Confidence,
	}
}

// Assess runs a case-insensitive substring match of the message against the
// crisis phrase list.
func (c *Classifier) Assess(message string) Assessment {
	normalized := strings.ToLower(message)

	var matched []string
	for _, phrase := range c.phrases {
		if strings.Contains(normalized, phrase) {
			matched = append(matched, phrase)
		}
	}

	if len(matched) == 0 {
		return Assessment{}
	}

	return Assessment{
		IsEmergency:       true,
		Confidence:        c.confidence,
		MatchedSignals:    matched,
		RecommendedAction: c.message,
	}
}
