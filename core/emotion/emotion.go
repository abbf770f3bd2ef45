// Package emotion infers the coarse presentation tag attached to assistant
// messages. The inference is a keyword heuristic kept behind a small function
// so it can be replaced with a real sentiment model without touching the
// orchestration logic.
package emotion

import "strings"

// Tag labels an assistant message for downstream presentation styling.
type Tag string

const (
	Supportive  Tag = "supportive"
	Calming     Tag = "calming"
	Warm        Tag = "warm"
	Celebratory Tag = "celebratory"

	// Urgent is reserved for crisis-path replies and is never produced by
	// Infer.
	Urgent Tag = "urgent"
)

var keywordFamilies = []struct {
	tag      Tag
	keywords []string
}{
	{Celebratory, []string{
		"congratulations", "congrats", "amazing", "wonderful", "fantastic",
		"proud of you", "great news", "well done", "celebrate", "achievement",
	}},
	{Calming, []string{
		"breathe", "breathing", "relax", "calm", "gently", "slow down",
		"one step at a time", "ground yourself", "ease", "settle",
	}},
	{Warm, []string{
		"i'm here for you", "here for you", "you're not alone", "care about",
		"thank you for sharing", "i appreciate you", "together", "warmly",
	}},
}

// Infer scans generated text for sentiment keyword families and returns the
// first matching tag, defaulting to Supportive.
func Infer(text string) Tag {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Supportive
	}

	for _, family := range keywordFamilies {
		for _, keyword := range family.keywords {
			if strings.Contains(normalized, keyword) {
				return family.tag
			}
		}
	}

	return Supportive
}

// Valid reports whether the passed string is one of the known tags. Used to
// validate tags coming back from structured provider responses.
func Valid(tag Tag) bool {
	switch tag {
	case Supportive, Calming, Warm, Celebratory, Urgent:
		return true
	default:
		return false
	}
}
