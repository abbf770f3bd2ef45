package safety

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the crisis screening data: the phrase list and the pre-approved
// safety copy. It is data, not code, so it can be audited and updated without
// a redeploy. The screening path must stay independent of network
// availability, so the config is fully resolved at construction time.
type Config struct {
	// Phrases are matched case-insensitively as substrings of the inbound
	// message.
	Phrases []string `yaml:"phrases"`
	// Message is the fixed, pre-approved safety reply. It must contain at
	// least one crisis hotline and an offer to continue the conversation.
	Message string `yaml:"message"`
	// Confidence is reported on every match. The classifier is a coarse
	// filter, not an NLP model, so this stays below 1.
	Confidence float64 `yaml:"confidence"`
}

// DefaultConfig returns the compiled-in crisis screening data.
func DefaultConfig() Config {
	return Config{
		Phrases: []string{
			"kill myself",
			"suicide",
			"suicidal",
			"end my life",
			"end it all",
			"want to die",
			"better off dead",
			"hurt myself",
			"harm myself",
			"self harm",
			"self-harm",
			"no reason to live",
			"can't go on",
		},
		Message: "I'm really glad you told me. What you're feeling matters, " +
			"and you don't have to face it alone. If you are in immediate " +
			"danger, please reach out right now: call or text 988 " +
			"(Suicide & Crisis Lifeline, available 24/7), or text HOME to " +
			"741741 to reach the Crisis Text Line. I'm still here with you, " +
			"and we can keep talking for as long as you want.",
		Confidence: 0.9,
	}
}

// ParseConfig decodes a YAML config document. Fields left empty fall back to
// the compiled-in defaults so a partial override stays safe.
func ParseConfig(data []byte) (Config, error) {
	cfg := Config{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse safety config: %w", err)
	}

	defaults := DefaultConfig()
	if len(cfg.Phrases) == 0 {
		cfg.Phrases = defaults.Phrases
	}
	if cfg.Message == "" {
		cfg.Message = defaults.Message
	}
	if cfg.Confidence <= 0 || cfg.Confidence > 1 {
		cfg.Confidence = defaults.Confidence
	}

	return cfg, nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read safety config: %w", err)
	}
	return ParseConfig(data)
}
