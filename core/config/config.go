// Package config collects the environment configuration for the companion
// orchestrator. Every credential is optional: a missing provider key disables
// that provider and the orchestrator degrades to its offline behavior.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config carries provider credentials and tuning read from the environment.
type Config struct {
	GroqAPIKey   string
	OpenAIAPIKey string

	DeepgramAPIKey string

	TavusAPIKey    string
	TavusReplicaID string
	TavusPersonaID string

	// SafetyConfigPath points at a YAML crisis-screening override; empty
	// means the built-in config.
	SafetyConfigPath string
}

// Load reads .env (when present) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	return Config{
		GroqAPIKey:       os.Getenv("GROQ_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		DeepgramAPIKey:   os.Getenv("DEEPGRAM_API_KEY"),
		TavusAPIKey:      os.Getenv("TAVUS_API_KEY"),
		TavusReplicaID:   os.Getenv("TAVUS_REPLICA_ID"),
		TavusPersonaID:   os.Getenv("TAVUS_PERSONA_ID"),
		SafetyConfigPath: os.Getenv("SAFETY_CONFIG_PATH"),
	}, nil
}

// HasGroq reports whether the primary remote generation provider is usable.
func (c Config) HasGroq() bool { return c.GroqAPIKey != "" }

// HasOpenAI reports whether the backup remote generation provider is usable.
func (c Config) HasOpenAI() bool { return c.OpenAIAPIKey != "" }

// HasSpeech reports whether speech synthesis and transcription are usable.
func (c Config) HasSpeech() bool { return c.DeepgramAPIKey != "" }

// HasAvatar reports whether the video avatar provider is fully configured.
func (c Config) HasAvatar() bool { return c.TavusAPIKey != "" && c.TavusReplicaID != "" }
