// Package texttospeech defines the contract for one-shot speech synthesis
// providers. Synthesis is a best-effort side effect of message delivery: the
// orchestrator attaches audio when it arrives and carries on without it when
// it doesn't.
package texttospeech

import "context"

// Audio is the opaque synthesized-speech handle attached to a message.
type Audio struct {
	Data       []byte
	Encoding   string
	SampleRate int
}

// Profile is a fixed voice configuration. Stability and Similarity are tuned
// for conversational delivery; providers that do not support them ignore
// them.
type Profile struct {
	Voice      string
	Stability  float64
	Similarity float64
}

// DefaultProfile is the calm, professional voice used for companion replies.
func DefaultProfile() Profile {
	return Profile{Voice: "aura-2-asteria-en", Stability: 0.5, Similarity: 0.75}
}

type SynthesizeOptions struct {
	Profile    Profile
	Encoding   string
	SampleRate int
}

type SynthesizeOption func(*SynthesizeOptions)

// WithProfile overrides the voice profile for a single synthesis call.
func WithProfile(profile Profile) SynthesizeOption {
	return func(o *SynthesizeOptions) {
		if profile.Voice != "" {
			o.Profile = profile
		}
	}
}

// WithEncoding overrides the requested audio encoding and sample rate.
func WithEncoding(encoding string, sampleRate int) SynthesizeOption {
	return func(o *SynthesizeOptions) {
		if encoding == "" || sampleRate == 0 {
			return
		}
		o.Encoding = encoding
		o.SampleRate = sampleRate
	}
}

// SpeechSynthesizerV0 turns finalized reply text into audio. Implementations
// must respect ctx cancellation; they are free to fail, the caller swallows
// the error and delivers the text reply without audio.
type SpeechSynthesizerV0 interface {
	Synthesize(ctx context.Context, text string, opts ...SynthesizeOption) (*Audio, error)
}
