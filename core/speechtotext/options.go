// Package speechtotext defines the contract for transcribing a recorded user
// utterance into plain text. The orchestrator itself only ever consumes
// finished text; this adapter exists for the voice-input accessibility path
// in front of it.
package speechtotext

// TranscriptionOptions configures a single utterance transcription.
type TranscriptionOptions struct {
	// Encoding and SampleRate describe the recorded audio.
	Encoding   string
	SampleRate int
	// Language hints the recognizer; empty means provider default.
	Language string
	// PartialTranscriptionCallback is called with each finalized segment as
	// it is recognized, before the full transcript is assembled.
	PartialTranscriptionCallback func(segment string)
}

type TranscriptionOption func(*TranscriptionOptions)

// WithEncoding sets the audio encoding and sample rate of the recording.
func WithEncoding(encoding string, sampleRate int) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if encoding == "" || sampleRate == 0 {
			return
		}
		o.Encoding = encoding
		o.SampleRate = sampleRate
	}
}

// WithLanguage sets the recognition language.
func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.Language = language }
}

// WithPartialTranscriptionCallback registers a callback for finalized
// segments.
func WithPartialTranscriptionCallback(callback func(string)) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.PartialTranscriptionCallback = callback }
}
