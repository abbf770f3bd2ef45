package companion

import (
	"context"

	"github.com/mindwell-ai/companion-core/core/avatar"
	"github.com/mindwell-ai/companion-core/core/generation"
	"github.com/mindwell-ai/companion-core/core/safety"
	"github.com/mindwell-ai/companion-core/core/texttospeech"
	"github.com/mindwell-ai/companion-core/core/wellbeing"
)

// Generator produces the companion reply for a user message. Satisfied by
// *generation.Chain.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) generation.Reply
}

// AvatarBroker opens and closes video avatar sessions. Satisfied by
// *avatar.Broker.
type AvatarBroker interface {
	Open(ctx context.Context, wctx wellbeing.Context) (*avatar.Session, error)
	Close(ctx context.Context, session *avatar.Session) error
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithGenerator replaces the reply generator.
func WithGenerator(generator Generator) ManagerOption {
	return func(m *Manager) {
		if generator != nil {
			m.generator = generator
		}
	}
}

// WithClassifier replaces the crisis classifier.
func WithClassifier(classifier *safety.Classifier) ManagerOption {
	return func(m *Manager) {
		if classifier != nil {
			m.classifier = classifier
		}
	}
}

// WithSynthesizer wires a speech synthesizer. Without one, messages are
// delivered text-only.
func WithSynthesizer(synthesizer texttospeech.SpeechSynthesizerV0) ManagerOption {
	return func(m *Manager) { m.synthesizer = synthesizer }
}

// WithAvatarBroker wires the video avatar broker. Without one, sessions run
// without video.
func WithAvatarBroker(broker AvatarBroker) ManagerOption {
	return func(m *Manager) { m.broker = broker }
}

// WithContextSource wires the wellbeing context reader consulted once per
// session start.
func WithContextSource(source wellbeing.ContextSource) ManagerOption {
	return func(m *Manager) { m.contextSource = source }
}

// WithAudioReadyCallback registers a callback fired when synthesized audio is
// attached to an already-delivered message.
func WithAudioReadyCallback(callback func(sessionID, messageID string, audio *texttospeech.Audio)) ManagerOption {
	return func(m *Manager) { m.onAudioReady = callback }
}

// WithReplyCallback registers an observer fired for every companion message
// appended to a session, welcome and crisis replies included.
func WithReplyCallback(callback func(sessionID string, message Message)) ManagerOption {
	return func(m *Manager) { m.onReply = callback }
}
