// Package companion orchestrates wellbeing conversations: it screens every
// inbound message for crisis signals, produces a reply through the generation
// chain, attaches best-effort speech audio, and brokers the optional video
// avatar session. It is an in-process library; callers own the transport in
// front of it.
package companion

import (
	"context"
	"strings"

	"github.com/mindwell-ai/companion-core/core/emotion"
	"github.com/mindwell-ai/companion-core/core/generation"
	"github.com/mindwell-ai/companion-core/core/retry"
	"github.com/mindwell-ai/companion-core/core/safety"
	"github.com/mindwell-ai/companion-core/core/texttospeech"
	"github.com/mindwell-ai/companion-core/core/wellbeing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// historyWindow caps how many prior exchanges are handed to the generator.
const historyWindow = 12

// emptyMessageReply is returned without touching the generator when the user
// sends only whitespace.
const emptyMessageReply = "I'm here whenever you're ready. Take your time."

// Manager owns the session registry and runs the per-message pipeline:
// safety screening first, then generation, then best-effort synthesis.
type Manager struct {
	store *store

	classifier    *safety.Classifier
	generator     Generator
	synthesizer   texttospeech.SpeechSynthesizerV0
	broker        AvatarBroker
	contextSource wellbeing.ContextSource

	onAudioReady func(sessionID, messageID string, audio *texttospeech.Audio)
	onReply      func(sessionID string, message Message)
}

// NewManager builds a manager. Without options it screens with the built-in
// crisis config and generates through the local pattern chain, fully offline.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		store:      newStore(),
		classifier: safety.NewClassifier(safety.DefaultConfig()),
		generator: generation.NewChain(
			generation.WithStrategy(generation.NewLocalStrategy(), retry.DefaultPolicy()),
		),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a session for the user: reads wellbeing context, seeds the
// system persona and a mood-matched welcome, and opens the avatar session
// when a broker is wired. The returned session is a snapshot.
func (m *Manager) Start(ctx context.Context, userID string) (Session, error) {
	ctx, span := tracer.Start(ctx, "start companion session")
	defer span.End()

	var wctx wellbeing.Context
	if m.contextSource != nil {
		fetched, err := m.contextSource.FetchContext(ctx, userID)
		if err != nil {
			// A missing context degrades to a neutral welcome, never to a
			// failed session start.
			logger.WarnContext(ctx, "failed to fetch wellbeing context", "user_id", userID, "error", err)
			span.RecordError(err)
		} else {
			wctx = fetched
		}
	}

	session := m.store.create(userID, wctx)
	span.SetAttributes(attribute.String("session.id", session.ID))

	if _, err := m.store.append(session.ID, newMessage(RoleSystem, generation.PersonaPreamble, "")); err != nil {
		return Session{}, err
	}

	welcomeText, welcomeTag := buildWelcome(wctx, nil)
	welcome, err := m.appendReply(session.ID, newMessage(RoleCompanion, welcomeText, welcomeTag))
	if err != nil {
		return Session{}, err
	}
	m.synthesizeAsync(ctx, session.ID, welcome)

	if m.broker != nil {
		avatarSession, err := m.broker.Open(ctx, wctx)
		if err != nil {
			// The conversation works without video; record and move on.
			logger.WarnContext(ctx, "failed to open avatar session", "session_id", session.ID, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if avatarSession != nil {
			m.store.setAvatar(session.ID, avatarSession)
		}
	}

	return m.store.snapshot(session.ID)
}

// Send runs one user message through the pipeline and returns the companion
// reply. The safety screen runs before any generation: an emergency match
// short-circuits to the configured crisis response and the generator is never
// consulted. Replies are delivered as soon as the text is ready; audio is
// attached asynchronously.
func (m *Manager) Send(ctx context.Context, sessionID, text string) (Message, error) {
	ctx, span := tracer.Start(ctx, "handle user message")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	if strings.TrimSpace(text) == "" {
		reply, err := m.appendReply(sessionID, newMessage(RoleCompanion, emptyMessageReply, emotion.Warm))
		if err != nil {
			return Message{}, err
		}
		return reply, nil
	}

	if _, err := m.store.append(sessionID, newMessage(RoleUser, text, "")); err != nil {
		return Message{}, err
	}

	assessment := m.classifier.Assess(text)
	if assessment.IsEmergency {
		span.SetAttributes(attribute.Bool("safety.emergency", true))
		logger.WarnContext(ctx, "crisis signals detected, bypassing generation",
			"session_id", sessionID, "confidence", assessment.Confidence)

		crisis := newMessage(RoleCompanion, assessment.RecommendedAction, emotion.Urgent)
		crisis.Safety = &assessment
		reply, err := m.appendReply(sessionID, crisis)
		if err != nil {
			return Message{}, err
		}
		m.synthesizeAsync(ctx, sessionID, reply)
		return reply, nil
	}

	session, err := m.store.get(sessionID)
	if err != nil {
		return Message{}, err
	}
	history, err := m.exchangeHistory(sessionID)
	if err != nil {
		return Message{}, err
	}

	generated := m.generator.Generate(ctx, generation.Request{
		Message: text,
		History: history,
		Context: session.Context,
	})
	span.SetAttributes(attribute.String("reply.emotion", string(generated.Emotion)))

	reply, err := m.appendReply(sessionID, newMessage(RoleCompanion, generated.Content, generated.Emotion))
	if err != nil {
		return Message{}, err
	}
	m.synthesizeAsync(ctx, sessionID, reply)
	return reply, nil
}

// appendReply stores a companion message and notifies the reply observer.
func (m *Manager) appendReply(sessionID string, message Message) (Message, error) {
	reply, err := m.store.append(sessionID, message)
	if err != nil {
		return Message{}, err
	}
	if m.onReply != nil {
		m.onReply(sessionID, reply)
	}
	return reply, nil
}

// EndSession destroys the session state, keeping only a tombstone of the id,
// and tears down its avatar. Ending an unknown or already-ended session
// reports the corresponding error; the avatar teardown is best effort.
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	ctx, span := tracer.Start(ctx, "end companion session")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	session, err := m.store.end(sessionID)
	if err != nil {
		return err
	}

	if m.broker != nil && session.Avatar != nil {
		if err := m.broker.Close(ctx, session.Avatar); err != nil {
			logger.WarnContext(ctx, "failed to close avatar session",
				"session_id", sessionID, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}

	return nil
}

// Session returns a point-in-time deep copy of the session.
func (m *Manager) Session(sessionID string) (Session, error) {
	return m.store.snapshot(sessionID)
}

// exchangeHistory converts the tail of the transcript into generation
// exchanges, excluding system messages and the just-appended user message.
func (m *Manager) exchangeHistory(sessionID string) ([]generation.Exchange, error) {
	messages, err := m.store.history(sessionID)
	if err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		messages = messages[:len(messages)-1]
	}

	exchanges := make([]generation.Exchange, 0, len(messages))
	for _, message := range messages {
		if message.Role == RoleSystem {
			continue
		}
		role := "user"
		if message.Role == RoleCompanion {
			role = "assistant"
		}
		exchanges = append(exchanges, generation.Exchange{Role: role, Content: message.Content})
	}

	if len(exchanges) > historyWindow {
		exchanges = exchanges[len(exchanges)-historyWindow:]
	}
	return exchanges, nil
}

// synthesizeAsync requests speech for a delivered message and attaches it
// when it arrives. Synthesis failures are logged and dropped: audio never
// blocks or fails a reply.
func (m *Manager) synthesizeAsync(ctx context.Context, sessionID string, message Message) {
	if m.synthesizer == nil {
		return
	}

	// The reply has already been delivered; synthesis outlives the request.
	ctx = context.WithoutCancel(ctx)
	go func() {
		audio, err := m.synthesizer.Synthesize(ctx, message.Content)
		if err != nil {
			logger.WarnContext(ctx, "speech synthesis failed",
				"session_id", sessionID, "message_id", message.ID, "error", err)
			return
		}

		if !m.store.attachAudio(sessionID, message.ID, audio) {
			return
		}
		if m.onAudioReady != nil {
			m.onAudioReady(sessionID, message.ID, audio)
		}
	}()
}
