package companion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mindwell-ai/companion-core/core/avatar"
	"github.com/mindwell-ai/companion-core/core/emotion"
	"github.com/mindwell-ai/companion-core/core/generation"
	"github.com/mindwell-ai/companion-core/core/texttospeech"
	"github.com/mindwell-ai/companion-core/core/wellbeing"
	"github.com/mindwell-ai/companion-core/internal/utils"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	lastReq generation.Request
	reply   generation.Reply
}

func (g *fakeGenerator) Generate(_ context.Context, req generation.Request) generation.Reply {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++
	g.lastReq = req
	return g.reply
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeSynthesizer struct {
	audio *texttospeech.Audio
	err   error
}

func (s *fakeSynthesizer) Synthesize(context.Context, string, ...texttospeech.SynthesizeOption) (*texttospeech.Audio, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.audio, nil
}

type fakeBroker struct {
	mu      sync.Mutex
	openErr error
	opened  int
	closed  []string
}

func (b *fakeBroker) Open(context.Context, wellbeing.Context) (*avatar.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.opened++
	if b.openErr != nil {
		return &avatar.Session{Status: avatar.StatusError, ErrorMessage: b.openErr.Error()}, b.openErr
	}
	return &avatar.Session{ID: "av-1", ConversationID: "conv-1", Status: avatar.StatusActive}, nil
}

func (b *fakeBroker) Close(_ context.Context, session *avatar.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = append(b.closed, session.ID)
	return nil
}

type fakeContextSource struct {
	wctx wellbeing.Context
	err  error
}

func (s *fakeContextSource) FetchContext(context.Context, string) (wellbeing.Context, error) {
	return s.wctx, s.err
}

func startSession(t *testing.T, m *Manager) Session {
	t.Helper()
	session, err := m.Start(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	return session
}

func TestSendBypassesGeneratorOnCrisisSignals(t *testing.T) {
	generator := &fakeGenerator{reply: generation.Reply{Content: "generated", Emotion: emotion.Supportive}}
	m := NewManager(WithGenerator(generator))
	session := startSession(t, m)

	reply, err := m.Send(context.Background(), session.ID, "I want to kill myself")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if reply.Emotion != emotion.Urgent {
		t.Fatalf("expected urgent emotion, got %q", reply.Emotion)
	}
	if !strings.Contains(reply.Content, "988") {
		t.Fatalf("expected the crisis reply to name the hotline, got %q", reply.Content)
	}
	if reply.Safety == nil || !reply.Safety.IsEmergency {
		t.Fatal("expected the reply to carry the safety assessment")
	}
	if generator.callCount() != 0 {
		t.Fatalf("generator must not run on the crisis path, ran %d times", generator.callCount())
	}
}

func TestSendDeliversReplyDespiteSynthesisFailure(t *testing.T) {
	generator := &fakeGenerator{reply: generation.Reply{Content: "I'm here with you.", Emotion: emotion.Warm}}
	m := NewManager(
		WithGenerator(generator),
		WithSynthesizer(&fakeSynthesizer{err: errors.New("tts provider down")}),
	)
	session := startSession(t, m)

	reply, err := m.Send(context.Background(), session.ID, "just a rough day")
	if err != nil {
		t.Fatalf("send must not fail when synthesis fails: %v", err)
	}
	if reply.Content != "I'm here with you." {
		t.Fatalf("unexpected reply content %q", reply.Content)
	}
	if reply.Audio != nil {
		t.Fatal("expected no audio on the returned reply")
	}
}

func TestSendAttachesAudioAsynchronously(t *testing.T) {
	audioReady := make(chan string, 2)
	generator := &fakeGenerator{reply: generation.Reply{Content: "That sounds tough.", Emotion: emotion.Supportive}}
	m := NewManager(
		WithGenerator(generator),
		WithSynthesizer(&fakeSynthesizer{audio: &texttospeech.Audio{Data: []byte{1, 2, 3}, Encoding: "linear16", SampleRate: 24000}}),
		WithAudioReadyCallback(func(_, messageID string, _ *texttospeech.Audio) {
			audioReady <- messageID
		}),
	)
	session := startSession(t, m)

	reply, err := m.Send(context.Background(), session.ID, "long day at work")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case messageID := <-audioReady:
			if messageID != reply.ID {
				// The welcome message synthesizes too; skip it.
				continue
			}
		case <-deadline:
			t.Fatal("timed out waiting for audio attachment")
		}
		break
	}

	snapshot, err := m.Session(session.ID)
	if err != nil {
		t.Fatalf("failed to snapshot session: %v", err)
	}
	var stored *Message
	for i := range snapshot.Messages {
		if snapshot.Messages[i].ID == reply.ID {
			stored = &snapshot.Messages[i]
		}
	}
	if stored == nil || stored.Audio == nil {
		t.Fatal("expected audio attached to the stored reply")
	}
}

func TestStartSeedsWelcomeByMood(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mood   int
		bucket wellbeing.MoodBucket
	}{
		{name: "low mood", mood: 2, bucket: wellbeing.MoodLow},
		{name: "high mood", mood: 9, bucket: wellbeing.MoodHigh},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager(WithContextSource(&fakeContextSource{
				wctx: wellbeing.Context{RecentMood: utils.Ptr(tc.mood)},
			}))
			session := startSession(t, m)

			if len(session.Messages) != 2 {
				t.Fatalf("expected system preamble plus welcome, got %d messages", len(session.Messages))
			}
			welcome := session.Messages[1]
			if welcome.Role != RoleCompanion {
				t.Fatalf("expected a companion welcome, got role %q", welcome.Role)
			}

			matched := false
			for _, tmpl := range welcomeFamily(tc.bucket) {
				if strings.HasPrefix(welcome.Content, tmpl.text) {
					matched = true
				}
			}
			if !matched {
				t.Fatalf("welcome %q is not from the %s family", welcome.Content, tc.bucket)
			}
		})
	}
}

func TestStartSurvivesContextFetchFailure(t *testing.T) {
	m := NewManager(WithContextSource(&fakeContextSource{err: errors.New("store down")}))
	session := startSession(t, m)

	welcome := session.Messages[1]
	matched := false
	for _, tmpl := range welcomeFamily(wellbeing.MoodNeutral) {
		if strings.HasPrefix(welcome.Content, tmpl.text) {
			matched = true
		}
	}
	if !matched {
		t.Fatalf("expected a neutral welcome fallback, got %q", welcome.Content)
	}
}

func TestEndSessionClosesAvatar(t *testing.T) {
	broker := &fakeBroker{}
	m := NewManager(WithAvatarBroker(broker))
	session := startSession(t, m)

	if session.Avatar == nil || session.Avatar.Status != avatar.StatusActive {
		t.Fatal("expected an active avatar session on start")
	}

	if err := m.EndSession(context.Background(), session.ID); err != nil {
		t.Fatalf("failed to end session: %v", err)
	}
	if len(broker.closed) != 1 || broker.closed[0] != "av-1" {
		t.Fatalf("expected the avatar session to be closed, closed %v", broker.closed)
	}

	if _, err := m.Send(context.Background(), session.ID, "hello?"); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
	if err := m.EndSession(context.Background(), session.ID); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded on double end, got %v", err)
	}
}

func TestEndSessionDiscardsConversationState(t *testing.T) {
	generator := &fakeGenerator{reply: generation.Reply{Content: "ok", Emotion: emotion.Supportive}}
	m := NewManager(WithGenerator(generator))
	session := startSession(t, m)

	if _, err := m.Send(context.Background(), session.ID, "something personal"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := m.EndSession(context.Background(), session.ID); err != nil {
		t.Fatalf("failed to end session: %v", err)
	}

	// The transcript and wellbeing context must not outlive the session.
	if _, err := m.Session(session.ID); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected the ended session to be gone, got %v", err)
	}
}

func TestStartSurvivesAvatarFailure(t *testing.T) {
	broker := &fakeBroker{openErr: errors.New("provider down")}
	m := NewManager(WithAvatarBroker(broker))
	session := startSession(t, m)

	if session.Avatar != nil && session.Avatar.Status == avatar.StatusActive {
		t.Fatal("expected no active avatar session")
	}
	if _, err := m.Send(context.Background(), session.ID, "still works?"); err != nil {
		t.Fatalf("conversation should work without video: %v", err)
	}
}

func TestSendPromptsGentlyOnEmptyMessage(t *testing.T) {
	generator := &fakeGenerator{}
	m := NewManager(WithGenerator(generator))
	session := startSession(t, m)

	reply, err := m.Send(context.Background(), session.ID, "   \n\t")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if reply.Content != emptyMessageReply {
		t.Fatalf("unexpected reply %q", reply.Content)
	}
	if generator.callCount() != 0 {
		t.Fatal("generator must not run for an empty message")
	}

	snapshot, err := m.Session(session.ID)
	if err != nil {
		t.Fatalf("failed to snapshot session: %v", err)
	}
	for _, message := range snapshot.Messages {
		if message.Role == RoleUser {
			t.Fatal("whitespace-only input must not be recorded as a user message")
		}
	}
}

func TestSendBuildsHistoryWithoutSystemMessages(t *testing.T) {
	generator := &fakeGenerator{reply: generation.Reply{Content: "ok", Emotion: emotion.Supportive}}
	m := NewManager(WithGenerator(generator))
	session := startSession(t, m)

	if _, err := m.Send(context.Background(), session.ID, "first message"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if _, err := m.Send(context.Background(), session.ID, "second message"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	req := generator.lastReq
	if req.Message != "second message" {
		t.Fatalf("unexpected request message %q", req.Message)
	}
	for _, exchange := range req.History {
		if exchange.Role != "user" && exchange.Role != "assistant" {
			t.Fatalf("unexpected history role %q", exchange.Role)
		}
		if exchange.Content == generation.PersonaPreamble {
			t.Fatal("system preamble leaked into history")
		}
		if exchange.Content == "second message" {
			t.Fatal("the in-flight message must not appear in history")
		}
	}
	// welcome + first user message + first reply
	if len(req.History) != 3 {
		t.Fatalf("expected 3 history exchanges, got %d", len(req.History))
	}
}

func TestSendToUnknownSession(t *testing.T) {
	m := NewManager()
	if _, err := m.Send(context.Background(), "nope", "hello"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
