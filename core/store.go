package companion

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/mindwell-ai/companion-core/core/avatar"
	"github.com/mindwell-ai/companion-core/core/texttospeech"
	"github.com/mindwell-ai/companion-core/core/wellbeing"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session already ended")
)

// store is the mutex-guarded in-memory session registry. All reads hand out
// deep copies so callers can never mutate live state. Ending a session
// destroys its state; only a tombstone of the id remains so late sends and
// audio can be told apart from unknown sessions.
type store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ended    map[string]struct{}
}

func newStore() *store {
	return &store{
		sessions: make(map[string]*Session),
		ended:    make(map[string]struct{}),
	}
}

// missingErr reports why a session id is not live.
func (s *store) missingErr(sessionID string) error {
	if _, was := s.ended[sessionID]; was {
		return fmt.Errorf("%w: %s", ErrSessionEnded, sessionID)
	}
	return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
}

func (s *store) create(userID string, wctx wellbeing.Context) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: time.Now().UTC(),
		Context:   wctx,
	}
	s.sessions[session.ID] = session
	return session
}

// append adds a message to a live session and returns a copy of it.
func (s *store) append(sessionID string, message Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return Message{}, s.missingErr(sessionID)
	}

	session.Messages = append(session.Messages, message)
	session.LastMessageAt = message.Timestamp
	return message, nil
}

// attachAudio sets the audio on an already-appended message. Attaching to a
// message of an ended or removed session is silently dropped; the audio
// arrived too late to matter.
func (s *store) attachAudio(sessionID, messageID string, audio *texttospeech.Audio) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return false
	}

	for i := range session.Messages {
		if session.Messages[i].ID == messageID {
			session.Messages[i].Audio = audio
			return true
		}
	}
	return false
}

// end destroys the session, leaving only a tombstone, and returns the final
// state for teardown. Ending twice returns ErrSessionEnded.
func (s *store) end(sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, s.missingErr(sessionID)
	}

	now := time.Now().UTC()
	session.EndedAt = &now
	delete(s.sessions, sessionID)
	s.ended[sessionID] = struct{}{}
	return session, nil
}

// setAvatar records the avatar session opened for this conversation.
func (s *store) setAvatar(sessionID string, avatarSession *avatar.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[sessionID]; ok {
		session.Avatar = avatarSession
	}
}

// get returns the live session pointer. Callers must hold no assumptions
// about it outside the store lock; use snapshot for safe reads.
func (s *store) get(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, s.missingErr(sessionID)
	}
	return session, nil
}

// snapshot returns a deep copy of the session, safe to hand to callers.
func (s *store) snapshot(sessionID string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, s.missingErr(sessionID)
	}

	var copied Session
	if err := copier.CopyWithOption(&copied, session, copier.Option{DeepCopy: true}); err != nil {
		return Session{}, fmt.Errorf("failed to snapshot session: %w", err)
	}
	return copied, nil
}

// history converts the transcript into generation exchanges, excluding
// system messages.
func (s *store) history(sessionID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, s.missingErr(sessionID)
	}

	messages := make([]Message, len(session.Messages))
	copy(messages, session.Messages)
	return messages, nil
}
