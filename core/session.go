package companion

import (
	"time"

	"github.com/mindwell-ai/companion-core/core/avatar"
	"github.com/mindwell-ai/companion-core/core/wellbeing"
)

// Session is one conversation between a user and the companion, from the
// seeded welcome to EndSession. State lives in memory only; a restart starts
// fresh.
type Session struct {
	ID        string
	UserID    string
	StartedAt time.Time
	EndedAt   *time.Time

	// LastMessageAt tracks the latest transcript activity, for UI recency and
	// future idle-session sweeps.
	LastMessageAt time.Time

	// Context is the wellbeing context read once at session start.
	Context wellbeing.Context

	// Messages is the full transcript, system preamble included.
	Messages []Message

	// Avatar is the video session opened for this conversation, nil when no
	// broker is wired or the avatar could not be established.
	Avatar *avatar.Session
}

// Ended reports whether the session has been closed.
func (s Session) Ended() bool { return s.EndedAt != nil }
