package companion

import (
	"time"

	"github.com/google/uuid"
	"github.com/mindwell-ai/companion-core/core/emotion"
	"github.com/mindwell-ai/companion-core/core/safety"
	"github.com/mindwell-ai/companion-core/core/texttospeech"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleCompanion Role = "companion"
)

// Message is one entry in a session transcript. Companion messages carry an
// emotion tag for presentation and, once synthesis finishes, the spoken
// audio.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Emotion   emotion.Tag
	Timestamp time.Time

	// Audio is attached asynchronously after the message is delivered; a
	// message without audio is complete, not broken.
	Audio *texttospeech.Audio

	// Safety is set only on companion messages produced by the crisis path,
	// carrying the assessment that triggered them.
	Safety *safety.Assessment
}

func newMessage(role Role, content string, tag emotion.Tag) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Emotion:   tag,
		Timestamp: time.Now().UTC(),
	}
}
