// Package wellbeing models the per-user context the orchestrator reads once
// when a conversation starts: the most recent mood check-in, completed
// activities, and freeform preferences.
package wellbeing

import "context"

// Context carries the wellbeing signals used to personalize conversation
// openings and avatar greetings.
type Context struct {
	// RecentMood is the latest 1-10 mood check-in, nil when the user has
	// not logged one.
	RecentMood          *int
	CompletedActivities []string
	Preferences         map[string]string
}

// MoodBucket is a coarse grouping of recent mood used to pick a tone.
type MoodBucket string

const (
	MoodLow     MoodBucket = "low"
	MoodNeutral MoodBucket = "neutral"
	MoodHigh    MoodBucket = "high"
)

// Bucket maps the recent mood check-in onto a tone bucket. Missing mood is
// treated as neutral.
func (c Context) Bucket() MoodBucket {
	if c.RecentMood == nil {
		return MoodNeutral
	}

	switch {
	case *c.RecentMood <= 4:
		return MoodLow
	case *c.RecentMood >= 7:
		return MoodHigh
	default:
		return MoodNeutral
	}
}

// Merge fills fields that are unset on c from other, without overwriting
// signals the caller already provided.
func (c Context) Merge(other Context) Context {
	merged := c
	if merged.RecentMood == nil {
		merged.RecentMood = other.RecentMood
	}
	if len(merged.CompletedActivities) == 0 {
		merged.CompletedActivities = other.CompletedActivities
	}
	if len(merged.Preferences) == 0 {
		merged.Preferences = other.Preferences
	}
	return merged
}

// ContextSource reads wellbeing context from the remote data store. The
// orchestrator calls it once per conversation start and never writes back.
type ContextSource interface {
	FetchContext(ctx context.Context, userID string) (Context, error)
}
