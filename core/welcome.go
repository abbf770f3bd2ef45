package companion

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/mindwell-ai/companion-core/core/emotion"
	"github.com/mindwell-ai/companion-core/core/wellbeing"
)

type welcomeTemplate struct {
	text string
	tag  emotion.Tag
}

// Welcome families are keyed by mood bucket. The low-mood family leads with
// acknowledgement, the high-mood one with celebration; neither asks the user
// to explain their score.
var (
	lowMoodWelcomes = []welcomeTemplate{
		{"Hi, I'm really glad you came by. Things have felt a bit heavy lately, so there's no pressure here - we can talk about whatever feels manageable.", emotion.Calming},
		{"Hey, it's good to see you. I know the last stretch hasn't been easy. I'm here, and we can take this slowly.", emotion.Calming},
		{"Hi there. Whatever today has been like so far, you showing up here counts for something. What's on your mind?", emotion.Supportive},
	}
	neutralWelcomes = []welcomeTemplate{
		{"Hi, it's good to see you. How are you feeling today?", emotion.Warm},
		{"Hey there, welcome back. What's been on your mind lately?", emotion.Warm},
		{"Hi! I'm glad you're here. Where would you like to start today?", emotion.Supportive},
	}
	highMoodWelcomes = []welcomeTemplate{
		{"Hey, great to see you! You've been doing really well lately - I'd love to hear what's been going right.", emotion.Celebratory},
		{"Hi! It sounds like things have been looking up for you. What's been the best part?", emotion.Celebratory},
		{"Welcome back! You've had some good momentum going. Want to tell me about it?", emotion.Warm},
	}
)

// welcomeFamily returns the template family for a mood bucket. Exposed to
// tests so they can assert family membership without fixing the random pick.
func welcomeFamily(bucket wellbeing.MoodBucket) []welcomeTemplate {
	switch bucket {
	case wellbeing.MoodLow:
		return lowMoodWelcomes
	case wellbeing.MoodHigh:
		return highMoodWelcomes
	default:
		return neutralWelcomes
	}
}

// buildWelcome picks a welcome from the bucket's family and appends an
// acknowledgement of recently completed activities.
func buildWelcome(wctx wellbeing.Context, pick func(n int) int) (string, emotion.Tag) {
	if pick == nil {
		pick = rand.IntN
	}

	family := welcomeFamily(wctx.Bucket())
	chosen := family[pick(len(family))]

	text := chosen.text
	if activities := wctx.CompletedActivities; len(activities) > 0 {
		text += fmt.Sprintf(" I also saw you completed %s - nicely done.", strings.Join(activities, " and "))
	}

	return text, chosen.tag
}
