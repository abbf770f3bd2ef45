package wellbeing

import (
	"testing"

	"github.com/mindwell-ai/companion-core/internal/utils"
)

func TestBucket(t *testing.T) {
	for _, tc := range []struct {
		mood *int
		want MoodBucket
	}{
		{nil, MoodNeutral},
		{utils.Ptr(1), MoodLow},
		{utils.Ptr(4), MoodLow},
		{utils.Ptr(5), MoodNeutral},
		{utils.Ptr(6), MoodNeutral},
		{utils.Ptr(7), MoodHigh},
		{utils.Ptr(10), MoodHigh},
	} {
		got := Context{RecentMood: tc.mood}.Bucket()
		if got != tc.want {
			t.Fatalf("Bucket(%v) = %q, want %q", tc.mood, got, tc.want)
		}
	}
}

func TestMergeKeepsCallerSignals(t *testing.T) {
	base := Context{RecentMood: utils.Ptr(3)}
	merged := base.Merge(Context{
		RecentMood:          utils.Ptr(8),
		CompletedActivities: []string{"journaling"},
	})

	if *merged.RecentMood != 3 {
		t.Fatalf("merge must not overwrite the caller's mood, got %d", *merged.RecentMood)
	}
	if len(merged.CompletedActivities) != 1 {
		t.Fatalf("merge should fill unset fields, got %v", merged.CompletedActivities)
	}
}
