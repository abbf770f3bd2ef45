package emotion

import "testing"

func TestInfer(t *testing.T) {
	for _, tc := range []struct {
		text string
		want Tag
	}{
		{"Congratulations on the new job, that's amazing!", Celebratory},
		{"Let's breathe together and slow down for a moment.", Calming},
		{"You're not alone in this, I'm here for you.", Warm},
		{"Tell me more about what happened.", Supportive},
		{"", Supportive},
	} {
		if got := Infer(tc.text); got != tc.want {
			t.Fatalf("Infer(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestInferNeverReturnsUrgent(t *testing.T) {
	// Urgent is reserved for the crisis path; no generated text may earn it.
	for _, text := range []string{
		"this is urgent", "emergency!", "call 911", "crisis hotline",
	} {
		if got := Infer(text); got == Urgent {
			t.Fatalf("Infer(%q) must not produce the urgent tag", text)
		}
	}
}

func TestValid(t *testing.T) {
	for _, tag := range []Tag{Supportive, Calming, Warm, Celebratory, Urgent} {
		if !Valid(tag) {
			t.Fatalf("expected %q to be valid", tag)
		}
	}
	if Valid("ecstatic") {
		t.Fatal("unknown tags must be rejected")
	}
}
