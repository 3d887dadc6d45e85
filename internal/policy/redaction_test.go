package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestPreviewRedactsAndClips(t *testing.T) {
	got := Preview("reach me at\nsam@example.com please, it is about the roadmap", 30)
	if strings.Contains(got, "sam@example.com") || strings.Contains(got, "\n") {
		t.Fatalf("Preview() leaked content: %q", got)
	}
	if !strings.HasSuffix(got, "…") || len([]rune(got)) != 31 {
		t.Fatalf("Preview() = %q, want 30 runes plus ellipsis", got)
	}
}
