package prompts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultRegistryModes(t *testing.T) {
	r := Default()
	got := strings.Join(r.Modes(), ",")
	if got != "mentor,coach,interviewer" {
		t.Fatalf("Modes() = %q, want mentor,coach,interviewer", got)
	}
	for _, m := range r.Modes() {
		p, err := r.SystemPrompt(m)
		if err != nil {
			t.Fatalf("SystemPrompt(%q) error = %v", m, err)
		}
		if p == "" {
			t.Fatalf("SystemPrompt(%q) is empty", m)
		}
	}
}

func TestSystemPromptUnknownMode(t *testing.T) {
	_, err := Default().SystemPrompt("tutor")
	if !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("error = %v, want ErrUnknownMode", err)
	}
}

func TestLookupNormalizesInput(t *testing.T) {
	m, err := Default().Lookup("  Coach ")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if m.Name != "coach" || m.Greeting == "" {
		t.Fatalf("unexpected mode: %+v", m)
	}
}

func TestNewRejectsCoachAndTutor(t *testing.T) {
	_, err := New([]Mode{
		{Name: "coach", Prompt: "a"},
		{Name: "tutor", Prompt: "b"},
	})
	if err == nil {
		t.Fatalf("New() expected error for coach+tutor catalog")
	}
}

func TestNewRejectsDuplicateAndEmpty(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrEmptyCatalog) {
		t.Fatalf("New(nil) error = %v, want ErrEmptyCatalog", err)
	}
	if _, err := New([]Mode{{Name: "mentor", Prompt: "a"}, {Name: "Mentor", Prompt: "b"}}); err == nil {
		t.Fatalf("New() expected duplicate error")
	}
	if _, err := New([]Mode{{Name: "mentor", Prompt: "  "}}); err == nil {
		t.Fatalf("New() expected empty prompt error")
	}
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	body := `modes:
  - name: mentor
    description: career advice
    prompt: |
      You are a mentor.
    greeting: Hi mentee
  - name: tutor
    prompt: You are a tutor.
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	p, err := r.SystemPrompt("mentor")
	if err != nil {
		t.Fatalf("SystemPrompt() error = %v", err)
	}
	if p != "You are a mentor." {
		t.Fatalf("prompt = %q, want trimmed text", p)
	}
	if _, err := r.Lookup("coach"); err == nil {
		t.Fatalf("file catalog should replace builtin modes")
	}
}

func TestCommandHint(t *testing.T) {
	got := Default().CommandHint()
	want := "`/mode mentor`, `/mode coach`, or `/mode interviewer`"
	if got != want {
		t.Fatalf("CommandHint() = %q, want %q", got, want)
	}
}
