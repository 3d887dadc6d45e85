package prompts

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownMode  = errors.New("unknown mode")
	ErrEmptyCatalog = errors.New("prompt catalog is empty")
)

// Mode is one persona configuration.
type Mode struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Prompt      string `yaml:"prompt"`
	Greeting    string `yaml:"greeting"`
}

// Registry is the read-only mapping of mode name to system prompt.
type Registry struct {
	order []string
	modes map[string]Mode
}

// New validates a catalog and builds a registry from it.
func New(modes []Mode) (*Registry, error) {
	if len(modes) == 0 {
		return nil, ErrEmptyCatalog
	}
	r := &Registry{modes: make(map[string]Mode, len(modes))}
	for _, m := range modes {
		m.Name = Normalize(m.Name)
		m.Prompt = strings.TrimSpace(m.Prompt)
		if m.Name == "" {
			return nil, errors.New("mode name is required")
		}
		if m.Prompt == "" {
			return nil, fmt.Errorf("mode %q has an empty prompt", m.Name)
		}
		if _, dup := r.modes[m.Name]; dup {
			return nil, fmt.Errorf("mode %q is defined twice", m.Name)
		}
		r.modes[m.Name] = m
		r.order = append(r.order, m.Name)
	}
	// coach and tutor name the same persona; carrying both splits the mode table.
	_, hasCoach := r.modes["coach"]
	_, hasTutor := r.modes["tutor"]
	if hasCoach && hasTutor {
		return nil, errors.New(`catalog may define "coach" or "tutor", not both`)
	}
	return r, nil
}

// Default returns the built-in registry.
func Default() *Registry {
	r, err := New(builtinModes())
	if err != nil {
		panic(fmt.Sprintf("builtin prompt catalog: %v", err))
	}
	return r
}

// Normalize turns user input such as " Coach " into a lookup key.
func Normalize(mode string) string {
	return strings.ToLower(strings.TrimSpace(mode))
}

// SystemPrompt returns the system prompt text for mode.
func (r *Registry) SystemPrompt(mode string) (string, error) {
	m, err := r.Lookup(mode)
	if err != nil {
		return "", err
	}
	return m.Prompt, nil
}

func (r *Registry) Lookup(mode string) (Mode, error) {
	m, ok := r.modes[Normalize(mode)]
	if !ok {
		return Mode{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return m, nil
}

// Modes lists mode names in catalog order.
func (r *Registry) Modes() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All lists modes in catalog order.
func (r *Registry) All() []Mode {
	out := make([]Mode, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.modes[name])
	}
	return out
}

// CommandHint renders "`/mode mentor`, `/mode coach`, or `/mode interviewer`".
func (r *Registry) CommandHint() string {
	parts := make([]string, 0, len(r.order))
	for _, name := range r.order {
		parts = append(parts, "`/mode "+name+"`")
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " or " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", or " + parts[len(parts)-1]
	}
}
