package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yanyan-huang/pmpal/internal/protocol"
)

// Provider is one LLM backend. Complete receives the full, ordered turn list
// for a conversation slot and returns the raw reply text.
type Provider interface {
	Name() string
	DefaultModel() string
	Complete(ctx context.Context, turns []protocol.Turn, model string) (string, error)
}

// Provider names accepted by NewProvider.
const (
	ProviderAuto   = "auto"
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
	ProviderHTTP   = "http"
	ProviderMock   = "mock"
)

var ErrMissingCredentials = errors.New("missing provider credentials")

// Config controls provider construction.
type Config struct {
	Provider         string
	FallbackProvider string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	ClaudeAPIKey  string
	ClaudeBaseURL string
	ClaudeModel   string

	GoogleAPIKey  string
	GeminiBaseURL string
	GeminiModel   string

	HTTPURL   string
	HTTPModel string

	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewProvider builds the configured provider, wrapping it in a Fallback
// when a fallback provider is configured.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	primary, err := newSingleProvider(ctx, cfg, cfg.Provider)
	if err != nil {
		return nil, err
	}
	fb := strings.ToLower(strings.TrimSpace(cfg.FallbackProvider))
	if fb == "" || fb == primary.Name() {
		return primary, nil
	}
	secondary, err := newSingleProvider(ctx, cfg, fb)
	if err != nil {
		return nil, fmt.Errorf("fallback provider: %w", err)
	}
	return NewFallback(primary, secondary), nil
}

func newSingleProvider(ctx context.Context, cfg Config, name string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == ProviderAuto {
		name = autoProvider(cfg)
	}

	switch name {
	case ProviderOpenAI:
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is required for openai", ErrMissingCredentials)
		}
		return NewOpenAIProvider(cfg), nil
	case ProviderClaude:
		if strings.TrimSpace(cfg.ClaudeAPIKey) == "" {
			return nil, fmt.Errorf("%w: CLAUDE_API_KEY is required for claude", ErrMissingCredentials)
		}
		return NewClaudeProvider(cfg), nil
	case ProviderGemini:
		if strings.TrimSpace(cfg.GoogleAPIKey) == "" {
			return nil, fmt.Errorf("%w: GOOGLE_API_KEY is required for gemini", ErrMissingCredentials)
		}
		return NewGeminiProvider(ctx, cfg)
	case ProviderHTTP:
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("LLM_HTTP_URL is required for http provider")
		}
		return NewHTTPProvider(cfg), nil
	case ProviderMock:
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", name)
	}
}

// autoProvider picks the first provider that has credentials configured.
func autoProvider(cfg Config) string {
	switch {
	case strings.TrimSpace(cfg.OpenAIAPIKey) != "":
		return ProviderOpenAI
	case strings.TrimSpace(cfg.ClaudeAPIKey) != "":
		return ProviderClaude
	case strings.TrimSpace(cfg.GoogleAPIKey) != "":
		return ProviderGemini
	case strings.TrimSpace(cfg.HTTPURL) != "":
		return ProviderHTTP
	default:
		return ProviderMock
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
