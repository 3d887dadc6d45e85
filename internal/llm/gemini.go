package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/yanyan-huang/pmpal/internal/protocol"
)

const defaultGeminiModel = "gemini-1.5-pro-latest"

// GeminiProvider uses single-shot generation: the conversation is flattened
// into one prompt string.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

func NewGeminiProvider(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.GoogleAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(cfg.GeminiBaseURL); base != "" {
		cc.HTTPOptions.BaseURL = base
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiProvider{
		client:      client,
		model:       firstNonEmpty(cfg.GeminiModel, defaultGeminiModel),
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
	}, nil
}

func (p *GeminiProvider) Name() string         { return ProviderGemini }
func (p *GeminiProvider) DefaultModel() string { return p.model }

func (p *GeminiProvider) Complete(ctx context.Context, turns []protocol.Turn, model string) (string, error) {
	temp := p.temperature
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if p.maxTokens > 0 {
		cfg.MaxOutputTokens = p.maxTokens
	}

	res, err := p.client.Models.GenerateContent(ctx, firstNonEmpty(model, p.model), genai.Text(Flatten(turns)), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return res.Text(), nil
}

// Flatten renders turns as a single prompt: the system content, a blank
// line, then one "User: ..." or "Assistant: ..." line per turn.
func Flatten(turns []protocol.Turn) string {
	var system []string
	var b strings.Builder
	for _, t := range turns {
		switch t.Role {
		case protocol.RoleSystem:
			system = append(system, t.Content)
		case protocol.RoleAssistant:
			b.WriteString("Assistant: ")
			b.WriteString(t.Content)
			b.WriteString("\n")
		default:
			b.WriteString("User: ")
			b.WriteString(t.Content)
			b.WriteString("\n")
		}
	}
	if len(system) == 0 {
		return b.String()
	}
	return strings.Join(system, "\n") + "\n\n" + b.String()
}
