package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/yanyan-huang/pmpal/internal/protocol"
)

const (
	defaultClaudeModel     = "claude-3-7-sonnet-20250219"
	defaultClaudeMaxTokens = 1024
)

// ClaudeProvider talks to the Anthropic messages API. System turns are sent
// through the system parameter; the rest alternate user/assistant.
type ClaudeProvider struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
}

func NewClaudeProvider(cfg Config) *ClaudeProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.ClaudeAPIKey)}
	if base := strings.TrimSpace(cfg.ClaudeBaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}
	return &ClaudeProvider{
		client:      anthropic.NewClient(opts...),
		model:       firstNonEmpty(cfg.ClaudeModel, defaultClaudeModel),
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

func (p *ClaudeProvider) Name() string         { return ProviderClaude }
func (p *ClaudeProvider) DefaultModel() string { return p.model }

func (p *ClaudeProvider) Complete(ctx context.Context, turns []protocol.Turn, model string) (string, error) {
	system, messages := claudeMessages(turns)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(firstNonEmpty(model, p.model)),
		MaxTokens:   p.maxTokens,
		Messages:    messages,
		Temperature: anthropic.Float(p.temperature),
	}
	if len(system) > 0 {
		params.System = system
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude messages: %w", err)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}

func claudeMessages(turns []protocol.Turn) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case protocol.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: t.Content})
		case protocol.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	return system, messages
}
