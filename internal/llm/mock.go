package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/yanyan-huang/pmpal/internal/protocol"
)

const mockModel = "mock-echo"

// MockProvider returns deterministic local replies.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Name() string         { return ProviderMock }
func (p *MockProvider) DefaultModel() string { return mockModel }

func (p *MockProvider) Complete(ctx context.Context, turns []protocol.Turn, model string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	last := "I am listening."
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == protocol.RoleUser {
			if s := strings.TrimSpace(turns[i].Content); s != "" {
				last = s
			}
			break
		}
	}
	exchanges := 0
	for _, t := range turns {
		if t.Role == protocol.RoleUser {
			exchanges++
		}
	}
	return fmt.Sprintf("I heard you: %s (turn %d)", last, exchanges), nil
}
