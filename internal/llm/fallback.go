package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/yanyan-huang/pmpal/internal/protocol"
)

// Fallback tries the primary provider first and the secondary on error.
// Caller cancellation never triggers the fallback.
type Fallback struct {
	primary   Provider
	secondary Provider
}

func NewFallback(primary, secondary Provider) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) Name() string {
	return f.primary.Name() + "+" + f.secondary.Name()
}

func (f *Fallback) DefaultModel() string { return f.primary.DefaultModel() }

func (f *Fallback) Complete(ctx context.Context, turns []protocol.Turn, model string) (string, error) {
	text, err := f.primary.Complete(ctx, turns, model)
	if err == nil {
		return text, nil
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return "", err
	}

	// A per-user model override belongs to the primary; the secondary uses
	// its own default.
	fallbackText, fallbackErr := f.secondary.Complete(ctx, turns, "")
	if fallbackErr != nil {
		return "", fmt.Errorf("primary provider error: %w; fallback provider error: %v", err, fallbackErr)
	}
	return fallbackText, nil
}
