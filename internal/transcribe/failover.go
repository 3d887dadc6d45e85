package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
)

// Failover prefers the primary backend and switches to the fallback when
// the primary fails. Once the fallback succeeds it stays active until it
// fails; then the primary is retried.
type Failover struct {
	primary        Transcriber
	fallback       Transcriber
	fallbackActive atomic.Bool
}

func NewFailover(primary, fallback Transcriber) *Failover {
	return &Failover{primary: primary, fallback: fallback}
}

func (f *Failover) Name() string { return f.primary.Name() + "+" + f.fallback.Name() }

func (f *Failover) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	// Both backends may need to read the upload.
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("%w: read audio: %w", ErrTranscription, err)
	}

	first, second := f.primary, f.fallback
	if f.fallbackActive.Load() {
		first, second = f.fallback, f.primary
	}

	text, firstErr := first.Transcribe(ctx, filename, bytes.NewReader(data))
	if firstErr == nil {
		return text, nil
	}
	if ctx.Err() != nil || errors.Is(firstErr, context.Canceled) {
		return "", firstErr
	}

	text, secondErr := second.Transcribe(ctx, filename, bytes.NewReader(data))
	if secondErr != nil {
		return "", fmt.Errorf("stt %s failed: %v; stt %s failed: %w", first.Name(), firstErr, second.Name(), secondErr)
	}
	f.fallbackActive.Store(second == f.fallback)
	return text, nil
}
