package transcribe

import (
	"context"
	"fmt"
	"io"
)

// Mock returns a fixed transcript for any non-empty upload.
type Mock struct {
	text string
}

func NewMock(text string) *Mock {
	if text == "" {
		text = "simulated voice input"
	}
	return &Mock{text: text}
}

func (m *Mock) Name() string { return ProviderMock }

func (m *Mock) Transcribe(ctx context.Context, _ string, audio io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n, err := io.Copy(io.Discard, audio)
	if err != nil {
		return "", fmt.Errorf("%w: read audio: %w", ErrTranscription, err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: empty audio upload", ErrTranscription)
	}
	return finalize("mock", m.text)
}
