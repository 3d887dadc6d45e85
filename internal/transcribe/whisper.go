package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Whisper transcribes through the OpenAI audio API.
type Whisper struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewWhisper(apiKey, baseURL, model string, timeout time.Duration) (*Whisper, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required for STT_PROVIDER=whisper")
	}
	cfg := openai.DefaultConfig(apiKey)
	if u := strings.TrimSpace(baseURL); u != "" {
		cfg.BaseURL = strings.TrimRight(u, "/")
	}
	if strings.TrimSpace(model) == "" {
		model = openai.Whisper1
	}
	return &Whisper{client: openai.NewClientWithConfig(cfg), model: model, timeout: timeout}, nil
}

func (w *Whisper) Name() string { return ProviderWhisper }

func (w *Whisper) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	ctx, cancel := withTimeout(ctx, w.timeout)
	defer cancel()

	name := filepath.Base(strings.TrimSpace(filename))
	if name == "." || name == "/" || name == "" {
		name = "voice.ogg"
	}
	res, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: name,
		Reader:   audio,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: whisper: %w", ErrTranscription, err)
	}
	return finalize("whisper", res.Text)
}
