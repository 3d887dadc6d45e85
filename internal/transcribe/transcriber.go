package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrTranscription marks any failure to turn audio into usable text,
// including an empty transcript.
var ErrTranscription = errors.New("transcription failed")

// Transcriber turns an uploaded audio file into text. filename carries the
// original extension so the backend can detect the container format.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

const (
	ProviderWhisper = "whisper"
	ProviderLocal   = "local"
	ProviderMock    = "mock"
	ProviderNone    = "none"
)

type Config struct {
	Provider         string
	FallbackProvider string
	Model            string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	LocalCLI         string
	LocalModelPath   string
	LocalLanguage    string
	Timeout          time.Duration
}

// New builds the configured transcriber. ProviderNone returns (nil, nil);
// voice input is then rejected at the delivery layer.
func New(cfg Config) (Transcriber, error) {
	primary, err := newOne(cfg, cfg.Provider)
	if err != nil || primary == nil {
		return primary, err
	}
	fb := strings.ToLower(strings.TrimSpace(cfg.FallbackProvider))
	if fb == "" || fb == ProviderNone || fb == strings.ToLower(strings.TrimSpace(cfg.Provider)) {
		return primary, nil
	}
	secondary, err := newOne(cfg, fb)
	if err != nil {
		return nil, fmt.Errorf("stt fallback: %w", err)
	}
	return NewFailover(primary, secondary), nil
}

func newOne(cfg Config, provider string) (Transcriber, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderWhisper:
		return NewWhisper(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, cfg.Timeout)
	case ProviderLocal:
		return NewLocal(cfg.LocalCLI, cfg.LocalModelPath, cfg.LocalLanguage, cfg.Timeout)
	case ProviderMock:
		return NewMock(""), nil
	case ProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported STT_PROVIDER %q", provider)
	}
}

// finalize trims a backend transcript and turns an empty one into
// ErrTranscription.
func finalize(backend, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s returned an empty transcript", ErrTranscription, backend)
	}
	return text, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
