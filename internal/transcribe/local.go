package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Local runs a whisper.cpp CLI build against the uploaded file.
type Local struct {
	cliPath   string
	modelPath string
	language  string
	timeout   time.Duration
}

func NewLocal(cli, modelPath, language string, timeout time.Duration) (*Local, error) {
	cli = strings.TrimSpace(cli)
	if cli == "" {
		cli = "whisper-cli"
	}
	cliPath, err := exec.LookPath(cli)
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp CLI not found (%s)", cli)
	}
	modelPath = strings.TrimSpace(modelPath)
	if modelPath == "" {
		return nil, errors.New("LOCAL_WHISPER_MODEL_PATH is required for STT_PROVIDER=local")
	}
	if !filepath.IsAbs(modelPath) {
		if wd, err := os.Getwd(); err == nil {
			modelPath = filepath.Join(wd, modelPath)
		}
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("whisper.cpp model not found: %s", modelPath)
	}
	language = strings.TrimSpace(language)
	if language == "" {
		language = "en"
	}
	return &Local{cliPath: cliPath, modelPath: modelPath, language: language, timeout: timeout}, nil
}

func (l *Local) Name() string { return ProviderLocal }

func (l *Local) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	tmpDir, err := os.MkdirTemp("", "pmpal-whisper-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".ogg"
	}
	inPath := filepath.Join(tmpDir, "audio"+ext)
	f, err := os.Create(inPath)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, audio); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("%w: read audio: %w", ErrTranscription, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	outPrefix := filepath.Join(tmpDir, "out")
	cmd := exec.CommandContext(ctx, l.cliPath,
		"-m", l.modelPath,
		"-f", inPath,
		"-l", l.language,
		"-otxt",
		"-of", outPrefix,
		"-nt",
	)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", context.Canceled
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: whisper.cpp timed out", ErrTranscription)
		}
		detail := strings.TrimSpace(stderr.String())
		// whisper.cpp is chatty; keep the tail.
		if len(detail) > 2<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(2<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("%w: whisper.cpp: %s", ErrTranscription, detail)
	}

	b, err := os.ReadFile(outPrefix + ".txt")
	if err != nil {
		return "", fmt.Errorf("%w: whisper.cpp output: %w", ErrTranscription, err)
	}
	return finalize("whisper.cpp", string(b))
}
