package app

import (
	"fmt"
	"strings"

	"github.com/yanyan-huang/pmpal/internal/config"
	"github.com/yanyan-huang/pmpal/internal/observability"
	"github.com/yanyan-huang/pmpal/internal/transcribe"
)

type VoiceInfo struct {
	Provider string
	Detail   string
}

type voiceSetup struct {
	transcriber transcribe.Transcriber
	info        VoiceInfo
}

// resolveTranscriber builds the speech-to-text backend. An explicitly chosen
// backend that cannot start is fatal; a fallback that cannot start only
// drops the fallback.
func resolveTranscriber(cfg config.Config) (voiceSetup, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.STTProvider))
	if provider == "" {
		provider = transcribe.ProviderNone
	}
	tcfg := transcribe.Config{
		Provider:         provider,
		FallbackProvider: cfg.STTFallbackProvider,
		Model:            cfg.STTModel,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		LocalCLI:         cfg.LocalWhisperCLI,
		LocalModelPath:   cfg.LocalWhisperModelPath,
		LocalLanguage:    cfg.LocalWhisperLanguage,
		Timeout:          cfg.STTTimeout,
	}

	tr, err := transcribe.New(tcfg)
	if err != nil && tcfg.FallbackProvider != "" {
		observability.Logger().Warn("stt fallback unavailable", "fallback", tcfg.FallbackProvider, "error", err)
		tcfg.FallbackProvider = ""
		tr, err = transcribe.New(tcfg)
	}
	if err != nil {
		return voiceSetup{}, fmt.Errorf("stt provider %q init failed: %w", provider, err)
	}
	if tr == nil {
		return voiceSetup{info: VoiceInfo{Provider: transcribe.ProviderNone, Detail: "voice input disabled"}}, nil
	}

	detail := tr.Name()
	switch provider {
	case transcribe.ProviderWhisper:
		detail = "openai " + cfg.STTModel
	case transcribe.ProviderLocal:
		detail = "whisper.cpp " + cfg.LocalWhisperModelPath
	}
	return voiceSetup{transcriber: tr, info: VoiceInfo{Provider: tr.Name(), Detail: detail}}, nil
}
