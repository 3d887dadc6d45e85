package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the PM Pal service and CLI.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	LogLevel         string
	LogFormat        string

	AIProvider         string
	AIFallbackProvider string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIModel        string
	ClaudeAPIKey       string
	ClaudeBaseURL      string
	ClaudeModel        string
	GoogleAPIKey       string
	GeminiBaseURL      string
	GeminiModel        string
	LLMHTTPURL         string
	LLMHTTPModel       string
	LLMTemperature     float64
	LLMMaxTokens       int
	LLMTimeout         time.Duration
	UserModelOverrides map[string]string

	StoreBackend      string
	DatabaseURL       string
	SQLitePath        string
	StorageDir        string
	FirebaseProjectID string

	PromptsFile       string
	WhitelistedUsers  []string
	FreeLimit         int
	QuotaContact      string
	ReplyMaxWords     int
	HistoryPageLimit  int
	MaxVoiceUploadMiB int

	STTProvider           string
	STTFallbackProvider   string
	STTModel              string
	STTTimeout            time.Duration
	LocalWhisperCLI       string
	LocalWhisperModelPath string
	LocalWhisperLanguage  string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "pmpal"),
		LogLevel:              envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:             envOrDefault("APP_LOG_FORMAT", "json"),
		AIProvider:            strings.ToLower(envOrDefault("AI_PROVIDER", "auto")),
		AIFallbackProvider:    strings.ToLower(stringsTrimSpace("AI_FALLBACK_PROVIDER")),
		OpenAIAPIKey:          stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:         stringsTrimSpace("OPENAI_BASE_URL"),
		OpenAIModel:           stringsTrimSpace("OPENAI_MODEL"),
		ClaudeAPIKey:          stringsTrimSpace("CLAUDE_API_KEY"),
		ClaudeBaseURL:         stringsTrimSpace("CLAUDE_BASE_URL"),
		ClaudeModel:           stringsTrimSpace("CLAUDE_MODEL"),
		GoogleAPIKey:          stringsTrimSpace("GOOGLE_API_KEY"),
		GeminiBaseURL:         stringsTrimSpace("GEMINI_BASE_URL"),
		GeminiModel:           stringsTrimSpace("GEMINI_MODEL"),
		LLMHTTPURL:            stringsTrimSpace("LLM_HTTP_URL"),
		LLMHTTPModel:          stringsTrimSpace("LLM_HTTP_MODEL"),
		StoreBackend:          strings.ToLower(envOrDefault("STORE_BACKEND", "auto")),
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
		SQLitePath:            stringsTrimSpace("SQLITE_PATH"),
		StorageDir:            stringsTrimSpace("STORAGE_DIR"),
		FirebaseProjectID:     stringsTrimSpace("FIREBASE_PROJECT_ID"),
		PromptsFile:           stringsTrimSpace("PROMPTS_FILE"),
		QuotaContact:          stringsTrimSpace("QUOTA_CONTACT"),
		STTProvider:           strings.ToLower(envOrDefault("STT_PROVIDER", "auto")),
		STTFallbackProvider:   strings.ToLower(stringsTrimSpace("STT_FALLBACK_PROVIDER")),
		STTModel:              envOrDefault("STT_MODEL", "whisper-1"),
		LocalWhisperCLI:       envOrDefault("LOCAL_WHISPER_CLI", "whisper-cli"),
		LocalWhisperModelPath: envOrDefault("LOCAL_WHISPER_MODEL_PATH", ".models/whisper/ggml-base.bin"),
		LocalWhisperLanguage:  envOrDefault("LOCAL_WHISPER_LANGUAGE", "en"),
		ShutdownTimeout:       15 * time.Second,
		LLMTemperature:        0.7,
		LLMMaxTokens:          1024,
		LLMTimeout:            60 * time.Second,
		FreeLimit:             8,
		HistoryPageLimit:      200,
		MaxVoiceUploadMiB:     25,
		STTTimeout:            60 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTemperature, err = floatFromEnv("LLM_TEMPERATURE", cfg.LLMTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxTokens, err = intFromEnv("LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.UserModelOverrides, err = mapFromEnv("USER_MODEL_OVERRIDES")
	if err != nil {
		return Config{}, err
	}
	cfg.WhitelistedUsers = listFromEnv("WHITELISTED_USER_IDS")
	cfg.FreeLimit, err = intFromEnv("FREE_LIMIT", cfg.FreeLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.ReplyMaxWords, err = intFromEnv("REPLY_MAX_WORDS", cfg.ReplyMaxWords)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryPageLimit, err = intFromEnv("HISTORY_PAGE_LIMIT", cfg.HistoryPageLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxVoiceUploadMiB, err = intFromEnv("MAX_VOICE_UPLOAD_MIB", cfg.MaxVoiceUploadMiB)
	if err != nil {
		return Config{}, err
	}
	cfg.STTTimeout, err = durationFromEnv("STT_TIMEOUT", cfg.STTTimeout)
	if err != nil {
		return Config{}, err
	}

	if cfg.STTProvider == "auto" {
		// Whisper rides on the OpenAI key; without it voice input is off.
		cfg.STTProvider = "none"
		if cfg.OpenAIAPIKey != "" {
			cfg.STTProvider = "whisper"
		}
	}

	if cfg.LLMTemperature < 0 || cfg.LLMTemperature > 2 {
		return Config{}, fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2")
	}
	if cfg.LLMMaxTokens <= 0 {
		return Config{}, fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}
	if cfg.LLMTimeout <= 0 {
		return Config{}, fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	if cfg.ReplyMaxWords < 0 {
		return Config{}, fmt.Errorf("REPLY_MAX_WORDS must be >= 0")
	}
	if cfg.HistoryPageLimit <= 0 {
		return Config{}, fmt.Errorf("HISTORY_PAGE_LIMIT must be positive")
	}
	if cfg.MaxVoiceUploadMiB <= 0 {
		return Config{}, fmt.Errorf("MAX_VOICE_UPLOAD_MIB must be positive")
	}
	if cfg.StoreBackend == "firestore" && cfg.FirebaseProjectID == "" {
		return Config{}, fmt.Errorf("FIREBASE_PROJECT_ID is required for STORE_BACKEND=firestore")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

// listFromEnv splits a comma separated value, dropping empty items.
func listFromEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(stringsTrimSpace(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// mapFromEnv parses "user1=model-a,user2=model-b".
func mapFromEnv(key string) (map[string]string, error) {
	items := listFromEnv(key)
	if len(items) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(items))
	for _, item := range items {
		k, v, ok := strings.Cut(item, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("%s parse error: expected user=model, got %q", key, item)
		}
		out[k] = v
	}
	return out, nil
}
