package httpapi

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/yanyan-huang/pmpal/internal/llm"
	"github.com/yanyan-huang/pmpal/internal/memory"
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	AIProvider   string            `json:"ai_provider"`
	StoreBackend string            `json:"store_backend"`
	STTProvider  string            `json:"stt_provider"`
	FreeLimit    int               `json:"free_limit"`
	Modes        []string          `json:"modes"`
	Checks       []onboardingCheck `json:"checks"`
}

// handleOnboardingStatus reports which parts of the deployment are
// configured and what to set to fix the rest.
func (s *Server) handleOnboardingStatus(w http.ResponseWriter, _ *http.Request) {
	checks := make([]onboardingCheck, 0, 8)
	checks = append(checks, s.providerChecks()...)
	checks = append(checks, s.storeCheck())
	checks = append(checks, s.voiceCheck())
	checks = append(checks, s.quotaCheck())
	if c, ok := s.promptsCheck(); ok {
		checks = append(checks, c)
	}

	stt := "none"
	if s.transcriber != nil {
		stt = s.transcriber.Name()
	}
	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		AIProvider:   s.manager.ProviderName(),
		StoreBackend: s.cfg.StoreBackend,
		STTProvider:  stt,
		FreeLimit:    s.cfg.FreeLimit,
		Modes:        s.manager.Registry().Modes(),
		Checks:       checks,
	})
}

func (s *Server) providerChecks() []onboardingCheck {
	active := s.manager.ProviderName()
	checks := []onboardingCheck{{
		ID:     "ai_provider",
		Status: "ok",
		Label:  "AI provider",
		Detail: active,
	}}
	for _, name := range strings.Split(active, "+") {
		if name == llm.ProviderMock {
			checks = append(checks, onboardingCheck{
				ID:     "ai_provider_mock",
				Status: "warn",
				Label:  "AI provider is mock",
				Detail: "Replies are canned echoes.",
				Fix:    "Set OPENAI_API_KEY, CLAUDE_API_KEY or GOOGLE_API_KEY and AI_PROVIDER.",
			})
		}
	}
	return checks
}

func (s *Server) storeCheck() onboardingCheck {
	c := onboardingCheck{ID: "user_store", Status: "ok", Label: "User store", Detail: s.cfg.StoreBackend}
	switch s.cfg.StoreBackend {
	case memory.BackendMemory:
		c.Status = "warn"
		c.Detail = "in-memory only"
		c.Fix = "Set DATABASE_URL, SQLITE_PATH or STORAGE_DIR to keep users across restarts."
	case memory.BackendFile:
		c.Detail = fmt.Sprintf("file (%s)", s.cfg.StorageDir)
	case memory.BackendSQLite:
		c.Detail = fmt.Sprintf("sqlite (%s)", s.cfg.SQLitePath)
	case memory.BackendFirestore:
		c.Detail = fmt.Sprintf("firestore (%s)", s.cfg.FirebaseProjectID)
	}
	return c
}

func (s *Server) voiceCheck() onboardingCheck {
	if s.transcriber == nil {
		return onboardingCheck{
			ID:     "voice_input",
			Status: "warn",
			Label:  "Voice input",
			Detail: "disabled",
			Fix:    "Set OPENAI_API_KEY (whisper) or STT_PROVIDER=local with LOCAL_WHISPER_MODEL_PATH.",
		}
	}
	return onboardingCheck{ID: "voice_input", Status: "ok", Label: "Voice input", Detail: s.transcriber.Name()}
}

func (s *Server) quotaCheck() onboardingCheck {
	if s.cfg.FreeLimit <= 0 {
		return onboardingCheck{ID: "quota", Status: "warn", Label: "Free-tier quota", Detail: "disabled", Fix: "Set FREE_LIMIT to a positive number."}
	}
	detail := fmt.Sprintf("%d free responses per user, %d whitelisted", s.cfg.FreeLimit, len(s.cfg.WhitelistedUsers))
	c := onboardingCheck{ID: "quota", Status: "ok", Label: "Free-tier quota", Detail: detail}
	if strings.TrimSpace(s.cfg.QuotaContact) == "" {
		c.Status = "warn"
		c.Fix = "Set QUOTA_CONTACT so users know where to ask for more access."
	}
	return c
}

func (s *Server) promptsCheck() (onboardingCheck, bool) {
	path := strings.TrimSpace(s.cfg.PromptsFile)
	if path == "" {
		return onboardingCheck{}, false
	}
	if _, err := os.Stat(path); err != nil {
		return onboardingCheck{ID: "prompts_file", Status: "error", Label: "Prompt catalog", Detail: err.Error()}, true
	}
	return onboardingCheck{ID: "prompts_file", Status: "ok", Label: "Prompt catalog", Detail: path}, true
}
