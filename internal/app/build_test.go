package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/yanyan-huang/pmpal/internal/config"
	"github.com/yanyan-huang/pmpal/internal/conversation"
	"github.com/yanyan-huang/pmpal/internal/memory"
	"github.com/yanyan-huang/pmpal/internal/protocol"
)

var nsSeq atomic.Int64

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		MetricsNamespace: fmt.Sprintf("pmpal_test_app_%d", nsSeq.Add(1)),
		AIProvider:       "mock",
		StoreBackend:     "auto",
		SQLitePath:       filepath.Join(t.TempDir(), "pmpal.db"),
		STTProvider:      "mock",
		FreeLimit:        8,
		LLMTemperature:   0.7,
		LLMMaxTokens:     256,
		HistoryPageLimit: 50,
	}
}

func TestBuildWiresSQLiteStoreAndMockProvider(t *testing.T) {
	ctx := context.Background()
	res, err := Build(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	if res.Config.StoreBackend != memory.BackendSQLite {
		t.Fatalf("StoreBackend = %q, want sqlite", res.Config.StoreBackend)
	}
	if res.Voice.Provider != "mock" || res.Transcriber == nil {
		t.Fatalf("Voice = %+v", res.Voice)
	}
	if res.API == nil || res.API.Router() == nil {
		t.Fatalf("API router not built")
	}

	if _, err := res.Manager.SwitchMode(ctx, "u1", "mentor"); err != nil {
		t.Fatalf("SwitchMode() error = %v", err)
	}
	r, err := res.Manager.ProcessInput(ctx, "u1", "hello", protocol.SourceText)
	if err != nil || r.Kind != conversation.KindAnswer {
		t.Fatalf("ProcessInput() = %+v, %v", r, err)
	}
	if n, _ := res.Store.GetUsage(ctx, "u1"); n != 1 {
		t.Fatalf("usage = %d, want 1", n)
	}
}

func TestBuildVoiceDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.STTProvider = "none"
	res, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()
	if res.Transcriber != nil || res.Voice.Provider != "none" {
		t.Fatalf("Voice = %+v, want disabled", res.Voice)
	}
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.AIProvider = "llama-local"
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("Build() with unknown provider should fail")
	}
}

func TestBuildRejectsMissingPromptsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.PromptsFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("Build() with missing prompts file should fail")
	}
}
