package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
)

func TestWhisperTranscribesUpload(t *testing.T) {
	var gotModel, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
		}
		gotModel = r.FormValue("model")
		if _, hdr, err := r.FormFile("file"); err == nil {
			gotFile = hdr.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  how do I prioritize a roadmap?  "}`)
	}))
	defer srv.Close()

	w, err := NewWhisper("sk-test", srv.URL+"/v1", "", 0)
	if err != nil {
		t.Fatalf("NewWhisper() error = %v", err)
	}
	got, err := w.Transcribe(context.Background(), "note.ogg", strings.NewReader("OggS-audio"))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "how do I prioritize a roadmap?" {
		t.Fatalf("Transcribe() = %q", got)
	}
	if gotModel != "whisper-1" || gotFile != "note.ogg" {
		t.Fatalf("request model=%q file=%q", gotModel, gotFile)
	}
}

func TestWhisperEmptyTranscriptIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"   "}`)
	}))
	defer srv.Close()

	w, _ := NewWhisper("sk-test", srv.URL+"/v1", "", 0)
	if _, err := w.Transcribe(context.Background(), "a.mp3", strings.NewReader("x")); !errors.Is(err, ErrTranscription) {
		t.Fatalf("Transcribe() error = %v, want ErrTranscription", err)
	}
}

func TestWhisperAPIErrorIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"unsupported format","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	w, _ := NewWhisper("sk-test", srv.URL+"/v1", "", 0)
	if _, err := w.Transcribe(context.Background(), "a.xyz", strings.NewReader("x")); !errors.Is(err, ErrTranscription) {
		t.Fatalf("Transcribe() error = %v, want ErrTranscription", err)
	}
}

func TestNewWhisperRequiresKey(t *testing.T) {
	if _, err := NewWhisper(" ", "", "", 0); err == nil {
		t.Fatalf("NewWhisper() without key should fail")
	}
}

func TestMockRejectsEmptyUpload(t *testing.T) {
	m := NewMock("hello")
	if got, err := m.Transcribe(context.Background(), "a.ogg", strings.NewReader("audio")); err != nil || got != "hello" {
		t.Fatalf("Transcribe() = %q, %v", got, err)
	}
	if _, err := m.Transcribe(context.Background(), "a.ogg", strings.NewReader("")); !errors.Is(err, ErrTranscription) {
		t.Fatalf("Transcribe(empty) error = %v, want ErrTranscription", err)
	}
}

type stubTranscriber struct {
	name  string
	fail  atomic.Bool
	calls atomic.Int32
}

func (s *stubTranscriber) Name() string { return s.name }

func (s *stubTranscriber) Transcribe(_ context.Context, _ string, audio io.Reader) (string, error) {
	s.calls.Add(1)
	b, _ := io.ReadAll(audio)
	if s.fail.Load() {
		return "", errors.New(s.name + " down")
	}
	return s.name + ":" + string(b), nil
}

func TestFailoverSticksToFallbackUntilItFails(t *testing.T) {
	primary := &stubTranscriber{name: "primary"}
	fallback := &stubTranscriber{name: "fallback"}
	f := NewFailover(primary, fallback)
	ctx := context.Background()

	primary.fail.Store(true)
	if got, err := f.Transcribe(ctx, "a.ogg", strings.NewReader("one")); err != nil || got != "fallback:one" {
		t.Fatalf("Transcribe() = %q, %v", got, err)
	}

	primary.fail.Store(false)
	if got, _ := f.Transcribe(ctx, "a.ogg", strings.NewReader("two")); got != "fallback:two" {
		t.Fatalf("Transcribe() = %q, want fallback to stay active", got)
	}

	fallback.fail.Store(true)
	if got, err := f.Transcribe(ctx, "a.ogg", strings.NewReader("three")); err != nil || got != "primary:three" {
		t.Fatalf("Transcribe() = %q, %v; want primary retried", got, err)
	}
	fallback.fail.Store(false)
	if got, _ := f.Transcribe(ctx, "a.ogg", strings.NewReader("four")); got != "primary:four" {
		t.Fatalf("Transcribe() = %q, want primary active again", got)
	}
}

func TestFailoverBothFail(t *testing.T) {
	primary := &stubTranscriber{name: "primary"}
	fallback := &stubTranscriber{name: "fallback"}
	primary.fail.Store(true)
	fallback.fail.Store(true)
	_, err := NewFailover(primary, fallback).Transcribe(context.Background(), "a.ogg", strings.NewReader("x"))
	if err == nil || !strings.Contains(err.Error(), "primary down") {
		t.Fatalf("Transcribe() error = %v", err)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	tr, err := New(Config{Provider: "mock"})
	if err != nil || tr.Name() != ProviderMock {
		t.Fatalf("New(mock) = %v, %v", tr, err)
	}
	tr, err = New(Config{Provider: "none"})
	if err != nil || tr != nil {
		t.Fatalf("New(none) = %v, %v", tr, err)
	}
	if _, err := New(Config{Provider: "whisper"}); err == nil {
		t.Fatalf("New(whisper) without key should fail")
	}
	tr, err = New(Config{Provider: "whisper", OpenAIAPIKey: "sk", FallbackProvider: "mock"})
	if err != nil || tr.Name() != "whisper+mock" {
		t.Fatalf("New(whisper+mock) = %v, %v", tr, err)
	}
	if _, err := New(Config{Provider: "deepgram"}); err == nil {
		t.Fatalf("New(deepgram) should fail")
	}
}

func TestLocalRunsWhisperCLI(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "whisper-cli")
	body := "#!/bin/sh\nout=\"\"\nwhile [ $# -gt 0 ]; do\n  case \"$1\" in\n    -of) out=\"$2\"; shift ;;\n  esac\n  shift\ndone\nprintf '  mock interview answer \\n' > \"$out.txt\"\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	model := filepath.Join(dir, "ggml-tiny.en.bin")
	if err := os.WriteFile(model, []byte("model"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	l, err := NewLocal(script, model, "", 0)
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	got, err := l.Transcribe(context.Background(), "voice.oga", strings.NewReader("OggS"))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "mock interview answer" {
		t.Fatalf("Transcribe() = %q", got)
	}
}

func TestNewLocalRequiresModel(t *testing.T) {
	if _, err := NewLocal("sh", "", "", 0); err == nil {
		t.Fatalf("NewLocal() without model should fail")
	}
}
