package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yanyan-huang/pmpal/internal/llm"
	"github.com/yanyan-huang/pmpal/internal/memory"
	"github.com/yanyan-huang/pmpal/internal/prompts"
	"github.com/yanyan-huang/pmpal/internal/protocol"
)

type scriptedProvider struct {
	mu     sync.Mutex
	calls  atomic.Int32
	delay  time.Duration
	err    error
	reply  func(turns []protocol.Turn) string
	models []string
	seen   [][]protocol.Turn
}

func (p *scriptedProvider) Name() string         { return "scripted" }
func (p *scriptedProvider) DefaultModel() string { return "scripted-default" }

func (p *scriptedProvider) Complete(ctx context.Context, turns []protocol.Turn, model string) (string, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.models = append(p.models, model)
	p.seen = append(p.seen, turns)
	p.mu.Unlock()
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if p.err != nil {
		return "", p.err
	}
	if p.reply != nil {
		return p.reply(turns), nil
	}
	return fmt.Sprintf("reply to %q", turns[len(turns)-1].Content), nil
}

func newTestManager(t *testing.T, p llm.Provider, cfg Config) (*Manager, memory.Store) {
	t.Helper()
	store := memory.NewInMemoryStore()
	if cfg.FreeLimit == 0 {
		cfg.FreeLimit = 8
	}
	return NewManager(store, prompts.Default(), llm.NewAdapter(p, time.Second, nil), cfg, nil), store
}

func slot(t *testing.T, store memory.Store, userID, mode string) []protocol.Turn {
	t.Helper()
	mem, err := store.GetMemory(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetMemory() error = %v", err)
	}
	return mem[mode]
}

func usage(t *testing.T, store memory.Store, userID string) int {
	t.Helper()
	n, err := store.GetUsage(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetUsage() error = %v", err)
	}
	return n
}

func TestSwitchModeSeedsSingleSystemTurn(t *testing.T) {
	m, store := newTestManager(t, &scriptedProvider{}, Config{})
	ctx := context.Background()
	for _, name := range m.Registry().Modes() {
		r, err := m.SwitchMode(ctx, "u1", name)
		if err != nil {
			t.Fatalf("SwitchMode(%s) error = %v", name, err)
		}
		if r.Kind != KindModeSwitched || r.Mode != name {
			t.Fatalf("SwitchMode(%s) = %+v", name, r)
		}
		prompt, _ := m.Registry().SystemPrompt(name)
		got := slot(t, store, "u1", name)
		if len(got) != 1 || got[0].Role != protocol.RoleSystem || got[0].Content != prompt {
			t.Fatalf("slot %s = %+v, want single system turn", name, got)
		}
		mode, _ := store.GetMode(ctx, "u1")
		if mode != name {
			t.Fatalf("mode = %q, want %q", mode, name)
		}
	}
}

func TestSwitchModeIncludesGreeting(t *testing.T) {
	m, _ := newTestManager(t, &scriptedProvider{}, Config{})
	r, err := m.SwitchMode(context.Background(), "u1", " Coach ")
	if err != nil {
		t.Fatalf("SwitchMode() error = %v", err)
	}
	mode, _ := m.Registry().Lookup("coach")
	if !strings.Contains(r.Text, "Coach Mode") || !strings.HasSuffix(r.Text, mode.Greeting) {
		t.Fatalf("SwitchMode() text = %q", r.Text)
	}
}

func TestSwitchModeInvalidLeavesStateUntouched(t *testing.T) {
	m, store := newTestManager(t, &scriptedProvider{}, Config{})
	ctx := context.Background()
	if _, err := m.SwitchMode(ctx, "u1", "mentor"); err != nil {
		t.Fatalf("SwitchMode() error = %v", err)
	}
	r, err := m.SwitchMode(ctx, "u1", "tutor")
	if err != nil {
		t.Fatalf("SwitchMode() error = %v", err)
	}
	if r.Kind != KindInvalidMode || !strings.Contains(r.Text, "`/mode interviewer`") {
		t.Fatalf("SwitchMode(tutor) = %+v", r)
	}
	if mode, _ := store.GetMode(ctx, "u1"); mode != "mentor" {
		t.Fatalf("mode = %q, want mentor", mode)
	}
}

func TestProcessInputGrowsSlotByTwo(t *testing.T) {
	m, store := newTestManager(t, &scriptedProvider{}, Config{})
	ctx := context.Background()
	if _, err := m.SwitchMode(ctx, "u1", "mentor"); err != nil {
		t.Fatalf("SwitchMode() error = %v", err)
	}
	system := slot(t, store, "u1", "mentor")[0]

	for i := 1; i <= 3; i++ {
		r, err := m.ProcessInput(ctx, "u1", fmt.Sprintf("question %d", i), protocol.SourceText)
		if err != nil {
			t.Fatalf("ProcessInput() error = %v", err)
		}
		if r.Kind != KindAnswer {
			t.Fatalf("Kind = %q, want answer", r.Kind)
		}
		got := slot(t, store, "u1", "mentor")
		if len(got) != 1+2*i {
			t.Fatalf("after %d exchanges slot has %d turns, want %d", i, len(got), 1+2*i)
		}
		if got[0] != system {
			t.Fatalf("system turn changed: %+v", got[0])
		}
		if got[len(got)-2].Role != protocol.RoleUser || got[len(got)-1].Role != protocol.RoleAssistant {
			t.Fatalf("last pair roles = %s,%s", got[len(got)-2].Role, got[len(got)-1].Role)
		}
	}
}

func TestProcessInputSendsFullSlotToProvider(t *testing.T) {
	p := &scriptedProvider{}
	m, _ := newTestManager(t, p, Config{})
	ctx := context.Background()
	_, _ = m.SwitchMode(ctx, "u1", "coach")
	_, _ = m.ProcessInput(ctx, "u1", "first", protocol.SourceText)
	_, _ = m.ProcessInput(ctx, "u1", "second", protocol.SourceText)

	last := p.seen[len(p.seen)-1]
	if len(last) != 4 {
		t.Fatalf("provider saw %d turns, want 4", len(last))
	}
	if last[0].Role != protocol.RoleSystem || last[3].Content != "second" {
		t.Fatalf("provider turns = %+v", last)
	}
}

func TestQuotaGateIsIdempotent(t *testing.T) {
	p := &scriptedProvider{}
	m, store := newTestManager(t, p, Config{QuotaContact: "team@pmpal.example"})
	ctx := context.Background()
	_, _ = m.SwitchMode(ctx, "u1", "mentor")
	for i := 0; i < 8; i++ {
		if _, err := m.ProcessInput(ctx, "u1", "hi", protocol.SourceText); err != nil {
			t.Fatalf("ProcessInput() error = %v", err)
		}
	}
	before := slot(t, store, "u1", "mentor")
	calls := p.calls.Load()

	var first string
	for i := 0; i < 3; i++ {
		r, err := m.ProcessInput(ctx, "u1", "one more", protocol.SourceText)
		if err != nil {
			t.Fatalf("ProcessInput() error = %v", err)
		}
		if r.Kind != KindQuotaExceeded {
			t.Fatalf("Kind = %q, want quota_exceeded", r.Kind)
		}
		if first == "" {
			first = r.Text
		} else if r.Text != first {
			t.Fatalf("quota message changed between calls")
		}
	}
	if !strings.Contains(first, "team@pmpal.example") || !strings.Contains(first, "8 free") {
		t.Fatalf("quota text = %q", first)
	}
	if got := usage(t, store, "u1"); got != 8 {
		t.Fatalf("usage = %d, want 8", got)
	}
	if got := slot(t, store, "u1", "mentor"); len(got) != len(before) {
		t.Fatalf("memory changed under quota gate: %d -> %d", len(before), len(got))
	}
	if p.calls.Load() != calls {
		t.Fatalf("provider was called under quota gate")
	}
}

func TestWhitelistedUserBypassesQuota(t *testing.T) {
	m, store := newTestManager(t, &scriptedProvider{}, Config{FreeLimit: 1, Whitelist: []string{"vip"}})
	ctx := context.Background()
	_, _ = m.SwitchMode(ctx, "vip", "mentor")
	for i := 0; i < 3; i++ {
		r, err := m.ProcessInput(ctx, "vip", "hi", protocol.SourceText)
		if err != nil || r.Kind != KindAnswer {
			t.Fatalf("ProcessInput() = %+v, %v", r, err)
		}
	}
	if got := usage(t, store, "vip"); got != 3 {
		t.Fatalf("usage = %d, want 3", got)
	}
}

func TestSwitchToSameModeDiscardsHistory(t *testing.T) {
	m, store := newTestManager(t, &scriptedProvider{}, Config{FreeLimit: 100})
	ctx := context.Background()
	_, _ = m.SwitchMode(ctx, "u1", "coach")
	for i := 0; i < 5; i++ {
		if _, err := m.ProcessInput(ctx, "u1", "case study please", protocol.SourceText); err != nil {
			t.Fatalf("ProcessInput() error = %v", err)
		}
	}
	if got := len(slot(t, store, "u1", "coach")); got != 11 {
		t.Fatalf("slot has %d turns, want 11", got)
	}

	if _, err := m.SwitchMode(ctx, "u1", "coach"); err != nil {
		t.Fatalf("SwitchMode() error = %v", err)
	}
	got := slot(t, store, "u1", "coach")
	if len(got) != 1 || got[0].Role != protocol.RoleSystem {
		t.Fatalf("slot after re-switch = %+v, want only the system turn", got)
	}
}

func TestConcurrentExchangesForSameUser(t *testing.T) {
	p := &scriptedProvider{delay: 30 * time.Millisecond}
	m, store := newTestManager(t, p, Config{})
	ctx := context.Background()
	_, _ = m.SwitchMode(ctx, "u1", "interviewer")
	initial := len(slot(t, store, "u1", "interviewer"))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 2; i++ {
		msg := fmt.Sprintf("answer %d", i)
		g.Go(func() error {
			_, err := m.ProcessInput(gctx, "u1", msg, protocol.SourceText)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("ProcessInput() error = %v", err)
	}

	got := slot(t, store, "u1", "interviewer")
	if len(got) != initial+4 {
		t.Fatalf("slot has %d turns, want %d", len(got), initial+4)
	}
	for i := 1; i < len(got); i += 2 {
		if got[i].Role != protocol.RoleUser || got[i+1].Role != protocol.RoleAssistant {
			t.Fatalf("turns interleaved at %d: %+v", i, got)
		}
		if got[i+1].Content != fmt.Sprintf("reply to %q", got[i].Content) {
			t.Fatalf("pair %d mismatched: %q / %q", i, got[i].Content, got[i+1].Content)
		}
	}
	if u := usage(t, store, "u1"); u != 2 {
		t.Fatalf("usage = %d, want 2", u)
	}
}

func TestDifferentUsersRunInParallel(t *testing.T) {
	p := &scriptedProvider{delay: 150 * time.Millisecond}
	m, _ := newTestManager(t, p, Config{})
	ctx := context.Background()
	users := []string{"a", "b", "c", "d"}
	for _, u := range users {
		_, _ = m.SwitchMode(ctx, u, "mentor")
	}

	started := time.Now()
	var g errgroup.Group
	for _, u := range users {
		g.Go(func() error {
			_, err := m.ProcessInput(ctx, u, "hello", protocol.SourceText)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("ProcessInput() error = %v", err)
	}
	if elapsed := time.Since(started); elapsed > 500*time.Millisecond {
		t.Fatalf("4 users took %v, want them to overlap", elapsed)
	}
}

func TestFreshUserWithoutModeGetsPrompt(t *testing.T) {
	p := &scriptedProvider{}
	m, store := newTestManager(t, p, Config{})
	r, err := m.ProcessInput(context.Background(), "fresh", "hello", protocol.SourceText)
	if err != nil {
		t.Fatalf("ProcessInput() error = %v", err)
	}
	if r.Kind != KindModeRequired || !strings.Contains(r.Text, "Choose a mode") {
		t.Fatalf("ProcessInput() = %+v", r)
	}
	if got := usage(t, store, "fresh"); got != 0 {
		t.Fatalf("usage = %d, want 0", got)
	}
	mem, _ := store.GetMemory(context.Background(), "fresh")
	if len(mem) != 0 {
		t.Fatalf("memory = %v, want empty", mem)
	}
	if p.calls.Load() != 0 {
		t.Fatalf("provider called without a mode")
	}
}

func TestStoredModeMissingFromRegistryNeedsReselect(t *testing.T) {
	m, store := newTestManager(t, &scriptedProvider{}, Config{})
	ctx := context.Background()
	_ = store.SetMode(ctx, "u1", "tutor")
	r, err := m.ProcessInput(ctx, "u1", "hello", protocol.SourceText)
	if err != nil || r.Kind != KindModeRequired {
		t.Fatalf("ProcessInput() = %+v, %v; want mode_required", r, err)
	}
}

func TestInterviewerScenario(t *testing.T) {
	m, store := newTestManager(t, &scriptedProvider{}, Config{})
	ctx := context.Background()
	if _, err := m.SwitchMode(ctx, "u1", "interviewer"); err != nil {
		t.Fatalf("SwitchMode() error = %v", err)
	}
	r, err := m.ProcessInput(ctx, "u1", "Ask me a question", protocol.SourceVoice)
	if err != nil {
		t.Fatalf("ProcessInput() error = %v", err)
	}
	if r.Text == "" || r.Kind != KindAnswer {
		t.Fatalf("ProcessInput() = %+v", r)
	}
	if got := usage(t, store, "u1"); got != 1 {
		t.Fatalf("usage = %d, want 1", got)
	}
	got := slot(t, store, "u1", "interviewer")
	if len(got) != 3 {
		t.Fatalf("slot has %d turns, want 3", len(got))
	}

	hist, err := m.History(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history has %d records, want 2", len(hist))
	}
	if hist[0].Source != protocol.SourceVoice || hist[1].Source != "" {
		t.Fatalf("sources = %q,%q; want voice on the user record only", hist[0].Source, hist[1].Source)
	}
	if !hist[1].Timestamp.After(hist[0].Timestamp) {
		t.Fatalf("timestamps not distinct: %v, %v", hist[0].Timestamp, hist[1].Timestamp)
	}
	if hist[0].Mode != "interviewer" || hist[1].Content != r.Text {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestProviderFailureIsPersistedAndCounted(t *testing.T) {
	m, store := newTestManager(t, &scriptedProvider{err: errors.New("invalid api key")}, Config{})
	ctx := context.Background()
	_, _ = m.SwitchMode(ctx, "u1", "mentor")
	r, err := m.ProcessInput(ctx, "u1", "hi", protocol.SourceText)
	if err != nil {
		t.Fatalf("ProcessInput() error = %v", err)
	}
	if r.Kind != KindProviderFailure || !strings.HasPrefix(r.Text, llm.FailurePrefix) {
		t.Fatalf("ProcessInput() = %+v", r)
	}
	got := slot(t, store, "u1", "mentor")
	if len(got) != 3 || got[2].Content != r.Text {
		t.Fatalf("failure not stored as assistant content: %+v", got)
	}
	if u := usage(t, store, "u1"); u != 1 {
		t.Fatalf("usage = %d, want 1", u)
	}
}

func TestCanceledExchangeCommitsNothing(t *testing.T) {
	p := &scriptedProvider{delay: time.Second}
	m, store := newTestManager(t, p, Config{})
	_, _ = m.SwitchMode(context.Background(), "u1", "mentor")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := m.ProcessInput(ctx, "u1", "hi", protocol.SourceText); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ProcessInput() error = %v, want DeadlineExceeded", err)
	}
	if got := len(slot(t, store, "u1", "mentor")); got != 1 {
		t.Fatalf("slot has %d turns, want 1", got)
	}
	if u := usage(t, store, "u1"); u != 0 {
		t.Fatalf("usage = %d, want 0", u)
	}
	hist, _ := store.ListHistory(context.Background(), "u1", 0)
	if len(hist) != 0 {
		t.Fatalf("history has %d records, want 0", len(hist))
	}
}

type failingCommitStore struct {
	memory.Store
}

func (failingCommitStore) CommitExchange(context.Context, string, memory.Exchange) error {
	return errors.New("disk full")
}

func TestStorageFailureSurfacesAsErrStorage(t *testing.T) {
	store := failingCommitStore{Store: memory.NewInMemoryStore()}
	m := NewManager(store, prompts.Default(), llm.NewAdapter(&scriptedProvider{}, time.Second, nil), Config{FreeLimit: 8}, nil)
	ctx := context.Background()
	_, _ = m.SwitchMode(ctx, "u1", "mentor")

	text, err := m.HandleExchange(ctx, "u1", "hi", protocol.SourceText)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("HandleExchange() error = %v, want ErrStorage", err)
	}
	if text != ApologyText {
		t.Fatalf("HandleExchange() text = %q, want apology", text)
	}
	if got := len(slot(t, store, "u1", "mentor")); got != 1 {
		t.Fatalf("slot has %d turns, want 1", got)
	}
}

type failingSwitchStore struct {
	memory.Store
}

func (failingSwitchStore) SwitchMode(context.Context, string, string, []protocol.Turn) error {
	return errors.New("write conflict")
}

func TestSwitchModeStorageFailureLeavesStateUntouched(t *testing.T) {
	inner := memory.NewInMemoryStore()
	m := NewManager(failingSwitchStore{Store: inner}, prompts.Default(), llm.NewAdapter(&scriptedProvider{}, time.Second, nil), Config{FreeLimit: 8}, nil)
	ctx := context.Background()
	old := []protocol.Turn{protocol.SystemTurn("p"), protocol.UserTurn("q"), protocol.AssistantTurn("a")}
	if err := inner.PutMemory(ctx, "u1", "coach", old); err != nil {
		t.Fatalf("PutMemory() error = %v", err)
	}
	if err := inner.SetMode(ctx, "u1", "mentor"); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}

	text, err := m.HandleModeSwitch(ctx, "u1", "coach")
	if !errors.Is(err, ErrStorage) || text != ApologyText {
		t.Fatalf("HandleModeSwitch() = %q, %v; want apology and ErrStorage", text, err)
	}
	if mode, _ := inner.GetMode(ctx, "u1"); mode != "mentor" {
		t.Fatalf("mode = %q, want mentor", mode)
	}
	if got := len(slot(t, inner, "u1", "coach")); got != 3 {
		t.Fatalf("coach slot has %d turns, want 3", got)
	}
}

func TestEmptyInputIsIgnored(t *testing.T) {
	p := &scriptedProvider{}
	m, store := newTestManager(t, p, Config{})
	_, _ = m.SwitchMode(context.Background(), "u1", "mentor")
	r, err := m.ProcessInput(context.Background(), "u1", "   \n", protocol.SourceText)
	if err != nil || r.Kind != KindEmptyInput {
		t.Fatalf("ProcessInput() = %+v, %v", r, err)
	}
	if p.calls.Load() != 0 || usage(t, store, "u1") != 0 {
		t.Fatalf("empty input reached the provider")
	}
}

func TestReplyTruncation(t *testing.T) {
	long := strings.Repeat("word ", 40) + "end. " + strings.Repeat("more ", 100)
	p := &scriptedProvider{reply: func([]protocol.Turn) string { return long }}
	m, _ := newTestManager(t, p, Config{ReplyMaxWords: 50})
	_, _ = m.SwitchMode(context.Background(), "u1", "mentor")
	r, err := m.ProcessInput(context.Background(), "u1", "tell me everything", protocol.SourceText)
	if err != nil {
		t.Fatalf("ProcessInput() error = %v", err)
	}
	if !strings.HasSuffix(r.Text, "end.") || len(strings.Fields(r.Text)) != 41 {
		t.Fatalf("reply was not cut at the sentence boundary: %q", r.Text)
	}
}

func TestModelResolution(t *testing.T) {
	p := &scriptedProvider{}
	m, _ := newTestManager(t, p, Config{ModelOverrides: map[string]string{"u2": "override-model"}})
	ctx := context.Background()
	for _, u := range []string{"u1", "u2", "u3"} {
		_, _ = m.SwitchMode(ctx, u, "mentor")
	}
	if err := m.SetModel(ctx, "u3", " user-model "); err != nil {
		t.Fatalf("SetModel() error = %v", err)
	}
	for _, u := range []string{"u1", "u2", "u3"} {
		if _, err := m.ProcessInput(ctx, u, "hi", protocol.SourceText); err != nil {
			t.Fatalf("ProcessInput() error = %v", err)
		}
	}
	want := []string{"scripted-default", "override-model", "user-model"}
	for i, w := range want {
		if p.models[i] != w {
			t.Fatalf("call %d used model %q, want %q", i, p.models[i], w)
		}
	}
}

func TestResetClearsModeAndStatus(t *testing.T) {
	m, _ := newTestManager(t, &scriptedProvider{}, Config{})
	ctx := context.Background()
	_, _ = m.SwitchMode(ctx, "u1", "coach")
	_, _ = m.ProcessInput(ctx, "u1", "hi", protocol.SourceText)

	st, err := m.Status(ctx, "u1")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Mode != "coach" || st.UsageCount != 1 || st.Remaining != 7 || st.Model != "scripted-default" || st.Provider != "scripted" {
		t.Fatalf("Status() = %+v", st)
	}

	r, err := m.Reset(ctx, "u1")
	if err != nil || r.Kind != KindModeRequired {
		t.Fatalf("Reset() = %+v, %v", r, err)
	}
	st, _ = m.Status(ctx, "u1")
	if st.Mode != "" || st.UsageCount != 1 {
		t.Fatalf("Status() after reset = %+v", st)
	}
	r, _ = m.ProcessInput(ctx, "u1", "hi again", protocol.SourceText)
	if r.Kind != KindModeRequired {
		t.Fatalf("ProcessInput() after reset kind = %q", r.Kind)
	}
}

func TestEmptyUserIDIsRejected(t *testing.T) {
	m, _ := newTestManager(t, &scriptedProvider{}, Config{})
	if _, err := m.ProcessInput(context.Background(), " ", "hi", protocol.SourceText); !errors.Is(err, memory.ErrInvalidUser) {
		t.Fatalf("ProcessInput() error = %v, want ErrInvalidUser", err)
	}
}
