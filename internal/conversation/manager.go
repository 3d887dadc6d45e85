package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yanyan-huang/pmpal/internal/llm"
	"github.com/yanyan-huang/pmpal/internal/memory"
	"github.com/yanyan-huang/pmpal/internal/observability"
	"github.com/yanyan-huang/pmpal/internal/policy"
	"github.com/yanyan-huang/pmpal/internal/prompts"
	"github.com/yanyan-huang/pmpal/internal/protocol"
	"github.com/yanyan-huang/pmpal/internal/reply"
	"github.com/yanyan-huang/pmpal/internal/session"
)

// ErrStorage wraps every user store failure surfaced by the Manager.
var ErrStorage = errors.New("user store failure")

// Kind tells the delivery layer what a Reply represents.
type Kind string

const (
	KindAnswer          Kind = "answer"
	KindProviderFailure Kind = "provider_failure"
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindModeRequired    Kind = "mode_required"
	KindInvalidMode     Kind = "invalid_mode"
	KindModeSwitched    Kind = "mode_switched"
	KindEmptyInput      Kind = "empty_input"
)

// Reply is the user-visible outcome of a Manager operation.
type Reply struct {
	Text string `json:"reply"`
	Kind Kind   `json:"kind"`
	Mode string `json:"mode,omitempty"`
}

// Config holds the Manager's policy knobs.
type Config struct {
	FreeLimit      int
	Whitelist      []string
	QuotaContact   string
	ReplyMaxWords  int
	ModelOverrides map[string]string
}

// Status is a read-only view of a user for the delivery layer.
type Status struct {
	UserID       string    `json:"user_id"`
	Mode         string    `json:"mode"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	UsageCount   int       `json:"usage_count"`
	Limit        int       `json:"limit"`
	Remaining    int       `json:"remaining"`
	Unlimited    bool      `json:"unlimited"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Manager orchestrates quota, mode, memory, provider call and persistence
// for each exchange. All mutations for one user run under that user's lock.
type Manager struct {
	store    memory.Store
	registry *prompts.Registry
	adapter  *llm.Adapter
	locks    *session.Locks
	quota    policy.Quota
	cfg      Config
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewManager(store memory.Store, registry *prompts.Registry, adapter *llm.Adapter, cfg Config, metrics *observability.Metrics) *Manager {
	return &Manager{
		store:    store,
		registry: registry,
		adapter:  adapter,
		locks:    session.NewLocks(),
		quota:    policy.NewQuota(cfg.FreeLimit, cfg.Whitelist),
		cfg:      cfg,
		metrics:  metrics,
		now:      time.Now,
	}
}

func (m *Manager) Registry() *prompts.Registry { return m.registry }

func (m *Manager) ProviderName() string { return m.adapter.ProviderName() }

// SwitchMode selects a mode for the user and resets that mode's memory slot
// to the single system turn, even when the user is already in that mode.
func (m *Manager) SwitchMode(ctx context.Context, userID, arg string) (Reply, error) {
	if err := validateUser(userID); err != nil {
		return Reply{}, err
	}
	mode, err := m.registry.Lookup(arg)
	if err != nil {
		m.metrics.IncModeSwitch("invalid", "rejected")
		return Reply{Text: invalidModeText(m.registry), Kind: KindInvalidMode}, nil
	}

	release, err := m.acquire(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	defer release()

	if err := m.store.SwitchMode(ctx, userID, mode.Name, []protocol.Turn{protocol.SystemTurn(mode.Prompt)}); err != nil {
		return Reply{}, m.storageErr("switch_mode", err)
	}

	m.metrics.IncModeSwitch(mode.Name, "ok")
	observability.LoggerFromContext(ctx).Info("mode switched", "user_id", userID, "mode", mode.Name)
	return Reply{Text: modeSwitchedText(mode), Kind: KindModeSwitched, Mode: mode.Name}, nil
}

// ProcessInput runs one exchange: quota gate, mode gate, provider call and
// an atomic commit of memory, history and usage.
func (m *Manager) ProcessInput(ctx context.Context, userID, text string, source protocol.Source) (Reply, error) {
	if err := validateUser(userID); err != nil {
		return Reply{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return m.finish(Reply{Text: emptyInputText, Kind: KindEmptyInput}), nil
	}
	if source != protocol.SourceVoice {
		source = protocol.SourceText
	}

	started := m.now()
	log := observability.LoggerFromContext(ctx).With("user_id", userID, "source", source)

	release, err := m.acquire(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	defer release()
	m.metrics.ObserveStage(observability.StageLockWait, time.Since(started))

	loadStarted := time.Now()
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return Reply{}, m.storageErr("get_user", err)
	}

	if decision := m.quota.Decide(userID, user.UsageCount); !decision.Allowed {
		log.Info("quota exceeded", "usage", user.UsageCount, "limit", decision.Limit)
		return m.finish(Reply{Text: quotaExceededText(decision.Limit, m.cfg.QuotaContact), Kind: KindQuotaExceeded, Mode: user.Mode}), nil
	}

	mode, err := m.registry.Lookup(user.Mode)
	if user.Mode == "" || err != nil {
		return m.finish(Reply{Text: modeRequiredText(m.registry), Kind: KindModeRequired}), nil
	}

	mem, err := m.store.GetMemory(ctx, userID)
	if err != nil {
		return Reply{}, m.storageErr("get_memory", err)
	}
	m.metrics.ObserveStage(observability.StageStoreLoad, time.Since(loadStarted))

	turns := seedSlot(mem[mode.Name], mode.Prompt)
	turns = append(turns, protocol.UserTurn(text))
	receivedAt := m.now()

	res := m.adapter.Generate(ctx, turns, m.modelFor(userID, user.Model))
	if err := ctx.Err(); err != nil {
		log.Info("exchange abandoned", "mode", mode.Name, "error", err)
		return Reply{}, err
	}

	answer := res.Text
	kind := KindAnswer
	if res.Failure != nil {
		kind = KindProviderFailure
		m.metrics.ObserveIndicator("provider_failure")
	} else {
		answer = reply.Truncate(answer, m.cfg.ReplyMaxWords)
	}
	turns = append(turns, protocol.AssistantTurn(answer))

	commitStarted := time.Now()
	if err := m.commitExchange(ctx, userID, mode.Name, source, text, answer, turns, receivedAt); err != nil {
		return Reply{}, err
	}
	m.metrics.ObserveStage(observability.StageStoreCommit, time.Since(commitStarted))
	m.metrics.ObserveStage(observability.StageExchangeTotal, time.Since(started))

	log.Info("exchange completed",
		"mode", mode.Name,
		"model", res.Model,
		"kind", kind,
		"input_preview", policy.Preview(text, 80),
		"turns", len(turns),
	)
	return m.finish(Reply{Text: answer, Kind: kind, Mode: mode.Name}), nil
}

// commitExchange persists one completed exchange. Provider failures are
// committed like answers and consume a usage slot.
func (m *Manager) commitExchange(ctx context.Context, userID, mode string, source protocol.Source, input, answer string, turns []protocol.Turn, receivedAt time.Time) error {
	userAt := receivedAt.UTC().Truncate(time.Microsecond)
	assistantAt := m.now().UTC().Truncate(time.Microsecond)
	if !assistantAt.After(userAt) {
		assistantAt = userAt.Add(time.Microsecond)
	}

	ex := memory.Exchange{
		Mode:  mode,
		Turns: turns,
		History: []memory.HistoryRecord{
			{Timestamp: userAt, Mode: mode, Source: source, Role: protocol.RoleUser, Content: input},
			{Timestamp: assistantAt, Mode: mode, Role: protocol.RoleAssistant, Content: answer},
		},
	}
	if err := m.store.CommitExchange(ctx, userID, ex); err != nil {
		return m.storageErr("commit_exchange", err)
	}
	return nil
}

// Reset clears the user's current mode, like a fresh /start. Memory slots
// are left alone; the next mode switch resets its slot anyway.
func (m *Manager) Reset(ctx context.Context, userID string) (Reply, error) {
	if err := validateUser(userID); err != nil {
		return Reply{}, err
	}
	release, err := m.acquire(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	defer release()

	if err := m.store.SetMode(ctx, userID, ""); err != nil {
		return Reply{}, m.storageErr("set_mode", err)
	}
	return Reply{Text: welcomeText + modeRequiredText(m.registry), Kind: KindModeRequired}, nil
}

// SetModel stores a per-user model override. An empty model clears it.
func (m *Manager) SetModel(ctx context.Context, userID, model string) error {
	if err := validateUser(userID); err != nil {
		return err
	}
	release, err := m.acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	if err := m.store.SetModel(ctx, userID, strings.TrimSpace(model)); err != nil {
		return m.storageErr("set_model", err)
	}
	return nil
}

// Status reports mode, model and quota for a user.
func (m *Manager) Status(ctx context.Context, userID string) (Status, error) {
	if err := validateUser(userID); err != nil {
		return Status{}, err
	}
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return Status{}, m.storageErr("get_user", err)
	}
	decision := m.quota.Decide(userID, user.UsageCount)
	return Status{
		UserID:       userID,
		Mode:         user.Mode,
		Provider:     m.adapter.ProviderName(),
		Model:        m.adapter.ResolveModel(m.modelFor(userID, user.Model)),
		UsageCount:   user.UsageCount,
		Limit:        decision.Limit,
		Remaining:    decision.Remaining,
		Unlimited:    decision.Unlimited,
		CreatedAt:    user.CreatedAt,
		LastActiveAt: user.LastActiveAt,
	}, nil
}

// History returns the newest limit audit records, oldest first.
func (m *Manager) History(ctx context.Context, userID string, limit int) ([]memory.HistoryRecord, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	records, err := m.store.ListHistory(ctx, userID, limit)
	if err != nil {
		return nil, m.storageErr("list_history", err)
	}
	return records, nil
}

// HandleExchange is the delivery boundary for user input. It always
// returns text to show, even when err is non-nil.
func (m *Manager) HandleExchange(ctx context.Context, userID, text string, source protocol.Source) (string, error) {
	r, err := m.ProcessInput(ctx, userID, text, source)
	if err != nil {
		m.logFailure(ctx, "exchange failed", userID, err)
		return ApologyText, err
	}
	return r.Text, nil
}

// HandleModeSwitch is the delivery boundary for /mode.
func (m *Manager) HandleModeSwitch(ctx context.Context, userID, arg string) (string, error) {
	r, err := m.SwitchMode(ctx, userID, arg)
	if err != nil {
		m.logFailure(ctx, "mode switch failed", userID, err)
		return ApologyText, err
	}
	return r.Text, nil
}

func (m *Manager) modelFor(userID, stored string) string {
	if stored != "" {
		return stored
	}
	return m.cfg.ModelOverrides[userID]
}

func (m *Manager) acquire(ctx context.Context, userID string) (func(), error) {
	release, err := m.locks.Acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	m.metrics.SetActiveUserScopes(m.locks.ActiveCount())
	return func() {
		release()
		m.metrics.SetActiveUserScopes(m.locks.ActiveCount())
	}, nil
}

func (m *Manager) finish(r Reply) Reply {
	m.metrics.IncExchange(string(r.Kind))
	return r
}

func (m *Manager) storageErr(op string, err error) error {
	m.metrics.IncStoreError(op)
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func (m *Manager) logFailure(ctx context.Context, msg, userID string, err error) {
	log := observability.LoggerFromContext(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Info(msg, "user_id", userID, "error", err)
		return
	}
	log.Error(msg, "user_id", userID, "error", err)
}

// seedSlot returns a private copy of slot that starts with exactly one
// system turn carrying prompt.
func seedSlot(slot []protocol.Turn, prompt string) []protocol.Turn {
	if len(slot) == 0 || slot[0].Role != protocol.RoleSystem || slot[0].Content != prompt {
		out := make([]protocol.Turn, 0, len(slot)+3)
		out = append(out, protocol.SystemTurn(prompt))
		for _, t := range slot {
			if t.Role != protocol.RoleSystem {
				out = append(out, t)
			}
		}
		return out
	}
	return protocol.CloneTurns(slot)
}

func validateUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return memory.ErrInvalidUser
	}
	return nil
}
