package memory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yanyan-huang/pmpal/internal/protocol"
)

var ErrInvalidUser = errors.New("user id is required")

// User is the per-user record owned by the store.
type User struct {
	ID           string    `json:"id"`
	Mode         string    `json:"mode"`
	Model        string    `json:"model,omitempty"`
	UsageCount   int       `json:"usage_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// HistoryRecord is one append-only audit entry.
type HistoryRecord struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Mode      string          `json:"mode"`
	Source    protocol.Source `json:"source,omitempty"`
	Role      protocol.Role   `json:"role"`
	Content   string          `json:"content"`
}

// Exchange is everything one completed exchange writes: the new memory slot
// for Mode, the history records, and one usage increment.
type Exchange struct {
	Mode    string
	Turns   []protocol.Turn
	History []HistoryRecord
}

// Store persists user mode, per-mode memory, history and usage. Every method
// lazily creates the user record on first access.
type Store interface {
	GetUser(ctx context.Context, userID string) (User, error)
	GetMode(ctx context.Context, userID string) (string, error)
	SetMode(ctx context.Context, userID, mode string) error
	GetModel(ctx context.Context, userID string) (string, error)
	SetModel(ctx context.Context, userID, model string) error
	GetMemory(ctx context.Context, userID string) (map[string][]protocol.Turn, error)
	PutMemory(ctx context.Context, userID, mode string, turns []protocol.Turn) error
	AppendHistory(ctx context.Context, userID string, records ...HistoryRecord) error
	ListHistory(ctx context.Context, userID string, limit int) ([]HistoryRecord, error)
	GetUsage(ctx context.Context, userID string) (int, error)
	IncrementUsage(ctx context.Context, userID string) error
	// SwitchMode sets the current mode and replaces that mode's slot with
	// seed in one atomic step.
	SwitchMode(ctx context.Context, userID, mode string, seed []protocol.Turn) error
	// CommitExchange applies an Exchange atomically: either all of it is
	// durable or none of it is.
	CommitExchange(ctx context.Context, userID string, ex Exchange) error
	Close() error
}

func validUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUser
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
