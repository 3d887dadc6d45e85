package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yanyan-huang/pmpal/internal/protocol"
	"github.com/yanyan-huang/pmpal/internal/session"
)

// userDoc is the whole persisted state of one user. The JSON layout is the
// on-disk format of the file store.
type userDoc struct {
	ID           string                     `json:"id"`
	Mode         string                     `json:"mode"`
	Model        string                     `json:"model,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
	LastActiveAt time.Time                  `json:"last_active_at"`
	UsageCount   int                        `json:"usage_count"`
	Memory       map[string][]protocol.Turn `json:"memory"`
	History      []HistoryRecord            `json:"history"`
}

func newUserDoc(userID string) *userDoc {
	now := nowUTC()
	return &userDoc{
		ID:           userID,
		CreatedAt:    now,
		LastActiveAt: now,
		Memory:       make(map[string][]protocol.Turn),
		History:      []HistoryRecord{},
	}
}

func (d *userDoc) user() User {
	return User{
		ID:           d.ID,
		Mode:         d.Mode,
		Model:        d.Model,
		UsageCount:   d.UsageCount,
		CreatedAt:    d.CreatedAt,
		LastActiveAt: d.LastActiveAt,
	}
}

func (d *userDoc) clone() *userDoc {
	c := *d
	c.Memory = make(map[string][]protocol.Turn, len(d.Memory))
	for mode, turns := range d.Memory {
		c.Memory[mode] = append([]protocol.Turn(nil), turns...)
	}
	c.History = append([]HistoryRecord(nil), d.History...)
	return &c
}

func (d *userDoc) appendHistory(records []HistoryRecord) {
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = nowUTC()
		}
		d.History = append(d.History, r)
	}
}

// docBackend loads and saves whole user documents. load returns (nil, nil)
// for a user that does not exist yet.
type docBackend interface {
	load(userID string) (*userDoc, error)
	save(doc *userDoc) error
	close() error
}

// docStore implements Store on top of a docBackend by read-modify-write of
// the whole document. Each user's document has its own lock; users never
// wait on each other.
type docStore struct {
	locks   *session.Locks
	backend docBackend
}

func newDocStore(backend docBackend) docStore {
	return docStore{locks: session.NewLocks(), backend: backend}
}

func (s *docStore) view(ctx context.Context, userID string, fn func(*userDoc)) error {
	return s.update(ctx, userID, false, func(d *userDoc) { fn(d) })
}

// update loads (or lazily creates) the document, applies fn and saves it
// when fn changed something or the document is new.
func (s *docStore) update(ctx context.Context, userID string, mutates bool, fn func(*userDoc)) error {
	if err := validUserID(userID); err != nil {
		return err
	}
	return s.locks.Do(ctx, userID, func() error {
		doc, err := s.backend.load(userID)
		if err != nil {
			return err
		}
		created := doc == nil
		if created {
			doc = newUserDoc(userID)
		}
		fn(doc)
		if !created && !mutates {
			return nil
		}
		if mutates {
			doc.LastActiveAt = nowUTC()
		}
		return s.backend.save(doc)
	})
}

func (s *docStore) GetUser(ctx context.Context, userID string) (User, error) {
	var u User
	err := s.view(ctx, userID, func(d *userDoc) { u = d.user() })
	return u, err
}

func (s *docStore) GetMode(ctx context.Context, userID string) (string, error) {
	var mode string
	err := s.view(ctx, userID, func(d *userDoc) { mode = d.Mode })
	return mode, err
}

func (s *docStore) SetMode(ctx context.Context, userID, mode string) error {
	return s.update(ctx, userID, true, func(d *userDoc) { d.Mode = mode })
}

func (s *docStore) SwitchMode(ctx context.Context, userID, mode string, seed []protocol.Turn) error {
	return s.update(ctx, userID, true, func(d *userDoc) {
		d.Mode = mode
		d.Memory[mode] = append([]protocol.Turn(nil), seed...)
	})
}

func (s *docStore) GetModel(ctx context.Context, userID string) (string, error) {
	var model string
	err := s.view(ctx, userID, func(d *userDoc) { model = d.Model })
	return model, err
}

func (s *docStore) SetModel(ctx context.Context, userID, model string) error {
	return s.update(ctx, userID, true, func(d *userDoc) { d.Model = model })
}

func (s *docStore) GetMemory(ctx context.Context, userID string) (map[string][]protocol.Turn, error) {
	out := make(map[string][]protocol.Turn)
	err := s.view(ctx, userID, func(d *userDoc) {
		for mode, turns := range d.Memory {
			out[mode] = append([]protocol.Turn(nil), turns...)
		}
	})
	return out, err
}

func (s *docStore) PutMemory(ctx context.Context, userID, mode string, turns []protocol.Turn) error {
	return s.update(ctx, userID, true, func(d *userDoc) {
		d.Memory[mode] = append([]protocol.Turn(nil), turns...)
	})
}

func (s *docStore) AppendHistory(ctx context.Context, userID string, records ...HistoryRecord) error {
	return s.update(ctx, userID, true, func(d *userDoc) { d.appendHistory(records) })
}

func (s *docStore) ListHistory(ctx context.Context, userID string, limit int) ([]HistoryRecord, error) {
	var out []HistoryRecord
	err := s.view(ctx, userID, func(d *userDoc) {
		arr := d.History
		if limit > 0 && limit < len(arr) {
			arr = arr[len(arr)-limit:]
		}
		out = append([]HistoryRecord(nil), arr...)
	})
	return out, err
}

func (s *docStore) GetUsage(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.view(ctx, userID, func(d *userDoc) { n = d.UsageCount })
	return n, err
}

func (s *docStore) IncrementUsage(ctx context.Context, userID string) error {
	return s.update(ctx, userID, true, func(d *userDoc) { d.UsageCount++ })
}

func (s *docStore) CommitExchange(ctx context.Context, userID string, ex Exchange) error {
	return s.update(ctx, userID, true, func(d *userDoc) {
		d.Memory[ex.Mode] = append([]protocol.Turn(nil), ex.Turns...)
		d.appendHistory(ex.History)
		d.UsageCount++
	})
}

func (s *docStore) Close() error {
	return s.backend.close()
}
