package memory

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yanyan-huang/pmpal/internal/protocol"
)

// FirestoreStore keeps one document per user in the "users" collection with
// "memory_snapshots" (one doc per mode) and "history_logs" sub-collections.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &FirestoreStore{client: client}, nil
}

type fsUser struct {
	Mode         string    `firestore:"mode"`
	Model        string    `firestore:"model"`
	UsageCount   int       `firestore:"usage_count"`
	CreatedAt    time.Time `firestore:"created_at"`
	LastActiveAt time.Time `firestore:"last_active_at"`
}

type fsTurn struct {
	Role    string `firestore:"role"`
	Content string `firestore:"content"`
}

type fsSnapshot struct {
	Mode      string    `firestore:"mode"`
	Turns     []fsTurn  `firestore:"turns"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type fsHistory struct {
	Mode      string    `firestore:"mode"`
	Source    string    `firestore:"source"`
	Role      string    `firestore:"role"`
	Content   string    `firestore:"content"`
	Timestamp time.Time `firestore:"timestamp"`
}

func (s *FirestoreStore) userDoc(userID string) *firestore.DocumentRef {
	return s.client.Collection("users").Doc(userID)
}

func (s *FirestoreStore) snapshotsCol(userID string) *firestore.CollectionRef {
	return s.userDoc(userID).Collection("memory_snapshots")
}

func (s *FirestoreStore) historyCol(userID string) *firestore.CollectionRef {
	return s.userDoc(userID).Collection("history_logs")
}

// withUser runs fn in a transaction holding the (lazily created) user doc.
// fn may only issue writes; the user doc is written back after it.
func (s *FirestoreStore) withUser(ctx context.Context, userID string, mutates bool, fn func(*firestore.Transaction, *fsUser) error) (fsUser, error) {
	if err := validUserID(userID); err != nil {
		return fsUser{}, err
	}
	var out fsUser
	ref := s.userDoc(userID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var u fsUser
		created := false
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			now := nowUTC()
			u = fsUser{CreatedAt: now, LastActiveAt: now}
			created = true
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&u); err != nil {
				return fmt.Errorf("decode user: %w", err)
			}
		}
		if fn != nil {
			if err := fn(tx, &u); err != nil {
				return err
			}
		}
		if mutates {
			u.LastActiveAt = nowUTC()
		}
		out = u
		if !created && !mutates {
			return nil
		}
		return tx.Set(ref, u)
	})
	if err != nil {
		return fsUser{}, fmt.Errorf("firestore user %s: %w", userID, err)
	}
	return out, nil
}

func (s *FirestoreStore) GetUser(ctx context.Context, userID string) (User, error) {
	u, err := s.withUser(ctx, userID, false, nil)
	if err != nil {
		return User{}, err
	}
	return User{
		ID:           userID,
		Mode:         u.Mode,
		Model:        u.Model,
		UsageCount:   u.UsageCount,
		CreatedAt:    u.CreatedAt.UTC(),
		LastActiveAt: u.LastActiveAt.UTC(),
	}, nil
}

func (s *FirestoreStore) GetMode(ctx context.Context, userID string) (string, error) {
	u, err := s.withUser(ctx, userID, false, nil)
	return u.Mode, err
}

func (s *FirestoreStore) SetMode(ctx context.Context, userID, mode string) error {
	_, err := s.withUser(ctx, userID, true, func(_ *firestore.Transaction, u *fsUser) error {
		u.Mode = mode
		return nil
	})
	return err
}

func (s *FirestoreStore) SwitchMode(ctx context.Context, userID, mode string, seed []protocol.Turn) error {
	_, err := s.withUser(ctx, userID, true, func(tx *firestore.Transaction, u *fsUser) error {
		u.Mode = mode
		return s.putSnapshot(tx, userID, mode, seed)
	})
	return err
}

func (s *FirestoreStore) GetModel(ctx context.Context, userID string) (string, error) {
	u, err := s.withUser(ctx, userID, false, nil)
	return u.Model, err
}

func (s *FirestoreStore) SetModel(ctx context.Context, userID, model string) error {
	_, err := s.withUser(ctx, userID, true, func(_ *firestore.Transaction, u *fsUser) error {
		u.Model = model
		return nil
	})
	return err
}

func (s *FirestoreStore) GetMemory(ctx context.Context, userID string) (map[string][]protocol.Turn, error) {
	if _, err := s.withUser(ctx, userID, false, nil); err != nil {
		return nil, err
	}
	iter := s.snapshotsCol(userID).Documents(ctx)
	defer iter.Stop()

	out := make(map[string][]protocol.Turn)
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore GetMemory: %w", err)
		}
		var doc fsSnapshot
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode memory snapshot: %w", err)
		}
		turns := make([]protocol.Turn, 0, len(doc.Turns))
		for _, t := range doc.Turns {
			turns = append(turns, protocol.Turn{Role: protocol.Role(t.Role), Content: t.Content})
		}
		out[snap.Ref.ID] = turns
	}
	return out, nil
}

func (s *FirestoreStore) putSnapshot(tx *firestore.Transaction, userID, mode string, turns []protocol.Turn) error {
	doc := fsSnapshot{Mode: mode, Turns: make([]fsTurn, 0, len(turns)), UpdatedAt: nowUTC()}
	for _, t := range turns {
		doc.Turns = append(doc.Turns, fsTurn{Role: string(t.Role), Content: t.Content})
	}
	return tx.Set(s.snapshotsCol(userID).Doc(mode), doc)
}

func (s *FirestoreStore) PutMemory(ctx context.Context, userID, mode string, turns []protocol.Turn) error {
	_, err := s.withUser(ctx, userID, true, func(tx *firestore.Transaction, _ *fsUser) error {
		return s.putSnapshot(tx, userID, mode, turns)
	})
	return err
}

func (s *FirestoreStore) appendHistory(tx *firestore.Transaction, userID string, records []HistoryRecord) error {
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = nowUTC()
		}
		doc := fsHistory{
			Mode:      r.Mode,
			Source:    string(r.Source),
			Role:      string(r.Role),
			Content:   r.Content,
			Timestamp: r.Timestamp,
		}
		if err := tx.Create(s.historyCol(userID).Doc(r.ID), doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *FirestoreStore) AppendHistory(ctx context.Context, userID string, records ...HistoryRecord) error {
	_, err := s.withUser(ctx, userID, true, func(tx *firestore.Transaction, _ *fsUser) error {
		return s.appendHistory(tx, userID, records)
	})
	return err
}

func (s *FirestoreStore) ListHistory(ctx context.Context, userID string, limit int) ([]HistoryRecord, error) {
	if _, err := s.withUser(ctx, userID, false, nil); err != nil {
		return nil, err
	}
	q := s.historyCol(userID).OrderBy("timestamp", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []HistoryRecord
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListHistory: %w", err)
		}
		var doc fsHistory
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode history log: %w", err)
		}
		out = append(out, HistoryRecord{
			ID:        snap.Ref.ID,
			Timestamp: doc.Timestamp.UTC(),
			Mode:      doc.Mode,
			Source:    protocol.Source(doc.Source),
			Role:      protocol.Role(doc.Role),
			Content:   doc.Content,
		})
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *FirestoreStore) GetUsage(ctx context.Context, userID string) (int, error) {
	u, err := s.withUser(ctx, userID, false, nil)
	return u.UsageCount, err
}

func (s *FirestoreStore) IncrementUsage(ctx context.Context, userID string) error {
	_, err := s.withUser(ctx, userID, true, func(_ *firestore.Transaction, u *fsUser) error {
		u.UsageCount++
		return nil
	})
	return err
}

func (s *FirestoreStore) CommitExchange(ctx context.Context, userID string, ex Exchange) error {
	_, err := s.withUser(ctx, userID, true, func(tx *firestore.Transaction, u *fsUser) error {
		if err := s.putSnapshot(tx, userID, ex.Mode, ex.Turns); err != nil {
			return err
		}
		if err := s.appendHistory(tx, userID, ex.History); err != nil {
			return err
		}
		u.UsageCount++
		return nil
	})
	return err
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
