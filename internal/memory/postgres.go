package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanyan-huang/pmpal/internal/protocol"
)

// PostgresStore persists users, memory slots and history in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			usage_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_active_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS memory_turns (
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			mode TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			PRIMARY KEY (user_id, mode, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS history (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			mode TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_user_seq ON history (user_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// pgQuerier is satisfied by both the pool and a transaction.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func ensurePGUser(ctx context.Context, q pgQuerier, userID string) error {
	if err := validUserID(userID); err != nil {
		return err
	}
	if _, err := q.Exec(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	if err := ensurePGUser(ctx, s.pool, userID); err != nil {
		return User{}, err
	}
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, mode, model, usage_count, created_at, last_active_at FROM users WHERE id=$1`,
		userID).Scan(&u.ID, &u.Mode, &u.Model, &u.UsageCount, &u.CreatedAt, &u.LastActiveAt)
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.LastActiveAt = u.LastActiveAt.UTC()
	return u, nil
}

func (s *PostgresStore) getColumn(ctx context.Context, userID, column string) (string, error) {
	if err := ensurePGUser(ctx, s.pool, userID); err != nil {
		return "", err
	}
	var v string
	if err := s.pool.QueryRow(ctx, `SELECT `+column+` FROM users WHERE id=$1`, userID).Scan(&v); err != nil {
		return "", fmt.Errorf("get %s: %w", column, err)
	}
	return v, nil
}

func (s *PostgresStore) setColumn(ctx context.Context, userID, column, value string) error {
	if err := ensurePGUser(ctx, s.pool, userID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `UPDATE users SET `+column+`=$1, last_active_at=now() WHERE id=$2`, value, userID)
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	return nil
}

func (s *PostgresStore) GetMode(ctx context.Context, userID string) (string, error) {
	return s.getColumn(ctx, userID, "mode")
}

func (s *PostgresStore) SetMode(ctx context.Context, userID, mode string) error {
	return s.setColumn(ctx, userID, "mode", mode)
}

func (s *PostgresStore) SwitchMode(ctx context.Context, userID, mode string, seed []protocol.Turn) error {
	return s.inTx(ctx, userID, func(tx pgx.Tx) error {
		if err := putPGMemory(ctx, tx, userID, mode, seed); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET mode=$1 WHERE id=$2`, mode, userID); err != nil {
			return fmt.Errorf("set mode: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) GetModel(ctx context.Context, userID string) (string, error) {
	return s.getColumn(ctx, userID, "model")
}

func (s *PostgresStore) SetModel(ctx context.Context, userID, model string) error {
	return s.setColumn(ctx, userID, "model", model)
}

func (s *PostgresStore) GetMemory(ctx context.Context, userID string) (map[string][]protocol.Turn, error) {
	if err := ensurePGUser(ctx, s.pool, userID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT mode, role, content FROM memory_turns WHERE user_id=$1 ORDER BY mode, seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("query memory: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]protocol.Turn)
	for rows.Next() {
		var mode, role, content string
		if err := rows.Scan(&mode, &role, &content); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		out[mode] = append(out[mode], protocol.Turn{Role: protocol.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) PutMemory(ctx context.Context, userID, mode string, turns []protocol.Turn) error {
	return s.inTx(ctx, userID, func(tx pgx.Tx) error {
		return putPGMemory(ctx, tx, userID, mode, turns)
	})
}

func putPGMemory(ctx context.Context, tx pgx.Tx, userID, mode string, turns []protocol.Turn) error {
	if _, err := tx.Exec(ctx, `DELETE FROM memory_turns WHERE user_id=$1 AND mode=$2`, userID, mode); err != nil {
		return fmt.Errorf("clear memory slot: %w", err)
	}
	batch := &pgx.Batch{}
	for i, t := range turns {
		batch.Queue(`INSERT INTO memory_turns (user_id, mode, seq, role, content) VALUES ($1, $2, $3, $4, $5)`,
			userID, mode, i, string(t.Role), t.Content)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert memory turns: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, userID string, records ...HistoryRecord) error {
	return s.inTx(ctx, userID, func(tx pgx.Tx) error {
		return appendPGHistory(ctx, tx, userID, records)
	})
}

func appendPGHistory(ctx context.Context, tx pgx.Tx, userID string, records []HistoryRecord) error {
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = nowUTC()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO history (id, user_id, mode, source, role, content, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.ID, userID, r.Mode, string(r.Source), string(r.Role), r.Content, r.Timestamp)
		if err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, userID string, limit int) ([]HistoryRecord, error) {
	if err := ensurePGUser(ctx, s.pool, userID); err != nil {
		return nil, err
	}
	query := `SELECT id, mode, source, role, content, created_at FROM history WHERE user_id=$1 ORDER BY seq DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var items []HistoryRecord
	for rows.Next() {
		var (
			r                  HistoryRecord
			source, role, mode string
			createdAt          time.Time
		)
		if err := rows.Scan(&r.ID, &mode, &source, &role, &r.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		r.Mode = mode
		r.Source = protocol.Source(source)
		r.Role = protocol.Role(role)
		r.Timestamp = createdAt.UTC()
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *PostgresStore) GetUsage(ctx context.Context, userID string) (int, error) {
	if err := ensurePGUser(ctx, s.pool, userID); err != nil {
		return 0, err
	}
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT usage_count FROM users WHERE id=$1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("get usage: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) IncrementUsage(ctx context.Context, userID string) error {
	return s.inTx(ctx, userID, func(tx pgx.Tx) error {
		return incrementPGUsage(ctx, tx, userID)
	})
}

func incrementPGUsage(ctx context.Context, tx pgx.Tx, userID string) error {
	if _, err := tx.Exec(ctx, `UPDATE users SET usage_count = usage_count + 1 WHERE id=$1`, userID); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

func (s *PostgresStore) CommitExchange(ctx context.Context, userID string, ex Exchange) error {
	return s.inTx(ctx, userID, func(tx pgx.Tx) error {
		if err := putPGMemory(ctx, tx, userID, ex.Mode, ex.Turns); err != nil {
			return err
		}
		if err := appendPGHistory(ctx, tx, userID, ex.History); err != nil {
			return err
		}
		return incrementPGUsage(ctx, tx, userID)
	})
}

func (s *PostgresStore) inTx(ctx context.Context, userID string, fn func(pgx.Tx) error) error {
	if err := validUserID(userID); err != nil {
		return err
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := ensurePGUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET last_active_at=now() WHERE id=$1`, userID); err != nil {
			return fmt.Errorf("touch user: %w", err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrInvalidUser) {
		return fmt.Errorf("postgres tx: %w", err)
	}
	return err
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
