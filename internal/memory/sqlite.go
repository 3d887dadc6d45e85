package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/yanyan-huang/pmpal/internal/protocol"
)

// SQLiteStore persists users, memory slots and history in a single SQLite
// file. Times are stored as unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			usage_count INTEGER NOT NULL DEFAULT 0,
			created_at_unix_nano INTEGER NOT NULL,
			last_active_at_unix_nano INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS memory_turns (
			user_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			PRIMARY KEY (user_id, mode, seq),
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS history (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at_unix_nano INTEGER NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_user ON history (user_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite on %q: %w", stmt, err)
		}
	}
	return nil
}

// sqlExecer is satisfied by both *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) ensureUser(ctx context.Context, q sqlExecer, userID string) error {
	if err := validUserID(userID); err != nil {
		return err
	}
	now := nowUTC().UnixNano()
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, created_at_unix_nano, last_active_at_unix_nano) VALUES (?, ?, ?)`,
		userID, now, now)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) touch(ctx context.Context, q sqlExecer, userID string) error {
	_, err := q.ExecContext(ctx, `UPDATE users SET last_active_at_unix_nano=? WHERE id=?`, nowUTC().UnixNano(), userID)
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (User, error) {
	if err := s.ensureUser(ctx, s.db, userID); err != nil {
		return User{}, err
	}
	var (
		u                 User
		created, lastSeen int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, mode, model, usage_count, created_at_unix_nano, last_active_at_unix_nano FROM users WHERE id=?`,
		userID).Scan(&u.ID, &u.Mode, &u.Model, &u.UsageCount, &created, &lastSeen)
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = time.Unix(0, created).UTC()
	u.LastActiveAt = time.Unix(0, lastSeen).UTC()
	return u, nil
}

func (s *SQLiteStore) getColumn(ctx context.Context, userID, column string) (string, error) {
	if err := s.ensureUser(ctx, s.db, userID); err != nil {
		return "", err
	}
	var v string
	if err := s.db.QueryRowContext(ctx, `SELECT `+column+` FROM users WHERE id=?`, userID).Scan(&v); err != nil {
		return "", fmt.Errorf("get %s: %w", column, err)
	}
	return v, nil
}

func (s *SQLiteStore) setColumn(ctx context.Context, userID, column, value string) error {
	if err := s.ensureUser(ctx, s.db, userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+column+`=?, last_active_at_unix_nano=? WHERE id=?`,
		value, nowUTC().UnixNano(), userID)
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	return nil
}

func (s *SQLiteStore) GetMode(ctx context.Context, userID string) (string, error) {
	return s.getColumn(ctx, userID, "mode")
}

func (s *SQLiteStore) SetMode(ctx context.Context, userID, mode string) error {
	return s.setColumn(ctx, userID, "mode", mode)
}

func (s *SQLiteStore) SwitchMode(ctx context.Context, userID, mode string, seed []protocol.Turn) error {
	return s.inTx(ctx, userID, func(tx *sql.Tx) error {
		if err := s.putMemory(ctx, tx, userID, mode, seed); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET mode=? WHERE id=?`, mode, userID); err != nil {
			return fmt.Errorf("set mode: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) GetModel(ctx context.Context, userID string) (string, error) {
	return s.getColumn(ctx, userID, "model")
}

func (s *SQLiteStore) SetModel(ctx context.Context, userID, model string) error {
	return s.setColumn(ctx, userID, "model", model)
}

func (s *SQLiteStore) GetMemory(ctx context.Context, userID string) (map[string][]protocol.Turn, error) {
	if err := s.ensureUser(ctx, s.db, userID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT mode, role, content FROM memory_turns WHERE user_id=? ORDER BY mode, seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("query memory: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]protocol.Turn)
	for rows.Next() {
		var mode string
		var t protocol.Turn
		if err := rows.Scan(&mode, &t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		out[mode] = append(out[mode], t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) PutMemory(ctx context.Context, userID, mode string, turns []protocol.Turn) error {
	return s.inTx(ctx, userID, func(tx *sql.Tx) error {
		return s.putMemory(ctx, tx, userID, mode, turns)
	})
}

func (s *SQLiteStore) putMemory(ctx context.Context, tx *sql.Tx, userID, mode string, turns []protocol.Turn) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_turns WHERE user_id=? AND mode=?`, userID, mode); err != nil {
		return fmt.Errorf("clear memory slot: %w", err)
	}
	for i, t := range turns {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO memory_turns (user_id, mode, seq, role, content) VALUES (?, ?, ?, ?, ?)`,
			userID, mode, i, string(t.Role), t.Content)
		if err != nil {
			return fmt.Errorf("insert memory turn: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, userID string, records ...HistoryRecord) error {
	return s.inTx(ctx, userID, func(tx *sql.Tx) error {
		return s.appendHistory(ctx, tx, userID, records)
	})
}

func (s *SQLiteStore) appendHistory(ctx context.Context, tx *sql.Tx, userID string, records []HistoryRecord) error {
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = nowUTC()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO history (id, user_id, mode, source, role, content, created_at_unix_nano) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, userID, r.Mode, string(r.Source), string(r.Role), r.Content, r.Timestamp.UnixNano())
		if err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) ListHistory(ctx context.Context, userID string, limit int) ([]HistoryRecord, error) {
	if err := s.ensureUser(ctx, s.db, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, source, role, content, created_at_unix_nano FROM (
			SELECT rowid AS seq, id, mode, source, role, content, created_at_unix_nano
			FROM history WHERE user_id=? ORDER BY rowid DESC LIMIT ?
		) ORDER BY seq ASC`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRecord
	for rows.Next() {
		var r HistoryRecord
		var ts int64
		if err := rows.Scan(&r.ID, &r.Mode, &r.Source, &r.Role, &r.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		r.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetUsage(ctx context.Context, userID string) (int, error) {
	if err := s.ensureUser(ctx, s.db, userID); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT usage_count FROM users WHERE id=?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("get usage: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) IncrementUsage(ctx context.Context, userID string) error {
	return s.inTx(ctx, userID, func(tx *sql.Tx) error {
		return s.incrementUsage(ctx, tx, userID)
	})
}

func (s *SQLiteStore) incrementUsage(ctx context.Context, tx *sql.Tx, userID string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE users SET usage_count = usage_count + 1 WHERE id=?`, userID); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CommitExchange(ctx context.Context, userID string, ex Exchange) error {
	return s.inTx(ctx, userID, func(tx *sql.Tx) error {
		if err := s.putMemory(ctx, tx, userID, ex.Mode, ex.Turns); err != nil {
			return err
		}
		if err := s.appendHistory(ctx, tx, userID, ex.History); err != nil {
			return err
		}
		return s.incrementUsage(ctx, tx, userID)
	})
}

// inTx runs fn in a transaction after lazily creating the user and bumps
// last activity on success.
func (s *SQLiteStore) inTx(ctx context.Context, userID string, fn func(*sql.Tx) error) (err error) {
	if err := validUserID(userID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.ensureUser(ctx, tx, userID); err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		return err
	}
	if err = s.touch(ctx, tx, userID); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
