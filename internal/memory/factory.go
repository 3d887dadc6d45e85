package memory

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by NewStore.
const (
	BackendAuto      = "auto"
	BackendMemory    = "memory"
	BackendFile      = "file"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

// Options selects and configures a store backend.
type Options struct {
	Backend          string
	DatabaseURL      string
	SQLitePath       string
	Dir              string
	FirestoreProject string
}

// ResolveBackend maps "auto" (or "") to a concrete backend: postgres when a
// database URL is set, else sqlite, else file, else in-memory.
func ResolveBackend(opts Options) string {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend != "" && backend != BackendAuto {
		return backend
	}
	switch {
	case strings.TrimSpace(opts.DatabaseURL) != "":
		return BackendPostgres
	case strings.TrimSpace(opts.SQLitePath) != "":
		return BackendSQLite
	case strings.TrimSpace(opts.Dir) != "":
		return BackendFile
	default:
		return BackendMemory
	}
}

// NewStore creates the configured store.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	switch backend := ResolveBackend(opts); backend {
	case BackendMemory:
		return NewInMemoryStore(), nil
	case BackendFile:
		return NewFileStore(opts.Dir)
	case BackendSQLite:
		if strings.TrimSpace(opts.SQLitePath) == "" {
			return nil, fmt.Errorf("sqlite store requires SQLITE_PATH")
		}
		return NewSQLiteStore(ctx, opts.SQLitePath)
	case BackendPostgres:
		if strings.TrimSpace(opts.DatabaseURL) == "" {
			return nil, fmt.Errorf("postgres store requires DATABASE_URL")
		}
		return NewPostgresStore(ctx, opts.DatabaseURL)
	case BackendFirestore:
		return NewFirestoreStore(ctx, opts.FirestoreProject)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", backend)
	}
}
