package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yanyan-huang/pmpal/internal/protocol"
)

// FileStore keeps one JSON document per user under a directory. Writes
// replace the document atomically through a temp file and rename.
type FileStore struct {
	docStore
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("file store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{docStore: newDocStore(&fileBackend{dir: dir}), dir: dir}, nil
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string { return s.dir }

type fileBackend struct {
	dir string
}

var safeFileName = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// path maps a user id to its document. Only lower-case plain names are used
// verbatim, so ids differing in case never share a file on case-insensitive
// filesystems. Everything else is hashed under a "u." prefix, which no
// verbatim name can carry.
func (b *fileBackend) path(userID string) string {
	return filepath.Join(b.dir, documentName(userID)+".json")
}

func documentName(userID string) string {
	if safeFileName.MatchString(userID) {
		return userID
	}
	sum := sha256.Sum256([]byte(userID))
	return "u." + hex.EncodeToString(sum[:16])
}

func (b *fileBackend) load(userID string) (*userDoc, error) {
	raw, err := os.ReadFile(b.path(userID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user document: %w", err)
	}
	var doc userDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode user document: %w", err)
	}
	doc.ID = userID
	if doc.Memory == nil {
		doc.Memory = make(map[string][]protocol.Turn)
	}
	return &doc, nil
}

func (b *fileBackend) save(doc *userDoc) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user document: %w", err)
	}
	target := b.path(doc.ID)
	tmp, err := os.CreateTemp(b.dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp document: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace user document: %w", err)
	}
	return nil
}

func (b *fileBackend) close() error { return nil }
