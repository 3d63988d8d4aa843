package qastore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/yanqian/formfiller/internal/domain/qacache"
)

// FileStore persists the history as a JSON array. Writes are atomic so a
// crash never leaves a half-written file behind.
type FileStore struct {
	path string
}

// NewFileStore constructs a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements qacache.Store. A missing file is an empty history.
func (s *FileStore) Load(_ context.Context) ([]qacache.Pair, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var pairs []qacache.Pair
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return pairs, nil
}

// Save implements qacache.Store.
func (s *FileStore) Save(_ context.Context, pairs []qacache.Pair) error {
	if pairs == nil {
		pairs = []qacache.Pair{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(pairs); err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return renameio.WriteFile(s.path, buf.Bytes(), 0o644)
}

var _ qacache.Store = (*FileStore)(nil)
