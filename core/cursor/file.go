package cursor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/m3rciful/trainerbot/core/logger"
)

// FileStore keeps the cursor as a decimal number in a text file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on first use.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns the stored cursor, healing unreadable content to 0.
func (s *FileStore) Load(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *FileStore) load(ctx context.Context) (int, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("read cursor %s: %w", s.path, err)
	}
	if id, ok := decode(raw); ok {
		return id, nil
	}
	logHealed(ctx, "file", raw)
	if err := s.write(0); err != nil {
		return 0, err
	}
	return 0, nil
}

// Save persists id if it does not move the cursor backwards.
func (s *FileStore) Save(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err := checkForward(current, id); err != nil {
		return err
	}
	if current == id {
		return nil
	}
	if err := s.write(id); err != nil {
		return err
	}
	logger.Debug(ctx, logger.CompCursor, "cursor.save",
		slog.String("backend", "file"),
		slog.Int("cursor", id),
	)
	return nil
}

// write replaces the file through a temp file and rename.
func (s *FileStore) write(id int) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cursor dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create cursor temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(encode(id)); err != nil {
		tmp.Close()
		return fmt.Errorf("write cursor: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync cursor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cursor temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace cursor file: %w", err)
	}
	return nil
}
