package cursor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m3rciful/trainerbot/core/config"
)

func TestFileStoreHealsBadContent(t *testing.T) {
	ctx := context.Background()
	for name, content := range map[string]string{
		"missing":   "",
		"garbage":   "abc",
		"negative":  "-4",
		"blank":     "  \n",
		"overflows": "99999999999999999999999",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "lastUpdate.txt")
			if name != "missing" {
				if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
					t.Fatal(err)
				}
			}
			s := NewFileStore(path)
			id, err := s.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if id != 0 {
				t.Fatalf("id = %d, want 0", id)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("healed file not written: %v", err)
			}
			if string(data) != "0" {
				t.Fatalf("healed content = %q", data)
			}
		})
	}
}

func TestFileStoreRoundTripAndTrailingNewline(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "cursor.txt")
	s := NewFileStore(path)
	if err := s.Save(ctx, 41); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if id, _ := s.Load(ctx); id != 41 {
		t.Fatalf("Load = %d", id)
	}
	if err := os.WriteFile(path, []byte("57\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if id, _ := s.Load(ctx); id != 57 {
		t.Fatalf("Load with newline = %d", id)
	}
}

func testMonotonic(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []int{3, 3, 10} {
		if err := s.Save(ctx, id); err != nil {
			t.Fatalf("Save(%d): %v", id, err)
		}
	}
	err := s.Save(ctx, 9)
	if !errors.Is(err, ErrCursorRegression) {
		t.Fatalf("Save(9) err = %v, want ErrCursorRegression", err)
	}
	if id, _ := s.Load(ctx); id != 10 {
		t.Fatalf("cursor moved after rejected save: %d", id)
	}
}

func TestFileStoreMonotonic(t *testing.T) {
	testMonotonic(t, NewFileStore(filepath.Join(t.TempDir(), "c.txt")))
}

func TestBoltStoreMonotonic(t *testing.T) {
	s, err := OpenBolt(filepath.Join(t.TempDir(), "cursor.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	defer s.Close()
	testMonotonic(t, s)
}

func TestBoltStoreStartsAtZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor.db")
	s, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	id, err := s.Load(context.Background())
	if err != nil || id != 0 {
		t.Fatalf("Load = %d, %v", id, err)
	}
	if err := s.Save(context.Background(), 5); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s.Close()

	reopened, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if id, _ := reopened.Load(context.Background()); id != 5 {
		t.Fatalf("after reopen = %d", id)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	fs, err := Open(config.CursorConfig{Backend: config.CursorBackendFile, Path: filepath.Join(dir, "c.txt")})
	if err != nil {
		t.Fatalf("Open file: %v", err)
	}
	if _, ok := fs.(*FileStore); !ok {
		t.Fatalf("got %T", fs)
	}
	bs, err := Open(config.CursorConfig{Backend: config.CursorBackendBolt, Path: filepath.Join(dir, "c.db")})
	if err != nil {
		t.Fatalf("Open bolt: %v", err)
	}
	defer bs.(*BoltStore).Close()
	if _, err := Open(config.CursorConfig{Backend: "redis"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
