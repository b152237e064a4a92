package cursor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/m3rciful/trainerbot/core/logger"
)

var (
	bucketCursor = []byte("cursor")
	keyLastID    = []byte("last_update_id")
)

// BoltStore keeps the cursor in a bbolt database.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database at path and ensures the bucket exists.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cursor db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketCursor)
		return e
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cursor bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the database file lock.
func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) Load(ctx context.Context) (int, error) {
	var id int
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		id, err = loadTx(ctx, tx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}
	return id, nil
}

func (s *BoltStore) Save(ctx context.Context, id int) error {
	var changed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		current, err := loadTx(ctx, tx)
		if err != nil {
			return err
		}
		if err := checkForward(current, id); err != nil {
			return err
		}
		if current == id {
			return nil
		}
		changed = true
		return tx.Bucket(bucketCursor).Put(keyLastID, encode(id))
	})
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	if changed {
		logger.Debug(ctx, logger.CompCursor, "cursor.save",
			slog.String("backend", "bolt"),
			slog.Int("cursor", id),
		)
	}
	return nil
}

// loadTx reads the cursor inside tx, healing bad values within the same transaction.
func loadTx(ctx context.Context, tx *bolt.Tx) (int, error) {
	b := tx.Bucket(bucketCursor)
	raw := b.Get(keyLastID)
	if id, ok := decode(raw); ok {
		return id, nil
	}
	logHealed(ctx, "bolt", raw)
	return 0, b.Put(keyLastID, encode(0))
}
