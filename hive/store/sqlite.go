package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/hiveflow/hive/hive"
)

// SQLiteStore is a hive.CheckpointStore backed by a single-file SQLite
// database: one connection, WAL journaling, and a busy timeout so
// concurrent readers don't fail on lock contention.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and, if needed, creates) a SQLite-backed
// CheckpointStore at path. path may be ":memory:" for an ephemeral
// database that only lives for the process lifetime.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("hive/store: open sqlite: %w", err)
	}
	// modernc.org/sqlite is not safe for concurrent writers on the same
	// connection pool; a single connection serializes every read and write
	// from this process, while WAL and the busy timeout cover other
	// connections to the same file.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("hive/store: %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS hive_checkpoints (
	thread_id      TEXT NOT NULL,
	checkpoint_id  TEXT NOT NULL,
	step_index     INTEGER NOT NULL,
	data           BLOB NOT NULL,
	created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (thread_id, checkpoint_id)
);
CREATE INDEX IF NOT EXISTS idx_hive_checkpoints_thread_step
	ON hive_checkpoints (thread_id, step_index);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("hive/store: create tables: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save persists cp, replacing any existing row with the same thread and
// checkpoint ID.
func (s *SQLiteStore) Save(ctx context.Context, cp hive.Checkpoint) error {
	data, err := hive.EncodeCheckpoint(cp)
	if err != nil {
		return fmt.Errorf("hive/store: encode checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO hive_checkpoints (thread_id, checkpoint_id, step_index, data)
VALUES (?, ?, ?, ?)
ON CONFLICT (thread_id, checkpoint_id) DO UPDATE SET step_index = excluded.step_index, data = excluded.data
`, string(cp.ThreadID), string(cp.ID), cp.StepIndex, data)
	if err != nil {
		return fmt.Errorf("hive/store: save checkpoint: %w", err)
	}
	return nil
}

// LoadLatest returns the checkpoint with the highest step_index for
// threadID; ties break on lexicographically-greatest checkpoint_id.
func (s *SQLiteStore) LoadLatest(ctx context.Context, threadID hive.ThreadID) (hive.Checkpoint, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT data FROM hive_checkpoints
WHERE thread_id = ?
ORDER BY step_index DESC, checkpoint_id DESC
LIMIT 1
`, string(threadID))
	return scanOne(row)
}

// Load returns the checkpoint identified by checkpointID within threadID.
func (s *SQLiteStore) Load(ctx context.Context, threadID hive.ThreadID, checkpointID hive.CheckpointID) (hive.Checkpoint, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT data FROM hive_checkpoints WHERE thread_id = ? AND checkpoint_id = ?
`, string(threadID), string(checkpointID))
	return scanOne(row)
}

func scanOne(row *sql.Row) (hive.Checkpoint, bool, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return hive.Checkpoint{}, false, nil
		}
		return hive.Checkpoint{}, false, fmt.Errorf("hive/store: scan checkpoint: %w", err)
	}
	cp, err := hive.DecodeCheckpoint(data)
	if err != nil {
		return hive.Checkpoint{}, false, fmt.Errorf("hive/store: decode checkpoint: %w", err)
	}
	return cp, true, nil
}

// List returns all checkpoint IDs for threadID, sorted lexicographically.
func (s *SQLiteStore) List(ctx context.Context, threadID hive.ThreadID) ([]hive.CheckpointID, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT checkpoint_id FROM hive_checkpoints WHERE thread_id = ? ORDER BY checkpoint_id ASC
`, string(threadID))
	if err != nil {
		return nil, fmt.Errorf("hive/store: list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []hive.CheckpointID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("hive/store: scan checkpoint id: %w", err)
		}
		out = append(out, hive.CheckpointID(id))
	}
	return out, rows.Err()
}

var _ hive.CheckpointStore = (*SQLiteStore)(nil)
