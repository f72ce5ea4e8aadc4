package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/hiveflow/hive/hive"
)

// MySQLStore is a hive.CheckpointStore backed by MySQL/MariaDB, for
// production deployments with multiple writers and long-lived threads.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a MySQL-backed CheckpointStore using dsn, in the
// go-sql-driver/mysql DSN format
// ("user:pass@tcp(host:3306)/dbname?parseTime=true").
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("hive/store: open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("hive/store: ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS hive_checkpoints (
	thread_id     VARCHAR(255) NOT NULL,
	checkpoint_id VARCHAR(255) NOT NULL,
	step_index    INT NOT NULL,
	data          LONGBLOB NOT NULL,
	created_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (thread_id, checkpoint_id),
	INDEX idx_thread_step (thread_id, step_index)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("hive/store: create tables: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *MySQLStore) Close() error { return s.db.Close() }

// Save persists cp, replacing any existing row with the same thread and
// checkpoint ID.
func (s *MySQLStore) Save(ctx context.Context, cp hive.Checkpoint) error {
	data, err := hive.EncodeCheckpoint(cp)
	if err != nil {
		return fmt.Errorf("hive/store: encode checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO hive_checkpoints (thread_id, checkpoint_id, step_index, data)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE step_index = VALUES(step_index), data = VALUES(data)
`, string(cp.ThreadID), string(cp.ID), cp.StepIndex, data)
	if err != nil {
		return fmt.Errorf("hive/store: save checkpoint: %w", err)
	}
	return nil
}

// LoadLatest returns the checkpoint with the highest step_index for
// threadID; ties break on lexicographically-greatest checkpoint_id.
func (s *MySQLStore) LoadLatest(ctx context.Context, threadID hive.ThreadID) (hive.Checkpoint, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT data FROM hive_checkpoints
WHERE thread_id = ?
ORDER BY step_index DESC, checkpoint_id DESC
LIMIT 1
`, string(threadID))
	return scanOneMySQL(row)
}

// Load returns the checkpoint identified by checkpointID within threadID.
func (s *MySQLStore) Load(ctx context.Context, threadID hive.ThreadID, checkpointID hive.CheckpointID) (hive.Checkpoint, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT data FROM hive_checkpoints WHERE thread_id = ? AND checkpoint_id = ?
`, string(threadID), string(checkpointID))
	return scanOneMySQL(row)
}

func scanOneMySQL(row *sql.Row) (hive.Checkpoint, bool, error) {
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
func (s *MySQLStore) List(ctx context.Context, threadID hive.ThreadID) ([]hive.CheckpointID, error) {
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

var _ hive.CheckpointStore = (*MySQLStore)(nil)
