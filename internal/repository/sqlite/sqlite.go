package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"meshmap/internal/domain"
	"meshmap/internal/repository"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Store using SQLite
type Repository struct {
	db *sql.DB
}

var _ repository.Store = (*Repository)(nil)

// New creates a new SQLite repository
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every new connection to :memory: would open its own empty database.
	if strings.Contains(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		data JSON NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS lookup_tables (
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		addresses JSON NOT NULL,
		PRIMARY KEY (kind, name)
	);

	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL,
		revision INTEGER NOT NULL,
		nodes INTEGER NOT NULL,
		edges INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		total_bytes INTEGER NOT NULL,
		strategy TEXT NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		window_start DATETIME,
		window_end DATETIME,
		built_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_builds_built_at ON builds(built_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

// SaveDirectory replaces the cached lookup tables with the given
// directory in one transaction. The control plane always delivers
// complete tables, so partial merges are never needed.
func (r *Repository) SaveDirectory(ctx context.Context, dir *domain.Directory) error {
	if dir == nil {
		return fmt.Errorf("nil directory")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM devices`); err != nil {
		return fmt.Errorf("failed to clear devices: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM lookup_tables`); err != nil {
		return fmt.Errorf("failed to clear lookup tables: %w", err)
	}

	for i := range dir.Devices {
		dev := &dir.Devices[i]
		data, err := json.Marshal(dev)
		if err != nil {
			return fmt.Errorf("failed to marshal device %s: %w", dev.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO devices (id, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		`, dev.ID, string(data)); err != nil {
			return fmt.Errorf("failed to insert device %s: %w", dev.ID, err)
		}
	}

	if err := insertTable(ctx, tx, "service", dir.Services); err != nil {
		return err
	}
	if err := insertTable(ctx, tx, "record", dir.Records); err != nil {
		return err
	}

	return tx.Commit()
}

func insertTable(ctx context.Context, tx *sql.Tx, kind string, table map[string][]string) error {
	for name, addrs := range table {
		data, err := json.Marshal(addrs)
		if err != nil {
			return fmt.Errorf("failed to marshal %s %s: %w", kind, name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lookup_tables (kind, name, addresses) VALUES (?, ?, ?)
		`, kind, name, string(data)); err != nil {
			return fmt.Errorf("failed to insert %s %s: %w", kind, name, err)
		}
	}
	return nil
}

// LoadDirectory returns the cached directory, or nil when nothing has
// been cached yet
func (r *Repository) LoadDirectory(ctx context.Context) (*domain.Directory, error) {
	dir := domain.NewDirectory()

	rows, err := r.db.QueryContext(ctx, `SELECT data FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		var dev domain.Device
		if err := json.Unmarshal(data, &dev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal device data: %w", err)
		}
		dir.Devices = append(dir.Devices, dev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}

	tableRows, err := r.db.QueryContext(ctx, `SELECT kind, name, addresses FROM lookup_tables`)
	if err != nil {
		return nil, fmt.Errorf("failed to query lookup tables: %w", err)
	}
	defer tableRows.Close()

	for tableRows.Next() {
		var kind, name string
		var data []byte
		if err := tableRows.Scan(&kind, &name, &data); err != nil {
			return nil, fmt.Errorf("failed to scan lookup row: %w", err)
		}
		var addrs []string
		if err := json.Unmarshal(data, &addrs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal addresses for %s: %w", name, err)
		}
		switch kind {
		case "service":
			dir.Services[name] = addrs
		case "record":
			dir.Records[name] = addrs
		}
	}
	if err := tableRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lookup tables: %w", err)
	}

	if len(dir.Devices) == 0 && len(dir.Services) == 0 && len(dir.Records) == 0 {
		return nil, nil
	}
	return dir, nil
}

// RecordBuild appends one rebuild summary to the history log
func (r *Repository) RecordBuild(ctx context.Context, rec domain.BuildRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO builds (build_id, revision, nodes, edges, skipped, total_bytes,
			strategy, elapsed_ms, window_start, window_end, built_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.BuildID, int64(rec.Revision), rec.Nodes, rec.Edges, rec.Skipped, rec.TotalBytes,
		string(rec.Strategy), rec.Elapsed.Milliseconds(),
		timeToNull(rec.Start), timeToNull(rec.End), rec.BuiltAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert build record: %w", err)
	}
	return nil
}

// RecentBuilds returns the newest history rows, most recent first
func (r *Repository) RecentBuilds(ctx context.Context, limit int) ([]domain.BuildRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT build_id, revision, nodes, edges, skipped, total_bytes,
			strategy, elapsed_ms, window_start, window_end, built_at
		FROM builds ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query builds: %w", err)
	}
	defer rows.Close()

	var records []domain.BuildRecord
	for rows.Next() {
		var (
			rec        domain.BuildRecord
			revision   int64
			elapsedMS  int64
			start, end sql.NullTime
		)
		if err := rows.Scan(&rec.BuildID, &revision, &rec.Nodes, &rec.Edges, &rec.Skipped,
			&rec.TotalBytes, &rec.Strategy, &elapsedMS, &start, &end, &rec.BuiltAt); err != nil {
			return nil, fmt.Errorf("failed to scan build record: %w", err)
		}
		rec.Revision = uint64(revision)
		rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		rec.Start = nullToTime(start)
		rec.End = nullToTime(end)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating builds: %w", err)
	}

	return records, nil
}

// PruneBuilds deletes all but the newest keep rows from the history log
func (r *Repository) PruneBuilds(ctx context.Context, keep int) error {
	if keep <= 0 {
		keep = 1000
	}
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM builds WHERE id NOT IN (
			SELECT id FROM builds ORDER BY id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune builds: %w", err)
	}
	return nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
