package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nsct/internal/repository"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

var _ repository.Repository = (*Repository)(nil)

// New opens or creates the store at dbPath. ":memory:" opens a private
// in-memory database.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath
	memory := dbPath == ":memory:"
	if !memory {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Debug("opened inventory store", "path", dbPath)
	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		created_at TEXT NOT NULL,
		nameserver TEXT NOT NULL,
		payload BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS allocations (
		run_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		family TEXT NOT NULL,
		slot INTEGER NOT NULL,
		address TEXT NOT NULL,
		occupant TEXT NOT NULL,
		interface TEXT,
		PRIMARY KEY (run_id, domain, family, slot),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source, created_at);
	CREATE INDEX IF NOT EXISTS idx_allocations_address ON allocations(address);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Record stores s as a new run in one transaction
func (r *Repository) Record(ctx context.Context, s *repository.Snapshot) error {
	payload, err := encodeSnapshot(s)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, source, created_at, nameserver, payload)
		VALUES (?, ?, ?, ?, ?)
	`, s.RunID, s.Source, formatTime(s.CreatedAt), s.Nameserver, payload)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO allocations (run_id, domain, family, slot, address, occupant, interface)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare allocation insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range s.AllocationRecords() {
		if _, err := stmt.ExecContext(ctx, s.RunID, a.Domain, a.Family, slotToInt(a.Offset),
			a.Address, a.Occupant, stringToNull(a.Interface)); err != nil {
			return fmt.Errorf("failed to insert allocation %s: %w", a.Address, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	slog.Info("recorded snapshot", "run", s.RunID, "source", s.Source)
	return nil
}

// Latest returns the most recent snapshot recorded for source
func (r *Repository) Latest(ctx context.Context, source string) (*repository.Snapshot, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT payload FROM runs
		WHERE source = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, source).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}

	s, err := decodeSnapshot(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s, nil
}

// Allocations returns the allocation rows of one run ordered by domain,
// family and offset.
func (r *Repository) Allocations(ctx context.Context, runID string) ([]repository.AllocationRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT domain, family, slot, address, occupant, interface
		FROM allocations
		WHERE run_id = ?
		ORDER BY domain, family, slot
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var out []repository.AllocationRecord
	for rows.Next() {
		var (
			a     repository.AllocationRecord
			slot  int64
			iface sql.NullString
		)
		if err := rows.Scan(&a.Domain, &a.Family, &slot, &a.Address, &a.Occupant, &iface); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		a.Offset = intToSlot(slot)
		a.Interface = nullToString(iface)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocations: %w", err)
	}
	return out, nil
}

// Close closes the database
func (r *Repository) Close() error {
	return r.db.Close()
}

// timeLayout is fixed width so created_at sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
