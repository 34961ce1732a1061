// Package store keeps a SQLite history of collection runs so the latest
// known facts of a host can be looked up after it becomes unreachable.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/x1thexxx-lgtm/hostinv/pkg/inventory"
)

// Run summarizes one stored collection run.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Hosts      int
	Failures   int
}

// Snapshot is the inventory of one host as recorded by a run.
type Snapshot struct {
	RunID       uuid.UUID
	Host        string
	CollectedAt time.Time
	Inventory   inventory.HostInventory
}

// Store persists reports in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveReport writes the run and one row per host outcome in a single
// transaction.
func (s *Store) SaveReport(ctx context.Context, r *inventory.Report) error {
	inventories := r.Inventories()
	failures := r.Failures()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	finished := r.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, hosts, failures) VALUES (?, ?, ?, ?, ?)`,
		r.ID.String(), r.StartedAt.UnixNano(), finished.UnixNano(), len(inventories), len(failures),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, host := range sortedKeys(inventories) {
		body, err := json.Marshal(inventories[host])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO host_outcomes (id, run_id, host, ok, inventory_json) VALUES (?, ?, ?, 1, ?)`,
			uuid.NewString(), r.ID.String(), host, string(body),
		); err != nil {
			return fmt.Errorf("insert inventory %s: %w", host, err)
		}
	}
	for _, host := range sortedKeys(failures) {
		f := failures[host]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO host_outcomes (id, run_id, host, ok, failure_kind, failure_detail) VALUES (?, ?, ?, 0, ?, ?)`,
			uuid.NewString(), r.ID.String(), host, string(f.Kind), f.Detail,
		); err != nil {
			return fmt.Errorf("insert failure %s: %w", host, err)
		}
	}
	return tx.Commit()
}

// LatestInventory returns the most recent successful snapshot of host, or
// nil when the host was never collected.
func (s *Store) LatestInventory(ctx context.Context, host string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT o.run_id, o.host, r.finished_at, o.inventory_json
		 FROM host_outcomes o JOIN runs r ON r.id = o.run_id
		 WHERE o.host = ? AND o.ok = 1
		 ORDER BY r.started_at DESC
		 LIMIT 1`, host,
	)

	var snap Snapshot
	var runID, body string
	var finished int64
	if err := row.Scan(&runID, &snap.Host, &finished, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("run id %q: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(body), &snap.Inventory); err != nil {
		return nil, fmt.Errorf("decode inventory of %s: %w", host, err)
	}
	snap.RunID = id
	snap.CollectedAt = time.Unix(0, finished)
	return &snap, nil
}

// Failures lists the failure markers recorded by one run, sorted by host.
func (s *Store) Failures(ctx context.Context, runID uuid.UUID) ([]inventory.Failure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT host, failure_kind, failure_detail
		 FROM host_outcomes
		 WHERE run_id = ? AND ok = 0
		 ORDER BY host`, runID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Failure
	for rows.Next() {
		var f inventory.Failure
		var kind string
		if err := rows.Scan(&f.Host, &kind, &f.Detail); err != nil {
			return nil, err
		}
		f.Kind = inventory.ErrorKind(kind)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, hosts, failures
		 FROM runs
		 ORDER BY started_at DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var id string
		var started, finished int64
		if err := rows.Scan(&id, &started, &finished, &run.Hosts, &run.Failures); err != nil {
			return nil, err
		}
		if run.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		run.StartedAt = time.Unix(0, started)
		run.FinishedAt = time.Unix(0, finished)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
