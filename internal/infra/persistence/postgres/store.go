// Package postgres provides a Postgres-backed persistent store that mirrors
// the in-memory semantics. Schema management runs through embedded
// migrations; dial entries are mirrored into a relational table so each dial
// list's registered view is a real database view.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"pbxcore/internal/infra/persistence/memory"
	"pbxcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/pbxcore?sslmode=disable"
)

// Store persists state to Postgres while reusing the in-memory
// implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), applies migrations, and hydrates the in-memory store from
// any existing snapshot.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open(defaultDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

// RunInTransaction applies fn in memory, then snapshots to Postgres. A failed
// snapshot rolls committed memory state back to the previous generation.
// s.mu spans the whole export, commit, persist, restore sequence so a
// concurrent commit can never land between export and restore and be
// wiped by the rollback.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.ExportState()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(ctx, s.ExportState()); pErr != nil {
		s.ImportState(prev)
		return res, domain.BackendError{Op: "persist", Err: pErr}
	}
	return res, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

var stateBuckets = []string{"dial_lists", "dial_entries", "dialplans", "steps", "users", "permissions", "contacts", "trunks", "views"}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	targets := map[string]any{
		"dial_lists":   &snapshot.DialLists,
		"dial_entries": &snapshot.DialEntries,
		"dialplans":    &snapshot.Dialplans,
		"steps":        &snapshot.Steps,
		"users":        &snapshot.Users,
		"permissions":  &snapshot.Permissions,
		"contacts":     &snapshot.Contacts,
		"trunks":       &snapshot.Trunks,
		"views":        &snapshot.Views,
	}

	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		if target, ok := targets[bucket]; ok {
			if err := json.Unmarshal(payload, target); err != nil {
				return memory.Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

// persist writes the snapshot to Postgres. The caller holds s.mu.
func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range stateBuckets {
		var data []byte
		switch bucket {
		case "dial_lists":
			data, err = json.Marshal(snapshot.DialLists)
		case "dial_entries":
			data, err = json.Marshal(snapshot.DialEntries)
		case "dialplans":
			data, err = json.Marshal(snapshot.Dialplans)
		case "steps":
			data, err = json.Marshal(snapshot.Steps)
		case "users":
			data, err = json.Marshal(snapshot.Users)
		case "permissions":
			data, err = json.Marshal(snapshot.Permissions)
		case "contacts":
			data, err = json.Marshal(snapshot.Contacts)
		case "trunks":
			data, err = json.Marshal(snapshot.Trunks)
		case "views":
			data, err = json.Marshal(snapshot.Views)
		}
		if err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`,
			bucket, data,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := syncDialEntries(ctx, tx, snapshot); err != nil {
		return err
	}
	if err := createViews(ctx, tx, snapshot); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func syncDialEntries(ctx context.Context, tx *sql.Tx, snapshot memory.Snapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM dial_entries`); err != nil {
		return fmt.Errorf("clear dial_entries: %w", err)
	}
	for _, e := range snapshot.DialEntries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dial_entries(id, dlma_id, name, number, try_count, detail, liveness, created_at, updated_at, retired_at)
			 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			e.ID, e.DialListID, e.Name, e.Number, e.TryCount, e.Detail, string(e.Liveness),
			e.CreatedAt, e.UpdatedAt, e.RetiredAt,
		); err != nil {
			return fmt.Errorf("insert dial entry %s: %w", e.ID, err)
		}
	}
	return nil
}

// createViews issues CREATE OR REPLACE VIEW per registered view. The view
// name comes from the deterministic parent-id mapping and contains only
// identifier characters.
func createViews(ctx context.Context, tx *sql.Tx, snapshot memory.Snapshot) error {
	for _, v := range snapshot.Views {
		stmt := fmt.Sprintf(
			`CREATE OR REPLACE VIEW %q AS SELECT id, name, number, try_count, detail, created_at, updated_at FROM dial_entries WHERE dlma_id = '%s' AND liveness = 'active'`,
			v.Name, v.ParentID,
		)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create view %s: %w", v.Name, err)
		}
	}
	return nil
}
