// Package sqlite persists the in-memory state to an embedded SQLite file. It
// snapshots the full state after every successful transaction and mirrors
// dial entries into a relational table so each dial list's registered view is
// a real database view.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"pbxcore/internal/infra/persistence/memory"
	"pbxcore/pkg/domain"
)

type (
	RulesEngine = domain.RulesEngine
	Transaction = domain.Transaction
	Result      = domain.Result
)

var _ domain.PersistentStore = (*Store)(nil)

// Store persists the canonical in-memory state to SQLite. State buckets hold
// the full records as JSON; the dial_entries table and its per-list views are
// the relational projection readers can query directly.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *RulesEngine) (*Store, error) {
	if path == "" {
		path = "pbxcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS dial_entries (
		id TEXT PRIMARY KEY,
		dlma_id TEXT NOT NULL,
		name TEXT,
		number TEXT NOT NULL,
		try_count INTEGER NOT NULL,
		detail TEXT,
		liveness TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		retired_at TEXT
	)`); err != nil {
		return nil, fmt.Errorf("create dial_entries table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

var stateBuckets = []string{"dial_lists", "dial_entries", "dialplans", "steps", "users", "permissions", "contacts", "trunks", "views"}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	type raw struct {
		bucket  string
		payload []byte
	}
	var raws []raw
	for rows.Next() {
		var r raw
		if err := rows.Scan(&r.bucket, &r.payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(raws) == 0 {
		return nil
	}
	snapshot := memory.Snapshot{}
	for _, r := range raws {
		var target any
		switch r.bucket {
		case "dial_lists":
			target = &snapshot.DialLists
		case "dial_entries":
			target = &snapshot.DialEntries
		case "dialplans":
			target = &snapshot.Dialplans
		case "steps":
			target = &snapshot.Steps
		case "users":
			target = &snapshot.Users
		case "permissions":
			target = &snapshot.Permissions
		case "contacts":
			target = &snapshot.Contacts
		case "trunks":
			target = &snapshot.Trunks
		case "views":
			target = &snapshot.Views
		default:
			continue
		}
		if err := json.Unmarshal(r.payload, target); err != nil {
			return fmt.Errorf("decode %s: %w", r.bucket, err)
		}
	}
	s.ImportState(snapshot)
	return nil
}

// persist writes the snapshot to SQLite. The caller holds s.mu.
func (s *Store) persist(snapshot memory.Snapshot) (retErr error) {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
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
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	if retErr = syncDialEntries(tx, snapshot); retErr != nil {
		return retErr
	}
	if retErr = createViews(tx, snapshot); retErr != nil {
		return retErr
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

// syncDialEntries rewrites the relational projection of dial entries. State
// is small control-plane data, so a full rewrite per commit keeps the
// projection trivially consistent with the snapshot.
func syncDialEntries(tx *sql.Tx, snapshot memory.Snapshot) error {
	if _, err := tx.Exec(`DELETE FROM dial_entries`); err != nil {
		return fmt.Errorf("clear dial_entries: %w", err)
	}
	for _, e := range snapshot.DialEntries {
		var retiredAt any
		if e.RetiredAt != nil {
			retiredAt = e.RetiredAt.UTC().Format("2006-01-02T15:04:05.999999999Z07:00")
		}
		if _, err := tx.Exec(
			`INSERT INTO dial_entries(id, dlma_id, name, number, try_count, detail, liveness, created_at, updated_at, retired_at)
			 VALUES(?,?,?,?,?,?,?,?,?,?)`,
			e.ID, e.DialListID, e.Name, e.Number, e.TryCount, e.Detail, string(e.Liveness),
			e.CreatedAt.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
			e.UpdatedAt.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
			retiredAt,
		); err != nil {
			return fmt.Errorf("insert dial entry %s: %w", e.ID, err)
		}
	}
	return nil
}

// createViews issues one CREATE VIEW per registered view. View names come
// from the deterministic parent-id mapping, so they contain only identifier
// characters. Views are permanent; none is ever dropped or renamed.
func createViews(tx *sql.Tx, snapshot memory.Snapshot) error {
	for _, v := range snapshot.Views {
		stmt := fmt.Sprintf(
			`CREATE VIEW IF NOT EXISTS %q AS SELECT id, name, number, try_count, detail, created_at, updated_at FROM dial_entries WHERE dlma_id = '%s' AND liveness = 'active'`,
			v.Name, v.ParentID,
		)
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("create view %s: %w", v.Name, err)
		}
	}
	return nil
}

// RunInTransaction applies fn in memory, then snapshots to SQLite. A failed
// snapshot rolls committed memory state back to the previous generation so a
// parent is never observable without its view. s.mu spans the whole
// export, commit, persist, restore sequence; without it a concurrent
// commit could land between export and restore and be wiped by the
// rollback.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.ExportState()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(s.ExportState()); pErr != nil {
		s.ImportState(prev)
		return res, domain.BackendError{Op: "persist", Err: pErr}
	}
	return res, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
