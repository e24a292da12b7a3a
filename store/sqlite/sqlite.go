/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Persists every ledger document (shops, products, sales, customers,
  suppliers, stock and udhar transactions) in one documents table keyed
  by (kind, id). The entity body is stored as JSON; the columns hold only
  what the store itself filters and orders on.

KEY TABLES:
  documents: one row per entity with version and cursor timestamp
  sequences: named counters (per-shop sale numbers)

INDEXES:
  - idx_documents_shop_cursor: sync pulls and shop listings (hot path)

OPTIMISTIC CONCURRENCY:
  Updates are issued as UPDATE ... WHERE version = ? and must touch
  exactly one row. A miss means another writer committed first and the
  whole batch rolls back with ledger.ErrConcurrentModification.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Writers are serialized in-process;
  SQLite itself allows a single writer at a time.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/pasal.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definition and write semantics
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smartpasal/pos-ledger/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		shop_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at INTEGER NOT NULL, -- unix nanoseconds
		synced_at INTEGER,
		body TEXT NOT NULL,
		PRIMARY KEY (kind, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_shop_cursor
		ON documents(kind, shop_id, updated_at);

	CREATE TABLE IF NOT EXISTS sequences (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// READS
// =============================================================================

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) Get(ctx context.Context, kind ledger.Kind, id string) (ledger.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getDoc(ctx, s.db, kind, id)
}

func getDoc(ctx context.Context, db queryer, kind ledger.Kind, id string) (ledger.Document, error) {
	row := db.QueryRowContext(ctx, `
		SELECT kind, id, shop_id, version, updated_at, synced_at, body
		FROM documents
		WHERE kind = ? AND id = ?
	`, string(kind), id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Document{}, ledger.ErrNotFound
	}
	return doc, err
}

func (s *Store) Query(ctx context.Context, q ledger.Query) ([]ledger.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT kind, id, shop_id, version, updated_at, synced_at, body
		FROM documents
		WHERE kind = ?`
	args := []any{string(q.Kind)}
	if q.ShopID != "" {
		query += ` AND shop_id = ?`
		args = append(args, q.ShopID)
	}
	if q.ChangedAfter != nil {
		query += ` AND updated_at > ?`
		args = append(args, q.ChangedAfter.UnixNano())
	}
	query += ` ORDER BY updated_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []ledger.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (ledger.Document, error) {
	var (
		doc       ledger.Document
		kind      string
		updatedAt int64
		syncedAt  sql.NullInt64
		body      string
	)
	err := row.Scan(&kind, &doc.ID, &doc.ShopID, &doc.Version, &updatedAt, &syncedAt, &body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return doc, err
		}
		return doc, fmt.Errorf("failed to scan document: %w", err)
	}

	doc.Kind = ledger.Kind(kind)
	doc.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if syncedAt.Valid {
		t := time.Unix(0, syncedAt.Int64).UTC()
		doc.SyncedAt = &t
	}
	doc.Data = []byte(body)
	return doc, nil
}

// =============================================================================
// WRITES
// =============================================================================

// Commit applies all writes in one database transaction.
func (s *Store) Commit(ctx context.Context, writes []ledger.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, w := range writes {
		if err := s.commitOne(ctx, sqlTx, w); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

func (s *Store) commitOne(ctx context.Context, tx *sql.Tx, w ledger.Write) error {
	var current *ledger.Document
	doc, err := getDoc(ctx, tx, w.Doc.Kind, w.Doc.ID)
	switch {
	case err == nil:
		current = &doc
	case !errors.Is(err, ledger.ErrNotFound):
		return err
	}

	next, changed, err := ledger.ApplyWrite(current, w)
	if err != nil || !changed {
		return err
	}

	if current == nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (kind, id, shop_id, version, updated_at, synced_at, body)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, string(next.Kind), next.ID, next.ShopID, next.Version,
			next.UpdatedAt.UnixNano(), nullTime(next.SyncedAt), string(next.Data))
		if err != nil {
			return fmt.Errorf("failed to insert %s/%s: %w", next.Kind, next.ID, err)
		}
		return nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET shop_id = ?, version = ?, updated_at = ?, synced_at = ?, body = ?
		WHERE kind = ? AND id = ? AND version = ?
	`, next.ShopID, next.Version, next.UpdatedAt.UnixNano(), nullTime(next.SyncedAt), string(next.Data),
		string(next.Kind), next.ID, current.Version)
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", next.Kind, next.ID, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("%s/%s: %w", next.Kind, next.ID, ledger.ErrConcurrentModification)
	}
	return nil
}

// NextSequence increments the named counter and returns its new value.
func (s *Store) NextSequence(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
	`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}

	var value int64
	if err := sqlTx.QueryRowContext(ctx, `SELECT value FROM sequences WHERE name = ?`, name).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to read sequence %s: %w", name, err)
	}
	return value, sqlTx.Commit()
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
