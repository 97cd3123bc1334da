// Package sqlstore implements the bitwatch snapshot repository on SQLite
// (modernc.org/sqlite, no cgo) or PostgreSQL (lib/pq). Both dialects share
// the same statements; only the roots table DDL differs.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	bitwatch "github.com/mattkeenan/bitwatch/pkg"
)

// Driver names accepted by Open
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// MemoryDSN opens a private in-memory SQLite database
const MemoryDSN = ":memory:"

// Store is a SQL snapshot repository
type Store struct {
	db     *sql.DB
	driver string
}

var _ bitwatch.Repository = (*Store)(nil)

// Open connects to the database and creates the schema if needed. For
// SQLite, dsn is a file path (parent directories are created) or
// MemoryDSN; for PostgreSQL it is a connection URL.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var db *sql.DB
	var err error

	switch driver {
	case DriverSQLite:
		db, err = openSQLite(dsn)
	case DriverPostgres:
		db, err = sql.Open(DriverPostgres, dsn)
		if err == nil {
			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store, err := New(ctx, db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// OpenMemory opens a fresh in-memory SQLite store
func OpenMemory(ctx context.Context) (*Store, error) {
	return Open(ctx, DriverSQLite, MemoryDSN)
}

// openSQLite opens a SQLite database with WAL, a 10s busy timeout and
// foreign keys enforced on every pooled connection
func openSQLite(dsn string) (*sql.DB, error) {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)"

	if dsn == MemoryDSN {
		db, err := sql.Open(DriverSQLite, MemoryDSN+"?"+pragmas)
		if err != nil {
			return nil, err
		}
		// Each connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
		return db, nil
	}

	if !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return sql.Open(DriverSQLite, dsn+separator+pragmas+"&_pragma=journal_mode(WAL)")
}

// New wraps an open database and creates the schema if needed
func New(ctx context.Context, db *sql.DB, driver string) (*Store, error) {
	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the driver name the store was opened with
func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) schema() []string {
	rootsTable := `CREATE TABLE IF NOT EXISTS roots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		added_at BIGINT NOT NULL
	)`
	if s.driver == DriverPostgres {
		rootsTable = `CREATE TABLE IF NOT EXISTS roots (
		id BIGSERIAL PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		added_at BIGINT NOT NULL
	)`
	}

	return []string{
		rootsTable,
		`CREATE TABLE IF NOT EXISTS nodes (
		root_id BIGINT NOT NULL REFERENCES roots(id) ON DELETE CASCADE,
		relative_path TEXT NOT NULL,
		kind TEXT NOT NULL,
		content_hash TEXT,
		hash_algorithm TEXT,
		last_checked_at BIGINT NOT NULL,
		PRIMARY KEY (root_id, relative_path)
	)`,
		`CREATE TABLE IF NOT EXISTS exclusion_rules (
		root_id BIGINT NOT NULL REFERENCES roots(id) ON DELETE CASCADE,
		relative_path TEXT NOT NULL,
		PRIMARY KEY (root_id, relative_path)
	)`,
		`CREATE TABLE IF NOT EXISTS settings (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	}
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := exec(ctx, s.db, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// ListRoots returns every root ordered by path
func (s *Store) ListRoots(ctx context.Context) ([]bitwatch.Root, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, path, added_at FROM roots ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("query roots: %w", err)
	}
	defer rows.Close()

	var roots []bitwatch.Root
	for rows.Next() {
		var root bitwatch.Root
		var addedAt int64
		if err := rows.Scan(&root.ID, &root.Path, &addedAt); err != nil {
			return nil, fmt.Errorf("scan root: %w", err)
		}
		root.AddedAt = time.Unix(0, addedAt)
		roots = append(roots, root)
	}
	return roots, rows.Err()
}

// AddRoot registers path, returning the existing root if already present
func (s *Store) AddRoot(ctx context.Context, path string) (bitwatch.Root, error) {
	_, err := exec(ctx, s.db,
		`INSERT INTO roots (path, added_at) VALUES ($1, $2) ON CONFLICT (path) DO NOTHING`,
		path, time.Now().UnixNano())
	if err != nil {
		return bitwatch.Root{}, fmt.Errorf("insert root: %w", err)
	}

	var root bitwatch.Root
	var addedAt int64
	err = s.db.QueryRowContext(ctx, `SELECT id, path, added_at FROM roots WHERE path = $1`, path).
		Scan(&root.ID, &root.Path, &addedAt)
	if err != nil {
		return bitwatch.Root{}, fmt.Errorf("select root: %w", err)
	}
	root.AddedAt = time.Unix(0, addedAt)
	return root, nil
}

// RemoveRoot deletes a root with its nodes and exclusion rules in one
// transaction
func (s *Store) RemoveRoot(ctx context.Context, id bitwatch.RootID) error {
	return runTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE root_id = $1`, id); err != nil {
			return fmt.Errorf("delete nodes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM exclusion_rules WHERE root_id = $1`, id); err != nil {
			return fmt.Errorf("delete exclusion rules: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM roots WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete root: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %d", bitwatch.ErrRootNotFound, id)
		}
		return nil
	})
}

// GetNodes returns every node of a root ordered by relative path
func (s *Store) GetNodes(ctx context.Context, rootID bitwatch.RootID) ([]bitwatch.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT relative_path, kind, content_hash, hash_algorithm, last_checked_at
		 FROM nodes WHERE root_id = $1 ORDER BY relative_path`, rootID)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []bitwatch.Node
	for rows.Next() {
		var kind string
		var hash, algorithm sql.NullString
		var checkedAt int64
		node := bitwatch.Node{RootID: rootID}
		if err := rows.Scan(&node.RelativePath, &kind, &hash, &algorithm, &checkedAt); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		if node.Kind, err = bitwatch.ParseNodeKind(kind); err != nil {
			return nil, fmt.Errorf("node %s: %w", node.RelativePath, err)
		}
		node.ContentHash = hash.String
		node.HashAlgorithm = algorithm.String
		node.LastCheckedAt = time.Unix(0, checkedAt)
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// UpsertNode inserts or replaces the node keyed by (RootID, RelativePath)
func (s *Store) UpsertNode(ctx context.Context, node bitwatch.Node) error {
	_, err := exec(ctx, s.db,
		`INSERT INTO nodes (root_id, relative_path, kind, content_hash, hash_algorithm, last_checked_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (root_id, relative_path) DO UPDATE SET
		   kind = excluded.kind,
		   content_hash = excluded.content_hash,
		   hash_algorithm = excluded.hash_algorithm,
		   last_checked_at = excluded.last_checked_at`,
		node.RootID,
		bitwatch.NormaliseRelPath(node.RelativePath),
		node.Kind.String(),
		nullString(node.ContentHash),
		nullString(node.HashAlgorithm),
		node.LastCheckedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert node %s: %w", node.RelativePath, err)
	}
	return nil
}

// DeleteNodes removes the given nodes in one transaction
func (s *Store) DeleteNodes(ctx context.Context, nodes []bitwatch.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	return runTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM nodes WHERE root_id = $1 AND relative_path = $2`)
		if err != nil {
			return fmt.Errorf("prepare delete: %w", err)
		}
		defer stmt.Close()

		for _, node := range nodes {
			if _, err := stmt.ExecContext(ctx, node.RootID, bitwatch.NormaliseRelPath(node.RelativePath)); err != nil {
				return fmt.Errorf("delete node %s: %w", node.RelativePath, err)
			}
		}
		return nil
	})
}

// GetExclusionRules returns the rules of a root ordered by path
func (s *Store) GetExclusionRules(ctx context.Context, rootID bitwatch.RootID) ([]bitwatch.ExclusionRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT relative_path FROM exclusion_rules WHERE root_id = $1 ORDER BY relative_path`, rootID)
	if err != nil {
		return nil, fmt.Errorf("query exclusion rules: %w", err)
	}
	defer rows.Close()

	var rules []bitwatch.ExclusionRule
	for rows.Next() {
		rule := bitwatch.ExclusionRule{RootID: rootID}
		if err := rows.Scan(&rule.RelativePath); err != nil {
			return nil, fmt.Errorf("scan exclusion rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// AddExclusionRule stores a rule; adding an existing rule is a no-op
func (s *Store) AddExclusionRule(ctx context.Context, rule bitwatch.ExclusionRule) error {
	_, err := exec(ctx, s.db,
		`INSERT INTO exclusion_rules (root_id, relative_path) VALUES ($1, $2)
		 ON CONFLICT (root_id, relative_path) DO NOTHING`,
		rule.RootID, bitwatch.NormaliseRelPath(rule.RelativePath))
	if err != nil {
		return fmt.Errorf("insert exclusion rule: %w", err)
	}
	return nil
}

// RemoveExclusionRule deletes a rule; removing a missing rule is a no-op
func (s *Store) RemoveExclusionRule(ctx context.Context, rule bitwatch.ExclusionRule) error {
	_, err := exec(ctx, s.db,
		`DELETE FROM exclusion_rules WHERE root_id = $1 AND relative_path = $2`,
		rule.RootID, bitwatch.NormaliseRelPath(rule.RelativePath))
	if err != nil {
		return fmt.Errorf("delete exclusion rule: %w", err)
	}
	return nil
}

// GetSetting returns a stored setting; ok is false if it was never saved
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE name = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select setting %s: %w", key, err)
	}
	return value, true, nil
}

// SaveSetting stores or replaces a setting
func (s *Store) SaveSetting(ctx context.Context, key, value string) error {
	_, err := exec(ctx, s.db,
		`INSERT INTO settings (name, value) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
