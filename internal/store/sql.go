package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

// currentSchemaVersion is stored in SQLite's user_version pragma.
// Increment this whenever the schema changes (tables, columns, indices).
const currentSchemaVersion = 1

// sqliteBusyTimeout is the time SQLite waits when the database is locked.
// After this, operations return SQLITE_BUSY.
const sqliteBusyTimeout = 10000 // milliseconds

// openSqlite opens the database and applies the configured pragmas.
//
// _txlock=immediate makes every BEGIN take the write lock up front, so the
// revision read at the start of a patch cannot be invalidated by another
// writer before commit.
func openSqlite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("open sqlite: path is empty")
	}

	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Set("_busy_timeout", fmt.Sprint(sqliteBusyTimeout))
	params.Set("_foreign_keys", "1")

	db, err := sql.Open("sqlite3", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection: pragmas stick, and in-process writers queue on the pool.
	db.SetMaxOpenConns(1)

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	err = applyPragmas(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return db, nil
}

// applyPragmas configures the SQLite connection using a single batch statement.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = FULL;
		PRAGMA cache_size = -20000;
		PRAGMA temp_store = MEMORY;
	`)
	if err != nil {
		return fmt.Errorf("apply pragmas: %w", err)
	}

	return nil
}

// storedSchemaVersion reads the current SQLite PRAGMA user_version.
func storedSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	row := db.QueryRowContext(ctx, "PRAGMA user_version")

	var version int

	err := row.Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}

	return version, nil
}

// migrate creates the schema on a fresh database and refuses to run against
// a database written by a different schema version.
func migrate(ctx context.Context, db *sql.DB) error {
	version, err := storedSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		return nil
	}

	if version != 0 {
		return fmt.Errorf("%w: database has version %d, want %d", ErrSchemaVersion, version, currentSchemaVersion)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin txn: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	err = createSchema(ctx, tx)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion))
	if err != nil {
		return fmt.Errorf("sqlite: set user_version: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("sqlite: commit txn: %w", err)
	}

	committed = true

	return nil
}

// createSchema creates the source-of-truth tables (objects, blocks) and the
// derived index tables (block_search, block_terms, block_refs).
func createSchema(ctx context.Context, tx *sql.Tx) error {
	statements := []string{
		`CREATE TABLE objects (
			id TEXT PRIMARY KEY,
			type_key TEXT NOT NULL,
			title TEXT NOT NULL,
			revision INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			deleted_at INTEGER
		) WITHOUT ROWID`,
		`CREATE TABLE blocks (
			id TEXT PRIMARY KEY,
			object_id TEXT NOT NULL REFERENCES objects(id),
			parent_id TEXT,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			order_key TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			deleted_at INTEGER
		) WITHOUT ROWID`,
		`CREATE TABLE block_search (
			block_id TEXT PRIMARY KEY,
			object_id TEXT NOT NULL,
			text TEXT NOT NULL
		) WITHOUT ROWID`,
		`CREATE TABLE block_terms (
			term TEXT NOT NULL,
			block_id TEXT NOT NULL,
			PRIMARY KEY (term, block_id)
		) WITHOUT ROWID`,
		`CREATE TABLE block_refs (
			source_block_id TEXT NOT NULL,
			source_object_id TEXT NOT NULL,
			target_object_id TEXT NOT NULL,
			target_block_id TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (source_block_id, target_object_id, target_block_id)
		) WITHOUT ROWID`,
		"CREATE INDEX idx_objects_type ON objects(type_key)",
		"CREATE INDEX idx_blocks_object ON blocks(object_id)",
		"CREATE INDEX idx_blocks_parent ON blocks(parent_id, order_key)",
		"CREATE INDEX idx_search_object ON block_search(object_id)",
		"CREATE INDEX idx_terms_block ON block_terms(block_id)",
		"CREATE INDEX idx_refs_target ON block_refs(target_object_id)",
	}

	for i, stmt := range statements {
		_, err := tx.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}

	return nil
}

// nullString maps "" to NULL.
func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

// nullMillis maps 0 to NULL.
func nullMillis(value int64) sql.NullInt64 {
	return sql.NullInt64{Int64: value, Valid: value != 0}
}

// nullStringValue extracts a string from sql.NullString, returning empty if not valid.
func nullStringValue(value sql.NullString) string {
	if !value.Valid {
		return ""
	}

	return value.String
}

// nullTimePtr converts unix milliseconds to *time.Time, returning nil if not valid.
func nullTimePtr(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}

	parsed := fromMillis(value.Int64)

	return &parsed
}
