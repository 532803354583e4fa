package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	moderncsqlite "modernc.org/sqlite"
)

// DB holds a single-connection writer and a small reader pool over one WAL
// database. All derived-table writes go through Writer so SQLite never
// reports "database is locked" to the activity core.
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
}

// readerPoolSize bounds concurrent feed queries.
const readerPoolSize = 4

// connPragmas run on every new connection. cache_size is in KiB when negative.
var connPragmas = []string{
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
	"cache_size(-64000)",
}

// foldFunc is the SQL name of a Unicode-aware lower(). SQLite's built-in
// lower() only folds ASCII.
const foldFunc = "unicode_lower"

func init() {
	if err := moderncsqlite.RegisterDeterministicScalarFunction(foldFunc, 1, unicodeLower); err != nil {
		panic(fmt.Sprintf("register %s: %v", foldFunc, err))
	}
}

func unicodeLower(_ *moderncsqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return nil, fmt.Errorf("%s: unsupported argument type %T", foldFunc, v)
	}
}

// NewDB opens the activity database at dbPath in WAL mode.
func NewDB(dbPath string) (*DB, error) {
	return openDSN(buildDSN(dbPath, "_pragma=journal_mode(WAL)"))
}

// buildDSN returns a modernc sqlite URI for name with the extra query
// parameters placed before the connection pragmas.
func buildDSN(name string, params ...string) string {
	query := make([]string, 0, len(params)+len(connPragmas))
	query = append(query, params...)
	for _, p := range connPragmas {
		query = append(query, "_pragma="+p)
	}
	return "file:" + name + "?" + strings.Join(query, "&")
}

func openDSN(dsn string) (*DB, error) {
	writer, err := connect(dsn, 1)
	if err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}
	reader, err := connect(dsn, readerPoolSize)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("reader: %w", err)
	}
	return &DB{Writer: writer, Reader: reader}, nil
}

func connect(dsn string, maxOpen int) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	conn.SetMaxOpenConns(maxOpen)
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return conn, nil
}

// Ping checks both pools. It backs the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.Writer.PingContext(ctx); err != nil {
		return fmt.Errorf("ping writer: %w", err)
	}
	if err := db.Reader.PingContext(ctx); err != nil {
		return fmt.Errorf("ping reader: %w", err)
	}
	return nil
}

// inTx runs fn in one writer transaction and commits when fn succeeds.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes both pools and reports every failure.
func (db *DB) Close() error {
	var errs []error
	if err := db.Reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close reader: %w", err))
	}
	if err := db.Writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close writer: %w", err))
	}
	return errors.Join(errs...)
}
