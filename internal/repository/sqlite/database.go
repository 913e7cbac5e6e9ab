package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/glebk/skillswap/internal/domain"
	"github.com/glebk/skillswap/internal/repository/sqlite/migrations"
)

const driverName = "sqlite"

func init() {
	sqlx.BindDriver(driverName, sqlx.QUESTION)
}

// Database wraps the SQL database connection
type Database struct {
	db *sqlx.DB
	*repositories
}

var _ domain.Store = (*Database)(nil)

// New opens the database at dbPath and applies pending migrations.
// Transactions take the write lock on BEGIN so that concurrent writers,
// including other processes sharing the file, queue on busy_timeout instead
// of interleaving.
func New(dbPath string) (*Database, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sqlx.Open(driverName, dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := applyMigrations(db.DB, migrations.FS, "."); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{db: db, repositories: newRepositories(db)}, nil
}

func dsn(path string) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_txlock=immediate",
	}
	return "file:" + filepath.ToSlash(filepath.Clean(path)) + "?" + strings.Join(params, "&")
}

// Close closes the database connection
func (d *Database) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// GetDB returns the underlying database connection
func (d *Database) GetDB() *sqlx.DB {
	return d.db
}

// WithTx runs fn against repositories bound to one transaction. The
// transaction commits only if fn returns nil.
func (d *Database) WithTx(ctx context.Context, fn func(domain.Repositories) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	if err := fn(newRepositories(tx)); err != nil {
		_ = tx.Rollback()
		return storeError(err)
	}
	if err := tx.Commit(); err != nil {
		return storeError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

type repositories struct {
	sessions     *SessionRepository
	accounts     *AccountRepository
	escrow       *EscrowRepository
	checkpoints  *CheckpointRepository
	transactions *TransactionRepository
	linkCodes    *LinkCodeRepository
}

func newRepositories(q sqlx.ExtContext) *repositories {
	return &repositories{
		sessions:     &SessionRepository{q: q},
		accounts:     &AccountRepository{q: q},
		escrow:       &EscrowRepository{q: q},
		checkpoints:  &CheckpointRepository{q: q},
		transactions: &TransactionRepository{q: q},
		linkCodes:    &LinkCodeRepository{q: q},
	}
}

func (r *repositories) Sessions() domain.SessionRepository         { return r.sessions }
func (r *repositories) Accounts() domain.AccountRepository         { return r.accounts }
func (r *repositories) Escrow() domain.EscrowRepository            { return r.escrow }
func (r *repositories) Checkpoints() domain.CheckpointRepository   { return r.checkpoints }
func (r *repositories) Transactions() domain.TransactionRepository { return r.transactions }
func (r *repositories) LinkCodes() domain.LinkCodeRepository       { return r.linkCodes }

// storeError turns lock contention into a retryable concurrency error.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if isBusyError(err) {
		return domain.Wrap(domain.CodeConcurrentModification, "database is busy", err)
	}
	return err
}

func isBusyError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullableMillis(value *time.Time) any {
	if value == nil {
		return nil
	}
	return toMillis(*value)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
