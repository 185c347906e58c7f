package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	apperrors "tradelens/internal/errors"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Options configures the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultOptions returns the default pool settings.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// SQLStore implements DataStore on top of sqlx for SQLite and PostgreSQL.
type SQLStore struct {
	db     *sqlx.DB
	q      sqlx.ExtContext
	driver string
}

var _ DataStore = (*SQLStore)(nil)

// Open connects to the database and creates the schema.
func Open(driver, dsn string, opts Options) (*SQLStore, error) {
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	s := NewWithDB(db)
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// NewWithDB wraps an existing connection without touching the schema.
func NewWithDB(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, q: db, driver: db.DriverName()}
}

// Migrate creates all required tables and indexes.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying connection.
func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

// WithTx runs fn inside a transaction. Calls made on a store that is already
// inside a transaction reuse it.
func (s *SQLStore) WithTx(ctx context.Context, fn func(DataStore) error) error {
	return s.inTx(ctx, func(tx *SQLStore) error { return fn(tx) })
}

// inTx runs fn on a store bound to a transaction, reusing the current one
// when s is already transactional.
func (s *SQLStore) inTx(ctx context.Context, fn func(*SQLStore) error) error {
	if _, ok := s.q.(*sqlx.Tx); ok {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStore := &SQLStore{db: s.db, q: tx, driver: s.driver}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, s.q, dest, s.db.Rebind(query), args...)
}

func (s *SQLStore) selectRows(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, s.q, dest, s.db.Rebind(query), args...)
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.db.Rebind(query), args...)
}

// execOne runs a statement that must affect exactly one row.
func (s *SQLStore) execOne(ctx context.Context, entity, id, query string, args ...interface{}) error {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return dbError(entity, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(entity, id, err)
	}
	if n == 0 {
		return apperrors.NotFound(entity, id)
	}
	return nil
}

// dbError translates driver errors into domain errors.
func dbError(entity, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound(entity, id)
	}
	if isUniqueViolation(err) {
		return apperrors.NewDataError(entity, id, "already exists", apperrors.ErrDuplicate)
	}
	return apperrors.NewDataError(entity, id, err.Error(), apperrors.ErrDatabaseError)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func paginate(query string, args []interface{}, limit, offset int) (string, []interface{}) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}
	return query, args
}
