// Package dbtx carries the active transaction through context so repositories
// join whatever transaction the application layer opened.
package dbtx

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/pkg/database"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey struct{}

var txKey = contextKey{}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB wraps the database handle and implements port.TransactionManager.
// Its query methods rebind placeholders and run on the context's transaction
// when there is one.
type DB struct {
	conn    *sql.DB
	dialect database.Dialect
	logger  *zap.Logger
}

// New creates a transaction-aware wrapper
func New(db *database.DB, logger *zap.Logger) *DB {
	return &DB{
		conn:    db.DB,
		dialect: db.Dialect(),
		logger:  logger,
	}
}

// NewWithConn wraps a raw connection, used with sqlmock in tests
func NewWithConn(conn *sql.DB, dialect database.Dialect, logger *zap.Logger) *DB {
	return &DB{conn: conn, dialect: dialect, logger: logger}
}

// Dialect returns the SQL dialect
func (db *DB) Dialect() database.Dialect {
	return db.dialect
}

// WithTransaction executes fn within a database transaction. A transaction
// already present in ctx is reused.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := ExtractTx(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ExtractTx retrieves the transaction from context if present
func ExtractTx(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// executor returns the transaction in ctx or the pool
func (db *DB) executor(ctx context.Context) Executor {
	if tx := ExtractTx(ctx); tx != nil {
		return tx
	}
	return db.conn
}

// ExecContext runs a statement written with ? placeholders
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return db.executor(ctx).ExecContext(ctx, db.dialect.Rebind(query), args...)
}

// QueryContext runs a query written with ? placeholders
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.executor(ctx).QueryContext(ctx, db.dialect.Rebind(query), args...)
}

// QueryRowContext runs a single-row query written with ? placeholders
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.executor(ctx).QueryRowContext(ctx, db.dialect.Rebind(query), args...)
}

// Verify interface compliance
var _ port.TransactionManager = (*DB)(nil)
var _ Executor = (*DB)(nil)
