package store

import (
	"context"
	"database/sql"
)

// DBTX abstracts the relational database access layer. It is implemented by
// both *sql.DB and *sql.Tx, so store code works against either a connection
// pool or an open transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
