package driver

import (
	"context"
	"errors"

	"github.com/root-talis/fuelmig/migration"
	"github.com/root-talis/fuelmig/schema"
)

// Driver gives the runner transactional access to a store.
type Driver interface {
	ListMigrationsLog(ctx context.Context) (*[]migration.Log, error)
	// Begin opens a transaction with exclusive write access to the store.
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is a single migration step's view of the store.
type Tx interface {
	schema.Store

	// Exec runs a raw statement in the store's native dialect.
	Exec(ctx context.Context, statement string, args ...interface{}) error
	AppendLog(ctx context.Context, log migration.Log) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

var (
	ErrInvalidLogTable = errors.New("an error has occurred when reading log table")
	ErrTxDone          = errors.New("transaction has already been committed or rolled back")
)
