// Package postgres implements the driver on top of a pgx connection pool.
// Every step runs in one transaction, DDL included, so a failed step leaves
// the schema as it was.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/root-talis/fuelmig/driver"
	"github.com/root-talis/fuelmig/migration"
)

type DriverConfig struct {
	// SchemaName defaults to "public".
	SchemaName          string
	MigrationsTableName string
	MaxConns            int32
}

type postgresDriver struct {
	pool   *pgxpool.Pool
	config DriverConfig
}

var ErrNoSuchTable = errors.New("table does not exist")

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn string, config DriverConfig) (driver.Driver, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if config.MaxConns > 0 {
		poolCfg.MaxConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return NewDriver(pool, config), nil
}

// NewDriver wraps an existing pool. Close closes the pool.
func NewDriver(pool *pgxpool.Pool, config DriverConfig) driver.Driver {
	if config.SchemaName == "" {
		config.SchemaName = "public"
	}
	return &postgresDriver{
		pool:   pool,
		config: config,
	}
}

func (drv *postgresDriver) ListMigrationsLog(ctx context.Context) (*[]migration.Log, error) {
	tableName := drv.makeEscapedMigrationsTableName()

	if err := drv.ensureMigrationsTableExists(ctx, tableName); err != nil {
		return nil, fmt.Errorf("failed to list applied revisions: %w", err)
	}

	rows, err := drv.pool.Query(ctx, fmt.Sprintf(
		"SELECT revision, migration_name, direction, run_id, applied_at FROM %s ORDER BY id",
		tableName,
	))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrInvalidLogTable, err)
	}
	defer rows.Close()

	result := make([]migration.Log, 0)
	for rows.Next() {
		var (
			log       migration.Log
			revision  string
			direction string
		)
		if err := rows.Scan(&revision, &log.Name, &direction, &log.RunID, &log.AppliedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", driver.ErrInvalidLogTable, err)
		}
		log.Revision = migration.Revision(revision)

		switch strings.ToLower(direction) {
		case "u":
			log.Direction = migration.Up
		case "d":
			log.Direction = migration.Down
		default:
			return nil, fmt.Errorf("%w: direction \"%s\" is unknown", driver.ErrInvalidLogTable, direction)
		}

		result = append(result, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrInvalidLogTable, err)
	}

	return &result, nil
}

// Begin holds a transaction-scoped advisory lock derived from the log
// table name, so two runners against one database take turns.
func (drv *postgresDriver) Begin(ctx context.Context) (driver.Tx, error) {
	tableName := drv.makeEscapedMigrationsTableName()
	if err := drv.ensureMigrationsTableExists(ctx, tableName); err != nil {
		return nil, err
	}

	tx, err := drv.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", drv.lockKey()); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("failed to lock migrations: %w", err)
	}

	return &postgresTx{
		tx:       tx,
		schema:   drv.config.SchemaName,
		logTable: tableName,
	}, nil
}

func (drv *postgresDriver) Close() error {
	drv.pool.Close()
	return nil
}

func (drv *postgresDriver) makeEscapedMigrationsTableName() string {
	return quoteIdent(drv.config.SchemaName) + "." + quoteIdent(drv.config.MigrationsTableName)
}

func (drv *postgresDriver) lockKey() int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(drv.config.SchemaName + "." + drv.config.MigrationsTableName))
	return int64(h.Sum64())
}

func (drv *postgresDriver) ensureMigrationsTableExists(ctx context.Context, escapedTableName string) error {
	_, err := drv.pool.Exec(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s ("+
			"id             serial not null, "+
			"revision       varchar(32) not null, "+
			"migration_name varchar(100) not null, "+
			"direction      char(1) not null, "+ // "u" or "d"
			"run_id         varchar(36) not null, "+
			"applied_at     timestamp default now() not null, "+
			"primary key (id)"+
			")",
		escapedTableName,
	))

	if err != nil {
		return fmt.Errorf("failed to create migrations table %s: %w", escapedTableName, err)
	}

	return nil
}

// ---

type postgresTx struct {
	tx       pgx.Tx
	schema   string
	logTable string
}

func (tx *postgresTx) Exec(ctx context.Context, statement string, args ...interface{}) error {
	if _, err := tx.tx.Exec(ctx, statement, args...); err != nil {
		return fmt.Errorf("failed to execute statement: %w", txError(err))
	}
	return nil
}

func (tx *postgresTx) AppendLog(ctx context.Context, log migration.Log) error {
	if log.AppliedAt.IsZero() {
		log.AppliedAt = time.Now().UTC()
	}

	_, err := tx.tx.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (revision, migration_name, direction, run_id, applied_at) VALUES ($1, $2, $3, $4, $5)",
		tx.logTable,
	), string(log.Revision), log.Name, string(log.Direction), log.RunID, log.AppliedAt)
	if err != nil {
		return fmt.Errorf("failed to append to migrations log: %w", txError(err))
	}
	return nil
}

func (tx *postgresTx) Commit(ctx context.Context) error {
	if err := tx.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", txError(err))
	}
	return nil
}

func (tx *postgresTx) Rollback(ctx context.Context) error {
	if err := tx.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("failed to roll back: %w", txError(err))
	}
	return nil
}

func (tx *postgresTx) exec(ctx context.Context, statement string, args ...interface{}) (int64, error) {
	tag, err := tx.tx.Exec(ctx, statement, args...)
	if err != nil {
		return 0, fmt.Errorf("%w (statement: %s)", txError(err), statement)
	}
	return tag.RowsAffected(), nil
}

func (tx *postgresTx) qualified(name string) string {
	return quoteIdent(tx.schema) + "." + quoteIdent(name)
}

func txError(err error) error {
	if errors.Is(err, pgx.ErrTxClosed) {
		return driver.ErrTxDone
	}
	return err
}

// ---

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quoteIdent(name)
	}
	return strings.Join(quoted, ", ")
}
