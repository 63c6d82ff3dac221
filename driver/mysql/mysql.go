// Package mysql implements the driver for MySQL and MariaDB.
//
// MySQL commits DDL implicitly, so a failed step only rolls back the rows it
// wrote and its log entry. Structural changes made before the failure stay.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/root-talis/fuelmig/driver"
	"github.com/root-talis/fuelmig/migration"
)

type DriverConfig struct {
	DatabaseName        string
	MigrationsTableName string
	// LockTimeout bounds the wait for another runner. Defaults to a minute.
	LockTimeout time.Duration
}

type mysqlDriver struct {
	conn   *sql.DB
	config DriverConfig
}

const timeLayout = "2006-01-02 15:04:05"

var ErrLockNotAcquired = errors.New("failed to acquire migrations lock")

// Open connects to dsn. Multi statement scripts and found-rows counting are
// switched on since migration scripts and updates rely on them.
func Open(dsn string, config DriverConfig) (driver.Driver, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mysql dsn: %w", err)
	}
	cfg.MultiStatements = true
	cfg.ClientFoundRows = true
	if config.DatabaseName == "" {
		config.DatabaseName = cfg.DBName
	}

	connector, err := gomysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure mysql connection: %w", err)
	}
	return NewDriver(sql.OpenDB(connector), config), nil
}

func NewDriver(conn *sql.DB, config DriverConfig) driver.Driver {
	if config.LockTimeout <= 0 {
		config.LockTimeout = time.Minute
	}
	return &mysqlDriver{
		conn:   conn,
		config: config,
	}
}

func (drv *mysqlDriver) ListMigrationsLog(ctx context.Context) (*[]migration.Log, error) {
	tableName := drv.makeEscapedMigrationsTableName()

	if err := drv.ensureMigrationsTableExists(ctx, tableName); err != nil {
		return nil, fmt.Errorf("failed to list applied revisions: %w", err)
	}

	rows, err := drv.query(ctx, fmt.Sprintf(
		"SELECT revision, migration_name, direction, run_id, start_time FROM %s ORDER BY id",
		tableName,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to list applied revisions: %w", err)
	}
	defer rows.Close()

	result, err := drv.fetchMigrationsLog(rows)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (drv *mysqlDriver) fetchMigrationsLog(rows *sql.Rows) ([]migration.Log, error) {
	result := make([]migration.Log, 0)
	for rows.Next() {
		var log migration.Log
		var revision string
		var appliedAt string
		var direction string

		err := rows.Scan(
			&revision,
			&log.Name,
			&direction,
			&log.RunID,
			&appliedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query migrations log table: %w", err)
		}
		if err = rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query migrations log table: %w", err)
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

		log.AppliedAt, err = time.Parse(timeLayout, appliedAt)
		if err != nil {
			log.AppliedAt = time.Time{}
		}

		result = append(result, log)
	}

	return result, nil
}

// Begin pins one connection for the step and holds a named lock on it
// until the transaction ends.
func (drv *mysqlDriver) Begin(ctx context.Context) (driver.Tx, error) {
	tableName := drv.makeEscapedMigrationsTableName()
	if err := drv.ensureMigrationsTableExists(ctx, tableName); err != nil {
		return nil, err
	}
	enumsTable := drv.makeEscapedEnumsTableName()
	if err := drv.ensureEnumsTableExists(ctx, enumsTable); err != nil {
		return nil, err
	}

	conn, err := drv.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get a connection: %w", err)
	}

	lockName := drv.config.DatabaseName + "." + drv.config.MigrationsTableName
	var acquired sql.NullInt64
	err = conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", lockName, int(drv.config.LockTimeout.Seconds())).Scan(&acquired)
	if err != nil || acquired.Int64 != 1 {
		_ = conn.Close()
		if err == nil {
			err = ErrLockNotAcquired
		}
		return nil, fmt.Errorf("failed to lock %s: %w", lockName, err)
	}

	sqlTx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		_, _ = conn.ExecContext(context.Background(), "DO RELEASE_LOCK(?)", lockName)
		_ = conn.Close()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &mysqlTx{
		conn:       conn,
		tx:         sqlTx,
		lockName:   lockName,
		database:   drv.config.DatabaseName,
		logTable:   tableName,
		enumsTable: enumsTable,
	}, nil
}

func (drv *mysqlDriver) Close() error {
	return drv.conn.Close()
}

func (drv *mysqlDriver) query(ctx context.Context, query string) (*sql.Rows, error) {
	rows, err := drv.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute a query: %w", err)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to execute a query: %w", err)
	}
	return rows, nil
}

func (drv *mysqlDriver) makeEscapedMigrationsTableName() string {
	return quoteIdent(drv.config.DatabaseName) + "." + quoteIdent(drv.config.MigrationsTableName)
}

func (drv *mysqlDriver) makeEscapedEnumsTableName() string {
	return quoteIdent(drv.config.DatabaseName) + "." + quoteIdent(drv.config.MigrationsTableName+"_enums")
}

func (drv *mysqlDriver) ensureMigrationsTableExists(ctx context.Context, escapedTableName string) error {
	_, err := drv.conn.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s ("+
			"id             int not null auto_increment, "+
			"revision       varchar(32) not null, "+
			"migration_name varchar(100) null, "+
			"direction      char(1) null, "+ // "u" or "d"
			"run_id         varchar(36) null, "+
			"start_time     datetime default CURRENT_TIMESTAMP not null, "+
			"end_time       datetime null, "+
			"primary key (id)"+
			") default charset utf8",
		escapedTableName,
	))

	if err != nil {
		return fmt.Errorf("failed to create migrations table %s: %w", escapedTableName, err)
	}

	return nil
}

// ensureEnumsTableExists creates the catalog of named enum types. MySQL
// enums are anonymous, so the value sets live here and columns point at
// them through their comment.
func (drv *mysqlDriver) ensureEnumsTableExists(ctx context.Context, escapedTableName string) error {
	_, err := drv.conn.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s ("+
			"type_name varchar(64) not null, "+
			"labels    text not null, "+
			"primary key (type_name)"+
			") default charset utf8",
		escapedTableName,
	))

	if err != nil {
		return fmt.Errorf("failed to create enum catalog %s: %w", escapedTableName, err)
	}

	return nil
}

// ---

type mysqlTx struct {
	conn       *sql.Conn
	tx         *sql.Tx
	lockName   string
	database   string
	logTable   string
	enumsTable string
}

func (tx *mysqlTx) Exec(ctx context.Context, statement string, args ...interface{}) error {
	if _, err := tx.tx.ExecContext(ctx, statement, args...); err != nil {
		return fmt.Errorf("failed to execute statement: %w", txError(err))
	}
	return nil
}

func (tx *mysqlTx) AppendLog(ctx context.Context, log migration.Log) error {
	if log.AppliedAt.IsZero() {
		log.AppliedAt = time.Now().UTC()
	}

	_, err := tx.tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (revision, migration_name, direction, run_id, start_time, end_time) "+
			"VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)",
		tx.logTable,
	), string(log.Revision), log.Name, string(log.Direction), log.RunID, log.AppliedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to append to migrations log: %w", txError(err))
	}
	return nil
}

func (tx *mysqlTx) Commit(_ context.Context) error {
	if err := tx.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", txError(err))
	}
	tx.release()
	return nil
}

func (tx *mysqlTx) Rollback(_ context.Context) error {
	if err := tx.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to roll back: %w", txError(err))
	}
	tx.release()
	return nil
}

func (tx *mysqlTx) release() {
	_, _ = tx.conn.ExecContext(context.Background(), "DO RELEASE_LOCK(?)", tx.lockName)
	_ = tx.conn.Close()
}

func (tx *mysqlTx) exec(ctx context.Context, statement string, args ...interface{}) (int64, error) {
	res, err := tx.tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, fmt.Errorf("%w (statement: %s)", txError(err), statement)
	}
	return res.RowsAffected()
}

func (tx *mysqlTx) qualified(name string) string {
	return quoteIdent(tx.database) + "." + quoteIdent(name)
}

func txError(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return driver.ErrTxDone
	}
	return err
}

// ---

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quoteIdent(name)
	}
	return strings.Join(quoted, ", ")
}

func quoteLiteral(value string) string {
	return "'" + escapeMysqlString(value) + "'"
}

// originally from https://gist.github.com/siddontang/8875771
func escapeMysqlString(sql string) string { //nolint:cyclop
	const prealloc = 2
	dest := make([]rune, 0, prealloc*len(sql))

	for _, character := range sql {
		var escape rune

		switch character {
		case 0:
			escape = '0'
		case '\n':
			escape = 'n'
		case '\r':
			escape = 'r'
		case '\\':
			escape = '\\'
		case '\'':
			escape = '\''
		case '"':
			escape = '"'
		case '\032':
			escape = 'Z'
		}

		if escape != 0 {
			dest = append(dest, '\\', escape)
		} else {
			dest = append(dest, character)
		}
	}

	return string(dest)
}
