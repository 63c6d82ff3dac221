package schema

import (
	"context"
	"errors"
	"fmt"
)

// ErrStopScan may be returned by a Scan callback to end the scan early
// without failing it.
var ErrStopScan = errors.New("stop scan")

// Row is a single record keyed by column name. Drivers normalize values to
// int64, float64, string, bool, time.Time or nil.
type Row map[string]interface{}

// Query selects rows by column equality. A nil value in Where matches NULL.
type Query struct {
	Table   string
	Columns []string
	Where   Row
	NotNull []string
	OrderBy []string
}

// ---

// Inspector reads the current shape of the store. Missing objects are
// reported as nil without an error.
type Inspector interface {
	Table(ctx context.Context, name string) (*Table, error)
	Index(ctx context.Context, table, name string) (*Index, error)
	Enum(ctx context.Context, name string) (*EnumSpec, error)
	// ReferencingTables lists the other tables with a foreign key to table.
	ReferencingTables(ctx context.Context, table string) ([]string, error)
	// EnumColumns lists the columns typed with the enum.
	EnumColumns(ctx context.Context, name string) ([]ColumnRef, error)
}

// Executor performs raw structural changes. It does not check preconditions,
// the operations in this package do.
type Executor interface {
	CreateTable(ctx context.Context, table *Table) error
	DropTable(ctx context.Context, name string) error
	AddColumn(ctx context.Context, table string, column Column) error
	DropColumn(ctx context.Context, table, column string) error
	RenameColumn(ctx context.Context, table, from, to string) error
	AlterColumnType(ctx context.Context, table, column string, typ Type) error
	AddForeignKey(ctx context.Context, table string, fk ForeignKey) error
	DropConstraint(ctx context.Context, table, name string) error
	CreateIndex(ctx context.Context, index Index) error
	DropIndex(ctx context.Context, table, name string) error
	CreateEnum(ctx context.Context, spec EnumSpec) error
	DropEnum(ctx context.Context, name string) error
}

// DataStore reads and writes rows.
type DataStore interface {
	Scan(ctx context.Context, query Query, fn func(Row) error) error
	// Insert returns the primary key value of the new row.
	Insert(ctx context.Context, table string, row Row) (interface{}, error)
	Update(ctx context.Context, table string, where Row, set Row) (int64, error)
	Delete(ctx context.Context, table string, where Row) (int64, error)
}

type Store interface {
	Inspector
	Executor
	DataStore
}

// ---

// EnumMutator is implemented by stores that can change the value set of an
// enumerated type in place.
type EnumMutator interface {
	SetEnumValues(ctx context.Context, spec EnumSpec) error
}

// EnumSwapper is implemented by stores whose enumerated types are immutable:
// a column is moved onto a freshly created type instead.
type EnumSwapper interface {
	RetypeColumn(ctx context.Context, ref ColumnRef, enumName string) error
	RenameEnum(ctx context.Context, from, to string) error
}

// ---

// ScanAll collects every row matched by query.
func ScanAll(ctx context.Context, store DataStore, query Query) ([]Row, error) {
	var rows []Row
	err := store.Scan(ctx, query, func(row Row) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// KeyString renders a key value for error messages and map lookups.
func KeyString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "<null>"
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func requireTable(ctx context.Context, store Inspector, op, name string) (*Table, error) {
	table, err := store.Table(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect table %s: %w", name, err)
	}
	if table == nil {
		return nil, conflict(op, name, "", "table does not exist")
	}
	return table, nil
}
