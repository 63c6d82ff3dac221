package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Op is a single structural change with idempotent intent: applying it to a
// store already in the target state succeeds without doing anything, applying
// it to an incompatible store fails with ErrSchemaConflict.
type Op interface {
	Apply(ctx context.Context, store Store) error
	String() string
}

// Apply runs ops in order and stops at the first failure.
func Apply(ctx context.Context, store Store, ops ...Op) error {
	for _, op := range ops {
		if err := op.Apply(ctx, store); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// ---

type AddColumn struct {
	Table  string
	Column Column
}

func (op AddColumn) String() string {
	return fmt.Sprintf("add column %s.%s", op.Table, op.Column.Name)
}

func (op AddColumn) Apply(ctx context.Context, store Store) error {
	table, err := requireTable(ctx, store, "add column", op.Table)
	if err != nil {
		return err
	}

	if have, ok := table.Column(op.Column.Name); ok {
		if have.Compatible(op.Column) {
			return nil
		}
		return conflict("add column", op.Table, op.Column.Name,
			"column exists as %s (nullable=%t), wanted %s (nullable=%t)",
			have.Type, have.Nullable, op.Column.Type, op.Column.Nullable)
	}

	if !op.Column.Nullable && op.Column.Default == nil && !op.Column.AutoIncrement {
		if err := requireEmpty(ctx, store, "add column", op.Table, op.Column.Name); err != nil {
			return err
		}
	}

	return store.AddColumn(ctx, op.Table, op.Column)
}

// ---

type DropColumn struct {
	Table  string
	Column string
}

func (op DropColumn) String() string {
	return fmt.Sprintf("drop column %s.%s", op.Table, op.Column)
}

func (op DropColumn) Apply(ctx context.Context, store Store) error {
	table, err := requireTable(ctx, store, "drop column", op.Table)
	if err != nil {
		return err
	}

	if _, ok := table.Column(op.Column); !ok {
		return nil
	}

	for _, fk := range table.ForeignKeys {
		if contains(fk.Columns, op.Column) {
			return conflict("drop column", op.Table, op.Column,
				"column is used by foreign key %s", fk.Name)
		}
	}

	return store.DropColumn(ctx, op.Table, op.Column)
}

// ---

type RenameColumn struct {
	Table string
	From  string
	To    string
}

func (op RenameColumn) String() string {
	return fmt.Sprintf("rename column %s.%s to %s", op.Table, op.From, op.To)
}

func (op RenameColumn) Apply(ctx context.Context, store Store) error {
	table, err := requireTable(ctx, store, "rename column", op.Table)
	if err != nil {
		return err
	}

	_, hasFrom := table.Column(op.From)
	_, hasTo := table.Column(op.To)

	switch {
	case hasFrom && !hasTo:
		return store.RenameColumn(ctx, op.Table, op.From, op.To)
	case !hasFrom && hasTo:
		return nil
	case hasFrom && hasTo:
		return conflict("rename column", op.Table, op.From, "both %s and %s exist", op.From, op.To)
	default:
		return conflict("rename column", op.Table, op.From, "neither %s nor %s exists", op.From, op.To)
	}
}

// ---

type AlterColumnType struct {
	Table  string
	Column string
	Type   Type
}

func (op AlterColumnType) String() string {
	return fmt.Sprintf("alter column %s.%s type %s", op.Table, op.Column, op.Type)
}

func (op AlterColumnType) Apply(ctx context.Context, store Store) error {
	table, err := requireTable(ctx, store, "alter column", op.Table)
	if err != nil {
		return err
	}

	have, ok := table.Column(op.Column)
	if !ok {
		return conflict("alter column", op.Table, op.Column, "column does not exist")
	}
	if have.Type == op.Type {
		return nil
	}
	if op.Type.Kind == Enum || have.Type.Kind == Enum {
		return conflict("alter column", op.Table, op.Column,
			"enum columns are changed through enum transforms, not %s -> %s", have.Type, op.Type)
	}

	return store.AlterColumnType(ctx, op.Table, op.Column, op.Type)
}

// ---

type AddForeignKey struct {
	Table string
	Key   ForeignKey
}

func (op AddForeignKey) String() string {
	return fmt.Sprintf("add foreign key %s.%s on delete %s", op.Table, op.Key.Name, op.Key.OnDelete)
}

func (op AddForeignKey) Apply(ctx context.Context, store Store) error {
	if !op.Key.OnDelete.Valid() {
		return fmt.Errorf("%w: %s.%s", ErrImplicitDeletePolicy, op.Table, op.Key.Name)
	}

	table, err := requireTable(ctx, store, "add foreign key", op.Table)
	if err != nil {
		return err
	}

	if have, ok := table.ForeignKey(op.Key.Name); ok {
		if have.Equal(op.Key) {
			return nil
		}
		return conflict("add foreign key", op.Table, op.Key.Name,
			"constraint exists with a different definition (on delete %s)", have.OnDelete)
	}
	if table.HasConstraint(op.Key.Name) {
		return conflict("add foreign key", op.Table, op.Key.Name, "a non foreign key constraint has this name")
	}

	for _, col := range op.Key.Columns {
		if _, ok := table.Column(col); !ok {
			return conflict("add foreign key", op.Table, op.Key.Name, "column %s does not exist", col)
		}
	}

	ref, err := requireTable(ctx, store, "add foreign key", op.Key.RefTable)
	if err != nil {
		return err
	}
	for _, col := range op.Key.RefColumns {
		if _, ok := ref.Column(col); !ok {
			return conflict("add foreign key", op.Table, op.Key.Name,
				"referenced column %s.%s does not exist", op.Key.RefTable, col)
		}
	}

	return store.AddForeignKey(ctx, op.Table, op.Key)
}

// ---

type DropConstraint struct {
	Table string
	Name  string
}

func (op DropConstraint) String() string {
	return fmt.Sprintf("drop constraint %s.%s", op.Table, op.Name)
}

func (op DropConstraint) Apply(ctx context.Context, store Store) error {
	table, err := requireTable(ctx, store, "drop constraint", op.Table)
	if err != nil {
		return err
	}
	if !table.HasConstraint(op.Name) {
		return nil
	}
	return store.DropConstraint(ctx, op.Table, op.Name)
}

// ---

// SetDeletePolicy replaces a foreign key with one carrying an explicit delete
// policy. The old constraint may have a different name.
type SetDeletePolicy struct {
	Table   string
	OldName string
	Key     ForeignKey
}

func (op SetDeletePolicy) String() string {
	return fmt.Sprintf("set delete policy of %s.%s to %s", op.Table, op.Key.Name, op.Key.OnDelete)
}

func (op SetDeletePolicy) Apply(ctx context.Context, store Store) error {
	if !op.Key.OnDelete.Valid() {
		return fmt.Errorf("%w: %s.%s", ErrImplicitDeletePolicy, op.Table, op.Key.Name)
	}

	table, err := requireTable(ctx, store, "set delete policy", op.Table)
	if err != nil {
		return err
	}
	if have, ok := table.ForeignKey(op.Key.Name); ok && have.Equal(op.Key) {
		return nil
	}

	oldName := op.OldName
	if oldName == "" {
		oldName = op.Key.Name
	}

	return Apply(ctx, store,
		DropConstraint{Table: op.Table, Name: oldName},
		DropConstraint{Table: op.Table, Name: op.Key.Name},
		AddForeignKey{Table: op.Table, Key: op.Key},
	)
}

// ---

type CreateTable struct {
	Table Table
}

func (op CreateTable) String() string {
	return "create table " + op.Table.Name
}

func (op CreateTable) Apply(ctx context.Context, store Store) error {
	for _, fk := range op.Table.ForeignKeys {
		if !fk.OnDelete.Valid() {
			return fmt.Errorf("%w: %s.%s", ErrImplicitDeletePolicy, op.Table.Name, fk.Name)
		}
	}

	have, err := store.Table(ctx, op.Table.Name)
	if err != nil {
		return fmt.Errorf("failed to inspect table %s: %w", op.Table.Name, err)
	}
	if have != nil {
		if have.Compatible(&op.Table) {
			return nil
		}
		return conflict("create table", op.Table.Name, "", "table exists with a different definition")
	}

	for _, col := range op.Table.Columns {
		if col.Type.Kind != Enum {
			continue
		}
		spec, err := store.Enum(ctx, col.Type.EnumName)
		if err != nil {
			return fmt.Errorf("failed to inspect enum %s: %w", col.Type.EnumName, err)
		}
		if spec == nil {
			return conflict("create table", op.Table.Name, col.Name, "enum %s does not exist", col.Type.EnumName)
		}
	}

	table := op.Table
	return store.CreateTable(ctx, &table)
}

// ---

type DropTable struct {
	Name string
}

func (op DropTable) String() string {
	return "drop table " + op.Name
}

func (op DropTable) Apply(ctx context.Context, store Store) error {
	have, err := store.Table(ctx, op.Name)
	if err != nil {
		return fmt.Errorf("failed to inspect table %s: %w", op.Name, err)
	}
	if have == nil {
		return nil
	}

	refs, err := store.ReferencingTables(ctx, op.Name)
	if err != nil {
		return fmt.Errorf("failed to inspect references to %s: %w", op.Name, err)
	}
	if len(refs) > 0 {
		return conflict("drop table", op.Name, "", "table is referenced by %s", strings.Join(refs, ", "))
	}
	return store.DropTable(ctx, op.Name)
}

// ---

type CreateIndex struct {
	Index Index
}

func (op CreateIndex) String() string {
	return fmt.Sprintf("create index %s on %s(%s)", op.Index.Name, op.Index.Table, strings.Join(op.Index.Columns, ","))
}

func (op CreateIndex) Apply(ctx context.Context, store Store) error {
	table, err := requireTable(ctx, store, "create index", op.Index.Table)
	if err != nil {
		return err
	}

	have, err := store.Index(ctx, op.Index.Table, op.Index.Name)
	if err != nil {
		return fmt.Errorf("failed to inspect index %s: %w", op.Index.Name, err)
	}
	if have != nil {
		if have.Equal(op.Index) {
			return nil
		}
		return conflict("create index", op.Index.Table, op.Index.Name, "index exists with a different definition")
	}

	for _, col := range op.Index.Columns {
		if _, ok := table.Column(col); !ok {
			return conflict("create index", op.Index.Table, op.Index.Name, "column %s does not exist", col)
		}
	}

	return store.CreateIndex(ctx, op.Index)
}

// ---

type DropIndex struct {
	Table string
	Name  string
}

func (op DropIndex) String() string {
	return fmt.Sprintf("drop index %s on %s", op.Name, op.Table)
}

func (op DropIndex) Apply(ctx context.Context, store Store) error {
	have, err := store.Index(ctx, op.Table, op.Name)
	if err != nil {
		return fmt.Errorf("failed to inspect index %s: %w", op.Name, err)
	}
	if have == nil {
		return nil
	}
	return store.DropIndex(ctx, op.Table, op.Name)
}

// ---

type CreateEnumType struct {
	Spec EnumSpec
}

func (op CreateEnumType) String() string {
	return "create enum " + op.Spec.TypeName
}

func (op CreateEnumType) Apply(ctx context.Context, store Store) error {
	if err := op.Spec.Validate(); err != nil {
		return err
	}

	have, err := store.Enum(ctx, op.Spec.TypeName)
	if err != nil {
		return fmt.Errorf("failed to inspect enum %s: %w", op.Spec.TypeName, err)
	}
	if have != nil {
		if equalStrings(have.Values, op.Spec.Values) {
			return nil
		}
		return conflict("create enum", op.Spec.TypeName, "", "enum exists with values %v", have.Values)
	}

	return store.CreateEnum(ctx, op.Spec)
}

type DropEnumType struct {
	Name string
}

func (op DropEnumType) String() string {
	return "drop enum " + op.Name
}

func (op DropEnumType) Apply(ctx context.Context, store Store) error {
	have, err := store.Enum(ctx, op.Name)
	if err != nil {
		return fmt.Errorf("failed to inspect enum %s: %w", op.Name, err)
	}
	if have == nil {
		return nil
	}

	users, err := store.EnumColumns(ctx, op.Name)
	if err != nil {
		return fmt.Errorf("failed to inspect columns of enum %s: %w", op.Name, err)
	}
	if len(users) > 0 {
		return conflict("drop enum", op.Name, "", "enum is used by %s", users[0])
	}
	return store.DropEnum(ctx, op.Name)
}

// ---

func requireEmpty(ctx context.Context, store DataStore, op, table, column string) error {
	found := false
	err := store.Scan(ctx, Query{Table: table}, func(Row) error {
		found = true
		return ErrStopScan
	})
	if err != nil && !errors.Is(err, ErrStopScan) {
		return fmt.Errorf("failed to scan %s: %w", table, err)
	}
	if found {
		return conflict(op, table, column, "non-nullable column without a default on a non-empty table")
	}
	return nil
}

func contains(items []string, item string) bool {
	for _, it := range items {
		if it == item {
			return true
		}
	}
	return false
}
