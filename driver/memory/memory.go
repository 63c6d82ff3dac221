// Package memory implements a driver that keeps the whole schema state in
// process memory. Every transaction works on a private copy that replaces the
// shared state on commit, so a failed step leaves no trace.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/root-talis/fuelmig/driver"
	"github.com/root-talis/fuelmig/migration"
	"github.com/root-talis/fuelmig/schema"
)

var (
	ErrNoSuchTable  = errors.New("table does not exist")
	ErrNoSuchColumn = errors.New("column does not exist")
	ErrNoSuchEnum   = errors.New("enum does not exist")
	ErrInvalidValue = errors.New("value violates column definition")
	ErrInUse        = errors.New("object is referenced by another object")
)

type Option func(*memoryDriver)

// WithMutableEnums makes the store alter enum types in place instead of
// requiring the create-and-swap protocol.
func WithMutableEnums() Option {
	return func(d *memoryDriver) {
		d.mutableEnums = true
	}
}

// WithClock overrides the time source used for log entries.
func WithClock(now func() time.Time) Option {
	return func(d *memoryDriver) {
		d.now = now
	}
}

// Driver is the memory driver. It exposes snapshots on top of driver.Driver.
type Driver interface {
	driver.Driver
	Snapshot() Snapshot
}

type memoryDriver struct {
	lock         chan struct{}
	mu           sync.Mutex
	state        *state
	log          []migration.Log
	mutableEnums bool
	now          func() time.Time
}

func NewDriver(opts ...Option) Driver {
	d := &memoryDriver{
		lock:  make(chan struct{}, 1),
		state: newState(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *memoryDriver) ListMigrationsLog(_ context.Context) (*[]migration.Log, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make([]migration.Log, len(d.log))
	copy(result, d.log)
	return &result, nil
}

func (d *memoryDriver) Begin(ctx context.Context) (driver.Tx, error) {
	select {
	case d.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to acquire the store: %w", ctx.Err())
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var tx driver.Tx = &memoryTx{
		driver: d,
		state:  d.state.clone(),
		log:    append([]migration.Log(nil), d.log...),
	}
	if d.mutableEnums {
		tx = &mutableTx{tx.(*memoryTx)}
	}
	return tx, nil
}

func (d *memoryDriver) Close() error {
	return nil
}

func (d *memoryDriver) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.snapshot()
}

// ---

type memoryTx struct {
	driver *memoryDriver
	state  *state
	log    []migration.Log
	done   bool
}

// mutableTx adds the in-place enum capability.
type mutableTx struct {
	*memoryTx
}

func (tx *memoryTx) finish() error {
	if tx.done {
		return driver.ErrTxDone
	}
	tx.done = true
	<-tx.driver.lock
	return nil
}

func (tx *memoryTx) Commit(_ context.Context) error {
	if tx.done {
		return driver.ErrTxDone
	}

	tx.driver.mu.Lock()
	tx.driver.state = tx.state
	tx.driver.log = tx.log
	tx.driver.mu.Unlock()

	return tx.finish()
}

func (tx *memoryTx) Rollback(_ context.Context) error {
	return tx.finish()
}

func (tx *memoryTx) AppendLog(_ context.Context, log migration.Log) error {
	if tx.done {
		return driver.ErrTxDone
	}
	if log.AppliedAt.IsZero() {
		log.AppliedAt = tx.driver.now().UTC()
	}
	tx.log = append(tx.log, log)
	return nil
}

func (tx *memoryTx) Exec(_ context.Context, statement string, _ ...interface{}) error {
	return fmt.Errorf("%w: memory store cannot run raw statements (%.40q)", schema.ErrUnsupported, statement)
}

// ---

func (tx *memoryTx) Table(_ context.Context, name string) (*schema.Table, error) {
	t, ok := tx.state.tables[name]
	if !ok {
		return nil, nil
	}
	def := cloneTable(t.def)
	return &def, nil
}

func (tx *memoryTx) Index(_ context.Context, table, name string) (*schema.Index, error) {
	idx, ok := tx.state.indexes[indexKey(table, name)]
	if !ok {
		return nil, nil
	}
	idx.Columns = append([]string(nil), idx.Columns...)
	return &idx, nil
}

func (tx *memoryTx) Enum(_ context.Context, name string) (*schema.EnumSpec, error) {
	values, ok := tx.state.enums[name]
	if !ok {
		return nil, nil
	}
	return &schema.EnumSpec{TypeName: name, Values: append([]string(nil), values...)}, nil
}

func (tx *memoryTx) ReferencingTables(_ context.Context, table string) ([]string, error) {
	var names []string
	for name, t := range tx.state.tables {
		if name == table {
			continue
		}
		for _, fk := range t.def.ForeignKeys {
			if fk.RefTable == table {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func (tx *memoryTx) EnumColumns(_ context.Context, name string) ([]schema.ColumnRef, error) {
	return tx.enumColumns(name), nil
}

// ---

func (tx *memoryTx) CreateTable(_ context.Context, table *schema.Table) error {
	if _, exists := tx.state.tables[table.Name]; exists {
		return fmt.Errorf("table %s already exists", table.Name)
	}
	for _, col := range table.Columns {
		if err := tx.checkType(col.Type); err != nil {
			return err
		}
	}
	for _, fk := range table.ForeignKeys {
		if err := tx.checkReference(table, fk); err != nil {
			return err
		}
	}
	tx.state.tables[table.Name] = &tableState{def: cloneTable(*table), nextID: 1}
	return nil
}

func (tx *memoryTx) DropTable(_ context.Context, name string) error {
	if _, err := tx.table(name); err != nil {
		return err
	}
	for other, t := range tx.state.tables {
		if other == name {
			continue
		}
		for _, fk := range t.def.ForeignKeys {
			if fk.RefTable == name {
				return fmt.Errorf("%w: table %s is referenced by %s.%s", ErrInUse, name, other, fk.Name)
			}
		}
	}
	delete(tx.state.tables, name)
	for key, idx := range tx.state.indexes {
		if idx.Table == name {
			delete(tx.state.indexes, key)
		}
	}
	return nil
}

func (tx *memoryTx) AddColumn(_ context.Context, table string, column schema.Column) error {
	t, err := tx.table(table)
	if err != nil {
		return err
	}
	if _, exists := t.def.Column(column.Name); exists {
		return fmt.Errorf("column %s.%s already exists", table, column.Name)
	}
	if err := tx.checkType(column.Type); err != nil {
		return err
	}

	value, err := defaultValue(column)
	if err != nil {
		return err
	}
	if value == nil && !column.Nullable && len(t.rows) > 0 {
		return fmt.Errorf("%w: %s.%s is not nullable and has no default", ErrInvalidValue, table, column.Name)
	}

	t.def.Columns = append(t.def.Columns, column)
	for _, row := range t.rows {
		row[column.Name] = value
	}
	return nil
}

func (tx *memoryTx) DropColumn(_ context.Context, table, column string) error {
	t, err := tx.table(table)
	if err != nil {
		return err
	}
	if _, ok := t.def.Column(column); !ok {
		return fmt.Errorf("%w: %s.%s", ErrNoSuchColumn, table, column)
	}
	if err := tx.checkUnreferenced(table, column); err != nil {
		return err
	}

	cols := t.def.Columns[:0]
	for _, col := range t.def.Columns {
		if col.Name != column {
			cols = append(cols, col)
		}
	}
	t.def.Columns = cols
	for _, row := range t.rows {
		delete(row, column)
	}
	for key, idx := range tx.state.indexes {
		if idx.Table == table && containsString(idx.Columns, column) {
			delete(tx.state.indexes, key)
		}
	}
	return nil
}

func (tx *memoryTx) RenameColumn(_ context.Context, table, from, to string) error {
	t, err := tx.table(table)
	if err != nil {
		return err
	}
	if _, ok := t.def.Column(from); !ok {
		return fmt.Errorf("%w: %s.%s", ErrNoSuchColumn, table, from)
	}

	for i := range t.def.Columns {
		if t.def.Columns[i].Name == from {
			t.def.Columns[i].Name = to
		}
	}
	renameIn(t.def.PrimaryKey, from, to)
	for _, fk := range t.def.ForeignKeys {
		renameIn(fk.Columns, from, to)
	}
	for _, uc := range t.def.Uniques {
		renameIn(uc.Columns, from, to)
	}
	// referencing foreign keys follow the renamed column
	for _, other := range tx.state.tables {
		for _, fk := range other.def.ForeignKeys {
			if fk.RefTable == table {
				renameIn(fk.RefColumns, from, to)
			}
		}
	}
	for _, idx := range tx.state.indexes {
		if idx.Table == table {
			renameIn(idx.Columns, from, to)
		}
	}
	for _, row := range t.rows {
		row[to] = row[from]
		delete(row, from)
	}
	return nil
}

func (tx *memoryTx) AlterColumnType(_ context.Context, table, column string, typ schema.Type) error {
	t, err := tx.table(table)
	if err != nil {
		return err
	}
	for i := range t.def.Columns {
		if t.def.Columns[i].Name != column {
			continue
		}
		for _, row := range t.rows {
			converted, err := convert(row[column], typ)
			if err != nil {
				return fmt.Errorf("%w: %s.%s: %v", ErrInvalidValue, table, column, err)
			}
			row[column] = converted
		}
		t.def.Columns[i].Type = typ
		return nil
	}
	return fmt.Errorf("%w: %s.%s", ErrNoSuchColumn, table, column)
}

func (tx *memoryTx) AddForeignKey(_ context.Context, table string, fk schema.ForeignKey) error {
	t, err := tx.table(table)
	if err != nil {
		return err
	}
	if t.def.HasConstraint(fk.Name) {
		return fmt.Errorf("constraint %s.%s already exists", table, fk.Name)
	}
	if err := tx.checkReference(&t.def, fk); err != nil {
		return err
	}
	t.def.ForeignKeys = append(t.def.ForeignKeys, cloneForeignKey(fk))
	return nil
}

func (tx *memoryTx) DropConstraint(_ context.Context, table, name string) error {
	t, err := tx.table(table)
	if err != nil {
		return err
	}

	fks := t.def.ForeignKeys[:0]
	found := false
	for _, fk := range t.def.ForeignKeys {
		if fk.Name == name {
			found = true
			continue
		}
		fks = append(fks, fk)
	}
	t.def.ForeignKeys = fks

	ucs := t.def.Uniques[:0]
	for _, uc := range t.def.Uniques {
		if uc.Name == name {
			found = true
			continue
		}
		ucs = append(ucs, uc)
	}
	t.def.Uniques = ucs

	if !found {
		return fmt.Errorf("constraint %s.%s does not exist", table, name)
	}
	return nil
}

func (tx *memoryTx) CreateIndex(_ context.Context, index schema.Index) error {
	t, err := tx.table(index.Table)
	if err != nil {
		return err
	}
	for _, col := range index.Columns {
		if _, ok := t.def.Column(col); !ok {
			return fmt.Errorf("%w: %s.%s", ErrNoSuchColumn, index.Table, col)
		}
	}
	key := indexKey(index.Table, index.Name)
	if _, exists := tx.state.indexes[key]; exists {
		return fmt.Errorf("index %s already exists", index.Name)
	}
	index.Columns = append([]string(nil), index.Columns...)
	tx.state.indexes[key] = index
	return nil
}

func (tx *memoryTx) DropIndex(_ context.Context, table, name string) error {
	key := indexKey(table, name)
	if _, exists := tx.state.indexes[key]; !exists {
		return fmt.Errorf("index %s does not exist", name)
	}
	delete(tx.state.indexes, key)
	return nil
}

func (tx *memoryTx) CreateEnum(_ context.Context, spec schema.EnumSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if _, exists := tx.state.enums[spec.TypeName]; exists {
		return fmt.Errorf("enum %s already exists", spec.TypeName)
	}
	tx.state.enums[spec.TypeName] = append([]string(nil), spec.Values...)
	return nil
}

func (tx *memoryTx) DropEnum(_ context.Context, name string) error {
	if _, exists := tx.state.enums[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNoSuchEnum, name)
	}
	if refs := tx.enumColumns(name); len(refs) > 0 {
		return fmt.Errorf("%w: enum %s is used by %s", ErrInUse, name, refs[0])
	}
	delete(tx.state.enums, name)
	return nil
}

// ---

func (tx *memoryTx) RetypeColumn(_ context.Context, ref schema.ColumnRef, enumName string) error {
	values, ok := tx.state.enums[enumName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchEnum, enumName)
	}
	t, err := tx.table(ref.Table)
	if err != nil {
		return err
	}

	for i := range t.def.Columns {
		if t.def.Columns[i].Name != ref.Column {
			continue
		}
		legal := toSet(values)
		for _, row := range t.rows {
			if v, ok := row[ref.Column].(string); ok {
				if _, ok := legal[v]; !ok {
					return fmt.Errorf("%w: %s holds %q which is not in enum %s", ErrInvalidValue, ref, v, enumName)
				}
			}
		}
		t.def.Columns[i].Type = schema.EnumType(enumName)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNoSuchColumn, ref)
}

func (tx *memoryTx) RenameEnum(_ context.Context, from, to string) error {
	values, ok := tx.state.enums[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchEnum, from)
	}
	if _, exists := tx.state.enums[to]; exists {
		return fmt.Errorf("enum %s already exists", to)
	}
	delete(tx.state.enums, from)
	tx.state.enums[to] = values

	for _, t := range tx.state.tables {
		for i := range t.def.Columns {
			if t.def.Columns[i].Type.Kind == schema.Enum && t.def.Columns[i].Type.EnumName == from {
				t.def.Columns[i].Type.EnumName = to
			}
		}
	}
	return nil
}

func (tx *mutableTx) SetEnumValues(_ context.Context, spec schema.EnumSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if _, ok := tx.state.enums[spec.TypeName]; !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchEnum, spec.TypeName)
	}

	legal := toSet(spec.Values)
	for _, ref := range tx.enumColumns(spec.TypeName) {
		for _, row := range tx.state.tables[ref.Table].rows {
			if v, ok := row[ref.Column].(string); ok {
				if _, ok := legal[v]; !ok {
					return fmt.Errorf("%w: %s holds %q which is not in %v", ErrInvalidValue, ref, v, spec.Values)
				}
			}
		}
	}

	tx.state.enums[spec.TypeName] = append([]string(nil), spec.Values...)
	return nil
}

// ---

func (tx *memoryTx) Scan(ctx context.Context, query schema.Query, fn func(schema.Row) error) error {
	t, err := tx.table(query.Table)
	if err != nil {
		return err
	}
	for _, col := range append(append([]string(nil), query.Columns...), query.OrderBy...) {
		if _, ok := t.def.Column(col); !ok {
			return fmt.Errorf("%w: %s.%s", ErrNoSuchColumn, query.Table, col)
		}
	}

	where, err := normalizeRow(query.Where)
	if err != nil {
		return err
	}

	var matched []schema.Row
	for _, row := range t.rows {
		if matches(row, where, query.NotNull) {
			matched = append(matched, row)
		}
	}
	if len(query.OrderBy) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			return lessRows(matched[i], matched[j], query.OrderBy)
		})
	}

	for _, row := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(project(row, query.Columns)); err != nil {
			if errors.Is(err, schema.ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (tx *memoryTx) Insert(_ context.Context, table string, row schema.Row) (interface{}, error) {
	t, err := tx.table(table)
	if err != nil {
		return nil, err
	}

	values, err := normalizeRow(row)
	if err != nil {
		return nil, err
	}

	record := make(schema.Row, len(t.def.Columns))
	for _, col := range t.def.Columns {
		value, given := values[col.Name]
		switch {
		case given:
		case col.AutoIncrement:
			value = t.nextID
		default:
			if value, err = defaultValue(col); err != nil {
				return nil, err
			}
		}
		if err := tx.checkValue(table, col, value); err != nil {
			return nil, err
		}
		record[col.Name] = value
	}
	for name := range values {
		if _, ok := t.def.Column(name); !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrNoSuchColumn, table, name)
		}
	}
	if err := tx.checkUniques(t, record, -1); err != nil {
		return nil, err
	}

	if id, ok := record[firstKey(&t.def)].(int64); ok && id >= t.nextID {
		t.nextID = id + 1
	}
	t.rows = append(t.rows, record)

	return record[firstKey(&t.def)], nil
}

func (tx *memoryTx) Update(_ context.Context, table string, where schema.Row, set schema.Row) (int64, error) {
	t, err := tx.table(table)
	if err != nil {
		return 0, err
	}
	where, err = normalizeRow(where)
	if err != nil {
		return 0, err
	}
	set, err = normalizeRow(set)
	if err != nil {
		return 0, err
	}

	for name, value := range set {
		col, ok := t.def.Column(name)
		if !ok {
			return 0, fmt.Errorf("%w: %s.%s", ErrNoSuchColumn, table, name)
		}
		if err := tx.checkValue(table, col, value); err != nil {
			return 0, err
		}
	}

	var affected int64
	for i, row := range t.rows {
		if !matches(row, where, nil) {
			continue
		}
		updated := cloneRow(row)
		for name, value := range set {
			updated[name] = value
		}
		if err := tx.checkUniques(t, updated, i); err != nil {
			return 0, err
		}
		t.rows[i] = updated
		affected++
	}
	return affected, nil
}

func (tx *memoryTx) Delete(_ context.Context, table string, where schema.Row) (int64, error) {
	t, err := tx.table(table)
	if err != nil {
		return 0, err
	}
	where, err = normalizeRow(where)
	if err != nil {
		return 0, err
	}

	kept := t.rows[:0]
	var affected int64
	for _, row := range t.rows {
		if matches(row, where, nil) {
			affected++
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept
	return affected, nil
}

// ---

func (tx *memoryTx) table(name string) (*tableState, error) {
	t, ok := tx.state.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	return t, nil
}

func (tx *memoryTx) checkType(typ schema.Type) error {
	if typ.Kind != schema.Enum {
		return nil
	}
	if _, ok := tx.state.enums[typ.EnumName]; !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchEnum, typ.EnumName)
	}
	return nil
}

func (tx *memoryTx) checkReference(table *schema.Table, fk schema.ForeignKey) error {
	for _, col := range fk.Columns {
		if _, ok := table.Column(col); !ok {
			return fmt.Errorf("%w: %s.%s", ErrNoSuchColumn, table.Name, col)
		}
	}

	ref := table
	if fk.RefTable != table.Name {
		t, err := tx.table(fk.RefTable)
		if err != nil {
			return err
		}
		ref = &t.def
	}
	for _, col := range fk.RefColumns {
		if _, ok := ref.Column(col); !ok {
			return fmt.Errorf("%w: %s.%s", ErrNoSuchColumn, fk.RefTable, col)
		}
	}
	return nil
}

func (tx *memoryTx) checkUnreferenced(table, column string) error {
	for name, t := range tx.state.tables {
		for _, fk := range t.def.ForeignKeys {
			if (fk.RefTable == table && containsString(fk.RefColumns, column)) ||
				(name == table && containsString(fk.Columns, column)) {
				return fmt.Errorf("%w: %s.%s is used by %s.%s", ErrInUse, table, column, name, fk.Name)
			}
		}
	}
	return nil
}

func (tx *memoryTx) checkValue(table string, col schema.Column, value interface{}) error {
	if value == nil {
		if !col.Nullable && !col.AutoIncrement {
			return fmt.Errorf("%w: %s.%s must not be null", ErrInvalidValue, table, col.Name)
		}
		return nil
	}
	if _, err := convert(value, col.Type); err != nil {
		return fmt.Errorf("%w: %s.%s: %v", ErrInvalidValue, table, col.Name, err)
	}
	if col.Type.Kind == schema.Enum {
		s, _ := value.(string)
		if _, ok := toSet(tx.state.enums[col.Type.EnumName])[s]; !ok {
			return fmt.Errorf("%w: %s.%s: %q is not in enum %s", ErrInvalidValue, table, col.Name, s, col.Type.EnumName)
		}
	}
	return nil
}

func (tx *memoryTx) checkUniques(t *tableState, record schema.Row, self int) error {
	keys := make([][]string, 0, len(t.def.Uniques)+1)
	if len(t.def.PrimaryKey) > 0 {
		keys = append(keys, t.def.PrimaryKey)
	}
	for _, uc := range t.def.Uniques {
		keys = append(keys, uc.Columns)
	}

	for _, cols := range keys {
		for i, row := range t.rows {
			if i == self {
				continue
			}
			same := true
			for _, col := range cols {
				if record[col] == nil || !equalValues(row[col], record[col]) {
					same = false
					break
				}
			}
			if same {
				return fmt.Errorf("%w: %s(%s) duplicates an existing row", ErrInvalidValue, t.def.Name, strings.Join(cols, ","))
			}
		}
	}
	return nil
}

func (tx *memoryTx) enumColumns(name string) []schema.ColumnRef {
	var refs []schema.ColumnRef
	for tableName, t := range tx.state.tables {
		for _, col := range t.def.Columns {
			if col.Type.Kind == schema.Enum && col.Type.EnumName == name {
				refs = append(refs, schema.ColumnRef{Table: tableName, Column: col.Name})
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
	return refs
}

// ---

func defaultValue(col schema.Column) (interface{}, error) {
	if col.Default == nil {
		return nil, nil
	}
	value, err := convert(*col.Default, col.Type)
	if err != nil {
		return nil, fmt.Errorf("bad default for %s: %w", col.Name, err)
	}
	return value, nil
}

// convert coerces a normalized value into the representation used for typ.
func convert(value interface{}, typ schema.Type) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch typ.Kind {
	case schema.Integer, schema.BigInteger:
		switch v := value.(type) {
		case int64:
			return v, nil
		case string:
			return strconv.ParseInt(v, 10, 64)
		}
	case schema.Boolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(v)
		}
	case schema.DateTime:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			return time.Parse(time.RFC3339, v)
		}
	case schema.String:
		if v, ok := value.(string); ok {
			if typ.Length > 0 && len([]rune(v)) > typ.Length {
				return nil, fmt.Errorf("%q is longer than %d", v, typ.Length)
			}
			return v, nil
		}
	case schema.Text, schema.JSON, schema.Enum:
		if v, ok := value.(string); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%v (%T) cannot be stored as %s", value, value, typ)
}

func normalizeRow(row schema.Row) (schema.Row, error) {
	out := make(schema.Row, len(row))
	for k, v := range row {
		n, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func normalize(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil, int64, string, bool, float64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float32:
		return float64(v), nil
	case []byte:
		return string(v), nil
	case time.Time:
		return v.UTC(), nil
	case *string:
		if v == nil {
			return nil, nil
		}
		return *v, nil
	default:
		return nil, fmt.Errorf("%w: unsupported value type %T", ErrInvalidValue, value)
	}
}

func matches(row schema.Row, where schema.Row, notNull []string) bool {
	for col, want := range where {
		if !equalValues(row[col], want) {
			return false
		}
	}
	for _, col := range notNull {
		if row[col] == nil {
			return false
		}
	}
	return true
}

func equalValues(a, b interface{}) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}

func lessRows(a, b schema.Row, cols []string) bool {
	for _, col := range cols {
		if c := compareValues(a[col], b[col]); c != 0 {
			return c < 0
		}
	}
	return false
}

func compareValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if ia, ok := a.(int64); ok {
		if ib, ok := b.(int64); ok {
			switch {
			case ia < ib:
				return -1
			case ia > ib:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(schema.KeyString(a), schema.KeyString(b))
}

func project(row schema.Row, columns []string) schema.Row {
	if len(columns) == 0 {
		return cloneRow(row)
	}
	out := make(schema.Row, len(columns))
	for _, col := range columns {
		out[col] = row[col]
	}
	return out
}

func firstKey(t *schema.Table) string {
	if len(t.PrimaryKey) == 0 {
		return ""
	}
	return t.PrimaryKey[0]
}

func renameIn(items []string, from, to string) {
	for i := range items {
		if items[i] == from {
			items[i] = to
		}
	}
}

func containsString(items []string, item string) bool {
	for _, it := range items {
		if it == item {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func indexKey(table, name string) string {
	return table + "." + name
}
