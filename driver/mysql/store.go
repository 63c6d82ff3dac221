package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/root-talis/fuelmig/schema"
)

// Column comments carry what MySQL types cannot express.
const (
	jsonComment = "json"
	enumComment = "enum:"
)

var ErrNoSuchTable = errors.New("table does not exist")

const columnsQuery = "SELECT column_name, data_type, COALESCE(character_maximum_length, 0), " +
	"is_nullable = 'YES', column_default, extra LIKE '%auto_increment%', column_comment " +
	"FROM information_schema.columns WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position"

const constraintsQuery = "SELECT k.constraint_name, tc.constraint_type, COALESCE(rc.delete_rule, ''), " +
	"k.column_name, COALESCE(k.referenced_table_name, ''), COALESCE(k.referenced_column_name, '') " +
	"FROM information_schema.key_column_usage k " +
	"JOIN information_schema.table_constraints tc ON tc.constraint_schema = k.constraint_schema " +
	"AND tc.table_name = k.table_name AND tc.constraint_name = k.constraint_name " +
	"LEFT JOIN information_schema.referential_constraints rc ON rc.constraint_schema = k.constraint_schema " +
	"AND rc.table_name = k.table_name AND rc.constraint_name = k.constraint_name " +
	"WHERE k.table_schema = ? AND k.table_name = ? " +
	"ORDER BY k.constraint_name, k.ordinal_position"

// ---

func (tx *mysqlTx) Table(ctx context.Context, name string) (*schema.Table, error) {
	columns, err := tx.columns(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, nil
	}

	table := &schema.Table{Name: name, Columns: columns}
	if err := tx.constraints(ctx, table); err != nil {
		return nil, err
	}
	return table, nil
}

func (tx *mysqlTx) columns(ctx context.Context, table string) ([]schema.Column, error) {
	rows, err := tx.tx.QueryContext(ctx, columnsQuery, tx.database, table)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect columns of %s: %w", table, txError(err))
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var (
			col               schema.Column
			dataType, comment string
			length            int64
			defaultValue      sql.NullString
		)
		if err := rows.Scan(&col.Name, &dataType, &length, &col.Nullable, &defaultValue, &col.AutoIncrement, &comment); err != nil {
			return nil, fmt.Errorf("failed to inspect columns of %s: %w", table, err)
		}

		col.Type, err = columnType(dataType, int(length), comment)
		if err != nil {
			return nil, fmt.Errorf("column %s.%s: %w", table, col.Name, err)
		}
		if value, ok := parseDefault(defaultValue); ok {
			col.Default = schema.Default(value)
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (tx *mysqlTx) constraints(ctx context.Context, table *schema.Table) error {
	rows, err := tx.tx.QueryContext(ctx, constraintsQuery, tx.database, table.Name)
	if err != nil {
		return fmt.Errorf("failed to inspect constraints of %s: %w", table.Name, txError(err))
	}
	defer rows.Close()

	var (
		order []string
		keys  = make(map[string]*schema.ForeignKey)
		kinds = make(map[string]string)
		cols  = make(map[string][]string)
	)
	for rows.Next() {
		var name, kind, deleteRule, column, refTable, refColumn string
		if err := rows.Scan(&name, &kind, &deleteRule, &column, &refTable, &refColumn); err != nil {
			return fmt.Errorf("failed to inspect constraints of %s: %w", table.Name, err)
		}

		if _, seen := kinds[name]; !seen {
			order = append(order, name)
			kinds[name] = kind
		}
		cols[name] = append(cols[name], column)

		if kind != "FOREIGN KEY" {
			continue
		}
		fk, ok := keys[name]
		if !ok {
			policy, err := schema.ParseDeletePolicy(deleteRule)
			if err != nil {
				return fmt.Errorf("constraint %s.%s: %w", table.Name, name, err)
			}
			fk = &schema.ForeignKey{Name: name, RefTable: refTable, OnDelete: policy}
			keys[name] = fk
		}
		fk.Columns = append(fk.Columns, column)
		fk.RefColumns = append(fk.RefColumns, refColumn)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, name := range order {
		switch kinds[name] {
		case "PRIMARY KEY":
			table.PrimaryKey = cols[name]
		case "UNIQUE":
			table.Uniques = append(table.Uniques, schema.Unique{Name: name, Columns: cols[name]})
		case "FOREIGN KEY":
			table.ForeignKeys = append(table.ForeignKeys, *keys[name])
		}
	}
	return nil
}

func (tx *mysqlTx) Index(ctx context.Context, table, name string) (*schema.Index, error) {
	rows, err := tx.tx.QueryContext(ctx,
		"SELECT non_unique, column_name FROM information_schema.statistics "+
			"WHERE table_schema = ? AND table_name = ? AND index_name = ? ORDER BY seq_in_index",
		tx.database, table, name)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect index %s.%s: %w", table, name, txError(err))
	}
	defer rows.Close()

	var index *schema.Index
	for rows.Next() {
		var nonUnique int
		var column string
		if err := rows.Scan(&nonUnique, &column); err != nil {
			return nil, fmt.Errorf("failed to inspect index %s.%s: %w", table, name, err)
		}
		if index == nil {
			index = &schema.Index{Name: name, Table: table, Unique: nonUnique == 0}
		}
		index.Columns = append(index.Columns, column)
	}
	return index, rows.Err()
}

func (tx *mysqlTx) Enum(ctx context.Context, name string) (*schema.EnumSpec, error) {
	var labels string
	err := tx.tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT labels FROM %s WHERE type_name = ?", tx.enumsTable), name,
	).Scan(&labels)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to inspect enum %s: %w", name, txError(err))
	}

	spec := &schema.EnumSpec{TypeName: name}
	if err := json.Unmarshal([]byte(labels), &spec.Values); err != nil {
		return nil, fmt.Errorf("enum catalog entry %s is malformed: %w", name, err)
	}
	return spec, nil
}

// ---

func (tx *mysqlTx) CreateTable(ctx context.Context, table *schema.Table) error {
	defs := make([]string, 0, len(table.Columns)+len(table.ForeignKeys)+len(table.Uniques)+1)
	for _, col := range table.Columns {
		def, err := tx.columnDefinition(ctx, col)
		if err != nil {
			return fmt.Errorf("table %s: %w", table.Name, err)
		}
		defs = append(defs, def)
	}
	if len(table.PrimaryKey) > 0 {
		defs = append(defs, "PRIMARY KEY ("+quoteIdents(table.PrimaryKey)+")")
	}
	for _, uc := range table.Uniques {
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", quoteIdent(uc.Name), quoteIdents(uc.Columns)))
	}
	for _, fk := range table.ForeignKeys {
		defs = append(defs, tx.foreignKeyDefinition(fk))
	}

	_, err := tx.exec(ctx, fmt.Sprintf(
		"CREATE TABLE %s (%s) ENGINE=InnoDB DEFAULT CHARSET=utf8",
		tx.qualified(table.Name), strings.Join(defs, ", "),
	))
	return err
}

func (tx *mysqlTx) DropTable(ctx context.Context, name string) error {
	_, err := tx.exec(ctx, "DROP TABLE "+tx.qualified(name))
	return err
}

// AddColumn fills the default of a TEXT or JSON column into existing rows,
// since those types take no server default on older servers.
func (tx *mysqlTx) AddColumn(ctx context.Context, table string, column schema.Column) error {
	def, err := tx.columnDefinition(ctx, column)
	if err != nil {
		return fmt.Errorf("table %s: %w", table, err)
	}

	if !lacksServerDefault(column) {
		_, err = tx.exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", tx.qualified(table), def))
		return err
	}

	relaxed := column
	relaxed.Nullable = true
	relaxedDef, err := tx.columnDefinition(ctx, relaxed)
	if err != nil {
		return err
	}
	if _, err := tx.exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", tx.qualified(table), relaxedDef)); err != nil {
		return err
	}
	if _, err := tx.exec(ctx, fmt.Sprintf("UPDATE %s SET %s = ?", tx.qualified(table), quoteIdent(column.Name)), *column.Default); err != nil {
		return err
	}
	if !column.Nullable {
		_, err = tx.exec(ctx, fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", tx.qualified(table), def))
	}
	return err
}

func (tx *mysqlTx) DropColumn(ctx context.Context, table, column string) error {
	_, err := tx.exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", tx.qualified(table), quoteIdent(column)))
	return err
}

// RenameColumn uses CHANGE COLUMN, which every supported server knows.
func (tx *mysqlTx) RenameColumn(ctx context.Context, table, from, to string) error {
	col, err := tx.column(ctx, table, from)
	if err != nil {
		return err
	}
	col.Name = to
	def, err := tx.columnDefinition(ctx, col)
	if err != nil {
		return err
	}
	_, err = tx.exec(ctx, fmt.Sprintf("ALTER TABLE %s CHANGE COLUMN %s %s", tx.qualified(table), quoteIdent(from), def))
	return err
}

func (tx *mysqlTx) AlterColumnType(ctx context.Context, table, column string, typ schema.Type) error {
	col, err := tx.column(ctx, table, column)
	if err != nil {
		return err
	}
	col.Type = typ
	if lacksServerDefault(col) {
		col.Default = nil
	}
	return tx.modifyColumn(ctx, table, col)
}

func (tx *mysqlTx) AddForeignKey(ctx context.Context, table string, fk schema.ForeignKey) error {
	_, err := tx.exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD %s", tx.qualified(table), tx.foreignKeyDefinition(fk)))
	return err
}

func (tx *mysqlTx) DropConstraint(ctx context.Context, table, name string) error {
	def, err := tx.Table(ctx, table)
	if err != nil {
		return err
	}
	if def == nil {
		return fmt.Errorf("%w: %s", ErrNoSuchTable, table)
	}

	if _, ok := def.ForeignKey(name); ok {
		_, err = tx.exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", tx.qualified(table), quoteIdent(name)))
		return err
	}
	_, err = tx.exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP INDEX %s", tx.qualified(table), quoteIdent(name)))
	return err
}

func (tx *mysqlTx) CreateIndex(ctx context.Context, index schema.Index) error {
	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}
	_, err := tx.exec(ctx, fmt.Sprintf(
		"CREATE %sINDEX %s ON %s (%s)",
		unique, quoteIdent(index.Name), tx.qualified(index.Table), quoteIdents(index.Columns),
	))
	return err
}

func (tx *mysqlTx) DropIndex(ctx context.Context, table, name string) error {
	_, err := tx.exec(ctx, fmt.Sprintf("DROP INDEX %s ON %s", quoteIdent(name), tx.qualified(table)))
	return err
}

func (tx *mysqlTx) CreateEnum(ctx context.Context, spec schema.EnumSpec) error {
	labels, err := json.Marshal(spec.Values)
	if err != nil {
		return err
	}
	_, err = tx.exec(ctx, fmt.Sprintf("INSERT INTO %s (type_name, labels) VALUES (?, ?)", tx.enumsTable),
		spec.TypeName, string(labels))
	return err
}

func (tx *mysqlTx) DropEnum(ctx context.Context, name string) error {
	users, err := tx.EnumColumns(ctx, name)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return fmt.Errorf("enum %s is still used by %s", name, users[0])
	}
	_, err = tx.exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE type_name = ?", tx.enumsTable), name)
	return err
}

// SetEnumValues rewrites the catalog entry and every column typed with it.
func (tx *mysqlTx) SetEnumValues(ctx context.Context, spec schema.EnumSpec) error {
	labels, err := json.Marshal(spec.Values)
	if err != nil {
		return err
	}
	if _, err := tx.exec(ctx, fmt.Sprintf("UPDATE %s SET labels = ? WHERE type_name = ?", tx.enumsTable),
		string(labels), spec.TypeName); err != nil {
		return err
	}

	users, err := tx.EnumColumns(ctx, spec.TypeName)
	if err != nil {
		return err
	}
	for _, ref := range users {
		col, err := tx.column(ctx, ref.Table, ref.Column)
		if err != nil {
			return err
		}
		if err := tx.modifyColumn(ctx, ref.Table, col); err != nil {
			return fmt.Errorf("failed to update %s: %w", ref, err)
		}
	}
	return nil
}

func (tx *mysqlTx) EnumColumns(ctx context.Context, name string) ([]schema.ColumnRef, error) {
	rows, err := tx.tx.QueryContext(ctx,
		"SELECT table_name, column_name FROM information_schema.columns "+
			"WHERE table_schema = ? AND column_comment = ? ORDER BY table_name, column_name",
		tx.database, enumComment+name)
	if err != nil {
		return nil, fmt.Errorf("failed to find columns of enum %s: %w", name, txError(err))
	}
	defer rows.Close()

	var refs []schema.ColumnRef
	for rows.Next() {
		var ref schema.ColumnRef
		if err := rows.Scan(&ref.Table, &ref.Column); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (tx *mysqlTx) ReferencingTables(ctx context.Context, table string) ([]string, error) {
	rows, err := tx.tx.QueryContext(ctx,
		"SELECT DISTINCT table_name FROM information_schema.key_column_usage "+
			"WHERE table_schema = ? AND referenced_table_schema = ? AND referenced_table_name = ? "+
			"AND table_name <> ? ORDER BY table_name",
		tx.database, tx.database, table, table)
	if err != nil {
		return nil, fmt.Errorf("failed to find references to %s: %w", table, txError(err))
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (tx *mysqlTx) column(ctx context.Context, table, name string) (schema.Column, error) {
	def, err := tx.Table(ctx, table)
	if err != nil {
		return schema.Column{}, err
	}
	if def == nil {
		return schema.Column{}, fmt.Errorf("%w: %s", ErrNoSuchTable, table)
	}
	col, ok := def.Column(name)
	if !ok {
		return schema.Column{}, fmt.Errorf("column %s.%s does not exist", table, name)
	}
	return col, nil
}

func (tx *mysqlTx) modifyColumn(ctx context.Context, table string, col schema.Column) error {
	def, err := tx.columnDefinition(ctx, col)
	if err != nil {
		return err
	}
	_, err = tx.exec(ctx, fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", tx.qualified(table), def))
	return err
}

// ---

func (tx *mysqlTx) columnDefinition(ctx context.Context, col schema.Column) (string, error) {
	sqlType, comment, err := tx.sqlType(ctx, col.Type)
	if err != nil {
		return "", fmt.Errorf("column %s: %w", col.Name, err)
	}

	def := quoteIdent(col.Name) + " " + sqlType
	if col.Nullable {
		def += " NULL"
	} else {
		def += " NOT NULL"
	}
	if col.AutoIncrement {
		def += " AUTO_INCREMENT"
	}
	if col.Default != nil && !lacksServerDefault(col) {
		literal, err := defaultLiteral(col.Type, *col.Default)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", col.Name, err)
		}
		def += " DEFAULT " + literal
	}
	if comment != "" {
		def += " COMMENT " + quoteLiteral(comment)
	}
	return def, nil
}

func (tx *mysqlTx) foreignKeyDefinition(fk schema.ForeignKey) string {
	return fmt.Sprintf(
		"CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s",
		quoteIdent(fk.Name), quoteIdents(fk.Columns),
		tx.qualified(fk.RefTable), quoteIdents(fk.RefColumns),
		fk.OnDelete,
	)
}

func (tx *mysqlTx) sqlType(ctx context.Context, typ schema.Type) (string, string, error) {
	switch typ.Kind {
	case schema.Integer:
		return "int", "", nil
	case schema.BigInteger:
		return "bigint", "", nil
	case schema.String:
		length := typ.Length
		if length == 0 {
			length = 255
		}
		return fmt.Sprintf("varchar(%d)", length), "", nil
	case schema.Text:
		return "text", "", nil
	case schema.Boolean:
		return "tinyint(1)", "", nil
	case schema.DateTime:
		return "datetime", "", nil
	case schema.JSON:
		return "longtext", jsonComment, nil
	case schema.Enum:
		spec, err := tx.Enum(ctx, typ.EnumName)
		if err != nil {
			return "", "", err
		}
		if spec == nil {
			return "", "", fmt.Errorf("enum %s does not exist", typ.EnumName)
		}
		labels := make([]string, len(spec.Values))
		for i, v := range spec.Values {
			labels[i] = quoteLiteral(v)
		}
		return "enum(" + strings.Join(labels, ", ") + ")", enumComment + typ.EnumName, nil
	default:
		return "", "", fmt.Errorf("%w: column type %s", schema.ErrUnsupported, typ)
	}
}

func columnType(dataType string, length int, comment string) (schema.Type, error) {
	switch {
	case strings.HasPrefix(comment, enumComment):
		return schema.EnumType(strings.TrimPrefix(comment, enumComment)), nil
	case comment == jsonComment:
		return schema.JSONType(), nil
	}

	switch dataType {
	case "int", "smallint", "mediumint":
		return schema.IntegerType(), nil
	case "bigint":
		return schema.BigIntegerType(), nil
	case "varchar", "char":
		return schema.StringType(length), nil
	case "text", "mediumtext", "longtext":
		return schema.TextType(), nil
	case "tinyint":
		return schema.BooleanType(), nil
	case "datetime", "timestamp":
		return schema.DateTimeType(), nil
	case "json":
		return schema.JSONType(), nil
	default:
		return schema.Type{}, fmt.Errorf("%w: column type %s", schema.ErrUnsupported, dataType)
	}
}

func lacksServerDefault(col schema.Column) bool {
	return col.Default != nil && (col.Type.Kind == schema.Text || col.Type.Kind == schema.JSON)
}

// parseDefault reads information_schema defaults. MariaDB quotes string
// literals and reports a missing default as NULL, MySQL does neither.
func parseDefault(value sql.NullString) (string, bool) {
	if !value.Valid || value.String == "NULL" {
		return "", false
	}
	s := value.String
	if len(s) >= 2 && strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") {
		s = strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s, true
}

func defaultLiteral(typ schema.Type, value string) (string, error) {
	switch typ.Kind {
	case schema.Integer, schema.BigInteger:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return "", fmt.Errorf("invalid integer default %q", value)
		}
		return value, nil
	case schema.Boolean:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return "", fmt.Errorf("invalid boolean default %q", value)
		}
		if b {
			return "1", nil
		}
		return "0", nil
	default:
		return quoteLiteral(value), nil
	}
}

// ---

func (tx *mysqlTx) Scan(ctx context.Context, query schema.Query, fn func(schema.Row) error) error {
	table, err := tx.requireTable(ctx, query.Table)
	if err != nil {
		return err
	}

	columns := query.Columns
	if len(columns) == 0 {
		for _, col := range table.Columns {
			columns = append(columns, col.Name)
		}
	}
	types := make([]schema.Type, len(columns))
	for i, name := range columns {
		col, ok := table.Column(name)
		if !ok {
			return fmt.Errorf("column %s.%s does not exist", query.Table, name)
		}
		types[i] = col.Type
	}

	b := &statement{}
	b.WriteString("SELECT " + quoteIdents(columns) + " FROM " + tx.qualified(query.Table))
	b.where(query.Where, query.NotNull)
	if len(query.OrderBy) > 0 {
		b.WriteString(" ORDER BY " + quoteIdents(query.OrderBy))
	}

	rows, err := tx.tx.QueryContext(ctx, b.String(), b.args...)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", query.Table, txError(err))
	}

	var buffered []schema.Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		targets := make([]interface{}, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan %s: %w", query.Table, err)
		}

		row := make(schema.Row, len(columns))
		for i, name := range columns {
			if row[name], err = normalize(types[i], values[i]); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan %s.%s: %w", query.Table, name, err)
			}
		}
		buffered = append(buffered, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to scan %s: %w", query.Table, err)
	}

	for _, row := range buffered {
		if err := fn(row); err != nil {
			if errors.Is(err, schema.ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (tx *mysqlTx) Insert(ctx context.Context, table string, row schema.Row) (interface{}, error) {
	def, err := tx.requireTable(ctx, table)
	if err != nil {
		return nil, err
	}

	b := &statement{}
	names := sortedKeys(row)
	placeholders := make([]string, len(names))
	for i, name := range names {
		placeholders[i] = b.param(row[name])
	}
	b.WriteString(fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		tx.qualified(table), quoteIdents(names), strings.Join(placeholders, ", "),
	))

	res, err := tx.tx.ExecContext(ctx, b.String(), b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, txError(err))
	}

	key, ok := def.Key()
	if !ok {
		return nil, nil
	}
	if value, given := row[key]; given {
		return value, nil
	}
	return res.LastInsertId()
}

func (tx *mysqlTx) Update(ctx context.Context, table string, where schema.Row, set schema.Row) (int64, error) {
	if _, err := tx.requireTable(ctx, table); err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, nil
	}

	b := &statement{}
	assignments := make([]string, 0, len(set))
	for _, name := range sortedKeys(set) {
		assignments = append(assignments, quoteIdent(name)+" = "+b.param(set[name]))
	}
	b.WriteString("UPDATE " + tx.qualified(table) + " SET " + strings.Join(assignments, ", "))
	b.where(where, nil)

	affected, err := tx.exec(ctx, b.String(), b.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table, err)
	}
	return affected, nil
}

func (tx *mysqlTx) Delete(ctx context.Context, table string, where schema.Row) (int64, error) {
	if _, err := tx.requireTable(ctx, table); err != nil {
		return 0, err
	}

	b := &statement{}
	b.WriteString("DELETE FROM " + tx.qualified(table))
	b.where(where, nil)

	affected, err := tx.exec(ctx, b.String(), b.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return affected, nil
}

func (tx *mysqlTx) requireTable(ctx context.Context, name string) (*schema.Table, error) {
	table, err := tx.Table(ctx, name)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	return table, nil
}

// ---

type statement struct {
	strings.Builder
	args []interface{}
}

func (s *statement) param(value interface{}) string {
	s.args = append(s.args, value)
	return "?"
}

func (s *statement) where(match schema.Row, notNull []string) {
	conditions := make([]string, 0, len(match)+len(notNull))
	for _, name := range sortedKeys(match) {
		if match[name] == nil {
			conditions = append(conditions, quoteIdent(name)+" IS NULL")
			continue
		}
		conditions = append(conditions, quoteIdent(name)+" = "+s.param(match[name]))
	}
	for _, name := range notNull {
		conditions = append(conditions, quoteIdent(name)+" IS NOT NULL")
	}

	if len(conditions) > 0 {
		s.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
}

// normalize converts what the driver returns, raw bytes from the text
// protocol or typed values from the binary one, by the declared column type.
func normalize(typ schema.Type, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	raw, isRaw := value.([]byte)
	switch typ.Kind {
	case schema.Integer, schema.BigInteger:
		if isRaw {
			return strconv.ParseInt(string(raw), 10, 64)
		}
		return value, nil
	case schema.Boolean:
		switch v := value.(type) {
		case int64:
			return v != 0, nil
		case []byte:
			return string(v) != "0", nil
		}
		return value, nil
	case schema.DateTime:
		switch v := value.(type) {
		case time.Time:
			return v.UTC(), nil
		case []byte:
			return time.Parse(timeLayout, string(v))
		}
		return value, nil
	default:
		if isRaw {
			return string(raw), nil
		}
		return value, nil
	}
}

func sortedKeys(row schema.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
