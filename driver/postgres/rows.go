package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/root-talis/fuelmig/schema"
)

// Scan buffers the result before calling fn, so fn may write through the
// same transaction.
func (tx *postgresTx) Scan(ctx context.Context, query schema.Query, fn func(schema.Row) error) error {
	table, err := tx.requireTable(ctx, query.Table)
	if err != nil {
		return err
	}

	columns := query.Columns
	if len(columns) == 0 {
		columns = make([]string, 0, len(table.Columns))
		for _, col := range table.Columns {
			columns = append(columns, col.Name)
		}
	}

	selected := make([]string, len(columns))
	for i, name := range columns {
		col, ok := table.Column(name)
		if !ok {
			return fmt.Errorf("column %s.%s does not exist", query.Table, name)
		}
		selected[i] = selectExpr(col)
	}

	b := &statement{schema: tx.schema}
	b.WriteString("SELECT " + strings.Join(selected, ", ") + " FROM " + tx.qualified(query.Table))
	b.where(table, query.Where, query.NotNull)
	if len(query.OrderBy) > 0 {
		b.WriteString(" ORDER BY " + quoteIdents(query.OrderBy))
	}

	rows, err := tx.tx.Query(ctx, b.String(), b.args...)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", query.Table, txError(err))
	}

	var buffered []schema.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan %s: %w", query.Table, err)
		}
		row := make(schema.Row, len(columns))
		for i, name := range columns {
			row[name] = normalize(values[i])
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

func (tx *postgresTx) Insert(ctx context.Context, table string, row schema.Row) (interface{}, error) {
	def, err := tx.requireTable(ctx, table)
	if err != nil {
		return nil, err
	}

	b := &statement{schema: tx.schema}
	names := sortedKeys(row)
	placeholders := make([]string, len(names))
	for i, name := range names {
		col, ok := def.Column(name)
		if !ok {
			return nil, fmt.Errorf("column %s.%s does not exist", table, name)
		}
		placeholders[i] = b.param(col, row[name])
	}

	if len(names) == 0 {
		b.WriteString("INSERT INTO " + tx.qualified(table) + " DEFAULT VALUES")
	} else {
		b.WriteString(fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s)",
			tx.qualified(table), quoteIdents(names), strings.Join(placeholders, ", "),
		))
	}

	key, hasKey := def.Key()
	if !hasKey {
		if _, err := tx.exec(ctx, b.String(), b.args...); err != nil {
			return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
		}
		return nil, nil
	}

	b.WriteString(" RETURNING " + quoteIdent(key))
	var id interface{}
	if err := tx.tx.QueryRow(ctx, b.String(), b.args...).Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, txError(err))
	}
	return normalize(id), nil
}

func (tx *postgresTx) Update(ctx context.Context, table string, where schema.Row, set schema.Row) (int64, error) {
	def, err := tx.requireTable(ctx, table)
	if err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, nil
	}

	b := &statement{schema: tx.schema}
	assignments := make([]string, 0, len(set))
	for _, name := range sortedKeys(set) {
		col, ok := def.Column(name)
		if !ok {
			return 0, fmt.Errorf("column %s.%s does not exist", table, name)
		}
		assignments = append(assignments, quoteIdent(name)+" = "+b.param(col, set[name]))
	}
	b.WriteString("UPDATE " + tx.qualified(table) + " SET " + strings.Join(assignments, ", "))
	b.where(def, where, nil)

	affected, err := tx.exec(ctx, b.String(), b.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table, err)
	}
	return affected, nil
}

func (tx *postgresTx) Delete(ctx context.Context, table string, where schema.Row) (int64, error) {
	def, err := tx.requireTable(ctx, table)
	if err != nil {
		return 0, err
	}

	b := &statement{schema: tx.schema}
	b.WriteString("DELETE FROM " + tx.qualified(table))
	b.where(def, where, nil)

	affected, err := tx.exec(ctx, b.String(), b.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return affected, nil
}

func (tx *postgresTx) requireTable(ctx context.Context, name string) (*schema.Table, error) {
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

// statement collects SQL text and positional arguments.
type statement struct {
	strings.Builder
	schema string
	args   []interface{}
}

// param binds value for col. Enum and JSON values travel as text and are
// cast on the server.
func (s *statement) param(col schema.Column, value interface{}) string {
	s.args = append(s.args, value)
	placeholder := fmt.Sprintf("$%d", len(s.args))

	switch col.Type.Kind {
	case schema.JSON:
		return placeholder + "::text::jsonb"
	case schema.Enum:
		return placeholder + "::text::" + quoteIdent(s.schema) + "." + quoteIdent(col.Type.EnumName)
	default:
		return placeholder
	}
}

// where renders column equality. Unknown columns compare as text.
func (s *statement) where(table *schema.Table, match schema.Row, notNull []string) {
	conditions := make([]string, 0, len(match)+len(notNull))
	for _, name := range sortedKeys(match) {
		col, ok := table.Column(name)
		expr := quoteIdent(name)
		if !ok || col.Type.Kind == schema.JSON || col.Type.Kind == schema.Enum {
			expr += "::text"
		}

		value := match[name]
		if value == nil {
			conditions = append(conditions, expr+" IS NULL")
			continue
		}
		s.args = append(s.args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", expr, len(s.args)))
	}
	for _, name := range notNull {
		conditions = append(conditions, quoteIdent(name)+" IS NOT NULL")
	}

	if len(conditions) > 0 {
		s.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
}

func selectExpr(col schema.Column) string {
	switch col.Type.Kind {
	case schema.JSON, schema.Enum:
		return quoteIdent(col.Name) + "::text"
	default:
		return quoteIdent(col.Name)
	}
}

func normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case float32:
		return float64(v)
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC()
	default:
		return v
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
