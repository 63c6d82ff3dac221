package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/root-talis/fuelmig/schema"
)

const columnsQuery = `
SELECT column_name::text, data_type::text, udt_name::text,
       COALESCE(character_maximum_length, 0)::int,
       is_nullable = 'YES',
       column_default::text,
       is_identity = 'YES'
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

const constraintsQuery = `
SELECT c.conname::text,
       c.contype::text,
       c.confdeltype::text,
       ARRAY(SELECT a.attname::text
             FROM unnest(c.conkey) WITH ORDINALITY AS k(num, pos)
             JOIN pg_attribute a ON a.attrelid = c.conrelid AND a.attnum = k.num
             ORDER BY k.pos),
       COALESCE(rt.relname::text, ''),
       ARRAY(SELECT a.attname::text
             FROM unnest(c.confkey) WITH ORDINALITY AS k(num, pos)
             JOIN pg_attribute a ON a.attrelid = c.confrelid AND a.attnum = k.num
             ORDER BY k.pos)
FROM pg_constraint c
JOIN pg_class t ON t.oid = c.conrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
LEFT JOIN pg_class rt ON rt.oid = c.confrelid
WHERE n.nspname = $1 AND t.relname = $2 AND c.contype IN ('p', 'f', 'u')
ORDER BY c.conname`

const indexQuery = `
SELECT i.indisunique,
       ARRAY(SELECT a.attname::text
             FROM unnest(i.indkey::int2[]) WITH ORDINALITY AS k(num, pos)
             JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = k.num
             ORDER BY k.pos)
FROM pg_index i
JOIN pg_class ic ON ic.oid = i.indexrelid
JOIN pg_class t ON t.oid = i.indrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
WHERE n.nspname = $1 AND t.relname = $2 AND ic.relname = $3`

const enumExistsQuery = `
SELECT EXISTS (
  SELECT 1 FROM pg_type t
  JOIN pg_namespace n ON n.oid = t.typnamespace
  WHERE n.nspname = $1 AND t.typname = $2 AND t.typtype = 'e'
)`

const enumLabelsQuery = `
SELECT e.enumlabel::text
FROM pg_enum e
JOIN pg_type t ON t.oid = e.enumtypid
JOIN pg_namespace n ON n.oid = t.typnamespace
WHERE n.nspname = $1 AND t.typname = $2
ORDER BY e.enumsortorder`

func (tx *postgresTx) Table(ctx context.Context, name string) (*schema.Table, error) {
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

func (tx *postgresTx) columns(ctx context.Context, table string) ([]schema.Column, error) {
	rows, err := tx.tx.Query(ctx, columnsQuery, tx.schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect columns of %s: %w", table, txError(err))
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var (
			col               schema.Column
			dataType, udtName string
			length            int
			defaultValue      *string
			identity          bool
		)
		if err := rows.Scan(&col.Name, &dataType, &udtName, &length, &col.Nullable, &defaultValue, &identity); err != nil {
			return nil, fmt.Errorf("failed to inspect columns of %s: %w", table, err)
		}

		col.Type, err = columnType(dataType, udtName, length)
		if err != nil {
			return nil, fmt.Errorf("column %s.%s: %w", table, col.Name, err)
		}
		col.AutoIncrement = identity || (defaultValue != nil && strings.HasPrefix(*defaultValue, "nextval("))
		if defaultValue != nil && !col.AutoIncrement {
			col.Default = schema.Default(parseDefault(*defaultValue))
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (tx *postgresTx) constraints(ctx context.Context, table *schema.Table) error {
	rows, err := tx.tx.Query(ctx, constraintsQuery, tx.schema, table.Name)
	if err != nil {
		return fmt.Errorf("failed to inspect constraints of %s: %w", table.Name, txError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name, kind, onDelete, refTable string
			columns, refColumns            []string
		)
		if err := rows.Scan(&name, &kind, &onDelete, &columns, &refTable, &refColumns); err != nil {
			return fmt.Errorf("failed to inspect constraints of %s: %w", table.Name, err)
		}

		switch kind {
		case "p":
			table.PrimaryKey = columns
		case "u":
			table.Uniques = append(table.Uniques, schema.Unique{Name: name, Columns: columns})
		case "f":
			policy, err := deletePolicy(onDelete)
			if err != nil {
				return fmt.Errorf("constraint %s.%s: %w", table.Name, name, err)
			}
			table.ForeignKeys = append(table.ForeignKeys, schema.ForeignKey{
				Name:       name,
				Columns:    columns,
				RefTable:   refTable,
				RefColumns: refColumns,
				OnDelete:   policy,
			})
		}
	}
	return rows.Err()
}

func (tx *postgresTx) Index(ctx context.Context, table, name string) (*schema.Index, error) {
	index := &schema.Index{Name: name, Table: table}
	err := tx.tx.QueryRow(ctx, indexQuery, tx.schema, table, name).Scan(&index.Unique, &index.Columns)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to inspect index %s.%s: %w", table, name, txError(err))
	}
	return index, nil
}

func (tx *postgresTx) Enum(ctx context.Context, name string) (*schema.EnumSpec, error) {
	var exists bool
	if err := tx.tx.QueryRow(ctx, enumExistsQuery, tx.schema, name).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to inspect enum %s: %w", name, txError(err))
	}
	if !exists {
		return nil, nil
	}

	rows, err := tx.tx.Query(ctx, enumLabelsQuery, tx.schema, name)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect enum %s: %w", name, txError(err))
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to inspect enum %s: %w", name, err)
	}

	return &schema.EnumSpec{TypeName: name, Values: values}, nil
}

const referencingTablesQuery = `
SELECT DISTINCT t.relname::text
FROM pg_constraint c
JOIN pg_class t ON t.oid = c.conrelid
JOIN pg_class rt ON rt.oid = c.confrelid
JOIN pg_namespace n ON n.oid = rt.relnamespace
WHERE c.contype = 'f' AND n.nspname = $1 AND rt.relname = $2 AND t.oid <> rt.oid
ORDER BY 1`

const enumColumnsQuery = `
SELECT table_name::text, column_name::text
FROM information_schema.columns
WHERE table_schema = $1 AND data_type = 'USER-DEFINED' AND udt_schema = $1 AND udt_name = $2
ORDER BY 1, 2`

func (tx *postgresTx) ReferencingTables(ctx context.Context, table string) ([]string, error) {
	rows, err := tx.tx.Query(ctx, referencingTablesQuery, tx.schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to find references to %s: %w", table, txError(err))
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to find references to %s: %w", table, err)
	}
	return names, nil
}

func (tx *postgresTx) EnumColumns(ctx context.Context, name string) ([]schema.ColumnRef, error) {
	rows, err := tx.tx.Query(ctx, enumColumnsQuery, tx.schema, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find columns of enum %s: %w", name, txError(err))
	}
	refs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (schema.ColumnRef, error) {
		var ref schema.ColumnRef
		err := row.Scan(&ref.Table, &ref.Column)
		return ref, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find columns of enum %s: %w", name, err)
	}
	return refs, nil
}

// ---

func columnType(dataType, udtName string, length int) (schema.Type, error) {
	switch dataType {
	case "integer", "smallint":
		return schema.IntegerType(), nil
	case "bigint":
		return schema.BigIntegerType(), nil
	case "character varying", "character":
		return schema.StringType(length), nil
	case "text":
		return schema.TextType(), nil
	case "boolean":
		return schema.BooleanType(), nil
	case "timestamp without time zone", "timestamp with time zone":
		return schema.DateTimeType(), nil
	case "json", "jsonb":
		return schema.JSONType(), nil
	case "USER-DEFINED":
		return schema.EnumType(udtName), nil
	default:
		return schema.Type{}, fmt.Errorf("%w: column type %s", schema.ErrUnsupported, dataType)
	}
}

func deletePolicy(code string) (schema.DeletePolicy, error) {
	switch code {
	case "c":
		return schema.Cascade, nil
	case "n":
		return schema.SetNull, nil
	case "r":
		return schema.Restrict, nil
	case "a":
		return schema.NoAction, nil
	default:
		return schema.ParseDeletePolicy(code)
	}
}

// parseDefault turns a default expression such as 'new'::cluster_status
// back into its bare value.
func parseDefault(expr string) string {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "'") {
		if end := strings.LastIndex(expr, "'"); end > 0 {
			return strings.ReplaceAll(expr[1:end], "''", "'")
		}
	}
	if i := strings.Index(expr, "::"); i > 0 {
		return expr[:i]
	}
	return expr
}
