package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/root-talis/fuelmig/schema"
)

func (tx *postgresTx) CreateTable(ctx context.Context, table *schema.Table) error {
	defs := make([]string, 0, len(table.Columns)+len(table.ForeignKeys)+len(table.Uniques)+1)
	for _, col := range table.Columns {
		def, err := tx.columnDefinition(col)
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

	_, err := tx.exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", tx.qualified(table.Name), strings.Join(defs, ", ")))
	return err
}

func (tx *postgresTx) DropTable(ctx context.Context, name string) error {
	_, err := tx.exec(ctx, "DROP TABLE "+tx.qualified(name))
	return err
}

func (tx *postgresTx) AddColumn(ctx context.Context, table string, column schema.Column) error {
	def, err := tx.columnDefinition(column)
	if err != nil {
		return fmt.Errorf("table %s: %w", table, err)
	}
	_, err = tx.exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", tx.qualified(table), def))
	return err
}

func (tx *postgresTx) DropColumn(ctx context.Context, table, column string) error {
	_, err := tx.exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", tx.qualified(table), quoteIdent(column)))
	return err
}

func (tx *postgresTx) RenameColumn(ctx context.Context, table, from, to string) error {
	_, err := tx.exec(ctx, fmt.Sprintf(
		"ALTER TABLE %s RENAME COLUMN %s TO %s",
		tx.qualified(table), quoteIdent(from), quoteIdent(to),
	))
	return err
}

func (tx *postgresTx) AlterColumnType(ctx context.Context, table, column string, typ schema.Type) error {
	sqlType, err := tx.sqlType(typ)
	if err != nil {
		return err
	}
	return tx.retype(ctx, table, column, sqlType)
}

func (tx *postgresTx) AddForeignKey(ctx context.Context, table string, fk schema.ForeignKey) error {
	_, err := tx.exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD %s", tx.qualified(table), tx.foreignKeyDefinition(fk)))
	return err
}

func (tx *postgresTx) DropConstraint(ctx context.Context, table, name string) error {
	_, err := tx.exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", tx.qualified(table), quoteIdent(name)))
	return err
}

func (tx *postgresTx) CreateIndex(ctx context.Context, index schema.Index) error {
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

// DropIndex ignores table: index names are unique per schema.
func (tx *postgresTx) DropIndex(ctx context.Context, _, name string) error {
	_, err := tx.exec(ctx, "DROP INDEX "+tx.qualified(name))
	return err
}

func (tx *postgresTx) CreateEnum(ctx context.Context, spec schema.EnumSpec) error {
	values := make([]string, len(spec.Values))
	for i, v := range spec.Values {
		values[i] = quoteLiteral(v)
	}
	_, err := tx.exec(ctx, fmt.Sprintf(
		"CREATE TYPE %s AS ENUM (%s)",
		tx.qualified(spec.TypeName), strings.Join(values, ", "),
	))
	return err
}

func (tx *postgresTx) DropEnum(ctx context.Context, name string) error {
	_, err := tx.exec(ctx, "DROP TYPE "+tx.qualified(name))
	return err
}

// ---

// RetypeColumn moves a column onto another enum type through its text form.
func (tx *postgresTx) RetypeColumn(ctx context.Context, ref schema.ColumnRef, enumName string) error {
	return tx.retype(ctx, ref.Table, ref.Column, tx.qualified(enumName))
}

func (tx *postgresTx) RenameEnum(ctx context.Context, from, to string) error {
	_, err := tx.exec(ctx, fmt.Sprintf("ALTER TYPE %s RENAME TO %s", tx.qualified(from), quoteIdent(to)))
	return err
}

// retype converts values through text. A plain default is dropped for the
// conversion and put back afterwards, since it is typed too.
func (tx *postgresTx) retype(ctx context.Context, table, column, sqlType string) error {
	var current *string
	err := tx.tx.QueryRow(ctx,
		"SELECT column_default::text FROM information_schema.columns "+
			"WHERE table_schema = $1 AND table_name = $2 AND column_name = $3",
		tx.schema, table, column,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("column %s.%s does not exist", table, column)
	}
	if err != nil {
		return fmt.Errorf("failed to inspect column %s.%s: %w", table, column, txError(err))
	}

	restore := current != nil && !strings.HasPrefix(*current, "nextval(")
	alter := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s ", tx.qualified(table), quoteIdent(column))

	if restore {
		if _, err := tx.exec(ctx, alter+"DROP DEFAULT"); err != nil {
			return err
		}
	}
	if _, err := tx.exec(ctx, fmt.Sprintf(
		"%sTYPE %s USING %s::text::%s",
		alter, sqlType, quoteIdent(column), sqlType,
	)); err != nil {
		return err
	}
	if restore {
		if _, err := tx.exec(ctx, alter+"SET DEFAULT "+quoteLiteral(parseDefault(*current))); err != nil {
			return err
		}
	}
	return nil
}

// ---

func (tx *postgresTx) columnDefinition(col schema.Column) (string, error) {
	var sqlType string
	switch {
	case col.AutoIncrement && col.Type.Kind == schema.Integer:
		sqlType = "serial"
	case col.AutoIncrement && col.Type.Kind == schema.BigInteger:
		sqlType = "bigserial"
	case col.AutoIncrement:
		return "", fmt.Errorf("%w: auto increment on %s column %s", schema.ErrUnsupported, col.Type, col.Name)
	default:
		var err error
		if sqlType, err = tx.sqlType(col.Type); err != nil {
			return "", err
		}
	}

	def := quoteIdent(col.Name) + " " + sqlType
	if !col.Nullable {
		def += " NOT NULL"
	}
	if col.Default != nil {
		literal, err := defaultLiteral(col.Type, *col.Default)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", col.Name, err)
		}
		def += " DEFAULT " + literal
	}
	return def, nil
}

func (tx *postgresTx) foreignKeyDefinition(fk schema.ForeignKey) string {
	return fmt.Sprintf(
		"CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s",
		quoteIdent(fk.Name), quoteIdents(fk.Columns),
		tx.qualified(fk.RefTable), quoteIdents(fk.RefColumns),
		fk.OnDelete,
	)
}

func (tx *postgresTx) sqlType(typ schema.Type) (string, error) {
	switch typ.Kind {
	case schema.Integer:
		return "integer", nil
	case schema.BigInteger:
		return "bigint", nil
	case schema.String:
		if typ.Length > 0 {
			return fmt.Sprintf("varchar(%d)", typ.Length), nil
		}
		return "varchar", nil
	case schema.Text:
		return "text", nil
	case schema.Boolean:
		return "boolean", nil
	case schema.DateTime:
		return "timestamp", nil
	case schema.JSON:
		return "jsonb", nil
	case schema.Enum:
		return tx.qualified(typ.EnumName), nil
	default:
		return "", fmt.Errorf("%w: column type %s", schema.ErrUnsupported, typ)
	}
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
		return strconv.FormatBool(b), nil
	default:
		return quoteLiteral(value), nil
	}
}
