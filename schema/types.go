// Package schema holds the store-independent description of tables, columns,
// constraints and enumerated types, and the idempotent operations that move a
// store from one shape to another.
package schema

import (
	"fmt"
	"strings"
)

type Kind uint

const (
	Integer Kind = iota + 1
	BigInteger
	String
	Text
	Boolean
	DateTime
	JSON
	Enum
)

var kindNames = map[Kind]string{ //nolint:gochecknoglobals
	Integer:    "integer",
	BigInteger: "bigint",
	String:     "varchar",
	Text:       "text",
	Boolean:    "boolean",
	DateTime:   "datetime",
	JSON:       "json",
	Enum:       "enum",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint(k))
}

// Type is a column type. Length applies to String, EnumName to Enum.
type Type struct {
	Kind     Kind
	Length   int
	EnumName string
}

func IntegerType() Type { return Type{Kind: Integer} }
func BigIntegerType() Type { return Type{Kind: BigInteger} }
func StringType(length int) Type { return Type{Kind: String, Length: length} }
func TextType() Type { return Type{Kind: Text} }
func BooleanType() Type { return Type{Kind: Boolean} }
func DateTimeType() Type { return Type{Kind: DateTime} }
func JSONType() Type { return Type{Kind: JSON} }
func EnumType(name string) Type { return Type{Kind: Enum, EnumName: name} }

func (t Type) String() string {
	switch t.Kind {
	case String:
		if t.Length > 0 {
			return fmt.Sprintf("varchar(%d)", t.Length)
		}
		return "varchar"
	case Enum:
		return "enum " + t.EnumName
	default:
		return t.Kind.String()
	}
}

// ---

type Column struct {
	Name     string
	Type     Type
	Nullable bool
	// Default is a server-side default value. Drivers quote it as the
	// column type requires.
	Default       *string
	AutoIncrement bool
}

// Default returns a pointer to a default value, for Column.Default.
func Default(value string) *string {
	return &value
}

// Compatible reports whether an existing column satisfies the wanted one.
// Defaults are not compared since not every store reports them faithfully.
func (c Column) Compatible(other Column) bool {
	return c.Name == other.Name && c.Type == other.Type && c.Nullable == other.Nullable
}

// ---

type DeletePolicy uint

const (
	// zero value: no policy stated
	unsetPolicy DeletePolicy = iota
	Cascade
	SetNull
	Restrict
	NoAction
)

var policyNames = map[DeletePolicy]string{ //nolint:gochecknoglobals
	unsetPolicy: "unset",
	Cascade:     "CASCADE",
	SetNull:     "SET NULL",
	Restrict:    "RESTRICT",
	NoAction:    "NO ACTION",
}

func (p DeletePolicy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("policy(%d)", uint(p))
}

// Valid reports whether the policy was stated explicitly.
func (p DeletePolicy) Valid() bool {
	return p >= Cascade && p <= NoAction
}

// ParseDeletePolicy maps an SQL referential action to a policy.
func ParseDeletePolicy(action string) (DeletePolicy, error) {
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case "CASCADE":
		return Cascade, nil
	case "SET NULL":
		return SetNull, nil
	case "RESTRICT":
		return Restrict, nil
	case "NO ACTION", "":
		return NoAction, nil
	default:
		return unsetPolicy, fmt.Errorf("%w: unknown referential action %q", ErrImplicitDeletePolicy, action)
	}
}

type ForeignKey struct {
	Name       string
	Columns    []string
	RefTable   string
	RefColumns []string
	OnDelete   DeletePolicy
}

func (fk ForeignKey) Equal(other ForeignKey) bool {
	return fk.Name == other.Name &&
		equalStrings(fk.Columns, other.Columns) &&
		fk.RefTable == other.RefTable &&
		equalStrings(fk.RefColumns, other.RefColumns) &&
		fk.OnDelete == other.OnDelete
}

type Unique struct {
	Name    string
	Columns []string
}

type Index struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
}

func (i Index) Equal(other Index) bool {
	return i.Name == other.Name &&
		i.Table == other.Table &&
		i.Unique == other.Unique &&
		equalStrings(i.Columns, other.Columns)
}

// ---

type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  []string
	ForeignKeys []ForeignKey
	Uniques     []Unique
}

func (t *Table) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

func (t *Table) ForeignKey(name string) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.Name == name {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

func (t *Table) Unique(name string) (Unique, bool) {
	for _, uc := range t.Uniques {
		if uc.Name == name {
			return uc, true
		}
	}
	return Unique{}, false
}

func (t *Table) HasConstraint(name string) bool {
	if _, ok := t.ForeignKey(name); ok {
		return true
	}
	for _, uc := range t.Uniques {
		if uc.Name == name {
			return true
		}
	}
	return false
}

// Key returns the single-column primary key, used to address rows.
func (t *Table) Key() (string, bool) {
	if len(t.PrimaryKey) != 1 {
		return "", false
	}
	return t.PrimaryKey[0], true
}

// Compatible reports whether an existing table has the same shape as the
// wanted one: same columns in any order, primary key and constraints.
func (t *Table) Compatible(want *Table) bool {
	if t.Name != want.Name || len(t.Columns) != len(want.Columns) {
		return false
	}
	for _, col := range want.Columns {
		have, ok := t.Column(col.Name)
		if !ok || !have.Compatible(col) {
			return false
		}
	}
	if !equalStrings(t.PrimaryKey, want.PrimaryKey) || len(t.ForeignKeys) != len(want.ForeignKeys) {
		return false
	}
	for _, fk := range want.ForeignKeys {
		have, ok := t.ForeignKey(fk.Name)
		if !ok || !have.Equal(fk) {
			return false
		}
	}
	if len(t.Uniques) != len(want.Uniques) {
		return false
	}
	for _, uc := range want.Uniques {
		have, ok := t.Unique(uc.Name)
		if !ok || !equalStrings(have.Columns, uc.Columns) {
			return false
		}
	}
	return true
}

// ---

type ColumnRef struct {
	Table  string
	Column string
}

func (r ColumnRef) String() string {
	return r.Table + "." + r.Column
}

type EnumSpec struct {
	TypeName string
	Values   []string
}

// Validate checks that values are unique and not empty.
func (e EnumSpec) Validate() error {
	if e.TypeName == "" {
		return fmt.Errorf("%w: enum type name is empty", ErrInvalidEnum)
	}
	seen := make(map[string]struct{}, len(e.Values))
	for _, v := range e.Values {
		if v == "" {
			return fmt.Errorf("%w: enum %s has an empty value", ErrInvalidEnum, e.TypeName)
		}
		if _, dup := seen[v]; dup {
			return fmt.Errorf("%w: enum %s lists %q twice", ErrInvalidEnum, e.TypeName, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

// ---

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
