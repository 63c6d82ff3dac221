package memory

import (
	"sort"

	"github.com/root-talis/fuelmig/schema"
)

type state struct {
	tables  map[string]*tableState
	enums   map[string][]string
	indexes map[string]schema.Index
}

type tableState struct {
	def    schema.Table
	rows   []schema.Row
	nextID int64
}

func newState() *state {
	return &state{
		tables:  make(map[string]*tableState),
		enums:   make(map[string][]string),
		indexes: make(map[string]schema.Index),
	}
}

func (s *state) clone() *state {
	out := newState()
	for name, t := range s.tables {
		rows := make([]schema.Row, len(t.rows))
		for i, row := range t.rows {
			rows[i] = cloneRow(row)
		}
		out.tables[name] = &tableState{def: cloneTable(t.def), rows: rows, nextID: t.nextID}
	}
	for name, values := range s.enums {
		out.enums[name] = append([]string(nil), values...)
	}
	for key, idx := range s.indexes {
		idx.Columns = append([]string(nil), idx.Columns...)
		out.indexes[key] = idx
	}
	return out
}

// ---

// Snapshot is an order-independent picture of the store, suitable for
// comparing two states with assert.Equal. Columns and constraints are sorted
// by name and rows by primary key, so a column dropped and re-added compares
// equal to the original one.
type Snapshot struct {
	Tables  map[string]TableSnapshot
	Enums   map[string][]string
	Indexes []schema.Index
}

type TableSnapshot struct {
	Columns     []schema.Column
	PrimaryKey  []string
	ForeignKeys []schema.ForeignKey
	Uniques     []schema.Unique
	Rows        []schema.Row
}

func (s *state) snapshot() Snapshot {
	snap := Snapshot{
		Tables: make(map[string]TableSnapshot, len(s.tables)),
		Enums:  make(map[string][]string, len(s.enums)),
	}

	for name, t := range s.tables {
		def := cloneTable(t.def)
		sort.Slice(def.Columns, func(i, j int) bool { return def.Columns[i].Name < def.Columns[j].Name })
		sort.Slice(def.ForeignKeys, func(i, j int) bool { return def.ForeignKeys[i].Name < def.ForeignKeys[j].Name })
		sort.Slice(def.Uniques, func(i, j int) bool { return def.Uniques[i].Name < def.Uniques[j].Name })

		rows := make([]schema.Row, len(t.rows))
		for i, row := range t.rows {
			rows[i] = cloneRow(row)
		}
		if len(def.PrimaryKey) > 0 {
			sort.SliceStable(rows, func(i, j int) bool {
				return lessRows(rows[i], rows[j], def.PrimaryKey)
			})
		}

		snap.Tables[name] = TableSnapshot{
			Columns:     def.Columns,
			PrimaryKey:  def.PrimaryKey,
			ForeignKeys: def.ForeignKeys,
			Uniques:     def.Uniques,
			Rows:        rows,
		}
	}

	for name, values := range s.enums {
		snap.Enums[name] = append([]string(nil), values...)
	}

	for _, idx := range s.indexes {
		idx.Columns = append([]string(nil), idx.Columns...)
		snap.Indexes = append(snap.Indexes, idx)
	}
	sort.Slice(snap.Indexes, func(i, j int) bool {
		return indexKey(snap.Indexes[i].Table, snap.Indexes[i].Name) < indexKey(snap.Indexes[j].Table, snap.Indexes[j].Name)
	})

	return snap
}

// ---

func cloneTable(t schema.Table) schema.Table {
	out := schema.Table{
		Name:       t.Name,
		Columns:    make([]schema.Column, len(t.Columns)),
		PrimaryKey: append([]string(nil), t.PrimaryKey...),
	}
	for i, col := range t.Columns {
		if col.Default != nil {
			col.Default = schema.Default(*col.Default)
		}
		out.Columns[i] = col
	}
	for _, fk := range t.ForeignKeys {
		out.ForeignKeys = append(out.ForeignKeys, cloneForeignKey(fk))
	}
	for _, uc := range t.Uniques {
		out.Uniques = append(out.Uniques, schema.Unique{Name: uc.Name, Columns: append([]string(nil), uc.Columns...)})
	}
	return out
}

func cloneForeignKey(fk schema.ForeignKey) schema.ForeignKey {
	fk.Columns = append([]string(nil), fk.Columns...)
	fk.RefColumns = append([]string(nil), fk.RefColumns...)
	return fk
}

func cloneRow(row schema.Row) schema.Row {
	out := make(schema.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
