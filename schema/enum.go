package schema

import (
	"context"
	"fmt"
	"sort"
)

// EnumChange describes a change of the value set of an enumerated type and
// the columns typed with it.
type EnumChange struct {
	TypeName string
	Columns  []ColumnRef
	Old      []string
	New      []string
	// Remap maps every removed value still present in the data to a value of New.
	Remap map[string]string
}

// Reverse returns the change that undoes c. The remap is left to the caller
// since values added by c have no natural target.
func (c EnumChange) Reverse(remap map[string]string) EnumChange {
	return EnumChange{
		TypeName: c.TypeName,
		Columns:  c.Columns,
		Old:      c.New,
		New:      c.Old,
		Remap:    remap,
	}
}

func (c EnumChange) removed() []string {
	keep := toSet(c.New)
	var out []string
	for _, v := range c.Old {
		if _, ok := keep[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}

func (c EnumChange) validate() error {
	if err := (EnumSpec{TypeName: c.TypeName, Values: c.Old}).Validate(); err != nil {
		return err
	}
	if err := (EnumSpec{TypeName: c.TypeName, Values: c.New}).Validate(); err != nil {
		return err
	}
	legal := toSet(c.New)
	for from, to := range c.Remap {
		if _, ok := legal[to]; !ok {
			return fmt.Errorf("%w: %s: remap %s -> %s targets a value outside the new set",
				ErrInvalidEnum, c.TypeName, from, to)
		}
	}
	return nil
}

// ---

// ChangeEnum widens when New is a superset of Old and narrows otherwise.
func ChangeEnum(ctx context.Context, store Store, change EnumChange) error {
	if len(change.removed()) == 0 {
		return WidenEnum(ctx, store, change)
	}
	return NarrowEnum(ctx, store, change)
}

// WidenEnum adds values to a type. It cannot orphan rows.
func WidenEnum(ctx context.Context, store Store, change EnumChange) error {
	if err := change.validate(); err != nil {
		return err
	}
	if removed := change.removed(); len(removed) > 0 {
		return fmt.Errorf("%w: %s: widening would remove %v", ErrInvalidEnum, change.TypeName, removed)
	}

	done, err := checkEnumState(ctx, store, "widen enum", change)
	if err != nil || done {
		return err
	}

	return setEnumValues(ctx, store, change.Columns, EnumSpec{TypeName: change.TypeName, Values: change.New})
}

// NarrowEnum removes values from a type. Rows holding a removed value are
// remapped first. If a row holds a removed value without a remap target,
// nothing changes and an *UnmappedEnumError is returned.
func NarrowEnum(ctx context.Context, store Store, change EnumChange) error {
	if err := change.validate(); err != nil {
		return err
	}

	done, err := checkEnumState(ctx, store, "narrow enum", change)
	if err != nil || done {
		return err
	}

	removed := change.removed()
	used, err := findEnumUsage(ctx, store, change.Columns, removed)
	if err != nil {
		return err
	}

	if err := checkRemap(change, used); err != nil {
		return err
	}

	if err := widenForRemap(ctx, store, change, used); err != nil {
		return err
	}

	// phase 1: remap offending rows
	for _, ref := range change.Columns {
		for value := range used[ref] {
			_, err := store.Update(ctx, ref.Table, Row{ref.Column: value}, Row{ref.Column: change.Remap[value]})
			if err != nil {
				return fmt.Errorf("failed to remap %s %q -> %q: %w", ref, value, change.Remap[value], err)
			}
		}
	}

	// phases 2-4: new type, repoint, drop old
	return setEnumValues(ctx, store, change.Columns, EnumSpec{TypeName: change.TypeName, Values: change.New})
}

// ---

// checkEnumState returns done=true when the type already has the new values.
func checkEnumState(ctx context.Context, store Store, op string, change EnumChange) (bool, error) {
	current, err := store.Enum(ctx, change.TypeName)
	if err != nil {
		return false, fmt.Errorf("failed to inspect enum %s: %w", change.TypeName, err)
	}
	if current == nil {
		return false, conflict(op, change.TypeName, "", "enum does not exist")
	}

	switch {
	case equalStrings(current.Values, change.New):
		return true, nil
	case equalStrings(current.Values, change.Old):
		return false, nil
	default:
		return false, conflict(op, change.TypeName, "", "enum has values %v, expected %v", current.Values, change.Old)
	}
}

type enumUsage map[ColumnRef]map[string][]string // ref -> value -> row keys

func findEnumUsage(ctx context.Context, store Store, refs []ColumnRef, values []string) (enumUsage, error) {
	used := make(enumUsage)
	if len(values) == 0 {
		return used, nil
	}
	wanted := toSet(values)

	for _, ref := range refs {
		table, err := requireTable(ctx, store, "narrow enum", ref.Table)
		if err != nil {
			return nil, err
		}
		if _, ok := table.Column(ref.Column); !ok {
			return nil, conflict("narrow enum", ref.Table, ref.Column, "column does not exist")
		}

		columns := []string{ref.Column}
		key, hasKey := table.Key()
		if hasKey {
			columns = append(columns, key)
		}

		err = store.Scan(ctx, Query{Table: ref.Table, Columns: columns, NotNull: []string{ref.Column}}, func(row Row) error {
			value, _ := row[ref.Column].(string)
			if _, ok := wanted[value]; !ok {
				return nil
			}
			if used[ref] == nil {
				used[ref] = make(map[string][]string)
			}
			rowKey := "?"
			if hasKey {
				rowKey = KeyString(row[key])
			}
			used[ref][value] = append(used[ref][value], rowKey)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", ref, err)
		}
	}

	return used, nil
}

func checkRemap(change EnumChange, used enumUsage) error {
	unmapped := &UnmappedEnumError{TypeName: change.TypeName, Rows: make(map[string][]string)}
	values := make(map[string]struct{})

	for ref, byValue := range used {
		for value, keys := range byValue {
			if _, ok := change.Remap[value]; ok {
				continue
			}
			values[value] = struct{}{}
			unmapped.Rows[ref.String()] = append(unmapped.Rows[ref.String()], keys...)
		}
	}

	if len(values) == 0 {
		return nil
	}
	for v := range values {
		unmapped.Values = append(unmapped.Values, v)
	}
	sort.Strings(unmapped.Values)
	for ref := range unmapped.Rows {
		sort.Strings(unmapped.Rows[ref])
	}
	return unmapped
}

// widenForRemap makes remap targets that are new in this change legal before
// rows are rewritten to them.
func widenForRemap(ctx context.Context, store Store, change EnumChange, used enumUsage) error {
	current := toSet(change.Old)
	needed := false
	for _, byValue := range used {
		for value := range byValue {
			if _, ok := current[change.Remap[value]]; !ok {
				needed = true
			}
		}
	}
	if !needed {
		return nil
	}

	union := append([]string{}, change.Old...)
	for _, v := range change.New {
		if _, ok := current[v]; !ok {
			union = append(union, v)
		}
	}
	return setEnumValues(ctx, store, change.Columns, EnumSpec{TypeName: change.TypeName, Values: union})
}

// setEnumValues picks the in-place path when the store supports it and the
// create, repoint, drop, rename swap otherwise.
func setEnumValues(ctx context.Context, store Store, refs []ColumnRef, spec EnumSpec) error {
	if mutator, ok := store.(EnumMutator); ok {
		if err := mutator.SetEnumValues(ctx, spec); err != nil {
			return fmt.Errorf("failed to set values of enum %s: %w", spec.TypeName, err)
		}
		return nil
	}

	swapper, ok := store.(EnumSwapper)
	if !ok {
		return fmt.Errorf("%w: enum %s can be neither altered nor swapped", ErrUnsupported, spec.TypeName)
	}

	tmp := EnumSpec{TypeName: spec.TypeName + "_new", Values: spec.Values}
	if err := store.CreateEnum(ctx, tmp); err != nil {
		return fmt.Errorf("failed to create enum %s: %w", tmp.TypeName, err)
	}
	for _, ref := range refs {
		if err := swapper.RetypeColumn(ctx, ref, tmp.TypeName); err != nil {
			return fmt.Errorf("failed to move %s to enum %s: %w", ref, tmp.TypeName, err)
		}
	}
	if err := store.DropEnum(ctx, spec.TypeName); err != nil {
		return fmt.Errorf("failed to drop enum %s: %w", spec.TypeName, err)
	}
	if err := swapper.RenameEnum(ctx, tmp.TypeName, spec.TypeName); err != nil {
		return fmt.Errorf("failed to rename enum %s to %s: %w", tmp.TypeName, spec.TypeName, err)
	}
	return nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
