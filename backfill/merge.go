package backfill

import (
	"context"
	"fmt"
	"sort"

	"github.com/root-talis/fuelmig/schema"
)

// Merge copies columns of a table into the 1:1 related rows of another.
type Merge struct {
	Source    string
	SourceKey string
	Target    string
	TargetKey string
	// Columns maps source columns to target columns.
	Columns    map[string]string
	DropSource bool
}

func (m Merge) String() string {
	return fmt.Sprintf("merge %s into %s", m.Source, m.Target)
}

// Run returns the number of target rows updated. Nothing is written unless
// every source row matches exactly one target row.
func (m Merge) Run(ctx context.Context, store schema.Store) (int, error) {
	sourceColumns := []string{m.SourceKey}
	for src := range m.Columns {
		sourceColumns = append(sourceColumns, src)
	}
	sort.Strings(sourceColumns[1:])

	sources, err := schema.ScanAll(ctx, store, schema.Query{
		Table:   m.Source,
		Columns: sourceColumns,
		OrderBy: []string{m.SourceKey},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", m.Source, err)
	}

	targets := make(map[string]int)
	err = store.Scan(ctx, schema.Query{Table: m.Target, Columns: []string{m.TargetKey}}, func(row schema.Row) error {
		if row[m.TargetKey] != nil {
			targets[schema.KeyString(row[m.TargetKey])]++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", m.Target, err)
	}

	mismatch := &MergeKeyMismatchError{Source: m.Source, Target: m.Target}
	seen := make(map[string]bool, len(sources))
	for _, row := range sources {
		key := schema.KeyString(row[m.SourceKey])
		switch {
		case row[m.SourceKey] == nil || targets[key] == 0:
			mismatch.Unmatched = append(mismatch.Unmatched, key)
		case targets[key] > 1 || seen[key]:
			mismatch.Ambiguous = append(mismatch.Ambiguous, key)
		}
		seen[key] = true
	}
	if len(mismatch.Unmatched) > 0 || len(mismatch.Ambiguous) > 0 {
		return 0, mismatch
	}

	for _, row := range sources {
		set := make(schema.Row, len(m.Columns))
		for src, dst := range m.Columns {
			set[dst] = row[src]
		}

		affected, err := store.Update(ctx, m.Target, schema.Row{m.TargetKey: row[m.SourceKey]}, set)
		if err != nil {
			return 0, &RowError{Table: m.Source, Key: schema.KeyString(row[m.SourceKey]), Err: err}
		}
		if affected != 1 {
			return 0, &RowError{
				Table: m.Source,
				Key:   schema.KeyString(row[m.SourceKey]),
				Err:   fmt.Errorf("%w: %d target rows updated", ErrMergeKeyMismatch, affected),
			}
		}
	}

	if m.DropSource {
		if err := (schema.DropTable{Name: m.Source}).Apply(ctx, store); err != nil {
			return 0, err
		}
	}

	return len(sources), nil
}
