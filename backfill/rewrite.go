package backfill

import (
	"context"
	"fmt"

	"github.com/root-talis/fuelmig/schema"
)

// Rewrite replaces a document column with a transformed version of itself.
// NULL values are left alone.
type Rewrite struct {
	Table  string
	Key    string
	Column string
	Where  schema.Row
	// Transform receives the stored text and returns the text to store.
	Transform func(text string) (string, error)
}

func (r Rewrite) String() string {
	return fmt.Sprintf("rewrite %s.%s", r.Table, r.Column)
}

// Run returns the number of rows whose value changed.
func (r Rewrite) Run(ctx context.Context, store schema.Store) (int, error) {
	rows, err := schema.ScanAll(ctx, store, schema.Query{
		Table:   r.Table,
		Columns: []string{r.Key, r.Column},
		Where:   r.Where,
		NotNull: []string{r.Column},
		OrderBy: []string{r.Key},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", r.Table, err)
	}

	type change struct {
		key  interface{}
		text string
	}
	var changes []change

	for _, row := range rows {
		var text string
		switch v := row[r.Column].(type) {
		case string:
			text = v
		case []byte:
			text = string(v)
		default:
			return 0, &RowError{Table: r.Table, Key: schema.KeyString(row[r.Key]), Err: fmt.Errorf("column %s holds %T", r.Column, v)}
		}

		out, err := r.Transform(text)
		if err != nil {
			return 0, &RowError{Table: r.Table, Key: schema.KeyString(row[r.Key]), Err: err}
		}
		if out != text {
			changes = append(changes, change{key: row[r.Key], text: out})
		}
	}

	for _, c := range changes {
		if _, err := store.Update(ctx, r.Table, schema.Row{r.Key: c.key}, schema.Row{r.Column: c.text}); err != nil {
			return 0, &RowError{Table: r.Table, Key: schema.KeyString(c.key), Err: err}
		}
	}

	return len(changes), nil
}
