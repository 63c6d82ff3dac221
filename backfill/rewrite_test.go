package backfill_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-talis/fuelmig/backfill"
	"github.com/root-talis/fuelmig/document"
	"github.com/root-talis/fuelmig/driver/memory"
	"github.com/root-talis/fuelmig/schema"
)

func TestRewrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tx, err := memory.NewDriver().Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	require.NoError(t, schema.Apply(ctx, tx, schema.CreateTable{Table: schema.Table{
		Name: "attributes",
		Columns: []schema.Column{
			{Name: "id", Type: schema.IntegerType(), AutoIncrement: true},
			{Name: "editable", Type: schema.JSONType(), Nullable: true},
		},
		PrimaryKey: []string{"id"},
	}}))

	for _, editable := range []interface{}{
		`{"storage":{"volumes_ceph":{"value":true}}}`,
		`{"common":{}}`,
		nil,
	} {
		_, err := tx.Insert(ctx, "attributes", schema.Row{"editable": editable})
		require.NoError(t, err)
	}

	rewrite := backfill.Rewrite{
		Table:  "attributes",
		Key:    "id",
		Column: "editable",
		Transform: func(text string) (string, error) {
			if _, ok := document.Lookup(text, "storage"); !ok {
				return text, nil
			}
			return document.Set(text, "storage.fsid", map[string]interface{}{"value": ""})
		},
	}

	changed, err := rewrite.Run(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	rows, err := schema.ScanAll(ctx, tx, schema.Query{Table: "attributes", OrderBy: []string{"id"}})
	require.NoError(t, err)
	assert.Equal(t, []schema.Row{
		{"id": int64(1), "editable": `{"storage":{"volumes_ceph":{"value":true},"fsid":{"value":""}}}`},
		{"id": int64(2), "editable": `{"common":{}}`},
		{"id": int64(3), "editable": nil},
	}, rows)
}

func TestRewriteReportsTheFailingRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tx, err := memory.NewDriver().Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	require.NoError(t, schema.Apply(ctx, tx, schema.CreateTable{Table: schema.Table{
		Name: "attributes",
		Columns: []schema.Column{
			{Name: "id", Type: schema.IntegerType(), AutoIncrement: true},
			{Name: "editable", Type: schema.JSONType(), Nullable: true},
		},
		PrimaryKey: []string{"id"},
	}}))
	for _, editable := range []string{`{"a":1}`, `not json`} {
		_, err := tx.Insert(ctx, "attributes", schema.Row{"editable": editable})
		require.NoError(t, err)
	}

	_, err = backfill.Rewrite{
		Table:  "attributes",
		Key:    "id",
		Column: "editable",
		Transform: func(text string) (string, error) {
			if _, err := document.Parse(text); err != nil {
				return "", err
			}
			return `{}`, nil
		},
	}.Run(ctx, tx)

	var rowErr *backfill.RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, "2", rowErr.Key)
	assert.ErrorIs(t, err, document.ErrInvalidDocument)

	rows, err := schema.ScanAll(ctx, tx, schema.Query{Table: "attributes", OrderBy: []string{"id"}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, rows[0]["editable"])
}
