package backfill_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-talis/fuelmig/backfill"
	"github.com/root-talis/fuelmig/driver"
	"github.com/root-talis/fuelmig/driver/memory"
	"github.com/root-talis/fuelmig/schema"
)

func nodeStore(t *testing.T, attributes ...schema.Row) driver.Tx {
	t.Helper()
	ctx := context.Background()

	tx, err := memory.NewDriver().Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(ctx) })

	require.NoError(t, schema.Apply(ctx, tx,
		schema.CreateTable{Table: schema.Table{
			Name: "nodes",
			Columns: []schema.Column{
				{Name: "id", Type: schema.IntegerType(), AutoIncrement: true},
				{Name: "name", Type: schema.StringType(100)},
				{Name: "vms_conf", Type: schema.JSONType(), Default: schema.Default("[]")},
			},
			PrimaryKey: []string{"id"},
		}},
		schema.CreateTable{Table: schema.Table{
			Name: "node_attributes",
			Columns: []schema.Column{
				{Name: "id", Type: schema.IntegerType(), AutoIncrement: true},
				{Name: "node_id", Type: schema.IntegerType(), Nullable: true},
				{Name: "vms_conf", Type: schema.JSONType(), Default: schema.Default("[]")},
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []schema.ForeignKey{{
				Name:       "node_attributes_node_id_fkey",
				Columns:    []string{"node_id"},
				RefTable:   "nodes",
				RefColumns: []string{"id"},
				OnDelete:   schema.Cascade,
			}},
		}},
	))

	for _, name := range []string{"node-1", "node-2", "node-3"} {
		_, err := tx.Insert(ctx, "nodes", schema.Row{"name": name})
		require.NoError(t, err)
	}
	for _, row := range attributes {
		_, err := tx.Insert(ctx, "node_attributes", row)
		require.NoError(t, err)
	}

	return tx
}

func vmsMerge() backfill.Merge {
	return backfill.Merge{
		Source:     "node_attributes",
		SourceKey:  "node_id",
		Target:     "nodes",
		TargetKey:  "id",
		Columns:    map[string]string{"vms_conf": "vms_conf"},
		DropSource: true,
	}
}

func TestMergeCopiesColumnsAndDropsSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tx := nodeStore(t,
		schema.Row{"node_id": int64(1), "vms_conf": `[{"id":1,"cpu":2}]`},
		schema.Row{"node_id": int64(3)},
	)

	updated, err := vmsMerge().Run(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	nodes, err := schema.ScanAll(ctx, tx, schema.Query{
		Table:   "nodes",
		Columns: []string{"id", "vms_conf"},
		OrderBy: []string{"id"},
	})
	require.NoError(t, err)
	assert.Equal(t, []schema.Row{
		{"id": int64(1), "vms_conf": `[{"id":1,"cpu":2}]`},
		{"id": int64(2), "vms_conf": `[]`},
		{"id": int64(3), "vms_conf": `[]`},
	}, nodes)

	source, err := tx.Table(ctx, "node_attributes")
	require.NoError(t, err)
	assert.Nil(t, source)
}

// nolint:gochecknoglobals
var mergeMismatchTestsTable = []struct {
	name              string
	attributes        []schema.Row
	expectedUnmatched []string
	expectedAmbiguous []string
}{
	/* e0 */ {
		name: "test e0: should reject a source key without a target row",
		attributes: []schema.Row{
			{"node_id": int64(1), "vms_conf": `[{"id":1}]`},
			{"node_id": int64(9), "vms_conf": `[{"id":9}]`},
		},
		expectedUnmatched: []string{"9"},
	},
	/* e1 */ {
		name: "test e1: should reject a null source key",
		attributes: []schema.Row{
			{"node_id": nil, "vms_conf": `[{"id":1}]`},
		},
		expectedUnmatched: []string{"<null>"},
	},
	/* e2 */ {
		name: "test e2: should reject two source rows for one target row",
		attributes: []schema.Row{
			{"node_id": int64(2), "vms_conf": `[{"id":1}]`},
			{"node_id": int64(2), "vms_conf": `[{"id":2}]`},
		},
		expectedAmbiguous: []string{"2"},
	},
}

func TestMergeMismatchWritesNothing(t *testing.T) {
	t.Parallel()

	for _, test := range mergeMismatchTestsTable {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			tx := nodeStore(t, test.attributes...)

			_, err := vmsMerge().Run(ctx, tx)
			require.Error(t, err)
			assert.True(t, errors.Is(err, backfill.ErrMergeKeyMismatch))

			var mismatch *backfill.MergeKeyMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, test.expectedUnmatched, mismatch.Unmatched)
			assert.Equal(t, test.expectedAmbiguous, mismatch.Ambiguous)

			nodes, err := schema.ScanAll(ctx, tx, schema.Query{Table: "nodes", Columns: []string{"vms_conf"}})
			require.NoError(t, err)
			for _, node := range nodes {
				assert.Equal(t, `[]`, node["vms_conf"])
			}

			source, err := tx.Table(ctx, "node_attributes")
			require.NoError(t, err)
			assert.NotNil(t, source)
		})
	}
}
