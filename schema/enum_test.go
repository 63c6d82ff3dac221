package schema_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-talis/fuelmig/driver"
	"github.com/root-talis/fuelmig/driver/memory"
	"github.com/root-talis/fuelmig/schema"
)

var statusColumn = []schema.ColumnRef{{Table: "clusters", Column: "status"}} // nolint:gochecknoglobals

// storeModes covers both enum capabilities of the memory store.
var storeModes = []struct { // nolint:gochecknoglobals
	name string
	opts []memory.Option
}{
	{name: "swap"},
	{name: "mutable", opts: []memory.Option{memory.WithMutableEnums()}},
}

// seedStatuses leaves clusters 1..3 with statuses new, error, remove.
func seedStatuses(t *testing.T, opts ...memory.Option) driver.Tx {
	t.Helper()
	ctx := context.Background()

	tx := fixture(t, opts...)
	for _, status := range []string{"error", "remove"} {
		_, err := tx.Insert(ctx, "clusters", schema.Row{"name": "env-" + status, "status": status})
		require.NoError(t, err)
	}
	return tx
}

func statuses(t *testing.T, tx driver.Tx) map[int64]string {
	t.Helper()

	rows, err := schema.ScanAll(context.Background(), tx, schema.Query{Table: "clusters", Columns: []string{"id", "status"}})
	require.NoError(t, err)

	result := make(map[int64]string, len(rows))
	for _, row := range rows {
		result[row["id"].(int64)] = row["status"].(string)
	}
	return result
}

func enumValues(t *testing.T, tx driver.Tx, name string) []string {
	t.Helper()

	spec, err := tx.Enum(context.Background(), name)
	require.NoError(t, err)
	require.NotNil(t, spec)
	return spec.Values
}

// ---

var enumTestsTable = []struct { // nolint:gochecknoglobals
	name             string
	change           schema.EnumChange
	expectedValues   []string
	expectedStatuses map[int64]string
	expectedError    error
}{
	// -- success cases: ---
	/* s0 */ {
		name: "test s0: should remap error to remove when narrowing",
		change: schema.EnumChange{
			TypeName: "cluster_status", Columns: statusColumn,
			Old:   []string{"new", "error", "remove"},
			New:   []string{"new", "remove"},
			Remap: map[string]string{"error": "remove"},
		},
		expectedValues:   []string{"new", "remove"},
		expectedStatuses: map[int64]string{1: "new", 2: "remove", 3: "remove"},
	},
	/* s1 */ {
		name: "test s1: should widen without touching rows",
		change: schema.EnumChange{
			TypeName: "cluster_status", Columns: statusColumn,
			Old: []string{"new", "error", "remove"},
			New: []string{"new", "error", "remove", "operational"},
		},
		expectedValues:   []string{"new", "error", "remove", "operational"},
		expectedStatuses: map[int64]string{1: "new", 2: "error", 3: "remove"},
	},
	/* s2 */ {
		name: "test s2: should remap to a value introduced by the same change",
		change: schema.EnumChange{
			TypeName: "cluster_status", Columns: statusColumn,
			Old:   []string{"new", "error", "remove"},
			New:   []string{"new", "remove", "partially_deployed"},
			Remap: map[string]string{"error": "partially_deployed"},
		},
		expectedValues:   []string{"new", "remove", "partially_deployed"},
		expectedStatuses: map[int64]string{1: "new", 2: "partially_deployed", 3: "remove"},
	},
	/* s3 */ {
		name: "test s3: should do nothing when the values are unchanged",
		change: schema.EnumChange{
			TypeName: "cluster_status", Columns: statusColumn,
			Old: []string{"new", "error", "remove"},
			New: []string{"new", "error", "remove"},
		},
		expectedValues:   []string{"new", "error", "remove"},
		expectedStatuses: map[int64]string{1: "new", 2: "error", 3: "remove"},
	},

	// -- error cases: -----
	/* e0 */ {
		name: "test e0: should refuse to orphan rows",
		change: schema.EnumChange{
			TypeName: "cluster_status", Columns: statusColumn,
			Old: []string{"new", "error", "remove"},
			New: []string{"new", "remove"},
		},
		expectedError: schema.ErrUnmappedEnumValue,
	},
	/* e1 */ {
		name: "test e1: should reject a remap target outside the new values",
		change: schema.EnumChange{
			TypeName: "cluster_status", Columns: statusColumn,
			Old:   []string{"new", "error", "remove"},
			New:   []string{"new", "remove"},
			Remap: map[string]string{"error": "stopped"},
		},
		expectedError: schema.ErrInvalidEnum,
	},
	/* e2 */ {
		name: "test e2: should reject a type in an unexpected state",
		change: schema.EnumChange{
			TypeName: "cluster_status", Columns: statusColumn,
			Old: []string{"new", "deployment"},
			New: []string{"new"},
		},
		expectedError: schema.ErrSchemaConflict,
	},
	/* e3 */ {
		name: "test e3: should reject duplicate values",
		change: schema.EnumChange{
			TypeName: "cluster_status", Columns: statusColumn,
			Old: []string{"new", "error", "remove"},
			New: []string{"new", "error", "remove", "new"},
		},
		expectedError: schema.ErrInvalidEnum,
	},
}

func TestChangeEnum(t *testing.T) {
	t.Parallel()

	for _, mode := range storeModes {
		mode := mode
		for _, test := range enumTestsTable {
			test := test
			t.Run(mode.name+"/"+test.name, func(t *testing.T) {
				t.Parallel()
				ctx := context.Background()
				tx := seedStatuses(t, mode.opts...)

				err := schema.ChangeEnum(ctx, tx, test.change)
				if test.expectedError != nil {
					assert.ErrorIs(t, err, test.expectedError)
					assert.Equal(t, []string{"new", "error", "remove"}, enumValues(t, tx, "cluster_status"))
					assert.Equal(t, map[int64]string{1: "new", 2: "error", 3: "remove"}, statuses(t, tx))
					return
				}

				require.NoError(t, err)
				assert.Equal(t, test.expectedValues, enumValues(t, tx, "cluster_status"))
				assert.Equal(t, test.expectedStatuses, statuses(t, tx))

				assert.NoError(t, schema.ChangeEnum(ctx, tx, test.change), "second application should be a no-op")
			})
		}
	}
}

func TestUnmappedEnumErrorListsRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tx := seedStatuses(t)

	err := schema.NarrowEnum(ctx, tx, schema.EnumChange{
		TypeName: "cluster_status", Columns: statusColumn,
		Old:   []string{"new", "error", "remove"},
		New:   []string{"new"},
		Remap: map[string]string{"remove": "new"},
	})

	var unmapped *schema.UnmappedEnumError
	require.ErrorAs(t, err, &unmapped)
	assert.Equal(t, []string{"error"}, unmapped.Values)
	assert.Equal(t, map[string][]string{"clusters.status": {"2"}}, unmapped.Rows)
}

func TestWidenThenNarrowRestoresState(t *testing.T) {
	t.Parallel()

	for _, mode := range storeModes {
		mode := mode
		t.Run(mode.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			store := memory.NewDriver(mode.opts...)
			tx, err := store.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, schema.Apply(ctx, tx,
				schema.CreateEnumType{Spec: schema.EnumSpec{TypeName: "node_status", Values: []string{"ready", "error"}}},
				schema.CreateTable{Table: schema.Table{
					Name: "nodes",
					Columns: []schema.Column{
						{Name: "id", Type: schema.IntegerType(), AutoIncrement: true},
						{Name: "status", Type: schema.EnumType("node_status")},
					},
					PrimaryKey: []string{"id"},
				}},
			))
			_, err = tx.Insert(ctx, "nodes", schema.Row{"status": "ready"})
			require.NoError(t, err)
			require.NoError(t, tx.Commit(ctx))

			before := store.Snapshot()

			widen := schema.EnumChange{
				TypeName: "node_status",
				Columns:  []schema.ColumnRef{{Table: "nodes", Column: "status"}},
				Old:      []string{"ready", "error"},
				New:      []string{"ready", "error", "stopped"},
			}

			tx, err = store.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, schema.WidenEnum(ctx, tx, widen))
			require.NoError(t, tx.Commit(ctx))

			tx, err = store.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, schema.NarrowEnum(ctx, tx, widen.Reverse(nil)))
			require.NoError(t, tx.Commit(ctx))

			assert.Equal(t, before, store.Snapshot())
		})
	}
}

func TestSwapFailsWhenAColumnIsLeftOnTheOldType(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tx := seedStatuses(t)

	require.NoError(t, schema.Apply(ctx, tx, schema.CreateTable{Table: schema.Table{
		Name:    "cluster_changes",
		Columns: []schema.Column{{Name: "status", Type: schema.EnumType("cluster_status"), Nullable: true}},
	}}))

	err := schema.WidenEnum(ctx, tx, schema.EnumChange{
		TypeName: "cluster_status", Columns: statusColumn,
		Old: []string{"new", "error", "remove"},
		New: []string{"new", "error", "remove", "stopped"},
	})
	assert.ErrorIs(t, err, memory.ErrInUse)
}
