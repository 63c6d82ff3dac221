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

// fixture is a small cluster/node schema with one enum.
func fixture(t *testing.T, opts ...memory.Option) driver.Tx {
	t.Helper()
	ctx := context.Background()

	tx, err := memory.NewDriver(opts...).Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(ctx) })

	require.NoError(t, schema.Apply(ctx, tx,
		schema.CreateEnumType{Spec: schema.EnumSpec{TypeName: "cluster_status", Values: []string{"new", "error", "remove"}}},
		schema.CreateTable{Table: schema.Table{
			Name: "clusters",
			Columns: []schema.Column{
				{Name: "id", Type: schema.IntegerType(), AutoIncrement: true},
				{Name: "name", Type: schema.StringType(50)},
				{Name: "status", Type: schema.EnumType("cluster_status")},
			},
			PrimaryKey: []string{"id"},
		}},
		schema.CreateTable{Table: schema.Table{
			Name: "nodes",
			Columns: []schema.Column{
				{Name: "id", Type: schema.IntegerType(), AutoIncrement: true},
				{Name: "cluster_id", Type: schema.IntegerType(), Nullable: true},
				{Name: "mac", Type: schema.StringType(17)},
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []schema.ForeignKey{{
				Name: "nodes_cluster_id_fkey", Columns: []string{"cluster_id"},
				RefTable: "clusters", RefColumns: []string{"id"}, OnDelete: schema.NoAction,
			}},
		}},
	))

	_, err = tx.Insert(ctx, "clusters", schema.Row{"name": "env-1", "status": "new"})
	require.NoError(t, err)
	_, err = tx.Insert(ctx, "nodes", schema.Row{"cluster_id": 1, "mac": "52:54:00:00:00:01"})
	require.NoError(t, err)

	return tx
}

var clusterFK = schema.ForeignKey{ // nolint:gochecknoglobals
	Name: "nodes_cluster_id_fkey", Columns: []string{"cluster_id"},
	RefTable: "clusters", RefColumns: []string{"id"}, OnDelete: schema.Cascade,
}

var opsTestsTable = []struct { // nolint:gochecknoglobals
	name          string
	ops           []schema.Op
	expectedError error
}{
	// -- success cases, each is applied twice: ---
	/* s0 */ {
		name: "test s0: should add a nullable column",
		ops:  []schema.Op{schema.AddColumn{Table: "nodes", Column: schema.Column{Name: "hostname", Type: schema.StringType(255), Nullable: true}}},
	},
	/* s1 */ {
		name: "test s1: should add a non-nullable column with a default to a non-empty table",
		ops: []schema.Op{schema.AddColumn{Table: "nodes", Column: schema.Column{
			Name: "is_user_defined", Type: schema.BooleanType(), Default: schema.Default("false"),
		}}},
	},
	/* s2 */ {
		name: "test s2: should drop a column",
		ops:  []schema.Op{schema.DropColumn{Table: "nodes", Column: "mac"}},
	},
	/* s3 */ {
		name: "test s3: should rename a column",
		ops:  []schema.Op{schema.RenameColumn{Table: "nodes", From: "mac", To: "mac_address"}},
	},
	/* s4 */ {
		name: "test s4: should widen a varchar",
		ops:  []schema.Op{schema.AlterColumnType{Table: "nodes", Column: "mac", Type: schema.StringType(50)}},
	},
	/* s5 */ {
		name: "test s5: should replace a delete policy",
		ops:  []schema.Op{schema.SetDeletePolicy{Table: "nodes", Key: clusterFK}},
	},
	/* s6 */ {
		name: "test s6: should replace a delete policy under a new name",
		ops: []schema.Op{schema.SetDeletePolicy{Table: "nodes", OldName: "nodes_cluster_id_fkey", Key: schema.ForeignKey{
			Name: "nodes_clusters_fk", Columns: []string{"cluster_id"},
			RefTable: "clusters", RefColumns: []string{"id"}, OnDelete: schema.SetNull,
		}}},
	},
	/* s7 */ {
		name: "test s7: should create and drop an index",
		ops: []schema.Op{
			schema.CreateIndex{Index: schema.Index{Name: "nodes_mac_idx", Table: "nodes", Columns: []string{"mac"}, Unique: true}},
			schema.DropIndex{Table: "nodes", Name: "nodes_mac_idx"},
		},
	},
	/* s8 */ {
		name: "test s8: should create a table referencing an existing one",
		ops: []schema.Op{schema.CreateTable{Table: schema.Table{
			Name: "tasks",
			Columns: []schema.Column{
				{Name: "id", Type: schema.IntegerType(), AutoIncrement: true},
				{Name: "cluster_id", Type: schema.IntegerType(), Nullable: true},
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []schema.ForeignKey{{
				Name: "tasks_cluster_id_fkey", Columns: []string{"cluster_id"},
				RefTable: "clusters", RefColumns: []string{"id"}, OnDelete: schema.Cascade,
			}},
		}}},
	},
	/* s9 */ {
		name: "test s9: should drop a table and an unused enum",
		ops: []schema.Op{
			schema.CreateEnumType{Spec: schema.EnumSpec{TypeName: "bond_mode", Values: []string{"active-backup"}}},
			schema.DropTable{Name: "nodes"},
			schema.DropEnumType{Name: "bond_mode"},
		},
	},
	/* s10 */ {
		name: "test s10: should drop a foreign key and then its column",
		ops: []schema.Op{
			schema.DropConstraint{Table: "nodes", Name: "nodes_cluster_id_fkey"},
			schema.DropColumn{Table: "nodes", Column: "cluster_id"},
		},
	},

	// -- error cases: -----
	/* e0 */ {
		name:          "test e0: should reject a column that exists with another type",
		ops:           []schema.Op{schema.AddColumn{Table: "nodes", Column: schema.Column{Name: "mac", Type: schema.TextType()}}},
		expectedError: schema.ErrSchemaConflict,
	},
	/* e1 */ {
		name:          "test e1: should reject a non-nullable column without default on a non-empty table",
		ops:           []schema.Op{schema.AddColumn{Table: "nodes", Column: schema.Column{Name: "uuid", Type: schema.StringType(36)}}},
		expectedError: schema.ErrSchemaConflict,
	},
	/* e2 */ {
		name:          "test e2: should refuse to drop a column used by a foreign key",
		ops:           []schema.Op{schema.DropColumn{Table: "nodes", Column: "cluster_id"}},
		expectedError: schema.ErrSchemaConflict,
	},
	/* e3 */ {
		name:          "test e3: should reject a rename when both columns exist",
		ops:           []schema.Op{schema.RenameColumn{Table: "nodes", From: "mac", To: "id"}},
		expectedError: schema.ErrSchemaConflict,
	},
	/* e4 */ {
		name:          "test e4: should reject a rename when neither column exists",
		ops:           []schema.Op{schema.RenameColumn{Table: "nodes", From: "ip", To: "ip_addr"}},
		expectedError: schema.ErrSchemaConflict,
	},
	/* e5 */ {
		name: "test e5: should reject a foreign key without a delete policy",
		ops: []schema.Op{schema.AddForeignKey{Table: "nodes", Key: schema.ForeignKey{
			Name: "nodes_fk", Columns: []string{"cluster_id"}, RefTable: "clusters", RefColumns: []string{"id"},
		}}},
		expectedError: schema.ErrImplicitDeletePolicy,
	},
	/* e6 */ {
		name:          "test e6: should reject a foreign key that exists with another policy",
		ops:           []schema.Op{schema.AddForeignKey{Table: "nodes", Key: clusterFK}},
		expectedError: schema.ErrSchemaConflict,
	},
	/* e7 */ {
		name: "test e7: should reject a table that exists with another shape",
		ops: []schema.Op{schema.CreateTable{Table: schema.Table{
			Name:       "clusters",
			Columns:    []schema.Column{{Name: "id", Type: schema.IntegerType(), AutoIncrement: true}},
			PrimaryKey: []string{"id"},
		}}},
		expectedError: schema.ErrSchemaConflict,
	},
	/* e8 */ {
		name: "test e8: should reject a table typed with an unknown enum",
		ops: []schema.Op{schema.CreateTable{Table: schema.Table{
			Name:    "bonds",
			Columns: []schema.Column{{Name: "mode", Type: schema.EnumType("bond_mode")}},
		}}},
		expectedError: schema.ErrSchemaConflict,
	},
	/* e9 */ {
		name:          "test e9: should reject a retype of an enum column",
		ops:           []schema.Op{schema.AlterColumnType{Table: "clusters", Column: "status", Type: schema.StringType(50)}},
		expectedError: schema.ErrSchemaConflict,
	},
	/* e10 */ {
		name:          "test e10: should reject an enum that exists with other values",
		ops:           []schema.Op{schema.CreateEnumType{Spec: schema.EnumSpec{TypeName: "cluster_status", Values: []string{"new"}}}},
		expectedError: schema.ErrSchemaConflict,
	},
	/* e11 */ {
		name:          "test e11: should reject an operation on a missing table",
		ops:           []schema.Op{schema.DropColumn{Table: "plugins", Column: "id"}},
		expectedError: schema.ErrSchemaConflict,
	},
	/* e12 */ {
		name:          "test e12: should refuse to drop a table referenced by another one",
		ops:           []schema.Op{schema.DropTable{Name: "clusters"}},
		expectedError: schema.ErrSchemaConflict,
	},
	/* e13 */ {
		name:          "test e13: should refuse to drop an enum used by a column",
		ops:           []schema.Op{schema.DropEnumType{Name: "cluster_status"}},
		expectedError: schema.ErrSchemaConflict,
	},
	/* e14 */ {
		name: "test e14: should reject a table that exists with other unique constraints",
		ops: []schema.Op{schema.CreateTable{Table: schema.Table{
			Name: "clusters",
			Columns: []schema.Column{
				{Name: "id", Type: schema.IntegerType(), AutoIncrement: true},
				{Name: "name", Type: schema.StringType(50)},
				{Name: "status", Type: schema.EnumType("cluster_status")},
			},
			PrimaryKey: []string{"id"},
			Uniques:    []schema.Unique{{Name: "clusters_name_key", Columns: []string{"name"}}},
		}}},
		expectedError: schema.ErrSchemaConflict,
	},
}

func TestOpsAreIdempotent(t *testing.T) {
	t.Parallel()

	for _, test := range opsTestsTable {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			tx := fixture(t)

			err := schema.Apply(ctx, tx, test.ops...)
			if test.expectedError != nil {
				assert.ErrorIs(t, err, test.expectedError)
				return
			}

			require.NoError(t, err)
			assert.NoError(t, schema.Apply(ctx, tx, test.ops...), "second application should be a no-op")
		})
	}
}

func TestConflictErrorNamesTheObject(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tx := fixture(t)

	err := schema.DropColumn{Table: "nodes", Column: "cluster_id"}.Apply(ctx, tx)

	var conflict *schema.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "drop column", conflict.Op)
	assert.Equal(t, "nodes", conflict.Table)
	assert.Equal(t, "cluster_id", conflict.Object)
}

func TestSetDeletePolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tx := fixture(t)

	require.NoError(t, schema.SetDeletePolicy{Table: "nodes", Key: clusterFK}.Apply(ctx, tx))

	table, err := tx.Table(ctx, "nodes")
	require.NoError(t, err)
	fk, ok := table.ForeignKey("nodes_cluster_id_fkey")
	require.True(t, ok)
	assert.Equal(t, schema.Cascade, fk.OnDelete)
	assert.Len(t, table.ForeignKeys, 1)
}

func TestDropInUseReportsConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name           string
		op             schema.Op
		expectedOp     string
		expectedTable  string
		expectedReason string
	}{
		{
			/* e0 */ name: "referenced table",
			op:             schema.DropTable{Name: "clusters"},
			expectedOp:     "drop table",
			expectedTable:  "clusters",
			expectedReason: "table is referenced by nodes",
		},
		{
			/* e1 */ name: "enum in use",
			op:             schema.DropEnumType{Name: "cluster_status"},
			expectedOp:     "drop enum",
			expectedTable:  "cluster_status",
			expectedReason: "enum is used by clusters.status",
		},
	}

	for _, test := range tests {
		tx := fixture(t)
		err := test.op.Apply(ctx, tx)

		var conflict *schema.ConflictError
		require.ErrorAs(t, err, &conflict, test.name)
		assert.Equal(t, test.expectedOp, conflict.Op, test.name)
		assert.Equal(t, test.expectedTable, conflict.Table, test.name)
		assert.Equal(t, test.expectedReason, conflict.Reason, test.name)
		assert.NotErrorIs(t, err, memory.ErrInUse, test.name)
	}
}

func TestCreateTableMatchesUniques(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tx := fixture(t)

	graphs := schema.Table{
		Name: "graph_tasks",
		Columns: []schema.Column{
			{Name: "id", Type: schema.IntegerType(), AutoIncrement: true},
			{Name: "graph_id", Type: schema.IntegerType()},
			{Name: "task_name", Type: schema.StringType(255)},
		},
		PrimaryKey: []string{"id"},
		Uniques:    []schema.Unique{{Name: "_task_name_graph_id_uc", Columns: []string{"graph_id", "task_name"}}},
	}
	require.NoError(t, schema.CreateTable{Table: graphs}.Apply(ctx, tx))
	require.NoError(t, schema.CreateTable{Table: graphs}.Apply(ctx, tx))

	reordered := graphs
	reordered.Uniques = []schema.Unique{{Name: "_task_name_graph_id_uc", Columns: []string{"task_name", "graph_id"}}}
	assert.ErrorIs(t, schema.CreateTable{Table: reordered}.Apply(ctx, tx), schema.ErrSchemaConflict)

	none := graphs
	none.Uniques = nil
	assert.ErrorIs(t, schema.CreateTable{Table: none}.Apply(ctx, tx), schema.ErrSchemaConflict)
}
