package revisions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/root-talis/fuelmig/backfill"
	"github.com/root-talis/fuelmig/document"
	"github.com/root-talis/fuelmig/schema"
)

// graphOwners are the tables whose deployment_tasks become graphs, in the
// order they are converted.
var graphOwners = []string{"release", "plugin", "cluster"} //nolint:gochecknoglobals

// JSON arrays stand in for the string array columns so that every store can
// hold them.
var graphTaskListColumns = []string{ //nolint:gochecknoglobals
	"groups", "tasks", "roles", "reexecute_on", "refresh_on", "required_for", "requires",
}

func deploymentGraphTasksTable() schema.Table {
	columns := []schema.Column{
		idColumn(),
		intColumn("deployment_graph_id", false),
		stringColumn("task_name", 255, false),
		{Name: "version", Type: schema.StringType(255), Default: schema.Default("1.0.0")},
		jsonColumn("condition", true, ""),
		{Name: "type", Type: schema.EnumType("deployment_graph_tasks_type")},
	}
	for _, name := range graphTaskListColumns {
		columns = append(columns, jsonColumn(name, false, "[]"))
	}
	columns = append(columns,
		jsonColumn("cross_depended_by", false, "[]"),
		jsonColumn("cross_depends", false, "[]"),
		jsonColumn("parameters", true, "{}"),
		jsonColumn("_custom", true, "{}"),
	)

	return schema.Table{
		Name:       "deployment_graph_tasks",
		Columns:    columns,
		PrimaryKey: []string{"id"},
		ForeignKeys: []schema.ForeignKey{
			foreignKey("deployment_graph_tasks_deployment_graph_id_fkey", "deployment_graph_id", "deployment_graphs", schema.Cascade),
		},
		Uniques: []schema.Unique{{
			Name:    "_task_name_deployment_graph_id_uc",
			Columns: []string{"deployment_graph_id", "task_name"},
		}},
	}
}

// graphRelationTable links a graph to its owner: release, plugin or cluster.
func graphRelationTable(owner string) schema.Table {
	name := owner + "_deployment_graphs"
	fkField := owner + "_id"
	return schema.Table{
		Name: name,
		Columns: []schema.Column{
			idColumn(),
			stringColumn("type", 255, false),
			intColumn("deployment_graph_id", false),
			intColumn(fkField, false),
		},
		PrimaryKey: []string{"id"},
		ForeignKeys: []schema.ForeignKey{
			foreignKey(name+"_deployment_graph_id_fkey", "deployment_graph_id", "deployment_graphs", schema.Cascade),
			foreignKey(name+"_"+fkField+"_fkey", fkField, owner+"s", schema.Cascade),
		},
		Uniques: []schema.Unique{{
			Name:    "type_" + fkField + "_uc",
			Columns: []string{"type", fkField},
		}},
	}
}

func createDeploymentGraphs() []schema.Op {
	ops := []schema.Op{
		schema.CreateEnumType{Spec: schema.EnumSpec{TypeName: "deployment_graph_tasks_type", Values: graphTaskTypes}},
		schema.CreateTable{Table: schema.Table{
			Name:       "deployment_graphs",
			Columns:    []schema.Column{idColumn(), stringColumn("name", 255, true)},
			PrimaryKey: []string{"id"},
		}},
		schema.CreateTable{Table: deploymentGraphTasksTable()},
	}
	for _, owner := range graphOwners {
		table := graphRelationTable(owner)
		ops = append(ops, schema.CreateTable{Table: table})
		for _, column := range []string{"deployment_graph_id", owner + "_id"} {
			ops = append(ops, schema.CreateIndex{Index: schema.Index{
				Name:    "ix_" + table.Name + "_" + column,
				Table:   table.Name,
				Columns: []string{column},
			}})
		}
	}
	return ops
}

// dropDeploymentGraphs brings back empty deployment_tasks columns. The tasks
// themselves are not rebuilt from the graphs.
func dropDeploymentGraphs() []schema.Op {
	var ops []schema.Op
	for i := len(graphOwners) - 1; i >= 0; i-- {
		ops = append(ops, schema.AddColumn{Table: graphOwners[i] + "s", Column: jsonColumn("deployment_tasks", false, "[]")})
	}
	for i := len(graphOwners) - 1; i >= 0; i-- {
		ops = append(ops, schema.DropTable{Name: graphOwners[i] + "_deployment_graphs"})
	}
	return append(ops,
		schema.DropTable{Name: "deployment_graph_tasks"},
		schema.DropEnumType{Name: "deployment_graph_tasks_type"},
		schema.DropTable{Name: "deployment_graphs"},
	)
}

// ---

func graphTaskMapping() backfill.Mapping {
	convert := map[string]backfill.Converter{
		"task_name":         asText,
		"version":           asText,
		"roles":             roleList,
		"condition":         asDocument,
		"parameters":        asDocument,
		"cross_depends":     asDocument,
		"cross_depended_by": asDocument,
	}
	for _, name := range graphTaskListColumns {
		if _, ok := convert[name]; !ok {
			convert[name] = asDocument
		}
	}

	return backfill.Mapping{
		Rename: map[string]string{
			"id":                "task_name",
			"cross-depends":     "cross_depends",
			"cross-depended-by": "cross_depended_by",
			"role":              "roles",
		},
		Known: []string{
			"tasks", "groups", "condition", "parameters", "cross_depended_by", "reexecute_on", "required_for",
			"requires", "refresh_on", "version", "roles", "task_name", "type", "cross_depends",
		},
		Convert: convert,
	}
}

func graphNormalizers() []transform {
	var normalizers []transform
	for _, owner := range graphOwners {
		normalizers = append(normalizers, backfill.Normalize{
			Source:           owner + "s",
			SourceKey:        "id",
			Document:         "deployment_tasks",
			Target:           "deployment_graph_tasks",
			Fields:           graphTaskMapping(),
			Overflow:         "_custom",
			Parent:           attachDefaultGraph(owner),
			DropSourceColumn: true,
		})
	}
	return normalizers
}

// attachDefaultGraph creates the "default" graph of one owner row.
func attachDefaultGraph(owner string) backfill.ParentFunc {
	return func(ctx context.Context, store schema.Store, key interface{}) (schema.Row, error) {
		graphID, err := store.Insert(ctx, "deployment_graphs", schema.Row{"name": "default"})
		if err != nil {
			return nil, fmt.Errorf("failed to create deployment graph: %w", err)
		}

		_, err = store.Insert(ctx, owner+"_deployment_graphs", schema.Row{
			"type":                "default",
			"deployment_graph_id": graphID,
			owner + "_id":         key,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to link deployment graph %v: %w", graphID, err)
		}

		return schema.Row{"deployment_graph_id": graphID}, nil
	}
}

// ---

func asText(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil, string:
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return nil, fmt.Errorf("%w: expected text, got %T", document.ErrUnexpectedShape, value)
	}
}

func asDocument(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	return document.Serialize(value)
}

// roleList accepts a single role name as well as a list of them.
func roleList(value interface{}) (interface{}, error) {
	if s, ok := value.(string); ok {
		value = []interface{}{s}
	}
	return asDocument(value)
}
