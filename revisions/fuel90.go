package revisions

import (
	"github.com/root-talis/fuelmig/backfill"
	"github.com/root-talis/fuelmig/schema"
)

var (
	clusterStatusesOld = []string{"new", "deployment", "stopped", "operational", "error", "remove", "update", "update_error"} //nolint:gochecknoglobals
	clusterStatusesNew = []string{"new", "deployment", "stopped", "operational", "error", "remove", "partially_deployed"}     //nolint:gochecknoglobals

	nodeStatusesOld = []string{"ready", "discover", "provisioning", "provisioned", "deploying", "error", "removing"}            //nolint:gochecknoglobals
	nodeStatusesNew = []string{"ready", "discover", "provisioning", "provisioned", "deploying", "error", "removing", "stopped"} //nolint:gochecknoglobals

	l23ProvidersOld = []string{"ovs", "nsx"}            //nolint:gochecknoglobals
	l23ProvidersNew = []string{"ovs", "nsx", "dpdkovs"} //nolint:gochecknoglobals

	nodeErrorsOld = []string{"deploy", "provision", "deletion", "discover"}                    //nolint:gochecknoglobals
	nodeErrorsNew = []string{"deploy", "provision", "deletion", "discover", "stop_deployment"} //nolint:gochecknoglobals

	bondModesOld = []string{ //nolint:gochecknoglobals
		"active-backup",
		"balance-slb", "lacp-balance-tcp",
		"balance-rr", "balance-xor", "broadcast", "802.3ad", "balance-tlb", "balance-alb",
	}
	bondModesNew = []string{ //nolint:gochecknoglobals
		"active-backup",
		"balance-slb", "balance-tcp", "lacp-balance-tcp",
		"balance-rr", "balance-xor", "broadcast", "802.3ad", "balance-tlb", "balance-alb",
	}

	historyTaskStatuses = []string{"pending", "ready", "running", "error", "skipped"} //nolint:gochecknoglobals

	graphTaskTypes = []string{ //nolint:gochecknoglobals
		"puppet", "shell", "sync", "upload_file", "group", "stage", "skipped", "reboot", "copy_files", "role",
	}
)

// Enum changes of 9.0. Values dropped on the way back are folded into their
// closest 8.0 meaning.
var (
	clusterStatusChange = schema.EnumChange{ //nolint:gochecknoglobals
		TypeName: "cluster_status",
		Columns:  []schema.ColumnRef{{Table: "clusters", Column: "status"}},
		Old:      clusterStatusesOld,
		New:      clusterStatusesNew,
		Remap:    map[string]string{"update": "operational", "update_error": "error"},
	}
	nodeStatusChange = schema.EnumChange{ //nolint:gochecknoglobals
		TypeName: "node_status",
		Columns:  []schema.ColumnRef{{Table: "nodes", Column: "status"}},
		Old:      nodeStatusesOld,
		New:      nodeStatusesNew,
	}
	l23ProviderChange = schema.EnumChange{ //nolint:gochecknoglobals
		TypeName: "net_l23_provider",
		Columns:  []schema.ColumnRef{{Table: "neutron_config", Column: "net_l23_provider"}},
		Old:      l23ProvidersOld,
		New:      l23ProvidersNew,
	}
	nodeErrorChange = schema.EnumChange{ //nolint:gochecknoglobals
		TypeName: "node_error_type",
		Columns:  []schema.ColumnRef{{Table: "nodes", Column: "error_type"}},
		Old:      nodeErrorsOld,
		New:      nodeErrorsNew,
	}
	bondModeChange = schema.EnumChange{ //nolint:gochecknoglobals
		TypeName: "bond_mode",
		Columns:  []schema.ColumnRef{{Table: "node_bond_interfaces", Column: "mode"}},
		Old:      bondModesOld,
		New:      bondModesNew,
	}
)

// ---

type deletePolicyChange struct {
	table   string
	oldName string
	key     schema.ForeignKey
}

func deletePolicyChanges() []deletePolicyChange {
	return []deletePolicyChange{
		{table: "attributes", key: foreignKey("attributes_cluster_id_fkey", "cluster_id", "clusters", schema.Cascade)},
		{table: "cluster_changes", key: foreignKey("cluster_changes_cluster_id_fkey", "cluster_id", "clusters", schema.Cascade)},
		{table: "nodegroups", key: foreignKey("nodegroups_cluster_id_fkey", "cluster_id", "clusters", schema.Cascade)},
		{table: "vmware_attributes", key: foreignKey("vmware_attributes_cluster_id_fkey", "cluster_id", "clusters", schema.Cascade)},
		{table: "networking_configs", key: foreignKey("networking_configs_cluster_id_fkey", "cluster_id", "clusters", schema.Cascade)},
		{table: "network_groups", key: foreignKey("network_groups_nodegroups_fk", "group_id", "nodegroups", schema.Cascade)},
		{
			table:   "network_groups",
			oldName: "network_groups_release_fkey",
			key:     foreignKey("network_groups_release_fk", "release", "releases", schema.Cascade),
		},
		{table: "neutron_config", key: foreignKey("neutron_config_id_fkey", "id", "networking_configs", schema.Cascade)},
		{table: "nodes", key: foreignKey("nodes_nodegroups_fk", "group_id", "nodegroups", schema.SetNull)},
		{table: "nodes", key: foreignKey("nodes_cluster_id_fkey", "cluster_id", "clusters", schema.Cascade)},
		{table: "cluster_plugin_links", key: foreignKey("cluster_plugin_links_cluster_id_fkey", "cluster_id", "clusters", schema.Cascade)},
		{table: "node_nic_interfaces", key: foreignKey("node_nic_interfaces_parent_id_fkey", "parent_id", "node_bond_interfaces", schema.SetNull)},
		{table: "openstack_configs", key: foreignKey("openstack_configs_cluster_id_fkey", "cluster_id", "clusters", schema.Cascade)},
		{table: "openstack_configs", key: foreignKey("openstack_configs_node_id_fkey", "node_id", "nodes", schema.SetNull)},
		{table: "plugin_links", key: foreignKey("plugin_links_plugin_id_fkey", "plugin_id", "plugins", schema.Cascade)},
		{table: "tasks", key: foreignKey("tasks_cluster_id_fkey", "cluster_id", "clusters", schema.Cascade)},
		{table: "tasks", key: foreignKey("tasks_parent_id_fkey", "parent_id", "tasks", schema.Cascade)},
	}
}

func setDeletePolicies() []schema.Op {
	var ops []schema.Op
	for _, c := range deletePolicyChanges() {
		ops = append(ops, schema.SetDeletePolicy{Table: c.table, OldName: c.oldName, Key: c.key})
	}
	return ops
}

// resetDeletePolicies puts back the implicit policies and original names.
func resetDeletePolicies() []schema.Op {
	var ops []schema.Op
	for _, c := range deletePolicyChanges() {
		key := c.key
		key.OnDelete = schema.NoAction
		oldName := ""
		if c.oldName != "" {
			oldName, key.Name = key.Name, c.oldName
		}
		ops = append(ops, schema.SetDeletePolicy{Table: c.table, OldName: oldName, Key: key})
	}
	return ops
}

// ---

func fuel90Changes() []change {
	return []change{
		{
			name:      "foreign key delete policies",
			upgrade:   apply(setDeletePolicies()...),
			downgrade: apply(resetDeletePolicies()...),
		},
		{
			name: "ip address columns",
			upgrade: apply(
				schema.AddColumn{Table: "ip_addrs", Column: schema.Column{
					Name: "is_user_defined", Type: schema.BooleanType(), Default: schema.Default("false"),
				}},
				schema.AddColumn{Table: "ip_addrs", Column: stringColumn("vip_namespace", 50, true)},
				schema.RenameColumn{Table: "ip_addrs", From: "vip_type", To: "vip_name"},
				schema.AlterColumnType{Table: "ip_addrs", Column: "vip_name", Type: schema.StringType(50)},
			),
			downgrade: apply(
				schema.RenameColumn{Table: "ip_addrs", From: "vip_name", To: "vip_type"},
				schema.AlterColumnType{Table: "ip_addrs", Column: "vip_type", Type: schema.StringType(25)},
				schema.DropColumn{Table: "ip_addrs", Column: "is_user_defined"},
				schema.DropColumn{Table: "ip_addrs", Column: "vip_namespace"},
			),
		},
		{
			name:    "vip namespaces from network roles",
			upgrade: updateVipNamespaces,
		},
		{
			name:      "node role groups",
			upgrade:   run(roleGroupsRewrite(setRoleGroups)),
			downgrade: run(roleGroupsRewrite(removeRoleGroups)),
		},
		{
			name: "merge node attributes into nodes",
			upgrade: then(
				apply(schema.AddColumn{Table: "nodes", Column: jsonColumn("vms_conf", false, "[]")}),
				run(backfill.Merge{
					Source:     "node_attributes",
					SourceKey:  "node_id",
					Target:     "nodes",
					TargetKey:  "id",
					Columns:    map[string]string{"vms_conf": "vms_conf"},
					DropSource: true,
				}),
			),
			downgrade: apply(
				schema.CreateTable{Table: nodeAttributesTable()},
				schema.DropColumn{Table: "nodes", Column: "vms_conf"},
			),
		},
		{
			name: "node attributes",
			upgrade: apply(
				schema.AddColumn{Table: "nodes", Column: jsonColumn("attributes", false, "{}")},
				schema.AddColumn{Table: "releases", Column: jsonColumn("node_attributes", false, "{}")},
			),
			downgrade: apply(
				schema.DropColumn{Table: "releases", Column: "node_attributes"},
				schema.DropColumn{Table: "nodes", Column: "attributes"},
			),
		},
		{
			name:      "wizard metadata",
			upgrade:   apply(schema.DropColumn{Table: "releases", Column: "wizard_metadata"}),
			downgrade: apply(schema.AddColumn{Table: "releases", Column: jsonColumn("wizard_metadata", true, "")}),
		},
		{
			name:      "deployment graphs",
			upgrade:   then(apply(createDeploymentGraphs()...), run(graphNormalizers()...)),
			downgrade: apply(dropDeploymentGraphs()...),
		},
		{
			name: "legacy patching",
			upgrade: then(
				enumChange(clusterStatusChange),
				apply(
					schema.DropConstraint{Table: "clusters", Name: "fk_pending_release_id"},
					schema.DropColumn{Table: "clusters", Column: "pending_release_id"},
					schema.DropColumn{Table: "releases", Column: "can_update_from_versions"},
				),
			),
			downgrade: then(
				apply(
					schema.AddColumn{Table: "releases", Column: jsonColumn("can_update_from_versions", false, "[]")},
					schema.AddColumn{Table: "clusters", Column: intColumn("pending_release_id", true)},
					schema.AddForeignKey{
						Table: "clusters",
						Key:   foreignKey("fk_pending_release_id", "pending_release_id", "releases", schema.NoAction),
					},
				),
				enumChange(clusterStatusChange.Reverse(map[string]string{"partially_deployed": "operational"})),
			),
		},
		{
			name:      "node statuses",
			upgrade:   enumChange(nodeStatusChange),
			downgrade: enumChange(nodeStatusChange.Reverse(map[string]string{"stopped": "error"})),
		},
		{
			name:      "neutron l23 providers",
			upgrade:   enumChange(l23ProviderChange),
			downgrade: enumChange(l23ProviderChange.Reverse(map[string]string{"dpdkovs": "ovs"})),
		},
		{
			name:      "node error types",
			upgrade:   enumChange(nodeErrorChange),
			downgrade: enumChange(nodeErrorChange.Reverse(map[string]string{"stop_deployment": "deploy"})),
		},
		{
			name:      "bond modes",
			upgrade:   enumChange(bondModeChange),
			downgrade: enumChange(bondModeChange.Reverse(map[string]string{"balance-tcp": "lacp-balance-tcp"})),
		},
		{
			name: "task attributes",
			upgrade: apply(
				schema.AddColumn{Table: "tasks", Column: schema.Column{Name: "deleted_at", Type: schema.DateTimeType(), Nullable: true}},
				schema.AddColumn{Table: "tasks", Column: jsonColumn("deployment_info", true, "")},
				schema.AddColumn{Table: "tasks", Column: jsonColumn("cluster_settings", true, "")},
				schema.AddColumn{Table: "tasks", Column: jsonColumn("network_settings", true, "")},
				schema.CreateIndex{Index: schema.Index{Name: "cluster_name_idx", Table: "tasks", Columns: []string{"cluster_id", "name"}}},
			),
			downgrade: apply(
				schema.DropIndex{Table: "tasks", Name: "cluster_name_idx"},
				schema.DropColumn{Table: "tasks", Column: "network_settings"},
				schema.DropColumn{Table: "tasks", Column: "cluster_settings"},
				schema.DropColumn{Table: "tasks", Column: "deployment_info"},
				schema.DropColumn{Table: "tasks", Column: "deleted_at"},
			),
		},
		{
			name: "deployment history",
			upgrade: apply(
				schema.CreateEnumType{Spec: schema.EnumSpec{TypeName: "history_task_statuses", Values: historyTaskStatuses}},
				schema.CreateTable{Table: deploymentHistoryTable()},
				schema.CreateIndex{Index: schema.Index{
					Name:    "deployment_history_task_id_and_status",
					Table:   "deployment_history",
					Columns: []string{"task_id", "status"},
				}},
			),
			downgrade: apply(
				schema.DropTable{Name: "deployment_history"},
				schema.DropEnumType{Name: "history_task_statuses"},
			),
		},
		{
			name:      "ceph cluster attributes",
			upgrade:   run(cephAttributesRewrite(addCephAttributes)),
			downgrade: run(cephAttributesRewrite(removeCephAttributes)),
		},
	}
}

func deploymentHistoryTable() schema.Table {
	return schema.Table{
		Name: "deployment_history",
		Columns: []schema.Column{
			idColumn(),
			intColumn("task_id", false),
			stringColumn("node_id", 0, true),
			stringColumn("deployment_graph_task_name", 0, false),
			{Name: "time_start", Type: schema.DateTimeType(), Nullable: true},
			{Name: "time_end", Type: schema.DateTimeType(), Nullable: true},
			{Name: "status", Type: schema.EnumType("history_task_statuses")},
			jsonColumn("custom", false, "{}"),
		},
		PrimaryKey:  []string{"id"},
		ForeignKeys: []schema.ForeignKey{foreignKey("deployment_history_task_id_fkey", "task_id", "tasks", schema.NoAction)},
		Uniques: []schema.Unique{{
			Name:    "_task_id_node_id_deployment_graph_task_name_uc",
			Columns: []string{"task_id", "node_id", "deployment_graph_task_name"},
		}},
	}
}
