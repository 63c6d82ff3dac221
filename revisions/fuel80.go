package revisions

import (
	"github.com/root-talis/fuelmig/schema"
)

// The 8.0 base covers the tables and types the 9.0 revision reads or alters.

func fuel80Enums() []schema.EnumSpec {
	return []schema.EnumSpec{
		{TypeName: "cluster_status", Values: clusterStatusesOld},
		{TypeName: "node_status", Values: nodeStatusesOld},
		{TypeName: "node_error_type", Values: nodeErrorsOld},
		{TypeName: "net_l23_provider", Values: l23ProvidersOld},
		{TypeName: "bond_mode", Values: bondModesOld},
	}
}

// nodeAttributesTable is shared with the downgrade of the node attributes
// merge, which recreates it.
func nodeAttributesTable() schema.Table {
	return schema.Table{
		Name: "node_attributes",
		Columns: []schema.Column{
			idColumn(),
			intColumn("node_id", true),
			jsonColumn("interfaces", true, ""),
			jsonColumn("vms_conf", false, "[]"),
		},
		PrimaryKey:  []string{"id"},
		ForeignKeys: []schema.ForeignKey{foreignKey("node_attributes_node_id_fkey", "node_id", "nodes", schema.NoAction)},
	}
}

func fuel80Tables() []schema.Table {
	return []schema.Table{
		{
			Name: "releases",
			Columns: []schema.Column{
				idColumn(),
				stringColumn("name", 100, false),
				stringColumn("version", 30, false),
				jsonColumn("roles_metadata", true, ""),
				jsonColumn("network_roles_metadata", true, ""),
				jsonColumn("wizard_metadata", true, ""),
				jsonColumn("deployment_tasks", false, "[]"),
				jsonColumn("can_update_from_versions", false, "[]"),
			},
			PrimaryKey: []string{"id"},
		},
		{
			Name: "clusters",
			Columns: []schema.Column{
				idColumn(),
				stringColumn("name", 50, false),
				{Name: "status", Type: schema.EnumType("cluster_status"), Default: schema.Default("new")},
				intColumn("release_id", false),
				intColumn("pending_release_id", true),
				jsonColumn("deployment_tasks", false, "[]"),
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []schema.ForeignKey{
				foreignKey("clusters_release_id_fkey", "release_id", "releases", schema.NoAction),
				foreignKey("fk_pending_release_id", "pending_release_id", "releases", schema.NoAction),
			},
		},
		{
			Name: "nodegroups",
			Columns: []schema.Column{
				idColumn(),
				intColumn("cluster_id", true),
				stringColumn("name", 50, false),
			},
			PrimaryKey:  []string{"id"},
			ForeignKeys: []schema.ForeignKey{foreignKey("nodegroups_cluster_id_fkey", "cluster_id", "clusters", schema.NoAction)},
		},
		{
			Name: "nodes",
			Columns: []schema.Column{
				idColumn(),
				stringColumn("uuid", 36, false),
				stringColumn("hostname", 255, true),
				intColumn("cluster_id", true),
				intColumn("group_id", true),
				{Name: "status", Type: schema.EnumType("node_status"), Default: schema.Default("discover")},
				{Name: "error_type", Type: schema.EnumType("node_error_type"), Nullable: true},
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []schema.ForeignKey{
				foreignKey("nodes_cluster_id_fkey", "cluster_id", "clusters", schema.NoAction),
				foreignKey("nodes_nodegroups_fk", "group_id", "nodegroups", schema.NoAction),
			},
		},
		nodeAttributesTable(),
		{
			Name: "ip_addrs",
			Columns: []schema.Column{
				idColumn(),
				intColumn("network", true),
				intColumn("node", true),
				stringColumn("ip_addr", 25, false),
				stringColumn("vip_type", 25, true),
			},
			PrimaryKey: []string{"id"},
		},
		{
			Name: "attributes",
			Columns: []schema.Column{
				idColumn(),
				intColumn("cluster_id", true),
				jsonColumn("editable", true, ""),
				jsonColumn("generated", true, ""),
			},
			PrimaryKey:  []string{"id"},
			ForeignKeys: []schema.ForeignKey{foreignKey("attributes_cluster_id_fkey", "cluster_id", "clusters", schema.NoAction)},
		},
		{
			Name: "cluster_changes",
			Columns: []schema.Column{
				idColumn(),
				intColumn("cluster_id", true),
				intColumn("node_id", true),
				stringColumn("name", 100, false),
			},
			PrimaryKey:  []string{"id"},
			ForeignKeys: []schema.ForeignKey{foreignKey("cluster_changes_cluster_id_fkey", "cluster_id", "clusters", schema.NoAction)},
		},
		{
			Name: "vmware_attributes",
			Columns: []schema.Column{
				idColumn(),
				intColumn("cluster_id", true),
				jsonColumn("editable", true, ""),
			},
			PrimaryKey:  []string{"id"},
			ForeignKeys: []schema.ForeignKey{foreignKey("vmware_attributes_cluster_id_fkey", "cluster_id", "clusters", schema.NoAction)},
		},
		{
			Name: "networking_configs",
			Columns: []schema.Column{
				idColumn(),
				intColumn("cluster_id", true),
				stringColumn("discriminator", 50, true),
				jsonColumn("dns_nameservers", true, ""),
			},
			PrimaryKey:  []string{"id"},
			ForeignKeys: []schema.ForeignKey{foreignKey("networking_configs_cluster_id_fkey", "cluster_id", "clusters", schema.NoAction)},
		},
		{
			Name: "neutron_config",
			Columns: []schema.Column{
				intColumn("id", false),
				{Name: "net_l23_provider", Type: schema.EnumType("net_l23_provider"), Default: schema.Default("ovs")},
				stringColumn("segmentation_type", 50, true),
			},
			PrimaryKey:  []string{"id"},
			ForeignKeys: []schema.ForeignKey{foreignKey("neutron_config_id_fkey", "id", "networking_configs", schema.NoAction)},
		},
		{
			Name: "network_groups",
			Columns: []schema.Column{
				idColumn(),
				stringColumn("name", 50, false),
				intColumn("release", true),
				intColumn("group_id", true),
				stringColumn("cidr", 25, true),
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []schema.ForeignKey{
				foreignKey("network_groups_release_fkey", "release", "releases", schema.NoAction),
				foreignKey("network_groups_nodegroups_fk", "group_id", "nodegroups", schema.NoAction),
			},
		},
		{
			Name: "plugins",
			Columns: []schema.Column{
				idColumn(),
				stringColumn("name", 100, false),
				stringColumn("version", 32, false),
				jsonColumn("network_roles_metadata", true, ""),
				jsonColumn("deployment_tasks", false, "[]"),
			},
			PrimaryKey: []string{"id"},
		},
		{
			Name: "cluster_plugin_links",
			Columns: []schema.Column{
				idColumn(),
				intColumn("cluster_id", false),
				stringColumn("title", 255, false),
				{Name: "url", Type: schema.TextType()},
			},
			PrimaryKey:  []string{"id"},
			ForeignKeys: []schema.ForeignKey{foreignKey("cluster_plugin_links_cluster_id_fkey", "cluster_id", "clusters", schema.NoAction)},
		},
		{
			Name: "plugin_links",
			Columns: []schema.Column{
				idColumn(),
				intColumn("plugin_id", false),
				stringColumn("title", 255, false),
				{Name: "url", Type: schema.TextType()},
			},
			PrimaryKey:  []string{"id"},
			ForeignKeys: []schema.ForeignKey{foreignKey("plugin_links_plugin_id_fkey", "plugin_id", "plugins", schema.NoAction)},
		},
		{
			Name: "node_bond_interfaces",
			Columns: []schema.Column{
				idColumn(),
				intColumn("node_id", false),
				stringColumn("name", 32, false),
				{Name: "mode", Type: schema.EnumType("bond_mode")},
			},
			PrimaryKey:  []string{"id"},
			ForeignKeys: []schema.ForeignKey{foreignKey("node_bond_interfaces_node_id_fkey", "node_id", "nodes", schema.NoAction)},
		},
		{
			Name: "node_nic_interfaces",
			Columns: []schema.Column{
				idColumn(),
				intColumn("node_id", false),
				stringColumn("name", 128, false),
				intColumn("parent_id", true),
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []schema.ForeignKey{
				foreignKey("node_nic_interfaces_node_id_fkey", "node_id", "nodes", schema.NoAction),
				foreignKey("node_nic_interfaces_parent_id_fkey", "parent_id", "node_bond_interfaces", schema.NoAction),
			},
		},
		{
			Name: "openstack_configs",
			Columns: []schema.Column{
				idColumn(),
				intColumn("cluster_id", false),
				intColumn("node_id", true),
				stringColumn("config_type", 50, false),
				jsonColumn("configuration", false, "{}"),
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []schema.ForeignKey{
				foreignKey("openstack_configs_cluster_id_fkey", "cluster_id", "clusters", schema.NoAction),
				foreignKey("openstack_configs_node_id_fkey", "node_id", "nodes", schema.NoAction),
			},
		},
		{
			Name: "tasks",
			Columns: []schema.Column{
				idColumn(),
				stringColumn("uuid", 36, false),
				stringColumn("name", 64, false),
				stringColumn("status", 32, false),
				intColumn("cluster_id", true),
				intColumn("parent_id", true),
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []schema.ForeignKey{
				foreignKey("tasks_cluster_id_fkey", "cluster_id", "clusters", schema.NoAction),
				foreignKey("tasks_parent_id_fkey", "parent_id", "tasks", schema.NoAction),
			},
		},
	}
}

func fuel80Schema() []schema.Op {
	var ops []schema.Op
	for _, spec := range fuel80Enums() {
		ops = append(ops, schema.CreateEnumType{Spec: spec})
	}
	for _, table := range fuel80Tables() {
		ops = append(ops, schema.CreateTable{Table: table})
	}
	return ops
}

// dropFuel80Schema drops tables in reverse creation order, so no table is
// dropped while another still references it.
func dropFuel80Schema() []schema.Op {
	var ops []schema.Op
	tables := fuel80Tables()
	for i := len(tables) - 1; i >= 0; i-- {
		ops = append(ops, schema.DropTable{Name: tables[i].Name})
	}
	for _, spec := range fuel80Enums() {
		ops = append(ops, schema.DropEnumType{Name: spec.TypeName})
	}
	return ops
}
