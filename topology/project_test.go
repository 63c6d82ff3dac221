package topology_test

import (
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-talis/fuelmig/topology"
)

// nolint:gochecknoglobals
var (
	managementRoles = []string{
		"keystone/api", "neutron/api", "swift/api", "sahara/api",
		"ceilometer/api", "cinder/api", "glance/api", "heat/api",
		"nova/api", "murano/api", "horizon", "management",
		"mgmt/api", "mgmt/database", "mgmt/messaging",
		"mgmt/corosync", "mgmt/memcache", "mgmt/vip", "mongo/db",
		"neutron/mesh", "ceph/public",
	}
	adminRoles   = []string{"admin/pxe", "fw-admin"}
	neutronRoles = []string{"neutron/private", "neutron/floating"}
	storageRoles = []string{"storage", "ceph/replication", "swift/replication", "cinder/iscsi"}
	publicRoles  = []string{"ex", "public/vip", "ceph/radosgw"}
)

func networks() []topology.NetworkGroup {
	return []topology.NetworkGroup{
		{Name: "fuelweb_admin", CIDR: "10.20.0.0/24"},
		{
			Name: "management", CIDR: "192.168.0.0/24",
			Meta: topology.NetworkMeta{RenderType: "cidr", RenderAddrMask: "internal"},
		},
		{
			Name: "storage", CIDR: "192.168.1.0/24",
			Meta: topology.NetworkMeta{RenderType: "cidr", RenderAddrMask: "storage"},
		},
		{
			Name: "public", CIDR: "172.16.0.0/24", Gateway: "172.16.0.1",
			IPRanges: []topology.IPRange{{First: "172.16.0.2", Last: "172.16.0.126"}},
			Meta:     topology.NetworkMeta{RenderType: "ip_ranges", RenderAddrMask: "public"},
		},
		{Name: "private"},
	}
}

func neutronCluster() topology.Cluster {
	return topology.Cluster{
		ID:           1,
		Name:         "env-1",
		Provider:     topology.Neutron,
		Segmentation: topology.VLAN,
		VLANRange:    []int{1000, 1030},
		Networks:     networks(),
		VIPs: map[string]topology.VIP{
			"management": {NetworkRole: "mgmt/vip", IPAddr: "192.168.0.10", NodeRoles: []string{"controller"}},
			"public":     {NetworkRole: "public/vip", Namespace: "haproxy", IPAddr: "172.16.0.10", NodeRoles: []string{"controller"}},
		},
	}
}

func nics() []topology.NIC {
	return []topology.NIC{
		{Name: "eth0", Offload: map[string]bool{"rx-checksumming": true}},
		{Name: "eth1", MTU: 1500, Offload: map[string]bool{}},
		{Name: "eth2", Offload: map[string]bool{"generic-receive-offload": false}},
	}
}

func controller() topology.Node {
	return topology.Node{
		UID:   "1",
		Name:  "Untitled (1a:2b)",
		FQDN:  "node-1.test.domain.local",
		Roles: []string{"controller"},
		NICs:  nics(),
		Networks: []topology.NodeNetwork{
			{Name: "fuelweb_admin", IP: "10.20.0.3/24", Interface: "eth0"},
			{Name: "management", IP: "192.168.0.2/24", Interface: "eth0", VLAN: 101},
			{Name: "storage", IP: "192.168.1.2/24", Interface: "eth0", VLAN: 102},
			{Name: "public", IP: "172.16.0.3/24", Interface: "eth1"},
			{Name: "private", Interface: "eth2"},
		},
	}
}

func compute() topology.Node {
	return topology.Node{
		UID:   "2",
		Name:  "Untitled (3c:4d)",
		FQDN:  "node-2.test.domain.local",
		Roles: []string{"compute"},
		NICs:  nics(),
		Networks: []topology.NodeNetwork{
			{Name: "fuelweb_admin", IP: "10.20.0.4/24", Interface: "eth0"},
			{Name: "management", IP: "192.168.0.3/24", Interface: "eth0", VLAN: 101},
			{Name: "storage", IP: "192.168.1.3/24", Interface: "eth0", VLAN: 102},
			{Name: "private", Interface: "eth2"},
		},
	}
}

func roleMeta() map[string]topology.RoleMeta {
	return map[string]topology.RoleMeta{
		"controller": {PublicIPRequired: true},
		"compute":    {PublicForDVRRequired: true},
	}
}

func options() topology.Options {
	return topology.Options{MasterIP: "10.20.0.2"}
}

func bindRoles(into map[string]string, roles []string, endpoint string) {
	for _, role := range roles {
		into[role] = endpoint
	}
}

func nodeByUID(t *testing.T, doc *topology.Document, uid string) topology.NodeDocument {
	t.Helper()
	for _, node := range doc.Nodes {
		if node.UID == uid {
			return node
		}
	}
	require.Failf(t, "node not found", "uid %s", uid)
	return topology.NodeDocument{}
}

func strPtr(s string) *string {
	return &s
}

// ---

func TestNetworkSchemeRoles(t *testing.T) {
	t.Parallel()

	doc, err := topology.Project(neutronCluster(), []topology.Node{controller(), compute()}, roleMeta(), options())
	require.NoError(t, err)

	expected := map[string]string{"neutron/private": "br-prv"}
	bindRoles(expected, managementRoles, "br-mgmt")
	bindRoles(expected, adminRoles, "br-fw-admin")
	bindRoles(expected, storageRoles, "br-storage")
	assert.Equal(t, expected, nodeByUID(t, doc, "2").NetworkScheme.Roles)

	bindRoles(expected, publicRoles, "br-ex")
	expected["neutron/floating"] = "br-floating"
	assert.Equal(t, expected, nodeByUID(t, doc, "1").NetworkScheme.Roles)
}

func TestNetworkSchemeLayout(t *testing.T) {
	t.Parallel()

	doc, err := topology.Project(neutronCluster(), []topology.Node{controller()}, roleMeta(), options())
	require.NoError(t, err)

	scheme := nodeByUID(t, doc, "1").NetworkScheme
	assert.Equal(t, "1.1", scheme.Version)
	assert.Equal(t, "lnx", scheme.Provider)

	assert.Equal(t, []topology.Transformation{
		{Action: "add-br", Name: "br-fw-admin"},
		{Action: "add-br", Name: "br-mgmt"},
		{Action: "add-br", Name: "br-storage"},
		{Action: "add-br", Name: "br-ex"},
		{Action: "add-br", Name: "br-floating", Provider: "ovs"},
		{Action: "add-br", Name: "br-prv", Provider: "ovs"},
		{Action: "add-br", Name: "br-aux"},
		{Action: "add-port", Name: "eth0", Bridge: "br-fw-admin"},
		{Action: "add-port", Name: "eth0.101", Bridge: "br-mgmt"},
		{Action: "add-port", Name: "eth0.102", Bridge: "br-storage"},
		{Action: "add-port", Name: "eth1", Bridge: "br-ex"},
		{Action: "add-port", Name: "eth2", Bridge: "br-aux"},
		{Action: "add-patch", Bridges: []string{"br-floating", "br-ex"}, Provider: "ovs", MTU: 65000},
		{Action: "add-patch", Bridges: []string{"br-prv", "br-aux"}, Provider: "ovs", MTU: 65000},
	}, scheme.Transformations)

	assert.Equal(t, topology.Endpoint{
		IP:             []string{"192.168.0.2/24"},
		VendorSpecific: map[string]interface{}{"phy_interfaces": []string{"eth0"}, "vlans": 101},
	}, scheme.Endpoints["br-mgmt"])
	assert.Equal(t, topology.Endpoint{
		IP:             []string{"172.16.0.3/24"},
		Gateway:        "172.16.0.1",
		VendorSpecific: map[string]interface{}{"phy_interfaces": []string{"eth1"}},
	}, scheme.Endpoints["br-ex"])
	assert.Equal(t, topology.Endpoint{
		IP:             "none",
		VendorSpecific: map[string]interface{}{"phy_interfaces": []string{"eth2"}, "vlans": "1000:1030"},
	}, scheme.Endpoints["br-prv"])
	assert.Equal(t, topology.Endpoint{IP: "none"}, scheme.Endpoints["br-floating"])
	assert.Empty(t, scheme.Endpoints["br-fw-admin"].Gateway)

	for _, nic := range []string{"eth0", "eth1", "eth2"} {
		require.Contains(t, scheme.Interfaces, nic)
		assert.NotNil(t, scheme.Interfaces[nic].Ethtool.Offload)
	}
	assert.Equal(t, map[string]bool{"rx-checksumming": true}, scheme.Interfaces["eth0"].Ethtool.Offload)
}

func TestNodeWithoutPublicGetsAdminGateway(t *testing.T) {
	t.Parallel()

	doc, err := topology.Project(neutronCluster(), []topology.Node{compute()}, roleMeta(), options())
	require.NoError(t, err)

	scheme := nodeByUID(t, doc, "2").NetworkScheme
	assert.Equal(t, "10.20.0.2", scheme.Endpoints["br-fw-admin"].Gateway)
	assert.NotContains(t, scheme.Endpoints, "br-ex")
	assert.NotContains(t, scheme.Endpoints, "br-floating")
}

func TestBondedNetworks(t *testing.T) {
	t.Parallel()

	node := compute()
	node.Bonds = []topology.Bond{{
		Name:       "bond0",
		Slaves:     []string{"eth2", "eth1"},
		Mode:       "802.3ad",
		MTU:        9000,
		Properties: map[string]string{"lacp_rate": "fast"},
	}}
	node.Networks[3] = topology.NodeNetwork{Name: "private", Interface: "bond0"}

	doc, err := topology.Project(neutronCluster(), []topology.Node{node}, roleMeta(), options())
	require.NoError(t, err)

	scheme := nodeByUID(t, doc, "2").NetworkScheme
	assert.Contains(t, scheme.Transformations, topology.Transformation{
		Action:         "add-bond",
		Name:           "bond0",
		Bridge:         "br-aux",
		Interfaces:     []string{"eth1", "eth2"},
		MTU:            9000,
		BondProperties: map[string]interface{}{"mode": "802.3ad", "lacp_rate": "fast"},
	})
	assert.NotContains(t, scheme.Transformations, topology.Transformation{Action: "add-port", Name: "bond0", Bridge: "br-aux"})
	assert.Equal(t, []string{"eth1", "eth2"}, scheme.Endpoints["br-prv"].VendorSpecific["phy_interfaces"])
}

func TestNetworkMetadata(t *testing.T) {
	t.Parallel()

	doc, err := topology.Project(neutronCluster(), []topology.Node{compute(), controller()}, roleMeta(), options())
	require.NoError(t, err)

	require.Len(t, doc.NetworkMetadata.Nodes, 2)
	meta := doc.NetworkMetadata.Nodes["node-1"]
	assert.Equal(t, "1", meta.UID)
	assert.Equal(t, "node-1", meta.Name)
	assert.Equal(t, "node-1.test.domain.local", meta.FQDN)
	assert.Equal(t, "Untitled (1a:2b)", meta.UserNodeName)
	assert.Equal(t, "1", meta.SwiftZone)
	assert.Equal(t, []string{"controller"}, meta.NodeRoles)

	expected := map[string]*string{}
	for _, role := range managementRoles {
		expected[role] = strPtr("192.168.0.2")
	}
	for _, role := range adminRoles {
		expected[role] = strPtr("10.20.0.3")
	}
	for _, role := range storageRoles {
		expected[role] = strPtr("192.168.1.2")
	}
	for _, role := range neutronRoles {
		expected[role] = nil
	}
	for _, role := range publicRoles {
		expected[role] = strPtr("172.16.0.3")
	}
	assert.Equal(t, expected, meta.NetworkRoles)

	compute := doc.NetworkMetadata.Nodes["node-2"].NetworkRoles
	assert.NotContains(t, compute, "public/vip")
	assert.Contains(t, compute, "neutron/floating")
	assert.Nil(t, compute["neutron/floating"])

	assert.Equal(t, topology.VIPMetadata{
		NetworkRole: "public/vip",
		Namespace:   "haproxy",
		IPAddr:      "172.16.0.10",
		NodeRoles:   []string{"controller"},
	}, doc.NetworkMetadata.VIPs["public"])
}

func TestCommonAttributes(t *testing.T) {
	t.Parallel()

	doc, err := topology.Project(neutronCluster(), []topology.Node{compute(), controller()}, roleMeta(), options())
	require.NoError(t, err)

	assert.Equal(t, "10.20.0.2", doc.Common["master_ip"])
	assert.Equal(t, "192.168.0.0/24", doc.Common["management_network_range"])
	assert.Equal(t, "192.168.1.0/24", doc.Common["storage_network_range"])
	assert.Equal(t, []string{"172.16.0.2-172.16.0.126"}, doc.Common["public_network_range"])
	assert.NotContains(t, doc.Common, "fuelweb_admin_network_range")
	assert.NotContains(t, doc.Common, "private_network_range")

	nodes, ok := doc.Common["nodes"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, nodes, 2)

	assert.Equal(t, map[string]interface{}{
		"uid":              "1",
		"fqdn":             "node-1.test.domain.local",
		"name":             "node-1",
		"user_node_name":   "Untitled (1a:2b)",
		"swift_zone":       "1",
		"roles":            []string{"controller"},
		"internal_address": "192.168.0.2",
		"internal_netmask": "255.255.255.0",
		"storage_address":  "192.168.1.2",
		"storage_netmask":  "255.255.255.0",
		"public_address":   "172.16.0.3",
		"public_netmask":   "255.255.255.0",
	}, nodes[0])

	assert.Equal(t, "2", nodes[1]["uid"])
	assert.Equal(t, "192.168.0.3", nodes[1]["internal_address"])
	assert.NotContains(t, nodes[1], "public_address")
}

// nolint:gochecknoglobals
var missingAddressTestsTable = []struct {
	name            string
	node            func() topology.Node
	expectedNode    string
	expectedNetwork string
}{
	/* e0 */ {
		name: "test e0: should fail when a rendered network has no address",
		node: func() topology.Node {
			node := compute()
			node.Networks[2].IP = ""
			return node
		},
		expectedNode:    "2",
		expectedNetwork: "storage",
	},
	/* e1 */ {
		name: "test e1: should fail when the node is not attached to a rendered network",
		node: func() topology.Node {
			node := compute()
			node.Networks = node.Networks[:1]
			return node
		},
		expectedNode:    "2",
		expectedNetwork: "management",
	},
	/* e2 */ {
		name: "test e2: should fail when a node that needs public has no public address",
		node: func() topology.Node {
			node := controller()
			node.Networks = node.Networks[:3]
			return node
		},
		expectedNode:    "1",
		expectedNetwork: "public",
	},
}

func TestMissingAddressFails(t *testing.T) {
	t.Parallel()

	for _, test := range missingAddressTestsTable {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			doc, err := topology.Project(neutronCluster(), []topology.Node{test.node()}, roleMeta(), options())
			assert.Nil(t, doc)
			assert.True(t, errors.Is(err, topology.ErrCanNotFindNetworkForNode))

			var notFound *topology.NetworkNotFoundError
			require.ErrorAs(t, err, &notFound)
			assert.Equal(t, test.expectedNode, notFound.Node)
			assert.Equal(t, test.expectedNetwork, notFound.Network)
		})
	}
}

// nolint:gochecknoglobals
var invalidInputTestsTable = []struct {
	name    string
	cluster func() topology.Cluster
	nodes   func() []topology.Node
}{
	/* e0 */ {
		name: "test e0: should reject an unknown provider",
		cluster: func() topology.Cluster {
			cluster := neutronCluster()
			cluster.Provider = "flat"
			return cluster
		},
		nodes: func() []topology.Node { return []topology.Node{compute()} },
	},
	/* e1 */ {
		name: "test e1: should reject an unknown segmentation",
		cluster: func() topology.Cluster {
			cluster := neutronCluster()
			cluster.Segmentation = "gre-ish"
			return cluster
		},
		nodes: func() []topology.Node { return []topology.Node{compute()} },
	},
	/* e2 */ {
		name:    "test e2: should reject a malformed address",
		cluster: neutronCluster,
		nodes: func() []topology.Node {
			node := compute()
			node.Networks[1].IP = "192.168.0.300/24"
			return []topology.Node{node}
		},
	},
	/* e3 */ {
		name:    "test e3: should reject duplicate node uids",
		cluster: neutronCluster,
		nodes:   func() []topology.Node { return []topology.Node{compute(), compute()} },
	},
}

func TestInvalidInput(t *testing.T) {
	t.Parallel()

	for _, test := range invalidInputTestsTable {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, err := topology.Project(test.cluster(), test.nodes(), roleMeta(), options())
			assert.ErrorIs(t, err, topology.ErrInvalidInput)
		})
	}
}

func TestUnknownRolesAreOmitted(t *testing.T) {
	t.Parallel()

	cluster := neutronCluster()
	cluster.NetworkRoles = []string{"mgmt/api", "custom/role", "Mgmt/Vip"}

	doc, err := topology.Project(cluster, []topology.Node{controller()}, roleMeta(), options())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"mgmt/api": "br-mgmt"}, nodeByUID(t, doc, "1").NetworkScheme.Roles)
	assert.Equal(t, map[string]*string{"mgmt/api": strPtr("192.168.0.2")}, doc.NetworkMetadata.Nodes["node-1"].NetworkRoles)
}

func TestPendingDeletionNodesAreSkipped(t *testing.T) {
	t.Parallel()

	leaving := compute()
	leaving.PendingDeletion = true
	leaving.Networks = nil

	doc, err := topology.Project(neutronCluster(), []topology.Node{controller(), leaving}, roleMeta(), options())
	require.NoError(t, err)

	require.Len(t, doc.Nodes, 1)
	assert.NotContains(t, doc.NetworkMetadata.Nodes, "node-2")
}

func TestPublicAssignment(t *testing.T) {
	t.Parallel()

	node := compute()
	node.Networks = append(node.Networks, topology.NodeNetwork{Name: "public", IP: "172.16.0.4/24", Interface: "eth1"})

	dvr := neutronCluster()
	dvr.DVR = true
	doc, err := topology.Project(dvr, []topology.Node{node}, roleMeta(), options())
	require.NoError(t, err)
	assert.Equal(t, "br-ex", nodeByUID(t, doc, "2").NetworkScheme.Roles["public/vip"])

	all := neutronCluster()
	all.AssignPublicToAllNodes = true
	doc, err = topology.Project(all, []topology.Node{node}, map[string]topology.RoleMeta{}, options())
	require.NoError(t, err)
	assert.Equal(t, "br-ex", nodeByUID(t, doc, "2").NetworkScheme.Roles["public/vip"])
}

func TestTunSegmentation(t *testing.T) {
	t.Parallel()

	cluster := neutronCluster()
	cluster.Segmentation = topology.Tun
	node := compute()
	node.Networks[3] = topology.NodeNetwork{Name: "private", IP: "192.168.2.3/24", Interface: "eth2", VLAN: 103}

	doc, err := topology.Project(cluster, []topology.Node{node}, roleMeta(), options())
	require.NoError(t, err)

	scheme := nodeByUID(t, doc, "2").NetworkScheme
	assert.Equal(t, "br-mesh", scheme.Roles["neutron/mesh"])
	assert.Equal(t, "br-prv", scheme.Roles["neutron/private"])
	assert.Equal(t, []string{"192.168.2.3/24"}, scheme.Endpoints["br-mesh"].IP)
	assert.Contains(t, scheme.Transformations, topology.Transformation{Action: "add-port", Name: "eth2.103", Bridge: "br-mesh"})
	assert.NotContains(t, scheme.Endpoints, "br-aux")

	assert.Equal(t, strPtr("192.168.2.3"), doc.NetworkMetadata.Nodes["node-2"].NetworkRoles["neutron/mesh"])
}

// ---

func novaCluster() topology.Cluster {
	return topology.Cluster{
		ID:       2,
		Name:     "env-2",
		Provider: topology.NovaNetwork,
		Networks: append(networks()[:4], topology.NetworkGroup{Name: "fixed", CIDR: "10.0.0.0/16"}),
	}
}

func novaController() topology.Node {
	node := controller()
	node.Networks = append(node.Networks[:4], topology.NodeNetwork{Name: "fixed", Interface: "eth0", VLAN: 103})
	return node
}

func TestNovaNetworkScheme(t *testing.T) {
	t.Parallel()

	doc, err := topology.Project(novaCluster(), []topology.Node{novaController()}, roleMeta(), options())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"admin/pxe": "br-fw-admin",

		"keystone/api":   "br-mgmt",
		"swift/api":      "br-mgmt",
		"sahara/api":     "br-mgmt",
		"ceilometer/api": "br-mgmt",
		"cinder/api":     "br-mgmt",
		"glance/api":     "br-mgmt",
		"heat/api":       "br-mgmt",
		"nova/api":       "br-mgmt",
		"murano/api":     "br-mgmt",
		"horizon":        "br-mgmt",

		"mgmt/api":       "br-mgmt",
		"mgmt/database":  "br-mgmt",
		"mgmt/messaging": "br-mgmt",
		"mgmt/corosync":  "br-mgmt",
		"mgmt/memcache":  "br-mgmt",
		"mgmt/vip":       "br-mgmt",

		"public/vip": "br-ex",

		"swift/replication": "br-storage",

		"ceph/public":      "br-mgmt",
		"ceph/radosgw":     "br-ex",
		"ceph/replication": "br-storage",

		"cinder/iscsi": "br-storage",

		"mongo/db": "br-mgmt",

		"novanetwork/fixed": "eth0.103",

		"fw-admin":   "br-fw-admin",
		"management": "br-mgmt",
		"ex":         "br-ex",
		"storage":    "br-storage",
	}, nodeByUID(t, doc, "1").NetworkScheme.Roles)

	roles := doc.NetworkMetadata.Nodes["node-1"].NetworkRoles
	assert.NotContains(t, roles, "novanetwork/fixed")
	assert.NotContains(t, roles, "neutron/private")
	assert.Equal(t, strPtr("172.16.0.3"), roles["ceph/radosgw"])
	assert.Len(t, roles, 28)
}

// ---

func TestProjectionIsDeterministic(t *testing.T) {
	t.Parallel()

	first, err := topology.Project(neutronCluster(), []topology.Node{controller(), compute()}, roleMeta(), options())
	require.NoError(t, err)
	second, err := topology.Project(neutronCluster(), []topology.Node{compute(), controller()}, roleMeta(), options())
	require.NoError(t, err)

	firstYAML, err := first.YAML()
	require.NoError(t, err)
	secondYAML, err := second.YAML()
	require.NoError(t, err)
	assert.Equal(t, string(firstYAML), string(secondYAML))

	firstJSON, err := first.JSON()
	require.NoError(t, err)
	secondJSON, err := second.JSON()
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))
}

func TestProjectDoesNotModifyInputs(t *testing.T) {
	t.Parallel()

	cluster := neutronCluster()
	nodes := []topology.Node{compute(), controller()}
	roles := roleMeta()

	doc, err := topology.Project(cluster, nodes, roles, options())
	require.NoError(t, err)

	assert.Equal(t, neutronCluster(), cluster)
	assert.Equal(t, []topology.Node{compute(), controller()}, nodes)
	assert.Equal(t, roleMeta(), roles)

	// the document owns its maps
	doc.Nodes[0].NetworkScheme.Interfaces["eth0"].Ethtool.Offload["rx-checksumming"] = false
	assert.True(t, nodes[1].NICs[0].Offload["rx-checksumming"])
}

func TestProjectConcurrently(t *testing.T) {
	t.Parallel()

	cluster := neutronCluster()
	nodes := []topology.Node{controller(), compute()}
	roles := roleMeta()

	reference, err := topology.Project(cluster, nodes, roles, options())
	require.NoError(t, err)
	expected, err := reference.YAML()
	require.NoError(t, err)

	const workers = 8
	results := make([][]byte, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc, err := topology.Project(cluster, nodes, roles, options())
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = doc.YAML()
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, string(expected), string(results[i]))
	}
}

func TestLoadInput(t *testing.T) {
	t.Parallel()

	f, err := os.Open("testdata/cluster.yaml")
	require.NoError(t, err)
	defer f.Close()

	in, err := topology.LoadInput(f)
	require.NoError(t, err)

	assert.Equal(t, topology.Neutron, in.Cluster.Provider)
	require.Len(t, in.Nodes, 2)
	assert.Equal(t, []topology.IPRange{{First: "172.16.0.2", Last: "172.16.0.126"}}, in.Cluster.Networks[3].IPRanges)

	doc, err := topology.Project(in.Cluster, in.Nodes, in.Roles, options())
	require.NoError(t, err)
	assert.Equal(t, "br-ex", nodeByUID(t, doc, "1").NetworkScheme.Roles["public/vip"])
	assert.NotContains(t, nodeByUID(t, doc, "2").NetworkScheme.Roles, "public/vip")
}

func TestLoadInputRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	f, err := os.Open("testdata/unknown_key.yaml")
	require.NoError(t, err)
	defer f.Close()

	_, err = topology.LoadInput(f)
	assert.ErrorIs(t, err, topology.ErrInvalidInput)
}
