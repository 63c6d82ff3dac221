package topology

const (
	networkAdmin      = "fuelweb_admin"
	networkManagement = "management"
	networkStorage    = "storage"
	networkPublic     = "public"
	networkPrivate    = "private"
	networkFixed      = "fixed"
	// floating is not a network group, it shares the public attachment.
	networkFloating = "floating"
)

const (
	bridgeAdmin      = "br-fw-admin"
	bridgeManagement = "br-mgmt"
	bridgeStorage    = "br-storage"
	bridgePublic     = "br-ex"
	bridgeFloating   = "br-floating"
	bridgePrivate    = "br-prv"
	bridgeAux        = "br-aux"
	bridgeMesh       = "br-mesh"
)

// addressMode decides what a role contributes to network_metadata.
type addressMode uint8

const (
	// the node's address on the role's network
	addressIP addressMode = iota
	// the role is listed with a null address
	addressNull
	// the role is not listed
	addressOmitted
)

type roleBinding struct {
	role    string
	network string
	// bridge is empty for roles served by a bare port.
	bridge  string
	address addressMode
}

func bind(network, bridge string, roles ...string) []roleBinding {
	out := make([]roleBinding, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleBinding{role: role, network: network, bridge: bridge})
	}
	return out
}

func sharedRoles() []roleBinding {
	var out []roleBinding
	out = append(out, bind(networkAdmin, bridgeAdmin,
		"admin/pxe", "fw-admin")...)
	out = append(out, bind(networkManagement, bridgeManagement,
		"keystone/api", "swift/api", "sahara/api", "ceilometer/api",
		"cinder/api", "glance/api", "heat/api", "nova/api", "murano/api",
		"horizon", "management", "mgmt/api", "mgmt/database",
		"mgmt/messaging", "mgmt/corosync", "mgmt/memcache", "mgmt/vip",
		"mongo/db", "ceph/public")...)
	out = append(out, bind(networkStorage, bridgeStorage,
		"storage", "ceph/replication", "swift/replication", "cinder/iscsi")...)
	out = append(out, bind(networkPublic, bridgePublic,
		"ex", "public/vip", "ceph/radosgw")...)
	return out
}

// filterRoles keeps the bindings of declared roles, matched by exact name.
func filterRoles(table []roleBinding, declared []string) []roleBinding {
	if declared == nil {
		return table
	}

	wanted := make(map[string]struct{}, len(declared))
	for _, role := range declared {
		wanted[role] = struct{}{}
	}

	out := make([]roleBinding, 0, len(declared))
	for _, binding := range table {
		if _, ok := wanted[binding.role]; ok {
			out = append(out, binding)
		}
	}
	return out
}
