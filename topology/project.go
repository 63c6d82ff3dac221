package topology

import (
	"fmt"
	"sort"
	"strconv"
)

// Project builds the deployment document of a cluster. Nodes pending
// deletion are skipped. Inputs are never modified and the document shares
// no mutable state with them.
func Project(cluster Cluster, nodes []Node, roles map[string]RoleMeta, opts Options) (*Document, error) {
	provider, err := providerFor(&cluster)
	if err != nil {
		return nil, err
	}
	bindings := filterRoles(provider.roles(), cluster.NetworkRoles)

	active := make([]*Node, 0, len(nodes))
	seen := make(map[string]struct{}, len(nodes))
	for i := range nodes {
		if nodes[i].PendingDeletion {
			continue
		}
		if _, dup := seen[nodes[i].UID]; dup {
			return nil, fmt.Errorf("%w: duplicate node uid %q", ErrInvalidInput, nodes[i].UID)
		}
		seen[nodes[i].UID] = struct{}{}
		active = append(active, &nodes[i])
	}
	sort.Slice(active, func(i, j int) bool { return lessUID(active[i].UID, active[j].UID) })

	doc := &Document{
		Common: networkRanges(cluster.Networks),
		NetworkMetadata: NetworkMetadata{
			Nodes: make(map[string]NodeMetadata, len(active)),
			VIPs:  vipMetadata(cluster.VIPs),
		},
		Nodes: make([]NodeDocument, 0, len(active)),
	}
	doc.Common["master_ip"] = opts.MasterIP

	entries := make([]map[string]interface{}, 0, len(active))
	for _, node := range active {
		view, err := newNodeView(&cluster, node, roles)
		if err != nil {
			return nil, err
		}

		addresses, err := renderAddresses(&cluster, view)
		if err != nil {
			return nil, err
		}
		entries = append(entries, nodeEntry(node, addresses))

		doc.NetworkMetadata.Nodes[slaveName(node.UID)] = nodeMetadata(view, bindings)
		doc.Nodes = append(doc.Nodes, NodeDocument{
			UID:           node.UID,
			NetworkScheme: buildScheme(&cluster, view, provider, bindings, opts),
		})
	}
	doc.Common["nodes"] = entries

	return doc, nil
}

// renderAddresses splits the node's address on every network that asks for
// it into <mask>_address and <mask>_netmask.
func renderAddresses(cluster *Cluster, view *nodeView) (map[string]string, error) {
	addresses := make(map[string]string)
	for _, group := range cluster.Networks {
		if group.Name == networkPublic && !view.hasPublic {
			continue
		}
		mask := group.Meta.RenderAddrMask
		if mask == "" {
			continue
		}

		att, ok := view.networks[group.Name]
		if !ok || att.address == "" {
			return nil, &NetworkNotFoundError{Node: view.node.UID, Network: group.Name}
		}
		addresses[mask+"_address"] = att.address
		addresses[mask+"_netmask"] = att.netmask
	}
	return addresses, nil
}

func networkRanges(groups []NetworkGroup) map[string]interface{} {
	attrs := make(map[string]interface{})
	for _, group := range groups {
		key := group.Name + "_network_range"
		switch {
		case group.Meta.RenderType == "ip_ranges":
			ranges := make([]string, 0, len(group.IPRanges))
			for _, r := range group.IPRanges {
				ranges = append(ranges, r.First+"-"+r.Last)
			}
			attrs[key] = ranges
		case group.Meta.RenderType == "cidr" && group.CIDR != "":
			attrs[key] = group.CIDR
		}
	}
	return attrs
}

func nodeEntry(node *Node, addresses map[string]string) map[string]interface{} {
	entry := map[string]interface{}{
		"uid":            node.UID,
		"fqdn":           node.FQDN,
		"name":           slaveName(node.UID),
		"user_node_name": node.Name,
		"swift_zone":     node.UID,
		"roles":          copyStrings(node.Roles),
	}
	for key, value := range addresses {
		entry[key] = value
	}
	return entry
}

func nodeMetadata(view *nodeView, bindings []roleBinding) NodeMetadata {
	roles := make(map[string]*string, len(bindings))
	for _, b := range bindings {
		switch b.address {
		case addressOmitted:
			continue
		case addressNull:
			roles[b.role] = nil
		default:
			if b.network == networkPublic && !view.hasPublic {
				continue
			}
			if att, ok := view.networks[b.network]; ok && att.address != "" {
				address := att.address
				roles[b.role] = &address
			} else {
				roles[b.role] = nil
			}
		}
	}

	node := view.node
	return NodeMetadata{
		UID:          node.UID,
		FQDN:         node.FQDN,
		Name:         slaveName(node.UID),
		UserNodeName: node.Name,
		SwiftZone:    node.UID,
		NodeRoles:    copyStrings(node.Roles),
		NetworkRoles: roles,
	}
}

func vipMetadata(vips map[string]VIP) map[string]VIPMetadata {
	out := make(map[string]VIPMetadata, len(vips))
	for name, vip := range vips {
		out[name] = VIPMetadata{
			NetworkRole: vip.NetworkRole,
			Namespace:   vip.Namespace,
			IPAddr:      vip.IPAddr,
			NodeRoles:   copyStrings(vip.NodeRoles),
		}
	}
	return out
}

func slaveName(uid string) string {
	return "node-" + uid
}

// lessUID orders numeric uids by value.
func lessUID(a, b string) bool {
	ai, errA := strconv.Atoi(a)
	bi, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return ai < bi
	}
	return a < b
}

func copyStrings(in []string) []string {
	return append([]string{}, in...)
}
