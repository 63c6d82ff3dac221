package topology

import (
	"fmt"
	"net"
	"sort"
)

const (
	schemeVersion   = "1.1"
	defaultProvider = "lnx"
	ovsProvider     = "ovs"
	patchMTU        = 65000
)

// networkProvider adds what is specific to a cluster's network provider on
// top of the linux bridges every node gets.
type networkProvider interface {
	roles() []roleBinding
	layout(cluster *Cluster, view *nodeView, l *layout)
}

func providerFor(cluster *Cluster) (networkProvider, error) {
	switch cluster.Provider {
	case Neutron:
		switch cluster.Segmentation {
		case VLAN, "":
			return neutronProvider{segmentation: VLAN}, nil
		case Tun:
			return neutronProvider{segmentation: Tun}, nil
		default:
			return nil, fmt.Errorf("%w: unknown segmentation type %q", ErrInvalidInput, cluster.Segmentation)
		}
	case NovaNetwork:
		return novaProvider{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown network provider %q", ErrInvalidInput, cluster.Provider)
	}
}

// ---

type attachment struct {
	NodeNetwork
	address string
	netmask string
}

type nodeView struct {
	node      *Node
	networks  map[string]attachment
	bonds     map[string]*Bond
	hasPublic bool
}

func newNodeView(cluster *Cluster, node *Node, roles map[string]RoleMeta) (*nodeView, error) {
	view := &nodeView{
		node:      node,
		networks:  make(map[string]attachment, len(node.Networks)),
		bonds:     make(map[string]*Bond, len(node.Bonds)),
		hasPublic: shouldHavePublic(cluster, node, roles),
	}

	for _, nw := range node.Networks {
		att := attachment{NodeNetwork: nw}
		if nw.IP != "" {
			ip, ipnet, err := net.ParseCIDR(nw.IP)
			if err != nil {
				return nil, fmt.Errorf("%w: node %s network %s: %v", ErrInvalidInput, node.UID, nw.Name, err)
			}
			att.address = ip.String()
			att.netmask = net.IP(ipnet.Mask).String()
		}
		view.networks[nw.Name] = att
	}
	for i := range node.Bonds {
		view.bonds[node.Bonds[i].Name] = &node.Bonds[i]
	}

	return view, nil
}

func shouldHavePublic(cluster *Cluster, node *Node, roles map[string]RoleMeta) bool {
	if cluster.AssignPublicToAllNodes {
		return true
	}
	for _, role := range node.Roles {
		meta := roles[role]
		if meta.PublicIPRequired || (cluster.DVR && meta.PublicForDVRRequired) {
			return true
		}
	}
	return false
}

func (v *nodeView) portName(att attachment) string {
	if att.VLAN > 0 {
		return fmt.Sprintf("%s.%d", att.Interface, att.VLAN)
	}
	return att.Interface
}

// physical lists the NICs behind an interface name.
func (v *nodeView) physical(iface string) []string {
	if bond, ok := v.bonds[iface]; ok {
		slaves := append([]string(nil), bond.Slaves...)
		sort.Strings(slaves)
		return slaves
	}
	return []string{iface}
}

// ---

type layout struct {
	bridges   []Transformation
	ports     []Transformation
	patches   []Transformation
	endpoints map[string]Endpoint
	// bond name -> bridge its untagged network joins directly
	bondBridges map[string]string
}

func (l *layout) addBridge(name, provider string) {
	l.bridges = append(l.bridges, Transformation{Action: "add-br", Name: name, Provider: provider})
}

func (l *layout) addPatch(bridges ...string) {
	l.patches = append(l.patches, Transformation{
		Action:   "add-patch",
		Bridges:  bridges,
		Provider: ovsProvider,
		MTU:      patchMTU,
	})
}

func (l *layout) attach(view *nodeView, att attachment, bridge string) {
	if _, isBond := view.bonds[att.Interface]; isBond && att.VLAN == 0 {
		if _, taken := l.bondBridges[att.Interface]; !taken {
			l.bondBridges[att.Interface] = bridge
			return
		}
	}
	l.ports = append(l.ports, Transformation{Action: "add-port", Name: view.portName(att), Bridge: bridge})
}

func endpointFor(view *nodeView, att attachment) Endpoint {
	ep := Endpoint{
		IP:             "none",
		VendorSpecific: map[string]interface{}{"phy_interfaces": view.physical(att.Interface)},
	}
	if att.IP != "" {
		ep.IP = []string{att.IP}
	}
	if att.VLAN > 0 {
		ep.VendorSpecific["vlans"] = att.VLAN
	}
	return ep
}

var linuxBridges = []struct{ network, bridge string }{ // nolint:gochecknoglobals
	{networkAdmin, bridgeAdmin},
	{networkManagement, bridgeManagement},
	{networkStorage, bridgeStorage},
	{networkPublic, bridgePublic},
}

func buildScheme(cluster *Cluster, view *nodeView, provider networkProvider, bindings []roleBinding, opts Options) NetworkScheme {
	l := &layout{
		endpoints:   make(map[string]Endpoint),
		bondBridges: make(map[string]string),
	}

	for _, lb := range linuxBridges {
		if lb.network == networkPublic && !view.hasPublic {
			continue
		}
		att, ok := view.networks[lb.network]
		if !ok {
			continue
		}
		l.addBridge(lb.bridge, "")
		l.attach(view, att, lb.bridge)
		l.endpoints[lb.bridge] = endpointFor(view, att)
	}

	provider.layout(cluster, view, l)
	setGateway(cluster, view, l, opts)

	transformations := make([]Transformation, 0, len(l.bridges)+len(view.node.Bonds)+len(l.ports)+len(l.patches))
	transformations = append(transformations, l.bridges...)
	transformations = append(transformations, bondTransformations(view, l.bondBridges)...)
	transformations = append(transformations, l.ports...)
	transformations = append(transformations, l.patches...)

	return NetworkScheme{
		Version:         schemeVersion,
		Provider:        defaultProvider,
		Interfaces:      interfaces(view.node),
		Endpoints:       l.endpoints,
		Transformations: transformations,
		Roles:           schemeRoles(view, l, bindings),
	}
}

func setGateway(cluster *Cluster, view *nodeView, l *layout, opts Options) {
	if ep, ok := l.endpoints[bridgePublic]; ok && view.hasPublic {
		for _, group := range cluster.Networks {
			if group.Name == networkPublic && group.Gateway != "" {
				ep.Gateway = group.Gateway
				l.endpoints[bridgePublic] = ep
				return
			}
		}
	}
	if ep, ok := l.endpoints[bridgeAdmin]; ok && opts.MasterIP != "" {
		ep.Gateway = opts.MasterIP
		l.endpoints[bridgeAdmin] = ep
	}
}

func bondTransformations(view *nodeView, bridges map[string]string) []Transformation {
	bonds := make([]*Bond, 0, len(view.bonds))
	for _, bond := range view.bonds {
		bonds = append(bonds, bond)
	}
	sort.Slice(bonds, func(i, j int) bool { return bonds[i].Name < bonds[j].Name })

	out := make([]Transformation, 0, len(bonds))
	for _, bond := range bonds {
		props := map[string]interface{}{"mode": bond.Mode}
		for k, v := range bond.Properties {
			props[k] = v
		}
		out = append(out, Transformation{
			Action:         "add-bond",
			Name:           bond.Name,
			Bridge:         bridges[bond.Name],
			Interfaces:     view.physical(bond.Name),
			MTU:            bond.MTU,
			BondProperties: props,
		})
	}
	return out
}

func interfaces(node *Node) map[string]InterfaceConfig {
	out := make(map[string]InterfaceConfig, len(node.NICs))
	for _, nic := range node.NICs {
		offload := make(map[string]bool, len(nic.Offload))
		for mode, enabled := range nic.Offload {
			offload[mode] = enabled
		}
		out[nic.Name] = InterfaceConfig{MTU: nic.MTU, Ethtool: Ethtool{Offload: offload}}
	}
	return out
}

// schemeRoles maps each role to the endpoint serving it on this node.
// Roles whose endpoint the node does not have are left out.
func schemeRoles(view *nodeView, l *layout, bindings []roleBinding) map[string]string {
	roles := make(map[string]string, len(bindings))
	for _, b := range bindings {
		endpoint := b.bridge
		if endpoint == "" {
			att, ok := view.networks[b.network]
			if !ok {
				continue
			}
			endpoint = view.portName(att)
		}
		if _, ok := l.endpoints[endpoint]; ok {
			roles[b.role] = endpoint
		}
	}
	return roles
}

// ---

type neutronProvider struct {
	segmentation Segmentation
}

func (p neutronProvider) roles() []roleBinding {
	out := sharedRoles()
	out = append(out, bind(networkManagement, bridgeManagement, "neutron/api")...)
	if p.segmentation == Tun {
		out = append(out, roleBinding{role: "neutron/mesh", network: networkPrivate, bridge: bridgeMesh})
	} else {
		out = append(out, roleBinding{role: "neutron/mesh", network: networkManagement, bridge: bridgeManagement})
	}
	return append(out,
		roleBinding{role: "neutron/private", network: networkPrivate, bridge: bridgePrivate, address: addressNull},
		roleBinding{role: "neutron/floating", network: networkFloating, bridge: bridgeFloating, address: addressNull},
	)
}

func (p neutronProvider) layout(cluster *Cluster, view *nodeView, l *layout) {
	if _, ok := l.endpoints[bridgePublic]; ok {
		l.addBridge(bridgeFloating, ovsProvider)
		l.endpoints[bridgeFloating] = Endpoint{IP: "none"}
		l.addPatch(bridgeFloating, bridgePublic)
	}

	private, ok := view.networks[networkPrivate]
	if !ok {
		return
	}

	if p.segmentation == Tun {
		l.addBridge(bridgeMesh, "")
		l.attach(view, private, bridgeMesh)
		l.endpoints[bridgeMesh] = endpointFor(view, private)
		l.addBridge(bridgePrivate, ovsProvider)
		l.endpoints[bridgePrivate] = Endpoint{IP: "none"}
		return
	}

	l.addBridge(bridgePrivate, ovsProvider)
	l.addBridge(bridgeAux, "")
	l.attach(view, private, bridgeAux)

	ep := endpointFor(view, private)
	ep.IP = "none"
	if r := cluster.VLANRange; len(r) == 2 {
		ep.VendorSpecific["vlans"] = fmt.Sprintf("%d:%d", r[0], r[1])
	}
	l.endpoints[bridgePrivate] = ep
	l.addPatch(bridgePrivate, bridgeAux)
}

type novaProvider struct{}

func (novaProvider) roles() []roleBinding {
	return append(sharedRoles(),
		roleBinding{role: "novanetwork/fixed", network: networkFixed, address: addressOmitted})
}

func (novaProvider) layout(_ *Cluster, view *nodeView, l *layout) {
	fixed, ok := view.networks[networkFixed]
	if !ok {
		return
	}
	name := view.portName(fixed)
	l.ports = append(l.ports, Transformation{Action: "add-port", Name: name})
	l.endpoints[name] = Endpoint{IP: "none"}
}
