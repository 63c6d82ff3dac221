// Package topology projects cluster and node network state into the
// deployment document consumed by the orchestration agent. Projection is a
// pure function of its arguments and is safe for concurrent use.
package topology

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type Provider string

const (
	Neutron     Provider = "neutron"
	NovaNetwork Provider = "nova_network"
)

type Segmentation string

const (
	VLAN Segmentation = "vlan"
	Tun  Segmentation = "tun"
)

// Input is the on-disk form of a projection request.
type Input struct {
	Cluster Cluster             `yaml:"cluster"`
	Nodes   []Node              `yaml:"nodes"`
	Roles   map[string]RoleMeta `yaml:"roles"`
}

type Cluster struct {
	ID           int          `yaml:"id"`
	Name         string       `yaml:"name"`
	Provider     Provider     `yaml:"net_provider"`
	Segmentation Segmentation `yaml:"net_segment_type"`
	// VLANRange is the tenant vlan range of vlan segmentation, [first, last].
	VLANRange []int          `yaml:"vlan_range"`
	Networks  []NetworkGroup `yaml:"networks"`
	// NetworkRoles are the roles declared by the release and its plugins.
	// Nil means every role the provider knows.
	NetworkRoles []string       `yaml:"network_roles"`
	VIPs         map[string]VIP `yaml:"vips"`

	AssignPublicToAllNodes bool `yaml:"assign_public_to_all_nodes"`
	DVR                    bool `yaml:"neutron_dvr"`
}

type NetworkGroup struct {
	Name     string      `yaml:"name"`
	CIDR     string      `yaml:"cidr"`
	Gateway  string      `yaml:"gateway"`
	IPRanges []IPRange   `yaml:"ip_ranges"`
	Meta     NetworkMeta `yaml:"meta"`
}

type IPRange struct {
	First string `yaml:"first"`
	Last  string `yaml:"last"`
}

type NetworkMeta struct {
	// RenderType publishes the network range as "ip_ranges" or "cidr".
	RenderType string `yaml:"render_type"`
	// RenderAddrMask names the <mask>_address and <mask>_netmask node keys.
	RenderAddrMask string `yaml:"render_addr_mask"`
}

type VIP struct {
	NetworkRole string   `yaml:"network_role"`
	Namespace   string   `yaml:"namespace"`
	IPAddr      string   `yaml:"ipaddr"`
	NodeRoles   []string `yaml:"node_roles"`
}

type Node struct {
	UID             string        `yaml:"uid"`
	Name            string        `yaml:"name"`
	FQDN            string        `yaml:"fqdn"`
	Roles           []string      `yaml:"roles"`
	PendingDeletion bool          `yaml:"pending_deletion"`
	NICs            []NIC         `yaml:"nics"`
	Bonds           []Bond        `yaml:"bonds"`
	Networks        []NodeNetwork `yaml:"networks"`
}

type NIC struct {
	Name    string          `yaml:"name"`
	MTU     int             `yaml:"mtu"`
	Offload map[string]bool `yaml:"offload"`
}

type Bond struct {
	Name       string            `yaml:"name"`
	Slaves     []string          `yaml:"slaves"`
	Mode       string            `yaml:"mode"`
	MTU        int               `yaml:"mtu"`
	Properties map[string]string `yaml:"properties"`
}

// NodeNetwork attaches a node to a network group through a NIC or a bond.
type NodeNetwork struct {
	Name string `yaml:"name"`
	// IP is the assigned address in CIDR notation, empty when none.
	IP        string `yaml:"ip"`
	Interface string `yaml:"interface"`
	VLAN      int    `yaml:"vlan"`
}

type RoleMeta struct {
	PublicIPRequired     bool `yaml:"public_ip_required"`
	PublicForDVRRequired bool `yaml:"public_for_dvr_required"`
}

type Options struct {
	MasterIP string
}

// LoadInput decodes a YAML projection request. Unknown keys are rejected.
func LoadInput(r io.Reader) (*Input, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var in Input
	if err := decoder.Decode(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return &in, nil
}
