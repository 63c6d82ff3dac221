package topology

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is the projection output. Map keys are sorted by both encoders,
// so equal documents always encode to the same bytes.
type Document struct {
	Common          map[string]interface{} `json:"common" yaml:"common"`
	NetworkMetadata NetworkMetadata        `json:"network_metadata" yaml:"network_metadata"`
	Nodes           []NodeDocument         `json:"nodes" yaml:"nodes"`
}

type NodeDocument struct {
	UID           string        `json:"uid" yaml:"uid"`
	NetworkScheme NetworkScheme `json:"network_scheme" yaml:"network_scheme"`
}

type NetworkScheme struct {
	Version         string                     `json:"version" yaml:"version"`
	Provider        string                     `json:"provider" yaml:"provider"`
	Interfaces      map[string]InterfaceConfig `json:"interfaces" yaml:"interfaces"`
	Endpoints       map[string]Endpoint        `json:"endpoints" yaml:"endpoints"`
	Transformations []Transformation           `json:"transformations" yaml:"transformations"`
	Roles           map[string]string          `json:"roles" yaml:"roles"`
}

type InterfaceConfig struct {
	MTU     int     `json:"mtu,omitempty" yaml:"mtu,omitempty"`
	Ethtool Ethtool `json:"ethtool" yaml:"ethtool"`
}

type Ethtool struct {
	Offload map[string]bool `json:"offload" yaml:"offload"`
}

// Endpoint is a bridge or port carrying network roles. IP is either a list
// of CIDRs or the string "none".
type Endpoint struct {
	IP             interface{}            `json:"IP" yaml:"IP"`
	Gateway        string                 `json:"gateway,omitempty" yaml:"gateway,omitempty"`
	VendorSpecific map[string]interface{} `json:"vendor_specific,omitempty" yaml:"vendor_specific,omitempty"`
}

type Transformation struct {
	Action         string                 `json:"action" yaml:"action"`
	Name           string                 `json:"name,omitempty" yaml:"name,omitempty"`
	Bridge         string                 `json:"bridge,omitempty" yaml:"bridge,omitempty"`
	Bridges        []string               `json:"bridges,omitempty" yaml:"bridges,omitempty"`
	Interfaces     []string               `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	Provider       string                 `json:"provider,omitempty" yaml:"provider,omitempty"`
	MTU            int                    `json:"mtu,omitempty" yaml:"mtu,omitempty"`
	BondProperties map[string]interface{} `json:"bond_properties,omitempty" yaml:"bond_properties,omitempty"`
}

type NetworkMetadata struct {
	Nodes map[string]NodeMetadata `json:"nodes" yaml:"nodes"`
	VIPs  map[string]VIPMetadata  `json:"vips" yaml:"vips"`
}

type NodeMetadata struct {
	UID          string   `json:"uid" yaml:"uid"`
	FQDN         string   `json:"fqdn" yaml:"fqdn"`
	Name         string   `json:"name" yaml:"name"`
	UserNodeName string   `json:"user_node_name" yaml:"user_node_name"`
	SwiftZone    string   `json:"swift_zone" yaml:"swift_zone"`
	NodeRoles    []string `json:"node_roles" yaml:"node_roles"`
	// NetworkRoles maps a role to the node's address on it, or nil.
	NetworkRoles map[string]*string `json:"network_roles" yaml:"network_roles"`
}

type VIPMetadata struct {
	NetworkRole string   `json:"network_role" yaml:"network_role"`
	Namespace   string   `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	IPAddr      string   `json:"ipaddr" yaml:"ipaddr"`
	NodeRoles   []string `json:"node_roles" yaml:"node_roles"`
}

func (d *Document) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *Document) JSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return buf.Bytes(), nil
}
