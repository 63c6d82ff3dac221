package topology

import (
	"errors"
	"fmt"
)

var (
	ErrCanNotFindNetworkForNode = errors.New("cannot find network for node")
	ErrInvalidInput             = errors.New("invalid topology input")
)

// NetworkNotFoundError names the node and the network whose address the
// document needs but the node does not have.
type NetworkNotFoundError struct {
	Node    string
	Network string
}

func (e *NetworkNotFoundError) Error() string {
	return fmt.Sprintf("%s: node %s has no address on network %s", ErrCanNotFindNetworkForNode, e.Node, e.Network)
}

func (e *NetworkNotFoundError) Unwrap() error {
	return ErrCanNotFindNetworkForNode
}
