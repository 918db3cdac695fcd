// Package domain contains core concepts of the chat relay.
// This file defines Peer identities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import "net"

// PeerID identifies one live connection. The remote socket address is used,
// which is unique among connections open at the same time.
type PeerID string

func PeerIDFromAddr(addr net.Addr) PeerID {
	if addr == nil {
		return ""
	}
	return PeerID(addr.String())
}

func (p PeerID) String() string { return string(p) }
