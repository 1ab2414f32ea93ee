// Package peerutil generates the per-run identifiers the client presents
// to trackers and peers.
package peerutil

import (
	"crypto/rand"
	"fmt"
)

// ListenPort is advertised to the tracker though the client never
// actually listens for inbound connections.
const ListenPort = 6881

// NewPeerID draws a fresh 20-byte peer-id from a cryptographic RNG.
func NewPeerID() ([20]byte, error) {
	var id [20]byte
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("peerutil: generating peer-id: %w", err)
	}
	return id, nil
}
