package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ProtocolIdentifier is the canonical pstr sent in every handshake.
const ProtocolIdentifier = "BitTorrent protocol"

// ErrInvalidHandshake is returned when a handshake frame cannot be parsed:
// pstrlen is zero, or a length field does not read in full.
var ErrInvalidHandshake = errors.New("wire: invalid handshake")

// Handshake is the fixed 68-byte (for the canonical protocol identifier)
// greeting that opens every peer connection.
type Handshake struct {
	Pstr     string
	InfoHash [20]byte
	PeerID   [20]byte
}

// NewHandshake builds a canonical handshake for the given info-hash and
// peer-id.
func NewHandshake(infoHash, peerID [20]byte) *Handshake {
	return &Handshake{Pstr: ProtocolIdentifier, InfoHash: infoHash, PeerID: peerID}
}

// Serialize writes h's 68-byte wire form. Reserved bytes are always zero.
func (h *Handshake) Serialize() []byte {
	buf := make([]byte, len(h.Pstr)+49)
	cursor := 1
	buf[0] = byte(len(h.Pstr))
	cursor += copy(buf[cursor:], h.Pstr)
	cursor += copy(buf[cursor:], make([]byte, 8))
	cursor += copy(buf[cursor:], h.InfoHash[:])
	copy(buf[cursor:], h.PeerID[:])
	return buf
}

// ReadHandshake parses a handshake frame from r.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	lenBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandshake, err)
	}
	pstrlen := int(lenBuf[0])
	if pstrlen == 0 {
		return nil, fmt.Errorf("%w: pstrlen is zero", ErrInvalidHandshake)
	}
	rest := make([]byte, pstrlen+48)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandshake, err)
	}
	h := &Handshake{Pstr: string(rest[:pstrlen])}
	cursor := pstrlen + 8
	copy(h.InfoHash[:], rest[cursor:cursor+20])
	cursor += 20
	copy(h.PeerID[:], rest[cursor:cursor+20])
	return h, nil
}

// Equal reports whether two handshakes have identical fields.
func (h *Handshake) Equal(other *Handshake) bool {
	return h.Pstr == other.Pstr &&
		bytes.Equal(h.InfoHash[:], other.InfoHash[:]) &&
		bytes.Equal(h.PeerID[:], other.PeerID[:])
}
