// Package peerconn dials a single peer, completes the handshake and
// bitfield exchange, and exposes the peer-wire senders/receiver needed to
// drive a download.
package peerconn

import (
	"errors"
	"fmt"
	"net"
	"time"

	"gotorrent/internal/tracker"
	"gotorrent/internal/wire"
)

// DialTimeout bounds the initial TCP connect.
const DialTimeout = 3 * time.Second

// BitfieldTimeout bounds the wait for the peer's opening BITFIELD message.
const BitfieldTimeout = 5 * time.Second

// ErrPeerConnectFailed wraps any I/O failure while setting up the peer:
// the dial, the handshake write/read, or the read of the opening message.
var ErrPeerConnectFailed = errors.New("peerconn: connect failed")

// ErrHandshakeMismatch is returned when the peer's handshake carries a
// different info-hash than the one requested.
var ErrHandshakeMismatch = errors.New("peerconn: handshake info-hash mismatch")

// ErrExpectedBitfield is returned when the peer's first message after the
// handshake is not a BITFIELD.
var ErrExpectedBitfield = errors.New("peerconn: expected bitfield")

// Conn is a connected, handshaken peer. It is not safe for concurrent use
// by multiple goroutines.
type Conn struct {
	conn     net.Conn
	Choked   bool
	Bitfield wire.Bitfield
	Endpoint tracker.Endpoint
	PeerID   [20]byte
	infoHash [20]byte
}

// Dial performs the connect/handshake/bitfield sequence exactly once each,
// with no internal retry: connect within DialTimeout, handshake, then the
// peer's opening BITFIELD within BitfieldTimeout. A peer that fails any
// step is simply unusable for this swarm; the caller is expected to try
// the next peer in its queue rather than retry this one.
func Dial(endpoint tracker.Endpoint, peerID, infoHash [20]byte) (*Conn, error) {
	netConn, err := net.DialTimeout("tcp", endpoint.String(), DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPeerConnectFailed, err)
	}

	if err := handshake(netConn, peerID, infoHash); err != nil {
		netConn.Close()
		return nil, err
	}

	bf, err := receiveBitfield(netConn)
	if err != nil {
		netConn.Close()
		return nil, err
	}

	return &Conn{
		conn:     netConn,
		Choked:   true,
		Bitfield: bf,
		Endpoint: endpoint,
		PeerID:   peerID,
		infoHash: infoHash,
	}, nil
}

func handshake(netConn net.Conn, peerID, infoHash [20]byte) error {
	netConn.SetDeadline(time.Now().Add(DialTimeout))
	defer netConn.SetDeadline(time.Time{})

	req := wire.NewHandshake(infoHash, peerID)
	if _, err := netConn.Write(req.Serialize()); err != nil {
		return fmt.Errorf("%w: %s", ErrPeerConnectFailed, err)
	}

	resp, err := wire.ReadHandshake(netConn)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPeerConnectFailed, err)
	}
	if resp.InfoHash != infoHash {
		return fmt.Errorf("%w: expected %x, got %x", ErrHandshakeMismatch, infoHash, resp.InfoHash)
	}
	return nil
}

func receiveBitfield(netConn net.Conn) (wire.Bitfield, error) {
	netConn.SetDeadline(time.Now().Add(BitfieldTimeout))
	defer netConn.SetDeadline(time.Time{})

	msg, err := wire.ReadMessage(netConn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPeerConnectFailed, err)
	}
	if msg == nil || msg.ID != wire.MsgBitfield {
		return nil, fmt.Errorf("%w: got %v", ErrExpectedBitfield, msg)
	}
	return wire.Bitfield(msg.Payload), nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// SetDeadline sets the read/write deadline on the underlying connection,
// used by internal/piece to bound a whole-piece download.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// ReadNextMessage blocks for the next peer-wire message, or returns
// (nil, nil) on a keep-alive.
func (c *Conn) ReadNextMessage() (*wire.Message, error) {
	msg, err := wire.ReadMessage(c.conn)
	if err != nil {
		return nil, wire.ClassifyIOError(err)
	}
	return msg, nil
}

func (c *Conn) send(msg *wire.Message) error {
	_, err := c.conn.Write(msg.Serialize())
	if err != nil {
		return wire.ClassifyIOError(err)
	}
	return nil
}

// Unchoke sends UNCHOKE.
func (c *Conn) Unchoke() error { return c.send(&wire.Message{ID: wire.MsgUnchoke}) }

// Interested sends INTERESTED.
func (c *Conn) Interested() error { return c.send(&wire.Message{ID: wire.MsgInterested}) }

// NotInterested sends NOT_INTERESTED.
func (c *Conn) NotInterested() error { return c.send(&wire.Message{ID: wire.MsgNotInterested}) }

// Have sends HAVE for the given piece index.
func (c *Conn) Have(index int) error { return c.send(wire.NewHave(index)) }

// Request sends REQUEST for the given block.
func (c *Conn) Request(index, begin, length int) error {
	return c.send(wire.NewRequest(index, begin, length))
}
