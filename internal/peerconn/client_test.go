package peerconn

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"gotorrent/internal/tracker"
	"gotorrent/internal/wire"
)

// fakePeer listens once, completes the handshake against infoHash, and
// writes the given bitfield bytes before handing the raw net.Conn to the
// test for further scripted exchange.
func fakePeer(t *testing.T, infoHash, peerID [20]byte, bitfield []byte) (tracker.Endpoint, func() net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	connCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer ln.Close()

		hs, err := wire.ReadHandshake(conn)
		if err != nil || hs.InfoHash != infoHash {
			conn.Close()
			return
		}
		resp := wire.NewHandshake(infoHash, peerID)
		if _, err := conn.Write(resp.Serialize()); err != nil {
			conn.Close()
			return
		}
		bfMsg := &wire.Message{ID: wire.MsgBitfield, Payload: bitfield}
		if _, err := conn.Write(bfMsg.Serialize()); err != nil {
			conn.Close()
			return
		}
		connCh <- conn
	}()

	addr := ln.Addr().(*net.TCPAddr)
	endpoint := tracker.Endpoint{IP: addr.IP.String(), Port: uint16(addr.Port)}
	return endpoint, func() net.Conn { return <-connCh }
}

func TestDialCompletesHandshakeAndBitfield(t *testing.T) {
	var infoHash, localID, remoteID [20]byte
	copy(infoHash[:], []byte("aaaaaaaaaaaaaaaaaaaa"))
	copy(localID[:], []byte("-GR0001-000000000000"))
	copy(remoteID[:], []byte("-GR0001-111111111111"))

	endpoint, wait := fakePeer(t, infoHash, remoteID, []byte{0xff, 0x00})
	defer func() { c := wait(); c.Close() }()

	conn, err := Dial(endpoint, localID, infoHash)
	require.NoError(t, err)
	defer conn.Close()

	require.True(t, conn.Choked)
	require.True(t, conn.Bitfield.Has(0))
	require.False(t, conn.Bitfield.Has(8))
}

func TestDialRejectsInfoHashMismatch(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var wantHash, gotHash, peerID, localID [20]byte
	copy(wantHash[:], []byte("aaaaaaaaaaaaaaaaaaaa"))
	copy(gotHash[:], []byte("bbbbbbbbbbbbbbbbbbbb"))

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := wire.ReadHandshake(conn); err != nil {
			return
		}
		resp := wire.NewHandshake(gotHash, peerID)
		conn.Write(resp.Serialize())
	}()

	addr := ln.Addr().(*net.TCPAddr)
	endpoint := tracker.Endpoint{IP: addr.IP.String(), Port: uint16(addr.Port)}

	_, err = Dial(endpoint, localID, wantHash)
	require.ErrorIs(t, err, ErrHandshakeMismatch)
}

func TestDialRejectsNonBitfieldFirstMessage(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var infoHash, peerID, localID [20]byte
	copy(infoHash[:], []byte("aaaaaaaaaaaaaaaaaaaa"))

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := wire.ReadHandshake(conn); err != nil {
			return
		}
		resp := wire.NewHandshake(infoHash, peerID)
		conn.Write(resp.Serialize())
		conn.Write((&wire.Message{ID: wire.MsgUnchoke}).Serialize())
	}()

	addr := ln.Addr().(*net.TCPAddr)
	endpoint := tracker.Endpoint{IP: addr.IP.String(), Port: uint16(addr.Port)}

	_, err = Dial(endpoint, localID, infoHash)
	require.ErrorIs(t, err, ErrExpectedBitfield)
}

func TestDialFailsOnUnreachableEndpoint(t *testing.T) {
	var infoHash, localID [20]byte
	_, err := Dial(tracker.Endpoint{IP: "127.0.0.1", Port: 1}, localID, infoHash)
	require.ErrorIs(t, err, ErrPeerConnectFailed)
}
