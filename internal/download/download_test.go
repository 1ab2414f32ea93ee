package download

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gotorrent/internal/bencode"
	"gotorrent/internal/wire"
)

// fakePeerListener accepts one connection, completes the handshake,
// advertises a full bitfield, and serves REQUESTs for the single piece.
func fakePeerListener(t *testing.T, infoHash [20]byte, data []byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer ln.Close()
		defer conn.Close()

		var peerID [20]byte
		if _, err := wire.ReadHandshake(conn); err != nil {
			return
		}
		resp := wire.NewHandshake(infoHash, peerID)
		conn.Write(resp.Serialize())
		conn.Write((&wire.Message{ID: wire.MsgBitfield, Payload: []byte{0xff}}).Serialize())
		conn.Write((&wire.Message{ID: wire.MsgUnchoke}).Serialize())

		for {
			msg, err := wire.ReadMessage(conn)
			if err != nil {
				return
			}
			if msg == nil || msg.ID != wire.MsgRequest {
				continue
			}
			begin := int(binary.BigEndian.Uint32(msg.Payload[4:8]))
			length := int(binary.BigEndian.Uint32(msg.Payload[8:12]))
			payload := make([]byte, 8+length)
			copy(payload[0:8], msg.Payload[0:8])
			copy(payload[8:], data[begin:begin+length])
			conn.Write((&wire.Message{ID: wire.MsgPiece, Payload: payload}).Serialize())
		}
	}()

	return ln.Addr().String()
}

func TestFileEndToEnd(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 32)
	pieceHash := sha1.Sum(data)

	infoDict := bencode.Dict{
		"name":         bencode.Bytes("movie.mkv"),
		"length":       bencode.Int(len(data)),
		"piece length": bencode.Int(len(data)),
		"pieces":       bencode.Bytes(pieceHash[:]),
	}
	encodedInfo, err := bencode.Encode(infoDict)
	require.NoError(t, err)
	infoHash := sha1.Sum(encodedInfo)

	peerAddr := fakePeerListener(t, infoHash, data)
	host, portStr, err := net.SplitHostPort(peerAddr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	trackerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := net.ParseIP(host).To4()
		compact := append(append([]byte{}, ip...), byte(port>>8), byte(port))
		resp := bencode.Dict{
			"interval": bencode.Int(1800),
			"peers":    bencode.Bytes(compact),
		}
		enc, err := bencode.Encode(resp)
		require.NoError(t, err)
		w.Write(enc)
	}))
	defer trackerSrv.Close()

	metainfoDict := bencode.Dict{
		"announce": bencode.Bytes(trackerSrv.URL),
		"info":     infoDict,
	}
	metainfoBytes, err := bencode.Encode(metainfoDict)
	require.NoError(t, err)

	result, err := File(context.Background(), bytes.NewReader(metainfoBytes), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, "movie.mkv", result.Name)
	require.Equal(t, data, result.Data)
}
