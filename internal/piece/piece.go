// Package piece implements the pipelined block-request pump that
// downloads a single piece from a single connected peer.
package piece

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"time"

	"gotorrent/internal/peerconn"
	"gotorrent/internal/wire"
)

// MaxBacklog bounds the number of outstanding, unanswered block requests.
const MaxBacklog = 5

// MaxBlockSize is the largest block requested in one REQUEST message.
const MaxBlockSize = 16384

// Deadline bounds the whole download of one piece, enforced with the
// connection's real net.Conn.SetDeadline rather than an injected clock,
// since the deadline rides on an OS socket and cannot be mocked.
const Deadline = 30 * time.Second

// ErrIntegrity is returned when a downloaded piece's SHA-1 does not match
// the expected hash from the metainfo file.
var ErrIntegrity = errors.New("piece: integrity check failed")

// Work describes one piece to download and verify.
type Work struct {
	Index  int
	Length int
	Hash   [20]byte
}

// Result is a verified, downloaded piece ready for assembly.
type Result struct {
	Index int
	Data  []byte
}

// progress tracks one (peer, piece) download attempt.
type progress struct {
	index      int
	buf        []byte
	downloaded int
	requested  int
	backlog    int
	choked     bool
}

// Download runs §4.8's pump/drain loop against conn for the given work,
// returning the assembled piece bytes. It does not verify the hash; call
// VerifyAndBuildResult for that.
func Download(conn *peerconn.Conn, work Work) ([]byte, error) {
	if err := conn.SetDeadline(time.Now().Add(Deadline)); err != nil {
		return nil, err
	}
	defer conn.SetDeadline(time.Time{})

	p := &progress{
		index:  work.Index,
		buf:    make([]byte, work.Length),
		choked: conn.Choked,
	}

	for p.downloaded < work.Length {
		if err := pump(conn, p, work.Length); err != nil {
			return nil, err
		}
		if err := drainOne(conn, p); err != nil {
			return nil, err
		}
	}
	conn.Choked = p.choked
	return p.buf, nil
}

// VerifyAndBuildResult checks data's SHA-1 against work.Hash and wraps it
// into a Result on success.
func VerifyAndBuildResult(work Work, data []byte) (Result, error) {
	sum := sha1.Sum(data)
	if sum != work.Hash {
		return Result{}, fmt.Errorf("%w: piece %d", ErrIntegrity, work.Index)
	}
	return Result{Index: work.Index, Data: data}, nil
}

func pump(conn *peerconn.Conn, p *progress, length int) error {
	for !p.choked && p.backlog < MaxBacklog && p.requested < length {
		blockSize := MaxBlockSize
		if remaining := length - p.requested; remaining < blockSize {
			blockSize = remaining
		}
		if err := conn.Request(p.index, p.requested, blockSize); err != nil {
			return err
		}
		p.backlog++
		p.requested += blockSize
	}
	return nil
}

func drainOne(conn *peerconn.Conn, p *progress) error {
	msg, err := conn.ReadNextMessage()
	if err != nil {
		return err
	}
	if msg == nil {
		return nil
	}
	switch msg.ID {
	case wire.MsgUnchoke:
		p.choked = false
	case wire.MsgChoke:
		p.choked = true
	case wire.MsgHave:
		if idx, err := wire.ParseHave(msg); err == nil {
			conn.Bitfield.Set(idx)
		}
	case wire.MsgPiece:
		n, err := wire.ParsePieceBlock(p.index, p.buf, msg)
		if err != nil {
			return err
		}
		p.downloaded += n
		p.backlog--
	default:
	}
	return nil
}
