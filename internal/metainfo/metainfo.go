// Package metainfo parses BitTorrent metainfo files into a Spec and
// derives the info-hash that identifies the torrent to trackers and peers.
package metainfo

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"math"

	"gotorrent/internal/bencode"
)

// ErrInvalidMetainfo is returned when a required key is absent or
// mistyped, when pieces is not a multiple of 20 bytes, or when the
// derived piece count disagrees with ceil(length / piece_length).
var ErrInvalidMetainfo = errors.New("metainfo: invalid metainfo")

// Spec is the immutable, fully parsed contract a download needs: the
// announce URL, the 20-byte info-hash, the display name, the total
// payload length, the piece length, and the ordered piece hashes.
type Spec struct {
	Announce    string
	InfoHash    [20]byte
	Name        string
	TotalLength int
	PieceLength int
	PieceHashes [][20]byte
}

// NumPieces returns the number of pieces the spec declares.
func (s *Spec) NumPieces() int {
	return len(s.PieceHashes)
}

// PieceBounds returns the half-open byte range [begin, end) of piece i
// within the assembled payload.
func (s *Spec) PieceBounds(i int) (begin, end int) {
	begin = i * s.PieceLength
	end = begin + s.PieceLength
	if end > s.TotalLength {
		end = s.TotalLength
	}
	return begin, end
}

// PieceLen returns the exact byte length of piece i: PieceLength for all
// but the last piece, and the remainder for the last.
func (s *Spec) PieceLen(i int) int {
	begin, end := s.PieceBounds(i)
	return end - begin
}

// Parse decodes a bencoded metainfo document from r into a Spec.
func Parse(r io.Reader) (*Spec, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("metainfo: read: %w", err)
	}
	root, err := bencode.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMetainfo, err)
	}
	topDict, ok := root.(bencode.Dict)
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is not a dictionary", ErrInvalidMetainfo)
	}

	announceVal, ok := topDict["announce"].(bencode.Bytes)
	if !ok {
		return nil, fmt.Errorf("%w: missing or malformed announce", ErrInvalidMetainfo)
	}

	infoVal, ok := topDict["info"].(bencode.Dict)
	if !ok {
		return nil, fmt.Errorf("%w: missing or malformed info dictionary", ErrInvalidMetainfo)
	}

	nameVal, ok := infoVal["name"].(bencode.Bytes)
	if !ok {
		return nil, fmt.Errorf("%w: missing or malformed name", ErrInvalidMetainfo)
	}
	lengthVal, ok := infoVal["length"].(bencode.Int)
	if !ok || lengthVal < 0 {
		return nil, fmt.Errorf("%w: missing or malformed length", ErrInvalidMetainfo)
	}
	pieceLengthVal, ok := infoVal["piece length"].(bencode.Int)
	if !ok || pieceLengthVal <= 0 {
		return nil, fmt.Errorf("%w: missing or malformed piece length", ErrInvalidMetainfo)
	}
	piecesVal, ok := infoVal["pieces"].(bencode.Bytes)
	if !ok {
		return nil, fmt.Errorf("%w: missing or malformed pieces", ErrInvalidMetainfo)
	}
	if len(piecesVal)%20 != 0 {
		return nil, fmt.Errorf("%w: pieces length %d is not a multiple of 20", ErrInvalidMetainfo, len(piecesVal))
	}

	numHashes := len(piecesVal) / 20
	wantHashes := int(math.Ceil(float64(lengthVal) / float64(pieceLengthVal)))
	if numHashes != wantHashes {
		return nil, fmt.Errorf("%w: pieces declares %d hashes, expected %d", ErrInvalidMetainfo, numHashes, wantHashes)
	}

	hashes := make([][20]byte, numHashes)
	for i := 0; i < numHashes; i++ {
		copy(hashes[i][:], piecesVal[i*20:(i+1)*20])
	}

	encodedInfo, err := bencode.Encode(infoVal)
	if err != nil {
		return nil, fmt.Errorf("%w: re-encoding info dict: %s", ErrInvalidMetainfo, err)
	}

	return &Spec{
		Announce:    string(announceVal),
		InfoHash:    sha1.Sum(encodedInfo),
		Name:        string(nameVal),
		TotalLength: int(lengthVal),
		PieceLength: int(pieceLengthVal),
		PieceHashes: hashes,
	}, nil
}
