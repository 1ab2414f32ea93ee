// Package download wires metainfo parsing, the tracker client, and the
// swarm coordinator into the single exposed download operation.
package download

import (
	"context"
	"io"

	"go.uber.org/zap"

	"gotorrent/internal/metainfo"
	"gotorrent/internal/peerutil"
	"gotorrent/internal/swarm"
	"gotorrent/internal/tracker"
)

// Result is everything a caller needs to persist a finished download:
// the destination file name from the metainfo and the assembled bytes.
type Result struct {
	Name string
	Data []byte
}

// File parses the metainfo read from r, announces to its tracker, and
// runs the swarm coordinator until every piece is downloaded and
// verified.
func File(ctx context.Context, r io.Reader, log *zap.Logger) (*Result, error) {
	spec, err := metainfo.Parse(r)
	if err != nil {
		return nil, err
	}
	log.Info("parsed metainfo",
		zap.String("name", spec.Name),
		zap.Int("total_length", spec.TotalLength),
		zap.Int("pieces", spec.NumPieces()),
	)

	peerID, err := peerutil.NewPeerID()
	if err != nil {
		return nil, err
	}

	trackerClient := tracker.NewClient()
	peers, err := trackerClient.Announce(ctx, spec, peerID, peerutil.ListenPort)
	if err != nil {
		return nil, err
	}
	log.Info("tracker announce complete", zap.Int("peers", len(peers)))

	coordinator := swarm.New(log)
	data, err := coordinator.Download(spec, peers, peerID)
	if err != nil {
		return nil, err
	}

	return &Result{Name: spec.Name, Data: data}, nil
}
