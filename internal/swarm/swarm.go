// Package swarm runs the work-stealing scheduler that feeds the piece
// downloader: one worker per peer endpoint pulls from a
// shared work queue, downloads and verifies pieces, and publishes results
// for the coordinator to assemble.
package swarm

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"gotorrent/internal/metainfo"
	"gotorrent/internal/peerconn"
	"gotorrent/internal/piece"
	"gotorrent/internal/tracker"
)

// ErrNoPeersAvailable is returned immediately if the tracker returned no
// peers to try.
var ErrNoPeersAvailable = errors.New("swarm: no peers available")

// ErrNoLivePeers is returned when every worker has exited (poison aside)
// while pieces remain outstanding: the swarm has stalled and no living
// worker can make further progress.
var ErrNoLivePeers = errors.New("swarm: no live peers remain")

// QueueWaitTimeout bounds how long an idle worker waits for new work
// before concluding the swarm is winding down.
const QueueWaitTimeout = 5 * time.Second

// JoinGrace bounds how long the coordinator waits for each worker to exit
// during shutdown before abandoning it.
const JoinGrace = 1 * time.Second

// workItem is either a real piece of work or the poison sentinel that
// tells a worker to stop and pass the poison along to the next worker.
type workItem struct {
	work   piece.Work
	poison bool
}

// Coordinator owns the work queue, the worker pool, and the assembled
// output buffer for one torrent download.
type Coordinator struct {
	log   *zap.Logger
	clock clock.Clock
}

// New returns a Coordinator that logs through log and uses the real
// system clock for its timeouts.
func New(log *zap.Logger) *Coordinator {
	return &Coordinator{log: log, clock: clock.New()}
}

// withClock overrides the clock so that queue-wait and join-grace
// timeouts can be driven deterministically, e.g. by clock.NewMock().
func (c *Coordinator) withClock(clk clock.Clock) *Coordinator {
	c.clock = clk
	return c
}

// Download pulls every piece of spec from peers and returns the
// assembled file. It returns ErrNoLivePeers if every worker exits before
// all pieces are accounted for, rather than blocking forever.
func (c *Coordinator) Download(spec *metainfo.Spec, peers []tracker.Endpoint, peerID [20]byte) ([]byte, error) {
	if len(peers) == 0 {
		return nil, ErrNoPeersAvailable
	}

	n := spec.NumPieces()
	queue := make(chan workItem, n+len(peers))
	for i := 0; i < n; i++ {
		queue <- workItem{work: piece.Work{Index: i, Length: spec.PieceLen(i), Hash: spec.PieceHashes[i]}}
	}

	results := make(chan piece.Result, n)
	live := atomic.NewInt32(int32(len(peers)))
	var wg sync.WaitGroup
	for _, endpoint := range peers {
		wg.Add(1)
		go c.runWorker(endpoint, peerID, spec.InfoHash, queue, results, live, &wg)
	}
	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	dest := make([]byte, spec.TotalLength)
	completed := 0
	for completed < n {
		select {
		case res := <-results:
			completed = c.applyResult(spec, dest, res, completed, n)
		case <-allDone:
			completed = c.drainResults(spec, dest, results, completed, n)
			if completed < n {
				return nil, fmt.Errorf("%w: %d/%d pieces downloaded", ErrNoLivePeers, completed, n)
			}
		}
	}

	for i := 0; i < len(peers); i++ {
		queue <- workItem{poison: true}
	}
	c.joinWithGrace(&wg, live)

	return dest, nil
}

func (c *Coordinator) applyResult(spec *metainfo.Spec, dest []byte, res piece.Result, completed, n int) int {
	begin, _ := spec.PieceBounds(res.Index)
	copy(dest[begin:], res.Data)
	completed++
	c.log.Info("piece downloaded",
		zap.Int("index", res.Index),
		zap.Int("completed", completed),
		zap.Int("total", n),
	)
	return completed
}

// drainResults consumes every result already buffered on the channel
// without blocking, used once all workers have exited to make sure a
// result published right before the last worker's exit is not lost to a
// race against the allDone signal.
func (c *Coordinator) drainResults(spec *metainfo.Spec, dest []byte, results chan piece.Result, completed, n int) int {
	for {
		select {
		case res := <-results:
			completed = c.applyResult(spec, dest, res, completed, n)
		default:
			return completed
		}
	}
}

func (c *Coordinator) runWorker(endpoint tracker.Endpoint, peerID, infoHash [20]byte, queue chan workItem, results chan piece.Result, live *atomic.Int32, wg *sync.WaitGroup) {
	defer wg.Done()
	defer live.Dec()

	conn, err := peerconn.Dial(endpoint, peerID, infoHash)
	if err != nil {
		c.log.Warn("peer connect failed", zap.String("endpoint", endpoint.String()), zap.Error(err))
		return
	}
	defer conn.Close()

	if err := conn.Unchoke(); err != nil {
		return
	}
	if err := conn.Interested(); err != nil {
		return
	}

	for {
		select {
		case item := <-queue:
			if item.poison {
				queue <- item
				return
			}
			if !conn.Bitfield.Has(item.work.Index) {
				queue <- item
				continue
			}
			if !c.attemptPiece(conn, item, queue, results) {
				return
			}
		case <-c.clock.After(QueueWaitTimeout):
			return
		}
	}
}

// attemptPiece downloads and verifies one piece, reports the result, and
// returns false if the worker should exit (any failure makes this peer
// unreliable for the rest of the run).
func (c *Coordinator) attemptPiece(conn *peerconn.Conn, item workItem, queue chan workItem, results chan piece.Result) bool {
	data, err := piece.Download(conn, item.work)
	if err != nil {
		c.log.Warn("piece download failed", zap.Int("index", item.work.Index), zap.Error(err))
		queue <- item
		return false
	}

	result, err := piece.VerifyAndBuildResult(item.work, data)
	if err != nil {
		c.log.Warn("piece integrity check failed", zap.Int("index", item.work.Index), zap.Error(err))
		queue <- item
		return false
	}

	if err := conn.Have(item.work.Index); err != nil {
		c.log.Warn("have send failed", zap.Int("index", item.work.Index), zap.Error(err))
	}
	results <- result
	return true
}

func (c *Coordinator) joinWithGrace(wg *sync.WaitGroup, live *atomic.Int32) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-c.clock.After(JoinGrace):
		c.log.Warn("swarm shutdown grace period elapsed; abandoning stuck workers",
			zap.Int32("still_live", live.Load()))
	}
}
