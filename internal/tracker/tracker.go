// Package tracker announces a torrent to its HTTP tracker and parses the
// compact peer list from the response.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"

	"gotorrent/internal/bencode"
	"gotorrent/internal/metainfo"
)

// announceMaxRetries bounds the number of transport-error retries per
// Announce call. Tracker timeouts and HTTP status failures are not
// retried themselves; only errors from the round trip (DNS, dial,
// connection reset) are.
const announceMaxRetries = 3

// AnnounceTimeout is the maximum time allowed for the tracker round trip.
const AnnounceTimeout = 15 * time.Second

// ErrTrackerUnreachable is returned when the tracker cannot be reached or
// responds with an unusable body.
var ErrTrackerUnreachable = errors.New("tracker: unreachable")

// ErrMalformedPeers is returned when the peers field is absent, not a
// byte string, or not a multiple of 6 bytes.
var ErrMalformedPeers = errors.New("tracker: malformed peers")

// Endpoint is a single compact peer entry: a dotted IPv4 address and a
// TCP port.
type Endpoint struct {
	IP   string
	Port uint16
}

// String renders the endpoint as host:port, suitable for net.Dial.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP, strconv.Itoa(int(e.Port)))
}

// Client announces torrents to their tracker over HTTP.
type Client struct {
	HTTP *http.Client
}

// NewClient returns a Client with the spec-mandated 15s announce timeout.
func NewClient() *Client {
	return &Client{HTTP: &http.Client{Timeout: AnnounceTimeout}}
}

// Announce builds the tracker query string in the canonical parameter
// order, issues the GET, and parses the compact peer list from the
// response.
func (c *Client) Announce(ctx context.Context, spec *metainfo.Spec, peerID [20]byte, port uint16) ([]Endpoint, error) {
	announceURL := buildAnnounceURL(spec.Announce, spec.InfoHash, peerID, port, spec.TotalLength)

	body, err := c.doWithRetry(ctx, announceURL)
	if err != nil {
		return nil, err
	}

	val, err := bencode.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTrackerUnreachable, err)
	}
	dict, ok := val.(bencode.Dict)
	if !ok {
		return nil, fmt.Errorf("%w: response is not a dictionary", ErrTrackerUnreachable)
	}

	peersVal, ok := dict["peers"].(bencode.Bytes)
	if !ok {
		return nil, fmt.Errorf("%w: peers key missing or not a byte string", ErrMalformedPeers)
	}
	return decodeCompactPeers(peersVal)
}

// doWithRetry issues the GET, retrying transport-level failures (dial
// errors, connection resets, DNS hiccups) a bounded number of times with
// exponential backoff. A timeout, a non-2xx response or a body read
// failure is returned immediately without retry.
func (c *Client) doWithRetry(ctx context.Context, announceURL string) ([]byte, error) {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), announceMaxRetries)
	b = backoff.WithContext(b, ctx)

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, announceURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrTrackerUnreachable, err))
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return backoff.Permanent(fmt.Errorf("%w: %s", ErrTrackerUnreachable, err))
			}
			return fmt.Errorf("%w: %s", ErrTrackerUnreachable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("%w: status %d", ErrTrackerUnreachable, resp.StatusCode))
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrTrackerUnreachable, err))
		}
		body = b
		return nil
	}

	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return body, nil
}

// buildAnnounceURL appends the announce query string in the exact
// parameter order spec.md §4.3/§6 requires.
func buildAnnounceURL(announce string, infoHash, peerID [20]byte, port uint16, left int) string {
	query := "info_hash=" + percentEncode(infoHash[:]) +
		"&peer_id=" + percentEncode(peerID[:]) +
		"&port=" + strconv.Itoa(int(port)) +
		"&uploaded=0" +
		"&downloaded=0" +
		"&compact=1" +
		"&left=" + strconv.Itoa(left)

	sep := "?"
	if hasQuery(announce) {
		sep = "&"
	}
	return announce + sep + query
}

func hasQuery(url string) bool {
	for _, c := range url {
		if c == '?' {
			return true
		}
	}
	return false
}

// percentEncode escapes every byte outside RFC 3986's unreserved set as
// %XX, uppercase, byte-wise. This differs from url.QueryEscape (which is
// form-encoding, not RFC 3986 percent-encoding) because the tracker
// protocol requires raw-byte escaping of binary fields, not form escaping.
func percentEncode(b []byte) string {
	const hex = "0123456789ABCDEF"
	out := make([]byte, 0, len(b)*3)
	for _, v := range b {
		if isUnreserved(v) {
			out = append(out, v)
			continue
		}
		out = append(out, '%', hex[v>>4], hex[v&0x0f])
	}
	return string(out)
}

func isUnreserved(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z':
		return true
	case b >= 'a' && b <= 'z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '-' || b == '_' || b == '.' || b == '~':
		return true
	default:
		return false
	}
}

// decodeCompactPeers parses the 6-bytes-per-peer compact format: 4-byte
// big-endian IPv4 followed by 2-byte big-endian port.
func decodeCompactPeers(raw []byte) ([]Endpoint, error) {
	const peerSize = 6
	if len(raw)%peerSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of %d", ErrMalformedPeers, len(raw), peerSize)
	}
	n := len(raw) / peerSize
	endpoints := make([]Endpoint, n)
	for i := 0; i < n; i++ {
		off := i * peerSize
		ip := net.IPv4(raw[off], raw[off+1], raw[off+2], raw[off+3])
		port := uint16(raw[off+4])<<8 | uint16(raw[off+5])
		endpoints[i] = Endpoint{IP: ip.String(), Port: port}
	}
	return endpoints, nil
}
