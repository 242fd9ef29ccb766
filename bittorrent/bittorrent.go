// Package bittorrent implements the domain types shared by all of the
// tracker's transports: infohashes, peer identifiers, peers, and the
// announce and scrape request/response pairs.
package bittorrent

import (
	"encoding/hex"
	"net/netip"
	"time"
)

// ClientError represents an error that should be exposed to the client over
// the BitTorrent protocol implementation.
type ClientError string

// Error implements the error interface for ClientError.
func (c ClientError) Error() string { return string(c) }

// InfoHash represents the 20-byte SHA-1 identifier of a torrent.
type InfoHash [20]byte

// InfoHashFromBytes creates an InfoHash from a byte slice.
//
// It panics if b is not 20 bytes long.
func InfoHashFromBytes(b []byte) InfoHash {
	if len(b) != 20 {
		panic("infohash must be 20 bytes")
	}

	var buf [20]byte
	copy(buf[:], b)
	return InfoHash(buf)
}

// InfoHashFromString creates an InfoHash from a string of raw bytes.
//
// It panics if s is not 20 bytes long.
func InfoHashFromString(s string) InfoHash {
	if len(s) != 20 {
		panic("infohash must be 20 bytes")
	}

	var buf [20]byte
	copy(buf[:], s)
	return InfoHash(buf)
}

// InfoHashFromHex creates an InfoHash from its 40-character hex display
// form.
func InfoHashFromHex(s string) (InfoHash, error) {
	var ih InfoHash
	if len(s) != 40 {
		return ih, ClientError("provided invalid infohash")
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return ih, ClientError("provided invalid infohash")
	}

	copy(ih[:], b)
	return ih, nil
}

// String implements fmt.Stringer, returning the 40-character lowercase hex
// display form.
func (ih InfoHash) String() string {
	return hex.EncodeToString(ih[:])
}

// PeerID represents a 20-byte opaque client identifier.
type PeerID [20]byte

// PeerIDFromBytes creates a PeerID from a byte slice.
//
// It panics if b is not 20 bytes long.
func PeerIDFromBytes(b []byte) PeerID {
	if len(b) != 20 {
		panic("peer ID must be 20 bytes")
	}

	var buf [20]byte
	copy(buf[:], b)
	return PeerID(buf)
}

// PeerIDFromString creates a PeerID from a string.
//
// It panics if s is not 20 bytes long.
func PeerIDFromString(s string) PeerID {
	if len(s) != 20 {
		panic("peer ID must be 20 bytes")
	}

	var buf [20]byte
	copy(buf[:], s)
	return PeerID(buf)
}

// Peer is the tracker's view of one client for one torrent.
//
// AddrPort always holds the resolved remote address of the client, never the
// address the client claimed in its announce payload.
type Peer struct {
	ID       PeerID
	AddrPort netip.AddrPort

	// Updated is the wall-clock time in seconds since the Unix Epoch at
	// which the peer was last observed.
	Updated int64

	Uploaded   int64
	Downloaded int64
	Left       int64
	Event      Event
}

// IsSeeder reports whether the peer has the complete torrent.
func (p Peer) IsSeeder() bool { return p.Left == 0 }

// EqualEndpoint reports whether p and x announce from the same address and
// port.
func (p Peer) EqualEndpoint(x Peer) bool { return p.AddrPort == x.AddrPort }

// AnnounceRequest represents the parsed parameters of an announce request.
//
// RemoteIP is the address resolved by the transport layer: the datagram
// source for UDP, the connection remote (or right-most X-Forwarded-For
// entry) for HTTP. The claimed IP in the payload is never carried here.
type AnnounceRequest struct {
	InfoHash InfoHash
	PeerID   PeerID
	RemoteIP netip.Addr
	Port     uint16

	Uploaded   int64
	Downloaded int64
	Left       int64
	Event      Event

	// NumWant is the number of peers the client asked for. Zero or
	// negative values request as many as available.
	NumWant int32

	// Compact selects the BEP 23 packed peer encoding on HTTP responses.
	Compact bool

	// Key is the authentication key supplied on HTTP announces in private
	// mode; empty when none was supplied.
	Key string

	// Params carries the optional request parameters: the parsed query for
	// HTTP announces, the parsed BEP 41 URLData for UDP announces.
	Params Params
}

// AnnounceResponse represents the parameters used to create an announce
// response.
type AnnounceResponse struct {
	Interval    time.Duration
	MinInterval time.Duration
	Complete    uint32
	Incomplete  uint32
	Downloaded  uint32
	Peers       []Peer
	Compact     bool
}

// ScrapeRequest represents the parsed parameters of a scrape request.
type ScrapeRequest struct {
	InfoHashes []InfoHash

	// Key is the authentication key supplied on HTTP scrapes in private
	// mode; empty when none was supplied.
	Key string
}

// Scrape represents the state of a single swarm returned in a scrape
// response.
type Scrape struct {
	InfoHash   InfoHash
	Complete   uint32
	Incomplete uint32
	Downloaded uint32
}

// ScrapeResponse represents the parameters used to create a scrape response.
// Files appear in the same order as the requested infohashes.
type ScrapeResponse struct {
	Files []Scrape
}
