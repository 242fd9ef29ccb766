// Package storage implements the abstraction over the in-memory swarm state
// kept by the tracker: one peer table and one lifetime download counter per
// torrent.
package storage

import (
	"net/netip"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
	"github.com/nuts-rice/torrust-tracker/pkg/log"
	"github.com/nuts-rice/torrust-tracker/pkg/stop"
)

// TorrentPeersLimit is the maximum number of peers returned for a single
// torrent, regardless of how many the client asked for.
const TorrentPeersLimit = 74

// SwarmMetadata is the derived state of one swarm at an instant.
type SwarmMetadata struct {
	// Complete is the number of active peers that have the whole torrent.
	Complete uint32 `json:"complete"`

	// Incomplete is the number of active peers still downloading.
	Incomplete uint32 `json:"incomplete"`

	// Downloaded is the lifetime count of completed events observed for
	// the torrent.
	Downloaded uint32 `json:"downloaded"`
}

// Zeroed reports whether the metadata carries no information, which is also
// what unauthorized scrapes receive.
func (m SwarmMetadata) Zeroed() bool {
	return m == SwarmMetadata{}
}

// TorrentsMetrics are the aggregate metrics over every tracked torrent.
type TorrentsMetrics struct {
	Torrents   uint64 `json:"torrents"`
	Complete   uint64 `json:"complete"`
	Incomplete uint64 `json:"incomplete"`
	Downloaded uint64 `json:"downloaded"`
}

// TorrentSummary pairs an infohash with a snapshot of its swarm metadata.
// It is the unit of the paginated listing used by read-only introspection.
type TorrentSummary struct {
	InfoHash bittorrent.InfoHash
	Metadata SwarmMetadata
}

// SwarmStore is the sole custodian of in-memory torrent and peer state.
//
// Peer mutation is serialized per torrent; reads return cloned snapshots
// that callers own.
type SwarmStore interface {
	// UpsertPeer inserts or replaces the peer in the torrent's peer table,
	// creating the torrent entry if absent. A Completed event from a peer
	// that was already present increments the torrent's download counter;
	// a Stopped event removes the peer instead.
	UpsertPeer(ih bittorrent.InfoHash, peer bittorrent.Peer)

	// GetSwarmMetadata returns the swarm's metadata, zeroed when the
	// torrent is unknown.
	GetSwarmMetadata(ih bittorrent.InfoHash) SwarmMetadata

	// GetPeersForClient returns up to min(limit, TorrentPeersLimit) peers,
	// excluding any peer announcing from client. Non-positive limits
	// request the full TorrentPeersLimit. No ordering is guaranteed.
	GetPeersForClient(ih bittorrent.InfoHash, client netip.AddrPort, limit int) []bittorrent.Peer

	// GetTorrentPeers returns up to TorrentPeersLimit peers without any
	// client filter.
	GetTorrentPeers(ih bittorrent.InfoHash) []bittorrent.Peer

	// GetTorrentsMetrics walks all entries and aggregates their state.
	GetTorrentsMetrics() TorrentsMetrics

	// RemoveInactivePeers drops every peer whose Updated timestamp is
	// older than the cutoff, given in seconds since the Unix Epoch.
	RemoveInactivePeers(cutoff int64)

	// RemovePeerlessTorrents drops every entry with an empty peer table.
	RemovePeerlessTorrents()

	// ImportPersistent seeds the download counters from persisted state,
	// creating empty entries for unknown infohashes.
	ImportPersistent(downloaded map[bittorrent.InfoHash]uint32)

	// GetPaginated returns entry summaries ordered lexicographically by
	// infohash bytes, for read-only introspection.
	GetPaginated(offset, limit int) []TorrentSummary

	stop.Stopper
	log.Fielder
}
