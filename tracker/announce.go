// Package tracker implements the core request handlers of the tracker: the
// announce and scrape services, and the periodic torrent maintenance.
package tracker

import (
	"net/netip"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
	"github.com/nuts-rice/torrust-tracker/database"
	"github.com/nuts-rice/torrust-tracker/pkg/log"
	"github.com/nuts-rice/torrust-tracker/pkg/timecache"
	"github.com/nuts-rice/torrust-tracker/storage"
)

// AnnounceHandler resolves the announcing peer, updates the swarm, persists
// the download counter when it changes, and selects the neighbor peers
// returned to the client.
type AnnounceHandler struct {
	cfg   Config
	store storage.SwarmStore
	db    database.Database
}

// NewAnnounceHandler allocates an AnnounceHandler.
func NewAnnounceHandler(cfg Config, store storage.SwarmStore, db database.Database) *AnnounceHandler {
	return &AnnounceHandler{cfg: cfg, store: store, db: db}
}

// Announce processes an announce whose infohash has already been
// authorized.
//
// The peer record is built from the resolved remote IP and the announced
// port; whatever address the client claimed in its payload has been
// discarded by the transport parser.
func (h *AnnounceHandler) Announce(req *bittorrent.AnnounceRequest) *bittorrent.AnnounceResponse {
	peer := bittorrent.Peer{
		ID:         req.PeerID,
		AddrPort:   netip.AddrPortFrom(h.assignPeerAddr(req.RemoteIP), req.Port),
		Updated:    timecache.NowUnix(),
		Uploaded:   req.Uploaded,
		Downloaded: req.Downloaded,
		Left:       req.Left,
		Event:      req.Event,
	}

	stats := h.upsertPeerAndGetStats(req.InfoHash, peer)

	peers := h.store.GetPeersForClient(req.InfoHash, peer.AddrPort, int(req.NumWant))

	return &bittorrent.AnnounceResponse{
		Interval:    h.cfg.AnnouncePolicy.Interval,
		MinInterval: h.cfg.AnnouncePolicy.IntervalMin,
		Complete:    stats.Complete,
		Incomplete:  stats.Incomplete,
		Downloaded:  stats.Downloaded,
		Peers:       peers,
		Compact:     req.Compact,
	}
}

// assignPeerAddr applies the loopback substitution: a tracker co-located
// with its clients publishes the configured external IP instead of a
// loopback address.
func (h *AnnounceHandler) assignPeerAddr(remote netip.Addr) netip.Addr {
	remote = remote.Unmap()

	if remote.IsLoopback() {
		if external, ok := h.cfg.Net.ExternalAddr(); ok {
			return external
		}
	}

	return remote
}

// upsertPeerAndGetStats updates the swarm in memory, mirrors the download
// counter to the database when the swarm metadata changed, and returns the
// post-update metadata.
func (h *AnnounceHandler) upsertPeerAndGetStats(ih bittorrent.InfoHash, peer bittorrent.Peer) storage.SwarmMetadata {
	before := h.store.GetSwarmMetadata(ih)

	h.store.UpsertPeer(ih, peer)

	after := h.store.GetSwarmMetadata(ih)

	if before != after && h.cfg.TrackerPolicy.PersistentTorrentCompletedStat {
		// A failed save never fails the announce.
		if err := h.db.SavePersistentTorrent(ih, after.Downloaded); err != nil {
			log.Error("failed to persist torrent stats", log.Err(err), log.Fields{"infoHash": ih.String()})
		}
	}

	return after
}
