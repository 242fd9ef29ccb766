package tracker

import (
	"github.com/nuts-rice/torrust-tracker/bittorrent"
	"github.com/nuts-rice/torrust-tracker/storage"
	"github.com/nuts-rice/torrust-tracker/whitelist"
)

// ScrapeHandler serves the bulk swarm-metadata lookup.
type ScrapeHandler struct {
	authorizer *whitelist.Authorizer
	store      storage.SwarmStore
}

// NewScrapeHandler allocates a ScrapeHandler.
func NewScrapeHandler(authorizer *whitelist.Authorizer, store storage.SwarmStore) *ScrapeHandler {
	return &ScrapeHandler{authorizer: authorizer, store: store}
}

// Scrape returns one file entry per requested infohash, in request order.
//
// An unauthorized infohash is reported with zeroed metadata rather than an
// error, and never creates a torrent entry.
func (h *ScrapeHandler) Scrape(ihs []bittorrent.InfoHash) *bittorrent.ScrapeResponse {
	files := make([]bittorrent.Scrape, 0, len(ihs))

	for _, ih := range ihs {
		file := bittorrent.Scrape{InfoHash: ih}

		if err := h.authorizer.Authorize(ih); err == nil {
			md := h.store.GetSwarmMetadata(ih)
			file.Complete = md.Complete
			file.Incomplete = md.Incomplete
			file.Downloaded = md.Downloaded
		}

		files = append(files, file)
	}

	return &bittorrent.ScrapeResponse{Files: files}
}

// ZeroedScrape returns a response with zeroed metadata for every requested
// infohash, without consulting the swarm store. It is used by the HTTP
// tracker for unauthenticated scrapes in private mode.
func ZeroedScrape(ihs []bittorrent.InfoHash) *bittorrent.ScrapeResponse {
	files := make([]bittorrent.Scrape, 0, len(ihs))
	for _, ih := range ihs {
		files = append(files, bittorrent.Scrape{InfoHash: ih})
	}

	return &bittorrent.ScrapeResponse{Files: files}
}
