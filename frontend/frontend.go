// Package frontend provides the interface of the tracker core consumed by
// every transport implementation.
package frontend

import (
	"context"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
)

// TrackerLogic is the interface through which the UDP and HTTP transports
// hand fully parsed requests to the tracker core.
type TrackerLogic interface {
	// HandleAnnounce generates a response for an Announce.
	HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest) (*bittorrent.AnnounceResponse, error)

	// HandleScrape generates a response for a Scrape.
	HandleScrape(ctx context.Context, req *bittorrent.ScrapeRequest) (*bittorrent.ScrapeResponse, error)
}
