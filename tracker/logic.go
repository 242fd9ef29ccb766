package tracker

import (
	"context"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
	"github.com/nuts-rice/torrust-tracker/frontend"
	"github.com/nuts-rice/torrust-tracker/whitelist"
)

// Logic composes the announce and scrape handlers with infohash
// authorization into the interface the transports consume.
type Logic struct {
	announce   *AnnounceHandler
	scrape     *ScrapeHandler
	authorizer *whitelist.Authorizer
}

var _ frontend.TrackerLogic = &Logic{}

// NewLogic allocates a Logic.
func NewLogic(announce *AnnounceHandler, scrape *ScrapeHandler, authorizer *whitelist.Authorizer) *Logic {
	return &Logic{announce: announce, scrape: scrape, authorizer: authorizer}
}

// HandleAnnounce authorizes the infohash and runs the announce algorithm.
func (l *Logic) HandleAnnounce(_ context.Context, req *bittorrent.AnnounceRequest) (*bittorrent.AnnounceResponse, error) {
	if err := l.authorizer.Authorize(req.InfoHash); err != nil {
		return nil, err
	}

	return l.announce.Announce(req), nil
}

// HandleScrape runs the scrape algorithm. Authorization failures are
// absorbed per infohash as zeroed metadata, so scrape itself never fails.
func (l *Logic) HandleScrape(_ context.Context, req *bittorrent.ScrapeRequest) (*bittorrent.ScrapeResponse, error) {
	return l.scrape.Scrape(req.InfoHashes), nil
}
