package whitelist

import (
	"github.com/nuts-rice/torrust-tracker/bittorrent"
)

// Authorizer answers the authorization question consumed on announce and
// scrape.
type Authorizer struct {
	listed    bool
	whitelist *Whitelist
}

// NewAuthorizer allocates an Authorizer. When listed is false the tracker
// runs in public mode and every infohash is authorized.
func NewAuthorizer(listed bool, whitelist *Whitelist) *Authorizer {
	return &Authorizer{listed: listed, whitelist: whitelist}
}

// Listed reports whether whitelist enforcement is enabled.
func (a *Authorizer) Listed() bool { return a.listed }

// Authorize reports whether the tracker serves the given infohash.
func (a *Authorizer) Authorize(ih bittorrent.InfoHash) error {
	if !a.listed {
		return nil
	}

	if a.whitelist.Contains(ih) {
		return nil
	}

	return ErrNotWhitelisted
}
