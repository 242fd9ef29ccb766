// Package whitelist implements the infohash allow-list consulted on every
// announce and scrape when the tracker runs in listed mode.
package whitelist

import (
	"sync"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
)

// ErrNotWhitelisted is the client-visible rejection of an infohash that is
// not enrolled while the tracker runs in listed mode.
var ErrNotWhitelisted = bittorrent.ClientError("info hash not whitelisted")

// Whitelist is the in-memory set of allowed infohashes. Reads vastly
// outnumber writes.
type Whitelist struct {
	hashes map[bittorrent.InfoHash]struct{}
	sync.RWMutex
}

// New allocates an empty Whitelist.
func New() *Whitelist {
	return &Whitelist{hashes: make(map[bittorrent.InfoHash]struct{})}
}

// Add inserts an infohash into the set.
func (w *Whitelist) Add(ih bittorrent.InfoHash) {
	w.Lock()
	defer w.Unlock()

	w.hashes[ih] = struct{}{}
}

// Remove deletes an infohash from the set.
func (w *Whitelist) Remove(ih bittorrent.InfoHash) {
	w.Lock()
	defer w.Unlock()

	delete(w.hashes, ih)
}

// Contains reports whether an infohash is in the set.
func (w *Whitelist) Contains(ih bittorrent.InfoHash) bool {
	w.RLock()
	defer w.RUnlock()

	_, ok := w.hashes[ih]
	return ok
}

// Len returns the number of enrolled infohashes.
func (w *Whitelist) Len() int {
	w.RLock()
	defer w.RUnlock()

	return len(w.hashes)
}

// Clear removes every infohash.
func (w *Whitelist) Clear() {
	w.Lock()
	defer w.Unlock()

	w.hashes = make(map[bittorrent.InfoHash]struct{})
}

// ResetWith atomically replaces the set with the provided infohashes.
func (w *Whitelist) ResetWith(ihs []bittorrent.InfoHash) {
	hashes := make(map[bittorrent.InfoHash]struct{}, len(ihs))
	for _, ih := range ihs {
		hashes[ih] = struct{}{}
	}

	w.Lock()
	defer w.Unlock()

	w.hashes = hashes
}
