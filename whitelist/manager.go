package whitelist

import (
	"github.com/pkg/errors"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
	"github.com/nuts-rice/torrust-tracker/pkg/log"
)

// Store is the slice of the persistence gateway the whitelist manager
// mirrors into. It is satisfied by the database package.
type Store interface {
	LoadWhitelist() ([]bittorrent.InfoHash, error)
	AddInfoHashToWhitelist(ih bittorrent.InfoHash) error
	RemoveInfoHashFromWhitelist(ih bittorrent.InfoHash) error
}

// Manager performs the administrative whitelist operations, keeping the
// in-memory set and the persistence gateway in agreement.
type Manager struct {
	store     Store
	whitelist *Whitelist
}

// NewManager allocates a Manager.
func NewManager(store Store, whitelist *Whitelist) *Manager {
	return &Manager{store: store, whitelist: whitelist}
}

// AddToWhitelist enrolls an infohash, persisting it before exposing it to
// the handlers. Enrolling an already-listed infohash is a no-op.
func (m *Manager) AddToWhitelist(ih bittorrent.InfoHash) error {
	if err := m.store.AddInfoHashToWhitelist(ih); err != nil {
		return errors.Wrap(err, "failed to persist whitelist entry")
	}

	m.whitelist.Add(ih)
	return nil
}

// RemoveFromWhitelist removes an infohash from persistence and memory.
func (m *Manager) RemoveFromWhitelist(ih bittorrent.InfoHash) error {
	if err := m.store.RemoveInfoHashFromWhitelist(ih); err != nil {
		return err
	}

	m.whitelist.Remove(ih)
	return nil
}

// LoadWhitelistFromDatabase atomically replaces the in-memory set with the
// persisted entries.
func (m *Manager) LoadWhitelistFromDatabase() error {
	ihs, err := m.store.LoadWhitelist()
	if err != nil {
		return err
	}

	m.whitelist.ResetWith(ihs)
	log.Info("loaded whitelist from database", log.Fields{"count": len(ihs)})
	return nil
}
