package auth

import (
	"github.com/pkg/errors"

	"github.com/nuts-rice/torrust-tracker/pkg/log"
)

// Store is the slice of the persistence gateway the key manager mirrors
// into. It is satisfied by the database package.
type Store interface {
	LoadKeys() ([]PeerKey, error)
	AddKey(peerKey PeerKey) error
	RemoveKey(key Key) error
}

// Manager performs the administrative key operations, keeping the in-memory
// repository and the persistence gateway in agreement.
type Manager struct {
	store Store
	repo  *Repository
}

// NewManager allocates a Manager.
func NewManager(store Store, repo *Repository) *Manager {
	return &Manager{store: store, repo: repo}
}

// AddPeerKey generates a fresh key with the given lifetime (zero seconds
// for a permanent key), persists it, and registers it in memory.
func (m *Manager) AddPeerKey(lifetimeSecs int64) (PeerKey, error) {
	peerKey, err := GenerateKey(lifetimeSecs)
	if err != nil {
		return PeerKey{}, err
	}

	if err := m.store.AddKey(peerKey); err != nil {
		return PeerKey{}, errors.Wrap(err, "failed to persist peer key")
	}

	m.repo.Insert(peerKey)
	return peerKey, nil
}

// RemovePeerKey deletes a key from persistence and memory.
func (m *Manager) RemovePeerKey(key Key) error {
	if err := m.store.RemoveKey(key); err != nil {
		return err
	}

	m.repo.Remove(key)
	return nil
}

// LoadKeysFromDatabase atomically replaces the in-memory table with the
// persisted keys.
func (m *Manager) LoadKeysFromDatabase() error {
	peerKeys, err := m.store.LoadKeys()
	if err != nil {
		return err
	}

	m.repo.ResetWith(peerKeys)
	log.Info("loaded keys from database", log.Fields{"count": len(peerKeys)})
	return nil
}
