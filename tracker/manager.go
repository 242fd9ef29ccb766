package tracker

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nuts-rice/torrust-tracker/database"
	"github.com/nuts-rice/torrust-tracker/pkg/log"
	"github.com/nuts-rice/torrust-tracker/pkg/stop"
	"github.com/nuts-rice/torrust-tracker/pkg/timecache"
	"github.com/nuts-rice/torrust-tracker/storage"
)

// Manager owns the lifecycle of the in-memory torrent state: the startup
// import of persisted counters and the periodic maintenance loop that is
// the only remover of state.
type Manager struct {
	cfg   Config
	store storage.SwarmStore
	db    database.Database

	closing chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewManager allocates a Manager.
func NewManager(cfg Config, store storage.SwarmStore, db database.Database) *Manager {
	return &Manager{
		cfg:     cfg,
		store:   store,
		db:      db,
		closing: make(chan struct{}),
	}
}

// LoadTorrentsFromDatabase seeds the in-memory download counters from the
// database. A failure here halts startup.
func (m *Manager) LoadTorrentsFromDatabase() error {
	persisted, err := m.db.LoadPersistentTorrents()
	if err != nil {
		return errors.Wrap(err, "failed to load persistent torrents")
	}

	m.store.ImportPersistent(persisted)
	log.Info("loaded persistent torrents from database", log.Fields{"count": len(persisted)})
	return nil
}

// CleanupTorrents performs one maintenance tick: inactive peers are
// evicted, and peerless torrents are dropped when the policy enables it.
func (m *Manager) CleanupTorrents() {
	cutoff := timecache.NowUnix() - int64(m.cfg.TrackerPolicy.MaxPeerTimeout/time.Second)

	before := time.Now()
	m.store.RemoveInactivePeers(cutoff)

	if m.cfg.TrackerPolicy.RemovePeerlessTorrents {
		m.store.RemovePeerlessTorrents()
	}

	log.Debug("torrent maintenance finished", log.Fields{
		"cutoff":    cutoff,
		"timeTaken": time.Since(before),
	})
}

// Start launches the maintenance loop. Handlers never evict state; this
// loop is the only remover.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		t := time.NewTicker(m.cfg.InactivePeerCleanupInterval)
		defer t.Stop()
		for {
			select {
			case <-m.closing:
				return
			case <-t.C:
				m.CleanupTorrents()
			}
		}
	}()
}

// Stop provides a thread-safe way to shutdown the maintenance loop.
func (m *Manager) Stop() stop.Result {
	c := make(stop.Channel)
	go func() {
		m.once.Do(func() { close(m.closing) })
		m.wg.Wait()
		c.Done()
	}()

	return c.Result()
}
