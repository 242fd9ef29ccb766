package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nuts-rice/torrust-tracker/auth"
	"github.com/nuts-rice/torrust-tracker/bittorrent"
	"github.com/nuts-rice/torrust-tracker/database"
	"github.com/nuts-rice/torrust-tracker/storage"
	"github.com/nuts-rice/torrust-tracker/storage/memory"
)

// fakeDatabase is an in-memory stand-in for the persistence gateway.
type fakeDatabase struct {
	mu        sync.Mutex
	torrents  map[bittorrent.InfoHash]uint32
	whitelist map[bittorrent.InfoHash]struct{}
	keys      map[auth.Key]auth.PeerKey
	saves     int
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{
		torrents:  make(map[bittorrent.InfoHash]uint32),
		whitelist: make(map[bittorrent.InfoHash]struct{}),
		keys:      make(map[auth.Key]auth.PeerKey),
	}
}

func (f *fakeDatabase) CreateTables() error { return nil }
func (f *fakeDatabase) DropTables() error   { return nil }

func (f *fakeDatabase) LoadPersistentTorrents() (map[bittorrent.InfoHash]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[bittorrent.InfoHash]uint32, len(f.torrents))
	for ih, downloaded := range f.torrents {
		out[ih] = downloaded
	}
	return out, nil
}

func (f *fakeDatabase) SavePersistentTorrent(ih bittorrent.InfoHash, downloaded uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.torrents[ih] = downloaded
	f.saves++
	return nil
}

func (f *fakeDatabase) LoadWhitelist() ([]bittorrent.InfoHash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []bittorrent.InfoHash
	for ih := range f.whitelist {
		out = append(out, ih)
	}
	return out, nil
}

func (f *fakeDatabase) AddInfoHashToWhitelist(ih bittorrent.InfoHash) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.whitelist[ih] = struct{}{}
	return nil
}

func (f *fakeDatabase) RemoveInfoHashFromWhitelist(ih bittorrent.InfoHash) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.whitelist[ih]; !ok {
		return database.ErrResourceDoesNotExist
	}
	delete(f.whitelist, ih)
	return nil
}

func (f *fakeDatabase) IsInfoHashWhitelisted(ih bittorrent.InfoHash) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.whitelist[ih]
	return ok, nil
}

func (f *fakeDatabase) LoadKeys() ([]auth.PeerKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []auth.PeerKey
	for _, pk := range f.keys {
		out = append(out, pk)
	}
	return out, nil
}

func (f *fakeDatabase) AddKey(peerKey auth.PeerKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.keys[peerKey.Key] = peerKey
	return nil
}

func (f *fakeDatabase) GetKey(key auth.Key) (*auth.PeerKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if pk, ok := f.keys[key]; ok {
		return &pk, nil
	}
	return nil, nil
}

func (f *fakeDatabase) RemoveKey(key auth.Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.keys[key]; !ok {
		return database.ErrResourceDoesNotExist
	}
	delete(f.keys, key)
	return nil
}

func (f *fakeDatabase) Close() error { return nil }

func (f *fakeDatabase) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.saves
}

var _ database.Database = &fakeDatabase{}

func newTestStore(t *testing.T) storage.SwarmStore {
	t.Helper()

	ss, err := memory.New(memory.Config{ShardCount: 16, PrometheusReportingInterval: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { <-ss.Stop() })

	return ss
}

func mustInfoHash(t *testing.T, hex string) bittorrent.InfoHash {
	t.Helper()

	ih, err := bittorrent.InfoHashFromHex(hex)
	require.NoError(t, err)
	return ih
}
