// Package memory implements the swarm store keeping all torrent and peer
// data in sharded in-memory tables.
package memory

import (
	"bytes"
	"encoding/binary"
	"net/netip"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
	"github.com/nuts-rice/torrust-tracker/pkg/log"
	"github.com/nuts-rice/torrust-tracker/pkg/stop"
	"github.com/nuts-rice/torrust-tracker/storage"
)

// Name is the name by which this swarm store is registered.
const Name = "memory"

// Default config constants.
const (
	defaultShardCount                  = 1024
	defaultPrometheusReportingInterval = time.Second * 1
)

// Config holds the configuration of a memory SwarmStore.
type Config struct {
	ShardCount                  int           `yaml:"shard_count"`
	PrometheusReportingInterval time.Duration `yaml:"prometheus_reporting_interval"`
}

// LogFields renders the current config as a set of Logrus fields.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"name":               Name,
		"shardCount":         cfg.ShardCount,
		"promReportInterval": cfg.PrometheusReportingInterval,
	}
}

// Validate sanity checks values set in a config and returns a new config with
// default values replacing anything that is invalid.
//
// This function warns to the logger when a value is changed.
func (cfg Config) Validate() Config {
	validcfg := cfg

	if cfg.ShardCount <= 0 {
		validcfg.ShardCount = defaultShardCount
		log.Warn("falling back to default configuration", log.Fields{
			"name":     Name + ".ShardCount",
			"provided": cfg.ShardCount,
			"default":  validcfg.ShardCount,
		})
	}

	if cfg.PrometheusReportingInterval <= 0 {
		validcfg.PrometheusReportingInterval = defaultPrometheusReportingInterval
		log.Warn("falling back to default configuration", log.Fields{
			"name":     Name + ".PrometheusReportingInterval",
			"provided": cfg.PrometheusReportingInterval,
			"default":  validcfg.PrometheusReportingInterval,
		})
	}

	return validcfg
}

// New creates a new SwarmStore backed by memory.
func New(provided Config) (storage.SwarmStore, error) {
	cfg := provided.Validate()
	ss := &swarmStore{
		cfg:    cfg,
		shards: make([]*swarmShard, cfg.ShardCount),
		closed: make(chan struct{}),
	}

	for i := 0; i < cfg.ShardCount; i++ {
		ss.shards[i] = &swarmShard{swarms: make(map[bittorrent.InfoHash]*swarm)}
	}

	// Start a goroutine for reporting statistics to Prometheus.
	ss.wg.Add(1)
	go func() {
		defer ss.wg.Done()
		t := time.NewTicker(cfg.PrometheusReportingInterval)
		for {
			select {
			case <-ss.closed:
				t.Stop()
				return
			case <-t.C:
				before := time.Now()
				ss.populateProm()
				log.Debug("storage: populateProm() finished", log.Fields{"timeTaken": time.Since(before)})
			}
		}
	}()

	return ss, nil
}

// swarm is the state kept for one torrent: its peer table, the incrementally
// maintained seeder/leecher counts, and the lifetime download counter.
type swarm struct {
	peers      map[bittorrent.PeerID]bittorrent.Peer
	seeders    uint32
	leechers   uint32
	downloaded uint32
}

func newSwarm() *swarm {
	return &swarm{peers: make(map[bittorrent.PeerID]bittorrent.Peer)}
}

func (s *swarm) metadata() storage.SwarmMetadata {
	return storage.SwarmMetadata{
		Complete:   s.seeders,
		Incomplete: s.leechers,
		Downloaded: s.downloaded,
	}
}

type swarmShard struct {
	swarms map[bittorrent.InfoHash]*swarm
	sync.RWMutex
}

type swarmStore struct {
	cfg    Config
	shards []*swarmShard

	closed chan struct{}
	wg     sync.WaitGroup
}

var _ storage.SwarmStore = &swarmStore{}

// populateProm aggregates metrics over all shards and then posts them to
// prometheus.
func (ss *swarmStore) populateProm() {
	var numInfohashes, numSeeders, numLeechers uint64

	for _, shard := range ss.shards {
		shard.RLock()
		numInfohashes += uint64(len(shard.swarms))
		for _, s := range shard.swarms {
			numSeeders += uint64(s.seeders)
			numLeechers += uint64(s.leechers)
		}
		shard.RUnlock()
	}

	storage.PromInfohashesCount.Set(float64(numInfohashes))
	storage.PromSeedersCount.Set(float64(numSeeders))
	storage.PromLeechersCount.Set(float64(numLeechers))
}

// recordGCDuration records the duration of a sweep over inactive peers.
func recordGCDuration(duration time.Duration) {
	storage.PromGCDurationMilliseconds.Observe(float64(duration.Nanoseconds()) / float64(time.Millisecond))
}

func (ss *swarmStore) shardIndex(ih bittorrent.InfoHash) uint32 {
	return binary.BigEndian.Uint32(ih[:4]) % uint32(len(ss.shards))
}

func (ss *swarmStore) UpsertPeer(ih bittorrent.InfoHash, peer bittorrent.Peer) {
	select {
	case <-ss.closed:
		panic("attempted to interact with stopped memory store")
	default:
	}

	shard := ss.shards[ss.shardIndex(ih)]
	shard.Lock()

	s, ok := shard.swarms[ih]
	if !ok {
		s = newSwarm()
		shard.swarms[ih] = s
	}

	old, existed := s.peers[peer.ID]
	if existed {
		if old.IsSeeder() {
			s.seeders--
		} else {
			s.leechers--
		}
	}

	if peer.Event == bittorrent.Stopped {
		delete(s.peers, peer.ID)
		shard.Unlock()
		return
	}

	s.peers[peer.ID] = peer
	if peer.IsSeeder() {
		s.seeders++
	} else {
		s.leechers++
	}

	// A completed event only counts for peers the tracker already knew, so
	// clients that join a swarm already seeding cannot inflate the counter.
	if peer.Event == bittorrent.Completed && existed {
		s.downloaded++
	}

	shard.Unlock()
}

func (ss *swarmStore) GetSwarmMetadata(ih bittorrent.InfoHash) storage.SwarmMetadata {
	select {
	case <-ss.closed:
		panic("attempted to interact with stopped memory store")
	default:
	}

	shard := ss.shards[ss.shardIndex(ih)]
	shard.RLock()
	defer shard.RUnlock()

	s, ok := shard.swarms[ih]
	if !ok {
		return storage.SwarmMetadata{}
	}

	return s.metadata()
}

// normalizeLimit clamps a requested peer-list size into (0, TorrentPeersLimit].
// Non-positive requests ask for as many peers as available.
func normalizeLimit(limit int) int {
	if limit <= 0 || limit > storage.TorrentPeersLimit {
		return storage.TorrentPeersLimit
	}
	return limit
}

func (ss *swarmStore) GetPeersForClient(ih bittorrent.InfoHash, client netip.AddrPort, limit int) (peers []bittorrent.Peer) {
	select {
	case <-ss.closed:
		panic("attempted to interact with stopped memory store")
	default:
	}

	limit = normalizeLimit(limit)

	shard := ss.shards[ss.shardIndex(ih)]
	shard.RLock()
	defer shard.RUnlock()

	s, ok := shard.swarms[ih]
	if !ok {
		return nil
	}

	for _, p := range s.peers {
		if p.AddrPort == client {
			continue
		}
		peers = append(peers, p)
		if len(peers) == limit {
			break
		}
	}

	return peers
}

func (ss *swarmStore) GetTorrentPeers(ih bittorrent.InfoHash) (peers []bittorrent.Peer) {
	select {
	case <-ss.closed:
		panic("attempted to interact with stopped memory store")
	default:
	}

	shard := ss.shards[ss.shardIndex(ih)]
	shard.RLock()
	defer shard.RUnlock()

	s, ok := shard.swarms[ih]
	if !ok {
		return nil
	}

	for _, p := range s.peers {
		peers = append(peers, p)
		if len(peers) == storage.TorrentPeersLimit {
			break
		}
	}

	return peers
}

func (ss *swarmStore) GetTorrentsMetrics() (metrics storage.TorrentsMetrics) {
	select {
	case <-ss.closed:
		panic("attempted to interact with stopped memory store")
	default:
	}

	for _, shard := range ss.shards {
		shard.RLock()
		metrics.Torrents += uint64(len(shard.swarms))
		for _, s := range shard.swarms {
			metrics.Complete += uint64(s.seeders)
			metrics.Incomplete += uint64(s.leechers)
			metrics.Downloaded += uint64(s.downloaded)
		}
		shard.RUnlock()
	}

	return metrics
}

// RemoveInactivePeers deletes all peers from the store whose Updated
// timestamp is older than the cutoff.
//
// This function must be able to execute while other methods on this
// interface are being executed in parallel.
func (ss *swarmStore) RemoveInactivePeers(cutoff int64) {
	select {
	case <-ss.closed:
		return
	default:
	}

	start := time.Now()

	for _, shard := range ss.shards {
		shard.RLock()
		var infohashes []bittorrent.InfoHash
		for ih := range shard.swarms {
			infohashes = append(infohashes, ih)
		}
		shard.RUnlock()
		runtime.Gosched()

		for _, ih := range infohashes {
			shard.Lock()

			s, stillExists := shard.swarms[ih]
			if !stillExists {
				shard.Unlock()
				runtime.Gosched()
				continue
			}

			for id, p := range s.peers {
				if p.Updated < cutoff {
					if p.IsSeeder() {
						s.seeders--
					} else {
						s.leechers--
					}
					delete(s.peers, id)
				}
			}

			shard.Unlock()
			runtime.Gosched()
		}

		runtime.Gosched()
	}

	recordGCDuration(time.Since(start))
}

func (ss *swarmStore) RemovePeerlessTorrents() {
	select {
	case <-ss.closed:
		return
	default:
	}

	for _, shard := range ss.shards {
		shard.Lock()
		for ih, s := range shard.swarms {
			if len(s.peers) == 0 {
				delete(shard.swarms, ih)
			}
		}
		shard.Unlock()
		runtime.Gosched()
	}
}

func (ss *swarmStore) ImportPersistent(downloaded map[bittorrent.InfoHash]uint32) {
	select {
	case <-ss.closed:
		panic("attempted to interact with stopped memory store")
	default:
	}

	for ih, count := range downloaded {
		shard := ss.shards[ss.shardIndex(ih)]
		shard.Lock()

		s, ok := shard.swarms[ih]
		if !ok {
			s = newSwarm()
			shard.swarms[ih] = s
		}
		s.downloaded = count

		shard.Unlock()
	}
}

func (ss *swarmStore) GetPaginated(offset, limit int) []storage.TorrentSummary {
	select {
	case <-ss.closed:
		panic("attempted to interact with stopped memory store")
	default:
	}

	var summaries []storage.TorrentSummary
	for _, shard := range ss.shards {
		shard.RLock()
		for ih, s := range shard.swarms {
			summaries = append(summaries, storage.TorrentSummary{InfoHash: ih, Metadata: s.metadata()})
		}
		shard.RUnlock()
	}

	sort.Slice(summaries, func(i, j int) bool {
		return bytes.Compare(summaries[i].InfoHash[:], summaries[j].InfoHash[:]) < 0
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(summaries) {
		return nil
	}
	summaries = summaries[offset:]

	if limit > 0 && limit < len(summaries) {
		summaries = summaries[:limit]
	}

	return summaries
}

func (ss *swarmStore) Stop() stop.Result {
	c := make(stop.Channel)
	go func() {
		close(ss.closed)
		ss.wg.Wait()

		// Explicitly deallocate the tables.
		shards := make([]*swarmShard, len(ss.shards))
		for i := 0; i < len(ss.shards); i++ {
			shards[i] = &swarmShard{swarms: make(map[bittorrent.InfoHash]*swarm)}
		}
		ss.shards = shards

		c.Done()
	}()

	return c.Result()
}

func (ss *swarmStore) LogFields() log.Fields {
	return ss.cfg.LogFields()
}
