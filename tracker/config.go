package tracker

import (
	"net/netip"
	"time"

	"github.com/nuts-rice/torrust-tracker/pkg/log"
)

// Default config constants.
const (
	defaultAnnounceInterval            = 120 * time.Second
	defaultAnnounceIntervalMin         = 120 * time.Second
	defaultMaxPeerTimeout              = 900 * time.Second
	defaultInactivePeerCleanupInterval = 600 * time.Second
)

// AnnouncePolicy is echoed to clients in every announce response.
type AnnouncePolicy struct {
	// Interval is the time clients should wait between regular announces.
	Interval time.Duration `yaml:"interval"`

	// IntervalMin is the floor clients must not re-announce under.
	IntervalMin time.Duration `yaml:"interval_min"`
}

// TrackerPolicy groups the knobs of the torrent maintenance behavior.
type TrackerPolicy struct {
	// MaxPeerTimeout is how long a peer may go without announcing before
	// maintenance evicts it.
	MaxPeerTimeout time.Duration `yaml:"max_peer_timeout"`

	// RemovePeerlessTorrents drops torrent entries once their peer table
	// drains.
	RemovePeerlessTorrents bool `yaml:"remove_peerless_torrents"`

	// PersistentTorrentCompletedStat mirrors the download counter to the
	// database whenever an announce changes the swarm metadata.
	PersistentTorrentCompletedStat bool `yaml:"persistent_torrent_completed_stat"`
}

// PrivateMode groups the knobs of key authentication.
type PrivateMode struct {
	// CheckKeysExpiration controls whether expired keys are rejected.
	CheckKeysExpiration bool `yaml:"check_keys_expiration"`
}

// Net groups the client IP resolution options.
type Net struct {
	// OnReverseProxy resolves HTTP client addresses from the right-most
	// X-Forwarded-For entry instead of the connection remote.
	OnReverseProxy bool `yaml:"on_reverse_proxy"`

	// ExternalIP, when set, replaces loopback client addresses so a
	// tracker co-located with its clients still publishes a routable
	// address.
	ExternalIP string `yaml:"external_ip"`
}

// ExternalAddr parses the configured external IP. The second return value
// reports whether one is configured.
func (n Net) ExternalAddr() (netip.Addr, bool) {
	if n.ExternalIP == "" {
		return netip.Addr{}, false
	}

	addr, err := netip.ParseAddr(n.ExternalIP)
	if err != nil {
		return netip.Addr{}, false
	}

	return addr, true
}

// Config is the core tracker configuration shared by the handlers and the
// maintenance loop.
type Config struct {
	// Listed enables whitelist enforcement on announce and scrape.
	Listed bool `yaml:"listed"`

	// Private enables key authentication on HTTP announce and scrape.
	Private bool `yaml:"private"`

	PrivateMode PrivateMode `yaml:"private_mode"`

	TrackerPolicy TrackerPolicy `yaml:"tracker_policy"`

	AnnouncePolicy AnnouncePolicy `yaml:"announce_policy"`

	// InactivePeerCleanupInterval is the period of the maintenance loop.
	InactivePeerCleanupInterval time.Duration `yaml:"inactive_peer_cleanup_interval"`

	Net Net `yaml:"net"`
}

// LogFields renders the current config as a set of Logrus fields.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"listed":                      cfg.Listed,
		"private":                     cfg.Private,
		"checkKeysExpiration":         cfg.PrivateMode.CheckKeysExpiration,
		"maxPeerTimeout":              cfg.TrackerPolicy.MaxPeerTimeout,
		"removePeerlessTorrents":      cfg.TrackerPolicy.RemovePeerlessTorrents,
		"persistentCompletedStat":     cfg.TrackerPolicy.PersistentTorrentCompletedStat,
		"announceInterval":            cfg.AnnouncePolicy.Interval,
		"announceIntervalMin":         cfg.AnnouncePolicy.IntervalMin,
		"inactivePeerCleanupInterval": cfg.InactivePeerCleanupInterval,
		"onReverseProxy":              cfg.Net.OnReverseProxy,
		"externalIP":                  cfg.Net.ExternalIP,
	}
}

// Validate sanity checks values set in a config and returns a new config
// with default values replacing anything that is invalid.
//
// This function warns to the logger when a value is changed.
func (cfg Config) Validate() Config {
	validcfg := cfg

	if cfg.AnnouncePolicy.Interval <= 0 {
		validcfg.AnnouncePolicy.Interval = defaultAnnounceInterval
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "tracker.AnnouncePolicy.Interval",
			"provided": cfg.AnnouncePolicy.Interval,
			"default":  validcfg.AnnouncePolicy.Interval,
		})
	}

	if cfg.AnnouncePolicy.IntervalMin <= 0 {
		validcfg.AnnouncePolicy.IntervalMin = defaultAnnounceIntervalMin
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "tracker.AnnouncePolicy.IntervalMin",
			"provided": cfg.AnnouncePolicy.IntervalMin,
			"default":  validcfg.AnnouncePolicy.IntervalMin,
		})
	}

	if cfg.TrackerPolicy.MaxPeerTimeout <= 0 {
		validcfg.TrackerPolicy.MaxPeerTimeout = defaultMaxPeerTimeout
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "tracker.TrackerPolicy.MaxPeerTimeout",
			"provided": cfg.TrackerPolicy.MaxPeerTimeout,
			"default":  validcfg.TrackerPolicy.MaxPeerTimeout,
		})
	}

	if cfg.InactivePeerCleanupInterval <= 0 {
		validcfg.InactivePeerCleanupInterval = defaultInactivePeerCleanupInterval
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "tracker.InactivePeerCleanupInterval",
			"provided": cfg.InactivePeerCleanupInterval,
			"default":  validcfg.InactivePeerCleanupInterval,
		})
	}

	if cfg.Net.ExternalIP != "" {
		if _, ok := cfg.Net.ExternalAddr(); !ok {
			validcfg.Net.ExternalIP = ""
			log.Warn("ignoring unparseable external IP", log.Fields{
				"name":     "tracker.Net.ExternalIP",
				"provided": cfg.Net.ExternalIP,
			})
		}
	}

	return validcfg
}
