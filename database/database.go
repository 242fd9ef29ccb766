// Package database abstracts the durable storage consulted by the tracker:
// lifetime download counters, the torrent whitelist, and authentication
// keys. Peer lists are never persisted.
package database

import (
	"github.com/pkg/errors"

	"github.com/nuts-rice/torrust-tracker/auth"
	"github.com/nuts-rice/torrust-tracker/bittorrent"
	"github.com/nuts-rice/torrust-tracker/pkg/log"
)

var (
	// ErrResourceDoesNotExist is returned when a delete or lookup
	// references a row that is not present.
	ErrResourceDoesNotExist = errors.New("database: resource does not exist")

	// ErrDriverDoesNotExist is returned when a database driver is
	// requested that has not been registered.
	ErrDriverDoesNotExist = errors.New("database: driver does not exist")
)

// Config holds the configuration for connecting a database driver.
type Config struct {
	// Driver selects a registered driver by name.
	Driver string `yaml:"driver"`

	// Path is the driver-specific data source: a file path for sqlite3, a
	// DSN for mysql.
	Path string `yaml:"path"`

	// MaxOpenConns bounds the connection pool. Zero leaves the driver
	// default in place.
	MaxOpenConns int `yaml:"max_open_conns"`
}

// LogFields renders the current config as a set of Logrus fields.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"driver":       cfg.Driver,
		"path":         cfg.Path,
		"maxOpenConns": cfg.MaxOpenConns,
	}
}

// Database is the gateway to durable tracker state.
//
// All write operations are synchronous from the caller's perspective, and
// implementations must be safe for concurrent calls from many handlers.
type Database interface {
	// CreateTables creates the torrents, whitelist and keys tables when
	// they do not exist yet.
	CreateTables() error

	// DropTables removes the three tables.
	DropTables() error

	// LoadPersistentTorrents returns the download counter of every
	// persisted torrent.
	LoadPersistentTorrents() (map[bittorrent.InfoHash]uint32, error)

	// SavePersistentTorrent upserts the download counter of a torrent.
	SavePersistentTorrent(ih bittorrent.InfoHash, downloaded uint32) error

	// LoadWhitelist returns every whitelisted infohash.
	LoadWhitelist() ([]bittorrent.InfoHash, error)

	// AddInfoHashToWhitelist inserts an infohash into the whitelist. It is
	// a no-op when the infohash is already present.
	AddInfoHashToWhitelist(ih bittorrent.InfoHash) error

	// RemoveInfoHashFromWhitelist removes an infohash from the whitelist.
	// It returns ErrResourceDoesNotExist when the infohash is unknown.
	RemoveInfoHashFromWhitelist(ih bittorrent.InfoHash) error

	// IsInfoHashWhitelisted reports whether an infohash is whitelisted.
	IsInfoHashWhitelisted(ih bittorrent.InfoHash) (bool, error)

	// LoadKeys returns every persisted peer key.
	LoadKeys() ([]auth.PeerKey, error)

	// AddKey persists a peer key.
	AddKey(peerKey auth.PeerKey) error

	// GetKey returns the persisted peer key for a key string, or nil when
	// unknown.
	GetKey(key auth.Key) (*auth.PeerKey, error)

	// RemoveKey deletes a peer key. It returns ErrResourceDoesNotExist
	// when the key is unknown.
	RemoveKey(key auth.Key) error

	// Close releases the underlying connection pool.
	Close() error
}

// Driver constructs a Database from a Config.
type Driver interface {
	NewDatabase(cfg Config) (Database, error)
}

var drivers = make(map[string]Driver)

// RegisterDriver makes a Driver available by the provided name.
//
// If called twice with the same name, the name is blank, or if the provided
// Driver is nil, this function panics.
func RegisterDriver(name string, d Driver) {
	if name == "" {
		panic("database: could not register a Driver with an empty name")
	}
	if d == nil {
		panic("database: could not register a nil Driver")
	}

	if _, dup := drivers[name]; dup {
		panic("database: RegisterDriver called twice for " + name)
	}

	drivers[name] = d
}

// New attempts to construct a Database with the driver named in the config.
func New(cfg Config) (Database, error) {
	d, ok := drivers[cfg.Driver]
	if !ok {
		return nil, errors.Wrap(ErrDriverDoesNotExist, cfg.Driver)
	}

	return d.NewDatabase(cfg)
}
