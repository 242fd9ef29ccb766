// Package mysql implements the persistence gateway on top of a MySQL
// server.
package mysql

import (
	"database/sql"

	_ "github.com/go-sql-driver/mysql" // register the mysql sql driver
	"github.com/pkg/errors"

	"github.com/nuts-rice/torrust-tracker/auth"
	"github.com/nuts-rice/torrust-tracker/bittorrent"
	"github.com/nuts-rice/torrust-tracker/database"
)

// Name is the name by which this driver is registered.
const Name = "mysql"

func init() {
	database.RegisterDriver(Name, driver{})
}

type driver struct{}

func (d driver) NewDatabase(cfg database.Config) (database.Database, error) {
	pool, err := sql.Open("mysql", cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, "mysql: failed to open database")
	}

	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := pool.Ping(); err != nil {
		return nil, errors.Wrap(err, "mysql: failed to reach database")
	}

	return &store{pool: pool}, nil
}

type store struct {
	pool *sql.DB
}

var _ database.Database = &store{}

func (s *store) CreateTables() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS whitelist (
			id INT NOT NULL AUTO_INCREMENT,
			info_hash VARCHAR(40) NOT NULL,
			PRIMARY KEY (id),
			UNIQUE KEY (info_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS torrents (
			id INT NOT NULL AUTO_INCREMENT,
			info_hash VARCHAR(40) NOT NULL,
			completed INT UNSIGNED NOT NULL DEFAULT 0,
			PRIMARY KEY (id),
			UNIQUE KEY (info_hash)
		)`,
		"CREATE TABLE IF NOT EXISTS `keys` (" +
			"id INT NOT NULL AUTO_INCREMENT, " +
			"`key` VARCHAR(32) NOT NULL, " +
			"valid_until BIGINT, " +
			"PRIMARY KEY (id), " +
			"UNIQUE KEY (`key`))",
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(stmt); err != nil {
			return errors.Wrap(err, "mysql: failed to create tables")
		}
	}

	return nil
}

func (s *store) DropTables() error {
	for _, table := range []string{"whitelist", "torrents", "`keys`"} {
		if _, err := s.pool.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return errors.Wrap(err, "mysql: failed to drop table "+table)
		}
	}

	return nil
}

func (s *store) LoadPersistentTorrents() (map[bittorrent.InfoHash]uint32, error) {
	rows, err := s.pool.Query("SELECT info_hash, completed FROM torrents")
	if err != nil {
		return nil, errors.Wrap(err, "mysql: failed to load persistent torrents")
	}
	defer rows.Close()

	torrents := make(map[bittorrent.InfoHash]uint32)
	for rows.Next() {
		var (
			hex       string
			completed uint32
		)
		if err := rows.Scan(&hex, &completed); err != nil {
			return nil, errors.Wrap(err, "mysql: failed to scan torrent row")
		}

		ih, err := bittorrent.InfoHashFromHex(hex)
		if err != nil {
			return nil, errors.Wrap(err, "mysql: malformed infohash in torrents table")
		}

		torrents[ih] = completed
	}

	return torrents, rows.Err()
}

func (s *store) SavePersistentTorrent(ih bittorrent.InfoHash, downloaded uint32) error {
	_, err := s.pool.Exec(
		"INSERT INTO torrents (info_hash, completed) VALUES (?, ?) ON DUPLICATE KEY UPDATE completed = VALUES(completed)",
		ih.String(), downloaded,
	)
	return errors.Wrap(err, "mysql: failed to save persistent torrent")
}

func (s *store) LoadWhitelist() ([]bittorrent.InfoHash, error) {
	rows, err := s.pool.Query("SELECT info_hash FROM whitelist")
	if err != nil {
		return nil, errors.Wrap(err, "mysql: failed to load whitelist")
	}
	defer rows.Close()

	var ihs []bittorrent.InfoHash
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, errors.Wrap(err, "mysql: failed to scan whitelist row")
		}

		ih, err := bittorrent.InfoHashFromHex(hex)
		if err != nil {
			return nil, errors.Wrap(err, "mysql: malformed infohash in whitelist table")
		}

		ihs = append(ihs, ih)
	}

	return ihs, rows.Err()
}

func (s *store) AddInfoHashToWhitelist(ih bittorrent.InfoHash) error {
	_, err := s.pool.Exec("INSERT IGNORE INTO whitelist (info_hash) VALUES (?)", ih.String())
	return errors.Wrap(err, "mysql: failed to whitelist infohash")
}

func (s *store) RemoveInfoHashFromWhitelist(ih bittorrent.InfoHash) error {
	res, err := s.pool.Exec("DELETE FROM whitelist WHERE info_hash = ?", ih.String())
	if err != nil {
		return errors.Wrap(err, "mysql: failed to remove whitelisted infohash")
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "mysql: failed to count deleted rows")
	}
	if deleted == 0 {
		return database.ErrResourceDoesNotExist
	}

	return nil
}

func (s *store) IsInfoHashWhitelisted(ih bittorrent.InfoHash) (bool, error) {
	var hex string
	err := s.pool.QueryRow("SELECT info_hash FROM whitelist WHERE info_hash = ?", ih.String()).Scan(&hex)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "mysql: failed to query whitelist")
	}

	return true, nil
}

func (s *store) LoadKeys() ([]auth.PeerKey, error) {
	rows, err := s.pool.Query("SELECT `key`, valid_until FROM `keys`")
	if err != nil {
		return nil, errors.Wrap(err, "mysql: failed to load keys")
	}
	defer rows.Close()

	var peerKeys []auth.PeerKey
	for rows.Next() {
		var (
			key        string
			validUntil sql.NullInt64
		)
		if err := rows.Scan(&key, &validUntil); err != nil {
			return nil, errors.Wrap(err, "mysql: failed to scan key row")
		}

		parsed, err := auth.ParseKey(key)
		if err != nil {
			return nil, errors.Wrap(err, "mysql: malformed key in keys table")
		}

		peerKey := auth.PeerKey{Key: parsed}
		if validUntil.Valid {
			peerKey.ValidUntil = validUntil.Int64
		}
		peerKeys = append(peerKeys, peerKey)
	}

	return peerKeys, rows.Err()
}

func (s *store) AddKey(peerKey auth.PeerKey) error {
	validUntil := sql.NullInt64{Int64: peerKey.ValidUntil, Valid: !peerKey.IsPermanent()}

	_, err := s.pool.Exec("INSERT INTO `keys` (`key`, valid_until) VALUES (?, ?)", string(peerKey.Key), validUntil)
	return errors.Wrap(err, "mysql: failed to add key")
}

func (s *store) GetKey(key auth.Key) (*auth.PeerKey, error) {
	var (
		stored     string
		validUntil sql.NullInt64
	)
	err := s.pool.QueryRow("SELECT `key`, valid_until FROM `keys` WHERE `key` = ?", string(key)).Scan(&stored, &validUntil)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "mysql: failed to query key")
	}

	peerKey := &auth.PeerKey{Key: auth.Key(stored)}
	if validUntil.Valid {
		peerKey.ValidUntil = validUntil.Int64
	}
	return peerKey, nil
}

func (s *store) RemoveKey(key auth.Key) error {
	res, err := s.pool.Exec("DELETE FROM `keys` WHERE `key` = ?", string(key))
	if err != nil {
		return errors.Wrap(err, "mysql: failed to remove key")
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "mysql: failed to count deleted rows")
	}
	if deleted == 0 {
		return database.ErrResourceDoesNotExist
	}

	return nil
}

func (s *store) Close() error {
	return s.pool.Close()
}
