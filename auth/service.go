package auth

import (
	"github.com/nuts-rice/torrust-tracker/pkg/log"
	"github.com/nuts-rice/torrust-tracker/pkg/timecache"
)

// Config holds the authentication policy of the tracker.
type Config struct {
	// Private requires HTTP announce/scrape clients to present a valid
	// key.
	Private bool `yaml:"private"`

	// CheckKeysExpiration controls whether expired keys are rejected.
	// When false, a registered but expired key still authenticates.
	CheckKeysExpiration bool `yaml:"check_keys_expiration"`
}

// LogFields renders the current config as a set of Logrus fields.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"private":             cfg.Private,
		"checkKeysExpiration": cfg.CheckKeysExpiration,
	}
}

// Service answers the authentication question consulted by HTTP handlers on
// every announce and scrape.
type Service struct {
	cfg  Config
	repo *Repository
}

// NewService allocates a Service over the given key repository.
func NewService(cfg Config, repo *Repository) *Service {
	return &Service{cfg: cfg, repo: repo}
}

// Private reports whether the tracker requires authentication.
func (s *Service) Private() bool { return s.cfg.Private }

// Authenticate checks a key string supplied by a client. The empty string
// means no key was supplied.
//
// In public mode every request authenticates. In private mode the key must
// be present, registered, and, unless expiration checking is disabled,
// unexpired.
func (s *Service) Authenticate(key string) error {
	if !s.cfg.Private {
		return nil
	}

	if key == "" {
		return ErrMissingKey
	}

	parsed, err := ParseKey(key)
	if err != nil {
		return ErrUnknownKey
	}

	peerKey := s.repo.Get(parsed)
	if peerKey == nil {
		return ErrUnknownKey
	}

	if !s.cfg.CheckKeysExpiration {
		return nil
	}

	if peerKey.IsExpiredAt(timecache.NowUnix()) {
		return ErrExpiredKey
	}

	return nil
}
