// Package auth implements the peer-key authentication used by HTTP trackers
// running in private mode.
package auth

import (
	"crypto/rand"
	"math"
	"math/big"

	"github.com/pkg/errors"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
	"github.com/nuts-rice/torrust-tracker/pkg/timecache"
)

// KeyLength is the exact length of a peer key.
const KeyLength = 32

// keyCharset is the alphabet keys are drawn from.
const keyCharset = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Client-visible authentication failures.
var (
	// ErrMissingKey is returned when private mode requires a key and none
	// was supplied.
	ErrMissingKey = bittorrent.ClientError("missing authentication key")

	// ErrUnknownKey is returned when the supplied key is not registered.
	ErrUnknownKey = bittorrent.ClientError("unknown authentication key")

	// ErrExpiredKey is returned when the supplied key is past its expiry.
	ErrExpiredKey = bittorrent.ClientError("expired authentication key")
)

// Administrative key-creation failures.
var (
	// ErrInvalidKey is returned when a key string is not 32 alphanumeric
	// characters.
	ErrInvalidKey = errors.New("auth: key must be 32 alphanumeric characters")

	// ErrDurationOverflow is returned when a key lifetime would overflow
	// the expiry timestamp.
	ErrDurationOverflow = errors.New("auth: lifetime overflows the expiry timestamp")
)

// Key is a 32-character authentication token, drawn from [0-9a-zA-Z].
type Key string

// ParseKey validates a key string.
func ParseKey(s string) (Key, error) {
	if len(s) != KeyLength {
		return "", ErrInvalidKey
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z') {
			return "", ErrInvalidKey
		}
	}
	return Key(s), nil
}

// PeerKey is a registered authentication token with an optional expiry.
type PeerKey struct {
	Key Key `json:"key"`

	// ValidUntil is the expiry as whole seconds since the Unix Epoch.
	// Zero means the key is permanent.
	ValidUntil int64 `json:"valid_until,omitempty"`
}

// IsPermanent reports whether the key never expires.
func (pk PeerKey) IsPermanent() bool { return pk.ValidUntil == 0 }

// IsExpiredAt reports whether the key is past its expiry at the given time
// in seconds since the Unix Epoch.
func (pk PeerKey) IsExpiredAt(now int64) bool {
	return !pk.IsPermanent() && pk.ValidUntil < now
}

// GenerateKey produces a fresh random peer key.
//
// A lifetime of zero seconds produces a permanent key; a positive lifetime
// expires the key that many seconds from now. Lifetimes that would overflow
// the expiry timestamp are refused with ErrDurationOverflow.
func GenerateKey(lifetimeSecs int64) (PeerKey, error) {
	if lifetimeSecs < 0 {
		return PeerKey{}, ErrInvalidKey
	}

	buf := make([]byte, KeyLength)
	max := big.NewInt(int64(len(keyCharset)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return PeerKey{}, errors.Wrap(err, "auth: failed to read entropy")
		}
		buf[i] = keyCharset[n.Int64()]
	}

	peerKey := PeerKey{Key: Key(buf)}
	if lifetimeSecs > 0 {
		now := timecache.NowUnix()
		if lifetimeSecs > math.MaxInt64-now {
			return PeerKey{}, ErrDurationOverflow
		}
		peerKey.ValidUntil = now + lifetimeSecs
	}

	return peerKey, nil
}
