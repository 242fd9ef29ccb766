package udp

import (
	"encoding/binary"
	"math"
	"net/netip"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blowfish"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
	"github.com/nuts-rice/torrust-tracker/pkg/log"
)

// Cookie failures are client-visible and feed the per-source ban counter.
var (
	errCookieMalformed  = bittorrent.ClientError("connection cookie is not valid")
	errCookieExpired    = bittorrent.ClientError("connection cookie expired")
	errCookieFromFuture = bittorrent.ClientError("connection cookie from the future")
)

// RemoteFingerprint hashes a datagram source address (IP and port) into the
// 64 bits a connection cookie is bound to.
func RemoteFingerprint(from netip.AddrPort) uint64 {
	b, err := from.MarshalBinary()
	if err != nil {
		panic("netip.AddrPort.MarshalBinary() returned an error: " + err.Error())
	}
	return xxhash.Sum64(b)
}

// A ConnectionCookie mints and verifies the 8-byte connection ids required
// by BEP 15, without any per-client state on the server.
//
// The id is the block-cipher encryption of the source-address fingerprint
// XORed with the issue time. The XOR binds the cookie to the client
// address; the encryption hides the issue time so clients cannot forge
// cookies by observation. The cipher is keyed once for the lifetime of the
// process.
type ConnectionCookie struct {
	cipher *blowfish.Cipher
}

// NewConnectionCookie creates a ConnectionCookie keyed with the given
// secret.
func NewConnectionCookie(secret []byte) (*ConnectionCookie, error) {
	cipher, err := blowfish.NewCipher(secret)
	if err != nil {
		return nil, err
	}

	return &ConnectionCookie{cipher: cipher}, nil
}

// Make mints a connection id for a source fingerprint at the given issue
// time, expressed as IEEE-754 double-precision seconds since the Unix
// Epoch.
func (cc *ConnectionCookie) Make(fingerprint uint64, issueTime float64) [8]byte {
	var src, dst [8]byte

	binary.BigEndian.PutUint64(src[:], fingerprint^math.Float64bits(issueTime))
	cc.cipher.Encrypt(dst[:], src[:])

	return dst
}

// Check verifies a connection id presented from a source with the given
// fingerprint. The claimed issue time must fall within [minTime, maxTime];
// the caller widens the range by one second on both ends to absorb
// subsecond issuance drift.
func (cc *ConnectionCookie) Check(connID [8]byte, fingerprint uint64, minTime, maxTime float64) error {
	var dst [8]byte
	cc.cipher.Decrypt(dst[:], connID[:])

	issueTime := math.Float64frombits(binary.BigEndian.Uint64(dst[:]) ^ fingerprint)

	if math.IsNaN(issueTime) || math.IsInf(issueTime, 0) {
		return errCookieMalformed
	}
	if issueTime < minTime {
		return errCookieExpired
	}
	if issueTime > maxTime {
		return errCookieFromFuture
	}

	log.Debug("validated connection cookie", log.Fields{
		"fingerprint": fingerprint,
		"issueTime":   issueTime,
	})
	return nil
}
