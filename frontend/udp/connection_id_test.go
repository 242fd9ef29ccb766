package udp

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

const testPrivateKey = "pQwVW2NFOAGQxEOqRJ4rAPmLbvEIlYPs"

func newTestCookie(t *testing.T) *ConnectionCookie {
	t.Helper()

	cc, err := NewConnectionCookie([]byte(testPrivateKey))
	require.NoError(t, err)
	return cc
}

func TestRemoteFingerprintIsStablePerSource(t *testing.T) {
	a := netip.MustParseAddrPort("126.0.0.1:8081")
	b := netip.MustParseAddrPort("126.0.0.2:8081")
	c := netip.MustParseAddrPort("126.0.0.1:8082")

	require.Equal(t, RemoteFingerprint(a), RemoteFingerprint(a))
	require.NotEqual(t, RemoteFingerprint(a), RemoteFingerprint(b))
	require.NotEqual(t, RemoteFingerprint(a), RemoteFingerprint(c))
}

func TestCookieRoundTripWithinLifetime(t *testing.T) {
	cc := newTestCookie(t)
	fingerprint := RemoteFingerprint(netip.MustParseAddrPort("126.0.0.1:8081"))

	issueTime := 1000000.0
	id := cc.Make(fingerprint, issueTime)

	// Accepted at issuance and right up to the end of the lifetime.
	require.NoError(t, cc.Check(id, fingerprint, issueTime-121, issueTime+1))
	require.NoError(t, cc.Check(id, fingerprint, issueTime-0.5, issueTime+1))
}

func TestCookieExpires(t *testing.T) {
	cc := newTestCookie(t)
	fingerprint := RemoteFingerprint(netip.MustParseAddrPort("126.0.0.1:8081"))

	issueTime := 1000000.0
	id := cc.Make(fingerprint, issueTime)

	// Two minutes plus slack after issuance the window has moved past the
	// cookie.
	now := issueTime + 200
	err := cc.Check(id, fingerprint, now-121, now+1)
	require.ErrorIs(t, err, errCookieExpired)
}

func TestCookieFromFutureIsRejected(t *testing.T) {
	cc := newTestCookie(t)
	fingerprint := RemoteFingerprint(netip.MustParseAddrPort("126.0.0.1:8081"))

	issueTime := 1000000.0
	id := cc.Make(fingerprint, issueTime)

	now := issueTime - 100
	err := cc.Check(id, fingerprint, now-121, now+1)
	require.ErrorIs(t, err, errCookieFromFuture)
}

func TestCookieBoundToSourceAddress(t *testing.T) {
	cc := newTestCookie(t)

	source := netip.MustParseAddrPort("126.0.0.1:8081")
	other := netip.MustParseAddrPort("126.0.0.2:8081")

	issueTime := 1000000.0
	id := cc.Make(RemoteFingerprint(source), issueTime)

	// Presenting the same cookie from a different source flips the
	// decrypted issue time to garbage, so it cannot fall in the window.
	err := cc.Check(id, RemoteFingerprint(other), issueTime-121, issueTime+1)
	require.Error(t, err)
}

func TestCookieDiffersPerSource(t *testing.T) {
	cc := newTestCookie(t)

	issueTime := 1000000.0
	a := cc.Make(RemoteFingerprint(netip.MustParseAddrPort("126.0.0.1:8081")), issueTime)
	b := cc.Make(RemoteFingerprint(netip.MustParseAddrPort("126.0.0.2:8081")), issueTime)

	require.NotEqual(t, a, b)
}

func TestBanServiceCeiling(t *testing.T) {
	ban := NewBanService(3)
	addr := netip.MustParseAddr("126.0.0.1")

	require.False(t, ban.IsBanned(addr))

	ban.IncreaseCounter(addr)
	ban.IncreaseCounter(addr)
	require.False(t, ban.IsBanned(addr))

	ban.IncreaseCounter(addr)
	require.True(t, ban.IsBanned(addr))

	// Other sources are unaffected.
	require.False(t, ban.IsBanned(netip.MustParseAddr("126.0.0.2")))

	// The window rollover forgets the counters.
	ban.ResetBannedIPs()
	require.False(t, ban.IsBanned(addr))
}
