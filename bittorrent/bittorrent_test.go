package bittorrent

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfoHashHexRoundTrip(t *testing.T) {
	const hex = "3b245504cf5f11bbdbe1201cea6a6bf45aee1bc0"

	ih, err := InfoHashFromHex(hex)
	require.NoError(t, err)
	require.Equal(t, hex, ih.String())
}

func TestInfoHashFromHexRejectsBadInput(t *testing.T) {
	_, err := InfoHashFromHex("deadbeef")
	require.Error(t, err)

	_, err = InfoHashFromHex("zz245504cf5f11bbdbe1201cea6a6bf45aee1bc0")
	require.Error(t, err)
}

func TestInfoHashFromStringPanicsOnBadLength(t *testing.T) {
	require.Panics(t, func() { InfoHashFromString("too short") })
}

func TestPeerIDFromStringPanicsOnBadLength(t *testing.T) {
	require.Panics(t, func() { PeerIDFromString("too short") })
}

func TestPeerSeederLeecher(t *testing.T) {
	seeder := Peer{Left: 0}
	require.True(t, seeder.IsSeeder())

	leecher := Peer{Left: 1}
	require.False(t, leecher.IsSeeder())
}

func TestPeerEqualEndpoint(t *testing.T) {
	a := Peer{ID: PeerIDFromString("-qB00000000000000001"), AddrPort: netip.MustParseAddrPort("126.0.0.1:8081")}
	b := Peer{ID: PeerIDFromString("-qB00000000000000002"), AddrPort: netip.MustParseAddrPort("126.0.0.1:8081")}
	c := Peer{ID: PeerIDFromString("-qB00000000000000001"), AddrPort: netip.MustParseAddrPort("126.0.0.1:8082")}

	require.True(t, a.EqualEndpoint(b))
	require.False(t, a.EqualEndpoint(c))
}
