package memory

import (
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
	"github.com/nuts-rice/torrust-tracker/storage"
)

func benchStore(b *testing.B) storage.SwarmStore {
	b.Helper()

	ss, err := New(Config{ShardCount: 1024, PrometheusReportingInterval: time.Minute})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { <-ss.Stop() })

	return ss
}

func benchPeer(n int) bittorrent.Peer {
	return bittorrent.Peer{
		ID:       numericPeerID(n % 100000),
		AddrPort: netip.AddrPortFrom(netip.AddrFrom4([4]byte{10, byte(n >> 16), byte(n >> 8), byte(n)}), 6881),
		Updated:  1000000,
		Left:     int64(n % 2),
	}
}

func benchInfoHash(n int) bittorrent.InfoHash {
	return bittorrent.InfoHashFromString(fmt.Sprintf("%020d", n%1000))
}

func BenchmarkUpsertPeer(b *testing.B) {
	ss := benchStore(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ss.UpsertPeer(benchInfoHash(i), benchPeer(i))
	}
}

func BenchmarkGetPeersForClient(b *testing.B) {
	ss := benchStore(b)
	for i := 0; i < 1000; i++ {
		ss.UpsertPeer(benchInfoHash(0), benchPeer(i))
	}
	client := netip.MustParseAddrPort("192.168.0.1:9999")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ss.GetPeersForClient(benchInfoHash(0), client, storage.TorrentPeersLimit)
	}
}

func BenchmarkGetSwarmMetadata(b *testing.B) {
	ss := benchStore(b)
	for i := 0; i < 1000; i++ {
		ss.UpsertPeer(benchInfoHash(i), benchPeer(i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ss.GetSwarmMetadata(benchInfoHash(i))
	}
}
