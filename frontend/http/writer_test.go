package http

import (
	"errors"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteError(w, bittorrent.ClientError("something is missing")))

	var decoded map[string]interface{}
	require.NoError(t, bencode.DecodeBytes(w.Body.Bytes(), &decoded))
	require.Equal(t, "something is missing", decoded["failure reason"])
}

func TestWriteErrorHidesInternalErrors(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteError(w, errors.New("database exploded")))

	var decoded map[string]interface{}
	require.NoError(t, bencode.DecodeBytes(w.Body.Bytes(), &decoded))
	require.Equal(t, "internal server error", decoded["failure reason"])
}

func TestWriteAnnounceResponseNonCompact(t *testing.T) {
	w := httptest.NewRecorder()

	resp := &bittorrent.AnnounceResponse{
		Interval:    120 * time.Second,
		MinInterval: 60 * time.Second,
		Complete:    1,
		Incomplete:  2,
		Peers: []bittorrent.Peer{
			{
				ID:       bittorrent.PeerIDFromString("-qB00000000000000001"),
				AddrPort: netip.MustParseAddrPort("126.0.0.1:8081"),
			},
		},
	}

	require.NoError(t, WriteAnnounceResponse(w, resp))

	var decoded struct {
		Complete   int64 `bencode:"complete"`
		Incomplete int64 `bencode:"incomplete"`
		Interval   int64 `bencode:"interval"`
		MinIntvl   int64 `bencode:"min interval"`
		Peers      []struct {
			PeerID string `bencode:"peer id"`
			IP     string `bencode:"ip"`
			Port   int64  `bencode:"port"`
		} `bencode:"peers"`
	}
	require.NoError(t, bencode.DecodeBytes(w.Body.Bytes(), &decoded))

	require.Equal(t, int64(1), decoded.Complete)
	require.Equal(t, int64(2), decoded.Incomplete)
	require.Equal(t, int64(120), decoded.Interval)
	require.Equal(t, int64(60), decoded.MinIntvl)
	require.Len(t, decoded.Peers, 1)
	require.Equal(t, "-qB00000000000000001", decoded.Peers[0].PeerID)
	require.Equal(t, "126.0.0.1", decoded.Peers[0].IP)
	require.Equal(t, int64(8081), decoded.Peers[0].Port)
}

func TestWriteAnnounceResponseCompact(t *testing.T) {
	w := httptest.NewRecorder()

	resp := &bittorrent.AnnounceResponse{
		Interval:   120 * time.Second,
		Complete:   1,
		Incomplete: 1,
		Compact:    true,
		Peers: []bittorrent.Peer{
			{AddrPort: netip.MustParseAddrPort("126.0.0.1:8081")},
			{AddrPort: netip.MustParseAddrPort("[2001:db8::1]:8082")},
		},
	}

	require.NoError(t, WriteAnnounceResponse(w, resp))

	var decoded struct {
		Peers  string `bencode:"peers"`
		Peers6 string `bencode:"peers6"`
	}
	require.NoError(t, bencode.DecodeBytes(w.Body.Bytes(), &decoded))

	require.Equal(t, []byte{126, 0, 0, 1, 0x1f, 0x91}, []byte(decoded.Peers))
	require.Len(t, decoded.Peers6, 18)
}

func TestWriteScrapeResponse(t *testing.T) {
	w := httptest.NewRecorder()

	ih := bittorrent.InfoHashFromString("AAAAAAAAAAAAAAAAAAAA")
	resp := &bittorrent.ScrapeResponse{
		Files: []bittorrent.Scrape{
			{InfoHash: ih, Complete: 3, Downloaded: 2, Incomplete: 1},
		},
	}

	require.NoError(t, WriteScrapeResponse(w, resp))

	var decoded struct {
		Files map[string]struct {
			Complete   int64 `bencode:"complete"`
			Downloaded int64 `bencode:"downloaded"`
			Incomplete int64 `bencode:"incomplete"`
		} `bencode:"files"`
	}
	require.NoError(t, bencode.DecodeBytes(w.Body.Bytes(), &decoded))

	file, ok := decoded.Files[string(ih[:])]
	require.True(t, ok)
	require.Equal(t, int64(3), file.Complete)
	require.Equal(t, int64(2), file.Downloaded)
	require.Equal(t, int64(1), file.Incomplete)
}
