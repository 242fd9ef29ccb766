package bittorrent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	testPeerID = "-TEST01-6wfG2wk6wWLc"

	ValidAnnounceArguments = []string{
		"peer_id=" + testPeerID + "&port=6881&downloaded=1234&left=4321",
		"peer_id=" + testPeerID + "&ip=192.168.0.1&port=6881&downloaded=1234&left=4321",
		"peer_id=" + testPeerID + "&port=6881&downloaded=1234&left=4321&numwant=28",
		"peer_id=" + testPeerID + "&compact=1",
	}

	InvalidQueries = []string{
		"/announce?" + "info_hash=%0%a",
		"/announce?" + "?info_hash=%?",
	}
)

func TestParseEmptyURLData(t *testing.T) {
	parsedQuery, err := ParseURLData("")
	require.NoError(t, err)
	require.NotNil(t, parsedQuery)
}

func TestParseValidURLData(t *testing.T) {
	for _, parseStr := range ValidAnnounceArguments {
		t.Run(parseStr, func(t *testing.T) {
			parsedQueryObj, err := ParseURLData("/announce?" + parseStr)
			require.NoError(t, err)

			peerID, ok := parsedQueryObj.String("peer_id")
			if ok {
				require.Equal(t, testPeerID, peerID)
			}

			require.Equal(t, "/announce", parsedQueryObj.RawPath())
			require.Equal(t, parseStr, parsedQueryObj.RawQuery())
		})
	}
}

func TestParseInvalidURLData(t *testing.T) {
	for _, parseStr := range InvalidQueries {
		t.Run(parseStr, func(t *testing.T) {
			parsedQueryObj, err := ParseURLData(parseStr)
			require.Error(t, err)
			require.Nil(t, parsedQueryObj)
		})
	}
}

func TestParseInfoHashes(t *testing.T) {
	raw := "aaaaaaaaaaaaaaaaaaaa"
	other := "bbbbbbbbbbbbbbbbbbbb"

	q, err := ParseURLData("/scrape?info_hash=" + raw + "&info_hash=" + other)
	require.NoError(t, err)
	require.Equal(t, []InfoHash{InfoHashFromString(raw), InfoHashFromString(other)}, q.InfoHashes())
}

func TestParseInvalidInfoHash(t *testing.T) {
	_, err := ParseURLData("/announce?info_hash=short")
	require.ErrorIs(t, err, ErrInvalidInfohash)
}

func TestUint64(t *testing.T) {
	q, err := ParseURLData("/announce?left=4321&port=notanumber")
	require.NoError(t, err)

	left, err := q.Uint64("left")
	require.NoError(t, err)
	require.Equal(t, uint64(4321), left)

	_, err = q.Uint64("port")
	require.Error(t, err)

	_, err = q.Uint64("missing")
	require.Error(t, err)
}
