package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
)

func buildAnnouncePacket(event uint32, numWant int32, port uint16) []byte {
	var buf bytes.Buffer

	buf.Write(make([]byte, 8))                             // connection_id
	_ = binary.Write(&buf, binary.BigEndian, announceActionID) // action
	buf.Write([]byte{0, 0, 0, 1})                          // transaction_id
	buf.WriteString("AAAAAAAAAAAAAAAAAAAA")                // info_hash
	buf.WriteString("-qB00000000000000001")                // peer_id
	_ = binary.Write(&buf, binary.BigEndian, uint64(1234)) // downloaded
	_ = binary.Write(&buf, binary.BigEndian, uint64(4321)) // left
	_ = binary.Write(&buf, binary.BigEndian, uint64(111))  // uploaded
	_ = binary.Write(&buf, binary.BigEndian, event)        // event
	buf.Write([]byte{10, 0, 0, 1})                         // claimed ip, ignored
	buf.Write([]byte{0, 0, 0, 0})                          // key
	_ = binary.Write(&buf, binary.BigEndian, numWant)      // num_want
	_ = binary.Write(&buf, binary.BigEndian, port)         // port

	return buf.Bytes()
}

func TestParseAnnounce(t *testing.T) {
	from := netip.MustParseAddrPort("126.0.0.1:49001")

	req, err := ParseAnnounce(Request{Packet: buildAnnouncePacket(2, -1, 8081), From: from})
	require.NoError(t, err)

	require.Equal(t, bittorrent.InfoHashFromString("AAAAAAAAAAAAAAAAAAAA"), req.InfoHash)
	require.Equal(t, bittorrent.PeerIDFromString("-qB00000000000000001"), req.PeerID)
	require.Equal(t, int64(1234), req.Downloaded)
	require.Equal(t, int64(4321), req.Left)
	require.Equal(t, int64(111), req.Uploaded)
	require.Equal(t, bittorrent.Started, req.Event)
	require.Equal(t, int32(-1), req.NumWant)
	require.Equal(t, uint16(8081), req.Port)

	// The claimed IP in the payload is ignored; the datagram source wins.
	require.Equal(t, netip.MustParseAddr("126.0.0.1"), req.RemoteIP)
}

func TestParseAnnounceEventMapping(t *testing.T) {
	from := netip.MustParseAddrPort("126.0.0.1:49001")

	for wire, expected := range map[uint32]bittorrent.Event{
		0: bittorrent.None,
		1: bittorrent.Completed,
		2: bittorrent.Started,
		3: bittorrent.Stopped,
	} {
		req, err := ParseAnnounce(Request{Packet: buildAnnouncePacket(wire, 0, 8081), From: from})
		require.NoError(t, err)
		require.Equal(t, expected, req.Event)
	}

	_, err := ParseAnnounce(Request{Packet: buildAnnouncePacket(4, 0, 8081), From: from})
	require.ErrorIs(t, err, errMalformedEvent)
}

func TestParseAnnounceWithURLDataOption(t *testing.T) {
	from := netip.MustParseAddrPort("126.0.0.1:49001")

	packet := buildAnnouncePacket(2, -1, 8081)
	urlData := "/announce?padding=1"
	packet = append(packet, optionURLData, byte(len(urlData)))
	packet = append(packet, urlData...)
	packet = append(packet, optionEndOfOptions)

	req, err := ParseAnnounce(Request{Packet: packet, From: from})
	require.NoError(t, err)
	require.NotNil(t, req.Params)

	padding, ok := req.Params.String("padding")
	require.True(t, ok)
	require.Equal(t, "1", padding)
	require.Equal(t, "/announce", req.Params.RawPath())
}

func TestHandleOptionalParameters(t *testing.T) {
	var table = []struct {
		data     []byte
		values   map[string]string
		expected error
	}{
		{[]byte{}, nil, nil},
		{[]byte{optionEndOfOptions}, nil, nil},
		{[]byte{optionNOP, optionNOP, optionEndOfOptions}, nil, nil},
		{[]byte{optionURLData, 4, '?', 'a', '=', 'b'}, map[string]string{"a": "b"}, nil},
		{[]byte{optionURLData, 4, '?', 'a', '=', 'b', optionEndOfOptions}, map[string]string{"a": "b"}, nil},
		// URLData split across two options.
		{[]byte{optionURLData, 2, '?', 'a', optionURLData, 2, '=', 'b'}, map[string]string{"a": "b"}, nil},
		// Length byte pointing past the packet.
		{[]byte{optionURLData, 9, '?', 'a', '=', 'b'}, nil, errMalformedPacket},
		// Truncated option header.
		{[]byte{optionURLData}, nil, errMalformedPacket},
		{[]byte{0xff}, nil, errUnknownOptionType},
	}

	for _, tt := range table {
		t.Run(fmt.Sprintf("%#v", tt.data), func(t *testing.T) {
			params, err := handleOptionalParameters(tt.data)
			if tt.expected == nil {
				require.NoError(t, err)
				require.NotNil(t, params)
				for key, want := range tt.values {
					got, ok := params.String(key)
					require.True(t, ok, "expected parameter %q", key)
					require.Equal(t, want, got)
				}
			} else {
				require.ErrorIs(t, err, tt.expected)
			}
		})
	}
}

func TestParseAnnounceTooShort(t *testing.T) {
	from := netip.MustParseAddrPort("126.0.0.1:49001")

	_, err := ParseAnnounce(Request{Packet: make([]byte, 97), From: from})
	require.ErrorIs(t, err, errMalformedPacket)
}

func buildScrapePacket(n int) []byte {
	var buf bytes.Buffer

	buf.Write(make([]byte, 8))
	_ = binary.Write(&buf, binary.BigEndian, scrapeActionID)
	buf.Write([]byte{0, 0, 0, 1})
	for i := 0; i < n; i++ {
		ih := make([]byte, 20)
		ih[0] = byte(i)
		buf.Write(ih)
	}

	return buf.Bytes()
}

func TestParseScrape(t *testing.T) {
	from := netip.MustParseAddrPort("126.0.0.1:49001")

	req, err := ParseScrape(Request{Packet: buildScrapePacket(3), From: from})
	require.NoError(t, err)
	require.Len(t, req.InfoHashes, 3)
	require.Equal(t, byte(2), req.InfoHashes[2][0])
}

func TestParseScrapeCapsInfoHashes(t *testing.T) {
	from := netip.MustParseAddrPort("126.0.0.1:49001")

	req, err := ParseScrape(Request{Packet: buildScrapePacket(100), From: from})
	require.NoError(t, err)
	require.Len(t, req.InfoHashes, MaxScrapeInfoHashes)
}

func TestParseScrapeMalformed(t *testing.T) {
	from := netip.MustParseAddrPort("126.0.0.1:49001")

	// Too short.
	_, err := ParseScrape(Request{Packet: make([]byte, 20), From: from})
	require.ErrorIs(t, err, errMalformedPacket)

	// Trailing partial infohash.
	packet := append(buildScrapePacket(1), 0xff)
	_, err = ParseScrape(Request{Packet: packet, From: from})
	require.ErrorIs(t, err, errMalformedPacket)
}
