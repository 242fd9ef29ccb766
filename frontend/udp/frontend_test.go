package udp

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
)

// fakeLogic implements frontend.TrackerLogic with canned responses.
type fakeLogic struct {
	announce bittorrent.AnnounceResponse
	scrape   bittorrent.ScrapeResponse
}

func (f *fakeLogic) HandleAnnounce(_ context.Context, _ *bittorrent.AnnounceRequest) (*bittorrent.AnnounceResponse, error) {
	resp := f.announce
	return &resp, nil
}

func (f *fakeLogic) HandleScrape(_ context.Context, req *bittorrent.ScrapeRequest) (*bittorrent.ScrapeResponse, error) {
	resp := f.scrape
	for _, ih := range req.InfoHashes {
		resp.Files = append(resp.Files, bittorrent.Scrape{InfoHash: ih})
	}
	return &resp, nil
}

func newTestFrontend(t *testing.T) *Frontend {
	t.Helper()

	fe, err := NewFrontend(&fakeLogic{
		announce: bittorrent.AnnounceResponse{Interval: 120 * time.Second, Complete: 1},
	}, Config{
		Addr:       "127.0.0.1:0",
		PrivateKey: testPrivateKey,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, <-fe.Stop())
	})

	return fe
}

func dialFrontend(t *testing.T, fe *Frontend) *net.UDPConn {
	t.Helper()

	conn, err := net.DialUDP("udp", nil, fe.Address().(*net.UDPAddr))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func connect(t *testing.T, conn *net.UDPConn) []byte {
	t.Helper()

	var req bytes.Buffer
	req.Write(initialConnectionID)
	_ = binary.Write(&req, binary.BigEndian, connectActionID)
	req.Write([]byte{0xde, 0xad, 0xbe, 0xef})

	_, err := conn.Write(req.Bytes())
	require.NoError(t, err)

	resp := make([]byte, 2048)
	n, err := conn.Read(resp)
	require.NoError(t, err)
	require.Equal(t, 16, n)
	require.Equal(t, connectActionID, binary.BigEndian.Uint32(resp[0:4]))
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, resp[4:8])

	return resp[8:16]
}

func TestStartStop(t *testing.T) {
	fe, err := NewFrontend(&fakeLogic{}, Config{Addr: "127.0.0.1:0", PrivateKey: testPrivateKey})
	require.NoError(t, err)
	require.NoError(t, <-fe.Stop())
}

func TestConnectRoundTrip(t *testing.T) {
	fe := newTestFrontend(t)
	conn := dialFrontend(t, fe)

	connID := connect(t, conn)
	require.Len(t, connID, 8)
	require.NotEqual(t, initialConnectionID, connID)
}

func TestAnnounceWithFreshConnectionID(t *testing.T) {
	fe := newTestFrontend(t)
	conn := dialFrontend(t, fe)

	connID := connect(t, conn)

	var req bytes.Buffer
	req.Write(connID)
	_ = binary.Write(&req, binary.BigEndian, announceActionID)
	req.Write([]byte{0, 0, 0, 2})           // transaction_id
	req.WriteString("AAAAAAAAAAAAAAAAAAAA") // info_hash
	req.WriteString("-qB00000000000000001") // peer_id
	req.Write(make([]byte, 8+8+8))          // downloaded, left, uploaded
	_ = binary.Write(&req, binary.BigEndian, uint32(2)) // event: started
	req.Write(make([]byte, 4+4))            // ip, key
	_ = binary.Write(&req, binary.BigEndian, int32(-1)) // num_want
	_ = binary.Write(&req, binary.BigEndian, uint16(8081))

	_, err := conn.Write(req.Bytes())
	require.NoError(t, err)

	resp := make([]byte, 2048)
	n, err := conn.Read(resp)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 20)
	require.Equal(t, announceActionID, binary.BigEndian.Uint32(resp[0:4]))
	require.Equal(t, []byte{0, 0, 0, 2}, resp[4:8])
	require.Equal(t, uint32(120), binary.BigEndian.Uint32(resp[8:12]))
	require.Equal(t, uint32(1), binary.BigEndian.Uint32(resp[16:20])) // seeders
}

func TestAnnounceWithBogusConnectionIDGetsError(t *testing.T) {
	fe := newTestFrontend(t)
	conn := dialFrontend(t, fe)

	var req bytes.Buffer
	req.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	_ = binary.Write(&req, binary.BigEndian, announceActionID)
	req.Write([]byte{0, 0, 0, 3})
	req.Write(make([]byte, 82))

	_, err := conn.Write(req.Bytes())
	require.NoError(t, err)

	resp := make([]byte, 2048)
	n, err := conn.Read(resp)
	require.NoError(t, err)
	require.Equal(t, errorActionID, binary.BigEndian.Uint32(resp[0:4]))
	require.Equal(t, []byte{0, 0, 0, 3}, resp[4:8])
	require.NotZero(t, n)

	// One failure stays under the ban ceiling.
	require.False(t, fe.ban.IsBanned(netip.MustParseAddr("127.0.0.1")))
}

func TestScrapeRoundTrip(t *testing.T) {
	fe := newTestFrontend(t)
	conn := dialFrontend(t, fe)

	connID := connect(t, conn)

	var req bytes.Buffer
	req.Write(connID)
	_ = binary.Write(&req, binary.BigEndian, scrapeActionID)
	req.Write([]byte{0, 0, 0, 4})
	req.WriteString("AAAAAAAAAAAAAAAAAAAA")

	_, err := conn.Write(req.Bytes())
	require.NoError(t, err)

	resp := make([]byte, 2048)
	n, err := conn.Read(resp)
	require.NoError(t, err)
	require.Equal(t, 8+12, n)
	require.Equal(t, scrapeActionID, binary.BigEndian.Uint32(resp[0:4]))
}
