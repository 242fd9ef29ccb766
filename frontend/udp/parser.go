package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/netip"
	"sync"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
)

// BEP 15 action identifiers.
const (
	connectActionID uint32 = iota
	announceActionID
	scrapeActionID
	errorActionID
)

// MaxScrapeInfoHashes is the most infohashes served by a single scrape;
// the parser drops anything beyond it.
const MaxScrapeInfoHashes = 74

// Option-Types as described in BEP 41 and BEP 45.
const (
	optionEndOfOptions byte = 0x0
	optionNOP          byte = 0x1
	optionURLData      byte = 0x2
)

// initialConnectionID is the magic initial connection ID specified by
// BEP 15.
var initialConnectionID = []byte{0, 0, 0x04, 0x17, 0x27, 0x10, 0x19, 0x80}

// eventIDs map the values described in BEP 15 to Events.
var eventIDs = []bittorrent.Event{
	bittorrent.None,
	bittorrent.Completed,
	bittorrent.Started,
	bittorrent.Stopped,
}

var (
	errMalformedPacket   = bittorrent.ClientError("malformed packet")
	errMalformedEvent    = bittorrent.ClientError("malformed event ID")
	errUnknownAction     = bittorrent.ClientError("unknown action ID")
	errUnknownOptionType = bittorrent.ClientError("unknown option type")
)

// Request represents a UDP payload received by the tracker.
type Request struct {
	Packet []byte
	From   netip.AddrPort
}

// ParseAnnounce parses an AnnounceRequest from a UDP request.
//
// The 4-byte IP field of the wire format is always ignored; the peer is
// recorded under the datagram source address.
func ParseAnnounce(r Request) (*bittorrent.AnnounceRequest, error) {
	if len(r.Packet) < 98 {
		return nil, errMalformedPacket
	}

	infoHash := r.Packet[16:36]
	peerID := r.Packet[36:56]
	downloaded := binary.BigEndian.Uint64(r.Packet[56:64])
	left := binary.BigEndian.Uint64(r.Packet[64:72])
	uploaded := binary.BigEndian.Uint64(r.Packet[72:80])

	eventID := binary.BigEndian.Uint32(r.Packet[80:84])
	if eventID >= uint32(len(eventIDs)) {
		return nil, errMalformedEvent
	}

	numWant := int32(binary.BigEndian.Uint32(r.Packet[92:96]))
	port := binary.BigEndian.Uint16(r.Packet[96:98])

	params, err := handleOptionalParameters(r.Packet[98:])
	if err != nil {
		return nil, err
	}

	return &bittorrent.AnnounceRequest{
		InfoHash:   bittorrent.InfoHashFromBytes(infoHash),
		PeerID:     bittorrent.PeerIDFromBytes(peerID),
		RemoteIP:   r.From.Addr().Unmap(),
		Port:       port,
		Uploaded:   int64(uploaded),
		Downloaded: int64(downloaded),
		Left:       int64(left),
		Event:      eventIDs[eventID],
		NumWant:    numWant,
		Params:     params,
	}, nil
}

type buffer struct {
	bytes.Buffer
}

var bufferFree = sync.Pool{
	New: func() interface{} { return new(buffer) },
}

func newBuffer() *buffer {
	return bufferFree.Get().(*buffer)
}

func (b *buffer) free() {
	b.Reset()
	bufferFree.Put(b)
}

// handleOptionalParameters parses the optional parameters as described in
// BEP 41 and returns the URLData they carry as request Params.
func handleOptionalParameters(packet []byte) (bittorrent.Params, error) {
	if len(packet) == 0 {
		return bittorrent.ParseURLData("")
	}

	buf := newBuffer()
	defer buf.free()

	for i := 0; i < len(packet); {
		option := packet[i]
		switch option {
		case optionEndOfOptions:
			return bittorrent.ParseURLData(buf.String())
		case optionNOP:
			i++
		case optionURLData:
			if i+1 >= len(packet) {
				return nil, errMalformedPacket
			}

			length := int(packet[i+1])
			if i+2+length > len(packet) {
				return nil, errMalformedPacket
			}

			n, err := buf.Write(packet[i+2 : i+2+length])
			if err != nil {
				return nil, err
			}
			if n != length {
				return nil, fmt.Errorf("expected to write %d bytes, wrote %d", length, n)
			}

			i += 2 + length
		default:
			return nil, errUnknownOptionType
		}
	}

	return bittorrent.ParseURLData(buf.String())
}

// ParseScrape parses a ScrapeRequest from a UDP request.
func ParseScrape(r Request) (*bittorrent.ScrapeRequest, error) {
	// If a scrape isn't at least 36 bytes long, it's malformed.
	if len(r.Packet) < 36 {
		return nil, errMalformedPacket
	}

	// Skip past the initial headers and check that the bytes left equal
	// the length of a valid list of infohashes.
	packet := r.Packet[16:]
	if len(packet)%20 != 0 {
		return nil, errMalformedPacket
	}

	var infoHashes []bittorrent.InfoHash
	for len(packet) >= 20 && len(infoHashes) < MaxScrapeInfoHashes {
		infoHashes = append(infoHashes, bittorrent.InfoHashFromBytes(packet[:20]))
		packet = packet[20:]
	}

	return &bittorrent.ScrapeRequest{InfoHashes: infoHashes}, nil
}
