package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
)

// WriteError writes the failure reason as a null-terminated string.
func WriteError(w io.Writer, txID []byte, err error) {
	// If the client wasn't at fault, acknowledge it.
	if _, ok := err.(bittorrent.ClientError); !ok {
		err = fmt.Errorf("internal error occurred: %s", err.Error())
	}

	var buf bytes.Buffer
	writeHeader(&buf, txID, errorActionID)
	buf.WriteString(err.Error())
	buf.WriteRune('\000')
	_, _ = w.Write(buf.Bytes())
}

// WriteConnectionID encodes a connect response according to BEP 15.
func WriteConnectionID(w io.Writer, txID []byte, connID [8]byte) {
	var buf bytes.Buffer

	writeHeader(&buf, txID, connectActionID)
	buf.Write(connID[:])

	_, _ = w.Write(buf.Bytes())
}

// WriteAnnounce encodes an announce response according to BEP 15.
//
// Clients announcing from an IPv6 source receive 18-byte IPv6 peer entries
// only; everyone else receives 6-byte IPv4 entries only.
func WriteAnnounce(w io.Writer, txID []byte, resp *bittorrent.AnnounceResponse, v6 bool) {
	var buf bytes.Buffer

	writeHeader(&buf, txID, announceActionID)
	_ = binary.Write(&buf, binary.BigEndian, uint32(resp.Interval/time.Second))
	_ = binary.Write(&buf, binary.BigEndian, resp.Incomplete)
	_ = binary.Write(&buf, binary.BigEndian, resp.Complete)

	for _, peer := range resp.Peers {
		addr := peer.AddrPort.Addr().Unmap()
		if v6 {
			if !addr.Is6() || addr.Is4In6() {
				continue
			}
			ip := addr.As16()
			buf.Write(ip[:])
		} else {
			if !addr.Is4() {
				continue
			}
			ip := addr.As4()
			buf.Write(ip[:])
		}
		_ = binary.Write(&buf, binary.BigEndian, peer.AddrPort.Port())
	}

	_, _ = w.Write(buf.Bytes())
}

// WriteScrape encodes a scrape response according to BEP 15.
func WriteScrape(w io.Writer, txID []byte, resp *bittorrent.ScrapeResponse) {
	var buf bytes.Buffer

	writeHeader(&buf, txID, scrapeActionID)

	for _, file := range resp.Files {
		_ = binary.Write(&buf, binary.BigEndian, file.Complete)
		_ = binary.Write(&buf, binary.BigEndian, file.Downloaded)
		_ = binary.Write(&buf, binary.BigEndian, file.Incomplete)
	}

	_, _ = w.Write(buf.Bytes())
}

// writeHeader writes the action and transaction ID to the provided response
// buffer.
func writeHeader(w io.Writer, txID []byte, action uint32) {
	_ = binary.Write(w, binary.BigEndian, action)
	_, _ = w.Write(txID)
}
