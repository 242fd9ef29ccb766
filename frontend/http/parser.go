package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
)

var (
	errNoInfoHash        = bittorrent.ClientError("no info_hash parameter supplied")
	errMultipleInfoHash  = bittorrent.ClientError("multiple info_hash parameters supplied")
	errInvalidPeerID     = bittorrent.ClientError("failed to provide valid peer_id")
	errInvalidEvent      = bittorrent.ClientError("failed to provide valid client event")
	errCannotResolvePeer = bittorrent.ClientError("cannot resolve peer IP address")
)

// ParseAnnounce parses a bittorrent.AnnounceRequest from an http.Request.
//
// The key path parameter, when the authenticated route matched, is carried
// in through key.
func ParseAnnounce(r *http.Request, key string, onReverseProxy bool) (*bittorrent.AnnounceRequest, error) {
	qp, err := bittorrent.ParseURLData(r.RequestURI)
	if err != nil {
		return nil, err
	}

	request := &bittorrent.AnnounceRequest{Key: key, Params: qp}

	eventStr, _ := qp.String("event")
	request.Event, err = bittorrent.NewEvent(eventStr)
	if err != nil {
		return nil, errInvalidEvent
	}

	compactStr, _ := qp.String("compact")
	request.Compact = compactStr != "" && compactStr != "0"

	infoHashes := qp.InfoHashes()
	if len(infoHashes) < 1 {
		return nil, errNoInfoHash
	}
	if len(infoHashes) > 1 {
		return nil, errMultipleInfoHash
	}
	request.InfoHash = infoHashes[0]

	peerID, ok := qp.String("peer_id")
	if !ok || len(peerID) != 20 {
		return nil, errInvalidPeerID
	}
	request.PeerID = bittorrent.PeerIDFromString(peerID)

	left, err := qp.Uint64("left")
	if err != nil {
		return nil, err
	}
	request.Left = int64(left)

	downloaded, err := qp.Uint64("downloaded")
	if err != nil {
		return nil, err
	}
	request.Downloaded = int64(downloaded)

	uploaded, err := qp.Uint64("uploaded")
	if err != nil {
		return nil, err
	}
	request.Uploaded = int64(uploaded)

	// numwant is optional; its absence requests as many peers as available.
	if _, ok := qp.String("numwant"); ok {
		numWant, err := qp.Uint64("numwant")
		if err != nil {
			return nil, err
		}
		request.NumWant = int32(numWant)
	}

	port, err := qp.Uint64("port")
	if err != nil {
		return nil, err
	}
	request.Port = uint16(port)

	// The client may claim an address in the query; it is ignored. Only
	// the resolved remote address is trusted.
	request.RemoteIP, err = resolveRemoteIP(r, onReverseProxy)
	if err != nil {
		return nil, err
	}

	return request, nil
}

// ParseScrape parses a bittorrent.ScrapeRequest from an http.Request.
//
// A scrape without any info_hash parameter is valid and yields an empty
// file list.
func ParseScrape(r *http.Request, key string) (*bittorrent.ScrapeRequest, error) {
	qp, err := bittorrent.ParseURLData(r.RequestURI)
	if err != nil {
		return nil, err
	}

	return &bittorrent.ScrapeRequest{
		InfoHashes: qp.InfoHashes(),
		Key:        key,
	}, nil
}

// resolveRemoteIP determines the client address of a BitTorrent request.
//
// Behind a reverse proxy the right-most entry of the X-Forwarded-For header
// is authoritative; otherwise the TCP connection's remote address is used.
func resolveRemoteIP(r *http.Request, onReverseProxy bool) (netip.Addr, error) {
	if onReverseProxy {
		forwarded := r.Header.Get("X-Forwarded-For")
		if forwarded == "" {
			return netip.Addr{}, errCannotResolvePeer
		}

		entries := strings.Split(forwarded, ",")
		last := strings.TrimSpace(entries[len(entries)-1])

		addr, err := netip.ParseAddr(last)
		if err != nil {
			return netip.Addr{}, errCannotResolvePeer
		}
		return addr.Unmap(), nil
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return netip.Addr{}, errCannotResolvePeer
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, errCannotResolvePeer
	}
	return addr.Unmap(), nil
}
