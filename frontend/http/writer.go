package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/zeebo/bencode"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
	"github.com/nuts-rice/torrust-tracker/pkg/log"
)

// WriteError communicates an error to a BitTorrent client over HTTP.
func WriteError(w http.ResponseWriter, err error) error {
	message := "internal server error"
	var clientErr bittorrent.ClientError
	if errors.As(err, &clientErr) {
		message = clientErr.Error()
	} else {
		log.Error("http: internal error", log.Err(err))
	}

	w.WriteHeader(http.StatusBadRequest)
	return bencode.NewEncoder(w).Encode(map[string]interface{}{
		"failure reason": message,
	})
}

// WriteAnnounceResponse communicates the results of an Announce to a
// BitTorrent client over HTTP.
func WriteAnnounceResponse(w http.ResponseWriter, resp *bittorrent.AnnounceResponse) error {
	bdict := map[string]interface{}{
		"complete":     resp.Complete,
		"incomplete":   resp.Incomplete,
		"interval":     int64(resp.Interval / time.Second),
		"min interval": int64(resp.MinInterval / time.Second),
	}

	// Add the peers to the dictionary in the compact format.
	if resp.Compact {
		var ipv4Compact, ipv6Compact []byte
		for _, peer := range resp.Peers {
			addr := peer.AddrPort.Addr().Unmap()
			port := peer.AddrPort.Port()
			if addr.Is4() {
				ip := addr.As4()
				ipv4Compact = append(ipv4Compact, ip[:]...)
				ipv4Compact = append(ipv4Compact, byte(port>>8), byte(port&0xff))
			} else {
				ip := addr.As16()
				ipv6Compact = append(ipv6Compact, ip[:]...)
				ipv6Compact = append(ipv6Compact, byte(port>>8), byte(port&0xff))
			}
		}

		bdict["peers"] = string(ipv4Compact)
		if len(ipv6Compact) > 0 {
			bdict["peers6"] = string(ipv6Compact)
		}

		return bencode.NewEncoder(w).Encode(bdict)
	}

	// Add the peers to the dictionary.
	peers := make([]map[string]interface{}, 0, len(resp.Peers))
	for _, peer := range resp.Peers {
		peers = append(peers, map[string]interface{}{
			"peer id": string(peer.ID[:]),
			"ip":      peer.AddrPort.Addr().Unmap().String(),
			"port":    peer.AddrPort.Port(),
		})
	}
	bdict["peers"] = peers

	return bencode.NewEncoder(w).Encode(bdict)
}

// WriteScrapeResponse communicates the results of a Scrape to a BitTorrent
// client over HTTP.
func WriteScrapeResponse(w http.ResponseWriter, resp *bittorrent.ScrapeResponse) error {
	filesDict := make(map[string]interface{}, len(resp.Files))
	for _, file := range resp.Files {
		filesDict[string(file.InfoHash[:])] = map[string]interface{}{
			"complete":   file.Complete,
			"downloaded": file.Downloaded,
			"incomplete": file.Incomplete,
		}
	}

	return bencode.NewEncoder(w).Encode(map[string]interface{}{
		"files": filesDict,
	})
}
