package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/nuts-rice/torrust-tracker/auth"
	"github.com/nuts-rice/torrust-tracker/bittorrent"
	"github.com/nuts-rice/torrust-tracker/database"
	"github.com/nuts-rice/torrust-tracker/pkg/log"
)

// defaultTorrentPageSize bounds an unbounded torrent listing.
const defaultTorrentPageSize = 500

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("api: failed to write response", log.Err(err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// torrentResource is one entry of the torrent listing.
type torrentResource struct {
	InfoHash  string `json:"info_hash"`
	Seeders   uint32 `json:"seeders"`
	Completed uint32 `json:"completed"`
	Leechers  uint32 `json:"leechers"`
}

// peerResource is one peer of the torrent detail.
type peerResource struct {
	PeerID  string `json:"peer_id"`
	Addr    string `json:"addr"`
	Updated int64  `json:"updated"`
	Left    int64  `json:"left"`
}

func (s *Server) statsRoute(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.store.GetTorrentsMetrics())
}

func (s *Server) torrentsRoute(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()

	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultTorrentPageSize
	}

	summaries := s.store.GetPaginated(offset, limit)

	resources := make([]torrentResource, 0, len(summaries))
	for _, summary := range summaries {
		resources = append(resources, torrentResource{
			InfoHash:  summary.InfoHash.String(),
			Seeders:   summary.Metadata.Complete,
			Completed: summary.Metadata.Downloaded,
			Leechers:  summary.Metadata.Incomplete,
		})
	}

	writeJSON(w, http.StatusOK, resources)
}

func (s *Server) torrentRoute(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	ih, err := bittorrent.InfoHashFromHex(ps.ByName("infohash"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid infohash")
		return
	}

	md := s.store.GetSwarmMetadata(ih)
	peers := s.store.GetTorrentPeers(ih)

	peerResources := make([]peerResource, 0, len(peers))
	for _, p := range peers {
		peerResources = append(peerResources, peerResource{
			PeerID:  string(p.ID[:]),
			Addr:    p.AddrPort.String(),
			Updated: p.Updated,
			Left:    p.Left,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"info_hash": ih.String(),
		"seeders":   md.Complete,
		"completed": md.Downloaded,
		"leechers":  md.Incomplete,
		"peers":     peerResources,
	})
}

func (s *Server) whitelistAddRoute(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	ih, err := bittorrent.InfoHashFromHex(ps.ByName("infohash"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid infohash")
		return
	}

	if err := s.whitelists.AddToWhitelist(ih); err != nil {
		log.Error("api: failed to whitelist torrent", log.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to whitelist torrent")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) whitelistRemoveRoute(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	ih, err := bittorrent.InfoHashFromHex(ps.ByName("infohash"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid infohash")
		return
	}

	if err := s.whitelists.RemoveFromWhitelist(ih); err != nil {
		if err == database.ErrResourceDoesNotExist {
			writeJSONError(w, http.StatusNotFound, "torrent not whitelisted")
			return
		}
		log.Error("api: failed to remove whitelisted torrent", log.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to remove whitelisted torrent")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) whitelistReloadRoute(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if err := s.whitelists.LoadWhitelistFromDatabase(); err != nil {
		log.Error("api: failed to reload whitelist", log.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to reload whitelist")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) keyAddRoute(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	lifetimeSecs, err := strconv.ParseInt(ps.ByName("lifetime"), 10, 64)
	if err != nil || lifetimeSecs < 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid key lifetime")
		return
	}

	peerKey, err := s.keys.AddPeerKey(lifetimeSecs)
	if err != nil {
		if err == auth.ErrDurationOverflow {
			writeJSONError(w, http.StatusBadRequest, "key lifetime overflows the expiry timestamp")
			return
		}
		log.Error("api: failed to generate key", log.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to generate key")
		return
	}

	writeJSON(w, http.StatusOK, peerKey)
}

func (s *Server) keyRemoveRoute(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	key, err := auth.ParseKey(ps.ByName("key"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid key")
		return
	}

	if err := s.keys.RemovePeerKey(key); err != nil {
		if err == database.ErrResourceDoesNotExist {
			writeJSONError(w, http.StatusNotFound, "key not registered")
			return
		}
		log.Error("api: failed to remove key", log.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to remove key")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) keysReloadRoute(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if err := s.keys.LoadKeysFromDatabase(); err != nil {
		log.Error("api: failed to reload keys", log.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to reload keys")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
