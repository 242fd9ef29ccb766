// Package api implements the tracker's management REST API: swarm
// introspection, whitelist administration, and peer-key administration.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/nuts-rice/torrust-tracker/auth"
	"github.com/nuts-rice/torrust-tracker/pkg/log"
	"github.com/nuts-rice/torrust-tracker/pkg/stop"
	"github.com/nuts-rice/torrust-tracker/storage"
	"github.com/nuts-rice/torrust-tracker/whitelist"
)

// Default config constants.
const (
	defaultReadTimeout  = 5 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// Config represents all of the configurable options for the management API.
type Config struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Token guards every endpoint; requests must carry it in the token
	// query parameter.
	Token string `yaml:"token"`
}

// LogFields renders the current config as a set of Logrus fields.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"addr":         cfg.Addr,
		"readTimeout":  cfg.ReadTimeout,
		"writeTimeout": cfg.WriteTimeout,
	}
}

// Validate sanity checks values set in a config and returns a new config
// with default values replacing anything that is invalid.
//
// This function warns to the logger when a value is changed.
func (cfg Config) Validate() Config {
	validcfg := cfg

	if cfg.ReadTimeout <= 0 {
		validcfg.ReadTimeout = defaultReadTimeout
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "api.ReadTimeout",
			"provided": cfg.ReadTimeout,
			"default":  validcfg.ReadTimeout,
		})
	}

	if cfg.WriteTimeout <= 0 {
		validcfg.WriteTimeout = defaultWriteTimeout
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "api.WriteTimeout",
			"provided": cfg.WriteTimeout,
			"default":  validcfg.WriteTimeout,
		})
	}

	return validcfg
}

// Server serves the management API.
type Server struct {
	server  *http.Server
	closing chan struct{}

	store      storage.SwarmStore
	whitelists *whitelist.Manager
	keys       *auth.Manager
	Config
}

// NewServer creates a new instance of a management API server that
// asynchronously serves requests.
func NewServer(store storage.SwarmStore, whitelists *whitelist.Manager, keys *auth.Manager, provided Config) (*Server, error) {
	cfg := provided.Validate()

	s := &Server{
		closing:    make(chan struct{}),
		store:      store,
		whitelists: whitelists,
		keys:       keys,
		Config:     cfg,
	}

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed while serving api", log.Err(err))
		}
	}()

	return s, nil
}

// Stop provides a thread-safe way to shutdown a currently running Server.
func (s *Server) Stop() stop.Result {
	select {
	case <-s.closing:
		return stop.AlreadyStopped
	default:
	}

	c := make(stop.Channel)
	go func() {
		close(s.closing)
		ctx, cancel := context.WithTimeout(context.Background(), s.ReadTimeout)
		defer cancel()
		c.Done(s.server.Shutdown(ctx))
	}()

	return c.Result()
}

// guard wraps a handler with the token check.
func (s *Server) guard(h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if r.URL.Query().Get("token") != s.Token || s.Token == "" {
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		h(w, r, ps)
	}
}

func (s *Server) routes() http.Handler {
	router := httprouter.New()
	router.GET("/api/v1/stats", s.guard(s.statsRoute))
	router.GET("/api/v1/torrents", s.guard(s.torrentsRoute))
	router.GET("/api/v1/torrent/:infohash", s.guard(s.torrentRoute))
	router.POST("/api/v1/whitelist/:infohash", s.guard(s.whitelistAddRoute))
	router.DELETE("/api/v1/whitelist/:infohash", s.guard(s.whitelistRemoveRoute))
	router.GET("/api/v1/whitelist/reload", s.guard(s.whitelistReloadRoute))
	router.POST("/api/v1/key/:lifetime", s.guard(s.keyAddRoute))
	router.DELETE("/api/v1/key/:key", s.guard(s.keyRemoveRoute))
	router.GET("/api/v1/keys/reload", s.guard(s.keysReloadRoute))
	return router
}
