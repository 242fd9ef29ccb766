// Package http implements a BitTorrent frontend via the HTTP protocol as
// described in BEP 3 and BEP 23.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nuts-rice/torrust-tracker/auth"
	"github.com/nuts-rice/torrust-tracker/frontend"
	"github.com/nuts-rice/torrust-tracker/pkg/log"
	"github.com/nuts-rice/torrust-tracker/pkg/stop"
	"github.com/nuts-rice/torrust-tracker/tracker"
)

func init() {
	prometheus.MustRegister(promResponseDurationMilliseconds)
}

var promResponseDurationMilliseconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "torrust_tracker_http_response_duration_milliseconds",
		Help:    "The duration of time it takes to receive and write a response to an HTTP request",
		Buckets: prometheus.ExponentialBuckets(9.375, 2, 10),
	},
	[]string{"action", "error"},
)

// recordResponseDuration records the duration of time to respond to a
// request in milliseconds.
func recordResponseDuration(action string, err error, duration time.Duration) {
	var errString string
	if err != nil {
		errString = err.Error()
	}

	promResponseDurationMilliseconds.
		WithLabelValues(action, errString).
		Observe(float64(duration.Nanoseconds()) / float64(time.Millisecond))
}

// Default config constants.
const (
	defaultReadTimeout  = 5 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// Config represents all of the configurable options for an HTTP BitTorrent
// tracker.
type Config struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// OnReverseProxy switches client address resolution to the right-most
	// X-Forwarded-For entry.
	OnReverseProxy bool `yaml:"on_reverse_proxy"`

	EnableRequestTiming bool `yaml:"enable_request_timing"`
}

// LogFields renders the current config as a set of Logrus fields.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"addr":                cfg.Addr,
		"readTimeout":         cfg.ReadTimeout,
		"writeTimeout":        cfg.WriteTimeout,
		"onReverseProxy":      cfg.OnReverseProxy,
		"enableRequestTiming": cfg.EnableRequestTiming,
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
			"name":     "http.ReadTimeout",
			"provided": cfg.ReadTimeout,
			"default":  validcfg.ReadTimeout,
		})
	}

	if cfg.WriteTimeout <= 0 {
		validcfg.WriteTimeout = defaultWriteTimeout
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "http.WriteTimeout",
			"provided": cfg.WriteTimeout,
			"default":  validcfg.WriteTimeout,
		})
	}

	return validcfg
}

// Frontend holds the state of an HTTP BitTorrent frontend.
type Frontend struct {
	server  *http.Server
	closing chan struct{}

	logic frontend.TrackerLogic
	authn *auth.Service
	Config
}

// NewFrontend creates a new instance of an HTTP frontend that
// asynchronously serves requests.
func NewFrontend(logic frontend.TrackerLogic, authn *auth.Service, provided Config) (*Frontend, error) {
	cfg := provided.Validate()

	f := &Frontend{
		closing: make(chan struct{}),
		logic:   logic,
		authn:   authn,
		Config:  cfg,
	}

	f.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      f.handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		if err := f.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed while serving http", log.Err(err))
		}
	}()

	return f, nil
}

// Stop provides a thread-safe way to shutdown a currently running Frontend.
func (f *Frontend) Stop() stop.Result {
	select {
	case <-f.closing:
		return stop.AlreadyStopped
	default:
	}

	c := make(stop.Channel)
	go func() {
		close(f.closing)
		ctx, cancel := context.WithTimeout(context.Background(), f.ReadTimeout)
		defer cancel()
		c.Done(f.server.Shutdown(ctx))
	}()

	return c.Result()
}

func (f *Frontend) handler() http.Handler {
	router := httprouter.New()
	router.GET("/announce", f.announceRoute)
	router.GET("/announce/:key", f.announceRoute)
	router.GET("/scrape", f.scrapeRoute)
	router.GET("/scrape/:key", f.scrapeRoute)
	return router
}

// announceRoute parses and responds to an Announce.
func (f *Frontend) announceRoute(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var err error
	var start time.Time
	if f.EnableRequestTiming {
		start = time.Now()
	}
	defer func() {
		if f.EnableRequestTiming {
			recordResponseDuration("announce", err, time.Since(start))
		} else {
			recordResponseDuration("announce", err, time.Duration(0))
		}
	}()

	key := ps.ByName("key")

	// In private mode an announce without a valid key is rejected with a
	// bencoded failure.
	if err = f.authn.Authenticate(key); err != nil {
		_ = WriteError(w, err)
		return
	}

	req, err := ParseAnnounce(r, key, f.OnReverseProxy)
	if err != nil {
		_ = WriteError(w, err)
		return
	}

	resp, err := f.logic.HandleAnnounce(r.Context(), req)
	if err != nil {
		_ = WriteError(w, err)
		return
	}

	if err = WriteAnnounceResponse(w, resp); err != nil {
		log.Error("http: failed to write announce response", log.Err(err))
	}
}

// scrapeRoute parses and responds to a Scrape.
//
// Unlike announce, a scrape that fails authentication in private mode is
// not an error: it is answered with zeroed metadata for every requested
// infohash, without consulting the swarm state.
func (f *Frontend) scrapeRoute(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var err error
	var start time.Time
	if f.EnableRequestTiming {
		start = time.Now()
	}
	defer func() {
		if f.EnableRequestTiming {
			recordResponseDuration("scrape", err, time.Since(start))
		} else {
			recordResponseDuration("scrape", err, time.Duration(0))
		}
	}()

	key := ps.ByName("key")

	req, err := ParseScrape(r, key)
	if err != nil {
		_ = WriteError(w, err)
		return
	}

	if authErr := f.authn.Authenticate(key); authErr != nil {
		if err = WriteScrapeResponse(w, tracker.ZeroedScrape(req.InfoHashes)); err != nil {
			log.Error("http: failed to write scrape response", log.Err(err))
		}
		return
	}

	resp, err := f.logic.HandleScrape(r.Context(), req)
	if err != nil {
		_ = WriteError(w, err)
		return
	}

	if err = WriteScrapeResponse(w, resp); err != nil {
		log.Error("http: failed to write scrape response", log.Err(err))
	}
}
