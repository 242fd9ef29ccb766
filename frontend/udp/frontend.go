// Package udp implements a BitTorrent tracker via the UDP protocol as
// described in BEP 15.
package udp

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nuts-rice/torrust-tracker/bittorrent"
	"github.com/nuts-rice/torrust-tracker/frontend"
	"github.com/nuts-rice/torrust-tracker/pkg/log"
	"github.com/nuts-rice/torrust-tracker/pkg/stop"
	"github.com/nuts-rice/torrust-tracker/pkg/timecache"
)

var allowedPrivateKeyChars = []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890")

// errBanned marks datagrams from sources that exhausted their cookie-error
// budget; they are dropped without a response.
var errBanned = bittorrent.ClientError("source is banned")

func init() {
	prometheus.MustRegister(promResponseDurationMilliseconds)
}

var promResponseDurationMilliseconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "torrust_tracker_udp_response_duration_milliseconds",
		Help:    "The duration of time it takes to receive and write a response to a UDP request",
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
	defaultCookieLifetime   = 2 * time.Minute
	defaultBanResetInterval = 2 * time.Minute
)

// Config represents all of the configurable options for a UDP BitTorrent
// tracker.
type Config struct {
	Addr string `yaml:"addr"`

	// PrivateKey keys the connection-cookie cipher. A fresh random key is
	// generated when none is provided, invalidating outstanding cookies
	// across restarts.
	PrivateKey string `yaml:"private_key"`

	// CookieLifetime is the maximum age of an accepted connection id.
	CookieLifetime time.Duration `yaml:"cookie_lifetime"`

	// MaxConnectionIDErrors is the cookie-failure ceiling per source IP.
	MaxConnectionIDErrors uint32 `yaml:"max_connection_id_errors"`

	// BanResetInterval is how often the per-source failure counters are
	// forgotten.
	BanResetInterval time.Duration `yaml:"ban_reset_interval"`

	EnableRequestTiming bool `yaml:"enable_request_timing"`
}

// LogFields renders the current config as a set of Logrus fields.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"addr":                  cfg.Addr,
		"cookieLifetime":        cfg.CookieLifetime,
		"maxConnectionIDErrors": cfg.MaxConnectionIDErrors,
		"banResetInterval":      cfg.BanResetInterval,
		"enableRequestTiming":   cfg.EnableRequestTiming,
	}
}

// Validate sanity checks values set in a config and returns a new config
// with default values replacing anything that is invalid.
//
// This function warns to the logger when a value is changed.
func (cfg Config) Validate() Config {
	validcfg := cfg

	// Generate a private key if one isn't provided by the user.
	if cfg.PrivateKey == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			log.Fatal("failed to read entropy for UDP private key", log.Err(err))
		}
		for i := range buf {
			buf[i] = allowedPrivateKeyChars[int(buf[i])%len(allowedPrivateKeyChars)]
		}
		validcfg.PrivateKey = string(buf)

		log.Warn("UDP private key was not provided, using generated key")
	}

	if cfg.CookieLifetime <= 0 {
		validcfg.CookieLifetime = defaultCookieLifetime
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "udp.CookieLifetime",
			"provided": cfg.CookieLifetime,
			"default":  validcfg.CookieLifetime,
		})
	}

	if cfg.MaxConnectionIDErrors == 0 {
		validcfg.MaxConnectionIDErrors = defaultMaxConnectionIDErrors
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "udp.MaxConnectionIDErrors",
			"provided": cfg.MaxConnectionIDErrors,
			"default":  validcfg.MaxConnectionIDErrors,
		})
	}

	if cfg.BanResetInterval <= 0 {
		validcfg.BanResetInterval = defaultBanResetInterval
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "udp.BanResetInterval",
			"provided": cfg.BanResetInterval,
			"default":  validcfg.BanResetInterval,
		})
	}

	return validcfg
}

// Frontend holds the state of a UDP BitTorrent frontend.
type Frontend struct {
	socket  *net.UDPConn
	closing chan struct{}
	wg      sync.WaitGroup

	cookie *ConnectionCookie
	ban    *BanService
	stats  *statsCollector

	logic frontend.TrackerLogic
	Config
}

// NewFrontend creates a new instance of a UDP frontend that asynchronously
// serves requests.
func NewFrontend(logic frontend.TrackerLogic, provided Config) (*Frontend, error) {
	cfg := provided.Validate()

	cookie, err := NewConnectionCookie([]byte(cfg.PrivateKey))
	if err != nil {
		return nil, err
	}

	f := &Frontend{
		closing: make(chan struct{}),
		cookie:  cookie,
		ban:     NewBanService(cfg.MaxConnectionIDErrors),
		stats:   newStatsCollector(),
		logic:   logic,
		Config:  cfg,
	}

	if err := f.listen(); err != nil {
		return nil, err
	}

	// Roll the ban window over on a fixed interval.
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		t := time.NewTicker(cfg.BanResetInterval)
		defer t.Stop()
		for {
			select {
			case <-f.closing:
				return
			case <-t.C:
				f.ban.ResetBannedIPs()
			}
		}
	}()

	go func() {
		if err := f.serve(); err != nil {
			log.Fatal("failed while serving udp", log.Err(err))
		}
	}()

	return f, nil
}

// Stop provides a thread-safe way to shutdown a currently running Frontend.
func (t *Frontend) Stop() stop.Result {
	select {
	case <-t.closing:
		return stop.AlreadyStopped
	default:
	}

	c := make(stop.Channel)
	go func() {
		close(t.closing)
		_ = t.socket.SetReadDeadline(time.Now())
		t.wg.Wait()
		t.stats.Stop()
		c.Done(t.socket.Close())
	}()

	return c.Result()
}

// Address reports the address the frontend's socket is bound to. It is
// useful when the configured address picked an ephemeral port.
func (t *Frontend) Address() net.Addr {
	return t.socket.LocalAddr()
}

// listen resolves the address and binds the server socket.
func (t *Frontend) listen() error {
	udpAddr, err := net.ResolveUDPAddr("udp", t.Addr)
	if err != nil {
		return err
	}
	t.socket, err = net.ListenUDP("udp", udpAddr)
	return err
}

// serve blocks while listening and serving UDP BitTorrent requests until
// Stop() is called or an error is returned.
func (t *Frontend) serve() error {
	pool := sync.Pool{New: func() interface{} { return make([]byte, 2048) }}

	t.wg.Add(1)
	defer t.wg.Done()

	for {
		// Check to see if we need to shutdown.
		select {
		case <-t.closing:
			log.Debug("udp serve() received shutdown signal")
			return nil
		default:
		}

		// Read a UDP packet into a reusable buffer.
		buffer := pool.Get().([]byte)
		n, addr, err := t.socket.ReadFromUDPAddrPort(buffer)
		if err != nil {
			pool.Put(buffer) //nolint:staticcheck
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// A shutdown in progress surfaces as a deadline error.
				continue
			}
			return err
		}

		// We got nothin'
		if n == 0 {
			pool.Put(buffer) //nolint:staticcheck
			continue
		}

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			defer pool.Put(buffer) //nolint:staticcheck

			from := netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())

			var start time.Time
			if t.EnableRequestTiming {
				start = time.Now()
			}
			action, v6, err := t.handleRequest(
				Request{Packet: buffer[:n], From: from},
				ResponseWriter{socket: t.socket, addr: addr},
			)
			if t.EnableRequestTiming {
				recordResponseDuration(action, err, time.Since(start))
			} else {
				recordResponseDuration(action, err, time.Duration(0))
			}

			if err != nil {
				if err != errBanned {
					t.stats.Send(errorEvent(v6))
				}
				return
			}
			switch action {
			case "connect":
				t.stats.Send(connectEvent(v6))
			case "announce":
				t.stats.Send(announceEvent(v6))
			case "scrape":
				t.stats.Send(scrapeEvent(v6))
			}
		}()
	}
}

// ResponseWriter implements the ability to respond to a Request via the
// io.Writer interface.
type ResponseWriter struct {
	socket *net.UDPConn
	addr   netip.AddrPort
}

// Write implements the io.Writer interface for a ResponseWriter.
func (w ResponseWriter) Write(b []byte) (int, error) {
	_, _ = w.socket.WriteToUDPAddrPort(b, w.addr)
	return len(b), nil
}

// cookieValidRange returns the accepted issue-time window at now. The one
// second of slack on both ends absorbs subsecond issuance drift.
func (t *Frontend) cookieValidRange(now float64) (minTime, maxTime float64) {
	return now - t.CookieLifetime.Seconds() - 1, now + 1
}

// handleRequest parses and responds to a UDP Request.
func (t *Frontend) handleRequest(r Request, w ResponseWriter) (actionName string, v6 bool, err error) {
	v6 = !r.From.Addr().Is4()

	// Sources that keep presenting bad cookies are dropped silently.
	if t.ban.IsBanned(r.From.Addr()) {
		err = errBanned
		return
	}

	if len(r.Packet) < 16 {
		// Malformed, no client packets are less than 16 bytes.
		// We explicitly return nothing in case this is a DoS attempt.
		err = errMalformedPacket
		return
	}

	// Parse the headers of the UDP packet.
	connID := r.Packet[0:8]
	actionID := binary.BigEndian.Uint32(r.Packet[8:12])
	txID := r.Packet[12:16]

	now := float64(timecache.Now().UnixNano()) / 1e9

	// If this isn't requesting a new connection ID, the presented ID must
	// decrypt to an issue time inside the accepted window.
	if actionID != connectActionID {
		minTime, maxTime := t.cookieValidRange(now)
		var connIDBuf [8]byte
		copy(connIDBuf[:], connID)
		if err = t.cookie.Check(connIDBuf, RemoteFingerprint(r.From), minTime, maxTime); err != nil {
			t.ban.IncreaseCounter(r.From.Addr())
			WriteError(w, txID, err)
			return
		}
	}

	// Handle the requested action.
	switch actionID {
	case connectActionID:
		actionName = "connect"

		if !bytes.Equal(connID, initialConnectionID) {
			err = errMalformedPacket
			return
		}

		WriteConnectionID(w, txID, t.cookie.Make(RemoteFingerprint(r.From), now))

	case announceActionID:
		actionName = "announce"

		var req *bittorrent.AnnounceRequest
		req, err = ParseAnnounce(r)
		if err != nil {
			WriteError(w, txID, err)
			return
		}

		var resp *bittorrent.AnnounceResponse
		resp, err = t.logic.HandleAnnounce(context.Background(), req)
		if err != nil {
			WriteError(w, txID, err)
			return
		}

		WriteAnnounce(w, txID, resp, v6)

	case scrapeActionID:
		actionName = "scrape"

		var req *bittorrent.ScrapeRequest
		req, err = ParseScrape(r)
		if err != nil {
			WriteError(w, txID, err)
			return
		}

		var resp *bittorrent.ScrapeResponse
		resp, err = t.logic.HandleScrape(context.Background(), req)
		if err != nil {
			WriteError(w, txID, err)
			return
		}

		WriteScrape(w, txID, resp)

	default:
		err = errUnknownAction
		WriteError(w, txID, err)
	}

	return
}
