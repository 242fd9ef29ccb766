package udp

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nuts-rice/torrust-tracker/pkg/log"
)

func init() {
	prometheus.MustRegister(promEventsTotal)
}

var promEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "torrust_tracker_udp_events_total",
		Help: "The number of UDP tracker events by address family and action",
	},
	[]string{"family", "action"},
)

// Event identifies one countable occurrence on the UDP tracker.
type Event uint8

// The UDP tracker events.
const (
	Udp4Connect Event = iota
	Udp4Announce
	Udp4Scrape
	Udp4Error
	Udp6Connect
	Udp6Announce
	Udp6Scrape
	Udp6Error
)

var eventLabels = map[Event][2]string{
	Udp4Connect:  {"4", "connect"},
	Udp4Announce: {"4", "announce"},
	Udp4Scrape:   {"4", "scrape"},
	Udp4Error:    {"4", "error"},
	Udp6Connect:  {"6", "connect"},
	Udp6Announce: {"6", "announce"},
	Udp6Scrape:   {"6", "scrape"},
	Udp6Error:    {"6", "error"},
}

// connectEvent, announceEvent, scrapeEvent and errorEvent pick the event
// for an address family.
func connectEvent(v6 bool) Event {
	if v6 {
		return Udp6Connect
	}
	return Udp4Connect
}

func announceEvent(v6 bool) Event {
	if v6 {
		return Udp6Announce
	}
	return Udp4Announce
}

func scrapeEvent(v6 bool) Event {
	if v6 {
		return Udp6Scrape
	}
	return Udp4Scrape
}

func errorEvent(v6 bool) Event {
	if v6 {
		return Udp6Error
	}
	return Udp4Error
}

// statsCollector drains tracker events from a channel into prometheus
// counters. Senders never block: when the channel is full the event is
// dropped.
type statsCollector struct {
	events chan Event
	done   chan struct{}
}

func newStatsCollector() *statsCollector {
	sc := &statsCollector{
		events: make(chan Event, 1024),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sc.done)
		for ev := range sc.events {
			labels, ok := eventLabels[ev]
			if !ok {
				log.Warn("dropping unknown UDP tracker event", log.Fields{"event": ev})
				continue
			}
			promEventsTotal.WithLabelValues(labels[0], labels[1]).Inc()
		}
	}()

	return sc
}

// Send records an event without blocking; a full channel drops it.
func (sc *statsCollector) Send(ev Event) {
	select {
	case sc.events <- ev:
	default:
	}
}

// Stop drains and stops the collector.
func (sc *statsCollector) Stop() {
	close(sc.events)
	<-sc.done
}
