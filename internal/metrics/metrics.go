// Package metrics exposes the coordinator's Prometheus instruments.
//
// All Recorder methods are safe to call on a nil *Recorder, so components can
// be constructed without metrics in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatroom"

// Recorder owns the session counters and gauges.
type Recorder struct {
	rooms           prometheus.Gauge
	connections     prometheus.Gauge
	joins           *prometheus.CounterVec
	messages        prometheus.Counter
	rateLimited     prometheus.Counter
	reactions       prometheus.Counter
	roomsEvicted    prometheus.Counter
	staleSwept      prometheus.Counter
	handlerFailures prometheus.Counter
}

// NewRecorder creates the instruments and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms currently held in memory, including rooms pending eviction.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live connections known to the coordinator.",
		}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_total",
			Help:      "Successful joins, labelled by whether they replaced a stale member.",
		}, []string{"reconnect"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages appended to room history.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rate_limited_total",
			Help:      "Messages rejected by the per-connection rate limiter.",
		}),
		reactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactions_total",
			Help:      "Reaction toggles applied to a message.",
		}),
		roomsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_evicted_total",
			Help:      "Empty rooms deleted after their grace period.",
		}),
		staleSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_connections_total",
			Help:      "Connections reported idle by the sweep.",
		}),
		handlerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Inbound events that failed with an internal error.",
		}),
	}

	collectors := []prometheus.Collector{
		r.rooms, r.connections, r.joins, r.messages, r.rateLimited,
		r.reactions, r.roomsEvicted, r.staleSwept, r.handlerFailures,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// SetRooms records the current number of rooms.
func (r *Recorder) SetRooms(n int) {
	if r == nil {
		return
	}
	r.rooms.Set(float64(n))
}

// SetConnections records the current number of connections.
func (r *Recorder) SetConnections(n int) {
	if r == nil {
		return
	}
	r.connections.Set(float64(n))
}

// Joined counts a successful join.
func (r *Recorder) Joined(reconnect bool) {
	if r == nil {
		return
	}
	label := "false"
	if reconnect {
		label = "true"
	}
	r.joins.WithLabelValues(label).Inc()
}

// MessageStored counts a message appended to history.
func (r *Recorder) MessageStored() {
	if r == nil {
		return
	}
	r.messages.Inc()
}

// RateLimited counts a rejected message.
func (r *Recorder) RateLimited() {
	if r == nil {
		return
	}
	r.rateLimited.Inc()
}

// ReactionToggled counts an applied reaction.
func (r *Recorder) ReactionToggled() {
	if r == nil {
		return
	}
	r.reactions.Inc()
}

// RoomsEvicted counts deleted rooms.
func (r *Recorder) RoomsEvicted(n int) {
	if r == nil || n == 0 {
		return
	}
	r.roomsEvicted.Add(float64(n))
}

// StaleConnections counts connections reported by the idle sweep.
func (r *Recorder) StaleConnections(n int) {
	if r == nil || n == 0 {
		return
	}
	r.staleSwept.Add(float64(n))
}

// HandlerFailed counts an internal error while handling an event.
func (r *Recorder) HandlerFailed() {
	if r == nil {
		return
	}
	r.handlerFailures.Inc()
}
