// Package metrics exposes feedwatch counters in Prometheus format.
//
// A Collector is a supervisor sink (counts events) and observer (counts
// connection attempts and drops, tracks per-topic state, counts message
// failures). Collectors are registered on a private registry so several
// instances can coexist, e.g. in tests.
package metrics

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/feedwatch/internal/channel"
	"github.com/nerrad567/feedwatch/internal/feed"
)

const namespace = "feedwatch"

// Message error kinds.
const (
	KindMalformed = "malformed"
	KindHandler   = "handler"
	KindOther     = "other"
)

// EventOther is the events_total label for events outside the bookmark set.
const EventOther = "other"

// Collector owns the feedwatch metrics and their registry.
type Collector struct {
	registry *prometheus.Registry

	events            *prometheus.CounterVec
	connectAttempts   *prometheus.CounterVec
	disconnects       *prometheus.CounterVec
	messageErrors     *prometheus.CounterVec
	subscriptionState *prometheus.GaugeVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates a Collector with Go runtime and process collectors attached.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Application events received, by topic and event name (unknown names count as other).",
		}, []string{"topic", "event"}),
		connectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Connection attempts, by topic.",
		}, []string{"topic"}),
		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Subscribed sessions that ended with an error, by topic.",
		}, []string{"topic"}),
		messageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_errors_total",
			Help:      "Per-message failures, by topic and kind (malformed, handler).",
		}, []string{"topic", "kind"}),
		subscriptionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscription_state",
			Help:      "1 for the current state of each topic client, 0 otherwise.",
		}, []string{"topic", "state"}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Status API requests.",
		}, []string{"method", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Status API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// HandleEvent counts one received event.
func (c *Collector) HandleEvent(_ context.Context, topic, event string, _ channel.Payload) error {
	c.events.WithLabelValues(topic, eventLabel(event)).Inc()
	return nil
}

// eventLabel maps server-chosen event names onto a fixed label set.
func eventLabel(event string) string {
	if feed.IsBookmarkEvent(event) {
		return event
	}
	return EventOther
}

// ObserveTransition updates the state gauge and connection counters.
func (c *Collector) ObserveTransition(tr channel.Transition) {
	for _, s := range channel.AllStates() {
		v := 0.0
		if s == tr.To {
			v = 1
		}
		c.subscriptionState.WithLabelValues(tr.Topic, s.String()).Set(v)
	}

	switch {
	case tr.To == channel.StateConnecting:
		c.connectAttempts.WithLabelValues(tr.Topic).Inc()
	case tr.To == channel.StateDisconnected && tr.From == channel.StateSubscribed && tr.Err != nil:
		c.disconnects.WithLabelValues(tr.Topic).Inc()
	}
}

// ObserveError counts a per-message failure.
func (c *Collector) ObserveError(topic string, err error) {
	c.messageErrors.WithLabelValues(topic, errorKind(err)).Inc()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, channel.ErrMalformedMessage):
		return KindMalformed
	case errors.Is(err, channel.ErrHandlerFailure):
		return KindHandler
	default:
		return KindOther
	}
}

// HTTPMiddleware records request counts and durations for the status API.
// Paths are not used as labels to keep cardinality bounded.
func (c *Collector) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		c.httpRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		c.httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rw.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes websocket upgrades through to the underlying writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
