package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records relay activity. The prometheus implementation backs
// the /metrics endpoint; Noop is for tests.
type Collector interface {
	ClientRegistered(clientType string)
	ClientUnregistered(clientType string)
	MessageReceived(msgType string)
	MessageSent(msgType string)

	FrameReceived(sizeBytes int)
	ChunkBroadcast(sizeBytes, viewers int)
	ViewerSubscribed()
	ViewerUnsubscribed()

	TerminalOpened()
	TerminalClosed()

	Handler() http.Handler
}

type PrometheusCollector struct {
	activeClients   prometheus.Gauge
	registrations   *prometheus.CounterVec
	unregistrations *prometheus.CounterVec
	messagesIn      *prometheus.CounterVec
	messagesOut     *prometheus.CounterVec

	framesReceived  prometheus.Counter
	frameBytes      prometheus.Histogram
	chunksBroadcast prometheus.Counter
	activeViewers   prometheus.Gauge

	activeTerminals prometheus.Gauge
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		activeClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_clients",
			Help: "Number of registered signaling clients",
		}),
		registrations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_client_registrations_total",
				Help: "Total client registrations",
			},
			[]string{"client_type"},
		),
		unregistrations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_client_unregistrations_total",
				Help: "Total client unregistrations",
			},
			[]string{"client_type"},
		),
		messagesIn: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_messages_received_total",
				Help: "Total signaling messages received",
			},
			[]string{"message_type"},
		),
		messagesOut: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_messages_sent_total",
				Help: "Total signaling messages delivered",
			},
			[]string{"message_type"},
		),
		framesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_frames_received_total",
			Help: "Total frames pushed by producers",
		}),
		frameBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_frame_size_bytes",
			Help:    "Size of decoded frames in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12),
		}),
		chunksBroadcast: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_stream_chunks_total",
			Help: "Total encoded chunks broadcast to viewers",
		}),
		activeViewers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_viewers",
			Help: "Number of subscribed stream viewers",
		}),
		activeTerminals: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_terminals",
			Help: "Number of open terminal sessions",
		}),
	}
}

func (c *PrometheusCollector) ClientRegistered(clientType string) {
	c.registrations.WithLabelValues(clientType).Inc()
	c.activeClients.Inc()
}

func (c *PrometheusCollector) ClientUnregistered(clientType string) {
	c.unregistrations.WithLabelValues(clientType).Inc()
	c.activeClients.Dec()
}

func (c *PrometheusCollector) MessageReceived(msgType string) {
	c.messagesIn.WithLabelValues(msgType).Inc()
}

func (c *PrometheusCollector) MessageSent(msgType string) {
	c.messagesOut.WithLabelValues(msgType).Inc()
}

func (c *PrometheusCollector) FrameReceived(sizeBytes int) {
	c.framesReceived.Inc()
	c.frameBytes.Observe(float64(sizeBytes))
}

func (c *PrometheusCollector) ChunkBroadcast(sizeBytes, viewers int) {
	c.chunksBroadcast.Inc()
}

func (c *PrometheusCollector) ViewerSubscribed()   { c.activeViewers.Inc() }
func (c *PrometheusCollector) ViewerUnsubscribed() { c.activeViewers.Dec() }

func (c *PrometheusCollector) TerminalOpened() { c.activeTerminals.Inc() }
func (c *PrometheusCollector) TerminalClosed() { c.activeTerminals.Dec() }

func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.Handler()
}

// Noop discards every observation.
type Noop struct{}

func (Noop) ClientRegistered(string)   {}
func (Noop) ClientUnregistered(string) {}
func (Noop) MessageReceived(string)    {}
func (Noop) MessageSent(string)        {}
func (Noop) FrameReceived(int)         {}
func (Noop) ChunkBroadcast(int, int)   {}
func (Noop) ViewerSubscribed()         {}
func (Noop) ViewerUnsubscribed()       {}
func (Noop) TerminalOpened()           {}
func (Noop) TerminalClosed()           {}
func (Noop) Handler() http.Handler     { return http.NotFoundHandler() }
