package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what the relay is doing. Every Server gets it's own
// instance on it's own registry, so parallel servers in tests don't
// collide; the service passes the registry it serves over /metrics.
type Metrics struct {
	ConnectedClients prometheus.Gauge
	PendingRequests  prometheus.Gauge
	FramesTotal      prometheus.Counter
	MalformedFrames  prometheus.Counter
	RoutedMessages   *prometheus.CounterVec
	RequestTimeouts  prometheus.Counter
	KickedClients    prometheus.Counter
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "live",
			Name:      "connected_clients",
			Help:      "Number of attached clients",
		}),

		PendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "live",
			Name:      "pending_requests",
			Help:      "Requests forwarded to the host still awaiting an answer",
		}),

		FramesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "live",
			Name:      "frames_total",
			Help:      "Complete frames extracted from client streams",
		}),

		MalformedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "live",
			Name:      "malformed_frames_total",
			Help:      "Frames dropped because they were not JSON objects",
		}),

		RoutedMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "live",
			Name:      "routed_messages_total",
			Help:      "Messages routed, by classification",
		}, []string{"class"}),

		RequestTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "live",
			Name:      "request_timeouts_total",
			Help:      "Requests the host failed to answer before the deadline",
		}),

		KickedClients: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "live",
			Name:      "kicked_clients_total",
			Help:      "Clients dropped for exceeding the buffer limit",
		}),
	}
}
