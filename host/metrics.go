// Package host implements the host side of the preference protocol: it
// answers brokered value requests from storage, collects leaf logs, relays
// direct store edits to leaves and builds backends from configuration.
package host

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CreativeUnicorns/leafprefs"
)

// Request results.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultInvalid = "invalid"
)

// Metrics holds the host's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Requests   *prometheus.CounterVec
	LogLines   prometheus.Counter
	Changes    prometheus.Counter
	Suppressed prometheus.Counter
	Routed     *prometheus.CounterVec
	APIWrites  *prometheus.CounterVec
}

// NewMetrics registers the leafprefs collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leafprefs_value_requests_total",
			Help: "Brokered value requests answered, by result",
		}, []string{"result"}),
		LogLines: factory.NewCounter(prometheus.CounterOpts{
			Name: "leafprefs_leaf_log_lines_total",
			Help: "Log lines received from leaves",
		}),
		Changes: factory.NewCounter(prometheus.CounterOpts{
			Name: "leafprefs_store_changes_relayed_total",
			Help: "Store file edits published to leaves",
		}),
		Suppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "leafprefs_store_changes_suppressed_total",
			Help: "Store file edits not published because their token was already announced",
		}),
		Routed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leafprefs_bus_messages_total",
			Help: "Payloads routed by the WebSocket hub, by channel class",
		}, []string{"class"}),
		APIWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leafprefs_api_writes_total",
			Help: "Values written through the HTTP API, by kind",
		}, []string{"kind"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveConnections exports fn as the number of connected leaves.
func (m *Metrics) ObserveConnections(fn func() int) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "leafprefs_hub_connections",
		Help: "Leaves connected to the WebSocket hub",
	}, func() float64 { return float64(fn()) })
}

// ObserveRouted counts one payload routed on channel. Safe on a nil Metrics.
func (m *Metrics) ObserveRouted(channel string) {
	if m == nil {
		return
	}
	m.Routed.WithLabelValues(ChannelClass(channel)).Inc()
}

func (m *Metrics) request(result string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(result).Inc()
}

func (m *Metrics) logLine() {
	if m == nil {
		return
	}
	m.LogLines.Inc()
}

func (m *Metrics) change() {
	if m == nil {
		return
	}
	m.Changes.Inc()
}

func (m *Metrics) suppressed() {
	if m == nil {
		return
	}
	m.Suppressed.Inc()
}

// ObserveWrite counts one API write of kind. Safe on a nil Metrics.
func (m *Metrics) ObserveWrite(kind leafprefs.Kind) {
	if m == nil {
		return
	}
	m.APIWrites.WithLabelValues(kind.String()).Inc()
}

// ChannelClass buckets a channel name into request, response, log or change.
func ChannelClass(channel string) string {
	switch {
	case channel == leafprefs.ValueRequestChannel:
		return "request"
	case strings.HasPrefix(channel, leafprefs.ValueResponsePrefix):
		return "response"
	case channel == leafprefs.LogChannel:
		return "log"
	default:
		return "change"
	}
}
