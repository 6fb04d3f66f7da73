// Package metrics defines the Prometheus collectors used across warelay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	InboundMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warelay_inbound_messages_total",
		Help: "Inbound session messages dispatched",
	})

	GuestListUploads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warelay_guest_list_uploads_total",
		Help: "Spreadsheet attachments saved as guest list",
	})

	PairingCodes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warelay_pairing_codes_total",
		Help: "Pairing codes issued by the session",
	})

	SessionReady = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warelay_session_ready",
		Help: "1 once the session signalled ready",
	})

	// ForwardedTotal counts downstream calls by route and result (ok, error, status).
	ForwardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warelay_forwarded_total",
		Help: "Downstream forwarding attempts",
	}, []string{"route", "result"})

	ForwardDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warelay_forward_dropped_total",
		Help: "Downstream payloads dropped before delivery",
	}, []string{"route", "reason"})

	// SendsTotal counts outbound sends by kind (text, media) and result.
	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warelay_sends_total",
		Help: "Outbound sends requested through the gateway",
	}, []string{"kind", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warelay_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

// Handler renders the default registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
