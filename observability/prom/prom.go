package prom

import (
	"net/http"
	"time"

	"github.com/floegence/d2dpair/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a fresh Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Handler returns a Prometheus HTTP handler bound to the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// HandshakeObserver exports handshake metrics to Prometheus.
type HandshakeObserver struct {
	handshakeTotal   *prometheus.CounterVec
	handshakeLatency *prometheus.HistogramVec
}

// NewHandshakeObserver registers handshake metrics on the registry.
func NewHandshakeObserver(reg prometheus.Registerer) *HandshakeObserver {
	o := &HandshakeObserver{
		handshakeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "d2dpair_handshake_total",
			Help: "UKEY2 handshakes by role, result and reason.",
		}, []string{"role", "result", "reason"}),
		handshakeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "d2dpair_handshake_latency_seconds",
			Help:    "Time from the first handshake message to a ready verification string.",
			Buckets: prometheus.DefBuckets,
		}, []string{"role"}),
	}
	reg.MustRegister(o.handshakeTotal, o.handshakeLatency)
	return o
}

func (o *HandshakeObserver) Handshake(role observability.HandshakeRole, result observability.HandshakeResult, reason observability.HandshakeReason) {
	o.handshakeTotal.WithLabelValues(string(role), string(result), string(reason)).Inc()
}

func (o *HandshakeObserver) HandshakeLatency(role observability.HandshakeRole, d time.Duration) {
	o.handshakeLatency.WithLabelValues(string(role)).Observe(d.Seconds())
}

// RecordObserver exports record-layer metrics to Prometheus.
type RecordObserver struct {
	recordTotal *prometheus.CounterVec
	recordBytes *prometheus.CounterVec
}

// NewRecordObserver registers record metrics on the registry.
func NewRecordObserver(reg prometheus.Registerer) *RecordObserver {
	o := &RecordObserver{
		recordTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "d2dpair_records_total",
			Help: "Encrypted records by direction and result.",
		}, []string{"direction", "result"}),
		recordBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "d2dpair_record_plaintext_bytes_total",
			Help: "Plaintext bytes sealed or opened successfully.",
		}, []string{"direction"}),
	}
	reg.MustRegister(o.recordTotal, o.recordBytes)
	return o
}

func (o *RecordObserver) Record(direction observability.RecordDirection, result observability.RecordResult, bytes int) {
	o.recordTotal.WithLabelValues(string(direction), string(result)).Inc()
	if result == observability.RecordResultOK && bytes > 0 {
		o.recordBytes.WithLabelValues(string(direction)).Add(float64(bytes))
	}
}
