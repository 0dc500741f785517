package protocol

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts link activity. A nil *Metrics records nothing.
type Metrics struct {
	framesEncoded  *prometheus.CounterVec
	framesDecoded  *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	bytesDiscarded prometheus.Counter
}

// NewMetrics registers the link metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		framesEncoded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sonido_frames_encoded_total",
			Help: "Frames encoded for transmission",
		}, []string{"type"}),
		framesDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sonido_frames_decoded_total",
			Help: "Frames decoded and dispatched",
		}, []string{"type"}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sonido_frames_dropped_total",
			Help: "Partial or complete frames discarded by the decoder",
		}, []string{"reason"}),
		bytesDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonido_bytes_discarded_total",
			Help: "Received bytes that did not end up in a delivered frame",
		}),
	}
}

func (m *Metrics) encoded(t Type) {
	if m == nil {
		return
	}
	m.framesEncoded.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) decoded(t Type) {
	if m == nil {
		return
	}
	m.framesDecoded.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) dropped(reason error) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reasonLabel(reason)).Inc()
}

func (m *Metrics) discarded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesDiscarded.Add(float64(n))
}
