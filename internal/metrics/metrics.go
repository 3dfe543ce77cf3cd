// Package metrics exposes Prometheus instruments for both delivery channels.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "conecta"

// Channel label values.
const (
	Durable   = "durable"
	Transient = "transient"
)

type Metrics struct {
	Sent             prometheus.Counter
	PersistFailures  prometheus.Counter
	Published        prometheus.Counter
	PublishDropped   *prometheus.CounterVec
	EchoSuppressed   prometheus.Counter
	LiveAppended     prometheus.Counter
	SnapshotsApplied prometheus.Counter
	Malformed        *prometheus.CounterVec
	BrokerConns      prometheus.Gauge
}

// New registers the instruments on reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		Sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages appended to the durable store.",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Durable appends that failed.",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transient_published_total",
			Help:      "Messages published to the broker.",
		}),
		PublishDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transient_dropped_total",
			Help:      "Broker publishes skipped or failed, by reason.",
		}, []string{"reason"}),
		EchoSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "echo_suppressed_total",
			Help:      "Broker deliveries dropped as an echo of the last entry.",
		}),
		LiveAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_appended_total",
			Help:      "Broker deliveries appended to a view.",
		}),
		SnapshotsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_applied_total",
			Help:      "Durable snapshots that replaced a view.",
		}),
		Malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_records_total",
			Help:      "Entries skipped because they failed to decode, by channel.",
		}, []string{"channel"}),
		BrokerConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_connections",
			Help:      "Sessions currently holding a live broker connection.",
		}),
	}

	reg.MustRegister(
		m.Sent,
		m.PersistFailures,
		m.Published,
		m.PublishDropped,
		m.EchoSuppressed,
		m.LiveAppended,
		m.SnapshotsApplied,
		m.Malformed,
		m.BrokerConns,
	)

	return m
}

func (m *Metrics) IncSent() {
	if m != nil {
		m.Sent.Inc()
	}
}

func (m *Metrics) IncPersistFailure() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) IncPublished() {
	if m != nil {
		m.Published.Inc()
	}
}

func (m *Metrics) IncPublishDropped(reason string) {
	if m != nil {
		m.PublishDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncEchoSuppressed() {
	if m != nil {
		m.EchoSuppressed.Inc()
	}
}

func (m *Metrics) IncLiveAppended() {
	if m != nil {
		m.LiveAppended.Inc()
	}
}

func (m *Metrics) IncSnapshotApplied() {
	if m != nil {
		m.SnapshotsApplied.Inc()
	}
}

func (m *Metrics) IncMalformed(channel string) {
	if m != nil {
		m.Malformed.WithLabelValues(channel).Inc()
	}
}

// BrokerConnected counts one session's connection coming up or going down.
// Each up must be matched by exactly one down.
func (m *Metrics) BrokerConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.BrokerConns.Inc()
	} else {
		m.BrokerConns.Dec()
	}
}
