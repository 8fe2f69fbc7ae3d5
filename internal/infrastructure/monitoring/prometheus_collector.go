package monitoring

import (
	"time"

	"livebridge/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	publishesTotal  *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
	relayResults    *prometheus.CounterVec
	controlPlaneUp  *prometheus.GaugeVec
	streamLive      prometheus.Gauge
	syncMessages    *prometheus.CounterVec
}

// NewPrometheusCollector registers the collectors on reg; pass
// prometheus.DefaultRegisterer in production.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		publishesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livebridge_publishes_total",
			Help: "Signed events published, by kind, status and outcome",
		}, []string{"kind", "status", "outcome"}),

		publishDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livebridge_publish_duration_seconds",
			Help:    "Time to fan one event out to every relay",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"kind"}),

		relayResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livebridge_relay_results_total",
			Help: "Per-relay publish results",
		}, []string{"relay", "outcome"}),

		controlPlaneUp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "livebridge_control_plane_connected",
			Help: "1 when the manager holds a control-plane session",
		}, []string{"manager"}),

		streamLive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livebridge_stream_live",
			Help: "1 while the Stream Manager status is live",
		}),

		syncMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livebridge_sync_messages_total",
			Help: "Sync channel messages by channel, type and direction",
		}, []string{"channel", "type", "direction"}),
	}
}

func (p *PrometheusCollector) RecordPublish(kind int, status string, accepted bool, duration time.Duration) {
	k := kindLabel(kind)
	p.publishesTotal.WithLabelValues(k, status, outcome(accepted)).Inc()
	p.publishDuration.WithLabelValues(k).Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordRelayResult(relay string, ok bool) {
	p.relayResults.WithLabelValues(relay, outcome(ok)).Inc()
}

func (p *PrometheusCollector) SetControlPlaneConnected(manager string, connected bool) {
	p.controlPlaneUp.WithLabelValues(manager).Set(boolToFloat(connected))
}

func (p *PrometheusCollector) SetStreamStatus(status domain.Status) {
	p.streamLive.Set(boolToFloat(status == domain.StatusLive))
}

func (p *PrometheusCollector) RecordSyncMessage(channel domain.SyncChannel, messageType, direction string) {
	p.syncMessages.WithLabelValues(string(channel), messageType, direction).Inc()
}

func kindLabel(kind int) string {
	switch kind {
	case domain.KindLiveEvent:
		return "live_event"
	case domain.KindLiveMessage:
		return "live_message"
	default:
		return "other"
	}
}

func outcome(ok bool) string {
	if ok {
		return "accepted"
	}
	return "rejected"
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NopRecorder discards all metrics.
type NopRecorder struct{}

func (NopRecorder) RecordPublish(int, string, bool, time.Duration)       {}
func (NopRecorder) RecordRelayResult(string, bool)                       {}
func (NopRecorder) SetControlPlaneConnected(string, bool)                {}
func (NopRecorder) SetStreamStatus(domain.Status)                        {}
func (NopRecorder) RecordSyncMessage(domain.SyncChannel, string, string) {}
