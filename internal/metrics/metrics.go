package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClockSyncTotal counts clock sync attempts by result (ok|failed).
	ClockSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_clock_sync_total",
		Help: "Total number of clock sync attempts by result",
	}, []string{"result"})

	// ClockOffsetSeconds is the offset applied to local UTC for timestamp tokens.
	ClockOffsetSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "iptv_clock_offset_seconds",
		Help: "Current offset between the local clock and the trusted time source",
	})

	// PlayTotal counts play attempts by result (ok or an error kind).
	PlayTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_play_total",
		Help: "Total number of play attempts by result",
	}, []string{"result"})

	// HandoffTotal counts surface handoffs by policy and result.
	HandoffTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_handoff_total",
		Help: "Total number of surface handoffs by policy and result",
	}, []string{"policy", "result"})

	// HandoffDuration tracks how long a surface handoff takes end to end.
	HandoffDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "iptv_handoff_duration_seconds",
		Help:    "Time taken to move playback between surfaces",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"policy"})

	// ProbeTotal counts advisory server probes by result (available|unavailable).
	ProbeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_probe_total",
		Help: "Total number of advisory server probes by result",
	}, []string{"result"})

	// SessionState is 1 for the current playback state and 0 for the others.
	SessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "iptv_session_state",
		Help: "Current playback session state",
	}, []string{"state"})

	// ImportTotal counts list imports by kind (channels|servers) and result.
	ImportTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_import_total",
		Help: "Total number of list imports by kind and result",
	}, []string{"kind", "result"})

	// RejectedRequests counts API requests turned away by reason (client|host).
	RejectedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_http_rejected_total",
		Help: "Total number of API requests rejected before reaching a handler",
	}, []string{"reason"})
)

var sessionStates = []string{"idle", "loading", "playing", "stopped"}

// SetSessionState flips the session state gauge to the given state.
func SetSessionState(state string) {
	for _, s := range sessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		SessionState.WithLabelValues(s).Set(v)
	}
}

// Result maps an error kind to a label value, "ok" for success.
func Result(kind string) string {
	if kind == "" {
		return "ok"
	}
	return kind
}
