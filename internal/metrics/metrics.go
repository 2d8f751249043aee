package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ide_sessions_active",
		Help: "Connected websocket sessions",
	}, []string{"namespace"})

	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ide_frames_received_total",
		Help: "Inbound frames decoded by the gateway",
	}, []string{"namespace", "event"})

	FramesInvalid = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ide_frames_invalid_total",
		Help: "Inbound frames dropped because they could not be decoded",
	}, []string{"namespace"})

	FramesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ide_frames_rejected_total",
		Help: "Inbound frames dropped because they address a project the session was not admitted to",
	}, []string{"namespace"})

	FramesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ide_frames_relayed_total",
		Help: "Document frames fanned out to a room",
	}, []string{"event"})

	FanoutTargets = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ide_fanout_targets",
		Help:    "Recipients per broadcast",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})

	SlowConsumers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ide_slow_consumer_disconnects_total",
		Help: "Sessions closed because their outbound queue was full",
	}, []string{"namespace"})

	RoomTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ide_room_transitions_total",
		Help: "Room joins and leaves",
	}, []string{"namespace", "transition"})

	Watchers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ide_fs_watchers_active",
		Help: "Projects with a running file observer",
	})

	FileEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ide_fs_events_total",
		Help: "File change events fanned out",
	}, []string{"event"})

	Terminals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ide_terminals_active",
		Help: "Running terminal processes",
	})
)
