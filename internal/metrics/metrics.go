// Package metrics provides Prometheus metrics for the server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Connection metrics.
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collabvm",
		Subsystem: "conn",
		Name:      "connections_total",
		Help:      "Total number of client connections accepted.",
	})
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "collabvm",
		Subsystem: "conn",
		Name:      "connections_active",
		Help:      "Number of currently connected clients.",
	})
	QueueDropsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collabvm",
		Subsystem: "conn",
		Name:      "queue_drops_total",
		Help:      "Total number of outgoing frames dropped from a connection's bounded send queue.",
	})

	// Chat metrics.
	ChatMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collabvm",
		Subsystem: "chat",
		Name:      "messages_total",
		Help:      "Total number of chat messages accepted.",
	})
	ChatRateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collabvm",
		Subsystem: "chat",
		Name:      "rate_limited_total",
		Help:      "Total number of chat messages rejected for exceeding the rate limit.",
	})

	// Turn metrics.
	TurnGrantsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collabvm",
		Subsystem: "turn",
		Name:      "grants_total",
		Help:      "Total number of turns granted.",
	})
	TurnQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "collabvm",
		Subsystem: "turn",
		Name:      "queue_depth",
		Help:      "Current turn queue depth per VM.",
	}, []string{"vm"})

	// VM metrics.
	VMsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "collabvm",
		Subsystem: "vm",
		Name:      "running",
		Help:      "Number of VMs currently marked running.",
	})
	VMConnectedUsers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "collabvm",
		Subsystem: "vm",
		Name:      "connected_users",
		Help:      "Number of users connected per VM.",
	}, []string{"vm"})

	// Recording metrics.
	RecordingBytesWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collabvm",
		Subsystem: "recording",
		Name:      "bytes_written_total",
		Help:      "Total bytes written to recording files.",
	})
	RecordingFilesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "collabvm",
		Subsystem: "recording",
		Name:      "files_active",
		Help:      "Number of VMs currently recording.",
	})

	// Login metrics.
	LoginAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collabvm",
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Total login attempts, labeled by outcome.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		ConnectionsActive,
		QueueDropsTotal,

		ChatMessagesTotal,
		ChatRateLimitedTotal,

		TurnGrantsTotal,
		TurnQueueDepth,

		VMsRunning,
		VMConnectedUsers,

		RecordingBytesWrittenTotal,
		RecordingFilesActive,

		LoginAttemptsTotal,
	)
}
