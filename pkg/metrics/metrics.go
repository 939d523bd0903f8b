package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "gogotex", Name: "active_sessions", Help: "Documents with at least one connected participant."},
	)
	ConnectedParticipants = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "gogotex", Name: "connected_participants", Help: "Participants attached to a live session."},
	)
	BroadcastEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Name: "broadcast_events_total", Help: "Events enqueued to peers by event type."},
		[]string{"type"},
	)
	BroadcastDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "gogotex", Name: "broadcast_dropped_total", Help: "Events dropped because a peer queue was full."},
	)

	Flushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Name: "flushes_total", Help: "Durable write-backs of live content by trigger."},
		[]string{"trigger"},
	)
	FlushFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Name: "flush_failures_total", Help: "Failed durable write-backs by trigger."},
		[]string{"trigger"},
	)
	VersionsCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Name: "versions_captured_total", Help: "Version snapshots appended by capture reason."},
		[]string{"reason"},
	)

	CompileAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Name: "compile_attempts_total", Help: "Rendering strategy attempts by strategy and outcome."},
		[]string{"strategy", "outcome"},
	)
	CompileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "gogotex", Name: "compile_duration_seconds", Help: "Rendering strategy latency.", Buckets: prometheus.DefBuckets},
		[]string{"strategy"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(ActiveSessions, ConnectedParticipants)
	reg.MustRegister(BroadcastEvents, BroadcastDropped)
	reg.MustRegister(Flushes, FlushFailures, VersionsCaptured)
	reg.MustRegister(CompileAttempts, CompileDuration)
}
