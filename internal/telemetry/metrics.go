package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "squadquiz"

// Answer outcomes.
const (
	AnswerAccepted      = "accepted"
	AnswerDuplicate     = "duplicate"
	AnswerLate          = "late"
	AnswerUnknownRound  = "unknown_round"
	AnswerUnknownPlayer = "unknown_player"
	AnswerNotRunning    = "not_running"
)

var (
	Answers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answers_total",
		Help:      "Answers received by the session coordinator, by outcome.",
	}, []string{"outcome"})

	RoundsConcluded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rounds_concluded_total",
		Help:      "Rounds concluded, by the trigger that concluded them.",
	}, []string{"trigger"})

	ConclusionsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conclusions_suppressed_total",
		Help:      "Conclusion attempts that found the round already ended, by trigger.",
	}, []string{"trigger"})

	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrollments_total",
		Help:      "Enrollment requests, by result code.",
	}, []string{"result"})

	Games = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "games_total",
		Help:      "Games started and ended.",
	}, []string{"state"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Sessions present in the active-session registry.",
	})

	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections",
		Help:      "Open participant connections.",
	})

	InboundDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_dropped_total",
		Help:      "Inbound participant messages dropped before reaching a session, by reason.",
	}, []string{"reason"})
)

// Event handler outcomes.
const (
	HandlerOK    = "ok"
	HandlerError = "error"
	HandlerPanic = "panic"
)

var EventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "events_handled_total",
	Help:      "Domain event deliveries to bus handlers, by event name and outcome.",
}, []string{"event", "outcome"})

var (
	GRPCCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "grpc_calls_total",
		Help:      "Operator gRPC calls, by method and status code.",
	}, []string{"method", "code"})

	RedisCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "redis_commands_total",
		Help:      "Redis commands, by command name and result.",
	}, []string{"command", "result"})
)
