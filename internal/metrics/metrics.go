package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LobbiesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monopoly_lobbies_created_total",
			Help: "Total lobbies created",
		},
	)
	LobbiesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monopoly_lobbies_active",
			Help: "Lobbies currently registered",
		},
	)
	Connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monopoly_ws_connections",
			Help: "Open websocket connections",
		},
	)
	Messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monopoly_messages_total",
			Help: "Inbound messages by type",
		},
		[]string{"type"},
	)
	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monopoly_errors_total",
			Help: "Errors reported to clients by code",
		},
		[]string{"code"},
	)
	GamesFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monopoly_games_finished_total",
			Help: "Games that reached GAME_OVER or were ended",
		},
		[]string{"reason"},
	)
	ChoiceTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monopoly_choice_timeouts_total",
			Help: "Choices resolved by their timeout default",
		},
		[]string{"kind"},
	)
	DroppedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monopoly_dropped_messages_total",
			Help: "Outbound messages dropped because a client queue was full",
		},
	)

	// HTTP rate limiter
	RLRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_requests_total",
			Help: "Total requests seen by the rate limiter",
		},
		[]string{"endpoint"},
	)
	RLBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_blocked_total",
			Help: "Total requests blocked by the rate limiter",
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(
		LobbiesCreated, LobbiesActive, Connections, Messages, Errors,
		GamesFinished, ChoiceTimeouts, DroppedMessages, RLRequests, RLBlocked,
	)
}
