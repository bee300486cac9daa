// Package metrics exposes the server's Prometheus instrumentation: active
// match and lobby queue gauges plus lifetime counters for matches started
// and ended. client_golang is the only metrics dependency in the retrieved
// reference corpus with a direct, importable Go client (zap and the
// Firebase/Firestore SDKs cover logging and persistence, not metrics), so
// this is the natural home for it even though the teacher's own services
// never got around to registering it themselves.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	// ActiveMatches is the current number of matches in progress.
	ActiveMatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cardcards_active_matches",
		Help: "Number of matches currently in progress.",
	})

	// LobbyQueueSize is the current number of players waiting in the lobby.
	LobbyQueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cardcards_lobby_queue_size",
		Help: "Number of players currently queued for a match.",
	})

	// MatchesStartedTotal counts every match that has ever started.
	MatchesStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cardcards_matches_started_total",
		Help: "Total number of matches started since process start.",
	})

	// MatchesEndedTotal counts every match that has ever ended, labeled by
	// how it ended (win, tie).
	MatchesEndedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cardcards_matches_ended_total",
		Help: "Total number of matches ended, by outcome.",
	}, []string{"outcome"})

	// BotSpawnsTotal counts every bot the lobby has spawned to pair with a
	// lone waiting human.
	BotSpawnsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cardcards_bot_spawns_total",
		Help: "Total number of bot opponents spawned by the lobby.",
	})
)

func init() {
	prometheus.MustRegister(ActiveMatches, LobbyQueueSize, MatchesStartedTotal, MatchesEndedTotal, BotSpawnsTotal)
}

// Handler returns the HTTP handler that serves the registered metrics in
// the Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
