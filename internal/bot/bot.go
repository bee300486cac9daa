// Package bot implements the deterministic, minimally-capable opponent
// strategy described in spec.md §4.4: sufficient for automated tests and
// single-player filler, not a competitive AI.
package bot

import (
	"github.com/djorgosz2/car-card-game-server/internal/engine"
	"github.com/djorgosz2/car-card-game-server/internal/models"
	"github.com/djorgosz2/car-card-game-server/internal/rng"
)

// Kind distinguishes what a chosen Move submits through.
type Kind int

const (
	// KindPlay submits through engine.PlayCard.
	KindPlay Kind = iota
	// KindDiscard submits through engine.Discard.
	KindDiscard
)

// Move is the bot's chosen action: an instance identifier plus, for a
// KindPlay move, the payload to submit through the same engine path a
// human play would use.
type Move struct {
	Kind       Kind
	InstanceID string
	Payload    engine.PlayPayload
}

// Choose picks a move for playerID given the current state, using only the
// match seed for its one random decision (metric choice) so that bot play
// is reproducible from the seed like every other random decision in the
// match. It returns false if the bot has no legal move (no car card while
// one is required, or an empty hand while a discard is required).
func Choose(state models.GameState, playerID string, catalog map[string]*models.CardDefinition) (Move, bool) {
	player, ok := state.Player(playerID)
	if !ok {
		return Move{}, false
	}

	if state.Phase == models.PhaseMustDiscard {
		if len(player.Hand) == 0 {
			return Move{}, false
		}
		// Lowest-index discard: deterministic given the deterministic deal
		// order, no further randomness needed.
		return Move{Kind: KindDiscard, InstanceID: player.Hand[0].InstanceID}, true
	}

	requiresCar := state.Phase == models.PhaseWaitingForInitialPlay || state.Phase == models.PhaseWaitingForCarCardAfterAction
	if !requiresCar {
		return Move{}, false
	}

	var chosen *models.CardInstance
	for i := range player.Hand {
		c := player.Hand[i]
		if c.IsCar(catalog) {
			chosen = &c
			break
		}
	}
	if chosen == nil {
		return Move{}, false
	}

	payload := engine.PlayPayload{}
	if state.SelectedMetricForRound == nil {
		source := rng.New(state.Seed)
		m := models.Metrics[source.Intn(len(models.Metrics))]
		payload.SelectedMetric = &m
	}

	return Move{Kind: KindPlay, InstanceID: chosen.InstanceID, Payload: payload}, true
}
