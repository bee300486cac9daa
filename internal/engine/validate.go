package engine

import (
	"github.com/djorgosz2/car-card-game-server/internal/apperrors"
	"github.com/djorgosz2/car-card-game-server/internal/models"
)

// validatePlay checks the legality of playing instanceID for playerID in
// state, per spec.md §4.1's play-validation paragraph. It never mutates
// state; it only inspects it.
func (e *Engine) validatePlay(state models.GameState, playerID, instanceID string, payload PlayPayload) (*models.CardDefinition, *models.CardInstance, error) {
	player, ok := state.Player(playerID)
	if !ok {
		return nil, nil, apperrors.StateInconsistency("unknown player %q", playerID)
	}

	idx := player.FindInHand(instanceID)
	if idx < 0 {
		return nil, nil, apperrors.Validation("instance %q is not in %s's hand", instanceID, playerID)
	}
	instance := player.Hand[idx]

	def, ok := e.catalog[instance.DefID]
	if !ok {
		return nil, nil, apperrors.StateInconsistency("no definition for %q", instance.DefID)
	}

	switch def.Kind {
	case models.CardKindAction:
		if state.Phase != models.PhaseWaitingForInitialPlay {
			return nil, nil, apperrors.Validation("action card %q cannot be played in phase %s", instanceID, state.Phase)
		}
	case models.CardKindCar:
		if state.Phase != models.PhaseWaitingForInitialPlay && state.Phase != models.PhaseWaitingForCarCardAfterAction {
			return nil, nil, apperrors.Validation("car card %q cannot be played in phase %s", instanceID, state.Phase)
		}
		if err := e.validateRoundMetric(state, def, payload); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, apperrors.StateInconsistency("card %q has unknown kind %q", instanceID, def.Kind)
	}

	return def, &instance, nil
}

// validateRoundMetric enforces that the first car played in a round carries
// a metric selection unless one is already set (e.g. by an override_metric
// pending modifier), and that any selection is a recognized metric name.
func (e *Engine) validateRoundMetric(state models.GameState, def *models.CardDefinition, payload PlayPayload) error {
	firstCarThisRound := state.Board[state.CurrentPlayer].Car.Card == nil && state.Board[state.Opponent(state.CurrentPlayer)].Car.Card == nil

	pending, hasPending := state.PendingModifiers[state.CurrentPlayer]
	overridePending := hasPending && pending.Effect.Type == models.EffectOverrideMetric

	if state.SelectedMetricForRound != nil {
		return nil
	}
	if overridePending {
		if payload.SelectedMetric == nil || !payload.SelectedMetric.IsValid() {
			return apperrors.Validation("override_metric play requires a valid selectedMetric")
		}
		if !metricPermitted(pending.Effect.PermittedMetrics, *payload.SelectedMetric) {
			return apperrors.Validation("metric %q is not permitted by the pending override", *payload.SelectedMetric)
		}
		return nil
	}
	if firstCarThisRound {
		if payload.SelectedMetric == nil || !payload.SelectedMetric.IsValid() {
			return apperrors.Validation("first car of the round requires a valid selectedMetric")
		}
	}
	return nil
}

// metricPermitted reports whether m is in permitted, or permitted is empty
// (meaning any of the five valid metrics is allowed).
func metricPermitted(permitted []models.Metric, m models.Metric) bool {
	if len(permitted) == 0 {
		return m.IsValid()
	}
	for _, p := range permitted {
		if p == m {
			return true
		}
	}
	return false
}
