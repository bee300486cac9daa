package engine

import (
	"fmt"

	"github.com/djorgosz2/car-card-game-server/internal/apperrors"
	"github.com/djorgosz2/car-card-game-server/internal/models"
)

// applyActionCard plays instance as an action card for playerID. Action
// cards never touch metrics directly: they record a pending modifier on a
// target player, adjust the global turn time limit, mark an extra turn, or
// immediately discard a random opponent card. The action card instance
// itself moves onto the player's action board slot until the round
// resolves, per spec.md §4.1.
func (e *Engine) applyActionCard(state models.GameState, playerID string, def *models.CardDefinition, instance models.CardInstance) (models.GameState, error) {
	if def.Effect == nil {
		return state, apperrors.StateInconsistency("action card %q has no effect descriptor", def.ID)
	}

	next := state
	player, _ := next.Player(playerID)
	next = next.WithPlayer(player.WithoutCard(instance.InstanceID))

	board := next.Board[playerID]
	board.Action = models.BoardSlot{Card: &instance}
	next.Board = cloneBoard(next.Board)
	next.Board[playerID] = board

	opponentID := next.Opponent(playerID)
	effect := *def.Effect

	switch effect.Type {
	case models.EffectTimeMod:
		next.TurnTimeLimitMs += int64(effect.TimeDeltaSeconds) * 1000

	case models.EffectExtraTurn:
		id := playerID
		next.ExtraTurnPlayerID = &id

	case models.EffectMetricModTemp, models.EffectMetricModPerm, models.EffectOverrideMetric:
		targetID := playerID
		if effect.Target == models.TargetOpponent {
			targetID = opponentID
		}
		next.PendingModifiers = clonePendingModifiers(next.PendingModifiers)
		next.PendingModifiers[targetID] = models.PendingModifier{
			TargetPlayerID:         targetID,
			SourcePlayerID:         playerID,
			SourceActionInstanceID: instance.InstanceID,
			Effect:                 effect,
		}

	case models.EffectDropCard:
		opponent, ok := next.Player(opponentID)
		if !ok {
			return state, apperrors.StateInconsistency("unknown opponent %q", opponentID)
		}
		if len(opponent.Hand) > 0 {
			source := e.rngSource(next.Seed).Perturb(len(opponent.Hand))
			dropIdx := source.Intn(len(opponent.Hand))
			next.Seed = source.Seed()
			dropped := opponent.Hand[dropIdx]
			opponent = opponent.WithoutCard(dropped.InstanceID)
			next = next.WithPlayer(opponent)
			next.Discard = append(append([]models.CardInstance{}, next.Discard...), dropped)
		}

	default:
		return state, apperrors.StateInconsistency("unknown effect type %q", effect.Type)
	}

	next = next.AppendLog(fmt.Sprintf("%s played action %s", playerID, def.ID))
	return next, nil
}

// applyPendingModifier applies playerID's pending modifier (if any) to the
// car about to be played, per spec.md §4.1's pending-modifier-application
// paragraph, and clears the modifier. override_metric plays are handled by
// the caller (they set SelectedMetricForRound, not a metric value).
func applyPendingModifier(state models.GameState, playerID string, car models.CardInstance, selected *models.Metric) (models.GameState, models.CardInstance, *models.Metric) {
	pending, ok := state.PendingModifiers[playerID]
	if !ok {
		return state, car, selected
	}

	next := state
	next.PendingModifiers = clonePendingModifiers(next.PendingModifiers)
	delete(next.PendingModifiers, playerID)

	switch pending.Effect.Type {
	case models.EffectMetricModTemp, models.EffectMetricModPerm:
		orig := car.Original.Get(pending.Effect.TargetMetric)
		var newValue float64
		switch pending.Effect.ModifierType {
		case models.ModifierPercentage:
			newValue = orig * (1 + pending.Effect.Value/100)
		case models.ModifierAbsolute:
			newValue = orig + pending.Effect.Value
		}
		car.Current = car.Current.With(pending.Effect.TargetMetric, newValue)
		if pending.Effect.Type == models.EffectMetricModPerm {
			car.IsModifiedPermanently = true
			car.Original = car.Original.With(pending.Effect.TargetMetric, newValue)
		}

	case models.EffectOverrideMetric:
		if selected != nil {
			m := *selected
			selected = &m
		}
	}

	return next, car, selected
}

// resolveRound compares the selected metric on the two boarded cars,
// assigns winner-takes-both or tie-returns-own, clears both board slots,
// and transitions phase to must_discard (if the winner's hand now exceeds
// the cap) or round_resolved.
func (e *Engine) resolveRound(state models.GameState) (models.GameState, error) {
	p1, p2 := state.Players[0].PlayerID, state.Players[1].PlayerID
	b1, b2 := state.Board[p1].Car.Card, state.Board[p2].Car.Card
	if b1 == nil || b2 == nil {
		return state, apperrors.StateInconsistency("resolveRound called with an empty car slot")
	}
	if state.SelectedMetricForRound == nil {
		return state, apperrors.StateInconsistency("resolveRound called with no selected metric")
	}
	metric := *state.SelectedMetricForRound

	v1, v2 := b1.Current.Get(metric), b2.Current.Get(metric)

	var winnerID *string
	switch {
	case v1 == v2:
		winnerID = nil
	case metric.LowerWins():
		if v1 < v2 {
			id := p1
			winnerID = &id
		} else {
			id := p2
			winnerID = &id
		}
	default:
		if v1 > v2 {
			id := p1
			winnerID = &id
		} else {
			id := p2
			winnerID = &id
		}
	}

	next := state
	next.Board = make(map[string]models.PlayerBoard, len(state.Board))
	for k := range state.Board {
		next.Board[k] = models.PlayerBoard{}
	}

	if winnerID == nil {
		owner1, _ := next.Player(p1)
		owner2, _ := next.Player(p2)
		next = next.WithPlayer(owner1.WithCard(*b1))
		next = next.WithPlayer(owner2.WithCard(*b2))
		next = next.AppendLog("round tied, cards returned")
	} else {
		winner, _ := next.Player(*winnerID)
		winner = winner.WithCard(*b1).WithCard(*b2)
		winner.Score++
		next = next.WithPlayer(winner)
		next = next.AppendLog(fmt.Sprintf("%s won the round on %s", *winnerID, metric))
	}

	next.RoundWinnerID = winnerID

	if winnerID != nil {
		winner, _ := next.Player(*winnerID)
		if len(winner.Hand) > HandCap {
			next.Phase = models.PhaseMustDiscard
			next.CurrentPlayer = *winnerID
			return next, nil
		}
	}
	next.Phase = models.PhaseRoundResolved
	return next, nil
}

// advanceTurn picks the next current player per spec.md §4.1: extra-turn
// flag first, then the round winner, then (a tie) the opponent of the
// player who was current. Phase resets to waiting_for_initial_play and the
// round's transient fields are cleared.
func advanceTurn(state models.GameState) models.GameState {
	next := state

	var nextPlayer string
	switch {
	case next.ExtraTurnPlayerID != nil:
		nextPlayer = *next.ExtraTurnPlayerID
		next.ExtraTurnPlayerID = nil
	case next.RoundWinnerID != nil:
		nextPlayer = *next.RoundWinnerID
	default:
		nextPlayer = next.Opponent(next.CurrentPlayer)
	}

	next.CurrentPlayer = nextPlayer
	next.Phase = models.PhaseWaitingForInitialPlay
	next.SelectedMetricForRound = nil
	next.RoundWinnerID = nil
	next.LastPlayedInstanceID = nil

	return next
}

// rotateTurn implements the table's "(orchestrator rotates current
// player)" note for the turn_ended phase.
func rotateTurn(state models.GameState) models.GameState {
	next := state
	next.CurrentPlayer = next.Opponent(next.CurrentPlayer)
	next.Phase = models.PhaseWaitingForInitialPlay
	return next
}

func cloneBoard(board map[string]models.PlayerBoard) map[string]models.PlayerBoard {
	next := make(map[string]models.PlayerBoard, len(board))
	for k, v := range board {
		next[k] = v
	}
	return next
}

func clonePendingModifiers(pm map[string]models.PendingModifier) map[string]models.PendingModifier {
	next := make(map[string]models.PendingModifier, len(pm))
	for k, v := range pm {
		next[k] = v
	}
	return next
}
