package engine

import (
	"fmt"
	"time"

	"github.com/djorgosz2/car-card-game-server/internal/apperrors"
	"github.com/djorgosz2/car-card-game-server/internal/catalog"
	"github.com/djorgosz2/car-card-game-server/internal/models"
	"github.com/djorgosz2/car-card-game-server/internal/rng"
)

// Engine is the stateless rules engine. It holds only the catalog of card
// definitions, which is read-only for the process lifetime; every method
// takes a GameState and returns a new one, never mutating its receiver or
// its argument.
type Engine struct {
	catalog map[string]*models.CardDefinition
	// ordered preserves catalog load order so deck construction is
	// deterministic; ranging over catalog (a map) would not be.
	ordered []*models.CardDefinition
}

// New builds an Engine bound to the given catalog.
func New(cat *catalog.Catalog) *Engine {
	e := &Engine{
		catalog: make(map[string]*models.CardDefinition, len(cat.Definitions)),
		ordered: append([]*models.CardDefinition{}, cat.Definitions...),
	}
	for _, def := range cat.Definitions {
		e.catalog[def.ID] = def
	}
	return e
}

func (e *Engine) rngSource(seed uint32) *rng.Source { return rng.New(seed) }

// InitializeGame builds the starting GameState for a new match: shuffles a
// deterministic deck from the catalog's car and action cards, deals a
// starting hand to each player, and seeds the RNG. now stamps the first
// turn's start time.
func (e *Engine) InitializeGame(matchID string, players [2]PlayerInit, seed uint32, turnTimeLimitMs int64, now time.Time) models.GameState {
	source := e.rngSource(seed)

	instances := make([]models.CardInstance, 0, len(e.ordered))
	counter := 0
	for _, def := range e.ordered {
		counter++
		inst := models.CardInstance{InstanceID: fmt.Sprintf("card-%d", counter), DefID: def.ID}
		if def.Kind == models.CardKindCar {
			inst.Current = def.Metrics
			inst.Original = def.Metrics
		}
		instances = append(instances, inst)
	}

	source.Shuffle(len(instances), func(i, j int) { instances[i], instances[j] = instances[j], instances[i] })

	const startingHandSize = 5
	state := models.GameState{
		MatchID:          matchID,
		Status:           models.StatusPlaying,
		Phase:            models.PhaseWaitingForInitialPlay,
		TurnTimeLimitMs:  turnTimeLimitMs,
		TurnStartedAt:    now,
		Seed:             source.Seed(),
		Board:            make(map[string]models.PlayerBoard, 2),
		PendingModifiers: make(map[string]models.PendingModifier),
	}

	for i, p := range players {
		state.Players[i] = models.PlayerState{PlayerID: p.PlayerID, DisplayName: p.DisplayName, IsBot: p.IsBot}
		state.Board[p.PlayerID] = models.PlayerBoard{}
	}
	state.CurrentPlayer = players[0].PlayerID

	deal := func(n int) []models.CardInstance {
		if n > len(instances) {
			n = len(instances)
		}
		hand := instances[:n]
		instances = instances[n:]
		return append([]models.CardInstance{}, hand...)
	}
	state.Players[0].Hand = deal(startingHandSize)
	state.Players[1].Hand = deal(startingHandSize)
	state.DrawPile = instances

	return state.AppendLog(fmt.Sprintf("match %s initialized with seed %d", matchID, state.Seed))
}

// PlayCard submits a play for playerID. It validates and applies the card
// (action or car) and any pending modifier. If this play completes both
// board slots, the phase rests at both_cards_on_board: resolution happens
// separately via ResolveRound, giving the orchestrator's scheduled ~1s
// delay a real window to run in before the round resolves.
func (e *Engine) PlayCard(state models.GameState, playerID, instanceID string, payload PlayPayload) Result {
	if state.Status != models.StatusPlaying {
		return fail(apperrors.Validation("match is not playing"))
	}

	def, instance, err := e.validatePlay(state, playerID, instanceID, payload)
	if err != nil {
		return fail(err)
	}

	next := state

	switch def.Kind {
	case models.CardKindAction:
		next, err = e.applyActionCard(next, playerID, def, *instance)
		if err != nil {
			return fail(err)
		}
		next.Phase = models.PhaseWaitingForCarCardAfterAction

	case models.CardKindCar:
		player, _ := next.Player(playerID)
		next = next.WithPlayer(player.WithoutCard(instanceID))

		selected := payload.SelectedMetric
		car := *instance
		next, car, selected = applyPendingModifier(next, playerID, car, selected)

		if next.SelectedMetricForRound == nil && selected != nil {
			m := *selected
			next.SelectedMetricForRound = &m
		}

		board := next.Board[playerID]
		board.Car = models.BoardSlot{Card: &car}
		next.Board = cloneBoard(next.Board)
		next.Board[playerID] = board

		id := instanceID
		next.LastPlayedInstanceID = &id

		opponentBoard := next.Board[next.Opponent(playerID)]
		if opponentBoard.Car.Card != nil {
			next.Phase = models.PhaseBothCardsOnBoard
		} else {
			next.Phase = models.PhaseTurnEnded
		}
	}

	next = e.checkGameEnd(next)
	return ok(next)
}

// AdvanceTurn transitions out of round_resolved, choosing the next current
// player. It is legal only in round_resolved and is idempotent: calling it
// again once the phase has moved on is a no-op, per design note (1).
func (e *Engine) AdvanceTurn(state models.GameState) Result {
	if state.Status != models.StatusPlaying {
		return ok(state)
	}
	if state.Phase != models.PhaseRoundResolved {
		return ok(state)
	}
	next := advanceTurn(state)
	next = e.checkGameEnd(next)
	return ok(next)
}

// ResolveRound is the externally-invokable counterpart of the scheduled
// resolve step the orchestrator fires ~1s after both_cards_on_board is
// reached. It is idempotent: if the phase has already moved past
// both_cards_on_board it is a no-op.
func (e *Engine) ResolveRound(state models.GameState) Result {
	if state.Status != models.StatusPlaying {
		return ok(state)
	}
	if state.Phase != models.PhaseBothCardsOnBoard {
		return ok(state)
	}
	next, err := e.resolveRound(state)
	if err != nil {
		return fail(err)
	}
	next = e.checkGameEnd(next)
	return ok(next)
}

// RotateTurn is invoked by the orchestrator when it observes phase
// turn_ended: it flips CurrentPlayer to the opponent and reopens
// waiting_for_initial_play. It is a no-op outside turn_ended so the
// orchestrator can call it unconditionally after every publish.
func (e *Engine) RotateTurn(state models.GameState) Result {
	if state.Status != models.StatusPlaying || state.Phase != models.PhaseTurnEnded {
		return ok(state)
	}
	next := rotateTurn(state)
	next = e.checkGameEnd(next)
	return ok(next)
}

// Discard removes instanceID from the current player's hand while in
// must_discard, transitioning to round_resolved once the hand is back
// within the cap.
func (e *Engine) Discard(state models.GameState, playerID, instanceID string) Result {
	if state.Status != models.StatusPlaying {
		return fail(apperrors.Validation("match is not playing"))
	}
	if state.Phase != models.PhaseMustDiscard {
		return fail(apperrors.Validation("discard is not legal in phase %s", state.Phase))
	}
	if playerID != state.CurrentPlayer {
		return fail(apperrors.Validation("only the current player may discard"))
	}

	player, found := state.Player(playerID)
	if !found {
		return fail(apperrors.StateInconsistency("unknown player %q", playerID))
	}
	idx := player.FindInHand(instanceID)
	if idx < 0 {
		return fail(apperrors.Validation("instance %q is not in %s's hand", instanceID, playerID))
	}

	next := state
	discarded := player.Hand[idx]
	next = next.WithPlayer(player.WithoutCard(instanceID))
	next.Discard = append(append([]models.CardInstance{}, next.Discard...), discarded)

	if len(next.Players[next.PlayerIndex(playerID)].Hand) <= HandCap {
		next.Phase = models.PhaseRoundResolved
	}

	next = e.checkGameEnd(next)
	return ok(next)
}

// Forfeit ends the match immediately in favor of the opponent of
// forfeitingPlayerID: used by the orchestrator for disconnects, timeouts,
// and bot failures (spec.md §7).
func (e *Engine) Forfeit(state models.GameState, forfeitingPlayerID string) models.GameState {
	if state.Status != models.StatusPlaying {
		return state
	}
	next := state
	winner := next.Opponent(forfeitingPlayerID)
	next.Status = models.StatusWin
	next.MatchWinnerID = &winner
	next = next.AppendLog(fmt.Sprintf("%s forfeited, %s wins", forfeitingPlayerID, winner))
	return next
}

// checkGameEnd applies the two game-end conditions that follow from the
// state itself, in order: the current player has no car card while the
// phase requires one (opponent wins), then both hands and the draw pile are
// empty (tie). Forfeits are applied separately by Forfeit. The both-hands-empty tie condition is suppressed while a round sits in
// both_cards_on_board or must_discard, since both hands can be transiently
// empty with cards still on the board awaiting resolveRound to absorb them
// into the winner's hand.
func (e *Engine) checkGameEnd(state models.GameState) models.GameState {
	if state.Status != models.StatusPlaying {
		return state
	}

	requiresCar := state.Phase == models.PhaseWaitingForInitialPlay || state.Phase == models.PhaseWaitingForCarCardAfterAction
	if requiresCar {
		current, ok := state.Player(state.CurrentPlayer)
		if ok && !hasCarCard(current, e.catalog) {
			next := state
			winner := next.Opponent(state.CurrentPlayer)
			next.Status = models.StatusWin
			next.MatchWinnerID = &winner
			next = next.AppendLog(fmt.Sprintf("%s has no car cards, %s wins", state.CurrentPlayer, winner))
			return next
		}
	}

	// A round awaiting resolution (or its overflow discard) can leave both
	// hands empty with cards still sitting on the board; the tie check must
	// wait until resolveRound has absorbed them into the winner's hand.
	resolutionPending := state.Phase == models.PhaseBothCardsOnBoard || state.Phase == models.PhaseMustDiscard

	bothHandsEmpty := len(state.Players[0].Hand) == 0 && len(state.Players[1].Hand) == 0
	if bothHandsEmpty && len(state.DrawPile) == 0 && !resolutionPending {
		next := state
		next.Status = models.StatusTie
		next = next.AppendLog("both hands and the draw pile are empty, match tied")
		return next
	}

	return state
}

func hasCarCard(p models.PlayerState, defs map[string]*models.CardDefinition) bool {
	for _, c := range p.Hand {
		if c.IsCar(defs) {
			return true
		}
	}
	return false
}
