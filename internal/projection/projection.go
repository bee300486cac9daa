// Package projection builds the client-visible reduction of a GameState:
// the view a specific player is allowed to see, per spec.md §4.3. It is
// the unit the orchestrator diffs against each client's last-sent
// snapshot.
package projection

import "github.com/djorgosz2/car-card-game-server/internal/models"

// CardView is the projected shape of a single card instance. Hidden
// entries carry only InstanceID and the sentinel definition identifier.
type CardView struct {
	InstanceID            string             `json:"instanceId"`
	DefID                 string             `json:"defId"`
	Current               *models.MetricVector `json:"currentMetrics,omitempty"`
	Original              *models.MetricVector `json:"originalMetrics,omitempty"`
	IsModifiedPermanently bool               `json:"isModifiedPermanently,omitempty"`
}

// BoardView mirrors models.PlayerBoard with card views instead of raw
// instances.
type BoardView struct {
	Car    *CardView `json:"car,omitempty"`
	Action *CardView `json:"action,omitempty"`
}

// View is the full client-visible projection of a GameState for one
// requesting player.
type View struct {
	MatchID                string                `json:"matchId"`
	Players                [2]PlayerView         `json:"players"`
	CurrentPlayerID        string                `json:"currentPlayerId"`
	GameStatus             models.Status         `json:"gameStatus"`
	RoundWinnerID          *string               `json:"roundWinnerId"`
	WinnerID               *string               `json:"winnerId"`
	SelectedMetricForRound *models.Metric        `json:"selectedMetricForRound"`
	Board                  map[string]BoardView  `json:"board"`
	DrawPileSize           int                   `json:"drawPileSize"`
	LastPlayedInstanceID   *string               `json:"lastPlayedInstanceId"`
	TurnTimeLimitMs        int64                 `json:"turnTimeLimitMs"`
	CurrentPlayerPhase     models.Phase          `json:"currentPlayerPhase"`
}

// PlayerView is one player's projected hand.
type PlayerView struct {
	PlayerID    string      `json:"playerId"`
	DisplayName string      `json:"displayName"`
	Hand        []CardView  `json:"hand"`
	Score       int         `json:"score"`
	IsBot       bool        `json:"isBot"`
}

// For builds the projection of state as seen by requestingPlayerID: the
// requester's own hand is preserved fully, the opponent's hand is reduced
// to instance identifiers with the hidden sentinel, the draw pile becomes
// a size, and the RNG seed never appears at all.
func For(state models.GameState, requestingPlayerID string) View {
	view := View{
		MatchID:                state.MatchID,
		CurrentPlayerID:        state.CurrentPlayer,
		GameStatus:             state.Status,
		RoundWinnerID:          state.RoundWinnerID,
		WinnerID:               state.MatchWinnerID,
		SelectedMetricForRound: state.SelectedMetricForRound,
		DrawPileSize:           len(state.DrawPile),
		LastPlayedInstanceID:   state.LastPlayedInstanceID,
		TurnTimeLimitMs:        state.TurnTimeLimitMs,
		CurrentPlayerPhase:     state.Phase,
		Board:                  make(map[string]BoardView, len(state.Board)),
	}

	for i, p := range state.Players {
		hidden := p.PlayerID != requestingPlayerID
		hand := make([]CardView, len(p.Hand))
		for j, c := range p.Hand {
			hand[j] = cardView(c, hidden)
		}
		view.Players[i] = PlayerView{
			PlayerID:    p.PlayerID,
			DisplayName: p.DisplayName,
			Hand:        hand,
			Score:       p.Score,
			IsBot:       p.IsBot,
		}
	}

	for playerID, board := range state.Board {
		hidden := playerID != requestingPlayerID
		view.Board[playerID] = BoardView{
			Car:    boardSlotView(board.Car, hidden),
			Action: boardSlotView(board.Action, hidden),
		}
	}

	return view
}

func cardView(c models.CardInstance, hidden bool) CardView {
	if hidden {
		return CardView{InstanceID: c.InstanceID, DefID: models.HiddenDefinitionID}
	}
	current, original := c.Current, c.Original
	return CardView{
		InstanceID:            c.InstanceID,
		DefID:                 c.DefID,
		Current:                &current,
		Original:               &original,
		IsModifiedPermanently: c.IsModifiedPermanently,
	}
}

func boardSlotView(slot models.BoardSlot, hidden bool) *CardView {
	if slot.Card == nil {
		return nil
	}
	// Board slots are always face-up to both players once played (the
	// rules engine never hides a card that's already on the board), so
	// "hidden" only suppresses the opponent's *hand*, not their board.
	_ = hidden
	view := cardView(*slot.Card, false)
	return &view
}
