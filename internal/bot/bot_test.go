package bot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djorgosz2/car-card-game-server/internal/bot"
	"github.com/djorgosz2/car-card-game-server/internal/models"
)

func carInstance(id string) models.CardInstance {
	return models.CardInstance{
		InstanceID: id, DefID: "car-def",
		Current: models.MetricVector{Speed: 100, HP: 100, Accel: 5, Weight: 1000, Year: 2000},
	}
}

func testDefs() map[string]*models.CardDefinition {
	return map[string]*models.CardDefinition{
		"car-def": {ID: "car-def", Kind: models.CardKindCar},
	}
}

// Regression: a bot whose hand overflows the cap after winning a round
// must discard rather than forfeit the match it just won.
func TestChoose_MustDiscard_ReturnsDiscardMoveNotForfeit(t *testing.T) {
	hand := make([]models.CardInstance, 0, 11)
	for i := 0; i < 11; i++ {
		hand = append(hand, carInstance("c"+string(rune('a'+i))))
	}
	state := models.GameState{
		Status:        models.StatusPlaying,
		Phase:         models.PhaseMustDiscard,
		CurrentPlayer: "bot-1",
		Players: [2]models.PlayerState{
			{PlayerID: "bot-1", IsBot: true, Hand: hand},
			{PlayerID: "p2"},
		},
	}

	move, ok := bot.Choose(state, "bot-1", testDefs())
	require.True(t, ok, "bot must have a legal move while it holds cards to discard")
	assert.Equal(t, bot.KindDiscard, move.Kind)
	assert.Equal(t, hand[0].InstanceID, move.InstanceID)
}

func TestChoose_MustDiscard_FailsOnlyWithEmptyHand(t *testing.T) {
	state := models.GameState{
		Status:        models.StatusPlaying,
		Phase:         models.PhaseMustDiscard,
		CurrentPlayer: "bot-1",
		Players: [2]models.PlayerState{
			{PlayerID: "bot-1", IsBot: true},
			{PlayerID: "p2"},
		},
	}

	_, ok := bot.Choose(state, "bot-1", testDefs())
	assert.False(t, ok)
}

func TestChoose_WaitingForInitialPlay_PicksFirstCarInHand(t *testing.T) {
	state := models.GameState{
		Status:        models.StatusPlaying,
		Phase:         models.PhaseWaitingForInitialPlay,
		CurrentPlayer: "bot-1",
		Seed:          7,
		Players: [2]models.PlayerState{
			{PlayerID: "bot-1", IsBot: true, Hand: []models.CardInstance{carInstance("c1")}},
			{PlayerID: "p2"},
		},
	}

	move, ok := bot.Choose(state, "bot-1", testDefs())
	require.True(t, ok)
	assert.Equal(t, bot.KindPlay, move.Kind)
	assert.Equal(t, "c1", move.InstanceID)
	assert.NotNil(t, move.Payload.SelectedMetric)
}

func TestChoose_NoCarInHand_ReturnsFalse(t *testing.T) {
	state := models.GameState{
		Status:        models.StatusPlaying,
		Phase:         models.PhaseWaitingForInitialPlay,
		CurrentPlayer: "bot-1",
		Players: [2]models.PlayerState{
			{PlayerID: "bot-1", IsBot: true},
			{PlayerID: "p2"},
		},
	}

	_, ok := bot.Choose(state, "bot-1", testDefs())
	assert.False(t, ok)
}
