package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djorgosz2/car-card-game-server/internal/apperrors"
	"github.com/djorgosz2/car-card-game-server/internal/catalog"
	"github.com/djorgosz2/car-card-game-server/internal/engine"
	"github.com/djorgosz2/car-card-game-server/internal/models"
)

func testCatalog() *catalog.Catalog {
	return catalog.FromDefinitions([]*models.CardDefinition{
		{ID: "car-fast", Name: "Fast Car", Kind: models.CardKindCar, Metrics: models.MetricVector{Speed: 200, HP: 300, Accel: 4, Weight: 1200, Year: 2020}},
		{ID: "car-slow", Name: "Slow Car", Kind: models.CardKindCar, Metrics: models.MetricVector{Speed: 120, HP: 200, Accel: 8, Weight: 1500, Year: 2010}},
		{ID: "act-hp-perm", Name: "Perm HP Boost", Kind: models.CardKindAction, Effect: &models.EffectDescriptor{
			Type: models.EffectMetricModPerm, TargetMetric: models.MetricHP, Value: 50, ModifierType: models.ModifierAbsolute, Target: models.TargetSelf,
		}},
		{ID: "act-override", Name: "Override", Kind: models.CardKindAction, Effect: &models.EffectDescriptor{
			Type: models.EffectOverrideMetric,
		}},
		{ID: "act-time", Name: "Time Mod", Kind: models.CardKindAction, Effect: &models.EffectDescriptor{
			Type: models.EffectTimeMod, TimeDeltaSeconds: 10,
		}},
		{ID: "act-drop", Name: "Drop Card", Kind: models.CardKindAction, Effect: &models.EffectDescriptor{
			Type: models.EffectDropCard,
		}},
		{ID: "act-extra", Name: "Extra Turn", Kind: models.CardKindAction, Effect: &models.EffectDescriptor{
			Type: models.EffectExtraTurn,
		}},
	})
}

func baseState(p1Hand, p2Hand []models.CardInstance) models.GameState {
	return models.GameState{
		MatchID:       "m1",
		Status:        models.StatusPlaying,
		Phase:         models.PhaseWaitingForInitialPlay,
		CurrentPlayer: "p1",
		Players: [2]models.PlayerState{
			{PlayerID: "p1", DisplayName: "P1", Hand: p1Hand},
			{PlayerID: "p2", DisplayName: "P2", Hand: p2Hand},
		},
		Board:            map[string]models.PlayerBoard{"p1": {}, "p2": {}},
		PendingModifiers: map[string]models.PendingModifier{},
		TurnTimeLimitMs:  60000,
		Seed:             42,
	}
}

func carInstance(id, defID string, metrics models.MetricVector) models.CardInstance {
	return models.CardInstance{InstanceID: id, DefID: defID, Current: metrics, Original: metrics}
}

func metricPtr(m models.Metric) *models.Metric { return &m }

// S1: straight car duel, deterministic.
func TestPlayCard_StraightDuel(t *testing.T) {
	e := engine.New(testCatalog())

	state := baseState(
		[]models.CardInstance{carInstance("c1", "car-fast", models.MetricVector{Speed: 200, HP: 300, Accel: 4, Weight: 1200, Year: 2020})},
		[]models.CardInstance{carInstance("c2", "car-slow", models.MetricVector{Speed: 120, HP: 200, Accel: 8, Weight: 1500, Year: 2010})},
	)

	res := e.PlayCard(state, "p1", "c1", engine.PlayPayload{SelectedMetric: metricPtr(models.MetricHP)})
	require.NoError(t, res.Err)
	state = res.State
	assert.Equal(t, models.PhaseTurnEnded, state.Phase)

	res = e.RotateTurn(state)
	require.NoError(t, res.Err)
	state = res.State
	assert.Equal(t, "p2", state.CurrentPlayer)
	assert.Equal(t, models.PhaseWaitingForInitialPlay, state.Phase)

	initialHandTotal := 2 // p1's c1 plus p2's c2, the only two cards in play

	res = e.PlayCard(state, "p2", "c2", engine.PlayPayload{})
	require.NoError(t, res.Err)
	state = res.State

	assert.Equal(t, models.PhaseBothCardsOnBoard, state.Phase)
	assert.Equal(t, models.StatusPlaying, state.Status)
	assert.Nil(t, state.MatchWinnerID)
	require.NotNil(t, state.Board["p1"].Car.Card)
	require.NotNil(t, state.Board["p2"].Car.Card)

	res = e.ResolveRound(state)
	require.NoError(t, res.Err)
	state = res.State
	res = e.AdvanceTurn(state)
	require.NoError(t, res.Err)
	state = res.State

	assert.Nil(t, state.Board["p1"].Car.Card)
	assert.Nil(t, state.Board["p2"].Car.Card)
	assert.Nil(t, state.SelectedMetricForRound)

	postTotal := len(state.Players[0].Hand) + len(state.Players[1].Hand)
	assert.Equal(t, initialHandTotal, postTotal)
	// p1's car has the higher hp (300 > 200) so p1 should have won both cards.
	assert.Equal(t, 1, state.Players[0].Score)
	assert.Len(t, state.Players[0].Hand, 2)
}

// S2: permanent HP boost.
func TestPlayCard_PermanentMetricBoost(t *testing.T) {
	e := engine.New(testCatalog())

	state := baseState(
		[]models.CardInstance{
			{InstanceID: "a1", DefID: "act-hp-perm"},
			carInstance("c1", "car-fast", models.MetricVector{Speed: 200, HP: 300, Accel: 4, Weight: 1200, Year: 2020}),
		},
		[]models.CardInstance{carInstance("c2", "car-slow", models.MetricVector{Speed: 120, HP: 200, Accel: 8, Weight: 1500, Year: 2010})},
	)

	res := e.PlayCard(state, "p1", "a1", engine.PlayPayload{})
	require.NoError(t, res.Err)
	state = res.State
	assert.Equal(t, models.PhaseWaitingForCarCardAfterAction, state.Phase)

	res = e.PlayCard(state, "p1", "c1", engine.PlayPayload{SelectedMetric: metricPtr(models.MetricHP)})
	require.NoError(t, res.Err)
	state = res.State

	boarded := state.Board["p1"].Car.Card
	require.NotNil(t, boarded)
	assert.Equal(t, float64(350), boarded.Current.HP)
	assert.True(t, boarded.IsModifiedPermanently)

	res = e.RotateTurn(state)
	require.NoError(t, res.Err)
	state = res.State

	res = e.PlayCard(state, "p2", "c2", engine.PlayPayload{})
	require.NoError(t, res.Err)
	state = res.State

	res = e.ResolveRound(state)
	require.NoError(t, res.Err)
	state = res.State

	require.NotNil(t, state.RoundWinnerID)
	assert.Equal(t, "p1", *state.RoundWinnerID)

	var winningCar *models.CardInstance
	for _, c := range state.Players[0].Hand {
		if c.InstanceID == "c1" {
			card := c
			winningCar = &card
		}
	}
	require.NotNil(t, winningCar)
	assert.Equal(t, float64(350), winningCar.Current.HP)
}

// S3: override metric.
func TestPlayCard_OverrideMetric(t *testing.T) {
	e := engine.New(testCatalog())

	state := baseState(
		[]models.CardInstance{
			{InstanceID: "a1", DefID: "act-override"},
			carInstance("c1", "car-fast", models.MetricVector{Speed: 200, HP: 300, Accel: 4, Weight: 1200, Year: 2020}),
		},
		[]models.CardInstance{carInstance("c2", "car-slow", models.MetricVector{Speed: 120, HP: 200, Accel: 8, Weight: 1500, Year: 2010})},
	)

	res := e.PlayCard(state, "p1", "a1", engine.PlayPayload{})
	require.NoError(t, res.Err)
	state = res.State

	res = e.PlayCard(state, "p1", "c1", engine.PlayPayload{SelectedMetric: metricPtr(models.MetricWeight)})
	require.NoError(t, res.Err)
	state = res.State
	require.NotNil(t, state.SelectedMetricForRound)
	assert.Equal(t, models.MetricWeight, *state.SelectedMetricForRound)

	res = e.RotateTurn(state)
	require.NoError(t, res.Err)
	state = res.State

	// p2 plays without specifying a metric; the round metric is already set.
	res = e.PlayCard(state, "p2", "c2", engine.PlayPayload{})
	require.NoError(t, res.Err)
	state = res.State

	res = e.ResolveRound(state)
	require.NoError(t, res.Err)
	state = res.State

	require.NotNil(t, state.RoundWinnerID)
	// weight: lower wins. p1's car weighs 1200, p2's weighs 1500 -> p1 wins.
	assert.Equal(t, "p1", *state.RoundWinnerID)
}

// S6: hand cap triggers must_discard.
func TestResolveRound_HandCapTriggersDiscard(t *testing.T) {
	e := engine.New(testCatalog())

	p1Hand := make([]models.CardInstance, 0, 10)
	for i := 0; i < 9; i++ {
		p1Hand = append(p1Hand, carInstance(fmtID("filler", i), "car-slow", models.MetricVector{Speed: 1, HP: 1, Accel: 1, Weight: 1, Year: 1}))
	}
	p1Hand = append(p1Hand, carInstance("c1", "car-fast", models.MetricVector{Speed: 200, HP: 300, Accel: 4, Weight: 1200, Year: 2020}))

	state := baseState(p1Hand, []models.CardInstance{carInstance("c2", "car-slow", models.MetricVector{Speed: 120, HP: 200, Accel: 8, Weight: 1500, Year: 2010})})

	res := e.PlayCard(state, "p1", "c1", engine.PlayPayload{SelectedMetric: metricPtr(models.MetricHP)})
	require.NoError(t, res.Err)
	state = res.State

	res = e.RotateTurn(state)
	require.NoError(t, res.Err)
	state = res.State

	res = e.PlayCard(state, "p2", "c2", engine.PlayPayload{})
	require.NoError(t, res.Err)
	state = res.State

	res = e.ResolveRound(state)
	require.NoError(t, res.Err)
	state = res.State

	assert.Equal(t, models.PhaseMustDiscard, state.Phase)
	assert.Equal(t, "p1", state.CurrentPlayer)
	assert.Len(t, state.Players[0].Hand, 11)

	res = e.Discard(state, "p1", state.Players[0].Hand[0].InstanceID)
	require.NoError(t, res.Err)
	state = res.State
	assert.Equal(t, models.PhaseRoundResolved, state.Phase)
	assert.Len(t, state.Players[0].Hand, 10)
}

// A validation-rejected play leaves the input state untouched.
func TestPlayCard_RejectedPlayLeavesStateUnchanged(t *testing.T) {
	e := engine.New(testCatalog())

	state := baseState(
		[]models.CardInstance{carInstance("c1", "car-fast", models.MetricVector{Speed: 200, HP: 300, Accel: 4, Weight: 1200, Year: 2020})},
		[]models.CardInstance{carInstance("c2", "car-slow", models.MetricVector{Speed: 120, HP: 200, Accel: 8, Weight: 1500, Year: 2010})},
	)

	// no metric selected on the first car of the round: must be rejected.
	res := e.PlayCard(state, "p1", "c1", engine.PlayPayload{})
	require.Error(t, res.Err)
	assert.True(t, apperrors.Is(res.Err, apperrors.KindValidation))
	assert.Equal(t, models.GameState{}, res.State)

	// state passed in is never mutated.
	assert.Len(t, state.Players[0].Hand, 1)
	assert.Equal(t, models.PhaseWaitingForInitialPlay, state.Phase)
}

// Determinism: same seed + same inputs -> identical resulting state.
func TestInitializeGame_Deterministic(t *testing.T) {
	e := engine.New(testCatalog())
	players := [2]engine.PlayerInit{{PlayerID: "p1", DisplayName: "P1"}, {PlayerID: "p2", DisplayName: "P2"}}

	now := time.Unix(0, 0)
	s1 := e.InitializeGame("m1", players, 42, 60000, now)
	s2 := e.InitializeGame("m1", players, 42, 60000, now)

	assert.Equal(t, s1.Seed, s2.Seed)
	assert.Equal(t, s1.Players[0].Hand, s2.Players[0].Hand)
	assert.Equal(t, s1.Players[1].Hand, s2.Players[1].Hand)
	assert.Equal(t, s1.DrawPile, s2.DrawPile)
}

// Card conservation across a full round.
func TestPlayCard_CardConservation(t *testing.T) {
	e := engine.New(testCatalog())
	state := baseState(
		[]models.CardInstance{carInstance("c1", "car-fast", models.MetricVector{Speed: 200, HP: 300, Accel: 4, Weight: 1200, Year: 2020})},
		[]models.CardInstance{carInstance("c2", "car-slow", models.MetricVector{Speed: 120, HP: 200, Accel: 8, Weight: 1500, Year: 2010})},
	)
	before := countInstances(state)

	res := e.PlayCard(state, "p1", "c1", engine.PlayPayload{SelectedMetric: metricPtr(models.MetricHP)})
	require.NoError(t, res.Err)
	state = res.State
	res = e.RotateTurn(state)
	require.NoError(t, res.Err)
	state = res.State
	res = e.PlayCard(state, "p2", "c2", engine.PlayPayload{})
	require.NoError(t, res.Err)
	state = res.State
	res = e.ResolveRound(state)
	require.NoError(t, res.Err)
	state = res.State

	after := countInstances(state)
	assert.Equal(t, before, after)
}

func countInstances(s models.GameState) int {
	total := len(s.Players[0].Hand) + len(s.Players[1].Hand) + len(s.DrawPile) + len(s.Discard)
	for _, b := range s.Board {
		if b.Car.Card != nil {
			total++
		}
		if b.Action.Card != nil {
			total++
		}
	}
	return total
}

func fmtID(prefix string, i int) string {
	return prefix + "-" + string(rune('a'+i))
}
