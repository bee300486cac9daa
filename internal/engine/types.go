// Package engine is the pure rules engine: given a GameState and a player
// input it produces either a new GameState or a validation failure. It
// performs no I/O and reads the wall clock only through the time.Time each
// function is handed, so it is fully deterministic given a seed.
package engine

import (
	"github.com/djorgosz2/car-card-game-server/internal/models"
)

// PlayerInit describes one player at game initialization.
type PlayerInit struct {
	PlayerID    string
	DisplayName string
	IsBot       bool
}

// PlayPayload is the optional data accompanying a play, mirroring the
// game:playCard wire payload in spec.md §6.
type PlayPayload struct {
	SelectedMetric *models.Metric
	TargetPlayerID *string
}

// HandCap is the maximum hand size before a must_discard phase triggers.
const HandCap = 10

// Result is the outcome of an engine step: either a new state or a
// rejection reason. The engine never panics on a bad player input; illegal
// plays come back as Result{Err: ...} with State left at its zero value, so
// callers must check Err before touching State.
type Result struct {
	State models.GameState
	Err   error
}

func ok(state models.GameState) Result  { return Result{State: state} }
func fail(err error) Result             { return Result{Err: err} }
