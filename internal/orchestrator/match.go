// Package orchestrator drives one active match: it mediates between
// external events (player input, timers, bot ticks) and the pure rules
// engine, keeps per-client last-sent snapshots, and publishes diffs. One
// Match owns exactly one goroutine mailbox loop, grounded on the teacher's
// match-service processMatch select loop, so that every mutation to this
// match's state is strictly serialized: player inputs, timer fires,
// resolve/auto-advance callbacks, and bot steps for the same match never
// interleave mid-update.
package orchestrator

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/djorgosz2/car-card-game-server/internal/apperrors"
	"github.com/djorgosz2/car-card-game-server/internal/bot"
	"github.com/djorgosz2/car-card-game-server/internal/engine"
	"github.com/djorgosz2/car-card-game-server/internal/jsonpatch"
	"github.com/djorgosz2/car-card-game-server/internal/metrics"
	"github.com/djorgosz2/car-card-game-server/internal/models"
	"github.com/djorgosz2/car-card-game-server/internal/projection"
)

const (
	resolveDelay      = 1 * time.Second
	autoAdvanceDelay  = 1500 * time.Millisecond
	botStepDelay      = 1500 * time.Millisecond
)

// cmd is one self-message processed by the match's mailbox loop.
type cmd struct {
	run  func()
	done chan struct{}
}

// Match owns the mutable "current state" of one in-progress game, per
// spec.md §4.2.
type Match struct {
	id      string
	eng     *engine.Engine
	catalog map[string]*models.CardDefinition
	log     *logrus.Entry

	state models.GameState

	channels map[string]ClientChannel      // playerID -> channel, human only
	lastSent map[string]interface{}        // playerID -> last projected JSON tree

	mailbox chan cmd
	stop    chan struct{}
	ended   bool

	turnTimer   *time.Timer
	resolveGen  int
	advanceGen  int
	botStepGen  int
	generation  int

	onEnd func(matchID string)
}

// New initializes a match's starting state via the engine and returns a
// Match ready to Start. catalog must be the same map the engine was built
// from, used by the bot policy and game-end checks.
func New(id string, eng *engine.Engine, catalog map[string]*models.CardDefinition, players [2]engine.PlayerInit, seed uint32, turnTimeLimitMs int64, onEnd func(string), log *logrus.Entry) *Match {
	state := eng.InitializeGame(id, players, seed, turnTimeLimitMs, time.Now())
	metrics.ActiveMatches.Inc()
	metrics.MatchesStartedTotal.Inc()
	return &Match{
		id:       id,
		eng:      eng,
		catalog:  catalog,
		log:      log,
		state:    state,
		channels: make(map[string]ClientChannel),
		lastSent: make(map[string]interface{}),
		mailbox:  make(chan cmd, 16),
		stop:     make(chan struct{}),
		onEnd:    onEnd,
	}
}

// Start registers the human clients' channels, publishes game:start and an
// initial full game:stateUpdate to each, and arms the first schedule. It
// must be called once, before the mailbox loop is started with Run.
func (m *Match) Start(channels map[string]ClientChannel) {
	for id, ch := range channels {
		m.channels[id] = ch
	}

	players := make([]PlayerSummary, len(m.state.Players))
	for i, p := range m.state.Players {
		players[i] = PlayerSummary{UserID: p.PlayerID, Username: p.DisplayName, IsBot: p.IsBot}
	}
	m.broadcast(Event{Type: EventGameStart, Payload: GameStartPayload{GameID: m.id, Players: players}})

	for playerID, ch := range m.channels {
		view := projection.For(m.state, playerID)
		m.lastSent[playerID] = treeOf(view)
		ch.Send(Event{Type: EventGameStateUpdate, Payload: view})
	}

	m.schedule()
}

// Run starts the mailbox processing loop. It returns once Destroy is
// called; callers typically `go match.Run()`.
func (m *Match) Run() {
	for {
		select {
		case c := <-m.mailbox:
			c.run()
			close(c.done)
		case <-m.stop:
			return
		}
	}
}

func (m *Match) exec(fn func()) {
	c := cmd{run: fn, done: make(chan struct{})}
	select {
	case m.mailbox <- c:
	case <-m.stop:
		return
	}
	select {
	case <-c.done:
	case <-m.stop:
	}
}

// Submit handles game:playCard. It is rejected if the submitting player is
// not the current player, the match is no longer playing, or the phase is
// both_cards_on_board (comparison in progress) — none of these reach the
// engine at all; everything else is submitted. A validation failure is
// reported only to the offending player; a state-inconsistency failure ends
// the match with that player forfeiting.
func (m *Match) Submit(playerID, instanceID string, payload engine.PlayPayload) {
	m.exec(func() {
		if m.ended {
			return
		}
		if playerID != m.state.CurrentPlayer {
			m.sendError(playerID, "it is not your turn")
			return
		}
		if m.state.Status != models.StatusPlaying {
			m.sendError(playerID, "match has ended")
			return
		}
		if m.state.Phase == models.PhaseBothCardsOnBoard {
			m.sendError(playerID, "round is resolving")
			return
		}

		res := m.eng.PlayCard(m.state, playerID, instanceID, payload)
		if res.Err != nil {
			m.handleEngineError(playerID, res.Err)
			return
		}
		m.advanceState(res.State)
	})
}

// Discard handles a must_discard resolution.
func (m *Match) Discard(playerID, instanceID string) {
	m.exec(func() {
		if m.ended || m.state.Status != models.StatusPlaying {
			return
		}
		res := m.eng.Discard(m.state, playerID, instanceID)
		if res.Err != nil {
			m.handleEngineError(playerID, res.Err)
			return
		}
		m.advanceState(res.State)
	})
}

// AdvanceTurn handles game:advanceTurn. Legal only in round_resolved; the
// engine itself treats it as a no-op outside that phase, satisfying the
// idempotence requirement between manual and auto-scheduled advance.
func (m *Match) AdvanceTurn(playerID string) {
	m.exec(func() {
		if m.ended || m.state.Status != models.StatusPlaying {
			return
		}
		if m.state.Phase != models.PhaseRoundResolved {
			m.sendError(playerID, "advanceTurn is not legal in this phase")
			return
		}
		res := m.eng.AdvanceTurn(m.state)
		m.advanceState(res.State)
	})
}

// Disconnect handles a dropped client channel. If the match is still
// playing, the opponent wins immediately; otherwise this only detaches the
// channel.
func (m *Match) Disconnect(playerID string) {
	m.exec(func() {
		delete(m.channels, playerID)
		if m.ended || m.state.Status != models.StatusPlaying {
			return
		}
		next := m.eng.Forfeit(m.state, playerID)
		m.advanceState(next)
	})
}

// Reconnect attaches a new channel for playerID and sends a full snapshot
// (never a diff), resetting the stored last-sent projection.
func (m *Match) Reconnect(playerID string, channel ClientChannel) {
	m.exec(func() {
		m.channels[playerID] = channel
		view := projection.For(m.state, playerID)
		m.lastSent[playerID] = treeOf(view)
		channel.Send(Event{Type: EventGameStateUpdate, Payload: view})
	})
}

// Destroy cancels all timers, detaches all channels, and stops the mailbox
// loop.
func (m *Match) Destroy() {
	m.exec(func() {
		m.cancelSchedule()
		m.channels = map[string]ClientChannel{}
	})
	close(m.stop)
}

func (m *Match) handleEngineError(playerID string, err error) {
	if apperrors.Is(err, apperrors.KindStateInconsistency) {
		m.log.WithField("match", m.id).WithError(err).Error("fatal state inconsistency, ending match")
		next := m.eng.Forfeit(m.state, playerID)
		m.advanceState(next)
		return
	}
	m.sendError(playerID, err.Error())
}

func (m *Match) sendError(playerID, message string) {
	if ch, ok := m.channels[playerID]; ok {
		ch.Send(Event{Type: EventGameError, Payload: GameErrorPayload{Message: message}})
	}
}

// advanceState installs next as the current state, publishes diffs to
// every connected human client, re-arms schedules for the new phase, and —
// if the match has ended — broadcasts game:end and invokes the end-of-
// match hook exactly once.
func (m *Match) advanceState(next models.GameState) {
	m.state = next
	m.generation++
	m.publish()
	m.cancelSchedule()

	if m.state.Status != models.StatusPlaying {
		m.endMatch()
		return
	}

	if m.state.Phase == models.PhaseTurnEnded {
		res := m.eng.RotateTurn(m.state)
		m.state = res.State
		m.generation++
		m.publish()
		if m.state.Status != models.StatusPlaying {
			m.endMatch()
			return
		}
	}

	m.schedule()
}

func (m *Match) publish() {
	for playerID, ch := range m.channels {
		view := projection.For(m.state, playerID)
		newTree := treeOf(view)
		oldTree := m.lastSent[playerID]

		ops, err := jsonpatch.Diff(oldTree, newTree)
		if err != nil {
			m.log.WithError(err).Warn("failed to diff projection, sending full snapshot")
			ch.Send(Event{Type: EventGameStateUpdate, Payload: view})
			m.lastSent[playerID] = newTree
			continue
		}
		if len(ops) == 0 {
			continue
		}
		ch.Send(Event{Type: EventGamePatch, Payload: ops})
		m.lastSent[playerID] = newTree
	}
}

func (m *Match) broadcast(ev Event) {
	for _, ch := range m.channels {
		ch.Send(ev)
	}
}

func (m *Match) endMatch() {
	if m.ended {
		return
	}
	m.ended = true
	m.cancelSchedule()
	metrics.ActiveMatches.Dec()
	metrics.MatchesEndedTotal.WithLabelValues(string(m.state.Status)).Inc()
	m.broadcast(Event{Type: EventGameEnd, Payload: GameEndPayload{WinnerID: m.state.MatchWinnerID, GameStatus: string(m.state.Status)}})
	if m.onEnd != nil {
		m.onEnd(m.id)
	}
}

// schedule (re-)arms whichever of the turn timer, resolve callback,
// auto-advance callback, and bot-step callback apply to the current
// phase, per spec.md §4.2.
func (m *Match) schedule() {
	if m.ended || m.state.Status != models.StatusPlaying {
		return
	}

	switch m.state.Phase {
	case models.PhaseWaitingForInitialPlay, models.PhaseWaitingForCarCardAfterAction, models.PhaseMustDiscard:
		m.armTurnTimer()
		m.maybeScheduleBotStep()

	case models.PhaseBothCardsOnBoard:
		m.scheduleResolve()

	case models.PhaseRoundResolved:
		m.scheduleAutoAdvance()
	}
}

func (m *Match) cancelSchedule() {
	if m.turnTimer != nil {
		m.turnTimer.Stop()
		m.turnTimer = nil
	}
	m.resolveGen++
	m.advanceGen++
	m.botStepGen++
}

func (m *Match) armTurnTimer() {
	if m.turnTimer != nil {
		m.turnTimer.Stop()
	}
	currentPlayer := m.state.CurrentPlayer
	expectedGen := m.generation
	m.turnTimer = time.AfterFunc(time.Duration(m.state.TurnTimeLimitMs)*time.Millisecond, func() {
		m.exec(func() {
			if m.ended || m.generation != expectedGen || m.state.Status != models.StatusPlaying {
				return
			}
			next := m.eng.Forfeit(m.state, currentPlayer)
			m.advanceState(next)
		})
	})
}

func (m *Match) scheduleResolve() {
	m.resolveGen++
	gen := m.resolveGen
	time.AfterFunc(resolveDelay, func() {
		m.exec(func() {
			if m.ended || gen != m.resolveGen || m.state.Phase != models.PhaseBothCardsOnBoard {
				return
			}
			res := m.eng.ResolveRound(m.state)
			if res.Err != nil {
				m.handleEngineError(m.state.CurrentPlayer, res.Err)
				return
			}
			m.advanceState(res.State)
		})
	})
}

func (m *Match) scheduleAutoAdvance() {
	m.advanceGen++
	gen := m.advanceGen
	time.AfterFunc(autoAdvanceDelay, func() {
		m.exec(func() {
			if m.ended || gen != m.advanceGen || m.state.Phase != models.PhaseRoundResolved {
				return
			}
			res := m.eng.AdvanceTurn(m.state)
			m.advanceState(res.State)
		})
	})
}

func (m *Match) maybeScheduleBotStep() {
	current, ok := m.state.Player(m.state.CurrentPlayer)
	if !ok || !current.IsBot {
		return
	}
	m.botStepGen++
	gen := m.botStepGen
	currentPlayer := m.state.CurrentPlayer
	time.AfterFunc(botStepDelay, func() {
		m.exec(func() {
			if m.ended || gen != m.botStepGen || m.state.Status != models.StatusPlaying || m.state.CurrentPlayer != currentPlayer {
				return
			}
			m.stepBot(currentPlayer)
		})
	})
}

func (m *Match) stepBot(playerID string) {
	move, ok := bot.Choose(m.state, playerID, m.catalog)
	if !ok {
		next := m.eng.Forfeit(m.state, playerID)
		m.advanceState(next)
		return
	}

	var res engine.Result
	switch move.Kind {
	case bot.KindDiscard:
		res = m.eng.Discard(m.state, playerID, move.InstanceID)
	default:
		res = m.eng.PlayCard(m.state, playerID, move.InstanceID, move.Payload)
	}
	if res.Err != nil {
		next := m.eng.Forfeit(m.state, playerID)
		m.advanceState(next)
		return
	}
	m.advanceState(res.State)
}

func treeOf(view projection.View) interface{} {
	tree, err := jsonpatch.ToTree(view)
	if err != nil {
		// view is always JSON-marshalable; this would indicate a
		// programming error in projection.View, not a runtime condition.
		return view
	}
	return tree
}
