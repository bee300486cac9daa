// Package lobby implements the process-wide matchmaking queue: join/cancel
// handling, the human-only grace-window AI-spawn policy, and pairing,
// grounded on the teacher's queue-service Matchmaker but simplified to the
// two-player, no-skill-matching rules of spec.md §4.5.
package lobby

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/djorgosz2/car-card-game-server/internal/metrics"
)

// EventType names an outbound lobby event.
type EventType string

// EventLobbyUpdate is broadcast to every queued player after any queue
// change.
const EventLobbyUpdate EventType = "lobby:update"

// Event is one outbound lobby message.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

// Channel is the lobby's view of a connected player: an opaque sink for
// lobby events.
type Channel interface {
	Send(Event)
}

// PlayerSummary is one entry in a lobby:update broadcast.
type PlayerSummary struct {
	Username string `json:"username"`
	IsBot    bool   `json:"isBot"`
}

// UpdatePayload is lobby:update's payload.
type UpdatePayload struct {
	Players     []PlayerSummary `json:"players"`
	PlayerCount int             `json:"playerCount"`
}

// Pair is the two players the lobby has matched together.
type Pair struct {
	A, B QueuedPlayer
}

// QueuedPlayer is one waiting player's lobby state.
type QueuedPlayer struct {
	PlayerID    string
	DisplayName string
	Channel     Channel
	JoinedAt    time.Time
	IsBot       bool
	HumanOnly   bool
}

// Config parameterizes the lobby per spec.md §6.
type Config struct {
	AIEnabled          bool
	AIDelayMs          int
	HumanOnlyMaxWaitMs int
}

// Lobby is the single process-wide matchmaking queue.
type Lobby struct {
	mu    sync.Mutex
	queue []QueuedPlayer

	cfg Config
	log *logrus.Entry

	botCounter int
	aiTimer    *time.Timer

	onMatchFound func(Pair)

	now func() time.Time
}

// New builds a Lobby. onMatchFound is invoked (outside the lobby's lock)
// every time try-match selects a pair.
func New(cfg Config, onMatchFound func(Pair), log *logrus.Entry) *Lobby {
	return &Lobby{cfg: cfg, onMatchFound: onMatchFound, log: log, now: time.Now}
}

// Join enqueues playerID. Returns an error if the player is already
// queued. Broadcasts the updated queue, then attempts to match.
func (l *Lobby) Join(playerID, displayName string, channel Channel, humanOnly bool) error {
	l.mu.Lock()
	for _, p := range l.queue {
		if p.PlayerID == playerID {
			l.mu.Unlock()
			return fmt.Errorf("player %q is already queued", playerID)
		}
	}
	l.queue = append(l.queue, QueuedPlayer{
		PlayerID:    playerID,
		DisplayName: displayName,
		Channel:     channel,
		JoinedAt:    l.now(),
		HumanOnly:   humanOnly,
	})
	l.broadcastLocked()
	l.maybeScheduleAISpawnLocked()
	l.mu.Unlock()

	l.tryMatch()
	return nil
}

// Cancel removes playerID from the queue if present.
func (l *Lobby) Cancel(playerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, p := range l.queue {
		if p.PlayerID == playerID {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			break
		}
	}
	if len(l.queue) == 0 {
		l.cancelAISpawnLocked()
	}
	l.broadcastLocked()
}

// tryMatch selects the two earliest-joined humans, falling back to
// earliest-joined bots to fill remaining slots, and repeats while at least
// two entries remain.
func (l *Lobby) tryMatch() {
	for {
		pair, ok := l.popPairLocked()
		if !ok {
			return
		}
		if l.onMatchFound != nil {
			l.onMatchFound(pair)
		}
	}
}

func (l *Lobby) popPairLocked() (Pair, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) < 2 {
		return Pair{}, false
	}

	var humans, bots []int
	for i, p := range l.queue {
		if p.IsBot {
			bots = append(bots, i)
		} else {
			humans = append(humans, i)
		}
	}

	var chosen []int
	for _, i := range humans {
		if len(chosen) == 2 {
			break
		}
		chosen = append(chosen, i)
	}
	for _, i := range bots {
		if len(chosen) == 2 {
			break
		}
		chosen = append(chosen, i)
	}
	if len(chosen) < 2 {
		return Pair{}, false
	}

	a, b := l.queue[chosen[0]], l.queue[chosen[1]]

	// remove by index, higher index first so the lower index stays valid
	if chosen[0] > chosen[1] {
		chosen[0], chosen[1] = chosen[1], chosen[0]
	}
	l.queue = append(l.queue[:chosen[1]], l.queue[chosen[1]+1:]...)
	l.queue = append(l.queue[:chosen[0]], l.queue[chosen[0]+1:]...)

	l.broadcastLocked()
	return Pair{A: a, B: b}, true
}

// maybeScheduleAISpawnLocked schedules an AI spawn after AIDelayMs when AI
// is enabled and the queue holds a single human and nobody else. While a
// human-only player is still inside its grace window no spawn is scheduled;
// a timer instead re-runs this check once the window has elapsed. Must be
// called with l.mu held.
func (l *Lobby) maybeScheduleAISpawnLocked() {
	if !l.cfg.AIEnabled {
		return
	}
	if len(l.queue) >= 2 {
		l.cancelAISpawnLocked()
		return
	}

	humans := 0
	for _, p := range l.queue {
		if !p.IsBot {
			humans++
		}
	}
	if humans < 1 {
		return
	}

	graceActive := false
	for _, p := range l.queue {
		if p.HumanOnly && l.now().Sub(p.JoinedAt) < time.Duration(l.cfg.HumanOnlyMaxWaitMs)*time.Millisecond {
			graceActive = true
			break
		}
	}
	if graceActive {
		if l.aiTimer == nil {
			l.aiTimer = time.AfterFunc(time.Duration(l.cfg.HumanOnlyMaxWaitMs)*time.Millisecond, func() {
				l.mu.Lock()
				defer l.mu.Unlock()
				l.aiTimer = nil
				l.maybeScheduleAISpawnLocked()
			})
		}
		return
	}

	if l.aiTimer != nil {
		return
	}
	l.aiTimer = time.AfterFunc(time.Duration(l.cfg.AIDelayMs)*time.Millisecond, l.spawnBot)
}

func (l *Lobby) cancelAISpawnLocked() {
	if l.aiTimer != nil {
		l.aiTimer.Stop()
		l.aiTimer = nil
	}
}

func (l *Lobby) spawnBot() {
	l.mu.Lock()
	l.botCounter++
	bot := QueuedPlayer{
		PlayerID:    fmt.Sprintf("bot-%d", l.botCounter),
		DisplayName: fmt.Sprintf("Bot %d", l.botCounter),
		Channel:     nil,
		JoinedAt:    l.now(),
		IsBot:       true,
	}
	l.queue = append(l.queue, bot)
	l.aiTimer = nil
	l.broadcastLocked()
	l.mu.Unlock()

	metrics.BotSpawnsTotal.Inc()
	l.tryMatch()
}

func (l *Lobby) broadcastLocked() {
	metrics.LobbyQueueSize.Set(float64(len(l.queue)))

	players := make([]PlayerSummary, len(l.queue))
	for i, p := range l.queue {
		players[i] = PlayerSummary{Username: p.DisplayName, IsBot: p.IsBot}
	}
	payload := UpdatePayload{Players: players, PlayerCount: len(l.queue)}
	for _, p := range l.queue {
		if p.Channel != nil {
			p.Channel.Send(Event{Type: EventLobbyUpdate, Payload: payload})
		}
	}
}

// InQueue reports whether playerID is currently queued.
func (l *Lobby) InQueue(playerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.queue {
		if p.PlayerID == playerID {
			return true
		}
	}
	return false
}
