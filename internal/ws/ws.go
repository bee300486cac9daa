// Package ws is the connection dispatcher: it upgrades HTTP connections to
// websockets, runs a read/write pump per connection, decodes named JSON
// envelopes and routes them to the lobby or a player's active match, and
// maintains the match registry tying player identifiers to the orchestrator
// instance currently handling them. Grounded on the teacher's
// presence-service WebSocketManager connection-manager pattern, adapted
// from its room/broadcast model to a match-routing model.
package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/djorgosz2/car-card-game-server/internal/engine"
	"github.com/djorgosz2/car-card-game-server/internal/lobby"
	"github.com/djorgosz2/car-card-game-server/internal/models"
	"github.com/djorgosz2/car-card-game-server/internal/orchestrator"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 64
)

// userIDPattern and displayNamePattern implement the auth:authenticate
// sanitization rules: a requested identifier/name is accepted only if it
// matches, otherwise a generated fallback is used instead of rejecting the
// connection outright.
var (
	userIDPattern      = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)
	displayNamePattern = regexp.MustCompile(`^[A-Za-z0-9 _\-.]{2,24}$`)
)

// Envelope is the wire shape of every inbound and outbound message:
// {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MatchFactory builds a new orchestrator.Match for a paired lobby entry;
// Manager then registers, starts and runs it. It is supplied by the caller (cmd/server) so that Manager
// does not need to know how to construct an engine.Engine or catalog.
type MatchFactory func(id string, players [2]engine.PlayerInit, seed uint32) *orchestrator.Match

// Manager owns every live connection, the lobby, and the match registry.
type Manager struct {
	upgrader websocket.Upgrader
	log      *logrus.Entry

	connMu      sync.RWMutex
	connections map[string]*conn // playerID -> conn

	registryMu    sync.Mutex
	matchByID     map[string]*orchestrator.Match
	matchByPlayer map[string]string // playerID -> matchID

	lobby    *lobby.Lobby
	newMatch MatchFactory

	rateLimit rate.Limit
	rateBurst int

	seedSource func() uint32
}

// Config parameterizes Manager construction.
type Config struct {
	RequestsPerSecond  float64
	Burst              int
	LobbyAIEnabled     bool
	LobbyAIDelayMs     int
	HumanOnlyMaxWaitMs int
	SeedSource         func() uint32 // defaults to a time-derived seed if nil
}

// New builds a Manager. newMatch constructs the orchestrator match for a
// lobby pairing; Manager is responsible for registering it, wiring each
// player's connection as its ClientChannel, and starting it.
func New(cfg Config, newMatch MatchFactory, log *logrus.Entry) *Manager {
	m := &Manager{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:           log,
		connections:   make(map[string]*conn),
		matchByID:     make(map[string]*orchestrator.Match),
		matchByPlayer: make(map[string]string),
		newMatch:      newMatch,
		rateLimit:     rate.Limit(cfg.RequestsPerSecond),
		rateBurst:     cfg.Burst,
		seedSource:    cfg.SeedSource,
	}
	if m.seedSource == nil {
		m.seedSource = func() uint32 { return uint32(time.Now().UnixNano()) }
	}
	m.lobby = lobby.New(lobby.Config{
		AIEnabled:          cfg.LobbyAIEnabled,
		AIDelayMs:          cfg.LobbyAIDelayMs,
		HumanOnlyMaxWaitMs: cfg.HumanOnlyMaxWaitMs,
	}, m.onPaired, log)
	return m
}

// conn is one live websocket connection, identified once auth:authenticate
// is processed. Before authentication, playerID is empty and only
// auth:authenticate is accepted.
type conn struct {
	id          string
	playerID    string
	displayName string

	wsConn *websocket.Conn
	send   chan []byte

	limiter *rate.Limiter

	mgr *Manager
	log *logrus.Entry

	closeOnce sync.Once
}

// ServeHTTP upgrades the request to a websocket and runs its pumps. It
// blocks until the connection closes, so callers typically invoke it from
// an http.Handler directly (the pumps themselves run in goroutines the
// caller does not need to manage).
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &conn{
		id:      uuid.NewString(),
		wsConn:  wsConn,
		send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(m.rateLimit, m.rateBurst),
		mgr:     m,
		log:     m.log.WithField("conn_id", "pending"),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.writePump() }()
	go func() { defer wg.Done(); c.readPump() }()
	wg.Wait()
}

func (c *conn) readPump() {
	defer c.close()

	c.wsConn.SetReadLimit(maxMessageSize)
	c.wsConn.SetReadDeadline(time.Now().Add(pongWait))
	c.wsConn.SetPongHandler(func(string) error {
		c.wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Debug("websocket read error")
			}
			return
		}

		if !c.limiter.Allow() {
			c.sendEnvelope("game:error", map[string]string{"message": "rate limit exceeded, slow down"})
			continue
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendEnvelope("game:error", map[string]string{"message": "malformed message"})
			continue
		}
		c.mgr.dispatch(c, env)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.wsConn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.wsConn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *conn) sendEnvelope(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	body, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return
	}
	select {
	case c.send <- body:
	default:
		c.log.Warn("send buffer full, dropping connection")
		c.close()
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		if c.playerID != "" {
			c.mgr.handleDisconnect(c.playerID)
		}
	})
}

// sendOrchestratorEvent frames an orchestrator event onto the connection;
// orchestratorChannel wraps it as an orchestrator.ClientChannel.
func (c *conn) sendOrchestratorEvent(ev orchestrator.Event) {
	c.sendEnvelope(string(ev.Type), ev.Payload)
}

// sendLobbyEvent frames a lobby event onto the connection; lobbyChannel
// wraps it as a lobby.Channel.
func (c *conn) sendLobbyEvent(ev lobby.Event) {
	c.sendEnvelope(string(ev.Type), ev.Payload)
}

// orchestratorChannel and lobbyChannel adapt *conn to the two independent
// Send(Event) interfaces orchestrator and lobby each declare with their
// own Event type, so a single connection can be registered with both
// without either package depending on the other's Event type.
type orchestratorChannel struct{ c *conn }

func (oc orchestratorChannel) Send(ev orchestrator.Event) { oc.c.sendOrchestratorEvent(ev) }

type lobbyChannel struct{ c *conn }

func (lc lobbyChannel) Send(ev lobby.Event) { lc.c.sendLobbyEvent(ev) }

func (m *Manager) dispatch(c *conn, env Envelope) {
	if c.playerID == "" {
		if env.Event != "auth:authenticate" {
			c.sendEnvelope("game:error", map[string]string{"message": "must authenticate first"})
			return
		}
		m.handleAuthenticate(c, env.Data)
		return
	}

	switch env.Event {
	case "auth:authenticate":
		// already authenticated; ignore repeats rather than erroring, a
		// reconnect-capable client may resend this defensively.
	case "matchmaking:join":
		m.handleJoin(c, env.Data)
	case "matchmaking:cancel":
		m.lobby.Cancel(c.playerID)
	case "game:playCard":
		m.handlePlayCard(c, env.Data)
	case "game:advanceTurn":
		m.withMatch(c.playerID, func(match *orchestrator.Match) { match.AdvanceTurn(c.playerID) })
	case "game:discardCard":
		m.handleDiscard(c, env.Data)
	default:
		c.sendEnvelope("game:error", map[string]string{"message": fmt.Sprintf("unknown event %q", env.Event)})
	}
}

type authenticatePayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

func (m *Manager) handleAuthenticate(c *conn, data json.RawMessage) {
	var req authenticatePayload
	_ = json.Unmarshal(data, &req)

	playerID := req.UserID
	if !userIDPattern.MatchString(playerID) {
		playerID = fmt.Sprintf("guest-%s", c.id[:8])
	}
	displayName := req.Username
	if !displayNamePattern.MatchString(displayName) {
		displayName = "Guest"
	}

	m.connMu.Lock()
	if existing, ok := m.connections[playerID]; ok {
		existing.close()
	}
	c.playerID = playerID
	c.displayName = displayName
	c.log = m.log.WithField("player_id", playerID)
	m.connections[playerID] = c
	m.connMu.Unlock()

	// A reconnecting player's match, if any, takes priority over the
	// lobby: an in-progress match always wins a race with a stale queue
	// entry for the same identifier.
	if matchID, ok := m.matchFor(playerID); ok {
		m.registryMu.Lock()
		match := m.matchByID[matchID]
		m.registryMu.Unlock()
		if match != nil {
			match.Reconnect(playerID, orchestratorChannel{c})
			return
		}
	}

	c.sendEnvelope("auth:success", map[string]string{"userId": playerID, "username": displayName})
}

type joinPayload struct {
	HumanOnly bool `json:"humanOnly"`
}

func (m *Manager) handleJoin(c *conn, data json.RawMessage) {
	var req joinPayload
	_ = json.Unmarshal(data, &req)

	if err := m.lobby.Join(c.playerID, c.displayName, lobbyChannel{c}, req.HumanOnly); err != nil {
		c.sendEnvelope("matchmaking:error", map[string]string{"message": err.Error()})
		return
	}
	c.sendEnvelope("matchmaking:joined", map[string]string{"message": "queued for a match"})
}

type playCardPayload struct {
	CardInstanceID string         `json:"cardInstanceId"`
	SelectedMetric *models.Metric `json:"selectedMetric"`
	TargetPlayerID *string        `json:"targetPlayerId"`
}

func (m *Manager) handlePlayCard(c *conn, data json.RawMessage) {
	var req playCardPayload
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendEnvelope("game:error", map[string]string{"message": "malformed playCard payload"})
		return
	}
	payload := engine.PlayPayload{SelectedMetric: req.SelectedMetric, TargetPlayerID: req.TargetPlayerID}
	m.withMatch(c.playerID, func(match *orchestrator.Match) {
		match.Submit(c.playerID, req.CardInstanceID, payload)
	})
}

type discardCardPayload struct {
	CardInstanceID string `json:"cardInstanceId"`
}

func (m *Manager) handleDiscard(c *conn, data json.RawMessage) {
	var req discardCardPayload
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendEnvelope("game:error", map[string]string{"message": "malformed discardCard payload"})
		return
	}
	m.withMatch(c.playerID, func(match *orchestrator.Match) {
		match.Discard(c.playerID, req.CardInstanceID)
	})
}

func (m *Manager) withMatch(playerID string, fn func(match *orchestrator.Match)) {
	matchID, ok := m.matchFor(playerID)
	if !ok {
		return
	}
	m.registryMu.Lock()
	match := m.matchByID[matchID]
	m.registryMu.Unlock()
	if match != nil {
		fn(match)
	}
}

func (m *Manager) matchFor(playerID string) (string, bool) {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	id, ok := m.matchByPlayer[playerID]
	return id, ok
}

// onPaired is the lobby's onMatchFound callback: it builds and starts a
// match for the pair and registers both players in the match registry.
func (m *Manager) onPaired(pair lobby.Pair) {
	matchID := uuid.NewString()
	players := [2]engine.PlayerInit{
		{PlayerID: pair.A.PlayerID, DisplayName: pair.A.DisplayName, IsBot: pair.A.IsBot},
		{PlayerID: pair.B.PlayerID, DisplayName: pair.B.DisplayName, IsBot: pair.B.IsBot},
	}
	match := m.newMatch(matchID, players, m.seedSource())

	m.registryMu.Lock()
	m.matchByID[matchID] = match
	m.matchByPlayer[pair.A.PlayerID] = matchID
	m.matchByPlayer[pair.B.PlayerID] = matchID
	m.registryMu.Unlock()

	channels := make(map[string]orchestrator.ClientChannel)
	m.connMu.RLock()
	if !pair.A.IsBot {
		if c, ok := m.connections[pair.A.PlayerID]; ok {
			channels[pair.A.PlayerID] = orchestratorChannel{c}
		}
	}
	if !pair.B.IsBot {
		if c, ok := m.connections[pair.B.PlayerID]; ok {
			channels[pair.B.PlayerID] = orchestratorChannel{c}
		}
	}
	m.connMu.RUnlock()

	match.Start(channels)
	go match.Run()
}

// onMatchEnd is passed as MatchFactory callers' onEnd hook; it removes the
// match from the registry so that disconnect/reconnect lookups for its
// players stop resolving to a dead match.
func (m *Manager) onMatchEnd(matchID string) {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	delete(m.matchByID, matchID)
	for playerID, id := range m.matchByPlayer {
		if id == matchID {
			delete(m.matchByPlayer, playerID)
		}
	}
}

// OnMatchEnd returns the callback a MatchFactory must invoke when a match
// ends, so that the registry stays consistent.
func (m *Manager) OnMatchEnd() func(string) { return m.onMatchEnd }

func (m *Manager) handleDisconnect(playerID string) {
	m.connMu.Lock()
	delete(m.connections, playerID)
	m.connMu.Unlock()

	m.lobby.Cancel(playerID)
	m.withMatch(playerID, func(match *orchestrator.Match) { match.Disconnect(playerID) })
}
