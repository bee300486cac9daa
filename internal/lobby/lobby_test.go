package lobby_test

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djorgosz2/car-card-game-server/internal/lobby"
)

type fakeChannel struct {
	mu     sync.Mutex
	events []lobby.Event
}

func (f *fakeChannel) Send(e lobby.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestJoin_PairsTwoHumans(t *testing.T) {
	var found []lobby.Pair
	var mu sync.Mutex
	l := lobby.New(lobby.Config{AIEnabled: false}, func(p lobby.Pair) {
		mu.Lock()
		found = append(found, p)
		mu.Unlock()
	}, discardLogger())

	require.NoError(t, l.Join("p1", "Alice", &fakeChannel{}, false))
	require.NoError(t, l.Join("p2", "Bob", &fakeChannel{}, false))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, found, 1)
	assert.ElementsMatch(t, []string{"p1", "p2"}, []string{found[0].A.PlayerID, found[0].B.PlayerID})
	assert.False(t, l.InQueue("p1"))
	assert.False(t, l.InQueue("p2"))
}

func TestJoin_RejectsDuplicate(t *testing.T) {
	l := lobby.New(lobby.Config{}, func(lobby.Pair) {}, discardLogger())
	require.NoError(t, l.Join("p1", "Alice", &fakeChannel{}, false))
	err := l.Join("p1", "Alice", &fakeChannel{}, false)
	assert.Error(t, err)
}

func TestCancel_RemovesFromQueue(t *testing.T) {
	l := lobby.New(lobby.Config{}, func(lobby.Pair) {}, discardLogger())
	require.NoError(t, l.Join("p1", "Alice", &fakeChannel{}, false))
	l.Cancel("p1")
	assert.False(t, l.InQueue("p1"))
}

// S5: two humanOnly players queue within the grace window; no AI is
// spawned because try-match pairs them before the window or the AI delay
// elapses.
func TestHumanOnlyGrace_PairsBeforeAISpawns(t *testing.T) {
	var found []lobby.Pair
	var mu sync.Mutex
	l := lobby.New(lobby.Config{AIEnabled: true, AIDelayMs: 500, HumanOnlyMaxWaitMs: 8000}, func(p lobby.Pair) {
		mu.Lock()
		found = append(found, p)
		mu.Unlock()
	}, discardLogger())

	require.NoError(t, l.Join("p1", "Alice", &fakeChannel{}, true))
	require.NoError(t, l.Join("p2", "Bob", &fakeChannel{}, true))

	// try-match already paired them synchronously inside Join; no AI spawn
	// timer should ever fire because the queue was empty again immediately.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, found, 1)
	assert.ElementsMatch(t, []string{"p1", "p2"}, []string{found[0].A.PlayerID, found[0].B.PlayerID})
}

func TestHumanOnlyGrace_BlocksAISpawnWithinWindow(t *testing.T) {
	l := lobby.New(lobby.Config{AIEnabled: true, AIDelayMs: 10, HumanOnlyMaxWaitMs: 10_000}, func(lobby.Pair) {}, discardLogger())
	require.NoError(t, l.Join("p1", "Alice", &fakeChannel{}, true))

	time.Sleep(100 * time.Millisecond)
	assert.True(t, l.InQueue("p1"))
}

func TestAISpawn_FillsQueueWhenNoGrace(t *testing.T) {
	var found []lobby.Pair
	var mu sync.Mutex
	l := lobby.New(lobby.Config{AIEnabled: true, AIDelayMs: 20, HumanOnlyMaxWaitMs: 0}, func(p lobby.Pair) {
		mu.Lock()
		found = append(found, p)
		mu.Unlock()
	}, discardLogger())

	require.NoError(t, l.Join("p1", "Alice", &fakeChannel{}, false))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(found) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
