package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMemory() *Memory {
	return NewMemory(zap.NewNop().Sugar())
}

func TestMemoryGetMissing(t *testing.T) {
	m := newTestMemory()

	snap, err := m.Get(context.Background(), "rooms/00000")
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func TestMemorySetAndGetTree(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	err := m.Set(ctx, "rooms/40625/players/p1", map[string]interface{}{
		"name":     "alice",
		"joinTime": int64(100),
	})
	require.NoError(t, err)

	snap, err := m.Get(ctx, "rooms/40625/players/p1")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, "alice", snap.Child("name").Str())
	assert.Equal(t, int64(100), snap.Child("joinTime").Int())

	// Parent snapshots include the whole subtree.
	parent, err := m.Get(ctx, "rooms/40625/players")
	require.NoError(t, err)
	assert.Equal(t, "alice", parent.Child("p1").Child("name").Str())
}

func TestMemorySetReplacesSubtree(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a/b", map[string]interface{}{"x": 1, "y": 2}))
	require.NoError(t, m.Set(ctx, "a/b", map[string]interface{}{"z": 3}))

	snap, err := m.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.False(t, snap.Child("x").Exists)
	assert.True(t, snap.Child("z").Exists)
}

func TestMemoryUpdateMergesFields(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a/b", map[string]interface{}{"x": 1, "y": 2}))
	require.NoError(t, m.Update(ctx, "a/b", map[string]interface{}{"y": 20, "z": 30}))

	snap, err := m.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Child("x").Int())
	assert.Equal(t, int64(20), snap.Child("y").Int())
	assert.Equal(t, int64(30), snap.Child("z").Int())
}

func TestMemorySetNilDeletes(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a/b/c", "leaf"))
	require.NoError(t, m.Set(ctx, "a/b", nil))

	snap, err := m.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	parent, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, parent.Exists)
}

func TestMemoryPushKeysUnique(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := m.Push(ctx, "rooms/1/players")
		require.NoError(t, err)
		require.NotEmpty(t, key)
		require.False(t, seen[key], "duplicate push key")
		seen[key] = true
	}

	// Push allocates a key without writing anything.
	snap, err := m.Get(ctx, "rooms/1/players")
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func TestMemoryTransactionAtomicIncrement(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()
	const writers = 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.Transaction(ctx, "rooms/1/totalScores/p1", func(current interface{}) (interface{}, error) {
				total := int64(0)
				if current != nil {
					total = Snapshot{Exists: true, Value: current}.Int()
				}
				return total + 1, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := m.Get(ctx, "rooms/1/totalScores/p1")
	require.NoError(t, err)
	assert.Equal(t, int64(writers), snap.Int())
}

func TestMemorySubscribeFiresImmediately(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "rooms/1/flag", true))

	snaps := make(chan Snapshot, 8)
	sub, err := m.Subscribe("rooms/1/flag", func(snap Snapshot) { snaps <- snap })
	require.NoError(t, err)
	defer sub.Cancel()

	select {
	case snap := <-snaps:
		assert.True(t, snap.Exists)
		assert.True(t, snap.Bool())
	case <-time.After(time.Second):
		t.Fatal("no initial delivery")
	}
}

func TestMemorySubscribeSeesOverlappingChanges(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	snaps := make(chan Snapshot, 8)
	sub, err := m.Subscribe("rooms/1/players", func(snap Snapshot) { snaps <- snap })
	require.NoError(t, err)
	defer sub.Cancel()

	// initial delivery
	select {
	case snap := <-snaps:
		assert.False(t, snap.Exists)
	case <-time.After(time.Second):
		t.Fatal("no initial delivery")
	}

	// A change below the watched path fires with the watched subtree.
	require.NoError(t, m.Set(ctx, "rooms/1/players/p1/name", "alice"))
	select {
	case snap := <-snaps:
		assert.Equal(t, "alice", snap.Child("p1").Child("name").Str())
	case <-time.After(time.Second):
		t.Fatal("no delivery for descendant change")
	}

	// A change in a sibling subtree does not fire; the next overlapping
	// change is the one observed.
	require.NoError(t, m.Set(ctx, "rooms/2/players/p9/name", "mallory"))
	require.NoError(t, m.Set(ctx, "rooms/1/players/p2/name", "bob"))
	select {
	case snap := <-snaps:
		assert.False(t, snap.Child("p9").Exists)
		assert.Equal(t, "bob", snap.Child("p2").Child("name").Str())
	case <-time.After(time.Second):
		t.Fatal("no delivery after sibling noise")
	}
}

func TestMemorySubscribeCancelStopsDelivery(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	sub, err := m.Subscribe("rooms/1", func(Snapshot) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, 5*time.Millisecond)

	sub.Cancel()
	require.NoError(t, m.Set(ctx, "rooms/1/flag", true))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestPathsOverlap(t *testing.T) {
	tests := []struct {
		watched string
		changed string
		want    bool
	}{
		{"rooms/1", "rooms/1", true},
		{"rooms/1", "rooms/1/players/p1", true},
		{"rooms/1/players/p1", "rooms/1", true},
		{"rooms/1", "rooms/2", false},
		{"rooms/1", "rooms/10", false},
		{"rooms/1/players", "rooms/1/rounds", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, pathsOverlap(tt.watched, tt.changed),
			"watched=%s changed=%s", tt.watched, tt.changed)
	}
}
