package mediagroup

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	groups []Group
	done   chan struct{}
}

func newCollector() *collector {
	return &collector{done: make(chan struct{}, 16)}
}

func (c *collector) onFlush(g Group) {
	c.mu.Lock()
	c.groups = append(c.groups, g)
	c.mu.Unlock()
	c.done <- struct{}{}
}

func (c *collector) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("group was not flushed")
	}
}

func TestAlbumIsFlushedOnceQuiet(t *testing.T) {
	c := newCollector()
	a := New(Options{Debounce: 20 * time.Millisecond, OnFlush: c.onFlush})

	assert.True(t, a.Add(Item{ChatID: 1, UserID: 2, MediaGroupID: "g", FileID: "a"}))
	assert.True(t, a.Add(Item{ChatID: 1, UserID: 2, MediaGroupID: "g", FileID: "b", Caption: "Nova"}))
	assert.Equal(t, 1, a.Pending())

	c.wait(t)
	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.groups, 1)
	assert.Equal(t, []string{"a", "b"}, c.groups[0].FileIDs)
	assert.Equal(t, "Nova", c.groups[0].Caption)
	assert.Equal(t, int64(2), c.groups[0].UserID)
	assert.Zero(t, a.Pending())
}

func TestItemsOutsideAlbumAreIgnored(t *testing.T) {
	a := New(Options{})
	assert.False(t, a.Add(Item{ChatID: 1, FileID: "a"}))
	assert.False(t, a.Add(Item{ChatID: 1, MediaGroupID: "g"}))
	assert.Zero(t, a.Pending())
}

func TestFullAlbumFlushesImmediately(t *testing.T) {
	c := newCollector()
	a := New(Options{Debounce: time.Hour, MaxItems: 2, OnFlush: c.onFlush})

	a.Add(Item{ChatID: 1, MediaGroupID: "g", FileID: "a"})
	a.Add(Item{ChatID: 1, MediaGroupID: "g", FileID: "b"})

	c.wait(t)
	assert.Zero(t, a.Pending())
}

func TestStopFlushesPending(t *testing.T) {
	c := newCollector()
	a := New(Options{Debounce: time.Hour, OnFlush: c.onFlush})

	a.Add(Item{ChatID: 1, MediaGroupID: "g1", FileID: "a"})
	a.Add(Item{ChatID: 2, MediaGroupID: "g2", FileID: "b"})
	a.Stop()

	c.mu.Lock()
	assert.Len(t, c.groups, 2)
	c.mu.Unlock()
	assert.False(t, a.Add(Item{ChatID: 1, MediaGroupID: "g3", FileID: "c"}))
}
