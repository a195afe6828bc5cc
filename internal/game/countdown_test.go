package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountdownFiresOnExpiry(t *testing.T) {
	c := NewCountdown(5 * time.Millisecond)
	fired := make(chan struct{})

	require.True(t, c.Start(2))
	c.OnFinished(func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("countdown never fired")
	}
	assert.False(t, c.Counting())
}

func TestCountdownSecondStartIsNoOp(t *testing.T) {
	c := NewCountdown(5 * time.Millisecond)

	require.True(t, c.Start(10))
	assert.False(t, c.Start(2), "second start while counting must be dropped")
	assert.True(t, c.Counting())
}

func TestCountdownCallbacksClearedAfterFiring(t *testing.T) {
	c := NewCountdown(5 * time.Millisecond)
	fired := make(chan struct{}, 4)

	require.True(t, c.Start(1))
	c.OnFinished(func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("first countdown never fired")
	}

	// A fresh countdown without a re-registered callback fires nothing.
	require.True(t, c.Start(1))
	require.Eventually(t, func() bool { return !c.Counting() }, time.Second, 5*time.Millisecond)

	select {
	case <-fired:
		t.Fatal("callback survived across countdowns")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCountdownRestartableAfterExpiry(t *testing.T) {
	c := NewCountdown(5 * time.Millisecond)

	require.True(t, c.Start(1))
	require.Eventually(t, func() bool { return !c.Counting() }, time.Second, 5*time.Millisecond)

	fired := make(chan struct{})
	require.True(t, c.Start(1))
	c.OnFinished(func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("restarted countdown never fired")
	}
}
