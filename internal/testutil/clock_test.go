package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_StartsAtStart(t *testing.T) {
	clock := NewDeterministicClock(Epoch, time.Second)
	assert.Equal(t, Epoch, clock.Current())
}

func TestDeterministicClock_NextAdvancesByStep(t *testing.T) {
	clock := NewDeterministicClock(Epoch, time.Minute)

	assert.Equal(t, Epoch.Add(time.Minute), clock.Next())
	assert.Equal(t, Epoch.Add(2*time.Minute), clock.Next())
	assert.Equal(t, Epoch.Add(2*time.Minute), clock.Current())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock(Epoch, time.Second)
	clock.Next()
	clock.Next()

	clock.Reset()
	assert.Equal(t, Epoch, clock.Current())
	assert.Equal(t, Epoch.Add(time.Second), clock.Next())
}

func TestDeterministicClock_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	clock := NewDeterministicClock(time.Date(2025, 1, 1, 2, 0, 0, 0, loc), time.Second)

	assert.Equal(t, time.UTC, clock.Current().Location())
	assert.Equal(t, 0, clock.Current().Hour())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock(Epoch, time.Millisecond)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[time.Time]bool)

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				ts := clock.Next()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Every call got a distinct timestamp.
	require.Len(t, seen, numGoroutines*callsPerGoroutine)
	assert.Equal(t, Epoch.Add(numGoroutines*callsPerGoroutine*time.Millisecond), clock.Current())
}
