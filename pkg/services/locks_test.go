package services

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex(t *testing.T) {
	t.Parallel()

	locks := newKeyedMutex()

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		overlap atomic.Bool
	)

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock := locks.Lock("wf-1")
			defer unlock()

			if inside.Add(1) > 1 {
				overlap.Store(true)
			}

			inside.Add(-1)
		}()
	}

	wg.Wait()

	assert.False(t, overlap.Load())
	assert.Empty(t, locks.locks, "entries are released once unused")

	// Different keys do not block each other.
	unlockA := locks.Lock("a")
	unlockB := locks.Lock("b")
	unlockB()
	unlockA()
}
