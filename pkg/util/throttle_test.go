package util

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestThrottle(interval time.Duration) (*Throttle, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	th := NewThrottle(interval)
	th.now = clock.now
	return th, clock
}

func TestThrottle(t *testing.T) {
	t.Run("first call passes", func(t *testing.T) {
		th, _ := newTestThrottle(time.Second)
		n, ok := th.Allow()
		assert.True(t, ok)
		assert.Zero(t, n)
	})

	t.Run("calls inside the interval are counted", func(t *testing.T) {
		th, clock := newTestThrottle(time.Second)
		th.Allow()

		for i := 0; i < 3; i++ {
			clock.advance(100 * time.Millisecond)
			_, ok := th.Allow()
			assert.False(t, ok)
		}

		clock.advance(time.Second)
		n, ok := th.Allow()
		assert.True(t, ok)
		assert.Equal(t, uint64(3), n)

		clock.advance(time.Second)
		n, ok = th.Allow()
		assert.True(t, ok)
		assert.Zero(t, n, "the count starts over after each pass")
	})

	t.Run("reset allows immediately", func(t *testing.T) {
		th, _ := newTestThrottle(time.Hour)
		th.Allow()
		th.Allow()
		th.Reset()

		n, ok := th.Allow()
		assert.True(t, ok)
		assert.Zero(t, n)
	})

	t.Run("zero interval never throttles", func(t *testing.T) {
		th := NewThrottle(0)
		for i := 0; i < 5; i++ {
			_, ok := th.Allow()
			assert.True(t, ok)
		}
	})

	t.Run("concurrent callers", func(t *testing.T) {
		th := NewThrottle(time.Hour)
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			passed int
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok := th.Allow(); ok {
					mu.Lock()
					passed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, passed)
	})
}
