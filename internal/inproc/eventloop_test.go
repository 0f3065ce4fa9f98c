package inproc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLoopOrder(t *testing.T) {
	l := newEventLoop()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	l.stop()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestEventLoopStop(t *testing.T) {
	t.Run("stop waits for queued callbacks", func(t *testing.T) {
		l := newEventLoop()

		done := false
		l.post(func() { done = true })
		l.stop()

		assert.True(t, done)
	})

	t.Run("posts after stop are dropped", func(t *testing.T) {
		l := newEventLoop()
		l.stop()

		l.post(func() { t.Error("callback ran after stop") })
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		l := newEventLoop()
		l.stop()
		l.stop()
	})
}
