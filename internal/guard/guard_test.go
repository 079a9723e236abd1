package guard

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_DispatchOrdering(t *testing.T) {
	t.Run("should run callbacks in submission order", func(t *testing.T) {
		g := New(0)
		var results []int
		var mu sync.Mutex
		var wg sync.WaitGroup

		for i := 0; i < 100; i++ {
			wg.Add(1)
			i := i
			g.Dispatch(func(r int) {
				mu.Lock()
				results = append(results, i)
				mu.Unlock()
				wg.Done()
			})
		}
		wg.Wait()

		require.Len(t, results, 100)
		for i := 0; i < 100; i++ {
			assert.Equal(t, i, results[i])
		}
	})
}

func TestGuard_DispatchSync(t *testing.T) {
	t.Run("should observe mutations made by prior dispatches", func(t *testing.T) {
		g := New(map[string]int{})
		g.Dispatch(func(m map[string]int) { m["a"] = 1 })

		var got int
		g.DispatchSync(func(m map[string]int) { got = m["a"] })

		assert.Equal(t, 1, got)
	})
}

func TestGuard_Wrap(t *testing.T) {
	t.Run("should schedule the wrapped function on the guard", func(t *testing.T) {
		g := New([]int{})

		appended := make(chan struct{})
		fn := Wrap(g, func(_ []int, v int) {
			close(appended)
		})
		fn(5)

		select {
		case <-appended:
		case <-time.After(time.Second):
			t.Fatal("wrapped function was not scheduled")
		}
	})
}

func TestGuard_ConcurrentGuardsRunInParallel(t *testing.T) {
	t.Run("should not serialize across distinct guards", func(t *testing.T) {
		g1 := New(0)
		g2 := New(0)

		start := make(chan struct{})
		release1 := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)

		g1.Dispatch(func(int) {
			close(start)
			<-release1
			wg.Done()
		})

		<-start
		done2 := make(chan struct{})
		g2.Dispatch(func(int) {
			close(done2)
			wg.Done()
		})

		select {
		case <-done2:
		case <-time.After(time.Second):
			t.Fatal("guard g2 was blocked by guard g1")
		}
		close(release1)
		wg.Wait()
	})
}
