package proactor

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkQueueFIFO(t *testing.T) {
	w := newWorkQueue()
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, w.Push(func() { got = append(got, i) }))
	}
	require.Equal(t, 100, w.Len())
	require.Equal(t, 100, w.Drain())
	require.Equal(t, 0, w.Len())
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestWorkQueueDrainSwap(t *testing.T) {
	w := newWorkQueue()
	ran := 0
	w.Push(func() {
		ran++
		// Drain执行期间入队的闭包留到下一轮
		w.Push(func() { ran++ })
	})
	require.Equal(t, 1, w.Drain())
	require.Equal(t, 1, ran)
	require.Equal(t, 1, w.Drain())
	require.Equal(t, 2, ran)
}

func TestWorkQueueClose(t *testing.T) {
	w := newWorkQueue()
	ran := false
	require.True(t, w.Push(func() { ran = true }))
	w.Close()
	require.False(t, w.Push(func() {}))
	// 关闭前入队的闭包仍会被取走执行
	require.Equal(t, 1, w.Drain())
	require.True(t, ran)
}

func TestWorkQueueConcurrentProducers(t *testing.T) {
	w := newWorkQueue()
	const producers = 8
	const perProducer = 200

	// 闭包只在Drain里被执行，消费端是单线程
	seen := make([]int, producers)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				i := i
				w.Push(func() {
					if seen[p] != i {
						t.Errorf("producer %d out of order: want %d got %d", p, seen[p], i)
					}
					seen[p] = i + 1
				})
			}
		}()
	}

	total := 0
	start := time.Now()
	for total < producers*perProducer {
		n := w.Drain()
		if n == 0 {
			if time.Since(start) > 5*time.Second {
				t.Fatalf("only drained %d closures", total)
			}
			runtime.Gosched()
		}
		total += n
	}
	wg.Wait()
	for p := 0; p < producers; p++ {
		require.Equal(t, perProducer, seen[p])
	}
}
