package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameItem struct {
	id      uint64
	payload []byte
}

var implementations = map[string]func() Queue[*frameItem]{
	"lock-free": NewLockFreeQueue[*frameItem],
}

func TestQueue(t *testing.T) {
	for name, newQueue := range implementations {
		t.Run(name+"/empty", func(t *testing.T) {
			q := newQueue()

			assert.True(t, q.IsEmpty())
			assert.Equal(t, 0, q.Length())

			item, ok := q.Dequeue()
			assert.False(t, ok)
			assert.Nil(t, item)

			_, ok = q.Peek()
			assert.False(t, ok)
		})

		t.Run(name+"/fifo", func(t *testing.T) {
			q := newQueue()

			item1 := &frameItem{id: 1, payload: []byte("a")}
			item2 := &frameItem{id: 2, payload: []byte("b")}
			q.Enqueue(item1)
			q.Enqueue(item2)
			assert.False(t, q.IsEmpty())
			assert.Equal(t, 2, q.Length())

			got, ok := q.Peek()
			require.True(t, ok)
			assert.Same(t, item1, got)
			assert.Equal(t, 2, q.Length(), "peek must not remove")

			got, ok = q.Dequeue()
			require.True(t, ok)
			assert.Same(t, item1, got)

			got, ok = q.Dequeue()
			require.True(t, ok)
			assert.Same(t, item2, got)

			_, ok = q.Dequeue()
			assert.False(t, ok)
			assert.True(t, q.IsEmpty())
		})

		t.Run(name+"/reset", func(t *testing.T) {
			q := newQueue()
			for i := 0; i < 5; i++ {
				q.Enqueue(&frameItem{id: uint64(i)})
			}

			q.Reset()
			assert.True(t, q.IsEmpty())
			_, ok := q.Dequeue()
			assert.False(t, ok)

			q.Enqueue(&frameItem{id: 9})
			got, ok := q.Dequeue()
			require.True(t, ok)
			assert.Equal(t, uint64(9), got.id)
		})
	}
}

func TestLockFreeQueue_Concurrency(t *testing.T) {
	const producers, perProducer = 8, 500

	q := NewLockFreeQueue[int]()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(base*perProducer + i)
			}
		}(p)
	}
	wg.Wait()
	assert.Equal(t, producers*perProducer, q.Length())

	var mu sync.Mutex
	seen := make(map[int]bool, producers*perProducer)
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, ok := q.Dequeue()
				if !ok {
					return
				}
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.True(t, q.IsEmpty())
	assert.Len(t, seen, producers*perProducer)
}

func BenchmarkLockFreeQueue_100(b *testing.B) {
	q := NewLockFreeQueue[int]()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		done := make(chan struct{})
		go func() {
			for {
				if v, ok := q.Dequeue(); ok && v == 100 {
					close(done)
					return
				}
			}
		}()

		for j := 1; j <= 100; j++ {
			q.Enqueue(j)
		}
		<-done
	}
}

func BenchmarkChannelBuffered_100(b *testing.B) {
	input := make(chan int, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		done := make(chan struct{})
		go func() {
			for v := range input {
				if v == 100 {
					close(done)
					return
				}
			}
		}()

		for j := 1; j <= 100; j++ {
			input <- j
		}
		<-done
	}
}
