package proactor

import (
	"sync"

	"github.com/eapache/queue"
)

// workQueue slot的提交队列。Push可以来自任意goroutine，
// Drain只在归属slot的goroutine上调用
type workQueue struct {
	mu     sync.Mutex
	q      *queue.Queue
	closed bool
}

func newWorkQueue() *workQueue {
	return &workQueue{q: queue.New()}
}

// Push 入队一个闭包，队列已关闭时返回false
func (w *workQueue) Push(fn func()) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.q.Add(fn)
	w.mu.Unlock()
	return true
}

// Drain 换出当前积压的闭包并按入队顺序执行，返回执行数量。
// 执行发生在锁外，闭包里可以继续Push
func (w *workQueue) Drain() int {
	w.mu.Lock()
	pending := w.q
	w.q = queue.New()
	w.mu.Unlock()
	n := pending.Length()
	for i := 0; i < n; i++ {
		pending.Remove().(func())()
	}
	return n
}

// Close 之后的Push全部失败，已入队的闭包仍可被Drain取走
func (w *workQueue) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

func (w *workQueue) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.q.Length()
}
