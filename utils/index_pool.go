package utils

import (
	"sync"
)

// IndexPool hands out unique integers from a fixed range, lowest first.
// The controller uses one pool per switch to allocate flow-rule cookies,
// so a freed cookie can be reused by a later rule.
// |mutex| is required because cookies are allocated from per-switch
// goroutines and freed from the REST handler thread.
type IndexPool struct {
	pool  *MinHeap
	mutex sync.Mutex
}

// Creates an index pool over the range [indexBase, indexBase + indexCount).
func NewIndexPool(indexBase int, indexCount int) *IndexPool {
	p := IndexPool{
		pool: NewMinHeap(),
	}
	for i := indexBase; i < indexBase+indexCount; i++ {
		p.pool.Push(i)
	}
	return &p
}

// Returns the smallest free index, or -1 if the pool is exhausted.
func (p *IndexPool) GetNextAvailable() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.pool.Size() == 0 {
		return -1
	}
	return p.pool.Pop().(int)
}

// Returns |index| to the pool. Double frees are ignored.
func (p *IndexPool) Free(index int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.pool.Contain(index) {
		p.pool.Push(index)
	}
}

func (p *IndexPool) Size() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.pool.Size()
}
