package utils

import (
	"container/heap"
)

// intHeap is the raw container/heap implementation backing MinHeap.
type intHeap []int

func (h intHeap) Len() int           { return len(h) }
func (h intHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

// Push/Pop use pointer receivers because they modify the slice length.
func (h *intHeap) Push(x interface{}) {
	*h = append(*h, x.(int))
}

func (h *intHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// MinHeap is a small integer min-heap used by IndexPool to hand out
// the lowest free index first.
type MinHeap struct {
	data intHeap
}

func NewMinHeap() *MinHeap {
	h := &MinHeap{data: make(intHeap, 0)}
	heap.Init(&h.data)
	return h
}

func (h *MinHeap) Size() int {
	return h.data.Len()
}

func (h *MinHeap) Push(x int) {
	heap.Push(&h.data, x)
}

func (h *MinHeap) Pop() interface{} {
	return heap.Pop(&h.data)
}

func (h *MinHeap) Contain(target int) bool {
	for i := 0; i < h.data.Len(); i++ {
		if h.data[i] == target {
			return true
		}
	}
	return false
}
