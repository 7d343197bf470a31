package utils

import (
	"os"
	"sort"
	"sync"
	"testing"
)

func TestMain(m *testing.M) {
	ret := m.Run()
	os.Exit(ret)
}

func TestMinHeapContain(t *testing.T) {
	h := NewMinHeap()

	for _, num := range []int{1, 3, 5, 7, 9} {
		h.Push(num)
	}

	if h.Size() != 5 {
		t.Errorf("Failed to push all numbers into the heap")
	}

	for num := 0; num <= 10; num++ {
		want := num%2 == 1 && num <= 9
		if h.Contain(num) != want {
			t.Fatalf("Failed to tell %d is in MinHeap or not", num)
		}
	}
}

func TestMinHeapPushPop(t *testing.T) {
	h := NewMinHeap()

	input := []int{10, 8, 6, 4, 2, 0, 9, 7, 5, 3, 1}
	for _, num := range input {
		h.Push(num)
	}

	if h.Size() != len(input) {
		t.Errorf("Failed to push all numbers into the heap")
	}

	for want := 0; h.Size() > 0; want++ {
		if got := h.Pop().(int); got != want {
			t.Errorf("Popped %d, expected %d", got, want)
		}
	}
}

func TestIndexPoolSingleThread(t *testing.T) {
	base := 100
	count := 1000
	pool := NewIndexPool(base, count)

	for i := 0; i < count; i++ {
		if got := pool.GetNextAvailable(); got != base+i {
			t.Errorf("Failed to get %d in the correct order (got %d)", base+i, got)
		}
	}

	if pool.GetNextAvailable() != -1 {
		t.Errorf("Failed to return -1 when IndexPool is empty")
	}

	// Freed indexes must come back lowest-first, and a double
	// free must not duplicate an index.
	pool.Free(base + 7)
	pool.Free(base + 3)
	pool.Free(base + 3)

	if pool.Size() != 2 {
		t.Errorf("Double free duplicated an index")
	}
	if pool.GetNextAvailable() != base+3 || pool.GetNextAvailable() != base+7 {
		t.Errorf("Failed to reuse freed indexes lowest-first")
	}
}

func TestIndexPoolMultiThread(t *testing.T) {
	base := 0
	count := 2000
	pool := NewIndexPool(base, count)

	var mu sync.Mutex
	var wg sync.WaitGroup
	nums := []int{}

	for i := 0; i < count; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num := pool.GetNextAvailable()
			mu.Lock()
			defer mu.Unlock()
			nums = append(nums, num)
		}()
	}
	wg.Wait()

	if pool.Size() != 0 || len(nums) != count {
		t.Fatalf("Failed to pop enough numbers")
	}

	sort.Ints(nums)
	for i, num := range nums {
		if num != base+i {
			t.Errorf("Failed to pop %d. Popped %d", base+i, num)
		}
	}
}
