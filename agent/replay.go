package agent

import (
	"math/rand"
	"sync"
)

// Transition is one learning sample: the state the decision was made
// in, the chosen backend index, the realized reward, and the state
// observed after the observation window.
type Transition struct {
	State     []float64
	Action    int
	Reward    float64
	NextState []float64
	Terminal  bool
}

// ReplayBuffer is a bounded FIFO transition store. When full, the
// oldest entry is overwritten. Appends and sampling are mutually
// exclusive, so a sampler never sees a half-evicted slot.
type ReplayBuffer struct {
	data  []Transition
	next  int
	size  int
	mutex sync.Mutex
}

func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &ReplayBuffer{
		data: make([]Transition, capacity),
	}
}

// Append stores |t|, evicting the oldest transition when the buffer
// is at capacity.
func (r *ReplayBuffer) Append(t Transition) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.data[r.next] = t
	r.next = (r.next + 1) % len(r.data)
	if r.size < len(r.data) {
		r.size++
	}
}

func (r *ReplayBuffer) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.size
}

func (r *ReplayBuffer) Cap() int {
	return len(r.data)
}

// Sample returns |n| transitions drawn uniformly without
// replacement, or nil if fewer than |n| are stored. The returned
// slice holds copies of the stored values, safe to use after later
// appends evict the originals.
func (r *ReplayBuffer) Sample(n int, rng *rand.Rand) []Transition {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if n <= 0 || r.size < n {
		return nil
	}

	out := make([]Transition, 0, n)
	for _, idx := range rng.Perm(r.size)[:n] {
		out = append(out, r.data[idx])
	}
	return out
}
