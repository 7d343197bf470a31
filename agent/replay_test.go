package agent

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayBufferEvictsOldest(t *testing.T) {
	r := NewReplayBuffer(3)
	for i := 0; i < 5; i++ {
		r.Append(Transition{Action: i})
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, r.Cap())

	// Only the newest three survive.
	rng := rand.New(rand.NewSource(1))
	got := r.Sample(3, rng)
	require.Len(t, got, 3)
	seen := map[int]bool{}
	for _, tr := range got {
		seen[tr.Action] = true
	}
	assert.Equal(t, map[int]bool{2: true, 3: true, 4: true}, seen)
}

func TestReplayBufferSampleShortcomings(t *testing.T) {
	r := NewReplayBuffer(8)
	rng := rand.New(rand.NewSource(1))

	assert.Nil(t, r.Sample(1, rng), "empty buffer must not sample")

	r.Append(Transition{Action: 1})
	r.Append(Transition{Action: 2})
	assert.Nil(t, r.Sample(3, rng), "undersized buffer must not sample")
	assert.Nil(t, r.Sample(0, rng))
}

func TestReplayBufferSamplesWithoutReplacement(t *testing.T) {
	r := NewReplayBuffer(16)
	for i := 0; i < 10; i++ {
		r.Append(Transition{Action: i})
	}

	rng := rand.New(rand.NewSource(2))
	for trial := 0; trial < 20; trial++ {
		got := r.Sample(6, rng)
		require.Len(t, got, 6)
		seen := map[int]bool{}
		for _, tr := range got {
			assert.False(t, seen[tr.Action], "duplicate transition in one batch")
			seen[tr.Action] = true
		}
	}
}

func TestReplayBufferSampleSurvivesEviction(t *testing.T) {
	r := NewReplayBuffer(4)
	for i := 0; i < 4; i++ {
		r.Append(Transition{Action: i, State: []float64{float64(i)}})
	}

	rng := rand.New(rand.NewSource(3))
	got := r.Sample(4, rng)
	require.Len(t, got, 4)

	// Evict everything; the sampled copies must be unchanged.
	for i := 10; i < 14; i++ {
		r.Append(Transition{Action: i})
	}
	for _, tr := range got {
		assert.Less(t, tr.Action, 4)
	}
}
