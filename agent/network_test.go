package agent

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgMax(t *testing.T) {
	assert.Equal(t, 2, ArgMax([]float64{0.1, -3, 7, 7 - 1e-9}))
	assert.Equal(t, 0, ArgMax([]float64{5, 5, 5}), "ties break toward the lower index")
	assert.Equal(t, 0, ArgMax([]float64{-1}))
}

func TestForwardShapeAndDeterminism(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n := NewValueNetwork(4, 8, 3, rng)

	state := []float64{0.1, 0.2, 0.3, 0.4}
	out := n.Forward(state)
	require.Len(t, out, 3)
	assert.Equal(t, out, n.Forward(state), "forward pass must be deterministic")
}

func TestCloneIsIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	n := NewValueNetwork(4, 8, 2, rng)
	c := n.Clone()

	state := []float64{1, 0, 0, 0}
	assert.Equal(t, n.Forward(state), c.Forward(state))

	// Mutating the original must not leak into the clone.
	n.B2[0] += 10.0
	assert.NotEqual(t, n.Forward(state), c.Forward(state))

	c.CopyFrom(n)
	assert.Equal(t, n.Forward(state), c.Forward(state))
}

// One gradient step toward a fixed target must shrink the gap on the
// trained action and leave the other action's value alone-ish.
func TestAccumulateStepReducesError(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	n := NewValueNetwork(2, 8, 2, rng)
	opt := newAdam(n, 0.01)

	state := []float64{1, 0}
	target := 5.0

	before := n.Forward(state)[0]
	for i := 0; i < 200; i++ {
		g := newGradients(n)
		n.accumulate(g, state, 0, target, 1.0)
		g.clip(kGradClipNorm)
		opt.step(n, g)
	}
	after := n.Forward(state)[0]

	gapBefore := target - before
	if gapBefore < 0 {
		gapBefore = -gapBefore
	}
	gapAfter := target - after
	if gapAfter < 0 {
		gapAfter = -gapAfter
	}
	assert.Less(t, gapAfter, gapBefore, "training must move Q toward the target")
}

func TestAccumulateReturnsSquaredError(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	n := NewValueNetwork(2, 4, 2, rng)

	state := []float64{0.5, 0.5}
	q := n.Forward(state)[1]
	target := q + 2.0

	g := newGradients(n)
	loss := n.accumulate(g, state, 1, target, 1.0)
	assert.InDelta(t, 4.0, loss, 1e-9)
}

func TestGradientClipBoundsNorm(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	n := NewValueNetwork(2, 4, 2, rng)

	g := newGradients(n)
	// Force an enormous gradient through a far-away target.
	n.accumulate(g, []float64{1, 1}, 0, 1e6, 1.0)
	g.clip(1.0)

	norm := 0.0
	for _, row := range g.w1 {
		for _, v := range row {
			norm += v * v
		}
	}
	for _, v := range g.b1 {
		norm += v * v
	}
	for _, row := range g.w2 {
		for _, v := range row {
			norm += v * v
		}
	}
	for _, v := range g.b2 {
		norm += v * v
	}
	assert.LessOrEqual(t, norm, 1.0+1e-9, "clipped global norm must not exceed the bound")
}
